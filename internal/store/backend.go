package store

import (
	"fmt"

	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database/leveldb"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database/memory"
	"github.com/AntoineMrtl/oracle-swap-back/internal/storage/database/pebble"
)

// DBName is the database holding pool state.
const DBName = "oracleswap"

// OpenManager returns a database manager for backend rooted at path.
func OpenManager(backend database.Backend, path string) (database.Manager, error) {
	switch backend {
	case database.BackendPebble:
		return pebble.NewManager(path), nil
	case database.BackendLevelDB:
		return leveldb.NewManager(path), nil
	case database.BackendMemory:
		return memory.NewManager(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
