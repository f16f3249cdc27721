package cbor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string            `codec:"name"`
	Count uint64            `codec:"count"`
	Tags  map[string]string `codec:"tags"`
}

func TestMarshalCanonical(t *testing.T) {
	a := sample{Name: "pool", Count: 7, Tags: map[string]string{"b": "2", "a": "1", "c": "3"}}
	b := sample{Name: "pool", Count: 7, Tags: map[string]string{"c": "3", "a": "1", "b": "2"}}

	encA, err := Marshal(a)
	require.NoError(t, err)
	encB, err := Marshal(b)
	require.NoError(t, err)
	require.Equal(t, encA, encB)

	var out sample
	require.NoError(t, Unmarshal(encA, &out))
	require.Equal(t, a, out)
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	var out sample
	require.Error(t, Unmarshal(nil, &out))
	require.Error(t, Unmarshal([]byte{0x43, 'a', 'b', 'c'}, &out))
}

func TestUnmarshalRejectsUnknownField(t *testing.T) {
	enc, err := Marshal(map[string]any{"name": "x", "bogus": 1})
	require.NoError(t, err)

	var out sample
	require.Error(t, Unmarshal(enc, &out))
}
