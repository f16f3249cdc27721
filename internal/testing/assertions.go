package testing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

// RequireSuccess asserts that an operation returned no error.
func RequireSuccess(t *testing.T, err error) {
	t.Helper()
	require.NoError(t, err, "Expected tesSUCCESS")
}

// RequireResult asserts that an operation failed with a specific result code.
func RequireResult(t *testing.T, err error, expected tx.Result) {
	t.Helper()
	require.Error(t, err, "Expected %s, but the operation succeeded", expected)
	var got tx.Result
	require.True(t, errors.As(err, &got), "Expected %s, got non-result error: %v", expected, err)
	require.Equal(t, expected, got, "Expected %s, got %s", expected, got)
}

// RequireClaimed asserts that an operation failed with a tec code.
func RequireClaimed(t *testing.T, err error) {
	t.Helper()
	var got tx.Result
	require.True(t, errors.As(err, &got), "Expected a tec result, got %v", err)
	require.True(t, got.IsTec(), "Expected a tec result, got %s", got)
}

// RequireReserves asserts the pool reserves, in token quantities such as "99.1".
func RequireReserves(t *testing.T, env *TestEnv, expectedA, expectedB string) {
	t.Helper()
	res := env.Reserves()
	assets := env.Config().Assets
	require.Equal(t, UnitsAt(expectedA, assets[0].Decimals).String(), res.A.String(),
		"Reserve %s mismatch", assets[0].Symbol)
	require.Equal(t, UnitsAt(expectedB, assets[1].Decimals).String(), res.B.String(),
		"Reserve %s mismatch", assets[1].Symbol)
}

// RequireAmount asserts an amount given in base units.
func RequireAmount(t *testing.T, expected, actual amount.Amount, msgAndArgs ...interface{}) {
	t.Helper()
	require.Equal(t, expected.String(), actual.String(), msgAndArgs...)
}
