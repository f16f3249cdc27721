package tx

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResultFamilies(t *testing.T) {
	tests := []struct {
		result Result
		tec    bool
		tef    bool
		tem    bool
	}{
		{TesSUCCESS, false, false, false},
		{TecSTALE_PRICE, true, false, false},
		{TecINSOLVENT, true, false, false},
		{TecINSUFFICIENT_FEE, true, false, false},
		{TefBAD_SIGNATURE, false, true, false},
		{TemZERO_AMOUNT, false, false, true},
		{TemMALFORMED, false, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.result.String(), func(t *testing.T) {
			require.Equal(t, tc.tec, tc.result.IsTec())
			require.Equal(t, tc.tef, tc.result.IsTef())
			require.Equal(t, tc.tem, tc.result.IsTem())
		})
	}
}

func TestResultAsError(t *testing.T) {
	wrapped := fmt.Errorf("swap: %w", TecSLIPPAGE)
	require.True(t, errors.Is(wrapped, TecSLIPPAGE))
	require.False(t, errors.Is(wrapped, TecINSOLVENT))

	var r Result
	require.True(t, errors.As(wrapped, &r))
	require.Equal(t, TecSLIPPAGE, r)
	require.Contains(t, TecSLIPPAGE.Error(), "tecSLIPPAGE")
}

func TestResultOf(t *testing.T) {
	require.Equal(t, TesSUCCESS, ResultOf(nil))
	require.Equal(t, TecSTALE_PRICE, ResultOf(fmt.Errorf("ingest: %w", TecSTALE_PRICE)))
	require.Equal(t, TefINTERNAL, ResultOf(errors.New("disk full")))
}

func TestParseResult(t *testing.T) {
	for _, r := range allResults {
		parsed, ok := ParseResult(r.String())
		require.True(t, ok, r.String())
		require.Equal(t, r, parsed)
	}

	_, ok := ParseResult("tecNOPE")
	require.False(t, ok)
}
