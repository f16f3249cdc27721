package tx

import (
	"errors"
	"fmt"
)

// Result represents a pool operation result code.
//
// Codes follow the rippled engine-result families: tes (success), tec (claimed,
// not applied), tef (failure), tem (malformed). A non-success Result is also an
// error so it can travel up the call stack unchanged and be matched with errors.Is.
type Result int

const (
	// tesSUCCESS (0)
	TesSUCCESS Result = 0

	// tec codes (100-199): rejected by pool state, nothing applied
	TecINSUFFICIENT_FEE    Result = 136
	TecINSOLVENT           Result = 162
	TecSLIPPAGE            Result = 164
	TecINSUFFICIENT_SHARES Result = 165
	TecSTALE_PRICE         Result = 170
	TecUNKNOWN_FEED        Result = 171

	// tef codes (-199 to -100)
	TefINTERNAL      Result = -192
	TefBAD_SIGNATURE Result = -186

	// tem codes (-299 to -200)
	TemMALFORMED   Result = -299
	TemZERO_AMOUNT Result = -298
)

// String returns the string representation of the result code
func (r Result) String() string {
	switch r {
	case TesSUCCESS:
		return "tesSUCCESS"
	case TecINSUFFICIENT_FEE:
		return "tecINSUFFICIENT_FEE"
	case TecINSOLVENT:
		return "tecINSOLVENT"
	case TecSLIPPAGE:
		return "tecSLIPPAGE"
	case TecINSUFFICIENT_SHARES:
		return "tecINSUFFICIENT_SHARES"
	case TecSTALE_PRICE:
		return "tecSTALE_PRICE"
	case TecUNKNOWN_FEED:
		return "tecUNKNOWN_FEED"
	case TefINTERNAL:
		return "tefINTERNAL"
	case TefBAD_SIGNATURE:
		return "tefBAD_SIGNATURE"
	case TemMALFORMED:
		return "temMALFORMED"
	case TemZERO_AMOUNT:
		return "temZERO_AMOUNT"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// Error implements the error interface.
func (r Result) Error() string {
	return r.String() + ": " + r.Message()
}

// IsSuccess returns true if the result indicates success
func (r Result) IsSuccess() bool {
	return r == TesSUCCESS
}

// IsTec returns true if this is a tec (claimed cost) code
func (r Result) IsTec() bool {
	return r >= 100 && r < 200
}

// IsTef returns true if this is a tef (failure) code
func (r Result) IsTef() bool {
	return r >= -199 && r <= -100
}

// IsTem returns true if this is a tem (malformed) code
func (r Result) IsTem() bool {
	return r >= -299 && r <= -200
}

// Message returns a human-readable message for the result
func (r Result) Message() string {
	switch r {
	case TesSUCCESS:
		return "The operation was applied."
	case TecINSUFFICIENT_FEE:
		return "Attached payment does not cover the price update fee."
	case TecINSOLVENT:
		return "Pool reserves would go negative."
	case TecSLIPPAGE:
		return "Output is below the requested minimum."
	case TecINSUFFICIENT_SHARES:
		return "Provider does not hold enough pool shares."
	case TecSTALE_PRICE:
		return "Price is older than the freshness window."
	case TecUNKNOWN_FEED:
		return "No price has been published for this feed."
	case TefINTERNAL:
		return "Internal error."
	case TefBAD_SIGNATURE:
		return "Price update signature is invalid or from an untrusted publisher."
	case TemMALFORMED:
		return "Malformed request or price update."
	case TemZERO_AMOUNT:
		return "Amount must be positive."
	default:
		return "Unknown result."
	}
}

// ResultOf maps err to its result code. Errors that carry no Result are
// reported as tefINTERNAL.
func ResultOf(err error) Result {
	if err == nil {
		return TesSUCCESS
	}
	var r Result
	if errors.As(err, &r) {
		return r
	}
	return TefINTERNAL
}

// ParseResult returns the Result for a result token such as "tecSTALE_PRICE".
func ParseResult(token string) (Result, bool) {
	for _, r := range allResults {
		if r.String() == token {
			return r, true
		}
	}
	return 0, false
}

var allResults = []Result{
	TesSUCCESS,
	TecINSUFFICIENT_FEE,
	TecINSOLVENT,
	TecSLIPPAGE,
	TecINSUFFICIENT_SHARES,
	TecSTALE_PRICE,
	TecUNKNOWN_FEED,
	TefINTERNAL,
	TefBAD_SIGNATURE,
	TemMALFORMED,
	TemZERO_AMOUNT,
}
