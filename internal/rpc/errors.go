package rpc

import (
	"errors"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/tx"
)

// RpcError is the error carried in the result object of a failed call.
type RpcError struct {
	Code        int    `json:"error_code"`
	ErrorString string `json:"error"`
	Type        string `json:"type"`
	Message     string `json:"error_message,omitempty"`
}

func (e RpcError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorString
}

// Error codes, following rippled where one exists
const (
	// Universal errors
	RpcUNKNOWN          = -1
	RpcMETHOD_NOT_FOUND = -32601
	RpcINVALID_PARAMS   = -32602
	RpcINTERNAL         = -32603
	RpcPARSE_ERROR      = -32700

	// General purpose errors
	RpcMISSING_COMMAND = 2
	RpcNOT_ENABLED     = 31

	// Oracle errors
	RpcORACLE_MALFORMED = 37
)

func NewRpcError(code int, error, errorType, message string) *RpcError {
	return &RpcError{
		Code:        code,
		ErrorString: error,
		Type:        errorType,
		Message:     message,
	}
}

func RpcErrorInvalidParams(message string) *RpcError {
	return NewRpcError(RpcINVALID_PARAMS, "invalidParams", "invalidParams", message)
}

func RpcErrorMethodNotFound(method string) *RpcError {
	return NewRpcError(RpcMETHOD_NOT_FOUND, "unknownCmd", "unknownCmd", "Unknown method: "+method)
}

func RpcErrorInternal(message string) *RpcError {
	return NewRpcError(RpcINTERNAL, "internal", "internal", message)
}

func RpcErrorNotEnabled(message string) *RpcError {
	return NewRpcError(RpcNOT_ENABLED, "notEnabled", "notEnabled", message)
}

func RpcErrorOracleMalformed(message string) *RpcError {
	return NewRpcError(RpcORACLE_MALFORMED, "oracleMalformed", "oracleMalformed", message)
}

// RpcErrorFromResult reports a rejected pool operation. The error string is
// the result token and the code its numeric value.
func RpcErrorFromResult(err error) *RpcError {
	var r tx.Result
	if !errors.As(err, &r) {
		return RpcErrorInternal(err.Error())
	}
	return NewRpcError(int(r), r.String(), "transaction", r.Message())
}
