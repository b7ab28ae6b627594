package jsonrpc

import (
	"errors"

	"github.com/mnehpets/onerpc/rpc"
)

// Standard JSON-RPC 2.0 codes, plus the server-defined codes used by this
// module's handlers.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeUnauthorized = -32001
	CodeNotFound     = -32004
)

// Error is the error object of a JSON-RPC response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// RPCCode implements Coder.
func (e *Error) RPCCode() int {
	return e.Code
}

// NewError returns an *Error with no data.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Coder is implemented by errors that choose their own JSON-RPC code. The
// message sent to the client is the error's Error().
type Coder interface {
	RPCCode() int
}

// ErrorFrom maps an error returned by a router call to a JSON-RPC error
// object.
func ErrorFrom(err error) *Error {
	if err == nil {
		return nil
	}
	var je *Error
	if errors.As(err, &je) {
		return je
	}

	var re *rpc.Error
	if errors.As(err, &re) {
		switch re.Kind {
		case rpc.KindMethodUnknown:
			return &Error{Code: CodeMethodNotFound, Message: "method not found", Data: re.Method}
		case rpc.KindMissingParams:
			return &Error{Code: CodeInvalidParams, Message: "missing params"}
		case rpc.KindParamsParsing:
			e := &Error{Code: CodeInvalidParams, Message: "invalid params"}
			if re.Cause != nil {
				e.Data = re.Cause.Error()
			}
			return e
		case rpc.KindResourceExtraction:
			if ce, ok := coderIn(re.Cause); ok {
				return ce
			}
			return NewError(CodeInternalError, "internal error")
		case rpc.KindSerialization:
			return NewError(CodeInternalError, "result encoding failed")
		}
	}

	if ce, ok := coderIn(err); ok {
		return ce
	}
	return NewError(CodeInternalError, err.Error())
}

func coderIn(err error) (*Error, bool) {
	for err != nil {
		if c, ok := err.(Coder); ok {
			return NewError(c.RPCCode(), err.Error()), true
		}
		err = errors.Unwrap(err)
	}
	return nil, false
}
