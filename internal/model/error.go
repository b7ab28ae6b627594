package model

import (
	"fmt"

	"github.com/mnehpets/onerpc/jsonrpc"
)

// EntityNotFoundError is returned when a row does not exist or is not
// visible to the caller.
type EntityNotFoundError struct {
	Entity string
	ID     int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// RPCCode implements jsonrpc.Coder.
func (e *EntityNotFoundError) RPCCode() int { return jsonrpc.CodeNotFound }

// ValidationError reports input a Bmc refuses to store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RPCCode implements jsonrpc.Coder.
func (e *ValidationError) RPCCode() int { return jsonrpc.CodeInvalidParams }
