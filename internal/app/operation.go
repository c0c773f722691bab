package app

import (
	"errors"

	"symver/internal/versioner"
)

// Operation statuses stored in the catalog's operation log.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusNoOp    = "no-op"
)

// Operation tracks a CLI operation that may mutate the catalog.
// Operations are created in memory with ID=0. Only mutating commands
// persist them, which gives them an auto-increment ID from the database.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
	VersionID  string // set by snapshot and push
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail records the outcome of a failed operation. A snapshot with nothing
// to do is a no-op, not an error.
func (op *Operation) Fail(err error) {
	if errors.Is(err, versioner.ErrNoActionTaken) {
		op.Status = StatusNoOp
		return
	}
	op.Status = StatusError
}
