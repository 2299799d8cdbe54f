package di_test

import "github.com/mccandless/odi/di"

type DB struct {
	DSN string
}

type Logger struct {
	Level string
}

type BasketService struct {
	DB     *DB
	Logger *Logger
}

type UserService struct {
	DB      *DB
	Replica *DB
	Logger  *Logger
	Basket  *BasketService
}

// primary and replica qualify *DB bindings.
type primary struct{}

func (primary) QualifierName() string { return "primary" }

type replica struct{}

func (replica) QualifierName() string { return "replica" }

// fieldOnly may only annotate fields.
type fieldOnly struct{}

func (fieldOnly) QualifierName() string { return "field-only" }

// undeclared is never passed to Declare.
type undeclared struct{}

func (undeclared) QualifierName() string { return "undeclared" }

func init() {
	di.MustDeclare[primary](di.TargetField, di.TargetParameter, di.TargetMethod)
	di.MustDeclare[replica](di.TargetField, di.TargetParameter, di.TargetMethod)
	di.MustDeclare[fieldOnly](di.TargetField)
}
