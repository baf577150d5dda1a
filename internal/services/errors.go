package services

import "errors"

var (
	ErrCredentialsNotFound = errors.New("no external database credentials configured for this agent")
	ErrUnsupportedDialect  = errors.New("unsupported database type")
	ErrTableNotFound       = errors.New("table not found")
	ErrColumnNotFound      = errors.New("column not found")
	ErrInvalidQuery        = errors.New("invalid query")
)
