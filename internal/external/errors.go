package external

import "fmt"

// ConnectionError reports that an external database could not be reached or rejected the
// credentials. Nothing is cached when it is returned.
type ConnectionError struct {
	Key string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to external database %s: %v", e.Key, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError reports a statement rejected by the external database. The pool stays usable.
type QueryError struct {
	SQL string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }
