package arena

import "errors"

var errInvalidSize = errors.New("arena: invalid size")

type mmapError struct {
	op  string
	err error
}

func (e *mmapError) Error() string {
	return "arena: " + e.op + ": " + e.err.Error()
}

func (e *mmapError) Unwrap() error {
	return e.err
}
