package service

import "errors"

// ErrBusy is returned when every prediction slot is taken.
var ErrBusy = errors.New("too many concurrent predictions")

// InputError marks a problem with the client's upload rather than with the server.
type InputError struct {
	Msg string
	Err error
}

func NewInputError(msg string, err error) *InputError {
	return &InputError{Msg: msg, Err: err}
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err is, or wraps, an InputError.
func IsInputError(err error) bool {
	var inputErr *InputError
	return errors.As(err, &inputErr)
}
