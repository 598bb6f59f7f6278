package calltree

import (
	"errors"
	"fmt"

	"github.com/getsentry/calltree/internal/errorutil"
)

var (
	// ErrInvalidArgument is returned for illegal construction parameters.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIllegalState is returned when a call is closed while none is open,
	// or when a Call token is closed out of order.
	ErrIllegalState = errors.New("illegal state")

	// ErrFrozenTree is returned when a decoded tree is asked to record calls.
	ErrFrozenTree = errors.New("tree is frozen")

	// ErrFileParse matches every *ParseError.
	ErrFileParse = errors.New("tree file parse error")
)

// ParseError describes why a tree text could not be decoded. Line is
// 1-based, 0 when the failure is not tied to a line.
type ParseError struct {
	Line     int
	Msg      string
	Expected string
	Actual   string
	Err      error
}

func (e *ParseError) Error() string {
	s := fmt.Sprintf("calltree: %s", e.Msg)
	if e.Line > 0 {
		s = fmt.Sprintf("calltree: line %d: %s", e.Line, e.Msg)
	}
	if e.Expected != "" || e.Actual != "" {
		s += fmt.Sprintf(": expected [%s], but was found [%s]", e.Expected, e.Actual)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ParseError) Unwrap() []error {
	errs := []error{ErrFileParse, errorutil.ErrDataIntegrity}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
