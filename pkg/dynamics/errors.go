package dynamics

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrAuthentication    = errors.New("authentication error")
	ErrTransport         = errors.New("transport error")
	ErrTimeout           = errors.New("timeout")
	ErrMalformedResponse = errors.New("malformed response")
)

// QueryError is returned by every step of a metadata search. Kind is one of the Err* sentinels
// and is matched by errors.Is; Err is the underlying cause.
type QueryError struct {
	Kind       error
	Resource   Resource
	Term       string
	StatusCode int
	Err        error
}

func (e *QueryError) Error() string {
	msg := e.Kind.Error()
	if e.Term != "" {
		msg = fmt.Sprintf("something went wrong while searching for the %s %q: %v", e.Resource.noun(), e.Term, e.Kind)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *QueryError) Is(target error) bool {
	return target == e.Kind
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// withTerm attaches the resource and search term to err. Errors that are already
// QueryErrors keep their kind.
func withTerm(err error, resource Resource, term string) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		cp := *qe
		cp.Resource = resource
		cp.Term = term
		return &cp
	}
	return &QueryError{Kind: ErrTransport, Resource: resource, Term: term, Err: err}
}
