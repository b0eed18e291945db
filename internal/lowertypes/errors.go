package lowertypes

import (
	"errors"
	"fmt"
)

// InvariantError reports IR that the lowering cannot handle, such as an
// aggregate value consumed by something other than a field or element
// access. The circuit is left partially rewritten and must be discarded.
type InvariantError struct {
	Module string
	Msg    string
}

func (e *InvariantError) Error() string {
	if e.Module == "" {
		return "lower-types: " + e.Msg
	}
	return fmt.Sprintf("lower-types: module %s: %s", e.Module, e.Msg)
}

// IsInvariantError reports whether err wraps an *InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

func invariantf(module, format string, args ...any) {
	panic(&InvariantError{Module: module, Msg: fmt.Sprintf(format, args...)})
}

// recoverInvariant turns a panic raised while lowering module into an error
// stored in *errp.
func recoverInvariant(module string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InvariantError); ok {
		*errp = ie
		return
	}
	*errp = &InvariantError{Module: module, Msg: fmt.Sprint(r)}
}
