package page

import (
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Well-known failure kinds produced by the page itself.
const (
	KindError      = "Error"
	KindPanic      = "Panic"
	KindNavigation = "NavigationError"
)

// Failure is a named failure raised by a command or reported through Fail.
// Fields become the payload of the error record for Name; Due lists failures
// caused by this one.
type Failure struct {
	Name   string
	Fields map[string]any
	Due    []*Failure
	Err    error
}

// NewFailure builds a Failure of the given kind.
func NewFailure(name string, fields map[string]any, due ...*Failure) *Failure {
	return &Failure{Name: name, Fields: fields, Due: due}
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(f.Name)
	if msg, ok := f.Fields["message"].(string); ok && msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	} else if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// coded matches structured errors that carry a stable code and context, such
// as models.RecoverableError.
type coded interface {
	ErrorCode() string
	Context() map[string]string
}

// AsFailure normalises any error into a Failure. A *Failure anywhere in the
// chain is returned as is; coded errors use their code as kind and their
// context as fields; anything else becomes kind "Error" with a message field.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.Name == "" {
			cp := *f
			cp.Name = KindError
			return &cp
		}
		return f
	}
	var c coded
	if errors.As(err, &c) {
		fields := make(map[string]any, len(c.Context())+1)
		for k, v := range c.Context() {
			fields[k] = v
		}
		fields["message"] = err.Error()
		return &Failure{Name: c.ErrorCode(), Fields: fields, Err: err}
	}
	return &Failure{Name: KindError, Fields: map[string]any{"message": err.Error()}, Err: err}
}

func panicFailure(r any) *Failure {
	if err, ok := r.(error); ok {
		f := AsFailure(err)
		if f.Name == KindError {
			f = &Failure{Name: KindPanic, Fields: maps.Clone(f.Fields), Err: err}
		}
		return f
	}
	return &Failure{Name: KindPanic, Fields: map[string]any{"message": fmt.Sprint(r)}}
}
