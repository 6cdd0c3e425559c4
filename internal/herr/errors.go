// Package herr implements HORUS's typed error taxonomy: a small set of abstract
// kinds (not concrete type names) that every component returns instead of ad-hoc
// error strings, each carrying structured context for diagnostics.
package herr

import "fmt"

// Kind is one of the abstract error categories from the error handling design.
type Kind int

const (
	// Config indicates invalid user input: bad target name, missing profile.
	Config Kind = iota
	// NotAvailable indicates a required facility is absent at runtime (GPU build
	// flag off, platform facility missing).
	NotAvailable
	// Io indicates a filesystem or OS failure touching a region, registry, or
	// recording file.
	Io
	// Validation indicates a magic/size mismatch on attach, a generation mismatch
	// on tensor release, or a version mismatch on a profile.
	Validation
	// Exhausted indicates no free tensor slot.
	Exhausted
	// Compile indicates the JIT compiler refused an expression.
	Compile
	// Divergence indicates replay observed a hash mismatch.
	Divergence
	// Fatal indicates an invariant was violated (programmer error).
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "Config"
	case NotAvailable:
		return "NotAvailable"
	case Io:
		return "Io"
	case Validation:
		return "Validation"
	case Exhausted:
		return "Exhausted"
	case Compile:
		return "Compile"
	case Divergence:
		return "Divergence"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every HORUS component.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Context map[string]any
	Cause   error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Op != "" {
		s = fmt.Sprintf("%s: %s", e.Op, s)
	}
	if len(e.Context) > 0 {
		s += " ("
		first := true
		for k, v := range e.Context {
			if !first {
				s += ", "
			}
			s += fmt.Sprintf("%s=%v", k, v)
			first = false
		}
		s += ")"
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// WithContext returns a copy of e with the given key/value recorded, for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	cp := *e
	cp.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

func new_(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// New constructs a bare error of the given kind.
func New(kind Kind, op, msg string) *Error { return new_(kind, op, msg) }

// Wrap constructs an error of the given kind with an underlying cause.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	e := new_(kind, op, msg)
	e.Cause = cause
	return e
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	he, ok := err.(*Error)
	return ok && he.Kind == kind
}

// Typed constructors mirroring the taxonomy's common call sites.

func ConfigErr(op, msg string) *Error {
	return New(Config, op, msg)
}

func NotAvailableErr(op, facility string) *Error {
	return New(NotAvailable, op, fmt.Sprintf("%s is not available", facility)).WithContext("facility", facility)
}

func IoErr(op string, cause error) *Error {
	return Wrap(Io, op, "i/o failure", cause)
}

func ValidationErr(op, msg string) *Error {
	return New(Validation, op, msg)
}

func MismatchErr(op string, field string, want, got any) *Error {
	return New(Validation, op, fmt.Sprintf("%s mismatch", field)).
		WithContext("want", want).WithContext("got", got)
}

func ExhaustedErr(op string, capacity int) *Error {
	return New(Exhausted, op, "pool exhausted").WithContext("capacity", capacity)
}

func CompileErr(op, msg string) *Error {
	return New(Compile, op, msg)
}

func DivergenceErr(op string, tick uint64) *Error {
	return New(Divergence, op, "execution diverged").WithContext("tick", tick)
}

func FatalErr(op, msg string) *Error {
	return New(Fatal, op, msg)
}
