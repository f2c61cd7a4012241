package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which setup step produced the error
type Phase string

const (
	PhaseAttach   Phase = "attach"   // segment create/attach
	PhaseAlloc    Phase = "alloc"    // arena allocation
	PhaseRegister Phase = "register" // component registration
	PhaseExport   Phase = "export"   // instance construction, pin/funct export
	PhaseLink     Phase = "link"     // pin/signal wiring
	PhaseThread   Phase = "thread"   // thread and funct placement
	PhaseDelete   Phase = "delete"   // instance/component teardown
	PhaseRing     Phase = "ring"     // named ring management
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseRuntime  Phase = "runtime"  // non-RT runtime operations
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicate       Kind = "duplicate"
	KindNotFound        Kind = "not_found"
	KindNoMemory        Kind = "no_memory"
	KindTypeMismatch    Kind = "type_mismatch"
	KindInvalidInput    Kind = "invalid_input"
	KindBusy            Kind = "busy"
	KindNotReentrant    Kind = "not_reentrant"
	KindNeedsFP         Kind = "needs_fp"
	KindState           Kind = "state"
	KindVersionMismatch Kind = "version_mismatch"
	KindInstantiation   Kind = "instantiation"
	KindClosed          Kind = "closed"
	KindIO              Kind = "io"
	KindLocked          Kind = "locked"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Want   string
	Got    string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Want != "" || e.Got != "" {
		b.WriteString(": ")
		switch {
		case e.Want != "" && e.Got != "":
			b.WriteString("want ")
			b.WriteString(e.Want)
			b.WriteString(", got ")
			b.WriteString(e.Got)
		case e.Want != "":
			b.WriteString("want ")
			b.WriteString(e.Want)
		default:
			b.WriteString("got ")
			b.WriteString(e.Got)
		}
	}

	if e.Detail != "" {
		if e.Want != "" || e.Got != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. An empty Phase on the
// target matches any phase.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// OfKind returns a match target for errors.Is that ignores the phase.
func OfKind(kind Kind) *Error {
	return &Error{Kind: kind}
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the object path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Want sets the expected type or state
func (b *Builder) Want(s string) *Builder {
	b.err.Want = s
	return b
}

// Got sets the actual type or state
func (b *Builder) Got(s string) *Builder {
	b.err.Got = s
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Duplicate creates a name collision error
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s %q already exists", what, name),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NoMemory creates an arena exhaustion error
func NoMemory(phase Phase, size, avail uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNoMemory,
		Detail: fmt.Sprintf("need %d bytes, %d available", size, avail),
		Value:  size,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, want, got string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTypeMismatch,
		Path:  path,
		Want:  want,
		Got:   got,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Busy creates an error for an object that is in use
func Busy(phase Phase, what, name, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBusy,
		Path:   []string{name},
		Detail: fmt.Sprintf("%s %q %s", what, name, detail),
	}
}

// State creates an error for an operation attempted in the wrong lifecycle state
func State(phase Phase, name, want, got string) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindState,
		Path:  []string{name},
		Want:  want,
		Got:   got,
	}
}

// VersionMismatch creates an attach error for an incompatible segment layout
func VersionMismatch(want, got uint32) *Error {
	return &Error{
		Phase: PhaseAttach,
		Kind:  KindVersionMismatch,
		Want:  fmt.Sprintf("v%d", want),
		Got:   fmt.Sprintf("v%d", got),
	}
}

// Instantiation creates an error for a failed component constructor
func Instantiation(comp, inst string, cause error) *Error {
	return &Error{
		Phase:  PhaseExport,
		Kind:   KindInstantiation,
		Path:   []string{inst},
		Detail: fmt.Sprintf("instantiate %s as %q", comp, inst),
		Cause:  cause,
	}
}

// Locked creates an error for a setup operation refused by the lock level
func Locked(phase Phase, op, level string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindLocked,
		Want:   "unlocked",
		Got:    level,
		Detail: fmt.Sprintf("%s refused while %s is locked", op, level),
	}
}

// Closed creates an error for use of a closed handle
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
