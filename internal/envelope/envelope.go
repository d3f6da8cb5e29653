// Package envelope defines the immutable request and result values that flow
// between tool handlers, the dispatcher, and the presentation surface.
package envelope

import (
	"fmt"
)

// Kind identifies one interactive operation. The set is closed.
type Kind string

const (
	KindInput        Kind = "input"
	KindChoice       Kind = "choice"
	KindConfirmation Kind = "confirmation"
	KindInfo         Kind = "info"
	KindMultiline    Kind = "multiline"
)

// Kinds lists every valid kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindInput, KindChoice, KindConfirmation, KindInfo, KindMultiline}
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindInput, KindChoice, KindConfirmation, KindInfo, KindMultiline:
		return true
	}
	return false
}

// Input types accepted by the "input" kind.
const (
	InputText    = "text"
	InputInteger = "integer"
	InputFloat   = "float"
)

// Request describes one interactive operation: a kind plus named parameters.
// Construct with New; the params map is copied so a Request never changes
// after submission.
type Request struct {
	Kind   Kind
	Params map[string]any
}

// ValidationError reports a malformed request. It is returned before
// submission and never reaches the dispatcher.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "invalid request: " + e.Msg
}

// New builds a Request, validating that kind is known and that the
// parameters required for that kind are present.
func New(kind Kind, params map[string]any) (Request, error) {
	if !kind.Valid() {
		return Request{}, &ValidationError{Msg: fmt.Sprintf("unknown kind %q", kind)}
	}

	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	req := Request{Kind: kind, Params: copied}

	switch kind {
	case KindInput, KindMultiline:
		if _, ok := stringParam(copied, "prompt"); !ok {
			return Request{}, &ValidationError{Msg: string(kind) + " requires a prompt parameter"}
		}
	case KindChoice:
		if _, ok := stringParam(copied, "prompt"); !ok {
			return Request{}, &ValidationError{Msg: "choice requires a prompt parameter"}
		}
		choices, ok := copied["choices"].([]string)
		if !ok {
			return Request{}, &ValidationError{Msg: "choice requires a choices parameter (list of strings)"}
		}
		if choices == nil {
			copied["choices"] = []string{}
		}
	case KindConfirmation, KindInfo:
		if _, ok := stringParam(copied, "message"); !ok {
			return Request{}, &ValidationError{Msg: string(kind) + " requires a message parameter"}
		}
	}

	if kind == KindInput {
		switch it := req.InputType(); it {
		case InputText, InputInteger, InputFloat:
		default:
			return Request{}, &ValidationError{Msg: fmt.Sprintf("unknown input_type %q", it)}
		}
	}

	return req, nil
}

func stringParam(params map[string]any, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok
}

// Title returns the dialog title, or a default derived from the kind.
func (r Request) Title() string {
	if s, ok := stringParam(r.Params, "title"); ok && s != "" {
		return s
	}
	switch r.Kind {
	case KindConfirmation:
		return "Confirm"
	case KindInfo:
		return "Information"
	default:
		return "Input Required"
	}
}

// Prompt returns the prompt text for input, choice, and multiline requests.
func (r Request) Prompt() string {
	s, _ := stringParam(r.Params, "prompt")
	return s
}

// Message returns the message text for confirmation and info requests.
func (r Request) Message() string {
	s, _ := stringParam(r.Params, "message")
	return s
}

// DefaultValue returns the pre-filled value for input and multiline requests.
func (r Request) DefaultValue() string {
	s, _ := stringParam(r.Params, "default_value")
	return s
}

// InputType returns the expected input shape: text, integer, or float.
func (r Request) InputType() string {
	if s, ok := stringParam(r.Params, "input_type"); ok && s != "" {
		return s
	}
	return InputText
}

// Choices returns the options for a choice request.
func (r Request) Choices() []string {
	choices, _ := r.Params["choices"].([]string)
	return choices
}

// AllowMultiple reports whether a choice request accepts multiple selections.
func (r Request) AllowMultiple() bool {
	b, _ := r.Params["allow_multiple"].(bool)
	return b
}

// FailureKind classifies a failed operation.
type FailureKind string

const (
	FailPresentation FailureKind = "presentation"
	FailTransport    FailureKind = "transport"
	FailStartup      FailureKind = "startup"
	FailTimeout      FailureKind = "timeout"
)

// Failure is a structured error carried inside a Result.
type Failure struct {
	Kind    FailureKind
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %s", f.Kind, f.Message)
}

// Result is the outcome of one interactive operation. Exactly one of the
// three outcomes is populated: a value, a user cancellation, or a failure.
// Use the constructors; a zero Result is invalid.
type Result struct {
	// Value holds a string, int64, float64, bool, or []string when HasValue
	// is set. HasValue distinguishes an empty string from no value at all.
	Value    any
	HasValue bool

	// Cancelled is set when the human dismissed the prompt. Not a failure.
	Cancelled bool

	// Failure is set when the operation failed before producing a value.
	Failure *Failure
}

// ValueResult wraps a value produced by the human.
func ValueResult(v any) Result {
	return Result{Value: v, HasValue: true}
}

// CancelledResult marks a prompt dismissed by the human.
func CancelledResult() Result {
	return Result{Cancelled: true}
}

// FailResult wraps a structured failure.
func FailResult(kind FailureKind, format string, args ...any) Result {
	return Result{Failure: &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}}
}

// Validate checks the one-of invariant: exactly one outcome populated.
func (r Result) Validate() error {
	n := 0
	if r.HasValue {
		n++
	}
	if r.Cancelled {
		n++
	}
	if r.Failure != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("result must have exactly one of value, cancelled, or failure; has %d", n)
	}
	if r.HasValue {
		switch r.Value.(type) {
		case string, int64, float64, bool, []string:
		default:
			return fmt.Errorf("unsupported result value type %T", r.Value)
		}
	}
	return nil
}

// Equal reports whether two results are identical, including list contents.
func (r Result) Equal(other Result) bool {
	if r.HasValue != other.HasValue || r.Cancelled != other.Cancelled {
		return false
	}
	if (r.Failure == nil) != (other.Failure == nil) {
		return false
	}
	if r.Failure != nil && *r.Failure != *other.Failure {
		return false
	}
	if !r.HasValue {
		return true
	}
	a, aok := r.Value.([]string)
	b, bok := other.Value.([]string)
	if aok != bok {
		return false
	}
	if aok {
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
	return r.Value == other.Value
}
