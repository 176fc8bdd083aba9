package constraints

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"constraintkit/internal/logic"
)

// Kind classifies a LogicError.
type Kind int

const (
	KindSyntax Kind = iota + 1
	KindExistence
	KindInstantiation
	KindUnknown
	KindInvalidRule
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindExistence:
		return "existence"
	case KindInstantiation:
		return "instantiation"
	case KindUnknown:
		return "unknown"
	case KindInvalidRule:
		return "invalid_rule"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// LogicError is a failure reported by the rule engine or by rule output
// that cannot be turned into results.
type LogicError struct {
	Kind    Kind
	Message string
	Line    *int
	Column  *int
	Found   *string

	// Term is the text of the exception term for Unknown errors.
	Term  string
	Cause error
}

func (e *LogicError) Error() string {
	return e.Message
}

func (e *LogicError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels: a target with no message matches any
// LogicError of the same kind.
func (e *LogicError) Is(target error) bool {
	t, ok := target.(*LogicError)
	if !ok || t.Message != "" {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSyntax        = &LogicError{Kind: KindSyntax}
	ErrExistence     = &LogicError{Kind: KindExistence}
	ErrInstantiation = &LogicError{Kind: KindInstantiation}
	ErrUnknown       = &LogicError{Kind: KindUnknown}
	ErrInvalidRule   = &LogicError{Kind: KindInvalidRule}
)

const instantiationMessage = "Instantiation error: an argument was unbound where a bound value was required"

func invalidRule(format string, args ...any) *LogicError {
	return &LogicError{Kind: KindInvalidRule, Message: "Invalid rule: " + fmt.Sprintf(format, args...)}
}

// =============================================================================
// TERM INTERPRETATION
// =============================================================================

// value is what interpreting one exception term produces.
type value interface {
	isValue()
}

type (
	errorValue struct{ err *LogicError }

	// positionValue is a partial error that is merged into an enclosing one.
	positionValue struct {
		line   *int
		column *int
		found  *string
	}

	seqValue    []value
	textValue   string
	numberValue float64
)

func (errorValue) isValue()    {}
func (positionValue) isValue() {}
func (seqValue) isValue()      {}
func (textValue) isValue()     {}
func (numberValue) isValue()   {}

type handler func(args []logic.Term) (value, error)

// handlers is keyed by functor/arity.
var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"throw/1":               unwrapHandler,
		"error/1":               unwrapHandler,
		"error/2":               errorHandler,
		"syntax_error/1":        syntaxHandler,
		"existence_error/2":     existenceHandler,
		"instantiation_error/0": instantiationHandler,
		"line/1":                lineHandler,
		"column/1":              columnHandler,
		"found/1":               foundHandler,
	}
}

// TranslateError interprets an exception term into a *LogicError. Shapes it
// cannot interpret become KindUnknown errors carrying the term text.
func TranslateError(term logic.Term) *LogicError {
	v, err := interpret(term)
	if err != nil {
		return unknown(term, err)
	}
	ev, ok := v.(errorValue)
	if !ok {
		return unknown(term, fmt.Errorf("term does not describe an error"))
	}
	out := ev.err
	if out.Line != nil && out.Column != nil {
		out.Message += fmt.Sprintf(" at line %d, column %d", *out.Line, *out.Column)
	}
	return out
}

func unknown(term logic.Term, cause error) *LogicError {
	text := term.String()
	return &LogicError{
		Kind:    KindUnknown,
		Message: fmt.Sprintf("Unknown error: %s (%v)", text, cause),
		Term:    text,
		Cause:   cause,
	}
}

func interpret(term logic.Term) (value, error) {
	switch t := term.(type) {
	case logic.Int:
		return numberValue(t), nil
	case logic.Float:
		return numberValue(t), nil
	case logic.Str:
		return textValue(t), nil
	case logic.Atom:
		if h, ok := handlers[string(t)+"/0"]; ok {
			return h(nil)
		}
		return textValue(t), nil
	case logic.Compound:
		switch key := t.Indicator(); key {
		case "./2":
			return interpretSeq(t)
		case "//2":
			name, err := interpretText(t.Args[0])
			if err != nil {
				return nil, err
			}
			arity, err := interpretText(t.Args[1])
			if err != nil {
				return nil, err
			}
			return textValue(name + "/" + arity), nil
		default:
			if h, ok := handlers[key]; ok {
				return h(t.Args)
			}
			if len(t.Args) == 0 {
				return textValue(t.Functor), nil
			}
			return nil, fmt.Errorf("unsupported term shape %s", key)
		}
	default:
		if logic.IsNil(term) {
			return seqValue{}, nil
		}
		return nil, fmt.Errorf("unsupported term %s", term)
	}
}

func interpretSeq(cell logic.Compound) (value, error) {
	head, err := interpret(cell.Args[0])
	if err != nil {
		return nil, err
	}
	tail, err := interpret(cell.Args[1])
	if err != nil {
		return nil, err
	}
	rest, ok := tail.(seqValue)
	if !ok {
		return nil, fmt.Errorf("sequence tail is not a sequence")
	}
	return append(seqValue{head}, rest...), nil
}

// interpretText renders an interpreted atomic value as text.
func interpretText(term logic.Term) (string, error) {
	v, err := interpret(term)
	if err != nil {
		return "", err
	}
	return describe(v)
}

func describe(v value) (string, error) {
	switch v := v.(type) {
	case textValue:
		return string(v), nil
	case numberValue:
		return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
	case seqValue:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, err := describe(item)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case errorValue:
		return v.err.Message, nil
	default:
		return "", fmt.Errorf("value %T has no textual form", v)
	}
}

func interpretError(term logic.Term) (*LogicError, error) {
	v, err := interpret(term)
	if err != nil {
		return nil, err
	}
	ev, ok := v.(errorValue)
	if !ok {
		return nil, fmt.Errorf("expected an error description, got %T", v)
	}
	return ev.err, nil
}

func interpretInt(term logic.Term) (int, error) {
	v, err := interpret(term)
	if err != nil {
		return 0, err
	}
	n, ok := v.(numberValue)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	return int(n), nil
}

// merge copies position information found in v into target.
func merge(target *LogicError, v value) {
	switch v := v.(type) {
	case positionValue:
		if v.line != nil {
			target.Line = v.line
		}
		if v.column != nil {
			target.Column = v.column
		}
		if v.found != nil {
			target.Found = v.found
		}
	case seqValue:
		for _, item := range v {
			merge(target, item)
		}
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func unwrapHandler(args []logic.Term) (value, error) {
	return interpret(args[0])
}

func errorHandler(args []logic.Term) (value, error) {
	inner, err := interpretError(args[0])
	if err != nil {
		return nil, err
	}

	if c, ok := args[0].(logic.Compound); ok && c.Indicator() == "syntax_error/1" {
		pos, err := interpret(args[1])
		if err != nil {
			return nil, err
		}
		merge(inner, pos)
		return errorValue{inner}, nil
	}

	context, err := interpretText(args[1])
	if err != nil {
		return nil, err
	}
	inner.Message += " (in " + context + ")"
	return errorValue{inner}, nil
}

func syntaxHandler(args []logic.Term) (value, error) {
	msg, err := interpretText(args[0])
	if err != nil {
		return nil, err
	}
	return errorValue{&LogicError{Kind: KindSyntax, Message: "Syntax error: " + msg}}, nil
}

func existenceHandler(args []logic.Term) (value, error) {
	kind, err := interpretText(args[0])
	if err != nil {
		return nil, err
	}
	name, err := interpretText(args[1])
	if err != nil {
		return nil, err
	}
	return errorValue{&LogicError{
		Kind:    KindExistence,
		Message: fmt.Sprintf("Existence error: %s %s not found", kind, name),
	}}, nil
}

func instantiationHandler([]logic.Term) (value, error) {
	return errorValue{&LogicError{Kind: KindInstantiation, Message: instantiationMessage}}, nil
}

func lineHandler(args []logic.Term) (value, error) {
	n, err := interpretInt(args[0])
	if err != nil {
		return nil, err
	}
	return positionValue{line: &n}, nil
}

func columnHandler(args []logic.Term) (value, error) {
	n, err := interpretInt(args[0])
	if err != nil {
		return nil, err
	}
	return positionValue{column: &n}, nil
}

func foundHandler(args []logic.Term) (value, error) {
	s, err := interpretText(args[0])
	if err != nil {
		return nil, err
	}
	return positionValue{found: &s}, nil
}

// asLogicError converts a logic-layer failure into a *LogicError when it
// carries an exception term.
func asLogicError(err error) error {
	var exc *logic.Exception
	if errors.As(err, &exc) {
		return TranslateError(exc.Term)
	}
	return err
}
