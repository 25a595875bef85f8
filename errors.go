package geoai

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of a run. Fatal kinds abort the task, local
// kinds are recovered where they occur.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	BadInput
	MissingGeodata
	EmptyInput
	DegenerateTransform
	CRSConversion
	InferenceUnavailable
	InvalidGeometry
	EmptyTile
)

var kindNames = map[ErrorKind]string{
	KindUnknown:          "UNKNOWN",
	BadInput:             "BAD_INPUT",
	MissingGeodata:       "MISSING_GEODATA",
	EmptyInput:           "EMPTY_INPUT",
	DegenerateTransform:  "DEGENERATE_TRANSFORM",
	CRSConversion:        "CRS_CONVERSION",
	InferenceUnavailable: "INFERENCE_UNAVAILABLE",
	InvalidGeometry:      "INVALID_GEOMETRY",
	EmptyTile:            "EMPTY_TILE",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Fatal reports whether errors of this kind must abort the run.
func (k ErrorKind) Fatal() bool {
	return k != InvalidGeometry && k != EmptyTile
}

// Error is the typed error surfaced by every package of the module.
type Error struct {
	Kind ErrorKind
	// Op names the operation that failed, eg. "geo.LoadContext"
	Op  string
	Err error
}

// sentinels for use with errors.Is
var (
	ErrBadInput             = &Error{Kind: BadInput}
	ErrMissingGeodata       = &Error{Kind: MissingGeodata}
	ErrEmptyInput           = &Error{Kind: EmptyInput}
	ErrDegenerateTransform  = &Error{Kind: DegenerateTransform}
	ErrCRSConversion        = &Error{Kind: CRSConversion}
	ErrInferenceUnavailable = &Error{Kind: InferenceUnavailable}
	ErrInvalidGeometry      = &Error{Kind: InvalidGeometry}
	ErrEmptyTile            = &Error{Kind: EmptyTile}
)

func (e *Error) Error() string {

	msg := e.Kind.String()

	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, which lets the bare sentinels be
// used as targets.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)

	if !ok {
		return false
	}

	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a typed error with a formatted cause.
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error

	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}
