// Package reconerrors defines the error taxonomy shared by the matrix
// store, solver, renderer and job dispatcher.
package reconerrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for HTTP status mapping and client messaging.
type Kind string

const (
	// NotFound: a client-supplied input path does not exist.
	NotFound Kind = "not_found"
	// Malformed: a CSV source could not be parsed (non-numeric token,
	// ragged row count) or a cached binary is corrupt.
	Malformed Kind = "malformed"
	// DimensionMismatch: the request declares shapes inconsistent with
	// the loaded matrices (largura*altura != cols(H), s*n != len(g)).
	DimensionMismatch Kind = "dimension_mismatch"
	// Overloaded: no worker slot was available within the admission
	// waiting budget.
	Overloaded Kind = "overloaded"
	// SolverDegenerate: the solver hit a near-zero denominator. This is
	// recovered locally by the solver and is never surfaced to a client;
	// it is exported so the solver and its tests can name it.
	SolverDegenerate Kind = "solver_degenerate"
	// RenderFailure: an I/O error occurred writing the output raster.
	RenderFailure Kind = "render_failure"
	// Internal: anything else.
	Internal Kind = "internal"
)

// Error is the single error type produced by this service's components.
// It carries a Kind for HTTP mapping and an Underlying error for logging
// and errors.Is/As. The client sees internal/reconerrors.Error.Message,
// which exposes Underlying only for DimensionMismatch, whose text is the
// shape check the dispatcher builds.
type Error struct {
	Kind       Kind
	Op         string // operation that failed, e.g. "matrixstore.Load"
	Path       string // file path involved, if any
	Underlying error
	Timestamp  time.Time
}

// New creates an Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Underlying: err, Timestamp: time.Now()}
}

// WithPath attaches the file path involved, if any.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Path, e.Underlying)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Underlying)
}

// Unwrap supports errors.Is/As against the underlying cause.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Message is the short, client-safe string returned in the JSON error
// envelope's "mensagem" field. It never includes a stack trace or the
// underlying error's raw text beyond what is safe to echo (the path, for
// NotFound/Malformed, is client-supplied input, not server internals).
func (e *Error) Message() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("arquivo não encontrado: %s", e.Path)
	case Malformed:
		return fmt.Sprintf("arquivo malformado: %s", e.Path)
	case DimensionMismatch:
		return e.Underlying.Error()
	case Overloaded:
		return "servidor sobrecarregado, tente novamente"
	case RenderFailure:
		return "falha ao gravar imagem de saída"
	default:
		return "erro interno"
	}
}

// StatusCode maps a Kind to the HTTP status spec.md §7 assigns it.
// NotFound on a client-supplied path and Malformed/DimensionMismatch are
// 400 (bad input); Overloaded is 503; everything else is 500.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case NotFound, Malformed, DimensionMismatch:
		return http.StatusBadRequest
	case Overloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is reports whether err (or anything it wraps) has the given Kind.
func Is(err error, kind Kind) bool {
	var re *Error
	if !errors.As(err, &re) {
		return false
	}
	return re.Kind == kind
}
