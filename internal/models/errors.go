package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error leaving a pipeline stage wraps exactly one of these.
var (
	ErrIngestion     = errors.New("ingestion error")
	ErrEmbedding     = errors.New("embedding error")
	ErrRetrieval     = errors.New("retrieval error")
	ErrGeneration    = errors.New("generation error")
	ErrConfiguration = errors.New("configuration error")
)

var kinds = []error{ErrIngestion, ErrEmbedding, ErrRetrieval, ErrGeneration, ErrConfiguration}

// Error carries the failing operation and, for ingestion, the offending source.
type Error struct {
	Kind   error
	Op     string
	Source string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " [%s]", e.Source)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err under kind. Errors that already carry a kind are returned unchanged.
func Wrap(kind error, op string, err error) error {
	return WrapSource(kind, op, "", err)
}

func WrapSource(kind error, op, source string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Op: op, Source: source, Err: err}
}

// Errorf builds a classified error from a message.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindName returns a short label for the kind of err, or "unknown".
func KindName(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return strings.TrimSuffix(k.Error(), " error")
		}
	}
	return "unknown"
}
