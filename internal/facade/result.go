package facade

import (
	"time"

	"github.com/tadoEng/EtabExtension/internal/errs"
)

// Result is the uniform envelope returned to the presentation layer. On
// failure Data is absent and Error carries the message; never both.
type Result[T any] struct {
	Success   bool      `json:"success"`
	Data      *T        `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind errs.Kind `json:"errorKind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewResult wraps the outcome of an operation.
func NewResult[T any](data *T, err error, now time.Time) Result[T] {
	r := Result[T]{Timestamp: now.UTC()}
	if err != nil {
		r.Error = err.Error()
		r.ErrorKind = errs.KindOf(err)
		return r
	}
	r.Success = true
	r.Data = data
	return r
}
