package provisioning

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure is a classified operation failure. Code is the HTTP-like status
// the orchestrator contract defines for the condition; Message is returned
// to the caller verbatim.
type Failure struct {
	Code    int
	Message string
}

func (f *Failure) Error() string {
	return f.Message
}

// Failf builds a classified failure.
func Failf(code int, format string, args ...any) *Failure {
	return &Failure{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsFailure classifies err at the operation boundary: classified failures
// pass through unchanged, anything else becomes a 500 carrying the
// underlying message.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Code: http.StatusInternalServerError, Message: err.Error()}
}
