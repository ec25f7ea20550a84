// Package relayerr defines the structured errors and warnings the relay
// surfaces to Threat Response, plus a collector that accumulates them across
// one enrichment call. Fatal entries abort the observable they belong to;
// warnings let enrichment continue with partial results.
package relayerr

import (
	"fmt"
	"net/http"
	"strings"
)

// Entry types.
const (
	TypeFatal   = "fatal"
	TypeWarning = "warning"
)

// Stable error codes.
const (
	CodeUnknown         = "unknown"
	CodeInvalidArgument = "invalid argument"
	CodeConnectionError = "connection error"
	CodeHealthCheck     = "health check failed"
	CodeJobDidNotFinish = "search job did not finish"
	CodeTooManyMessages = "too-many-messages-warning"
)

// Error is a TR-formatted error or warning entry.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Fatal reports whether the entry aborts the observable's enrichment.
func (e *Error) Fatal() bool {
	return e.Type == TypeFatal
}

// New builds a fatal entry with the given code and message.
func New(code, message string) *Error {
	if code == "" {
		code = CodeUnknown
	}
	if message == "" {
		message = "Something went wrong."
	}
	return &Error{Type: TypeFatal, Code: code, Message: message}
}

// NewWarning builds a non-fatal entry with the given code and message.
func NewWarning(code, message string) *Error {
	e := New(code, message)
	e.Type = TypeWarning
	return e
}

// NewInvalidArgument reports a malformed request payload.
func NewInvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message)
}

// NewSSLError reports a failed TLS certificate verification against the
// Sumo Logic endpoint.
func NewSSLError(reason string) *Error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "certificate verify failed"
	}
	// Capitalize the first rune to match the surfaced wording.
	reason = strings.ToUpper(reason[:1]) + reason[1:]
	return New(CodeUnknown, fmt.Sprintf("Unable to verify SSL certificate: %s", reason))
}

// NewConnectionError reports an unreachable or malformed Sumo Logic endpoint.
func NewConnectionError(endpoint string) *Error {
	return New(CodeConnectionError,
		fmt.Sprintf("Unable to connect to Sumo Logic, validate the configured API endpoint: %s", endpoint))
}

// NewResponseError reports a non-2xx response from the Sumo Logic API. 401/403
// and 404 get dedicated wording, everything else surfaces the body verbatim.
func NewResponseError(statusCode int, body, url string) *Error {
	var detail string
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		detail = "wrong access_id or access_key"
	case http.StatusNotFound:
		detail = fmt.Sprintf("URL %s is not found", url)
	default:
		detail = body
	}
	return New(http.StatusText(statusCode), fmt.Sprintf("Unexpected response from SumoLogic: %s", detail))
}

// NewSearchJobWrongState reports a job that was cancelled or force paused by
// the backend before results could be retrieved.
func NewSearchJobWrongState(observableValue, jobState string) *Error {
	state := strings.ToLower(jobState)
	return New(state,
		fmt.Sprintf("The job was %s before results could be retrieved for %s", state, observableValue))
}

// NewSearchJobNotStarted reports a job the backend never accepted within the
// allowed time.
func NewSearchJobNotStarted(observableValue, jobState string) *Error {
	state := strings.ToLower(jobState)
	return New(state,
		fmt.Sprintf("The job was %s within the required time for %s", state, observableValue))
}

// NewSearchJobDidNotFinish reports a job that was still gathering results at
// the deadline; partial results are still returned.
func NewSearchJobDidNotFinish(observableValue, searchType string) *Error {
	return NewWarning(CodeJobDidNotFinish,
		fmt.Sprintf("The %s search job did not finish in the time required for %s", searchType, observableValue))
}

// NewMoreMessagesAvailable reports that the backend holds more matches than
// the relay is allowed to return.
func NewMoreMessagesAvailable(observableValue string) *Error {
	return NewWarning(CodeTooManyMessages,
		fmt.Sprintf("There are more messages in Sumo Logic for %s than can be displayed in Threat Response."+
			" Login to the Sumo Logic console to see all messages.", observableValue))
}

// NewHealthCheckError reports a failed health probe.
func NewHealthCheckError() *Error {
	return New(CodeHealthCheck, "Invalid Health Check")
}

// Wrap converts an arbitrary error into an Error entry, passing through
// entries that already are one.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(CodeUnknown, err.Error())
}
