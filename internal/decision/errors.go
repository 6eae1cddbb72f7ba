package decision

import "fmt"

// Code is the closed error taxonomy every decision failure maps to.
type Code string

const (
	CodeNotFound             Code = "NOT_FOUND"
	CodeTenantMismatch       Code = "TENANT_MISMATCH"
	CodeForbidden            Code = "FORBIDDEN"
	CodeInvalidAction        Code = "INVALID_ACTION"
	CodeValidation           Code = "VALIDATION"
	CodeFeedbackRequired     Code = "FEEDBACK_REQUIRED"
	CodeSignalsNotMet        Code = "SIGNALS_NOT_MET"
	CodeEvaluationIncomplete Code = "EVALUATION_INCOMPLETE"
	CodeInvalidStatus        Code = "INVALID_STATUS"
	CodeTerminalStatus       Code = "TERMINAL_STATUS"
	CodeConflict             Code = "CONFLICT"
)

// Error is a structured decision failure: a closed Code, a human
// message, and optional machine-readable Details (e.g. the list of
// failed signal conditions for SIGNALS_NOT_MET). It is widened from a
// plain sentinel error because the outer layer must map each code to
// an HTTP status and, for SIGNALS_NOT_MET, an enumerated failure list.
type Error struct {
	Code    Code
	Message string
	Details interface{}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func newErrorWithDetails(code Code, details interface{}, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Details: details}
}

// AsDecisionError unwraps err into a *Error, if it is one.
func AsDecisionError(err error) (*Error, bool) {
	de, ok := err.(*Error)
	return de, ok
}
