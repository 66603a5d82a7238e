package clients

import (
	"errors"
	"fmt"
)

// CodeNetworkError is used when no response was received at all.
const CodeNetworkError = "network_error"

// RequestError describes a failed fallback exchange. Code is the server's
// {"error": ...} value when one was sent, otherwise a transport status such
// as "HTTP 502".
type RequestError struct {
	Code       string
	StatusCode int
	Payload    map[string]interface{}
	Err        error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request failed: %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("request failed: %s", e.Code)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func newRequestError(status int, payload map[string]interface{}) *RequestError {
	code := fmt.Sprintf("HTTP %d", status)
	if serverCode, ok := payload["error"].(string); ok && serverCode != "" {
		code = serverCode
	}
	return &RequestError{Code: code, StatusCode: status, Payload: payload}
}

// ErrorCode extracts the code of a *RequestError anywhere in err's chain.
func ErrorCode(err error) (string, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Code, true
	}
	return "", false
}
