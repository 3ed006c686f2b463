package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// The session layer needs to tell transport failures apart from provider
// rejections and malformed bodies without string matching, so each class is
// its own error type.

// NetworkError is a transport-level failure: DNS, refused connection,
// timeout. Worth retrying.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cannot reach %s: %s", e.Endpoint, friendlyNetworkMessage(e.Err))
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError is a non-2xx response with whatever message the provider's
// error envelope carried.
type ProtocolError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}

// DecodeError is a 2xx response whose body does not match the expected
// envelope, including the zero-choices case.
type DecodeError struct {
	Provider string
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("provider %s returned an unexpected response: %s", e.Provider, e.Reason)
}

// ErrorClass labels an error for analytics and status display.
func ErrorClass(err error) string {
	var netErr *NetworkError
	var protoErr *ProtocolError
	var decErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &decErr):
		return "decode"
	}
	return "other"
}

// parseErrorMessage extracts a human-readable message from a provider error
// body: the `message` under an `error` object, a top-level `message`, a
// friendly per-status string, then a truncated body dump.
func parseErrorMessage(statusCode int, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		msg := envelope.Error.Message
		if msg == "" {
			msg = envelope.Message
		}
		if msg != "" {
			return msg
		}
	}

	switch statusCode {
	case 401:
		return "authentication failed — check your API key"
	case 403:
		return "access denied — your API key may not have the required permissions"
	case 404:
		return "model or endpoint not found"
	case 429:
		return "rate limited — too many requests, please wait"
	case 500:
		return "internal server error on the provider side"
	case 502, 503:
		return "provider service temporarily unavailable"
	case 529:
		return "provider is overloaded, please try again later"
	}

	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, s)
}

// friendlyNetworkMessage converts common transport errors to messages a
// non-developer can act on.
func friendlyNetworkMessage(err error) string {
	if err == nil {
		return "unknown network error"
	}
	msg := err.Error()
	if strings.Contains(msg, "connection refused") {
		return "connection refused (is the service running?)"
	}
	if strings.Contains(msg, "no such host") {
		return "host not found (check the URL)"
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return "connection timed out (service may be starting up)"
	}
	if strings.Contains(msg, "EOF") {
		return "connection closed unexpectedly"
	}
	if strings.Contains(msg, "reset by peer") {
		return "connection reset by server"
	}
	return msg
}
