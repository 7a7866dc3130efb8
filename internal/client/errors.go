package client

import (
	"fmt"
	"net/http"
)

// APIError is a response the backend rejected.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// UserMessage returns the backend message, or a generic one for the status.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.StatusCode {
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusUnauthorized:
		return "not logged in or session expired"
	case http.StatusForbidden:
		return "permission denied"
	case http.StatusNotFound:
		return "resource not found"
	case http.StatusInternalServerError:
		return "server error"
	default:
		return "request failed"
	}
}

// TransportError covers failures before a usable response arrived: the
// network, deadlines, and undecodable bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage implements the message hook the session lifecycle reads.
func (e *TransportError) UserMessage() string {
	return "network error, please check your connection"
}
