package types

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorKind is the closed set of failure tags reported by the optics core
type ErrorKind string

const (
	// Caller input errors
	ErrMissingCredentials ErrorKind = "MISSING_CREDENTIALS"
	ErrInvalidONT         ErrorKind = "INVALID_ONT"

	// SSH transport
	ErrSSHParam      ErrorKind = "SSH_PARAM_ERROR"
	ErrSSHConnection ErrorKind = "SSH_CONNECTION_ERROR"
	ErrSSHExec       ErrorKind = "SSH_EXEC_ERROR"
	ErrSSHTimeout    ErrorKind = "SSH_TIMEOUT"

	// Telnet transport
	ErrTelnetParam      ErrorKind = "TELNET_PARAM_ERROR"
	ErrTelnetConnection ErrorKind = "TELNET_CONNECTION_ERROR"
	ErrTelnetTimeout    ErrorKind = "TELNET_TIMEOUT"
	ErrTelnetCommand    ErrorKind = "TELNET_COMMAND_ERROR"

	// ErrUnknown is returned by KindOf for errors that carry no kind
	ErrUnknown ErrorKind = "INTERNAL_SERVER_ERROR"
)

// KindMapping describes how a kind is surfaced to callers
type KindMapping struct {
	Client     bool
	HTTPStatus int
	GRPCCode   codes.Code
}

var kindMappings = map[ErrorKind]KindMapping{
	ErrMissingCredentials: {Client: true, HTTPStatus: http.StatusBadRequest, GRPCCode: codes.InvalidArgument},
	ErrInvalidONT:         {Client: true, HTTPStatus: http.StatusBadRequest, GRPCCode: codes.InvalidArgument},
	ErrSSHParam:           {Client: true, HTTPStatus: http.StatusBadRequest, GRPCCode: codes.InvalidArgument},
	ErrTelnetParam:        {Client: true, HTTPStatus: http.StatusBadRequest, GRPCCode: codes.InvalidArgument},

	ErrSSHConnection:    {HTTPStatus: http.StatusBadGateway, GRPCCode: codes.Unavailable},
	ErrTelnetConnection: {HTTPStatus: http.StatusBadGateway, GRPCCode: codes.Unavailable},
	ErrSSHExec:          {HTTPStatus: http.StatusBadGateway, GRPCCode: codes.Aborted},
	ErrTelnetCommand:    {HTTPStatus: http.StatusBadGateway, GRPCCode: codes.Aborted},
	ErrSSHTimeout:       {HTTPStatus: http.StatusGatewayTimeout, GRPCCode: codes.DeadlineExceeded},
	ErrTelnetTimeout:    {HTTPStatus: http.StatusGatewayTimeout, GRPCCode: codes.DeadlineExceeded},
}

var unknownMapping = KindMapping{HTTPStatus: http.StatusInternalServerError, GRPCCode: codes.Internal}

// Mapping returns the caller-facing mapping for a kind
func (k ErrorKind) Mapping() KindMapping {
	if m, ok := kindMappings[k]; ok {
		return m
	}
	return unknownMapping
}

// Error is a tagged failure. Message must never contain a password.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a tagged error wrapping an optional cause
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GRPCStatus lets status.FromError map the kind to a gRPC code
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Mapping().GRPCCode, e.Error())
}

// KindOf returns the kind carried by err, or ErrUnknown
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsClientError returns true when the caller must supply better input
func IsClientError(err error) bool {
	return KindOf(err).Mapping().Client
}

// HTTPStatus returns the HTTP status code for err
func HTTPStatus(err error) int {
	return KindOf(err).Mapping().HTTPStatus
}
