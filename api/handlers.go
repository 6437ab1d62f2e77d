package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	optics "github.com/nanoncore/nano-optics"
	"github.com/nanoncore/nano-optics/types"
	"go.uber.org/zap"
)

const (
	codeNotFound     = "NOT_FOUND"
	codeUnauthorized = "UNAUTHORIZED"
	codeInternal     = string(types.ErrUnknown)
	codeValidation   = "VALIDATION_ERROR"
	codeInvalidBody  = "INVALID_BODY"

	maxBodyBytes = 1 << 20
)

// OpticsService is the part of the OLT command service the handlers use
type OpticsService interface {
	TestConnection(ctx context.Context, overrides optics.Overrides) (*types.ConnectionTest, error)
	GetONTOptics(ctx context.Context, ontPath string, overrides optics.Overrides) (*types.OpticsReading, error)
	CacheConnection(params types.ConnectionParams)
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"requestId,omitempty"`
}

// ErrorDetail is the error body
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string    `json:"status"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectRequest is the optional body of POST /connect
type ConnectRequest struct {
	Host     string `json:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port     int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Username string `json:"username" validate:"omitempty,max=128"`
	Password string `json:"password" validate:"omitempty,max=256"`
}

// ConnectResponse is returned by POST /connect
type ConnectResponse struct {
	OK bool `json:"ok"`
}

type opticsQuery struct {
	ONT string `validate:"required,ontpath"`
}

// Handler serves the HTTP edge of the optics service
type Handler struct {
	service  OpticsService
	logger   *zap.Logger
	validate *validator.Validate
	started  time.Time
	now      func() time.Time
}

// NewHandler creates the HTTP handlers
func NewHandler(service OpticsService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		logger:   logger,
		validate: newValidator(),
		started:  time.Now(),
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ontpath", func(fl validator.FieldLevel) bool {
		return types.IsONTPath(fl.Field().String())
	})
	return v
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	sendJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    now.Sub(h.started).Seconds(),
		Timestamp: now.UTC(),
	})
}

// OpenAPI handles GET /openapi.json
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

// Connect handles POST /connect. On success the verified host, port and
// username plus the request's password become the cached connection.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		sendError(w, r, http.StatusBadRequest, codeInvalidBody, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, r, validationError(err))
		return
	}

	result, err := h.service.TestConnection(sessionContext(r), optics.Overrides{
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.service.CacheConnection(types.ConnectionParams{
		Host:     result.Host,
		Port:     result.Port,
		Username: result.Username,
		Password: req.Password,
	})

	sendJSON(w, http.StatusOK, ConnectResponse{OK: true})
}

// Optics handles GET /optics?ont=<path>
func (h *Handler) Optics(w http.ResponseWriter, r *http.Request) {
	q := opticsQuery{ONT: strings.TrimSpace(r.URL.Query().Get("ont"))}
	if err := h.validate.Struct(q); err != nil {
		h.writeError(w, r, ontQueryError(err))
		return
	}

	reading, err := h.service.GetONTOptics(sessionContext(r), q.ONT, optics.Overrides{})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sendJSON(w, http.StatusOK, reading)
}

// sessionContext detaches OLT sessions from client disconnects; a session
// ends only by completing or by its own timeout
func sessionContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// NotFound handles unknown routes
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	sendError(w, r, http.StatusNotFound, codeNotFound, "Route not found")
}

// MethodNotAllowed handles known routes with the wrong method
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	sendError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeError maps err onto a status and logs it: client errors at warn,
// everything else at error
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := codeInternal
	message := "Unexpected error"

	var reqErr *requestError
	var typed *types.Error
	switch {
	case errors.As(err, &reqErr):
		status, code, message = http.StatusBadRequest, reqErr.code, reqErr.message
	case errors.As(err, &typed):
		status, code, message = typed.Kind.Mapping().HTTPStatus, string(typed.Kind), typed.Message
	}

	fields := []zap.Field{
		zap.String("code", code),
		zap.Int("status", status),
		zap.String("message", message),
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("requestId", GetRequestID(r.Context())),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Unhandled error while processing request", fields...)
	} else {
		h.logger.Warn("Request failed with client error", fields...)
	}

	sendError(w, r, status, code, message)
}

// requestError is a 400 raised by request validation before the service runs
type requestError struct {
	code    string
	message string
	err     error
}

func (e *requestError) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *requestError) Unwrap() error {
	return e.err
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &requestError{code: codeValidation, message: "Invalid request", err: err}
	}
	fe := verrs[0]
	return &requestError{code: codeValidation, message: formatValidationMessage(fe), err: err}
}

func formatValidationMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "min", "max":
		if fe.Kind().String() == "int" {
			return fmt.Sprintf("%s must be between 1 and 65535", field)
		}
		return fmt.Sprintf("%s is too long", field)
	case "hostname_rfc1123|ip":
		return fmt.Sprintf("%s must be a hostname or IP address", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// ontQueryError keeps the INVALID_ONT kind for query validation failures
func ontQueryError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
		return types.NewError(types.ErrInvalidONT, `Query parameter "ont" is required (e.g. 1/1/3/2/1)`, nil)
	}
	return types.NewError(types.ErrInvalidONT, "ONT path must match pattern shelf/slot/pon/ont/x (e.g. 1/1/3/2/1)", nil)
}

// decodeOptionalJSON decodes the body into v; an empty body leaves v unchanged
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// sendError sends a standardized error response
func sendError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	sendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
		RequestID: GetRequestID(r.Context()),
	})
}
