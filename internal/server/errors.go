package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	billingcycledomain "github.com/smallbiznis/suavescribe/internal/billingcycle/domain"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	contractsyncdomain "github.com/smallbiznis/suavescribe/internal/contractsync/domain"
	shopdomain "github.com/smallbiznis/suavescribe/internal/shop/domain"
	"github.com/smallbiznis/suavescribe/pkg/db"
	"github.com/smallbiznis/suavescribe/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrUnknownTopic   = errors.New("unknown_topic")
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// errorClass is one row of the error to status table. Rows are checked in order.
type errorClass struct {
	status  int
	typ     string
	message string
	match   func(error) bool
}

func matchAny(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

var errorClasses = []errorClass{
	{http.StatusUnauthorized, "unauthorized", "unauthorized", matchAny(ErrUnauthorized)},
	{http.StatusConflict, "conflict", "conflict", matchAny(
		ErrConflict,
		contractdomain.ErrShopMismatch,
		billingcycledomain.ErrCycleInProgress,
	)},
	{http.StatusNotFound, "not_found", "not found", matchAny(
		ErrNotFound,
		shopdomain.ErrShopNotFound,
		contractdomain.ErrContractNotFound,
		contractsyncdomain.ErrNoSync,
		gorm.ErrRecordNotFound,
	)},
	{http.StatusConflict, "conflict", "conflict", db.IsDuplicateKeyErr},
	// Shopify failed or timed out; the caller may retry
	{http.StatusBadGateway, "upstream_error", "remote call failed", contractdomain.IsRemoteError},
	{http.StatusServiceUnavailable, "unavailable", "try again later", db.IsTransient},
}

// validationSentinels answer 400 with the sentinel's own code.
var validationSentinels = []error{
	ErrInvalidRequest,
	ErrUnknownTopic,
	shopdomain.ErrInvalidShop,
	shopdomain.ErrInvalidAccessToken,
	contractdomain.ErrInvalidContract,
	contractdomain.ErrInvalidShop,
	contractsyncdomain.ErrInvalidShop,
	billingcycledomain.ErrInvalidRequest,
	pagination.ErrInvalidPageToken,
}

var validationMessages = map[string]string{
	"invalid_request":    "invalid request",
	"unknown_topic":      "unsupported webhook topic",
	"invalid_page_token": "page token is malformed",
}

// ErrorHandlingMiddleware renders the last handler error unless a body was already written.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastErr := c.Errors.Last()
		if lastErr == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "validation error", Errors: vErr.Errors}
	}
	for _, sentinel := range validationSentinels {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, sentinelPayload(sentinel.Error())
		}
	}
	if err != nil {
		for _, class := range errorClasses {
			if class.match(err) {
				return class.status, errorPayload{Type: class.typ, Message: class.message}
			}
		}
	}
	return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
}

func sentinelPayload(code string) errorPayload {
	field := strings.TrimPrefix(code, "invalid_")
	switch {
	case code == "invalid_request":
		field = "request"
	case field == code:
		field = ""
	}
	message, ok := validationMessages[code]
	if !ok {
		message = "invalid value"
	}
	return errorPayload{
		Type:    "validation_error",
		Message: "validation error",
		Errors:  []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Message
}
