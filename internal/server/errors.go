package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	invdomain "github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	reqdomain "github.com/smallbiznis/bloodbridge/internal/request/domain"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"gorm.io/gorm"
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

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal_error")
	ErrNotFound        = errors.New("not_found")
	ErrInvalidRequest  = errors.New("invalid_request")
	ErrTooManyRequests = errors.New("too_many_requests")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
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
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

var validationErrors = map[error]ValidationError{
	invdomain.ErrInvalidBloodType:  {Field: "blood_type", Code: "invalid_blood_type", Message: "blood type must be one of the eight ABO/Rh types"},
	invdomain.ErrInvalidComponent:  {Field: "component", Code: "invalid_component", Message: "component must be rbc, plasma, platelets or whole"},
	invdomain.ErrInvalidUnits:      {Field: "units", Code: "invalid_units", Message: "units must be non-negative"},
	invdomain.ErrInvalidAction:     {Field: "action", Code: "invalid_action", Message: "action must be set, add, remove or delete"},
	invdomain.ErrInvalidOrg:         {Field: "org_id", Code: "invalid_org", Message: "organization id is required"},
	reqdomain.ErrInvalidUnits:       {Field: "units", Code: "invalid_units", Message: "units must be a positive integer"},
	reqdomain.ErrInvalidAudience:    {Field: "request_to", Code: "invalid_audience", Message: "request_to must be Hospital, BloodBank or Donor"},
	reqdomain.ErrInvalidDriveDate:   {Field: "drive_date", Code: "invalid_drive_date", Message: "drive date is required"},
	reqdomain.ErrMissingLocation:    {Field: "location", Code: "missing_location", Message: "drive location is required"},
	auditdomain.ErrInvalidPageToken: {Field: "page_token", Code: "invalid_page_token", Message: "page token is malformed"},
	auditdomain.ErrInvalidTimeRange: {Field: "start_at", Code: "invalid_time_range", Message: "start must not be after end"},
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErrs.Errors,
		}
	}

	for sentinel, detail := range validationErrors {
		if errors.Is(err, sentinel) {
			return http.StatusBadRequest, errorPayload{
				Type:    "validation_error",
				Message: "validation error",
				Errors:  []ValidationError{detail},
			}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, reqdomain.ErrMissingActor),
		errors.Is(err, logdomain.ErrMissingActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, reqdomain.ErrForbiddenRole),
		errors.Is(err, logdomain.ErrForbiddenRole):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, reqdomain.ErrConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, reqdomain.ErrRequestNotFound),
		errors.Is(err, reqdomain.ErrUnknownDonor),
		errors.Is(err, logdomain.ErrUnknownDonor),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger's error fields without
// leaking messages into log labels.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= 500:
		return "internal", payload.Type
	case status == http.StatusTooManyRequests:
		return "rate_limited", payload.Type
	default:
		return "client", payload.Type
	}
}
