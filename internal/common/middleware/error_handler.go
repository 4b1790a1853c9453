package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestID attaches an id to every request for log correlation.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// ErrorResponse is the JSON envelope for failed admin requests.
type ErrorResponse struct {
	Success   bool             `json:"success"`
	Error     *errors.AppError `json:"error"`
	Timestamp time.Time        `json:"timestamp"`
	RequestID string           `json:"request_id"`
}

// ErrorHandler recovers panics and renders errors pushed onto the gin context
// as structured {code, message} responses.
func ErrorHandler() gin.HandlerFunc {
	recovery := gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		requestID := getRequestID(c)

		logger.Error().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("stack", string(debug.Stack())).
			Msgf("Panic recovered: %v", recovered)

		appErr := errors.New(errors.ErrCodeInternal, "Internal server error").
			WithDetail("panic", fmt.Sprintf("%v", recovered))
		sendErrorResponse(c, appErr)
	})

	return func(c *gin.Context) {
		recovery(c)

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr, ok := errors.AsAppError(err)
		if !ok {
			appErr = errors.Wrap(err, errors.ErrCodeInternal, "Handler error occurred")
		}
		sendErrorResponse(c, appErr)
	}
}

func sendErrorResponse(c *gin.Context, appErr *errors.AppError) {
	requestID := getRequestID(c)
	statusCode := httpStatusFor(appErr.Code)

	logError(c, appErr)

	c.JSON(statusCode, ErrorResponse{
		Success:   false,
		Error:     appErr,
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

func httpStatusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeValidation:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodePermissionDenied:
		return http.StatusForbidden
	case errors.ErrCodeAlreadyExists:
		return http.StatusConflict
	case errors.ErrCodePreconditionFailed, errors.ErrCodeInsufficientPoints:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeTokenRefreshFailed, errors.ErrCodeTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func logError(c *gin.Context, appErr *errors.AppError) {
	evt := logger.Warn()
	if appErr.IsInternal() {
		evt = logger.Error()
	} else if appErr.IsNotFound() {
		evt = logger.Info()
	}

	evt.
		Str("request_id", getRequestID(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("error_code", string(appErr.Code)).
		Err(appErr.Cause).
		Msg(appErr.Message)
}

func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return "unknown"
}
