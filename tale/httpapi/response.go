package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theimaginaryfoundation/tale-studio/tale/apperr"
	"github.com/theimaginaryfoundation/tale-studio/tale/logger"
)

// Response is the envelope of every successful JSON reply.
type Response[T any] struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      T      `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorDetail struct {
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

type ErrorResponse struct {
	Code      int          `json:"code"`
	Message   string       `json:"message"`
	Error     *ErrorDetail `json:"error,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

func success[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, Response[T]{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		RequestID: c.GetString(requestIDKey),
	})
}

// fail maps err onto its HTTP status and writes an ErrorResponse.
func fail(c *gin.Context, err error) {
	appErr := apperr.As(err)
	status := appErr.HTTPStatus()
	detail := &ErrorDetail{ErrorCode: string(appErr.Code)}
	if appErr.Err != nil {
		detail.Details = appErr.Err.Error()
	}

	log := logger.FromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.FullPath(), "err", err)
	} else {
		log.Warn("request rejected", "path", c.FullPath(), "err", err)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      status,
		Message:   appErr.Message,
		Error:     detail,
		RequestID: c.GetString(requestIDKey),
	})
}

func badRequest(c *gin.Context, err error) {
	fail(c, apperr.Wrap(err, apperr.CodeInvalidParam, "invalid request body"))
}
