package api

import (
	"net/http"
	"strconv"
	"time"

	"storefront/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// envelope is the body of every /api/v1 response
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, envelope{Status: "success", Message: message, Data: data})
}

// fail writes err as an error envelope. Unexpected errors are logged and
// reported without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(code, envelope{Status: "error", Message: apperr.Message(err)})
}

func (h *Handler) badRequest(c *gin.Context, format string, args ...interface{}) {
	h.fail(c, apperr.New("api", apperr.ErrInvalidInput, format, args...))
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New("api", apperr.ErrInvalidInput, "invalid %s", name)
	}
	return id, nil
}

// dateQuery parses a required YYYY-MM-DD query parameter as a UTC day.
func dateQuery(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, apperr.New("api", apperr.ErrInvalidInput, "%s is required", name)
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, apperr.New("api", apperr.ErrInvalidInput, "%s must be formatted as YYYY-MM-DD", name)
	}
	return t, nil
}

func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	start, err := dateQuery(c, "start_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := dateQuery(c, "end_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}
