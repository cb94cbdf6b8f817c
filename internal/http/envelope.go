package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"portfolio-advisor/internal/service"
)

const internalErrorMessage = "internal server error"

type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

type errorEnvelope struct {
	StatusCode int      `json:"statusCode"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors"`
	Data       any      `json:"data"`
	Success    bool     `json:"success"`
}

func init() {
	// report validation failures with the JSON field names clients send
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	}
}

func respond(c *gin.Context, status int, data any, message string) {
	c.JSON(status, envelope{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

// fail writes the error envelope. Errors that are not *service.Error never reach the client.
func (h *Handler) fail(c *gin.Context, err error) {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.requestLogger(c).WithError(err).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorEnvelope{
			StatusCode: http.StatusInternalServerError,
			Message:    internalErrorMessage,
			Errors:     []string{},
		})
		return
	}

	if svcErr.Status >= http.StatusInternalServerError {
		h.requestLogger(c).WithError(err).Warn("upstream failure")
	}
	details := svcErr.Details
	if details == nil {
		details = []string{}
	}
	c.AbortWithStatusJSON(svcErr.Status, errorEnvelope{
		StatusCode: svcErr.Status,
		Message:    svcErr.Message,
		Errors:     details,
	})
}

func (h *Handler) requestLogger(c *gin.Context) logrus.FieldLogger {
	return h.logger.WithFields(logrus.Fields{
		"request_id": c.GetString(requestIDKey),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
	})
}

// bindJSON decodes the body into req and reports malformed input as a validation error.
func bindJSON(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
			return service.ValidationError("Invalid fields: "+strings.Join(fields, ", "), fields...)
		}
		return service.ValidationError("Invalid request body: " + err.Error())
	}
	return nil
}
