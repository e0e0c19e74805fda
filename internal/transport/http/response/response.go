package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa/internal/domain"
)

const (
	CodeBadRequest           = 40000
	CodeEmptyDocument        = 40001
	CodeNotFound             = 40400
	CodeRequestTooLarge      = 41300
	CodeUnsupportedFormat    = 41500
	CodeInternalServer       = 50000
	CodeIndexIO              = 50001
	CodeEmbeddingUnavailable = 50201
	CodeGenerationFailed     = 50202
)

type ErrorResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorResponse{
		Code:  code,
		Error: message,
	})
}

// FromError writes err with the status of the first domain sentinel it wraps.
func FromError(c *gin.Context, err error) {
	status, code := Classify(err)
	Error(c, status, code, err.Error())
}

// Classify maps an error onto an HTTP status and an error code.
func Classify(err error) (int, int) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, CodeUnsupportedFormat
	case errors.Is(err, domain.ErrEmptyDocument):
		return http.StatusBadRequest, CodeEmptyDocument
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, CodeRequestTooLarge
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		return http.StatusBadGateway, CodeEmbeddingUnavailable
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway, CodeGenerationFailed
	case errors.Is(err, domain.ErrIndexIO):
		return http.StatusInternalServerError, CodeIndexIO
	default:
		return http.StatusInternalServerError, CodeInternalServer
	}
}
