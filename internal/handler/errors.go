package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sambot/sambot-go/internal/client"
	"github.com/sambot/sambot-go/internal/service"
)

// respondError 把服务层错误映射为 HTTP 状态码
func respondError(c *gin.Context, err error) {
	var apiErr *client.APIError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrInvalidName):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrUploadInProgress):
		status = http.StatusConflict
	case errors.Is(err, service.ErrKnowledgeBaseNotFound),
		errors.Is(err, service.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotConfirmed):
		status = http.StatusPreconditionRequired
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
		if apiErr.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// fileInputs 表单中所有名为 file 的文件，按提交顺序
func fileInputs(c *gin.Context) ([]service.FileInput, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, service.ErrNoFiles
	}

	headers := form.File["file"]
	inputs := make([]service.FileInput, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		inputs = append(inputs, service.FileInput{
			Name: fh.Filename,
			Size: fh.Size,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return inputs, nil
}
