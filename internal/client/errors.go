package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError 后端返回的非 2xx 响应
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Body       string
}

func newAPIError(op string, status int, body []byte) *APIError {
	e := &APIError{
		Op:         op,
		StatusCode: status,
		Body:       string(body),
	}

	// 后端错误体一般是 {"error": "..."}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Message = payload.Error
		if e.Message == "" {
			e.Message = payload.Message
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(http.StatusText(status))
	}
	return e
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.Message)
}

// IsNotFound 是否 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// StatusCode 取出后端状态码，非 APIError 返回 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
