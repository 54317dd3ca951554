package handler

import (
	"fmt"
	"net/http"
)

// ErrorResponse is the JSON error body of every API failure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("ErrorResponse{Code:%d, Message:%s}", e.Code, e.Message)
}

func NewError(code int, message string) *ErrorResponse {
	if message == "" {
		message = http.StatusText(code)
	}
	return &ErrorResponse{Code: code, Message: message}
}
