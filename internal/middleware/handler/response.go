package handler

import "net/http"

// Response is what an API handler returns; Handle renders it. A nil
// *Response is rendered as 204.
type Response struct {
	StatusCode int
	Data       any
	Err        error
}

func OK(data any) *Response {
	return &Response{StatusCode: http.StatusOK, Data: data}
}

func Created(data any) *Response {
	return &Response{StatusCode: http.StatusCreated, Data: data}
}

func NoContent() *Response {
	return &Response{StatusCode: http.StatusNoContent}
}

// Fail renders a client-visible error with the given status.
func Fail(code int, message string) *Response {
	return &Response{Err: NewError(code, message)}
}

// Err renders err; anything other than an *ErrorResponse becomes a 500.
func Err(err error) *Response {
	return &Response{Err: err}
}
