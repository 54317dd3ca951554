package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/internal/logging"
	"go.uber.org/zap"
)

const internalMessage = "An error has occurred, please try again later"

// Handle adapts f to an http.HandlerFunc writing its Response as JSON.
func Handle(f func(r *http.Request) *Response) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		write(w, r, f(r))
	}
}

func write(w http.ResponseWriter, r *http.Request, res *Response) {
	if res == nil {
		res = &Response{StatusCode: http.StatusNoContent}
	}
	if res.Err == nil {
		statusCode := res.StatusCode
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		if res.Data != nil {
			WriteJSON(w, statusCode, res.Data)
		} else {
			w.WriteHeader(statusCode)
		}
		return
	}

	var errResp *ErrorResponse
	if !errors.As(res.Err, &errResp) {
		logging.FromContext(r.Context()).Error("api error", zap.Error(res.Err))
		errResp = NewError(http.StatusInternalServerError, internalMessage)
	}
	WriteJSON(w, errResp.Code, errResp)
}

func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, NewError(statusCode, message))
}
