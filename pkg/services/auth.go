package services

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/tgdrive/botmanager/internal/auth"
	"github.com/tgdrive/botmanager/internal/logging"
	"github.com/tgdrive/botmanager/internal/middleware/handler"
	"github.com/tgdrive/botmanager/pkg/types"
	"go.uber.org/zap"
)

const adminUser = "admin"

func (a *apiService) AuthLogin(r *http.Request) *handler.Response {
	if a.cnf.Auth.AdminSecret == "" {
		return a.fail(r, &apiError{err: errors.New("authentication is not enabled"), code: http.StatusNotFound})
	}
	var req types.LoginRequest
	if err := a.decode(r, &req); err != nil {
		return a.fail(r, err)
	}
	if !auth.CheckSecret(a.cnf.Auth.AdminSecret, req.Password) {
		logging.FromContext(r.Context()).Warn("auth.login.failed", zap.String("ip", r.RemoteAddr))
		return a.fail(r, &apiError{err: errors.New("invalid credentials"), code: http.StatusUnauthorized})
	}

	now := a.now()
	claims := auth.NewClaims(adminUser, now, a.cnf.Auth.SessionTime)
	token, err := auth.Encode(a.cnf.Auth.JWTSecret, claims)
	if err != nil {
		return a.fail(r, errors.Wrap(err, "sign token"))
	}
	return handler.OK(&types.LoginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}
