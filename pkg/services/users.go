package services

import (
	"net/http"

	"github.com/tgdrive/botmanager/internal/middleware/handler"
	"github.com/tgdrive/botmanager/pkg/mapper"
	"github.com/tgdrive/botmanager/pkg/models"
	"github.com/tgdrive/botmanager/pkg/types"
)

// UsersCreate registers the chat account, if a registrar is configured,
// and then stores the record.
func (a *apiService) UsersCreate(r *http.Request) *handler.Response {
	var req types.CreateUserRequest
	if err := a.decode(r, &req); err != nil {
		return a.fail(r, err)
	}
	if err := a.registrar.Register(r.Context(), req.Username, req.Password, req.IsAdmin); err != nil {
		return a.fail(r, err)
	}
	user, err := a.store.CreateUser(r.Context(), &models.User{
		Username: req.Username,
		Password: req.Password,
		UserType: models.UserType(req.UserType),
		IsAdmin:  req.IsAdmin,
	})
	if err != nil {
		return a.fail(r, err)
	}
	return handler.Created(mapper.ToUserOut(user))
}

func (a *apiService) UsersList(r *http.Request) *handler.Response {
	users, err := a.store.ListUsers(r.Context())
	if err != nil {
		return a.fail(r, err)
	}
	return handler.OK(mapper.ToUsersOut(users))
}
