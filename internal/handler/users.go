package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/middleware"
	"github.com/helpdeskhq/helpdesk/internal/service"
)

// UserHandler serves /users.
type UserHandler struct {
	Accounts *service.AccountService
	Logger   *zap.Logger
}

func NewUserHandler(accounts *service.AccountService, logger *zap.Logger) *UserHandler {
	return &UserHandler{Accounts: accounts, Logger: logger}
}

type createUserReq struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	RoleName string `json:"role_name"`
}

// List returns every user, newest first, without password material.
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Accounts.Store.ListUsers(ctx)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, users)
}

// Create registers a user.  Anonymous callers may only create USUARIO
// accounts; the route runs OptionalJWT so an administrator's token can
// unlock other roles.
func (h *UserHandler) Create(c echo.Context) error {
	var req createUserReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	var caller *service.Caller
	if _, ok := middleware.UserID(c); ok {
		cl, err := callerOf(ctx, c, h.Accounts.Store)
		if err != nil {
			return respondError(c, h.Logger, err)
		}
		caller = &cl
	}
	id, err := h.Accounts.Register(ctx, caller, service.NewAccount{
		FullName: req.FullName,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.RoleName,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "user_id": id})
}
