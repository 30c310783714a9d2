package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/service"
)

// AdminHandler serves the role/permission catalog and per-user
// administration under /admin.  Mutations are mounted behind
// RequireRole(ADMIN); the service checks the caller again.
type AdminHandler struct {
	Accounts *service.AccountService
	Logger   *zap.Logger
}

func NewAdminHandler(accounts *service.AccountService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{Accounts: accounts, Logger: logger}
}

type roleReq struct {
	RoleName string `json:"role_name" validate:"required"`
}
type permReq struct {
	PermCode string `json:"perm_code" validate:"required"`
}
type setPasswordReq struct {
	NewPassword string `json:"new_password" validate:"required"`
}

func (h *AdminHandler) Roles(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	roles, err := h.Accounts.Store.Roles(ctx)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, roles)
}

func (h *AdminHandler) Permissions(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	perms, err := h.Accounts.Store.Permissions(ctx)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, perms)
}

func (h *AdminHandler) UserRoles(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	roles, err := h.Accounts.Store.UserRoles(ctx, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, roles)
}

// UserPerms returns the effective permissions, or only the direct grants
// with ?scope=direct.
func (h *AdminHandler) UserPerms(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	perms, err := h.Accounts.Permissions(ctx, id, c.QueryParam("scope") == "direct")
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, perms)
}

// mutation is the shape shared by every admin write: resolve target and
// caller, run op, answer {ok:true}.
func (h *AdminHandler) mutation(c echo.Context, op func(ctx context.Context, caller service.Caller, id uint64) error) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller, err := callerOf(ctx, c, h.Accounts.Store)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if err := op(ctx, caller, id); err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *AdminHandler) GrantRole(c echo.Context) error {
	var req roleReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.GrantRole(ctx, caller, id, req.RoleName)
	})
}

func (h *AdminHandler) RevokeRole(c echo.Context) error {
	var req roleReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.RevokeRole(ctx, caller, id, req.RoleName)
	})
}

func (h *AdminHandler) GrantPerm(c echo.Context) error {
	var req permReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.GrantPermission(ctx, caller, id, req.PermCode)
	})
}

func (h *AdminHandler) RevokePerm(c echo.Context) error {
	var req permReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.RevokePermission(ctx, caller, id, req.PermCode)
	})
}

func (h *AdminHandler) SetPassword(c echo.Context) error {
	var req setPasswordReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.ResetPassword(ctx, caller, id, req.NewPassword)
	})
}

func (h *AdminHandler) Activate(c echo.Context) error {
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.SetActive(ctx, caller, id, true)
	})
}

func (h *AdminHandler) Deactivate(c echo.Context) error {
	return h.mutation(c, func(ctx context.Context, caller service.Caller, id uint64) error {
		return h.Accounts.SetActive(ctx, caller, id, false)
	})
}
