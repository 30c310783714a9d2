// Package service holds the account and ticket rules that sit between
// the HTTP handlers and the store: password policy, catalog validation,
// acting-on-behalf checks and domain events.
package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/authz"
	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/queue"
	"github.com/helpdeskhq/helpdesk/internal/repository"
	"github.com/helpdeskhq/helpdesk/internal/utils"
)

// Identity is a user together with the role and effective permission
// sets loaded from the store.
type Identity struct {
	User        model.User
	Roles       []string
	Permissions []string
}

// Caller converts the identity into the form the other services take.
func (id Identity) Caller() Caller {
	return Caller{ID: id.User.ID, Roles: id.Roles}
}

// Allowed reports whether an identity may exercise a permission.
func (id Identity) Allowed(perm string) bool {
	return authz.Allowed(id.Roles, id.Permissions, perm)
}

// NewAccount is the input of Register.
type NewAccount struct {
	FullName string
	Email    string
	Password string
	Role     string // optional, defaults to USUARIO
}

// AccountService manages users, credentials and role/permission grants.
type AccountService struct {
	Store  repository.Store
	Cost   int
	Events Publisher
	Logger *zap.Logger
}

func NewAccountService(store repository.Store, cost int, events Publisher, logger *zap.Logger) *AccountService {
	if events == nil {
		events = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{Store: store, Cost: cost, Events: events, Logger: logger}
}

// Authenticate checks email and password.  Unknown email, inactive
// account and wrong password all return ErrInvalidCredentials; the
// password is always run through bcrypt so the three cases cost the same.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	u, err := s.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		utils.BurnVerify(password)
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return Identity{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		s.Logger.Info("login rejected for inactive user", zap.Uint64("user_id", u.ID))
		return Identity{}, ErrInvalidCredentials
	}
	return s.identity(ctx, u)
}

// Load returns the identity of an active user.  Inactive users yield
// repository.ErrInactive.
func (s *AccountService) Load(ctx context.Context, id uint64) (Identity, error) {
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if !u.IsActive {
		return Identity{}, repository.ErrInactive
	}
	return s.identity(ctx, u)
}

func (s *AccountService) identity(ctx context.Context, u model.User) (Identity, error) {
	roles, err := s.Store.UserRoles(ctx, u.ID)
	if err != nil {
		return Identity{}, err
	}
	perms, err := s.Store.EffectivePermissions(ctx, u.ID)
	if err != nil {
		return Identity{}, err
	}
	return Identity{User: u, Roles: roles, Permissions: perms}, nil
}

// Register creates a user.  Anyone may create a plain USUARIO account;
// any other initial role requires an administrator caller.  A nil
// caller means the request was anonymous.
func (s *AccountService) Register(ctx context.Context, caller *Caller, na NewAccount) (uint64, error) {
	na.FullName = strings.TrimSpace(na.FullName)
	na.Email = strings.TrimSpace(na.Email)
	if na.FullName == "" || na.Email == "" || na.Password == "" {
		return 0, ErrMissingFields
	}
	role := model.NormalizeRole(na.Role)
	if role == "" {
		role = model.RoleUser
	}
	if !model.IsRole(role) {
		return 0, ErrUnknownRole
	}
	if role != model.RoleUser && (caller == nil || !caller.IsAdmin()) {
		return 0, ErrForbidden
	}

	hash, err := utils.HashPassword(na.Password, s.Cost)
	if err != nil {
		return 0, err
	}
	u, err := s.Store.CreateUser(ctx, model.NewUser{
		FullName:     na.FullName,
		Email:        na.Email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return 0, err
	}

	ev := queue.NewEvent(queue.UserCreated)
	ev.UserID = u.ID
	ev.Detail = role
	if caller != nil {
		ev.ActorID = caller.ID
	}
	s.Events.Publish(ctx, ev)
	return u.ID, nil
}

// ChangePassword is the self-service flow.  Failures are reported in a
// fixed order: unknown or inactive user, wrong current password, then a
// new password that fails the policy.  All refresh tokens of the user
// are revoked afterwards.
func (s *AccountService) ChangePassword(ctx context.Context, email, current, next string) error {
	if strings.TrimSpace(email) == "" || current == "" || next == "" {
		return ErrMissingFields
	}
	u, err := s.Store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return repository.ErrUserNotFound
	}
	if !utils.VerifyPassword(u.PasswordHash, current) {
		return ErrWrongPassword
	}
	if !utils.IsStrongPassword(next) {
		return ErrWeakPassword
	}
	if err := s.setPassword(ctx, u.ID, next); err != nil {
		return err
	}
	ev := queue.NewEvent(queue.UserPasswordChanged)
	ev.UserID, ev.ActorID = u.ID, u.ID
	s.Events.Publish(ctx, ev)
	return nil
}

// ResetPassword is the administrative flow and skips the current
// password check.
func (s *AccountService) ResetPassword(ctx context.Context, caller Caller, id uint64, next string) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	if next == "" {
		return ErrMissingFields
	}
	if !utils.IsStrongPassword(next) {
		return ErrWeakPassword
	}
	if err := s.setPassword(ctx, id, next); err != nil {
		return err
	}
	ev := queue.NewEvent(queue.UserPasswordChanged)
	ev.UserID, ev.ActorID = id, caller.ID
	ev.Detail = "reset"
	s.Events.Publish(ctx, ev)
	return nil
}

func (s *AccountService) setPassword(ctx context.Context, id uint64, plain string) error {
	hash, err := utils.HashPassword(plain, s.Cost)
	if err != nil {
		return err
	}
	if err := s.Store.SetPassword(ctx, id, hash); err != nil {
		return err
	}
	return s.Store.RevokeAllRefresh(ctx, id)
}

// SetActive enables or disables an account.  Deactivation revokes every
// refresh token so existing sessions cannot be renewed.
func (s *AccountService) SetActive(ctx context.Context, caller Caller, id uint64, active bool) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	if err := s.Store.SetActive(ctx, id, active); err != nil {
		return err
	}
	typ := queue.UserActivated
	if !active {
		typ = queue.UserDeactivated
		if err := s.Store.RevokeAllRefresh(ctx, id); err != nil {
			return err
		}
	}
	ev := queue.NewEvent(typ)
	ev.UserID, ev.ActorID = id, caller.ID
	s.Events.Publish(ctx, ev)
	return nil
}

func (s *AccountService) GrantRole(ctx context.Context, caller Caller, id uint64, role string) error {
	return s.changeRole(ctx, caller, id, role, true)
}

func (s *AccountService) RevokeRole(ctx context.Context, caller Caller, id uint64, role string) error {
	return s.changeRole(ctx, caller, id, role, false)
}

func (s *AccountService) changeRole(ctx context.Context, caller Caller, id uint64, role string, grant bool) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	role = model.NormalizeRole(role)
	if role == "" {
		return ErrMissingFields
	}
	if !model.IsRole(role) {
		return ErrUnknownRole
	}
	op, typ := s.Store.RevokeRole, queue.RoleRevoked
	if grant {
		op, typ = s.Store.GrantRole, queue.RoleGranted
	}
	if err := op(ctx, id, role); err != nil {
		return err
	}
	ev := queue.NewEvent(typ)
	ev.UserID, ev.ActorID, ev.Detail = id, caller.ID, role
	s.Events.Publish(ctx, ev)
	return nil
}

func (s *AccountService) GrantPermission(ctx context.Context, caller Caller, id uint64, code string) error {
	return s.changePermission(ctx, caller, id, code, true)
}

func (s *AccountService) RevokePermission(ctx context.Context, caller Caller, id uint64, code string) error {
	return s.changePermission(ctx, caller, id, code, false)
}

func (s *AccountService) changePermission(ctx context.Context, caller Caller, id uint64, code string, grant bool) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrMissingFields
	}
	if !model.IsPermission(code) {
		return ErrUnknownPermission
	}
	op, typ := s.Store.RevokePerm, queue.PermissionRevoked
	if grant {
		op, typ = s.Store.GrantPerm, queue.PermissionGranted
	}
	if err := op(ctx, id, code); err != nil {
		return err
	}
	ev := queue.NewEvent(typ)
	ev.UserID, ev.ActorID, ev.Detail = id, caller.ID, code
	s.Events.Publish(ctx, ev)
	return nil
}

// Permissions returns the effective permission set of a user, or only
// the direct grants when direct is true.
func (s *AccountService) Permissions(ctx context.Context, id uint64, direct bool) ([]string, error) {
	if direct {
		return s.Store.UserPermissions(ctx, id)
	}
	return s.Store.EffectivePermissions(ctx, id)
}

// SeedAdmin makes sure the bootstrap administrator exists with the ADMIN
// role and every catalog permission.  The file store seeds itself; this
// is used for the mysql backend.
func (s *AccountService) SeedAdmin(ctx context.Context, fullName, email, password string) error {
	u, err := s.Store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		hash, herr := utils.HashPassword(password, s.Cost)
		if herr != nil {
			return herr
		}
		u, err = s.Store.CreateUser(ctx, model.NewUser{
			FullName: fullName, Email: email, PasswordHash: hash, Role: model.RoleAdmin,
		})
		if err != nil {
			return err
		}
		s.Logger.Info("seed administrator created", zap.String("email", u.Email), zap.Uint64("user_id", u.ID))
	case err != nil:
		return err
	}
	if err := s.Store.GrantRole(ctx, u.ID, model.RoleAdmin); err != nil {
		return err
	}
	for _, p := range model.DefaultPermissions() {
		if err := s.Store.GrantPerm(ctx, u.ID, p); err != nil {
			return err
		}
	}
	return nil
}
