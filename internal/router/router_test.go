package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/helpdeskhq/helpdesk/internal/config"
	"github.com/helpdeskhq/helpdesk/internal/handler"
	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/repository"
	"github.com/helpdeskhq/helpdesk/internal/service"
	"github.com/helpdeskhq/helpdesk/internal/utils"
)

type api struct {
	t     *testing.T
	e     *echo.Echo
	store *repository.FileStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	hash := func(p string) (string, error) { return utils.HashPassword(p, bcrypt.MinCost) }
	seedHash, err := hash("123456")
	require.NoError(t, err)
	store, err := repository.OpenFileStore(repository.FileStoreOptions{
		Path:         filepath.Join(t.TempDir(), "data.json"),
		Seed:         repository.SeedAdmin{FullName: "Admin", Email: "admin@local", PasswordHash: seedHash},
		HashPassword: hash,
	})
	require.NoError(t, err)

	cfg := config.Config{JWTSecret: "test-secret", AccessTTLMin: 15, RefreshTTLDays: 7}
	log := zap.NewNop()
	accounts := service.NewAccountService(store, bcrypt.MinCost, nil, log)
	tickets := service.NewTicketService(store, nil)

	e := New(Deps{Cfg: cfg, Access: store, Logger: log}, Handlers{
		Auth:    handler.NewAuthHandler(cfg, accounts, log),
		Users:   handler.NewUserHandler(accounts, log),
		Admin:   handler.NewAdminHandler(accounts, log),
		Tickets: handler.NewTicketHandler(tickets, log),
	})
	return &api{t: t, e: e, store: store}
}

func (a *api) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

type session struct {
	User        model.User `json:"user"`
	Roles       []string   `json:"roles"`
	Permissions []string   `json:"permissions"`
	Access      struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func (a *api) login(email, password string) session {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/auth/login", echo.Map{"email": email, "password": password}, "")
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var s session
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &s))
	return s
}

func (a *api) register(name, email, password string) uint64 {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/users", echo.Map{"full_name": name, "email": email, "password": password}, "")
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		OK     bool   `json:"ok"`
		UserID uint64 `json:"user_id"`
	}
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.True(a.t, out.OK)
	return out.UserID
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	for _, p := range []string{"/health", "/healthz"} {
		rec := a.do(http.MethodGet, p, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	}
}

func TestLogin(t *testing.T) {
	a := newAPI(t)

	s := a.login("admin@local", "123456")
	assert.Equal(t, uint64(1), s.User.ID)
	assert.Equal(t, []string{model.RoleAdmin}, s.Roles)
	assert.ElementsMatch(t, model.DefaultPermissions(), s.Permissions)
	assert.NotEmpty(t, s.Access.Token)
	assert.NotEmpty(t, s.Refresh.Token)

	rec := a.do(http.MethodPost, "/auth/login", echo.Map{"email": "admin@local"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password")

	rec = a.do(http.MethodPost, "/auth/login", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodGet, "/auth/me", nil, s.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Contains(t, rec.Body.String(), `"ADMIN"`)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/auth/me", nil, "").Code)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	a := newAPI(t)
	uid := a.register("Ana", "ana@example.com", "secret1")
	admin := a.login("admin@local", "123456")
	rec := a.do(http.MethodPost, "/admin/users/"+itoa(uid)+"/deactivate", nil, admin.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	attempts := []echo.Map{
		{"email": "nobody@example.com", "password": "secret1"},
		{"email": "admin@local", "password": "wrong"},
		{"email": "ana@example.com", "password": "secret1"},
	}
	var bodies []string
	for _, body := range attempts {
		rec := a.do(http.MethodPost, "/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[0], bodies[2])
}

func TestRefreshAndLogout(t *testing.T) {
	a := newAPI(t)
	s := a.login("admin@local", "123456")

	rec := a.do(http.MethodPost, "/auth/refresh", echo.Map{"refresh_token": s.Refresh.Token}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var next session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEqual(t, s.Refresh.Token, next.Refresh.Token)

	rec = a.do(http.MethodPost, "/auth/refresh", echo.Map{"refresh_token": s.Refresh.Token}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rotated token is spent")

	rec = a.do(http.MethodPost, "/auth/logout", echo.Map{"refresh_token": next.Refresh.Token}, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodPost, "/auth/logout", echo.Map{"refresh_token": next.Refresh.Token}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = a.do(http.MethodPost, "/auth/logout", echo.Map{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConcurrentRefreshRotatesOnce(t *testing.T) {
	a := newAPI(t)
	s := a.login("admin@local", "123456")

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = a.do(http.MethodPost, "/auth/refresh", echo.Map{"refresh_token": s.Refresh.Token}, "").Code
		}(i)
	}
	wg.Wait()

	won := 0
	for _, code := range codes {
		if code == http.StatusOK {
			won++
		} else {
			assert.Equal(t, http.StatusUnauthorized, code)
		}
	}
	assert.Equal(t, 1, won, "one refresh token buys exactly one new pair")
}

func TestChangePassword(t *testing.T) {
	a := newAPI(t)
	a.register("Ana", "ana@example.com", "secret1")

	cases := []struct {
		body echo.Map
		code int
	}{
		{echo.Map{"email": "ana@example.com", "current_password": "secret1"}, http.StatusBadRequest},
		{echo.Map{"email": "ana@example.com", "current_password": "secret1", "new_password": "abc"}, http.StatusBadRequest},
		{echo.Map{"email": "nobody@example.com", "current_password": "secret1", "new_password": "newsecret"}, http.StatusNotFound},
		{echo.Map{"email": "ana@example.com", "current_password": "nope", "new_password": "newsecret"}, http.StatusUnauthorized},
		{echo.Map{"email": "nobody@example.com", "current_password": "secret1", "new_password": "abc"}, http.StatusNotFound},
		{echo.Map{"email": "ana@example.com", "current_password": "nope", "new_password": "abc"}, http.StatusUnauthorized},
		{echo.Map{"email": "ana@example.com", "current_password": "secret1", "new_password": "newsecret"}, http.StatusOK},
	}
	for _, tc := range cases {
		rec := a.do(http.MethodPost, "/auth/change-password", tc.body, "")
		assert.Equal(t, tc.code, rec.Code, rec.Body.String())
	}
	a.login("ana@example.com", "newsecret")
}

func TestCreateUser(t *testing.T) {
	a := newAPI(t)
	a.register("Ana", "ana@example.com", "secret1")

	rec := a.do(http.MethodPost, "/users", echo.Map{"full_name": "Other", "email": "ANA@example.com", "password": "x"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/users", echo.Map{"email": "b@example.com", "password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/users", echo.Map{"full_name": "B", "email": "b@example.com", "password": "x", "role_name": "ROOT"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	priv := echo.Map{"full_name": "B", "email": "b@example.com", "password": "x", "role_name": "ADMIN", "isAdmin": true}
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/users", priv, "").Code)

	ana := a.login("ana@example.com", "secret1")
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/users", priv, ana.Access.Token).Code)

	admin := a.login("admin@local", "123456")
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/users", priv, admin.Access.Token).Code)

	rec = a.do(http.MethodGet, "/users", nil, admin.Access.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []model.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 3)
	assert.Equal(t, "b@example.com", users[0].Email, "newest first")
	assert.NotContains(t, rec.Body.String(), "$2a$")

	assert.Equal(t, http.StatusForbidden, a.do(http.MethodGet, "/users", nil, ana.Access.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/users", nil, "").Code)
}

func TestAdminMutationsNeedServerSideAdmin(t *testing.T) {
	a := newAPI(t)
	uid := a.register("Ana", "ana@example.com", "secret1")
	ana := a.login("ana@example.com", "secret1")
	path := "/admin/users/" + itoa(uid) + "/grant-role"
	body := echo.Map{"role_name": "ADMIN", "isAdmin": true}

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, path, body, "").Code)
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, path, body, ana.Access.Token).Code)

	roles, err := a.store.UserRoles(context.Background(), uid)
	require.NoError(t, err)
	assert.Equal(t, []string{model.RoleUser}, roles)
}

func TestAdminEndpoints(t *testing.T) {
	a := newAPI(t)
	uid := a.register("Ana", "ana@example.com", "secret1")
	admin := a.login("admin@local", "123456").Access.Token
	base := "/admin/users/" + itoa(uid)

	rec := a.do(http.MethodGet, "/admin/roles", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["USUARIO","AGENTE","ADMIN"]`, rec.Body.String())
	rec = a.do(http.MethodGet, "/admin/permissions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), model.PermAdminPanel)

	ok := func(method, path string, body any) {
		t.Helper()
		rec := a.do(method, path, body, admin)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	}
	ok(http.MethodPost, base+"/grant-role", echo.Map{"role_name": "agente"})
	ok(http.MethodPost, base+"/grant-perm", echo.Map{"perm_code": model.PermUsersWrite})

	rec = a.do(http.MethodGet, base+"/roles", nil, admin)
	assert.JSONEq(t, `["USUARIO","AGENTE"]`, rec.Body.String())
	rec = a.do(http.MethodGet, base+"/perms?scope=direct", nil, admin)
	assert.JSONEq(t, `["tickets.read","users.write"]`, rec.Body.String())
	rec = a.do(http.MethodGet, base+"/perms", nil, admin)
	assert.JSONEq(t, `["tickets.read","tickets.write","users.read","users.write"]`, rec.Body.String())

	ok(http.MethodPost, base+"/revoke-perm", echo.Map{"perm_code": model.PermUsersWrite})
	ok(http.MethodPost, base+"/revoke-role", echo.Map{"role_name": "AGENTE"})
	ok(http.MethodPost, base+"/set-password", echo.Map{"new_password": "another1"})
	a.login("ana@example.com", "another1")

	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/set-password", echo.Map{"new_password": "abc"}, admin).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/grant-perm", echo.Map{"perm_code": "tickets.delete"}, admin).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, base+"/grant-role", echo.Map{}, admin).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodGet, "/admin/users/abc/roles", nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/admin/users/404/roles", nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPost, "/admin/users/404/activate", nil, admin).Code)

	ok(http.MethodPost, base+"/deactivate", nil)
	rec = a.do(http.MethodPost, "/auth/login", echo.Map{"email": "ana@example.com", "password": "another1"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	ok(http.MethodPost, base+"/activate", nil)
	a.login("ana@example.com", "another1")
}

func TestTickets(t *testing.T) {
	a := newAPI(t)
	uid := a.register("Ana", "ana@example.com", "secret1")
	agentID := a.register("Bob", "bob@example.com", "secret1")
	admin := a.login("admin@local", "123456").Access.Token
	require.Equal(t, http.StatusOK,
		a.do(http.MethodPost, "/admin/users/"+itoa(agentID)+"/grant-role", echo.Map{"role_name": "AGENTE"}, admin).Code)
	ana := a.login("ana@example.com", "secret1").Access.Token
	bob := a.login("bob@example.com", "secret1").Access.Token

	rec := a.do(http.MethodPost, "/tickets", echo.Map{"subject": "printer", "description": "jammed"}, ana)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodPost, "/tickets", echo.Map{"subject": "printer", "opened_by": agentID}, ana)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(http.MethodGet, "/tickets", nil, ana)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "rejected creates store nothing")

	rec = a.do(http.MethodPost, "/tickets", echo.Map{"subject": "printer", "opened_by": uid}, ana)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		TicketID uint64 `json:"ticket_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/tickets/" + itoa(created.TicketID)

	assign := echo.Map{"actor_id": agentID, "assignee_id": agentID}
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPut, path+"/assign", assign, ana).Code, "USUARIO lacks tickets.write")
	assert.Equal(t, http.StatusForbidden,
		a.do(http.MethodPut, path+"/assign", echo.Map{"actor_id": uid, "assignee_id": agentID}, bob).Code, "actor must be the caller")
	assert.Equal(t, http.StatusOK, a.do(http.MethodPut, path+"/assign", assign, bob).Code)
	assert.Equal(t, http.StatusNotFound, a.do(http.MethodPut, "/tickets/999/assign", assign, bob).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPut, path+"/assign", echo.Map{"actor_id": agentID}, bob).Code)

	status := echo.Map{"actor_id": agentID, "new_status": model.StatusInProgress}
	assert.Equal(t, http.StatusOK, a.do(http.MethodPut, path+"/status", status, bob).Code)
	assert.Equal(t, http.StatusBadRequest,
		a.do(http.MethodPut, path+"/status", echo.Map{"actor_id": agentID, "new_status": "Resolvido"}, bob).Code)

	rec = a.do(http.MethodGet, "/tickets", nil, ana)
	var list []model.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusInProgress, list[0].Status)
	assert.Equal(t, model.PriorityMedium, list[0].Priority)
	require.NotNil(t, list[0].AssignedTo)
	assert.Equal(t, agentID, *list[0].AssignedTo)

	assert.Equal(t, http.StatusOK, a.do(http.MethodDelete, path+"/assign", nil, bob).Code)
	rec = a.do(http.MethodGet, "/tickets", nil, ana)
	assert.Contains(t, rec.Body.String(), `"assigned_to":null`)
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }
