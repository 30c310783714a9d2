package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdeskhq/helpdesk/internal/model"
)

var userCols = []string{"user_id", "full_name", "email", "password_hash", "is_active", "created_at"}

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewMySQLStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func expectUserExists(mock sqlmock.Sqlmock, id uint64, exists bool) {
	rows := sqlmock.NewRows([]string{"1"})
	if exists {
		rows.AddRow(1)
	}
	mock.ExpectQuery(q("SELECT 1 FROM users WHERE user_id=? LIMIT 1")).WithArgs(id).WillReturnRows(rows)
}

func TestMySQLStoreGetUserByEmail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q("FROM users WHERE email=? LIMIT 1")).
		WithArgs("ana@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(3, "Ana", "ana@example.com", "hash", true, fixedNow))

	u, err := s.GetUserByEmail(context.Background(), "  Ana@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.True(t, u.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreGetUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(q("FROM users WHERE user_id=? LIMIT 1")).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := s.GetUser(context.Background(), 9)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreCreateUser(t *testing.T) {
	t.Run("inserts user, initial role and baseline permission", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO users")).
			WithArgs("Ana", "ana@example.com", "hash", true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(5, 1))
		mock.ExpectExec(q("INSERT IGNORE INTO user_roles")).
			WithArgs(5, model.RoleAgent).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q("INSERT IGNORE INTO user_permissions")).
			WithArgs(5, model.PermTicketsRead).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		u, err := s.CreateUser(context.Background(), model.NewUser{
			FullName: "Ana", Email: "ANA@example.com", PasswordHash: "hash", Role: model.RoleAgent,
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(5), u.ID)
		assert.Equal(t, "ana@example.com", u.Email)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email maps to ErrEmailExists", func(t *testing.T) {
		s, mock := newMockStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(q("INSERT INTO users")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'ana@example.com' for key 'email'"})
		mock.ExpectRollback()

		_, err := s.CreateUser(context.Background(), model.NewUser{FullName: "Ana", Email: "ana@example.com", PasswordHash: "h"})
		assert.ErrorIs(t, err, ErrEmailExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLStoreEffectivePermissions(t *testing.T) {
	s, mock := newMockStore(t)

	expectUserExists(mock, 7, true)
	mock.ExpectQuery("UNION").
		WithArgs(7, 7).
		WillReturnRows(sqlmock.NewRows([]string{"perm_code"}).AddRow("tickets.read").AddRow("users.read"))

	perms, err := s.EffectivePermissions(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets.read", "users.read"}, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreGrantRevoke(t *testing.T) {
	t.Run("grant uses insert ignore", func(t *testing.T) {
		s, mock := newMockStore(t)
		expectUserExists(mock, 4, true)
		mock.ExpectExec(q("INSERT IGNORE INTO user_roles")).
			WithArgs(4, model.RoleAgent).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, s.GrantRole(context.Background(), 4, model.RoleAgent))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("revoke permission", func(t *testing.T) {
		s, mock := newMockStore(t)
		expectUserExists(mock, 4, true)
		mock.ExpectExec(q("DELETE up FROM user_permissions up")).
			WithArgs(4, model.PermUsersRead).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.RevokePerm(context.Background(), 4, model.PermUsersRead))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		s, mock := newMockStore(t)
		expectUserExists(mock, 99, false)

		err := s.GrantPerm(context.Background(), 99, model.PermUsersRead)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLStoreTickets(t *testing.T) {
	t.Run("list maps nullable assignee", func(t *testing.T) {
		s, mock := newMockStore(t)
		cols := []string{"ticket_id", "subject", "description", "opened_by", "assigned_to", "status", "priority", "opened_at", "updated_at"}
		mock.ExpectQuery(q("FROM tickets ORDER BY ticket_id DESC")).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow(2, "b", "", 1, nil, model.StatusOpen, model.PriorityMedium, fixedNow, fixedNow).
				AddRow(1, "a", "d", 1, 3, model.StatusClosed, model.PriorityHigh, fixedNow, fixedNow))

		list, err := s.ListTickets(context.Background())
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Nil(t, list[0].AssignedTo)
		require.NotNil(t, list[1].AssignedTo)
		assert.Equal(t, uint64(3), *list[1].AssignedTo)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("create", func(t *testing.T) {
		s, mock := newMockStore(t)
		expectUserExists(mock, 1, true)
		mock.ExpectExec(q("INSERT INTO tickets")).
			WithArgs("printer", sqlmock.AnyArg(), 1, model.StatusOpen, model.PriorityMedium, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(11, 1))

		tk, err := s.CreateTicket(context.Background(), model.NewTicket{Subject: "printer", OpenedBy: 1, Priority: model.PriorityMedium})
		require.NoError(t, err)
		assert.Equal(t, uint64(11), tk.ID)
		assert.Equal(t, model.StatusOpen, tk.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("assign checks ticket and assignee", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("SELECT 1 FROM tickets WHERE ticket_id=? LIMIT 1")).
			WithArgs(11).
			WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		expectUserExists(mock, 3, true)
		mock.ExpectExec(q("UPDATE tickets SET assigned_to=?")).
			WithArgs(3, sqlmock.AnyArg(), 11).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assignee := uint64(3)
		require.NoError(t, s.AssignTicket(context.Background(), 11, &assignee))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status on unknown ticket", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("SELECT 1 FROM tickets WHERE ticket_id=? LIMIT 1")).
			WithArgs(50).
			WillReturnRows(sqlmock.NewRows([]string{"1"}))

		err := s.SetTicketStatus(context.Background(), 50, model.StatusClosed)
		assert.ErrorIs(t, err, ErrTicketNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMySQLStoreValidateRefresh(t *testing.T) {
	cols := []string{"user_id", "expires_at", "revoked_at"}

	t.Run("valid", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).
			WithArgs("h").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(4, fixedNow.Add(time.Hour), nil))

		id, err := s.ValidateRefresh(context.Background(), "h")
		require.NoError(t, err)
		assert.Equal(t, uint64(4), id)
	})

	t.Run("revoked", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).
			WithArgs("h").
			WillReturnRows(sqlmock.NewRows(cols).AddRow(4, fixedNow.Add(time.Hour), fixedNow))

		_, err := s.ValidateRefresh(context.Background(), "h")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(q("FROM refresh_tokens WHERE token_hash=?")).
			WithArgs("h").
			WillReturnRows(sqlmock.NewRows(cols))

		_, err := s.ValidateRefresh(context.Background(), "h")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestMySQLStoreRevokeRefreshOnce(t *testing.T) {
	s, mock := newMockStore(t)
	stmt := q("UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL")
	mock.ExpectExec(stmt).WithArgs("h").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(stmt).WithArgs("h").WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err := s.RevokeRefresh(context.Background(), "h")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = s.RevokeRefresh(context.Background(), "h")
	require.NoError(t, err)
	assert.False(t, revoked, "second rotation of the same token loses")
	assert.NoError(t, mock.ExpectationsWereMet())
}
