package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/helpdeskhq/helpdesk/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// MySQLStore implements Store on the relational schema created by
// database.Migrate.  Authentication lookups, grants and effective
// permissions are plain SQL here instead of stored procedures.
type MySQLStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewMySQLStore wraps an open connection pool.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{DB: db, now: time.Now}
}

const userColumns = "user_id, full_name, email, password_hash, is_active, created_at"

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	return u, err
}

func (r *MySQLStore) GetUser(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE user_id=? LIMIT 1", id))
}

func (r *MySQLStore) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// CreateUser inserts the user together with the initial role and the
// baseline permission in one transaction.
func (r *MySQLStore) CreateUser(ctx context.Context, nu model.NewUser) (model.User, error) {
	u := model.User{
		FullName:     nu.FullName,
		Email:        strings.ToLower(strings.TrimSpace(nu.Email)),
		PasswordHash: nu.PasswordHash,
		IsActive:     true,
		CreatedAt:    r.now().UTC(),
	}
	role := nu.Role
	if role == "" {
		role = model.RoleUser
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (full_name, email, password_hash, is_active, created_at) VALUES (?,?,?,?,?)",
		u.FullName, u.Email, u.PasswordHash, u.IsActive, u.CreatedAt)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	u.ID = uint64(id)

	if _, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO user_roles (user_id, role_id) SELECT ?, role_id FROM roles WHERE role_name=?",
		u.ID, role); err != nil {
		return model.User{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT IGNORE INTO user_permissions (user_id, perm_id) SELECT ?, perm_id FROM permissions WHERE perm_code=?",
		u.ID, model.BaselinePermission); err != nil {
		return model.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func (r *MySQLStore) requireUser(ctx context.Context, id uint64) error {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE user_id=? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	return err
}

func (r *MySQLStore) requireTicket(ctx context.Context, id uint64) error {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM tickets WHERE ticket_id=? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTicketNotFound
	}
	return err
}

func (r *MySQLStore) SetPassword(ctx context.Context, id uint64, hash string) error {
	if err := r.requireUser(ctx, id); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE user_id=?", hash, id)
	return err
}

func (r *MySQLStore) SetActive(ctx context.Context, id uint64, active bool) error {
	if err := r.requireUser(ctx, id); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET is_active=? WHERE user_id=?", active, id)
	return err
}

func (r *MySQLStore) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY user_id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *MySQLStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *MySQLStore) Roles(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "SELECT role_name FROM roles ORDER BY role_id")
}

func (r *MySQLStore) Permissions(ctx context.Context) ([]string, error) {
	return r.queryStrings(ctx, "SELECT perm_code FROM permissions ORDER BY perm_id")
}

func (r *MySQLStore) UserRoles(ctx context.Context, id uint64) ([]string, error) {
	if err := r.requireUser(ctx, id); err != nil {
		return nil, err
	}
	return r.queryStrings(ctx, `SELECT r.role_name
		FROM user_roles ur
		JOIN roles r ON r.role_id = ur.role_id
		WHERE ur.user_id = ?
		ORDER BY r.role_id`, id)
}

func (r *MySQLStore) UserPermissions(ctx context.Context, id uint64) ([]string, error) {
	if err := r.requireUser(ctx, id); err != nil {
		return nil, err
	}
	return r.queryStrings(ctx, `SELECT p.perm_code
		FROM user_permissions up
		JOIN permissions p ON p.perm_id = up.perm_id
		WHERE up.user_id = ?
		ORDER BY p.perm_id`, id)
}

// EffectivePermissions returns direct grants united with the
// permissions implied by the user's roles through role_permissions.
func (r *MySQLStore) EffectivePermissions(ctx context.Context, id uint64) ([]string, error) {
	if err := r.requireUser(ctx, id); err != nil {
		return nil, err
	}
	return r.queryStrings(ctx, `SELECT p.perm_code
		FROM user_permissions up
		JOIN permissions p ON p.perm_id = up.perm_id
		WHERE up.user_id = ?
		UNION
		SELECT p.perm_code
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.perm_id = rp.perm_id
		WHERE ur.user_id = ?
		ORDER BY perm_code`, id, id)
}

func (r *MySQLStore) GrantRole(ctx context.Context, id uint64, role string) error {
	return r.execForUser(ctx, id,
		"INSERT IGNORE INTO user_roles (user_id, role_id) SELECT ?, role_id FROM roles WHERE role_name=?", id, role)
}

func (r *MySQLStore) RevokeRole(ctx context.Context, id uint64, role string) error {
	return r.execForUser(ctx, id,
		"DELETE ur FROM user_roles ur JOIN roles r ON r.role_id = ur.role_id WHERE ur.user_id=? AND r.role_name=?", id, role)
}

func (r *MySQLStore) GrantPerm(ctx context.Context, id uint64, code string) error {
	return r.execForUser(ctx, id,
		"INSERT IGNORE INTO user_permissions (user_id, perm_id) SELECT ?, perm_id FROM permissions WHERE perm_code=?", id, code)
}

func (r *MySQLStore) RevokePerm(ctx context.Context, id uint64, code string) error {
	return r.execForUser(ctx, id,
		"DELETE up FROM user_permissions up JOIN permissions p ON p.perm_id = up.perm_id WHERE up.user_id=? AND p.perm_code=?", id, code)
}

func (r *MySQLStore) execForUser(ctx context.Context, id uint64, query string, args ...any) error {
	if err := r.requireUser(ctx, id); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx, query, args...)
	return err
}

func (r *MySQLStore) ListTickets(ctx context.Context) ([]model.Ticket, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ticket_id, subject, COALESCE(description, ''), opened_by,
		assigned_to, status, priority, opened_at, updated_at
		FROM tickets ORDER BY ticket_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Ticket{}
	for rows.Next() {
		var (
			t        model.Ticket
			assigned sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.Subject, &t.Description, &t.OpenedBy,
			&assigned, &t.Status, &t.Priority, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if assigned.Valid {
			a := uint64(assigned.Int64)
			t.AssignedTo = &a
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *MySQLStore) CreateTicket(ctx context.Context, nt model.NewTicket) (model.Ticket, error) {
	if err := r.requireUser(ctx, nt.OpenedBy); err != nil {
		return model.Ticket{}, err
	}
	now := r.now().UTC()
	t := model.Ticket{
		Subject:     nt.Subject,
		Description: nt.Description,
		OpenedBy:    nt.OpenedBy,
		Status:      model.StatusOpen,
		Priority:    nt.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO tickets (subject, description, opened_by, status, priority, opened_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`,
		t.Subject, nullString(t.Description), t.OpenedBy, t.Status, t.Priority, now, now)
	if err != nil {
		return model.Ticket{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Ticket{}, err
	}
	t.ID = uint64(id)
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *MySQLStore) AssignTicket(ctx context.Context, id uint64, assignee *uint64) error {
	if err := r.requireTicket(ctx, id); err != nil {
		return err
	}
	var val sql.NullInt64
	if assignee != nil {
		if err := r.requireUser(ctx, *assignee); err != nil {
			return err
		}
		val = sql.NullInt64{Int64: int64(*assignee), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE tickets SET assigned_to=?, updated_at=? WHERE ticket_id=?", val, r.now().UTC(), id)
	return err
}

func (r *MySQLStore) SetTicketStatus(ctx context.Context, id uint64, status string) error {
	if err := r.requireTicket(ctx, id); err != nil {
		return err
	}
	_, err := r.DB.ExecContext(ctx,
		"UPDATE tickets SET status=?, updated_at=? WHERE ticket_id=?", status, r.now().UTC(), id)
	return err
}

// StoreRefresh inserts a refresh token hash row.
func (r *MySQLStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, exp)
	return err
}

// ValidateRefresh returns userID if a non-revoked, non-expired token exists.
func (r *MySQLStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid || !r.now().UTC().Before(expiresAt) {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

// RevokeRefresh marks a token as revoked.  It reports false when the
// token was unknown or already revoked, so only one of two concurrent
// rotations of the same token wins.
func (r *MySQLStore) RevokeRefresh(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RevokeAllRefresh revokes all of a user's active tokens.
func (r *MySQLStore) RevokeAllRefresh(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

func (r *MySQLStore) Close() error { return r.DB.Close() }
