package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/helpdeskhq/helpdesk/internal/model"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id       BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		full_name     VARCHAR(120) NOT NULL,
		email         VARCHAR(190) NOT NULL,
		password_hash VARCHAR(100) NOT NULL,
		is_active     TINYINT(1) NOT NULL DEFAULT 1,
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci`,
	`CREATE TABLE IF NOT EXISTS roles (
		role_id   INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		role_name VARCHAR(40) NOT NULL,
		UNIQUE KEY uq_roles_name (role_name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS permissions (
		perm_id   INT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		perm_code VARCHAR(60) NOT NULL,
		UNIQUE KEY uq_permissions_code (perm_code)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id INT UNSIGNED NOT NULL,
		perm_id INT UNSIGNED NOT NULL,
		PRIMARY KEY (role_id, perm_id),
		FOREIGN KEY (role_id) REFERENCES roles(role_id) ON DELETE CASCADE,
		FOREIGN KEY (perm_id) REFERENCES permissions(perm_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		user_id BIGINT UNSIGNED NOT NULL,
		role_id INT UNSIGNED NOT NULL,
		PRIMARY KEY (user_id, role_id),
		FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
		FOREIGN KEY (role_id) REFERENCES roles(role_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS user_permissions (
		user_id BIGINT UNSIGNED NOT NULL,
		perm_id INT UNSIGNED NOT NULL,
		PRIMARY KEY (user_id, perm_id),
		FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
		FOREIGN KEY (perm_id) REFERENCES permissions(perm_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tickets (
		ticket_id   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		subject     VARCHAR(200) NOT NULL,
		description TEXT NULL,
		opened_by   BIGINT UNSIGNED NOT NULL,
		assigned_to BIGINT UNSIGNED NULL,
		status      VARCHAR(20) NOT NULL DEFAULT 'Aberto',
		priority    VARCHAR(10) NOT NULL DEFAULT 'Média',
		opened_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		KEY idx_tickets_opened_by (opened_by),
		FOREIGN KEY (opened_by) REFERENCES users(user_id),
		FOREIGN KEY (assigned_to) REFERENCES users(user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY idx_refresh_user (user_id),
		FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
}

// Migrate creates the schema if it is missing and seeds the fixed role
// and permission catalogs together with the role -> permission mapping.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	for _, role := range model.DefaultRoles() {
		if _, err := db.ExecContext(ctx, "INSERT IGNORE INTO roles (role_name) VALUES (?)", role); err != nil {
			return fmt.Errorf("seed role %s: %w", role, err)
		}
	}
	for _, code := range model.DefaultPermissions() {
		if _, err := db.ExecContext(ctx, "INSERT IGNORE INTO permissions (perm_code) VALUES (?)", code); err != nil {
			return fmt.Errorf("seed permission %s: %w", code, err)
		}
	}
	for _, role := range model.DefaultRoles() {
		for _, code := range model.RolePermissions(role) {
			if _, err := db.ExecContext(ctx,
				`INSERT IGNORE INTO role_permissions (role_id, perm_id)
				SELECT r.role_id, p.perm_id FROM roles r, permissions p
				WHERE r.role_name=? AND p.perm_code=?`, role, code); err != nil {
				return fmt.Errorf("seed role permission %s/%s: %w", role, code, err)
			}
		}
	}
	return nil
}
