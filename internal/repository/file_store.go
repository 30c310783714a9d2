package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpdeskhq/helpdesk/internal/authz"
	"github.com/helpdeskhq/helpdesk/internal/model"
	"github.com/helpdeskhq/helpdesk/internal/utils"
)

// rename is swapped in tests to simulate a crash between writing the
// temporary file and publishing it.
var rename = os.Rename

// dataset is the on-disk JSON document.  The key names are part of the
// file format and must not change.
type dataset struct {
	Users         []fileUser           `json:"users"`
	Roles         []string             `json:"roles"`
	Permissions   []string             `json:"permissions"`
	UserRoles     map[string][]string  `json:"userRoles"`
	UserPerms     map[string][]string  `json:"userPerms"`
	NextUserID    uint64               `json:"nextUserId"`
	Tickets       []model.Ticket       `json:"tickets"`
	NextTicketID  uint64               `json:"nextTicketId"`
	RefreshTokens []model.RefreshToken `json:"refreshTokens"`
}

// fileUser is the persisted form of a user.  Password is only read, to
// migrate data files written before passwords were hashed.
type fileUser struct {
	ID           uint64    `json:"user_id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Password     string    `json:"password,omitempty"`
	IsActive     flag      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// flag decodes both JSON booleans and the 0/1 integers older files use.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("invalid flag value %s", b)
	}
	return nil
}

func (u fileUser) toModel() model.User {
	return model.User{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsActive:     bool(u.IsActive),
		CreatedAt:    u.CreatedAt,
	}
}

// FileStoreOptions configures OpenFileStore.
type FileStoreOptions struct {
	Path string
	Seed SeedAdmin
	// HashPassword hashes plaintext passwords found in legacy files.
	HashPassword func(plain string) (string, error)
	Logger       *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// FileStore keeps the whole dataset in one JSON document.  Every
// mutation rewrites the document through a temporary file and an atomic
// rename, so readers only ever see a complete old or new document.
// Mutations are serialised by mu; a failed write leaves both the file
// and the in-memory state untouched.
type FileStore struct {
	mu     sync.RWMutex
	path   string
	data   *dataset
	seed   SeedAdmin
	hash   func(string) (string, error)
	logger *zap.Logger
	now    func() time.Time
}

// OpenFileStore loads the document at opts.Path.  A missing file is
// created with the seed dataset.  A file that cannot be parsed is copied
// aside under a timestamped backup name and replaced by the seed dataset.
func OpenFileStore(opts FileStoreOptions) (*FileStore, error) {
	if opts.Path == "" {
		return nil, errors.New("file store: empty path")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &FileStore{
		path:   opts.Path,
		seed:   opts.Seed,
		hash:   opts.HashPassword,
		logger: opts.Logger.Named("filestore"),
		now:    opts.Now,
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: mkdir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		d := s.defaultDataset()
		if err := writeAtomic(s.path, d); err != nil {
			return fmt.Errorf("file store: write seed: %w", err)
		}
		s.data = d
		s.logger.Info("data file created with seed dataset", zap.String("path", s.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("file store: read: %w", err)
	}

	var d dataset
	if err := json.Unmarshal(raw, &d); err != nil {
		return s.backupAndReset(raw, err)
	}
	changed, err := s.normalize(&d)
	if err != nil {
		return fmt.Errorf("file store: normalize: %w", err)
	}
	if changed {
		if err := writeAtomic(s.path, &d); err != nil {
			return fmt.Errorf("file store: write normalized: %w", err)
		}
	}
	s.data = &d
	s.logger.Info("data file loaded", zap.String("path", s.path), zap.Int("users", len(d.Users)))
	return nil
}

// backupAndReset quarantines a corrupt document and starts over from the
// seed dataset.
func (s *FileStore) backupAndReset(raw []byte, cause error) error {
	bak := s.backupPath()
	if err := os.WriteFile(bak, raw, 0o600); err != nil {
		s.logger.Error("backup of corrupt data file failed", zap.String("backup", bak), zap.Error(err))
	} else {
		s.logger.Warn("data file invalid, backup saved",
			zap.String("backup", bak), zap.NamedError("cause", cause))
	}
	d := s.defaultDataset()
	if err := writeAtomic(s.path, d); err != nil {
		return fmt.Errorf("file store: write seed after reset: %w", err)
	}
	s.data = d
	return nil
}

func (s *FileStore) backupPath() string {
	dir, base := filepath.Split(s.path)
	ext := filepath.Ext(base)
	stamp := s.now().UTC().Format("20060102150405")
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+".backup-"+stamp+ext)
}

func (s *FileStore) defaultDataset() *dataset {
	d := &dataset{
		Roles:        model.DefaultRoles(),
		Permissions:  model.DefaultPermissions(),
		UserRoles:    map[string][]string{},
		UserPerms:    map[string][]string{},
		NextUserID:   1,
		NextTicketID: 1,
	}
	s.ensureSeedAdmin(d)
	return d
}

// ensureSeedAdmin adds the seed administrator when its email is absent.
// It reports whether the dataset changed.
func (s *FileStore) ensureSeedAdmin(d *dataset) bool {
	if s.seed.Email == "" {
		return false
	}
	for _, u := range d.Users {
		if strings.EqualFold(u.Email, s.seed.Email) {
			k := key(u.ID)
			if _, ok := d.UserRoles[k]; ok {
				return false
			}
			d.UserRoles[k] = []string{model.RoleAdmin}
			if _, ok := d.UserPerms[k]; !ok {
				d.UserPerms[k] = model.DefaultPermissions()
			}
			return true
		}
	}
	id := uint64(1)
	for _, u := range d.Users {
		if u.ID == 1 {
			id = d.NextUserID
			break
		}
	}
	if d.NextUserID <= id {
		d.NextUserID = id + 1
	}
	d.Users = append(d.Users, fileUser{
		ID:           id,
		FullName:     s.seed.FullName,
		Email:        strings.ToLower(strings.TrimSpace(s.seed.Email)),
		PasswordHash: s.seed.PasswordHash,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	})
	d.UserRoles[key(id)] = []string{model.RoleAdmin}
	d.UserPerms[key(id)] = model.DefaultPermissions()
	s.logger.Info("seed administrator created", zap.Uint64("user_id", id))
	return true
}

// normalize fills in missing collections and counters, migrates legacy
// plaintext passwords and re-creates the seed administrator.
func (s *FileStore) normalize(d *dataset) (bool, error) {
	changed := false
	if d.Users == nil {
		d.Users = []fileUser{}
		changed = true
	}
	if len(d.Roles) == 0 {
		d.Roles = model.DefaultRoles()
		changed = true
	}
	if len(d.Permissions) == 0 {
		d.Permissions = model.DefaultPermissions()
		changed = true
	}
	if d.UserRoles == nil {
		d.UserRoles = map[string][]string{}
		changed = true
	}
	if d.UserPerms == nil {
		d.UserPerms = map[string][]string{}
		changed = true
	}
	if d.Tickets == nil {
		d.Tickets = []model.Ticket{}
		changed = true
	}

	var maxUser, maxTicket uint64
	for i := range d.Users {
		u := &d.Users[i]
		if u.ID > maxUser {
			maxUser = u.ID
		}
		if u.Password != "" {
			if u.PasswordHash == "" && utils.IsBcryptHash(u.Password) {
				u.PasswordHash = u.Password // hashed value stored under the legacy key
			}
			if u.PasswordHash == "" {
				if s.hash == nil {
					return false, errors.New("plaintext password found and no hasher configured")
				}
				h, err := s.hash(u.Password)
				if err != nil {
					return false, err
				}
				u.PasswordHash = h
			}
			u.Password = ""
			changed = true
		}
	}
	for _, t := range d.Tickets {
		if t.ID > maxTicket {
			maxTicket = t.ID
		}
	}
	if d.NextUserID <= maxUser {
		d.NextUserID = maxUser + 1
		changed = true
	}
	if d.NextTicketID <= maxTicket {
		d.NextTicketID = maxTicket + 1
		changed = true
	}
	if s.ensureSeedAdmin(d) {
		changed = true
	}
	return changed, nil
}

// writeAtomic marshals v into a temporary file next to path, syncs it and
// renames it over path.
func writeAtomic(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	err = rename(tmpName, path)
	return err
}

// mutate runs fn on a copy of the dataset and publishes the copy only if
// it was written to disk.
func (s *FileStore) mutate(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.data.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := writeAtomic(s.path, next); err != nil {
		s.logger.Error("persist data file failed", zap.Error(err))
		return fmt.Errorf("file store: persist: %w", err)
	}
	s.data = next
	return nil
}

func (d *dataset) clone() *dataset {
	c := *d
	c.Users = append([]fileUser(nil), d.Users...)
	c.Roles = append([]string(nil), d.Roles...)
	c.Permissions = append([]string(nil), d.Permissions...)
	c.UserRoles = cloneSets(d.UserRoles)
	c.UserPerms = cloneSets(d.UserPerms)
	c.Tickets = copyTickets(d.Tickets)
	c.RefreshTokens = append([]model.RefreshToken(nil), d.RefreshTokens...)
	return &c
}

func copyTickets(ts []model.Ticket) []model.Ticket {
	out := make([]model.Ticket, len(ts))
	for i, t := range ts {
		if t.AssignedTo != nil {
			a := *t.AssignedTo
			t.AssignedTo = &a
		}
		out[i] = t
	}
	return out
}

func cloneSets(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func key(id uint64) string { return strconv.FormatUint(id, 10) }

func (d *dataset) userIndex(id uint64) int {
	for i, u := range d.Users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (d *dataset) ticketIndex(id uint64) int {
	for i, t := range d.Tickets {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// ----- users -----

func (s *FileStore) GetUser(_ context.Context, id uint64) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.data.userIndex(id)
	if i < 0 {
		return model.User{}, ErrUserNotFound
	}
	return s.data.Users[i].toModel(), nil
}

func (s *FileStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	email = strings.TrimSpace(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.data.Users {
		if strings.EqualFold(u.Email, email) {
			return u.toModel(), nil
		}
	}
	return model.User{}, ErrUserNotFound
}

func (s *FileStore) CreateUser(_ context.Context, nu model.NewUser) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	role := nu.Role
	if role == "" {
		role = model.RoleUser
	}
	var created fileUser
	err := s.mutate(func(d *dataset) error {
		for _, u := range d.Users {
			if strings.EqualFold(u.Email, email) {
				return ErrEmailExists
			}
		}
		created = fileUser{
			ID:           d.NextUserID,
			FullName:     nu.FullName,
			Email:        email,
			PasswordHash: nu.PasswordHash,
			IsActive:     true,
			CreatedAt:    s.now().UTC(),
		}
		d.NextUserID++
		d.Users = append(d.Users, created)
		k := key(created.ID)
		d.UserRoles[k] = addToSet(d.UserRoles[k], role)
		d.UserPerms[k] = addToSet(d.UserPerms[k], model.BaselinePermission)
		return nil
	})
	if err != nil {
		return model.User{}, err
	}
	return created.toModel(), nil
}

func (s *FileStore) SetPassword(_ context.Context, id uint64, hash string) error {
	return s.mutate(func(d *dataset) error {
		i := d.userIndex(id)
		if i < 0 {
			return ErrUserNotFound
		}
		d.Users[i].PasswordHash = hash
		return nil
	})
}

func (s *FileStore) SetActive(_ context.Context, id uint64, active bool) error {
	return s.mutate(func(d *dataset) error {
		i := d.userIndex(id)
		if i < 0 {
			return ErrUserNotFound
		}
		d.Users[i].IsActive = flag(active)
		return nil
	})
}

func (s *FileStore) ListUsers(_ context.Context) ([]model.User, error) {
	s.mu.RLock()
	out := make([]model.User, 0, len(s.data.Users))
	for _, u := range s.data.Users {
		out = append(out, u.toModel())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// ----- roles and permissions -----

func (s *FileStore) Roles(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.data.Roles...), nil
}

func (s *FileStore) Permissions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.data.Permissions...), nil
}

func (s *FileStore) UserRoles(_ context.Context, id uint64) ([]string, error) {
	return s.userSet(id, func(d *dataset) map[string][]string { return d.UserRoles })
}

func (s *FileStore) UserPermissions(_ context.Context, id uint64) ([]string, error) {
	return s.userSet(id, func(d *dataset) map[string][]string { return d.UserPerms })
}

func (s *FileStore) userSet(id uint64, pick func(d *dataset) map[string][]string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.userIndex(id) < 0 {
		return nil, ErrUserNotFound
	}
	return append([]string{}, pick(s.data)[key(id)]...), nil
}

func (s *FileStore) EffectivePermissions(_ context.Context, id uint64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data.userIndex(id) < 0 {
		return nil, ErrUserNotFound
	}
	k := key(id)
	return authz.Effective(s.data.UserRoles[k], s.data.UserPerms[k]), nil
}

func (s *FileStore) GrantRole(_ context.Context, id uint64, role string) error {
	return s.updateSet(id, func(d *dataset) map[string][]string { return d.UserRoles }, func(set []string) []string {
		return addToSet(set, role)
	})
}

func (s *FileStore) RevokeRole(_ context.Context, id uint64, role string) error {
	return s.updateSet(id, func(d *dataset) map[string][]string { return d.UserRoles }, func(set []string) []string {
		return removeFromSet(set, role)
	})
}

func (s *FileStore) GrantPerm(_ context.Context, id uint64, code string) error {
	return s.updateSet(id, func(d *dataset) map[string][]string { return d.UserPerms }, func(set []string) []string {
		return addToSet(set, code)
	})
}

func (s *FileStore) RevokePerm(_ context.Context, id uint64, code string) error {
	return s.updateSet(id, func(d *dataset) map[string][]string { return d.UserPerms }, func(set []string) []string {
		return removeFromSet(set, code)
	})
}

func (s *FileStore) updateSet(id uint64, pick func(d *dataset) map[string][]string, fn func([]string) []string) error {
	return s.mutate(func(d *dataset) error {
		if d.userIndex(id) < 0 {
			return ErrUserNotFound
		}
		m := pick(d)
		m[key(id)] = fn(m[key(id)])
		return nil
	})
}

func addToSet(set []string, v string) []string {
	for _, s := range set {
		if s == v {
			return set
		}
	}
	return append(set, v)
}

func removeFromSet(set []string, v string) []string {
	out := make([]string, 0, len(set))
	for _, s := range set {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// ----- tickets -----

func (s *FileStore) ListTickets(_ context.Context) ([]model.Ticket, error) {
	s.mu.RLock()
	out := copyTickets(s.data.Tickets)
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *FileStore) CreateTicket(_ context.Context, nt model.NewTicket) (model.Ticket, error) {
	var t model.Ticket
	err := s.mutate(func(d *dataset) error {
		if d.userIndex(nt.OpenedBy) < 0 {
			return ErrUserNotFound
		}
		now := s.now().UTC()
		t = model.Ticket{
			ID:          d.NextTicketID,
			Subject:     nt.Subject,
			Description: nt.Description,
			OpenedBy:    nt.OpenedBy,
			Status:      model.StatusOpen,
			Priority:    nt.Priority,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		d.NextTicketID++
		d.Tickets = append(d.Tickets, t)
		return nil
	})
	return t, err
}

func (s *FileStore) AssignTicket(_ context.Context, id uint64, assignee *uint64) error {
	return s.mutate(func(d *dataset) error {
		i := d.ticketIndex(id)
		if i < 0 {
			return ErrTicketNotFound
		}
		if assignee != nil {
			if d.userIndex(*assignee) < 0 {
				return ErrUserNotFound
			}
			a := *assignee
			assignee = &a
		}
		d.Tickets[i].AssignedTo = assignee
		d.Tickets[i].UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *FileStore) SetTicketStatus(_ context.Context, id uint64, status string) error {
	return s.mutate(func(d *dataset) error {
		i := d.ticketIndex(id)
		if i < 0 {
			return ErrTicketNotFound
		}
		d.Tickets[i].Status = status
		d.Tickets[i].UpdatedAt = s.now().UTC()
		return nil
	})
}

// ----- refresh tokens -----

func (s *FileStore) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return s.mutate(func(d *dataset) error {
		now := s.now().UTC()
		kept := d.RefreshTokens[:0]
		for _, t := range d.RefreshTokens {
			if !t.Revoked && now.Before(t.ExpiresAt) {
				kept = append(kept, t)
			}
		}
		d.RefreshTokens = append(kept, model.RefreshToken{
			UserID:    userID,
			TokenHash: tokenHash,
			ExpiresAt: exp,
			CreatedAt: now,
		})
		return nil
	})
}

func (s *FileStore) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.data.RefreshTokens {
		if t.TokenHash != tokenHash {
			continue
		}
		if t.Revoked || !s.now().UTC().Before(t.ExpiresAt) {
			return 0, ErrInvalidToken
		}
		return t.UserID, nil
	}
	return 0, ErrInvalidToken
}

// RevokeRefresh revokes a live token and reports whether it did.  The
// check and the mark happen under the same lock.
func (s *FileStore) RevokeRefresh(_ context.Context, tokenHash string) (bool, error) {
	revoked := false
	err := s.mutate(func(d *dataset) error {
		for i := range d.RefreshTokens {
			if d.RefreshTokens[i].TokenHash == tokenHash && !d.RefreshTokens[i].Revoked {
				d.RefreshTokens[i].Revoked = true
				revoked = true
			}
		}
		if !revoked {
			return errNothingRevoked
		}
		return nil
	})
	if errors.Is(err, errNothingRevoked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// errNothingRevoked aborts a mutation that would not change anything.
var errNothingRevoked = errors.New("no live token")

func (s *FileStore) RevokeAllRefresh(_ context.Context, userID uint64) error {
	return s.mutate(func(d *dataset) error {
		for i := range d.RefreshTokens {
			if d.RefreshTokens[i].UserID == userID {
				d.RefreshTokens[i].Revoked = true
			}
		}
		return nil
	})
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error { return nil }
