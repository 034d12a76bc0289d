package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/dbx"
	"github.com/prashikshan/portal-auth/internal/server/audit"
	"github.com/prashikshan/portal-auth/internal/server/models"
	refreshtokensrepo "github.com/prashikshan/portal-auth/internal/server/repositories/refreshtokens"
	usersrepo "github.com/prashikshan/portal-auth/internal/server/repositories/users"
)

var errBoom = errors.New("boom")

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectTx queues n committed transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

// fakeUsers is an in-memory users.Repository with the same error contract as
// the PostgreSQL one.
type fakeUsers struct {
	mu     sync.Mutex
	byID   map[string]*models.User
	nextID int

	getErr    error
	createErr error

	creates    int
	increments int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*models.User{}}
}

func (f *fakeUsers) add(u models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == "" {
		f.nextID++
		u.ID = fmt.Sprintf("u-%d", f.nextID)
	}
	cp := u
	f.byID[u.ID] = &cp
	return &u
}

func (f *fakeUsers) get(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.byID[id]
	return &cp
}

func (f *fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	email := models.NormalizeEmail(u.Email)
	for _, existing := range f.byID {
		if existing.Email == email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.creates++
	f.nextID++
	cp := *u
	cp.ID = fmt.Sprintf("u-%d", f.nextID)
	cp.Email = email
	cp.Active = true
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	email = models.NormalizeEmail(email)
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) update(id string, fn func(u *models.User)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (f *fakeUsers) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	var n int
	err := f.update(id, func(u *models.User) {
		u.FailedLoginCount++
		n = u.FailedLoginCount
	})
	f.increments++
	return n, err
}

func (f *fakeUsers) ResetFailedAttempts(ctx context.Context, id string) error {
	return f.update(id, func(u *models.User) {
		u.FailedLoginCount = 0
		u.LockedUntil = nil
	})
}

func (f *fakeUsers) SetLockedUntil(ctx context.Context, id string, until time.Time) error {
	return f.update(id, func(u *models.User) { u.LockedUntil = &until })
}

func (f *fakeUsers) SetActive(ctx context.Context, id string, active bool) error {
	return f.update(id, func(u *models.User) { u.Active = active })
}

func (f *fakeUsers) SetVerified(ctx context.Context, id string, verified bool) error {
	return f.update(id, func(u *models.User) { u.Verified = verified })
}

func (f *fakeUsers) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	return f.update(id, func(u *models.User) { u.PasswordHash = hash })
}

func (f *fakeUsers) IncrementTokenVersion(ctx context.Context, id string) (int64, error) {
	var v int64
	err := f.update(id, func(u *models.User) {
		u.TokenVersion++
		v = u.TokenVersion
	})
	return v, err
}

type fakeRefresh struct {
	mu   sync.Mutex
	rows map[string]models.RefreshToken

	findErr   error
	createErr error
	deleteErr error

	// beforeConsume runs ahead of Consume to model a competing redemption.
	beforeConsume func()
}

func newFakeRefresh() *fakeRefresh {
	return &fakeRefresh{rows: map[string]models.RefreshToken{}}
}

func (f *fakeRefresh) Create(ctx context.Context, userID string, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.rows[token] = models.RefreshToken{ID: token, UserID: userID, Token: token, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeRefresh) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	rt, ok := f.rows[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &rt, nil
}

func (f *fakeRefresh) Delete(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.rows, token)
	return nil
}

func (f *fakeRefresh) Consume(ctx context.Context, token string) error {
	if f.beforeConsume != nil {
		f.beforeConsume()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rows[token]; !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, token)
	return nil
}

func (f *fakeRefresh) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, rt := range f.rows {
		if rt.UserID == userID {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefresh) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	var n int64
	for k, rt := range f.rows {
		if rt.Expired(now) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRefresh) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeRepoManager struct {
	u *fakeUsers
	r *fakeRefresh
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) Emit(_ context.Context, e audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []audit.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}
