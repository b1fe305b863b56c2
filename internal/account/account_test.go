package account

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"account_service/internal/lib/password"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeStore is an in-memory stand-in for the postgres repo, implementing
// both AccountSaver and AccountProvider the way the real repo does.
type fakeStore struct {
	accounts map[string]models.Account
	refresh  map[string]models.RefreshToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: map[string]models.Account{},
		refresh:  map[string]models.RefreshToken{},
	}
}

func (f *fakeStore) SaveAccount(_ context.Context, acc models.Account) (string, error) {
	for _, existing := range f.accounts {
		if existing.Name == acc.Name {
			return "", storage.ErrAccountExists
		}
		if existing.Email == acc.Email && existing.State != models.StateDeleted {
			return "", storage.ErrEmailTaken
		}
	}

	acc.ID = uuid.NewString()
	acc.CreatedAt = time.Now()
	f.accounts[acc.ID] = acc

	return acc.ID, nil
}

func (f *fakeStore) UpdateAccount(_ context.Context, acc models.Account) error {
	stored, ok := f.accounts[acc.ID]
	if !ok {
		return storage.ErrAccountNotFound
	}

	for id, existing := range f.accounts {
		if id == acc.ID {
			continue
		}
		if existing.Email == acc.Email && existing.State != models.StateDeleted {
			return storage.ErrEmailTaken
		}
		if existing.Name == acc.Name {
			return storage.ErrAccountExists
		}
	}

	acc.PassHash = stored.PassHash
	acc.State = stored.State
	acc.Sysadmin = stored.Sysadmin
	f.accounts[acc.ID] = acc

	return nil
}

func (f *fakeStore) UpdatePassword(_ context.Context, id string, passHash []byte) error {
	acc, ok := f.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}

	acc.PassHash = passHash
	f.accounts[id] = acc

	return nil
}

func (f *fakeStore) UpdateState(_ context.Context, id string, state models.AccountState) error {
	acc, ok := f.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}

	acc.State = state
	f.accounts[id] = acc

	return nil
}

func (f *fakeStore) SetSysadmin(_ context.Context, id string, sysadmin bool) error {
	acc, ok := f.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}

	acc.Sysadmin = sysadmin
	f.accounts[id] = acc

	return nil
}

func (f *fakeStore) SaveRefreshToken(_ context.Context, accountID string, tokenHash []byte, expiresAt time.Time) error {
	f.refresh[string(tokenHash)] = models.RefreshToken{
		TokenHash: tokenHash,
		AccountID: accountID,
		ExpiresAt: expiresAt,
	}

	return nil
}

func (f *fakeStore) DeleteRefreshToken(_ context.Context, tokenHash []byte) error {
	delete(f.refresh, string(tokenHash))

	return nil
}

func (f *fakeStore) DeleteRefreshTokensForAccount(_ context.Context, accountID string) error {
	for key, rt := range f.refresh {
		if rt.AccountID == accountID {
			delete(f.refresh, key)
		}
	}

	return nil
}

func (f *fakeStore) AccountByID(_ context.Context, id string) (models.Account, error) {
	acc, ok := f.accounts[id]
	if !ok {
		return models.Account{}, storage.ErrAccountNotFound
	}

	return acc, nil
}

func (f *fakeStore) AccountByName(_ context.Context, name string) (models.Account, error) {
	for _, acc := range f.accounts {
		if acc.Name == name {
			return acc, nil
		}
	}

	return models.Account{}, storage.ErrAccountNotFound
}

func (f *fakeStore) AccountByLogin(_ context.Context, login string) (models.Account, error) {
	for _, acc := range f.accounts {
		if acc.Name == login || (acc.Email == login && acc.State != models.StateDeleted) {
			return acc, nil
		}
	}

	return models.Account{}, storage.ErrAccountNotFound
}

func (f *fakeStore) ListAccounts(_ context.Context, _ string) ([]models.Account, error) {
	var out []models.Account
	for _, acc := range f.accounts {
		if acc.State == models.StateActive {
			out = append(out, acc)
		}
	}

	return out, nil
}

func (f *fakeStore) AccountsByEmail(_ context.Context, email string) ([]models.Account, error) {
	var out []models.Account
	for _, acc := range f.accounts {
		if acc.State == models.StateActive && acc.Email == email {
			out = append(out, acc)
		}
	}

	return out, nil
}

func (f *fakeStore) GetRefreshToken(_ context.Context, rawToken string) (models.RefreshToken, error) {
	for _, rt := range f.refresh {
		if rt.ExpiresAt.After(time.Now()) &&
			bcrypt.CompareHashAndPassword(rt.TokenHash, []byte(rawToken)) == nil {
			return rt, nil
		}
	}

	return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
}

type fakeEvents struct {
	events []models.Event
}

func (f *fakeEvents) SendEvent(_ context.Context, event models.Event) error {
	f.events = append(f.events, event)

	return nil
}

func newService(t *testing.T) (*Service, *fakeStore, *fakeEvents) {
	t.Helper()

	store := newFakeStore()
	events := &fakeEvents{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, store, store, events, time.Hour, 24*time.Hour, "test-secret"), store, events
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store, events := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "Alice A", "a@example.com", "TestPassword1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	acc := store.accounts[id]
	assert.Equal(t, models.StateActive, acc.State)
	assert.False(t, acc.Sysadmin)

	access, refresh, err := svc.Login(ctx, "alice", "TestPassword1")
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// email works as the login subject too
	_, _, err = svc.Login(ctx, "a@example.com", "TestPassword1")
	require.NoError(t, err)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventAccountCreated, events.events[0].Kind)
}

func TestRegisterPasswordPolicy(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		pass string
		want error
	}{
		{name: "too short", pass: "Ab1", want: password.ErrTooShort},
		{name: "no digit", pass: "Abcdefgh", want: password.ErrTooWeak},
		{name: "no upper case", pass: "abcdefg1", want: password.ErrTooWeak},
		{name: "no lower case", pass: "ABCDEFG1", want: password.ErrTooWeak},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, "bob", "Bob", "b@example.com", tt.pass)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "", "other@example.com", "TestPassword1")
	assert.ErrorIs(t, err, ErrAccountExists)

	_, err = svc.Register(ctx, "alice2", "", "a@example.com", "TestPassword1")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginNonActiveAccounts(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateState(ctx, id, models.StateDeleted))
	_, _, err = svc.Login(ctx, "alice", "TestPassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, store.UpdateState(ctx, id, models.StatePending))
	_, _, err = svc.Login(ctx, "alice", "TestPassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSetPasswordAndVerify(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	require.NoError(t, svc.SetPassword(ctx, id, "NewPassword2"))

	acc := store.accounts[id]
	assert.True(t, svc.VerifyPassword(acc, "NewPassword2"))
	assert.False(t, svc.VerifyPassword(acc, "TestPassword1"))
	assert.False(t, svc.VerifyPassword(acc, "wrong"))
}

func TestUpdateAccountNameImmutable(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	owner := models.Actor{ID: id, Name: "alice"}
	newName := "alice2"

	_, err = svc.UpdateAccount(ctx, owner, "alice", Update{Name: &newName})
	assert.ErrorIs(t, err, ErrImmutableName)

	admin := models.Actor{ID: uuid.NewString(), Sysadmin: true}
	acc, err := svc.UpdateAccount(ctx, admin, "alice", Update{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "alice2", acc.Name)
}

func TestUpdateAccountEmailNeedsPassword(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	owner := models.Actor{ID: id, Name: "alice"}
	newEmail := "new@example.com"

	_, err = svc.UpdateAccount(ctx, owner, "alice", Update{Email: &newEmail})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	acc, err := svc.UpdateAccount(ctx, owner, "alice", Update{
		Email:       &newEmail,
		OldPassword: "TestPassword1",
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", acc.Email)
}

func TestUpdateAccountForbiddenForStrangers(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	stranger := models.Actor{ID: uuid.NewString(), Name: "mallory"}
	about := "rewritten"

	_, err = svc.UpdateAccount(ctx, stranger, "alice", Update{About: &about})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDelete(t *testing.T) {
	svc, store, events := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "TestPassword1")
	require.NoError(t, err)
	require.NotEmpty(t, store.refresh)

	stranger := models.Actor{ID: uuid.NewString(), Name: "mallory"}
	err = svc.Delete(ctx, stranger, "alice")
	assert.ErrorIs(t, err, ErrForbidden)

	owner := models.Actor{ID: id, Name: "alice"}
	require.NoError(t, svc.Delete(ctx, owner, "alice"))

	assert.Equal(t, models.StateDeleted, store.accounts[id].State)
	assert.Empty(t, store.refresh, "sessions must be revoked on delete")

	kinds := make([]string, 0, len(events.events))
	for _, e := range events.events {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, models.EventAccountDeleted)

	// the record is retained but hidden from listings
	listed, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestSetSysadmin(t *testing.T) {
	svc, store, events := newService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "bob", "", "b@example.com", "TestPassword1")
	require.NoError(t, err)
	require.NoError(t, store.SetSysadmin(ctx, id, true))

	admin := models.Actor{ID: uuid.NewString(), Sysadmin: true}
	plain := models.Actor{ID: uuid.NewString()}

	err = svc.SetSysadmin(ctx, plain, "bob", false)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.True(t, store.accounts[id].Sysadmin)

	require.NoError(t, svc.SetSysadmin(ctx, admin, "bob", false))
	assert.False(t, store.accounts[id].Sysadmin)

	emitted := len(events.events)

	// repeating the revocation is a no-op with the same end state
	require.NoError(t, svc.SetSysadmin(ctx, admin, "bob", false))
	assert.False(t, store.accounts[id].Sysadmin)
	assert.Len(t, events.events, emitted, "no event for a no-op toggle")
}

func TestSearchByEmailRestricted(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	_, err = svc.SearchByEmail(ctx, models.Actor{}, "a@example.com")
	assert.ErrorIs(t, err, ErrForbidden)

	admin := models.Actor{ID: uuid.NewString(), Sysadmin: true}
	found, err := svc.SearchByEmail(ctx, admin, "a@example.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Name)
}

func TestActivate(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()

	admin := models.Actor{ID: uuid.NewString(), Sysadmin: true}
	id, err := svc.CreateInvited(ctx, admin, "carol", "Carol", "c@example.com")
	require.NoError(t, err)
	require.Equal(t, models.StatePending, store.accounts[id].State)

	require.NoError(t, svc.Activate(ctx, id))
	assert.Equal(t, models.StateActive, store.accounts[id].State)

	// already active: no-op
	require.NoError(t, svc.Activate(ctx, id))

	require.NoError(t, store.UpdateState(ctx, id, models.StateDeleted))
	assert.ErrorIs(t, svc.Activate(ctx, id), ErrForbidden)
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "", "a@example.com", "TestPassword1")
	require.NoError(t, err)

	_, refresh, err := svc.Login(ctx, "alice", "TestPassword1")
	require.NoError(t, err)

	_, newRefresh, err := svc.Refresh(ctx, refresh)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, newRefresh)

	// the old token must be gone after rotation
	_, _, err = svc.Refresh(ctx, refresh)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, svc.Logout(ctx, newRefresh))
	assert.ErrorIs(t, svc.Logout(ctx, newRefresh), ErrInvalidCredentials)
}

func TestCreateInvitedRequiresSysadmin(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateInvited(ctx, models.Actor{ID: uuid.NewString()}, "carol", "", "c@example.com")
	assert.ErrorIs(t, err, ErrForbidden)
}
