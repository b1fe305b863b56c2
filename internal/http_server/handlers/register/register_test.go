package register

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"account_service/internal/account"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements just enough of the repo for registration: saving with
// the same duplicate-name and live-duplicate-email checks the real repo makes.
type fakeStore struct {
	accounts map[string]models.Account
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
	f.accounts[acc.ID] = acc

	return acc.ID, nil
}

func (f *fakeStore) UpdateAccount(_ context.Context, _ models.Account) error { return nil }

func (f *fakeStore) UpdatePassword(_ context.Context, _ string, _ []byte) error { return nil }

func (f *fakeStore) UpdateState(_ context.Context, _ string, _ models.AccountState) error {
	return nil
}

func (f *fakeStore) SetSysadmin(_ context.Context, _ string, _ bool) error { return nil }

func (f *fakeStore) SaveRefreshToken(_ context.Context, _ string, _ []byte, _ time.Time) error {
	return nil
}

func (f *fakeStore) DeleteRefreshToken(_ context.Context, _ []byte) error { return nil }

func (f *fakeStore) DeleteRefreshTokensForAccount(_ context.Context, _ string) error { return nil }

func (f *fakeStore) AccountByID(_ context.Context, _ string) (models.Account, error) {
	return models.Account{}, storage.ErrAccountNotFound
}

func (f *fakeStore) AccountByName(_ context.Context, _ string) (models.Account, error) {
	return models.Account{}, storage.ErrAccountNotFound
}

func (f *fakeStore) AccountByLogin(_ context.Context, _ string) (models.Account, error) {
	return models.Account{}, storage.ErrAccountNotFound
}

func (f *fakeStore) ListAccounts(_ context.Context, _ string) ([]models.Account, error) {
	return nil, nil
}

func (f *fakeStore) AccountsByEmail(_ context.Context, _ string) ([]models.Account, error) {
	return nil, nil
}

func (f *fakeStore) GetRefreshToken(_ context.Context, _ string) (models.RefreshToken, error) {
	return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
}

type noopEvents struct{}

func (noopEvents) SendEvent(_ context.Context, _ models.Event) error { return nil }

func newHandler(t *testing.T, existing ...models.Account) (http.HandlerFunc, *fakeStore) {
	t.Helper()

	store := &fakeStore{accounts: map[string]models.Account{}}
	for _, acc := range existing {
		store.accounts[acc.ID] = acc
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := account.New(log, store, store, noopEvents{}, 15*time.Minute, 720*time.Hour, "test-secret")

	return New(log, validator.New(), svc), store
}

func doRequest(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestRegisterOK(t *testing.T) {
	handler, store := newHandler(t)

	rec := doRequest(t, handler, Request{
		Name:        "alice",
		DisplayName: "Alice Example",
		Email:       "a@example.com",
		Password1:   "TestPassword1",
		Password2:   "TestPassword1",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.accounts, 1)

	var res Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.ID)
}

func TestRegisterPasswordMismatch(t *testing.T) {
	handler, store := newHandler(t)

	rec := doRequest(t, handler, Request{
		Name:      "alice",
		Email:     "a@example.com",
		Password1: "TestPassword1",
		Password2: "Different2",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "The passwords you entered do not match")
	assert.Empty(t, store.accounts, "mismatched passwords must not create an account")
}

func TestRegisterWeakPassword(t *testing.T) {
	handler, store := newHandler(t)

	rec := doRequest(t, handler, Request{
		Name:      "alice",
		Email:     "a@example.com",
		Password1: "short",
		Password2: "short",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.accounts)
}

func TestRegisterNameTaken(t *testing.T) {
	taken := models.Account{ID: "id-alice", Name: "alice", Email: "a@example.com", State: models.StateActive}
	handler, _ := newHandler(t, taken)

	rec := doRequest(t, handler, Request{
		Name:      "alice",
		Email:     "other@example.com",
		Password1: "TestPassword1",
		Password2: "TestPassword1",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "That login name is not available")
}

func TestRegisterEmailTaken(t *testing.T) {
	taken := models.Account{ID: "id-alice", Name: "alice", Email: "a@example.com", State: models.StateActive}
	handler, _ := newHandler(t, taken)

	rec := doRequest(t, handler, Request{
		Name:      "bob",
		Email:     "a@example.com",
		Password1: "TestPassword1",
		Password2: "TestPassword1",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "The email address is already registered")
}
