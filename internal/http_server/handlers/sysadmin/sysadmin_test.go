package sysadmin

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
	mwactor "account_service/internal/middleware/actor"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore covers the slice of the repo the promotion flow touches: lookup
// by name and flipping the sysadmin flag.
type fakeStore struct {
	accounts map[string]models.Account
}

func (f *fakeStore) SaveAccount(_ context.Context, acc models.Account) (string, error) {
	f.accounts[acc.ID] = acc
	return acc.ID, nil
}

func (f *fakeStore) UpdateAccount(_ context.Context, _ models.Account) error { return nil }

func (f *fakeStore) UpdatePassword(_ context.Context, _ string, _ []byte) error { return nil }

func (f *fakeStore) UpdateState(_ context.Context, _ string, _ models.AccountState) error {
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

func (f *fakeStore) SaveRefreshToken(_ context.Context, _ string, _ []byte, _ time.Time) error {
	return nil
}

func (f *fakeStore) DeleteRefreshToken(_ context.Context, _ []byte) error { return nil }

func (f *fakeStore) DeleteRefreshTokensForAccount(_ context.Context, _ string) error { return nil }

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
	return f.AccountByName(context.Background(), login)
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

type fakeEvents struct {
	events []models.Event
}

func (f *fakeEvents) SendEvent(_ context.Context, event models.Event) error {
	f.events = append(f.events, event)
	return nil
}

func newRouter(t *testing.T, accounts ...models.Account) (*chi.Mux, *fakeStore, *fakeEvents) {
	t.Helper()

	store := &fakeStore{accounts: map[string]models.Account{}}
	for _, acc := range accounts {
		store.accounts[acc.ID] = acc
	}

	events := &fakeEvents{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := account.New(log, store, store, events, 15*time.Minute, 720*time.Hour, "test-secret")

	r := chi.NewRouter()
	r.Post("/users/{name}/sysadmin", New(log, svc))

	return r, store, events
}

func doRequest(t *testing.T, router *chi.Mux, target string, status int, act models.Actor) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(Request{Status: status})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/users/"+target+"/sysadmin", bytes.NewReader(payload))
	req = req.WithContext(mwactor.WithActor(req.Context(), act))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	return rec
}

func TestSysadminPromote(t *testing.T) {
	admin := models.Actor{ID: "id-root", Name: "root", Sysadmin: true}
	bob := models.Account{ID: "id-bob", Name: "bob", State: models.StateActive}
	router, store, events := newRouter(t, bob)

	rec := doRequest(t, router, "bob", 1, admin)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, store.accounts["id-bob"].Sysadmin)
	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventAccountPromoted, events.events[0].Kind)
}

func TestSysadminRevoke(t *testing.T) {
	admin := models.Actor{ID: "id-root", Name: "root", Sysadmin: true}
	bob := models.Account{ID: "id-bob", Name: "bob", State: models.StateActive, Sysadmin: true}
	router, store, events := newRouter(t, bob)

	rec := doRequest(t, router, "bob", 0, admin)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, store.accounts["id-bob"].Sysadmin)
	require.Len(t, events.events, 1)
	assert.Equal(t, models.EventAccountDemoted, events.events[0].Kind)
}

func TestSysadminNonAdminForbidden(t *testing.T) {
	bob := models.Account{ID: "id-bob", Name: "bob", State: models.StateActive}
	router, store, _ := newRouter(t, bob)

	rec := doRequest(t, router, "bob", 1, models.Actor{ID: "id-mallory", Name: "mallory"})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Need to be system administrator")
	assert.False(t, store.accounts["id-bob"].Sysadmin)
}

func TestSysadminUnknownUser(t *testing.T) {
	admin := models.Actor{ID: "id-root", Name: "root", Sysadmin: true}
	router, _, _ := newRouter(t)

	rec := doRequest(t, router, "nobody", 1, admin)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "User not found")
}
