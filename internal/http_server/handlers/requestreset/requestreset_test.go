package requestreset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"account_service/internal/models"
	"account_service/internal/resetkey"
	"account_service/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyStore struct {
	keys map[string]string
}

func (f *fakeKeyStore) SetResetKey(_ context.Context, accountID, keyDigest string, _ time.Duration) error {
	f.keys[accountID] = keyDigest
	return nil
}

func (f *fakeKeyStore) GetResetKey(_ context.Context, accountID string) (string, error) {
	digest, ok := f.keys[accountID]
	if !ok {
		return "", storage.ErrResetKeyNotFound
	}
	return digest, nil
}

func (f *fakeKeyStore) DeleteResetKey(_ context.Context, accountID string) error {
	delete(f.keys, accountID)
	return nil
}

type fakeAccounts struct {
	accounts []models.Account
}

func (f *fakeAccounts) AccountByLogin(_ context.Context, login string) (models.Account, error) {
	for _, acc := range f.accounts {
		if acc.Name == login || acc.Email == login {
			return acc, nil
		}
	}
	return models.Account{}, storage.ErrAccountNotFound
}

type noopCredentials struct{}

func (noopCredentials) SetPassword(_ context.Context, _, _ string) error { return nil }

func (noopCredentials) Activate(_ context.Context, _ string) error { return nil }

type fakeMailer struct {
	sent    []models.Message
	sendErr error
}

func (f *fakeMailer) SendMessage(_ context.Context, msg models.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newHandler(t *testing.T, accounts ...models.Account) (http.HandlerFunc, *fakeKeyStore, *fakeMailer) {
	t.Helper()

	keys := &fakeKeyStore{keys: map[string]string{}}
	mailer := &fakeMailer{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := resetkey.New(
		log, keys, &fakeAccounts{accounts: accounts}, noopCredentials{}, mailer,
		time.Hour, "http://localhost:8080",
	)

	return New(log, validator.New(), svc), keys, mailer
}

func doRequest(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/reset/request", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestRequestResetOK(t *testing.T) {
	alice := models.Account{ID: "id-alice", Name: "alice", Email: "a@example.com", State: models.StateActive}
	handler, keys, mailer := newHandler(t, alice)

	rec := doRequest(t, handler, Request{User: "alice"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, keys.keys["id-alice"])
	require.Len(t, mailer.sent, 1)
}

func TestRequestResetUnknownSubjectLooksLikeSuccess(t *testing.T) {
	alice := models.Account{ID: "id-alice", Name: "alice", Email: "a@example.com", State: models.StateActive}
	handler, keys, mailer := newHandler(t, alice)

	known := doRequest(t, handler, Request{User: "alice"})
	unknown := doRequest(t, handler, Request{User: "nobody"})

	// an unknown subject must be indistinguishable from a known one
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())

	// but no key is issued and no mail goes out for it
	require.Len(t, keys.keys, 1)
	require.Len(t, mailer.sent, 1)
}

func TestRequestResetMailerFailure(t *testing.T) {
	alice := models.Account{ID: "id-alice", Name: "alice", Email: "a@example.com", State: models.StateActive}
	handler, _, mailer := newHandler(t, alice)
	mailer.sendErr = errors.New("broker down")

	rec := doRequest(t, handler, Request{User: "alice"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error sending the email")
}

func TestRequestResetMissingSubject(t *testing.T) {
	handler, _, _ := newHandler(t)

	rec := doRequest(t, handler, Request{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
