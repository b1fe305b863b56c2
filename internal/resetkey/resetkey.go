// Package resetkey implements the single-use password-reset protocol: one
// valid key per account, replaced on re-issue, consumed exactly once, with
// consumption doubling as activation for pending accounts.
package resetkey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/password"
	"account_service/internal/models"
	"account_service/internal/storage"
)

var (
	ErrInvalidKey        = errors.New("invalid reset key")
	ErrForbidden         = errors.New("forbidden")
	ErrAccountNotFound   = errors.New("account not found")
	ErrMailerUnavailable = errors.New("error sending the email")
)

type Service struct {
	log         *slog.Logger
	keys        KeyStore
	accProvider AccountProvider
	credentials Credentials
	mailer      Publisher
	keyTTL      time.Duration
	siteURL     string
}

type KeyStore interface {
	SetResetKey(ctx context.Context, accountID string, keyDigest string, ttl time.Duration) error
	GetResetKey(ctx context.Context, accountID string) (string, error)
	DeleteResetKey(ctx context.Context, accountID string) error
}

type AccountProvider interface {
	AccountByLogin(ctx context.Context, login string) (models.Account, error)
}

// Credentials is the slice of the account service the reset flow needs:
// setting the new password and the explicit pending -> active transition.
type Credentials interface {
	SetPassword(ctx context.Context, accountID, plaintext string) error
	Activate(ctx context.Context, accountID string) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

func New(
	log *slog.Logger,
	keys KeyStore,
	accountProvider AccountProvider,
	credentials Credentials,
	mailer Publisher,
	keyTTL time.Duration,
	siteURL string,
) *Service {
	return &Service{
		log:         log,
		keys:        keys,
		accProvider: accountProvider,
		credentials: credentials,
		mailer:      mailer,
		keyTTL:      keyTTL,
		siteURL:     siteURL,
	}
}

// Request issues a fresh key for the subject (login name or email) and hands
// the reset link to the mailer. Issuing replaces any previous key. A mailer
// failure is reported distinctly: the key was still issued.
func (s *Service) Request(ctx context.Context, subject string) error {
	const op = "resetkey.Request"

	log := s.log.With(slog.String("op", op))

	acc, err := s.accProvider.AccountByLogin(ctx, subject)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("reset requested for unknown subject")
			return ErrAccountNotFound
		}

		log.Error("failed to resolve subject", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if acc.State == models.StateDeleted {
		log.Warn("reset requested for deleted account")
		return ErrAccountNotFound
	}

	key, err := newKey()
	if err != nil {
		log.Error("failed to generate reset key", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.keys.SetResetKey(ctx, acc.ID, digest(key), s.keyTTL); err != nil {
		log.Error("failed to store reset key", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	msg := models.Message{
		Email:   acc.Email,
		Link:    fmt.Sprintf("%s/reset/perform?user=%s&key=%s", s.siteURL, acc.Name, key),
		Purpose: "password_reset",
	}

	if err := s.mailer.SendMessage(ctx, msg); err != nil {
		log.Error("failed to publish reset mail", sl.Err(err))
		return ErrMailerUnavailable
	}

	log.Info("reset key issued", slog.String("id", acc.ID))

	return nil
}

// Consume validates the key and sets the new password. Absent, mismatched and
// expired keys all collapse into ErrInvalidKey so the endpoint is useless as
// a guessing oracle. A deleted account is rejected before the key is even
// looked at; a pending account is activated on success.
func (s *Service) Consume(ctx context.Context, subject, key, newPassword string) error {
	const op = "resetkey.Consume"

	log := s.log.With(slog.String("op", op))

	acc, err := s.accProvider.AccountByLogin(ctx, subject)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}

		log.Error("failed to resolve subject", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if acc.State == models.StateDeleted {
		log.Warn("reset attempt on deleted account", slog.String("id", acc.ID))
		return ErrForbidden
	}

	stored, err := s.keys.GetResetKey(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, storage.ErrResetKeyNotFound) {
			log.Warn("no valid reset key", slog.String("id", acc.ID))
			return ErrInvalidKey
		}

		log.Error("failed to load reset key", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(digest(key))) != 1 {
		log.Warn("reset key mismatch", slog.String("id", acc.ID))
		return ErrInvalidKey
	}

	// Policy is checked before the key is burned: a rejected password leaves
	// the key usable for another attempt.
	if err := password.Validate(newPassword); err != nil {
		return err
	}

	// The key is cleared before the password is written, so a failure past
	// this point can never leave a changed password behind a still-valid key.
	if err := s.keys.DeleteResetKey(ctx, acc.ID); err != nil {
		log.Error("failed to clear consumed key", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.credentials.SetPassword(ctx, acc.ID, newPassword); err != nil {
		return err
	}

	if acc.State == models.StatePending {
		if err := s.credentials.Activate(ctx, acc.ID); err != nil {
			log.Error("failed to activate pending account", sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	log.Info("password reset", slog.String("id", acc.ID))

	return nil
}

func newKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// digest keeps the raw key out of the store: leaking the store contents must
// not leak usable keys.
func digest(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}
