package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/lib/jwt"
	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/password"
	"account_service/internal/models"
	"account_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrImmutableName      = errors.New("login name can only be changed by a sysadmin")
	ErrEmailTaken         = errors.New("email already taken")
	ErrAccountExists      = errors.New("account already exists")
	ErrAccountNotFound    = errors.New("account not found")
)

type Service struct {
	log         *slog.Logger
	accSaver    AccountSaver
	accProvider AccountProvider
	events      EventPublisher
	tokenTTL    time.Duration
	refreshTTL  time.Duration
	jwtSecret   string
}

type AccountSaver interface {
	SaveAccount(ctx context.Context, acc models.Account) (id string, err error)
	UpdateAccount(ctx context.Context, acc models.Account) error
	UpdatePassword(ctx context.Context, id string, passHash []byte) error
	UpdateState(ctx context.Context, id string, state models.AccountState) error
	SetSysadmin(ctx context.Context, id string, sysadmin bool) error

	SaveRefreshToken(ctx context.Context, accountID string, tokenHash []byte, expiresAt time.Time) error
	DeleteRefreshToken(ctx context.Context, tokenHash []byte) error
	DeleteRefreshTokensForAccount(ctx context.Context, accountID string) error
}

type AccountProvider interface {
	AccountByID(ctx context.Context, id string) (models.Account, error)
	AccountByName(ctx context.Context, name string) (models.Account, error)
	AccountByLogin(ctx context.Context, login string) (models.Account, error)
	ListAccounts(ctx context.Context, nameQuery string) ([]models.Account, error)
	AccountsByEmail(ctx context.Context, email string) ([]models.Account, error)
	GetRefreshToken(ctx context.Context, rawToken string) (models.RefreshToken, error)
}

type EventPublisher interface {
	SendEvent(ctx context.Context, event models.Event) error
}

func New(
	log *slog.Logger,
	accountSaver AccountSaver,
	accountProvider AccountProvider,
	events EventPublisher,
	tokenTTL, refreshTTL time.Duration,
	jwtSecret string,
) *Service {
	return &Service{
		log:         log,
		accSaver:    accountSaver,
		accProvider: accountProvider,
		events:      events,
		tokenTTL:    tokenTTL,
		refreshTTL:  refreshTTL,
		jwtSecret:   jwtSecret,
	}
}

// Register creates a directly usable account. Invitation-style pending
// accounts go through CreateInvited instead.
func (s *Service) Register(
	ctx context.Context,
	name, displayName, email, pass string,
) (string, error) {
	const op = "account.Register"

	log := s.log.With(slog.String("op", op))

	if err := password.Validate(pass); err != nil {
		return "", err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.accSaver.SaveAccount(ctx, models.Account{
		Name:        name,
		DisplayName: displayName,
		Email:       email,
		PassHash:    passHash,
		State:       models.StateActive,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			log.Warn("account already exists")
			return "", ErrAccountExists
		}
		if errors.Is(err, storage.ErrEmailTaken) {
			log.Warn("email already taken")
			return "", ErrEmailTaken
		}

		log.Error("failed to save account", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, models.EventAccountCreated, id, models.Actor{})

	log.Info("account registered", slog.String("id", id))

	return id, nil
}

// CreateInvited creates a pending account on behalf of a sysadmin. The
// invitee has no usable password until they go through the reset flow, whose
// first successful completion activates the account.
func (s *Service) CreateInvited(
	ctx context.Context,
	actor models.Actor,
	name, displayName, email string,
) (string, error) {
	const op = "account.CreateInvited"

	log := s.log.With(slog.String("op", op))

	if !actor.Sysadmin {
		return "", ErrForbidden
	}

	// unguessable placeholder so the row never matches any login attempt
	placeholder, err := jwt.NewRefreshToken()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(placeholder), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate placeholder hash", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.accSaver.SaveAccount(ctx, models.Account{
		Name:        name,
		DisplayName: displayName,
		Email:       email,
		PassHash:    passHash,
		State:       models.StatePending,
	})
	if err != nil {
		if errors.Is(err, storage.ErrAccountExists) {
			return "", ErrAccountExists
		}
		if errors.Is(err, storage.ErrEmailTaken) {
			return "", ErrEmailTaken
		}

		log.Error("failed to save account", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, models.EventAccountCreated, id, actor)

	log.Info("invited account created", slog.String("id", id))

	return id, nil
}

// Login verifies credentials against an active account and returns an access
// token plus a rotating refresh token. Pending and deleted accounts fail with
// the same generic error as a wrong password.
func (s *Service) Login(
	ctx context.Context,
	login, pass string,
) (accessToken string, refreshToken string, err error) {
	const op = "account.Login"

	log := s.log.With(slog.String("op", op))

	acc, err := s.accProvider.AccountByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			log.Warn("account not found")
			return "", "", ErrInvalidCredentials
		}

		log.Error("failed to get account", sl.Err(err))
		return "", "", err
	}

	if acc.State != models.StateActive {
		log.Warn("login attempt on non-active account", slog.String("state", string(acc.State)))
		return "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(acc.PassHash, []byte(pass)); err != nil {
		log.Info("invalid credentials")
		return "", "", ErrInvalidCredentials
	}

	accessToken, err = jwt.NewToken(acc, s.tokenTTL, s.jwtSecret)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", "", err
	}

	refreshTokenValue, err := jwt.NewRefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return "", "", err
	}

	refreshHash, err := bcrypt.GenerateFromPassword([]byte(refreshTokenValue), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash refresh token", sl.Err(err))
		return "", "", err
	}

	err = s.accSaver.SaveRefreshToken(ctx, acc.ID, refreshHash, time.Now().Add(s.refreshTTL))
	if err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return "", "", err
	}

	log.Info("account logged in", slog.String("id", acc.ID))

	return accessToken, refreshTokenValue, nil
}

func (s *Service) Refresh(
	ctx context.Context,
	refreshToken string,
) (string, string, error) {
	const op = "account.Refresh"

	log := s.log.With(slog.String("op", op))

	rt, err := s.accProvider.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		log.Warn("refresh token not found", sl.Err(err))
		return "", "", ErrInvalidCredentials
	}

	if time.Now().After(rt.ExpiresAt) {
		log.Warn("refresh token expired")
		return "", "", ErrInvalidCredentials
	}

	acc, err := s.accProvider.AccountByID(ctx, rt.AccountID)
	if err != nil {
		log.Error("failed to load account", sl.Err(err))
		return "", "", ErrInvalidCredentials
	}

	if acc.State != models.StateActive {
		return "", "", ErrInvalidCredentials
	}

	accessToken, err := jwt.NewToken(acc, s.tokenTTL, s.jwtSecret)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return "", "", err
	}

	newRefresh, err := jwt.NewRefreshToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return "", "", err
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newRefresh), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to hash new refresh token", sl.Err(err))
		return "", "", err
	}

	if err := s.accSaver.DeleteRefreshToken(ctx, rt.TokenHash); err != nil {
		log.Error("failed to delete old refresh token", sl.Err(err))
		return "", "", err
	}

	if err := s.accSaver.SaveRefreshToken(ctx, rt.AccountID, newHash, time.Now().Add(s.refreshTTL)); err != nil {
		log.Error("failed to save refresh token", sl.Err(err))
		return "", "", err
	}

	log.Info("refresh successful", slog.String("id", acc.ID))

	return accessToken, newRefresh, nil
}

func (s *Service) Logout(
	ctx context.Context,
	rawRefreshToken string,
) error {
	const op = "account.Logout"

	log := s.log.With(slog.String("op", op))

	rt, err := s.accProvider.GetRefreshToken(ctx, rawRefreshToken)
	if err != nil {
		log.Warn("refresh token not found", sl.Err(err))
		return ErrInvalidCredentials
	}

	if err := s.accSaver.DeleteRefreshToken(ctx, rt.TokenHash); err != nil {
		log.Error("failed to delete refresh token", sl.Err(err))
		return err
	}

	log.Info("logout successful")

	return nil
}

// Account reads a single account by login name. Deleted accounts are visible
// only to a sysadmin or the (former) owner.
func (s *Service) Account(ctx context.Context, actor models.Actor, name string) (models.Account, error) {
	const op = "account.Account"

	acc, err := s.accProvider.AccountByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return models.Account{}, ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	if acc.State == models.StateDeleted && !actor.Owns(acc.ID) {
		return models.Account{}, ErrAccountNotFound
	}

	return acc, nil
}

// List returns active accounts matching the name query.
func (s *Service) List(ctx context.Context, nameQuery string) ([]models.Account, error) {
	const op = "account.List"

	accounts, err := s.accProvider.ListAccounts(ctx, nameQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

// SearchByEmail is restricted to sysadmins: exposing the email index to
// anonymous callers would turn the listing into an address oracle.
func (s *Service) SearchByEmail(ctx context.Context, actor models.Actor, email string) ([]models.Account, error) {
	const op = "account.SearchByEmail"

	if !actor.Sysadmin {
		return nil, ErrForbidden
	}

	accounts, err := s.accProvider.AccountsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return accounts, nil
}

// Update describes a profile edit. Nil fields keep their current value.
type Update struct {
	Name        *string
	DisplayName *string
	Email       *string
	About       *string
	ImageURL    *string
	NewPassword *string
	OldPassword string
}

// UpdateAccount edits a profile. The actor must own the account or be a
// sysadmin. Login-name changes are sysadmin-only; email and password changes
// require the current password unless the actor is a sysadmin.
func (s *Service) UpdateAccount(ctx context.Context, actor models.Actor, name string, upd Update) (models.Account, error) {
	const op = "account.UpdateAccount"

	log := s.log.With(slog.String("op", op))

	acc, err := s.accProvider.AccountByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return models.Account{}, ErrAccountNotFound
		}

		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(acc.ID) {
		return models.Account{}, ErrForbidden
	}

	if upd.Name != nil && *upd.Name != acc.Name {
		if !actor.Sysadmin {
			return models.Account{}, ErrImmutableName
		}
		acc.Name = *upd.Name
	}

	sensitive := (upd.Email != nil && *upd.Email != acc.Email) || upd.NewPassword != nil
	if sensitive && !actor.Sysadmin {
		if err := bcrypt.CompareHashAndPassword(acc.PassHash, []byte(upd.OldPassword)); err != nil {
			return models.Account{}, ErrInvalidCredentials
		}
	}

	if upd.DisplayName != nil {
		acc.DisplayName = *upd.DisplayName
	}
	if upd.Email != nil {
		acc.Email = *upd.Email
	}
	if upd.About != nil {
		acc.About = *upd.About
	}
	if upd.ImageURL != nil {
		acc.ImageURL = *upd.ImageURL
	}

	if err := s.accSaver.UpdateAccount(ctx, acc); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			return models.Account{}, ErrEmailTaken
		}
		if errors.Is(err, storage.ErrAccountExists) {
			return models.Account{}, ErrAccountExists
		}

		log.Error("failed to update account", sl.Err(err))
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	if upd.NewPassword != nil {
		if err := s.SetPassword(ctx, acc.ID, *upd.NewPassword); err != nil {
			return models.Account{}, err
		}
	}

	s.emit(ctx, models.EventAccountUpdated, acc.ID, actor)

	log.Info("account updated", slog.String("id", acc.ID))

	return acc, nil
}

// SetPassword applies the strength policy, hashes and stores. The plaintext
// is never logged.
func (s *Service) SetPassword(ctx context.Context, accountID, plaintext string) error {
	const op = "account.SetPassword"

	if err := password.Validate(plaintext); err != nil {
		return err
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		s.log.Error("failed to generate password hash", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.accSaver.UpdatePassword(ctx, accountID, passHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// VerifyPassword reports whether the plaintext matches the account's stored
// hash. bcrypt's comparison is constant-time over the hash.
func (s *Service) VerifyPassword(acc models.Account, plaintext string) bool {
	return bcrypt.CompareHashAndPassword(acc.PassHash, []byte(plaintext)) == nil
}

// Activate is the explicit pending -> active transition. Activating an
// already active account is a no-op; a deleted account stays deleted.
func (s *Service) Activate(ctx context.Context, accountID string) error {
	const op = "account.Activate"

	acc, err := s.accProvider.AccountByID(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch acc.State {
	case models.StateActive:
		return nil
	case models.StateDeleted:
		return ErrForbidden
	}

	if err := s.accSaver.UpdateState(ctx, accountID, models.StateActive); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("account activated", slog.String("op", op), slog.String("id", accountID))

	return nil
}

// Delete moves the account to the terminal deleted state and revokes its
// sessions. The row is retained.
func (s *Service) Delete(ctx context.Context, actor models.Actor, name string) error {
	const op = "account.Delete"

	log := s.log.With(slog.String("op", op))

	acc, err := s.accProvider.AccountByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if !actor.Owns(acc.ID) {
		return ErrForbidden
	}

	if err := s.accSaver.UpdateState(ctx, acc.ID, models.StateDeleted); err != nil {
		log.Error("failed to mark account deleted", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.accSaver.DeleteRefreshTokensForAccount(ctx, acc.ID); err != nil {
		log.Error("failed to revoke sessions", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, models.EventAccountDeleted, acc.ID, actor)

	log.Info("account deleted", slog.String("id", acc.ID))

	return nil
}

// SetSysadmin grants or revokes the sysadmin flag. Only a sysadmin may call
// it; repeating a call with the same flag is a no-op with the same end state.
func (s *Service) SetSysadmin(ctx context.Context, actor models.Actor, name string, sysadmin bool) error {
	const op = "account.SetSysadmin"

	log := s.log.With(slog.String("op", op))

	if !actor.Sysadmin {
		return ErrForbidden
	}

	acc, err := s.accProvider.AccountByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			return ErrAccountNotFound
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if acc.Sysadmin == sysadmin {
		return nil
	}

	if err := s.accSaver.SetSysadmin(ctx, acc.ID, sysadmin); err != nil {
		log.Error("failed to set sysadmin flag", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	kind := models.EventAccountPromoted
	if !sysadmin {
		kind = models.EventAccountDemoted
	}
	s.emit(ctx, kind, acc.ID, actor)

	log.Info("sysadmin flag changed", slog.String("id", acc.ID), slog.Bool("sysadmin", sysadmin))

	return nil
}

// emit publishes a lifecycle event. Publish failures are logged, never fatal:
// the activity stream is a consumer, not a dependency.
func (s *Service) emit(ctx context.Context, kind, accountID string, actor models.Actor) {
	event := models.Event{
		Kind:       kind,
		AccountID:  accountID,
		ActorID:    actor.ID,
		OccurredAt: time.Now(),
	}

	if err := s.events.SendEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish lifecycle event", slog.String("kind", kind), sl.Err(err))
	}
}
