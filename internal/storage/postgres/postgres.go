package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"account_service/internal/config"
	"account_service/internal/models"
	"account_service/internal/storage"
	"account_service/internal/storage/postgres/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"
)

const accountColumns = `id, name, display_name, email, about, image_url, password_hash, state, sysadmin, created_at`

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := migrate(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// migrate applies the embedded goose migrations over a short-lived
// database/sql connection; the pgx pool itself never sees DDL.
func migrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (r *PostgresRepo) SaveAccount(ctx context.Context, acc models.Account) (string, error) {
	const op = "storage.postgres.SaveAccount"

	query := `
		INSERT INTO accounts (id, name, display_name, email, about, image_url, password_hash, state, sysadmin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;
	`

	id := uuid.NewString()

	err := r.pool.QueryRow(ctx, query,
		id, acc.Name, acc.DisplayName, acc.Email, acc.About, acc.ImageURL,
		string(acc.PassHash), acc.State, acc.Sysadmin,
	).Scan(&id)
	if err != nil {
		if uniqueViolation(err, "accounts_email_alive") {
			return "", storage.ErrEmailTaken
		}
		if uniqueViolation(err, "") {
			return "", storage.ErrAccountExists
		}

		return "", fmt.Errorf("%s: failed to save account: %w", op, err)
	}

	return id, nil
}

func (r *PostgresRepo) AccountByID(ctx context.Context, id string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) AccountByName(ctx context.Context, name string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE name = $1;`

	return r.scanAccount(r.pool.QueryRow(ctx, query, name))
}

// AccountByLogin resolves the subject of a login or reset request, which may
// be given as a login name or an email address.
func (r *PostgresRepo) AccountByLogin(ctx context.Context, login string) (models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE name = $1 OR (email = $1 AND state <> 'deleted');`

	return r.scanAccount(r.pool.QueryRow(ctx, query, login))
}

func (r *PostgresRepo) UpdateAccount(ctx context.Context, acc models.Account) error {
	const op = "storage.postgres.UpdateAccount"

	query := `
		UPDATE accounts
		SET name = $2, display_name = $3, email = $4, about = $5, image_url = $6
		WHERE id = $1;
	`

	tag, err := r.pool.Exec(ctx, query,
		acc.ID, acc.Name, acc.DisplayName, acc.Email, acc.About, acc.ImageURL,
	)
	if err != nil {
		if uniqueViolation(err, "accounts_email_alive") {
			return storage.ErrEmailTaken
		}
		if uniqueViolation(err, "") {
			return storage.ErrAccountExists
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, id string, passHash []byte) error {
	const op = "storage.postgres.UpdatePassword"

	query := `UPDATE accounts SET password_hash = $2 WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, id, string(passHash))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func (r *PostgresRepo) UpdateState(ctx context.Context, id string, state models.AccountState) error {
	const op = "storage.postgres.UpdateState"

	query := `UPDATE accounts SET state = $2 WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

func (r *PostgresRepo) SetSysadmin(ctx context.Context, id string, sysadmin bool) error {
	const op = "storage.postgres.SetSysadmin"

	query := `UPDATE accounts SET sysadmin = $2 WHERE id = $1;`

	tag, err := r.pool.Exec(ctx, query, id, sysadmin)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrAccountNotFound
	}

	return nil
}

// ListAccounts returns alive accounts, optionally filtered by a substring of
// the login or display name. Deleted accounts never appear.
func (r *PostgresRepo) ListAccounts(ctx context.Context, nameQuery string) ([]models.Account, error) {
	const op = "storage.postgres.ListAccounts"

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE state = 'active' AND (name ILIKE '%' || $1 || '%' OR display_name ILIKE '%' || $1 || '%')
		ORDER BY name;
	`

	rows, err := r.pool.Query(ctx, query, nameQuery)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return r.collectAccounts(rows)
}

// AccountsByEmail is the sysadmin-only exact email lookup.
func (r *PostgresRepo) AccountsByEmail(ctx context.Context, email string) ([]models.Account, error) {
	const op = "storage.postgres.AccountsByEmail"

	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE state = 'active' AND email = $1
		ORDER BY name;
	`

	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return r.collectAccounts(rows)
}

func (r *PostgresRepo) SaveRefreshToken(
	ctx context.Context,
	accountID string,
	tokenHash []byte,
	expiresAt time.Time,
) error {
	const query = `
		INSERT INTO refresh_tokens (token_hash, account_id, expires_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.pool.Exec(ctx, query, tokenHash, accountID, expiresAt)
	return err
}

func (r *PostgresRepo) GetRefreshToken(ctx context.Context, rawToken string) (models.RefreshToken, error) {
	const query = `
		SELECT token_hash, account_id, expires_at
		FROM refresh_tokens
		WHERE expires_at > NOW();
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return models.RefreshToken{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var rt models.RefreshToken

		if err := rows.Scan(&rt.TokenHash, &rt.AccountID, &rt.ExpiresAt); err != nil {
			return models.RefreshToken{}, err
		}

		if bcrypt.CompareHashAndPassword(rt.TokenHash, []byte(rawToken)) == nil {
			return rt, nil
		}
	}
	if rows.Err() != nil {
		return models.RefreshToken{}, rows.Err()
	}

	return models.RefreshToken{}, storage.ErrRefreshTokenNotFound
}

func (r *PostgresRepo) DeleteRefreshToken(ctx context.Context, tokenHash []byte) error {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`

	_, err := r.pool.Exec(ctx, query, tokenHash)

	return err
}

func (r *PostgresRepo) DeleteRefreshTokensForAccount(ctx context.Context, accountID string) error {
	query := `DELETE FROM refresh_tokens WHERE account_id = $1`

	_, err := r.pool.Exec(ctx, query, accountID)

	return err
}

// AddFollowEdge inserts the edge if absent. ON CONFLICT keeps the operation
// idempotent under concurrent follows of the same pair.
func (r *PostgresRepo) AddFollowEdge(ctx context.Context, followerID, targetID string) error {
	const op = "storage.postgres.AddFollowEdge"

	query := `
		INSERT INTO follow_edges (follower_id, target_id)
		VALUES ($1, $2)
		ON CONFLICT (follower_id, target_id) DO NOTHING;
	`

	_, err := r.pool.Exec(ctx, query, followerID, targetID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RemoveFollowEdge deletes the edge, reporting whether it existed.
func (r *PostgresRepo) RemoveFollowEdge(ctx context.Context, followerID, targetID string) (bool, error) {
	const op = "storage.postgres.RemoveFollowEdge"

	query := `DELETE FROM follow_edges WHERE follower_id = $1 AND target_id = $2;`

	tag, err := r.pool.Exec(ctx, query, followerID, targetID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepo) IsFollowing(ctx context.Context, followerID, targetID string) (bool, error) {
	const op = "storage.postgres.IsFollowing"

	query := `SELECT EXISTS (SELECT 1 FROM follow_edges WHERE follower_id = $1 AND target_id = $2);`

	var following bool
	if err := r.pool.QueryRow(ctx, query, followerID, targetID).Scan(&following); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return following, nil
}

func (r *PostgresRepo) Followers(ctx context.Context, targetID string) ([]models.Account, error) {
	const op = "storage.postgres.Followers"

	query := `
		SELECT ` + prefixedAccountColumns("a") + `
		FROM follow_edges f
		JOIN accounts a ON a.id = f.follower_id
		WHERE f.target_id = $1 AND a.state = 'active'
		ORDER BY a.name;
	`

	rows, err := r.pool.Query(ctx, query, targetID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return r.collectAccounts(rows)
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func (r *PostgresRepo) scanAccount(row pgx.Row) (models.Account, error) {
	var a models.Account

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.DisplayName,
		&a.Email,
		&a.About,
		&a.ImageURL,
		&a.PassHash,
		&a.State,
		&a.Sysadmin,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrAccountNotFound
		}

		return models.Account{}, err
	}

	return a, nil
}

func (r *PostgresRepo) collectAccounts(rows pgx.Rows) ([]models.Account, error) {
	var accounts []models.Account

	for rows.Next() {
		a, err := r.scanAccount(rows)
		if err != nil {
			return nil, err
		}

		accounts = append(accounts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return accounts, nil
}

// dsn builds the database connection string.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}

	return constraint == "" || pgErr.ConstraintName == constraint
}

func prefixedAccountColumns(alias string) string {
	return alias + `.id, ` + alias + `.name, ` + alias + `.display_name, ` + alias + `.email, ` +
		alias + `.about, ` + alias + `.image_url, ` + alias + `.password_hash, ` +
		alias + `.state, ` + alias + `.sysadmin, ` + alias + `.created_at`
}
