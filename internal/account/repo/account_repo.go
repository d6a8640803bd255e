package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
)

var (
	// ErrDuplicate is returned when an insert trips a unique constraint.
	ErrDuplicate = errors.New("duplicate key")
	// ErrNoID is returned when an account insert yields no generated id.
	ErrNoID = errors.New("no id returned")
)

// Tables names the login and profile tables. Schema is optional.
type Tables struct {
	Schema  string `env:"DB_SCHEMA"`
	Login   string `env:"LOGIN_TABLE" envDefault:"login"`
	Profile string `env:"USER_PROFILE_TABLE" envDefault:"user_profile"`
}

func (t Tables) qualify(name string) string {
	if t.Schema == "" {
		return quoteIdent(name)
	}
	return quoteIdent(t.Schema) + "." + quoteIdent(name)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

type queries struct {
	findByEmail      string
	insertAccount    string
	insertProfile    string
	setAuthProvider  string
	activeByUsername string
	profileByID      string
}

// AccountRepo provides data access for the login and profile tables using sqlx.
type AccountRepo struct {
	db     *sqlx.DB
	tables Tables
	q      queries
	logger *zap.SugaredLogger
}

func NewAccountRepo(db *sqlx.DB, tables Tables, logger *zap.SugaredLogger) *AccountRepo {
	if tables.Login == "" {
		tables.Login = "login"
	}
	if tables.Profile == "" {
		tables.Profile = "user_profile"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &AccountRepo{db: db, tables: tables, logger: logger}
	r.q = r.buildQueries()
	return r
}

func (r *AccountRepo) buildQueries() queries {
	login := r.tables.qualify(r.tables.Login)
	profile := r.tables.qualify(r.tables.Profile)
	// queries are written with ? and rebound once for the driver in use
	return queries{
		findByEmail: r.db.Rebind(fmt.Sprintf(`SELECT l.user_id, l.user_type, l.auth_provider, l.is_active
			FROM %s p JOIN %s l ON l.user_id = p.user_id
			WHERE p.email = ?`, profile, login)),
		insertAccount: r.db.Rebind(fmt.Sprintf(`INSERT INTO %s (user_id, username, password_hash, user_type, is_active, auth_provider)
			VALUES (?, ?, ?, ?, ?, ?) RETURNING user_id`, login)),
		insertProfile: r.db.Rebind(fmt.Sprintf(`INSERT INTO %s (user_id, full_name, phone_number, email, address, gender, profile_image)
			VALUES (?, ?, ?, ?, ?, ?, ?)`, profile)),
		setAuthProvider: r.db.Rebind(fmt.Sprintf(`UPDATE %s SET auth_provider = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`, login)),
		activeByUsername: r.db.Rebind(fmt.Sprintf(`SELECT l.user_id, l.username, l.password_hash, l.user_type, l.auth_provider,
				p.full_name, p.phone_number, p.profile_image
			FROM %s l LEFT JOIN %s p ON p.user_id = l.user_id
			WHERE l.username = ? AND l.is_active = ?`, login, profile)),
		profileByID: r.db.Rebind(fmt.Sprintf(`SELECT p.full_name, p.phone_number, p.email, p.address, p.gender, p.profile_image,
				l.user_type, l.auth_provider
			FROM %s p JOIN %s l ON l.user_id = p.user_id
			WHERE p.user_id = ?`, profile, login)),
	}
}

// EnsureTables creates the login and profile tables if not exists (idempotent).
// The DDL sticks to types both postgres and sqlite accept.
// Prefer migrations in production.
func (r *AccountRepo) EnsureTables(ctx context.Context) error {
	login := r.tables.qualify(r.tables.Login)
	profile := r.tables.qualify(r.tables.Profile)
	idx := quoteIdent("idx_" + r.tables.Profile + "_email")
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  user_id VARCHAR(32) PRIMARY KEY,
  username VARCHAR(255) NOT NULL UNIQUE,
  password_hash TEXT,
  user_type VARCHAR(16) NOT NULL DEFAULT 'tenant',
  is_active BOOLEAN NOT NULL DEFAULT TRUE,
  auth_provider VARCHAR(16) NOT NULL DEFAULT 'local',
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  CHECK (auth_provider = 'external' OR password_hash IS NOT NULL)
)`, login),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  user_id VARCHAR(32) PRIMARY KEY REFERENCES %s (user_id),
  full_name VARCHAR(255) NOT NULL DEFAULT '',
  phone_number VARCHAR(32),
  email VARCHAR(255) NOT NULL,
  address TEXT,
  gender VARCHAR(1),
  profile_image TEXT
)`, profile, login),
	}
	// postgres puts the index in the table's schema; naming the schema there is a syntax error
	stmts = append(stmts, fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (email)`, idx, profile))
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// Tx is a transaction-scoped view of the repository.
type Tx struct {
	tx *sqlx.Tx
	q  *queries
}

// WithTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back on error or panic; a failed rollback is logged and
// never replaces the original error.
func (r *AccountRepo) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	return runTx(sqlTx, r.logger, func() error {
		return fn(&Tx{tx: sqlTx, q: &r.q})
	})
}

type txFinisher interface {
	Commit() error
	Rollback() error
}

func runTx(tx txFinisher, logger *zap.SugaredLogger, fn func() error) (err error) {
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Errorw("rollback failed", "err", rbErr, "cause", err)
		}
	}()

	if err = fn(); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// FindByEmail returns the account owning the profile with this email, or nil when none does.
func (t *Tx) FindByEmail(ctx context.Context, email string) (*entity.Match, error) {
	var m entity.Match
	if err := t.tx.GetContext(ctx, &m, t.q.findByEmail, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// CreateAccount inserts a login row and returns the id reported by the store.
func (t *Tx) CreateAccount(ctx context.Context, a *entity.Account) (string, error) {
	var id sql.NullString
	row := t.tx.QueryRowxContext(ctx, t.q.insertAccount,
		a.UserID, a.Username, a.PasswordHash, string(a.UserType), a.IsActive, string(a.AuthProvider))
	if err := row.Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoID
		}
		return "", err
	}
	if !id.Valid || id.String == "" {
		return "", ErrNoID
	}
	return id.String, nil
}

// CreateProfile inserts the profile row for an account created in the same transaction.
func (t *Tx) CreateProfile(ctx context.Context, p *entity.Profile) error {
	_, err := t.tx.ExecContext(ctx, t.q.insertProfile,
		p.UserID, p.FullName, p.PhoneNumber, p.Email, p.Address, p.Gender, p.ProfileImage)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// SetAuthProvider updates the provider column only.
func (t *Tx) SetAuthProvider(ctx context.Context, userID string, p entity.AuthProvider) error {
	res, err := t.tx.ExecContext(ctx, t.q.setAuthProvider, string(p), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("set auth provider: %d rows affected", n)
	}
	return nil
}

// GetActiveByUsername returns the active account for username, or sql.ErrNoRows.
func (r *AccountRepo) GetActiveByUsername(ctx context.Context, username string) (*entity.Credential, error) {
	var c entity.Credential
	if err := r.db.GetContext(ctx, &c, r.q.activeByUsername, username, true); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetProfile returns the joined profile view, or sql.ErrNoRows.
func (r *AccountRepo) GetProfile(ctx context.Context, userID string) (*entity.ProfileView, error) {
	var v entity.ProfileView
	if err := r.db.GetContext(ctx, &v, r.q.profileByID, userID); err != nil {
		return nil, err
	}
	return &v, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}
