package repo

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

func newTestRepo(t *testing.T, tables Tables) *AccountRepo {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "repo.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	r := NewAccountRepo(sqlx.NewDb(db, database.DriverSQLite), tables, zap.NewNop().Sugar())
	require.NoError(t, r.EnsureTables(context.Background()))
	// idempotent
	require.NoError(t, r.EnsureTables(context.Background()))
	return r
}

func strPtr(s string) *string { return &s }

func createLocal(t *testing.T, r *AccountRepo, id, email string) {
	t.Helper()
	ctx := context.Background()
	err := r.WithTx(ctx, func(tx *Tx) error {
		got, err := tx.CreateAccount(ctx, &entity.Account{
			UserID:       id,
			Username:     email,
			PasswordHash: strPtr("hash"),
			UserType:     entity.UserTypeTenant,
			IsActive:     true,
			AuthProvider: entity.ProviderLocal,
		})
		if err != nil {
			return err
		}
		return tx.CreateProfile(ctx, &entity.Profile{UserID: got, FullName: "Test", Email: email})
	})
	require.NoError(t, err)
}

func TestCreateAndFind(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()
	createLocal(t, r, "100", "a@x.com")

	err := r.WithTx(ctx, func(tx *Tx) error {
		m, err := tx.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.Equal(t, "100", m.UserID)
		assert.Equal(t, entity.UserTypeTenant, m.UserType)
		assert.Equal(t, entity.ProviderLocal, m.AuthProvider)
		assert.True(t, m.IsActive)

		none, err := tx.FindByEmail(ctx, "b@x.com")
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)

	cred, err := r.GetActiveByUsername(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "100", cred.UserID)
	require.NotNil(t, cred.FullName)
	assert.Equal(t, "Test", *cred.FullName)

	n, err := r.countAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateAccountDuplicate(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()
	createLocal(t, r, "100", "a@x.com")

	tests := []struct {
		name string
		acct entity.Account
	}{
		{name: "same username", acct: entity.Account{UserID: "101", Username: "a@x.com", PasswordHash: strPtr("h"), UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderLocal}},
		{name: "same id", acct: entity.Account{UserID: "100", Username: "z@x.com", PasswordHash: strPtr("h"), UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderLocal}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.WithTx(ctx, func(tx *Tx) error {
				_, err := tx.CreateAccount(ctx, &tt.acct)
				return err
			})
			require.ErrorIs(t, err, ErrDuplicate)
		})
	}
}

func TestCreateProfileDuplicateEmail(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()
	createLocal(t, r, "100", "a@x.com")

	err := r.WithTx(ctx, func(tx *Tx) error {
		id, err := tx.CreateAccount(ctx, &entity.Account{
			UserID: "200", Username: "other", UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderExternal,
		})
		if err != nil {
			return err
		}
		return tx.CreateProfile(ctx, &entity.Profile{UserID: id, Email: "a@x.com"})
	})
	require.ErrorIs(t, err, ErrDuplicate)

	// the account insert was rolled back with the profile
	_, err = r.getAccount(ctx, "200")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()
	boom := errors.New("boom")

	err := r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.CreateAccount(ctx, &entity.Account{
			UserID: "1", Username: "a@x.com", PasswordHash: strPtr("h"), UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderLocal,
		})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := r.countAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = r.WithTx(ctx, func(tx *Tx) error {
			_, err := tx.CreateAccount(ctx, &entity.Account{
				UserID: "1", Username: "a@x.com", PasswordHash: strPtr("h"), UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderLocal,
			})
			require.NoError(t, err)
			panic("boom")
		})
	})

	n, err := r.countAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLocalAccountRequiresPassword(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()

	err := r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.CreateAccount(ctx, &entity.Account{
			UserID: "1", Username: "a@x.com", UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderLocal,
		})
		return err
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicate)
}

func TestSetAuthProviderAndActive(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()
	createLocal(t, r, "100", "a@x.com")

	require.NoError(t, r.WithTx(ctx, func(tx *Tx) error {
		return tx.SetAuthProvider(ctx, "100", entity.ProviderBoth)
	}))
	acct, err := r.getAccount(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, entity.ProviderBoth, acct.AuthProvider)
	require.NotNil(t, acct.PasswordHash)
	assert.Equal(t, "hash", *acct.PasswordHash)

	err = r.WithTx(ctx, func(tx *Tx) error {
		return tx.SetAuthProvider(ctx, "missing", entity.ProviderBoth)
	})
	require.Error(t, err)

	require.NoError(t, r.setActive(ctx, "100", false))
	_, err = r.GetActiveByUsername(ctx, "a@x.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.ErrorIs(t, r.setActive(ctx, "missing", false), sql.ErrNoRows)
}

func TestGetProfile(t *testing.T) {
	r := newTestRepo(t, Tables{Login: "accounts", Profile: "profiles"})
	ctx := context.Background()
	createLocal(t, r, "100", "a@x.com")

	v, err := r.GetProfile(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "Test", v.FullName)
	assert.Equal(t, "a@x.com", v.Email)
	assert.Equal(t, entity.UserTypeTenant, v.UserType)
	assert.Equal(t, entity.ProviderLocal, v.AuthProvider)
	assert.Nil(t, v.Gender)

	_, err = r.GetProfile(ctx, "nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTablesQualify(t *testing.T) {
	assert.Equal(t, `"login"`, Tables{}.qualify("login"))
	assert.Equal(t, `"auth"."login"`, Tables{Schema: "auth"}.qualify("login"))
	assert.Equal(t, `"we""ird"`, Tables{}.qualify(`we"ird`))
}

// fakeTx fails Rollback with rollbackErr and records which finisher ran.
type fakeTx struct {
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (f *fakeTx) Commit() error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	f.rolledBack = true
	return f.rollbackErr
}

func TestRunTxFailedRollbackKeepsOriginalError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tx := &fakeTx{rollbackErr: errors.New("connection reset")}
	cause := errors.New("insert failed")

	err := runTx(tx, zap.New(core).Sugar(), func() error { return cause })
	require.ErrorIs(t, err, cause)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)

	entries := logs.FilterMessage("rollback failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "connection reset", fields["err"])
	assert.Equal(t, "insert failed", fields["cause"])
}

func TestRunTxFailedRollbackOnPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tx := &fakeTx{rollbackErr: errors.New("connection reset")}

	assert.PanicsWithValue(t, "boom", func() {
		_ = runTx(tx, zap.New(core).Sugar(), func() error { panic("boom") })
	})
	assert.True(t, tx.rolledBack)
	assert.Equal(t, 1, logs.FilterMessage("rollback failed").Len())
}

func TestRunTxRollbackAfterDoneIsQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tx := &fakeTx{rollbackErr: sql.ErrTxDone}
	cause := errors.New("boom")

	err := runTx(tx, zap.New(core).Sugar(), func() error { return cause })
	require.ErrorIs(t, err, cause)
	assert.Equal(t, 0, logs.Len())
}

func TestRunTxCommits(t *testing.T) {
	tx := &fakeTx{}

	require.NoError(t, runTx(tx, zap.NewNop().Sugar(), func() error { return nil }))
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestFindByEmailMissesLoginWithoutProfile(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()

	// a login row whose profile was never written: lookup misses, insert trips the constraint
	require.NoError(t, r.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.CreateAccount(ctx, &entity.Account{
			UserID: "1", Username: "orphan@x.com", PasswordHash: strPtr("h"), UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderLocal,
		})
		return err
	}))

	err := r.WithTx(ctx, func(tx *Tx) error {
		m, err := tx.FindByEmail(ctx, "orphan@x.com")
		require.NoError(t, err)
		assert.Nil(t, m)
		_, err = tx.CreateAccount(ctx, &entity.Account{
			UserID: "2", Username: "orphan@x.com", UserType: entity.UserTypeTenant, IsActive: true, AuthProvider: entity.ProviderExternal,
		})
		return err
	})
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestFindByEmailReportsInactive(t *testing.T) {
	r := newTestRepo(t, Tables{})
	ctx := context.Background()
	createLocal(t, r, "100", "a@x.com")
	require.NoError(t, r.setActive(ctx, "100", false))

	require.NoError(t, r.WithTx(ctx, func(tx *Tx) error {
		m, err := tx.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.False(t, m.IsActive)
		return nil
	}))
}
