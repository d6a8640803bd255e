package account

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/identity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/presence"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// DefaultMirrorTimeout bounds a single presence write.
const DefaultMirrorTimeout = 2 * time.Second

// IdentityVerifier validates a third-party identity assertion.
type IdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (*identity.Claims, error)
}

// PresenceMirror receives best-effort presence updates.
type PresenceMirror interface {
	Upsert(ctx context.Context, rec presence.Record) error
}

// IDGenerator produces server-side user ids.
type IDGenerator interface {
	Next() string
}

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	FullName string
	Gender   string
	Email    string
	Password string
}

// Service reconciles local and external identities into accounts and issues session tokens.
type Service struct {
	repo     *repo.AccountRepo
	hasher   PasswordHasher
	tokens   *token.Issuer
	verifier IdentityVerifier
	presence PresenceMirror
	ids      IDGenerator
	logger   *zap.SugaredLogger

	mirrorTimeout time.Duration
}

// NewService wires the engine. A nil hasher selects bcrypt at cost 10; a nil
// presence mirror disables mirroring.
func NewService(r *repo.AccountRepo, hasher PasswordHasher, tokens *token.Issuer, verifier IdentityVerifier,
	mirror PresenceMirror, ids IDGenerator, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultBcryptCost}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		repo:          r,
		hasher:        hasher,
		tokens:        tokens,
		verifier:      verifier,
		presence:      mirror,
		ids:           ids,
		logger:        logger,
		mirrorTimeout: DefaultMirrorTimeout,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a local account and its profile in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, error) {
	fullName := strings.TrimSpace(in.FullName)
	gender := strings.TrimSpace(in.Gender)
	email := normalizeEmail(in.Email)
	if fullName == "" || gender == "" || email == "" || in.Password == "" {
		s.logger.Warnw("missing required fields on registration")
		return "", ErrMissingFields
	}
	if len(in.Password) > MaxPasswordBytes {
		s.logger.Warnw("password too long on registration", "email", email)
		return "", ErrPasswordTooLong
	}

	var userID string
	var userType entity.UserType
	err := s.repo.WithTx(ctx, func(tx *repo.Tx) error {
		existing, err := tx.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.AuthProvider == entity.ProviderExternal {
				return ErrExternalAccountExists
			}
			return ErrAccountExists
		}

		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return err
		}
		acct := &entity.Account{
			UserID:       s.ids.Next(),
			Username:     email,
			PasswordHash: &hash,
			UserType:     entity.UserTypeTenant,
			IsActive:     true,
			AuthProvider: entity.ProviderLocal,
		}
		id, err := tx.CreateAccount(ctx, acct)
		if err != nil {
			return err
		}
		if err := tx.CreateProfile(ctx, &entity.Profile{
			UserID:   id,
			FullName: fullName,
			Email:    email,
			Gender:   NormalizeGender(gender),
		}); err != nil {
			return err
		}
		userID, userType = id, acct.UserType
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrExternalAccountExists):
			s.logger.Infow("registration blocked by external account", "email", email)
			return "", err
		case errors.Is(err, ErrAccountExists):
			s.logger.Infow("duplicate registration attempt", "email", email)
			return "", err
		case errors.Is(err, repo.ErrDuplicate):
			s.logger.Infow("duplicate registration lost insert race", "email", email)
			return "", ErrAccountExists
		case errors.Is(err, repo.ErrNoID):
			s.logger.Errorw("user id not returned from login insert", "email", email)
			return "", ErrPersistence
		}
		s.logger.Errorw("database error during registration", "err", err, "email", email)
		return "", ErrPersistence
	}

	s.mirror(ctx, presence.Record{
		UserID:       userID,
		DisplayName:  fullName,
		Online:       false,
		UserType:     string(userType),
		AuthProvider: string(entity.ProviderLocal),
	})
	s.logger.Infow("user registered", "user_id", userID, "email", email)
	return userID, nil
}

// Login authenticates an email/password pair and returns a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		s.logger.Warnw("login failed: email or password missing")
		return "", ErrMissingFields
	}

	cred, err := s.repo.GetActiveByUsername(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warnw("login failed: no active account", "email", email)
			return "", ErrUserNotFound
		}
		s.logger.Errorw("database error during login", "err", err)
		return "", ErrPersistence
	}

	if cred.PasswordHash == nil || *cred.PasswordHash == "" {
		if cred.AuthProvider == entity.ProviderExternal {
			s.logger.Warnw("login failed: external-only account", "user_id", cred.UserID)
			return "", ErrExternalOnlyAccount
		}
		s.logger.Warnw("login failed: no password set", "user_id", cred.UserID)
		return "", ErrNoPasswordSet
	}
	if !s.hasher.Verify(*cred.PasswordHash, password) {
		s.logger.Warnw("login failed: wrong password", "user_id", cred.UserID)
		return "", ErrWrongPassword
	}

	tok, err := s.tokens.Issue(token.Claims{
		UserID:   cred.UserID,
		UserType: string(cred.UserType),
		Email:    cred.Username,
	})
	if err != nil {
		s.logger.Errorw("token signing failed", "err", err, "user_id", cred.UserID)
		return "", ErrTokenIssue
	}

	rec := presence.Record{
		UserID:       cred.UserID,
		Phone:        cred.PhoneNumber,
		PhotoURL:     cred.ProfileImage,
		Online:       true,
		UserType:     string(cred.UserType),
		AuthProvider: string(cred.AuthProvider),
	}
	if cred.FullName != nil {
		rec.DisplayName = *cred.FullName
	}
	s.mirror(ctx, rec)

	s.logger.Infow("user logged in", "user_id", cred.UserID)
	return tok, nil
}

// LoginWithExternalIdentity verifies a third-party assertion, then creates,
// matches or merges the account for its email and returns a session token.
func (s *Service) LoginWithExternalIdentity(ctx context.Context, assertion string) (string, error) {
	if strings.TrimSpace(assertion) == "" {
		return "", ErrMissingFields
	}
	claims, err := s.verifier.Verify(ctx, assertion)
	if err != nil {
		s.logger.Warnw("external assertion rejected", "err", err)
		return "", ErrExternalAuthFailed
	}
	if !claims.EmailVerified {
		s.logger.Warnw("external email not verified", "email", claims.Email)
		return "", ErrEmailNotVerified
	}

	email := normalizeEmail(claims.Email)
	var gender *string
	if claims.Gender != nil {
		gender = NormalizeGender(*claims.Gender)
	}

	var out reconciled
	// a lost insert race is retried once so the second pass matches the winner's row
	for attempt := 0; attempt < 2; attempt++ {
		out, err = s.reconcileExternal(ctx, email, claims.Name, claims.Picture, gender)
		if err == nil || !errors.Is(err, repo.ErrDuplicate) {
			break
		}
		s.logger.Infow("external account insert raced; retrying", "email", email)
	}
	if errors.Is(err, ErrAccountDisabled) {
		s.logger.Warnw("external login for disabled account", "email", email)
		return "", err
	}
	if err != nil {
		s.logger.Errorw("external login transaction failed", "err", err, "email", email)
		return "", ErrExternalAuthFailed
	}

	tok, err := s.tokens.Issue(token.Claims{
		UserID:   out.userID,
		UserType: string(out.userType),
		Email:    email,
	})
	if err != nil {
		s.logger.Errorw("token signing failed", "err", err, "user_id", out.userID)
		return "", ErrTokenIssue
	}

	s.mirror(ctx, presence.Record{
		UserID:       out.userID,
		DisplayName:  claims.Name,
		PhotoURL:     claims.Picture,
		Online:       true,
		UserType:     string(out.userType),
		AuthProvider: string(out.provider),
	})
	s.logger.Infow("user logged in with external identity", "user_id", out.userID, "outcome", out.outcome)
	return tok, nil
}

type reconciled struct {
	userID   string
	userType entity.UserType
	provider entity.AuthProvider
	outcome  string
}

func (s *Service) reconcileExternal(ctx context.Context, email, name string, picture, gender *string) (reconciled, error) {
	var out reconciled
	err := s.repo.WithTx(ctx, func(tx *repo.Tx) error {
		match, err := tx.FindByEmail(ctx, email)
		if err != nil {
			return err
		}

		if match == nil {
			acct := &entity.Account{
				UserID:       s.ids.Next(),
				Username:     email,
				UserType:     entity.UserTypeTenant,
				IsActive:     true,
				AuthProvider: entity.ProviderExternal,
			}
			id, err := tx.CreateAccount(ctx, acct)
			if err != nil {
				return err
			}
			if err := tx.CreateProfile(ctx, &entity.Profile{
				UserID:       id,
				FullName:     name,
				Email:        email,
				Gender:       gender,
				ProfileImage: picture,
			}); err != nil {
				return err
			}
			out = reconciled{userID: id, userType: acct.UserType, provider: entity.ProviderExternal, outcome: "created"}
			return nil
		}

		if !match.IsActive {
			return ErrAccountDisabled
		}
		out = reconciled{userID: match.UserID, userType: match.UserType, provider: match.AuthProvider, outcome: "matched"}
		if match.AuthProvider == entity.ProviderLocal {
			if err := tx.SetAuthProvider(ctx, match.UserID, entity.ProviderBoth); err != nil {
				return err
			}
			out.provider = entity.ProviderBoth
			out.outcome = "merged"
		}
		return nil
	})
	return out, err
}

// GetProfile returns the profile joined with its account's role and provider.
func (s *Service) GetProfile(ctx context.Context, userID string) (*entity.ProfileView, error) {
	v, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		s.logger.Errorw("error fetching user profile", "err", err, "user_id", userID)
		return nil, ErrPersistence
	}
	return v, nil
}

// mirror pushes a presence update after the primary outcome is settled.
// The write is bounded by mirrorTimeout; failures are logged and dropped.
func (s *Service) mirror(ctx context.Context, rec presence.Record) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.mirrorTimeout)
	defer cancel()
	if err := s.presence.Upsert(ctx, rec); err != nil {
		s.logger.Warnw("presence mirror failed", "err", err, "user_id", rec.UserID)
	}
}
