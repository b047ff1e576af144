package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-menu-auth/app/dto"
	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"
	"github.com/vibast-solutions/ms-go-menu-auth/app/metrics"
	"github.com/vibast-solutions/ms-go-menu-auth/app/repository"
	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"github.com/sirupsen/logrus"
)

var (
	ErrDuplicateEmail     = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidRole        = errors.New("invalid role")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
	ErrAlreadyVerified    = errors.New("account is already verified")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const (
	defaultResetTTL     = time.Hour
	notificationTimeout = 15 * time.Second
	timingPassword      = "timing-equalizer-password"
)

type accountRepository interface {
	Kind() entity.AccountKind
	Create(ctx context.Context, account *entity.Account) error
	FindByID(ctx context.Context, id uint64) (*entity.Account, error)
	FindByEmail(ctx context.Context, email string) (*entity.Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*entity.Account, error)
	FindByResetToken(ctx context.Context, token string) (*entity.Account, error)
	Update(ctx context.Context, account *entity.Account) error
}

type tokenIssuer interface {
	NewOpaqueToken() (string, error)
	IssueBearerToken(account *entity.Account) (string, error)
	ParseBearerToken(token string) (*Claims, error)
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

type CredentialService interface {
	Register(ctx context.Context, input RegisterInput) (*dto.AccountView, error)
	Authenticate(ctx context.Context, email, password string) (*dto.AuthResult, error)
	VerifyEmail(ctx context.Context, token string) (bool, error)
	ForgotPassword(ctx context.Context, email string) (bool, error)
	ResetPassword(ctx context.Context, token, newPassword string) (bool, error)
	ResendVerification(ctx context.Context, email string) (bool, error)
	GetAccount(ctx context.Context, kind entity.AccountKind, id uint64) (*dto.AccountView, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
}

type AsyncRunner func(task func())

type CredentialServiceOption func(*credentialService)

type credentialService struct {
	users       accountRepository
	customers   accountRepository
	hasher      PasswordHasher
	tokens      tokenIssuer
	notifier    Notifier
	cfg         *config.Config
	recorder    metrics.Recorder
	asyncRunner AsyncRunner
	now         func() time.Time

	timingOnce sync.Once
	timingHash string
}

func NewCredentialService(
	users accountRepository,
	customers accountRepository,
	hasher PasswordHasher,
	tokens tokenIssuer,
	notifier Notifier,
	cfg *config.Config,
	opts ...CredentialServiceOption,
) CredentialService {
	svc := &credentialService{
		users:     users,
		customers: customers,
		hasher:    hasher,
		tokens:    tokens,
		notifier:  notifier,
		cfg:       cfg,
		recorder:  metrics.Noop{},
		asyncRunner: func(task func()) {
			go task()
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithAsyncRunner(runner AsyncRunner) CredentialServiceOption {
	return func(s *credentialService) {
		if runner != nil {
			s.asyncRunner = runner
		}
	}
}

func WithClock(now func() time.Time) CredentialServiceOption {
	return func(s *credentialService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithRecorder(recorder metrics.Recorder) CredentialServiceOption {
	return func(s *credentialService) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

func (s *credentialService) Register(ctx context.Context, input RegisterInput) (*dto.AccountView, error) {
	role, err := resolveRole(input.Role)
	if err != nil {
		return nil, err
	}

	email := NormalizeEmail(input.Email)
	existing, err := s.findAccount(ctx, func(repo accountRepository) (*entity.Account, error) {
		return repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	if err = s.cfg.Password.Policy.Validate(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := s.tokens.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	now := s.now()
	kind := entity.KindForRole(role)
	account := &entity.Account{
		Kind:              kind,
		Email:             email,
		Username:          strings.TrimSpace(input.Username),
		PasswordHash:      passwordHash,
		Role:              role,
		IsVerified:        false,
		VerificationToken: sql.NullString{String: verificationToken, Valid: true},
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err = s.repoFor(kind).Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	s.recorder.Registration(string(kind))
	s.notify("verification", account, func(ctx context.Context) error {
		return s.notifier.SendVerificationEmail(ctx, account.Email, verificationToken)
	})

	return dto.NewAccountView(account), nil
}

func (s *credentialService) Authenticate(ctx context.Context, email, password string) (*dto.AuthResult, error) {
	email = NormalizeEmail(email)
	account, err := s.findAccount(ctx, func(repo accountRepository) (*entity.Account, error) {
		return repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}

	if account == nil {
		s.equalizeTiming(password)
		s.recorder.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		s.recorder.Login("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	if !account.IsVerified {
		s.recorder.Login("not_verified")
		return nil, ErrEmailNotVerified
	}

	accessToken, err := s.tokens.IssueBearerToken(account)
	if err != nil {
		return nil, fmt.Errorf("issue bearer token: %w", err)
	}

	s.recorder.Login("success")
	return &dto.AuthResult{
		Account:     dto.NewAccountView(account),
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.cfg.JWT.AccessTokenTTL.Seconds()),
	}, nil
}

func (s *credentialService) VerifyEmail(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}

	account, err := s.findAccount(ctx, func(repo accountRepository) (*entity.Account, error) {
		return repo.FindByVerificationToken(ctx, token)
	})
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}

	account.MarkVerified()
	if err = s.save(ctx, account); err != nil {
		return false, fmt.Errorf("update %s: %w", account.Kind, err)
	}

	logrus.WithFields(logrus.Fields{
		"account_id": account.ID,
		"kind":       account.Kind,
	}).Info("Email verified")
	return true, nil
}

func (s *credentialService) ForgotPassword(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	account, err := s.findAccount(ctx, func(repo accountRepository) (*entity.Account, error) {
		return repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return false, err
	}
	if account == nil {
		s.recorder.PasswordReset("unknown_email")
		return false, nil
	}

	resetToken, err := s.tokens.NewOpaqueToken()
	if err != nil {
		return false, fmt.Errorf("generate reset token: %w", err)
	}

	// A pending token is overwritten, never reused.
	account.SetResetToken(resetToken, s.now().Add(s.resetTTL()))
	if err = s.save(ctx, account); err != nil {
		return false, fmt.Errorf("update %s: %w", account.Kind, err)
	}

	s.recorder.PasswordReset("requested")
	subject, body := passwordResetEmail(s.cfg.Frontend.BaseURL, resetToken)
	s.notify("password_reset", account, func(ctx context.Context) error {
		return s.notifier.SendPlainEmail(ctx, account.Email, subject, body)
	})

	return true, nil
}

func (s *credentialService) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	if token == "" {
		return false, nil
	}

	account, err := s.findAccount(ctx, func(repo accountRepository) (*entity.Account, error) {
		return repo.FindByResetToken(ctx, token)
	})
	if err != nil {
		return false, err
	}
	if account == nil {
		s.recorder.PasswordReset("invalid_token")
		return false, nil
	}

	// The expiry instant itself is still valid.
	if !account.ResetTokenExpiresAt.Valid || account.ResetTokenExpiresAt.Time.Before(s.now()) {
		s.recorder.PasswordReset("expired")
		return false, nil
	}

	if err = s.cfg.Password.Policy.Validate(newPassword); err != nil {
		return false, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}

	account.PasswordHash = passwordHash
	account.ClearResetToken()
	if err = s.save(ctx, account); err != nil {
		return false, fmt.Errorf("update %s: %w", account.Kind, err)
	}

	s.recorder.PasswordReset("completed")
	logrus.WithFields(logrus.Fields{
		"account_id": account.ID,
		"kind":       account.Kind,
	}).Info("Password reset")
	return true, nil
}

func (s *credentialService) ResendVerification(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	account, err := s.findAccount(ctx, func(repo accountRepository) (*entity.Account, error) {
		return repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}
	if account.IsVerified {
		return false, ErrAlreadyVerified
	}

	if !account.VerificationToken.Valid {
		token, err := s.tokens.NewOpaqueToken()
		if err != nil {
			return false, fmt.Errorf("generate verification token: %w", err)
		}
		account.VerificationToken = sql.NullString{String: token, Valid: true}
		if err = s.save(ctx, account); err != nil {
			return false, fmt.Errorf("update %s: %w", account.Kind, err)
		}
	}

	token := account.VerificationToken.String
	s.notify("verification", account, func(ctx context.Context) error {
		return s.notifier.SendVerificationEmail(ctx, account.Email, token)
	})

	return true, nil
}

func (s *credentialService) GetAccount(ctx context.Context, kind entity.AccountKind, id uint64) (*dto.AccountView, error) {
	account, err := s.repoFor(kind).FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", kind, err)
	}
	if account == nil {
		return nil, ErrNotFound
	}

	return dto.NewAccountView(account), nil
}

func (s *credentialService) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := s.tokens.ParseBearerToken(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// findAccount runs lookup against users first, then customers. The first
// match wins.
func (s *credentialService) findAccount(
	ctx context.Context,
	lookup func(repo accountRepository) (*entity.Account, error),
) (*entity.Account, error) {
	for _, repo := range []accountRepository{s.users, s.customers} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		account, err := lookup(repo)
		if err != nil {
			return nil, fmt.Errorf("find %s: %w", repo.Kind(), err)
		}
		if account != nil {
			return account, nil
		}
	}
	return nil, nil
}

// save stamps updated_at from the service clock before writing.
func (s *credentialService) save(ctx context.Context, account *entity.Account) error {
	account.UpdatedAt = s.now()
	return s.repoFor(account.Kind).Update(ctx, account)
}

func (s *credentialService) repoFor(kind entity.AccountKind) accountRepository {
	if kind == entity.KindCustomer {
		return s.customers
	}
	return s.users
}

func (s *credentialService) resetTTL() time.Duration {
	if s.cfg.Tokens.ResetTTL > 0 {
		return s.cfg.Tokens.ResetTTL
	}
	return defaultResetTTL
}

// equalizeTiming spends one hash comparison so unknown emails take as long as
// wrong passwords.
func (s *credentialService) equalizeTiming(password string) {
	s.timingOnce.Do(func() {
		hash, err := s.hasher.Hash(timingPassword)
		if err != nil {
			logrus.WithError(err).Warn("Failed to prepare timing hash")
			return
		}
		s.timingHash = hash
	})
	if s.timingHash != "" {
		_ = s.hasher.Verify(password, s.timingHash)
	}
}

func (s *credentialService) notify(notification string, account *entity.Account, send func(ctx context.Context) error) {
	fields := logrus.Fields{
		"account_id":   account.ID,
		"kind":         account.Kind,
		"notification": notification,
	}

	s.asyncRunner(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			s.recorder.NotificationFailed(notification)
			logrus.WithError(err).WithFields(fields).Warn("Failed to send notification")
			return
		}
		logrus.WithFields(fields).Debug("Notification sent")
	})
}

func resolveRole(role string) (string, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return entity.RoleCustomer, nil
	}

	for _, known := range []string{entity.RoleAdmin, entity.RoleRestaurantOwner, entity.RoleCustomer} {
		if strings.EqualFold(role, known) {
			return known, nil
		}
	}
	return "", ErrInvalidRole
}
