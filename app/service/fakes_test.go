package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-menu-auth/app/entity"
	"github.com/vibast-solutions/ms-go-menu-auth/app/repository"
	"github.com/vibast-solutions/ms-go-menu-auth/app/service"
	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"golang.org/x/crypto/bcrypt"
)

// memoryRepo is an in-memory account table with a unique email index.
type memoryRepo struct {
	mu       sync.Mutex
	kind     entity.AccountKind
	nextID   uint64
	accounts map[uint64]*entity.Account
	findErr  error
}

func newMemoryRepo(kind entity.AccountKind) *memoryRepo {
	return &memoryRepo{kind: kind, accounts: make(map[uint64]*entity.Account)}
}

func (r *memoryRepo) Kind() entity.AccountKind {
	return r.kind
}

func (r *memoryRepo) Create(_ context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return repository.ErrDuplicateEntry
		}
	}

	r.nextID++
	account.ID = r.nextID
	account.Kind = r.kind
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *memoryRepo) FindByID(_ context.Context, id uint64) (*entity.Account, error) {
	return r.find(func(a *entity.Account) bool { return a.ID == id })
}

func (r *memoryRepo) FindByEmail(_ context.Context, email string) (*entity.Account, error) {
	return r.find(func(a *entity.Account) bool { return a.Email == email })
}

func (r *memoryRepo) FindByVerificationToken(_ context.Context, token string) (*entity.Account, error) {
	return r.find(func(a *entity.Account) bool {
		return a.VerificationToken.Valid && a.VerificationToken.String == token
	})
}

func (r *memoryRepo) FindByResetToken(_ context.Context, token string) (*entity.Account, error) {
	return r.find(func(a *entity.Account) bool {
		return a.PasswordResetToken.Valid && a.PasswordResetToken.String == token
	})
}

func (r *memoryRepo) Update(_ context.Context, account *entity.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[account.ID]; !ok {
		return errors.New("account does not exist")
	}
	stored := *account
	r.accounts[account.ID] = &stored
	return nil
}

func (r *memoryRepo) find(match func(a *entity.Account) bool) (*entity.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, account := range r.accounts {
		if match(account) {
			found := *account
			return &found, nil
		}
	}
	return nil, nil
}

// seed stores an account directly, bypassing uniqueness checks.
func (r *memoryRepo) seed(account entity.Account) *entity.Account {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	account.ID = r.nextID
	account.Kind = r.kind
	r.accounts[account.ID] = &account
	found := account
	return &found
}

func (r *memoryRepo) byEmail(t *testing.T, email string) *entity.Account {
	t.Helper()

	account, err := r.FindByEmail(context.Background(), email)
	if err != nil || account == nil {
		t.Fatalf("expected %s account %q to exist, err=%v", r.kind, email, err)
	}
	return account
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
	Token   string
}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []sentEmail
	plain         []sentEmail
	err           error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, to, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.verifications = append(n.verifications, sentEmail{To: to, Token: token})
	return n.err
}

func (n *recordingNotifier) SendPlainEmail(_ context.Context, to, subject, htmlBody string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.plain = append(n.plain, sentEmail{To: to, Subject: subject, Body: htmlBody})
	return n.err
}

func (n *recordingNotifier) lastVerificationToken(t *testing.T) string {
	t.Helper()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.verifications) == 0 {
		t.Fatalf("expected a verification email to be sent")
	}
	return n.verifications[len(n.verifications)-1].Token
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type recordingRecorder struct {
	mu            sync.Mutex
	logins        []string
	resets        []string
	registrations []string
	failures      []string
}

func (r *recordingRecorder) Registration(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations = append(r.registrations, kind)
}

func (r *recordingRecorder) Login(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, outcome)
}

func (r *recordingRecorder) PasswordReset(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, outcome)
}

func (r *recordingRecorder) NotificationFailed(notification string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, notification)
}

type harness struct {
	svc       service.CredentialService
	users     *memoryRepo
	customers *memoryRepo
	notifier  *recordingNotifier
	clock     *fakeClock
	recorder  *recordingRecorder
	hasher    *service.BcryptHasher
	issuer    *service.TokenIssuer
	cfg       *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:         "test-secret",
			Issuer:         "menu-test",
			Audience:       "menu-test-clients",
			AccessTokenTTL: 15 * time.Minute,
		},
		Tokens: config.TokenConfig{
			ResetTTL: time.Hour,
		},
		Frontend: config.FrontendConfig{
			BaseURL: "https://menu.example.com",
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{MinLength: 8},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := testConfig()
	h := &harness{
		users:     newMemoryRepo(entity.KindUser),
		customers: newMemoryRepo(entity.KindCustomer),
		notifier:  &recordingNotifier{},
		clock:     &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)},
		recorder:  &recordingRecorder{},
		hasher:    service.NewBcryptHasher(bcrypt.MinCost),
		issuer:    service.NewTokenIssuer(cfg.JWT),
		cfg:       cfg,
	}

	h.svc = service.NewCredentialService(
		h.users,
		h.customers,
		h.hasher,
		h.issuer,
		h.notifier,
		cfg,
		service.WithAsyncRunner(func(task func()) { task() }),
		service.WithClock(h.clock.Now),
		service.WithRecorder(h.recorder),
	)
	return h
}

func (h *harness) register(t *testing.T, username, email, password, role string) string {
	t.Helper()

	if _, err := h.svc.Register(context.Background(), service.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
		Role:     role,
	}); err != nil {
		t.Fatalf("register %s failed: %v", email, err)
	}
	return h.notifier.lastVerificationToken(t)
}

func (h *harness) registerVerified(t *testing.T, username, email, password, role string) {
	t.Helper()

	token := h.register(t, username, email, password, role)
	ok, err := h.svc.VerifyEmail(context.Background(), token)
	if err != nil || !ok {
		t.Fatalf("verify %s failed: ok=%v err=%v", email, ok, err)
	}
}
