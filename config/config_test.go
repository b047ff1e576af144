package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPasswordPolicyValidate(t *testing.T) {
	policy := PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSpecial:   true,
	}

	if err := policy.Validate("short"); err == nil {
		t.Fatalf("expected error for short password")
	}
	if err := policy.Validate("lowercase1!"); err == nil {
		t.Fatalf("expected error for missing uppercase")
	}
	if err := policy.Validate("UPPERCASE1!"); err == nil {
		t.Fatalf("expected error for missing lowercase")
	}
	if err := policy.Validate("NoNumber!"); err == nil {
		t.Fatalf("expected error for missing number")
	}
	if err := policy.Validate("NoSpecial1"); err == nil {
		t.Fatalf("expected error for missing special")
	}
	if err := policy.Validate("GoodPass1!"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
}

func TestPasswordPolicyValidate_LengthOnly(t *testing.T) {
	policy := PasswordPolicy{MinLength: 8}

	if err := policy.Validate("pw12345678"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
	if err := policy.Validate("pw1234"); err == nil {
		t.Fatalf("expected error for short password")
	}
}

func TestPasswordPolicyValidate_ByteLimit(t *testing.T) {
	policy := PasswordPolicy{MinLength: 8}

	if err := policy.Validate(strings.Repeat("a", MaxPasswordBytes)); err != nil {
		t.Fatalf("expected 72-byte password to pass, got %v", err)
	}
	// 40 runes, 80 bytes.
	if err := policy.Validate(strings.Repeat("é", 40)); err == nil {
		t.Fatalf("expected multibyte password over 72 bytes to fail")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "value")
	if got := getEnv("TEST_STRING", "default"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
	if got := getEnv("MISSING_STRING", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("TEST_DURATION", "30")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	t.Setenv("TEST_DURATION", "invalid")
	if got := getDurationEnv("TEST_DURATION", 5*time.Minute); got != 5*time.Minute {
		t.Fatalf("expected default duration, got %v", got)
	}

	t.Setenv("TEST_SECONDS", "5")
	if got := getSecondsEnv("TEST_SECONDS", time.Minute); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
	t.Setenv("TEST_SECONDS", "0")
	if got := getSecondsEnv("TEST_SECONDS", time.Minute); got != time.Minute {
		t.Fatalf("expected default seconds, got %v", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if got := getBoolEnv("TEST_BOOL", false); got != true {
		t.Fatalf("expected true, got %v", got)
	}
	t.Setenv("TEST_BOOL", "invalid")
	if got := getBoolEnv("TEST_BOOL", true); got != true {
		t.Fatalf("expected default bool, got %v", got)
	}

	t.Setenv("TEST_INT", "42")
	if got := getIntEnv("TEST_INT", 5); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "invalid")
	if got := getIntEnv("TEST_INT", 5); got != 5 {
		t.Fatalf("expected default int, got %d", got)
	}
}

func chdirTemp(t *testing.T) string {
	t.Helper()

	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd failed: %v", err)
	}
	tmp := t.TempDir()
	if err := os.Chdir(tmp); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(origDir)
	})
	return tmp
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "")
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when JWT_SECRET is missing")
	}
}

func TestLoadRequiresMySQLDSN(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "")
	if cfg, err := Load(); err == nil || cfg != nil {
		t.Fatalf("expected error when MYSQL_DSN is missing")
	}
}

func TestLoadSuccess(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(db:3306)/menudb?parseTime=true")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("GRPC_PORT", "9091")
	t.Setenv("GRPC_HEALTH_INTERVAL_SECONDS", "30")
	t.Setenv("JWT_ISSUER", "menu-test")
	t.Setenv("JWT_AUDIENCE", "menu-test-clients")
	t.Setenv("JWT_ACCESS_TOKEN_TTL", "20")
	t.Setenv("RESET_TOKEN_TTL", "30")
	t.Setenv("FRONTEND_BASE_URL", "https://menu.example.com/")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("PASSWORD_MIN_LENGTH", "10")
	t.Setenv("PASSWORD_REQUIRE_UPPERCASE", "false")
	t.Setenv("PASSWORD_REQUIRE_LOWERCASE", "true")
	t.Setenv("PASSWORD_REQUIRE_NUMBER", "false")
	t.Setenv("PASSWORD_REQUIRE_SPECIAL", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Port != "8081" {
		t.Fatalf("unexpected port: %s", cfg.HTTP.Port)
	}
	if cfg.GRPC.Port != "9091" || cfg.GRPC.HealthCheckInterval != 30*time.Second {
		t.Fatalf("unexpected grpc config: %+v", cfg.GRPC)
	}
	if cfg.DSN() != "user:pass@tcp(db:3306)/menudb?parseTime=true" {
		t.Fatalf("unexpected mysql dsn: %s", cfg.DSN())
	}
	if cfg.JWT.Issuer != "menu-test" || cfg.JWT.Audience != "menu-test-clients" {
		t.Fatalf("unexpected jwt issuer/audience: %s %s", cfg.JWT.Issuer, cfg.JWT.Audience)
	}
	if cfg.JWT.AccessTokenTTL != 20*time.Minute || cfg.Tokens.ResetTTL != 30*time.Minute {
		t.Fatalf("unexpected ttl: %v %v", cfg.JWT.AccessTokenTTL, cfg.Tokens.ResetTTL)
	}
	if cfg.Frontend.BaseURL != "https://menu.example.com" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.Frontend.BaseURL)
	}
	if !cfg.SMTP.Enabled() || cfg.SMTP.Port != 2525 {
		t.Fatalf("unexpected smtp config: %+v", cfg.SMTP)
	}
	if cfg.Password.Policy.MinLength != 10 ||
		cfg.Password.Policy.RequireUppercase != false ||
		cfg.Password.Policy.RequireLowercase != true ||
		cfg.Password.Policy.RequireNumber != false ||
		cfg.Password.Policy.RequireSpecial != false {
		t.Fatalf("unexpected password policy: %+v", cfg.Password.Policy)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("unexpected log level: %s", cfg.Log.Level)
	}
}

func TestLoadUsesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("MYSQL_DSN", "user:pass@tcp(localhost:3306)/menu?parseTime=true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.HTTP.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.HTTP.Port)
	}
	if cfg.GRPC.Port != "9090" || cfg.GRPC.HealthCheckInterval != 15*time.Second {
		t.Fatalf("unexpected default grpc config: %+v", cfg.GRPC)
	}
	if cfg.Tokens.ResetTTL != time.Hour {
		t.Fatalf("expected default reset ttl of one hour, got %v", cfg.Tokens.ResetTTL)
	}
	if cfg.SMTP.Enabled() {
		t.Fatalf("expected smtp to be disabled by default")
	}
	if cfg.Password.Policy.MinLength != 8 {
		t.Fatalf("expected default min length 8, got %d", cfg.Password.Policy.MinLength)
	}
}

func TestLoadRespectsEnvFileLocation(t *testing.T) {
	tmp := chdirTemp(t)

	envPath := filepath.Join(tmp, ".env")
	if err := os.WriteFile(envPath, []byte("JWT_SECRET=envfile-secret\nMYSQL_DSN=user:pass@tcp(localhost:3306)/menu?parseTime=true\nHTTP_PORT=9099\n"), 0600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.JWT.Secret != "envfile-secret" || cfg.HTTP.Port != "9099" {
		t.Fatalf("expected env file values, got %s %s", cfg.JWT.Secret, cfg.HTTP.Port)
	}
}
