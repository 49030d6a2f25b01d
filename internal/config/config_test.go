package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesWalletServiceInternalAPIKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTERNAL_API_KEY")
	setEnvWithCleanup(t, "WALLET_SERVICE_INTERNAL_API_KEY", "alias-only-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "alias-only-key" {
		t.Fatalf("expected InternalAPIKey from alias env var, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_InternalAPIKeyTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "primary-key")
	setEnvWithCleanup(t, "WALLET_SERVICE_INTERNAL_API_KEY", "alias-key")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "primary-key" {
		t.Fatalf("expected InternalAPIKey to prioritize INTERNAL_API_KEY, got %q", cfg.InternalAPIKey)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "3000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "3000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_FeeDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVICE_FEE_PERCENT")
	unsetEnvWithCleanup(t, "SERVICE_FEE_CAP_EUR")
	unsetEnvWithCleanup(t, "PLATFORM_FEE_PERCENT")
	unsetEnvWithCleanup(t, "DEPOSIT_FLOOR_EUR")
	unsetEnvWithCleanup(t, "MIN_WITHDRAWAL")
	unsetEnvWithCleanup(t, "AUTO_RELEASE_DAYS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServiceFeePercent != 15.0 {
		t.Fatalf("expected default ServiceFeePercent 15.0, got %f", cfg.ServiceFeePercent)
	}
	if cfg.ServiceFeeCapEUR != 15000 {
		t.Fatalf("expected default ServiceFeeCapEUR 15000, got %d", cfg.ServiceFeeCapEUR)
	}
	if cfg.PlatformFeePercent != 5.0 {
		t.Fatalf("expected default PlatformFeePercent 5.0, got %f", cfg.PlatformFeePercent)
	}
	if cfg.DepositFloorEUR != 2500 {
		t.Fatalf("expected default DepositFloorEUR 2500, got %d", cfg.DepositFloorEUR)
	}
	if cfg.MinWithdrawal != 1000 {
		t.Fatalf("expected default MinWithdrawal 1000, got %d", cfg.MinWithdrawal)
	}
	if cfg.AutoReleaseDays != 14 {
		t.Fatalf("expected default AutoReleaseDays 14, got %d", cfg.AutoReleaseDays)
	}
}

func TestOrigins_SplitsAndTrims(t *testing.T) {
	cfg := Config{AllowedOrigins: "https://app.example.com, https://admin.example.com ,"}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://app.example.com" || origins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins: %v", origins)
	}

	empty := Config{AllowedOrigins: " "}
	if got := empty.Origins(); len(got) != 1 || got[0] != "*" {
		t.Fatalf("expected wildcard fallback, got %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
