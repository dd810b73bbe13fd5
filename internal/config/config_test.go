package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	saved := make(map[string]string, len(keys))
	for _, k := range keys {
		saved[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for k, v := range saved {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	})
}

var allConfigEnvVars = []string{
	"CLAWROUTER_PORT",
	"HTTP_READ_TIMEOUT_MS",
	"HTTP_WRITE_TIMEOUT_MS",
	"HTTP_IDLE_TIMEOUT_MS",
	"CLAWROUTER_AUTH_TOKEN",
	"CLAWROUTER_CORS_ORIGINS",
	"BLOCKRUN_WALLET_KEY",
	"CLAWROUTER_RATE_RPS",
	"CLAWROUTER_RATE_BURST",
	"CLAWROUTER_DAILY_BUDGET_USD",
	"CLAWROUTER_MONTHLY_BUDGET_USD",
	"CIRCUIT_FAILURE_THRESHOLD",
	"CIRCUIT_RESET_TIME_MS",
	"CLAWROUTER_CONFIDENCE_THRESHOLD",
	"CLAWROUTER_CONFIDENCE_STEEPNESS",
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)

	cfg := FromEnv()

	if cfg.Port != 18800 {
		t.Errorf("Port = %d, want 18800", cfg.Port)
	}
	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 120*time.Second {
		t.Errorf("WriteTimeout = %v, want 120s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.RateLimitRPS != 20 {
		t.Errorf("RateLimitRPS = %f, want 20", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 40 {
		t.Errorf("RateLimitBurst = %d, want 40", cfg.RateLimitBurst)
	}
	if cfg.DailyBudgetUSD != 50.0 {
		t.Errorf("DailyBudgetUSD = %f, want 50.0", cfg.DailyBudgetUSD)
	}
	if cfg.MonthlyBudgetUSD != 500.0 {
		t.Errorf("MonthlyBudgetUSD = %f, want 500.0", cfg.MonthlyBudgetUSD)
	}
	if cfg.CircuitFailureThreshold != 3 {
		t.Errorf("CircuitFailureThreshold = %d, want 3", cfg.CircuitFailureThreshold)
	}
	if cfg.CircuitResetTimeMs != 60000 {
		t.Errorf("CircuitResetTimeMs = %d, want 60000", cfg.CircuitResetTimeMs)
	}
	if cfg.ConfidenceThreshold != 0.6 {
		t.Errorf("ConfidenceThreshold = %f, want 0.6", cfg.ConfidenceThreshold)
	}
	if cfg.ConfidenceSteepness != 1.5 {
		t.Errorf("ConfidenceSteepness = %f, want 1.5", cfg.ConfidenceSteepness)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, want 2 defaults", cfg.CORSAllowedOrigins)
	}
	if cfg.WalletKey != "" {
		t.Errorf("WalletKey = %q, want empty", cfg.WalletKey)
	}
}

func TestFromEnv_CustomValues(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)

	os.Setenv("CLAWROUTER_PORT", "9090")
	os.Setenv("CLAWROUTER_AUTH_TOKEN", "test-token")
	os.Setenv("CLAWROUTER_RATE_RPS", "25.5")
	os.Setenv("CLAWROUTER_RATE_BURST", "50")
	os.Setenv("CLAWROUTER_DAILY_BUDGET_USD", "100.0")
	os.Setenv("BLOCKRUN_WALLET_KEY", "0xabc123")

	cfg := FromEnv()

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.AuthToken != "test-token" {
		t.Errorf("AuthToken = %s, want test-token", cfg.AuthToken)
	}
	if cfg.RateLimitRPS != 25.5 {
		t.Errorf("RateLimitRPS = %f, want 25.5", cfg.RateLimitRPS)
	}
	if cfg.RateLimitBurst != 50 {
		t.Errorf("RateLimitBurst = %d, want 50", cfg.RateLimitBurst)
	}
	if cfg.DailyBudgetUSD != 100.0 {
		t.Errorf("DailyBudgetUSD = %f, want 100.0", cfg.DailyBudgetUSD)
	}
	if cfg.WalletKey != "0xabc123" {
		t.Errorf("WalletKey = %s, want 0xabc123", cfg.WalletKey)
	}
}

func TestFromEnv_CORSOrigins(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)
	os.Setenv("CLAWROUTER_CORS_ORIGINS", "https://a.example, https://b.example ,,")

	cfg := FromEnv()

	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.CORSAllowedOrigins) != len(want) {
		t.Fatalf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
	}
	for i, o := range want {
		if cfg.CORSAllowedOrigins[i] != o {
			t.Errorf("CORSAllowedOrigins[%d] = %s, want %s", i, cfg.CORSAllowedOrigins[i], o)
		}
	}
}

func TestFromEnv_InvalidInt(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)
	os.Setenv("CLAWROUTER_PORT", "not-a-number")

	cfg := FromEnv()

	if cfg.Port != 18800 {
		t.Errorf("Port = %d, want 18800 (default)", cfg.Port)
	}
}

func TestFromEnv_InvalidFloat(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)
	os.Setenv("CLAWROUTER_RATE_RPS", "not-a-float")

	cfg := FromEnv()

	if cfg.RateLimitRPS != 20 {
		t.Errorf("RateLimitRPS = %f, want 20 (default)", cfg.RateLimitRPS)
	}
}

func TestFromEnv_Timeouts(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)
	os.Setenv("HTTP_READ_TIMEOUT_MS", "5000")
	os.Setenv("HTTP_WRITE_TIMEOUT_MS", "10000")
	os.Setenv("HTTP_IDLE_TIMEOUT_MS", "15000")

	cfg := FromEnv()

	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 15*time.Second {
		t.Errorf("IdleTimeout = %v, want 15s", cfg.IdleTimeout)
	}
}

func TestFromEnv_InvalidDuration(t *testing.T) {
	clearEnv(t, allConfigEnvVars...)
	os.Setenv("HTTP_READ_TIMEOUT_MS", "invalid")

	cfg := FromEnv()

	if cfg.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s (default)", cfg.ReadTimeout)
	}
}
