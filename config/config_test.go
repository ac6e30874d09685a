package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tokenlending/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Programs.Token != DefaultTokenProgramID {
		t.Fatalf("token program = %s", cfg.Programs.Token)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Programs.NullOracle != DefaultNullOracle {
		t.Fatalf("null oracle = %s", reloaded.Programs.NullOracle)
	}
	if len(reloaded.Programs.Switchboard) != 2 {
		t.Fatalf("switchboard programs = %v", reloaded.Programs.Switchboard)
	}
	if reloaded.Oracle.StaleAfterSlots != DefaultStaleAfterSlots {
		t.Fatalf("stale after = %d", reloaded.Oracle.StaleAfterSlots)
	}
}

func TestLoadParsesFile(t *testing.T) {
	pyth, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `DataDir = "/var/lib/lending"
Environment = "staging"
LogFile = "/var/log/lending.log"

[programs]
Pyth = "` + pyth.Pubkey().String() + `"
Switchboard = ["SW1TCH7qEPTdLsDHRgPuMQjbQxKdH2aBStViMFnt64f"]

[oracle]
StaleAfterSlots = 60

[pauses]
Lending = true

[telemetry]
Traces = true
Headers = "authorization=token"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Environment != "staging" || cfg.DataDir != "/var/lib/lending" {
		t.Fatalf("unexpected base settings: %+v", cfg)
	}
	if cfg.Programs.Pyth != pyth.Pubkey() {
		t.Fatalf("pyth = %s", cfg.Programs.Pyth)
	}
	if cfg.Programs.Token != DefaultTokenProgramID {
		t.Fatalf("token program default lost: %s", cfg.Programs.Token)
	}
	if len(cfg.Programs.Switchboard) != 1 || cfg.Programs.Switchboard[0] != DefaultSwitchboardV2 {
		t.Fatalf("switchboard = %v", cfg.Programs.Switchboard)
	}
	if !cfg.Pauses.IsPaused("lending") || cfg.Pauses.IsPaused("swap") {
		t.Fatalf("pauses = %+v", cfg.Pauses)
	}

	oracleCfg := cfg.OracleConfig()
	if oracleCfg.StaleAfterSlots != 60 || oracleCfg.ConfidenceRatio != DefaultConfidenceRatio {
		t.Fatalf("oracle config = %+v", oracleCfg)
	}
	if !oracleCfg.IsNull(DefaultNullOracle) {
		t.Fatalf("null oracle not carried over")
	}

	telemetry := cfg.TelemetryConfig("lending-sim")
	if !telemetry.Traces || telemetry.Headers["authorization"] != "token" || telemetry.Environment != "staging" {
		t.Fatalf("telemetry = %+v", telemetry)
	}
}

func TestLoadRejectsMalformedPubkey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[programs]\nPyth = \"not-base58-0OIl\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected malformed pubkey to fail")
	}
}

func TestValidateConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "defaults"},
		{
			name:   "missing token program",
			mutate: func(c *Config) { c.Programs.Token = crypto.Pubkey{} },
			want:   "token program",
		},
		{
			name:   "missing null oracle",
			mutate: func(c *Config) { c.Programs.NullOracle = crypto.Pubkey{} },
			want:   "null oracle",
		},
		{
			name:   "pyth reuses token program",
			mutate: func(c *Config) { c.Programs.Pyth = c.Programs.Token },
			want:   "collides",
		},
		{
			name:   "switchboard is pyth",
			mutate: func(c *Config) { c.Programs.Switchboard = []crypto.Pubkey{c.Programs.Pyth} },
			want:   "collides",
		},
		{
			name:   "switchboard is null",
			mutate: func(c *Config) { c.Programs.Switchboard = []crypto.Pubkey{c.Programs.NullOracle} },
			want:   "invalid switchboard",
		},
		{
			name:   "stale window too long",
			mutate: func(c *Config) { c.Oracle.StaleAfterSlots = MaxStaleAfterSlots + 1 },
			want:   "stale_after_slots",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "chatty" },
			want:   "log level",
		},
		{
			name:   "zero confidence ratio",
			mutate: func(c *Config) { c.Oracle.ConfidenceRatio = 0 },
			want:   "confidence_ratio",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			if tc.mutate != nil {
				tc.mutate(cfg)
			}
			err := ValidateConfig(cfg)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
