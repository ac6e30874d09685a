package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"tokenlending/crypto"
)

// Mainnet identities of the programs a lending deployment talks to.
var (
	DefaultTokenProgramID       = crypto.MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	DefaultLendingProgramID     = crypto.MustParsePubkey("So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo")
	DefaultPythProgramID        = crypto.MustParsePubkey("FsJ3A3u2vn5cTVofAjvy6y5kwABJAqYWpe4975bi2epH")
	DefaultSwitchboardV1        = crypto.MustParsePubkey("DtmE9D2CSB4L5D6A2RaRpz2o1nZ6Tk3WkcbCRTgu4Yyp")
	DefaultSwitchboardV2        = crypto.MustParsePubkey("SW1TCH7qEPTdLsDHRgPuMQjbQxKdH2aBStViMFnt64f")
	DefaultNullOracle           = crypto.MustParsePubkey("nu11111111111111111111111111111111111111111")
	DefaultStaleAfterSlots      = uint64(240)
	DefaultConfidenceRatio      = uint64(10)
	DefaultMetricsAddress       = "127.0.0.1:9464"
	DefaultEnvironment          = "local"
	DefaultLogLevel             = "info"
	DefaultDataDir              = "./lending-data"
	DefaultTelemetryEndpoint    = "localhost:4318"
	defaultSwitchboardProgramID = []crypto.Pubkey{DefaultSwitchboardV1, DefaultSwitchboardV2}
)

type Config struct {
	DataDir        string    `toml:"DataDir"`
	Environment    string    `toml:"Environment"`
	LogFile        string    `toml:"LogFile"`
	LogLevel       string    `toml:"LogLevel"`
	MetricsAddress string    `toml:"MetricsAddress"`
	Programs       Programs  `toml:"programs"`
	Oracle         Oracle    `toml:"oracle"`
	Pauses         Pauses    `toml:"pauses"`
	Telemetry      Telemetry `toml:"telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration wired to the mainnet program ids.
func Default() *Config {
	return &Config{
		DataDir:        DefaultDataDir,
		Environment:    DefaultEnvironment,
		LogLevel:       DefaultLogLevel,
		MetricsAddress: DefaultMetricsAddress,
		Programs: Programs{
			Token:       DefaultTokenProgramID,
			Lending:     DefaultLendingProgramID,
			Pyth:        DefaultPythProgramID,
			Switchboard: append([]crypto.Pubkey(nil), defaultSwitchboardProgramID...),
			NullOracle:  DefaultNullOracle,
		},
		Oracle: Oracle{
			StaleAfterSlots: DefaultStaleAfterSlots,
			ConfidenceRatio: DefaultConfidenceRatio,
		},
		Telemetry: Telemetry{Endpoint: DefaultTelemetryEndpoint},
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = DefaultEnvironment
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = DefaultDataDir
	}
	if c.Oracle.StaleAfterSlots == 0 {
		c.Oracle.StaleAfterSlots = DefaultStaleAfterSlots
	}
	if c.Oracle.ConfidenceRatio == 0 {
		c.Oracle.ConfidenceRatio = DefaultConfidenceRatio
	}
	if c.Programs.Switchboard == nil {
		c.Programs.Switchboard = []crypto.Pubkey{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
