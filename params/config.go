package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database configures the primary Pebble-backed store.
type Database struct {
	URL             string // e.g. "pebble://data/aura.db"
	VectorDimension int
}

// LLM configures reasoner selection and sampling.
type LLM struct {
	Model               string // "rule" | "dspy" | provider-qualified model id
	Temperature         float64
	CompiledProgramPath string
	EndpointURL         string
	APIKey              string
}

// Crypto configures crypto-lock mode and the Solana provider.
type Crypto struct {
	Enabled             bool
	Provider            string // "solana"
	Currency            string // "SOL" | "USDC"
	SolanaPrivateKey    string
	SolanaRPCURL        string
	SolanaNetwork       string
	SolanaUSDCMint      string
	DealTTLSeconds      int
	SecretEncryptionKey string // 32-byte base64
	SolUSDRate          float64
}

// Logic configures the Membrane's deterministic rules.
type Logic struct {
	MinMargin          float64
	MaxDiscountPercent float64
	AllowedAddons      []string
	TriggerPrice       float64
}

// Server configures RPC binding and observability.
type Server struct {
	Port           int
	GRPCMaxWorkers int
	PrometheusURL  string
	Version        string
	LogFile        string
}

// Security configures inbound signature verification.
type Security struct {
	TimestampToleranceSeconds int
}

type Config struct {
	Database Database
	LLM      LLM
	Crypto   Crypto
	Logic    Logic
	Server   Server
	Security Security
}

func Default() Config {
	return Config{
		Database: Database{
			URL:             "pebble://data/aura.db",
			VectorDimension: 1024,
		},
		LLM: LLM{
			Model:       "rule",
			Temperature: 0.2,
		},
		Crypto: Crypto{
			Enabled:        false,
			Provider:       "solana",
			Currency:       "SOL",
			SolanaNetwork:  "mainnet-beta",
			SolanaUSDCMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			DealTTLSeconds: 3600,
			SolUSDRate:     100.0,
		},
		Logic: Logic{
			MinMargin:          0.10,
			MaxDiscountPercent: 0.30,
			AllowedAddons:      nil,
			TriggerPrice:       1000.0,
		},
		Server: Server{
			Port:           8080,
			GRPCMaxWorkers: 64,
			Version:        "dev",
			LogFile:        "data/aura-core.log",
		},
		Security: Security{
			TimestampToleranceSeconds: 60,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("AURA_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := getInt("AURA_DATABASE_VECTOR_DIMENSION"); v != nil {
		cfg.Database.VectorDimension = *v
	}

	if v := os.Getenv("AURA_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := getFloat("AURA_LLM_TEMPERATURE"); v != nil {
		cfg.LLM.Temperature = *v
	}
	if v := os.Getenv("AURA_LLM_COMPILED_PROGRAM_PATH"); v != "" {
		cfg.LLM.CompiledProgramPath = v
	}
	if v := os.Getenv("AURA_LLM_ENDPOINT_URL"); v != "" {
		cfg.LLM.EndpointURL = v
	}
	if v := os.Getenv("AURA_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("AURA_CRYPTO_ENABLED"); v != "" {
		cfg.Crypto.Enabled = v == "true"
	}
	if v := os.Getenv("AURA_CRYPTO_PROVIDER"); v != "" {
		cfg.Crypto.Provider = v
	}
	if v := os.Getenv("AURA_CRYPTO_CURRENCY"); v != "" {
		cfg.Crypto.Currency = v
	}
	if v := os.Getenv("AURA_CRYPTO_SOLANA_PRIVATE_KEY"); v != "" {
		cfg.Crypto.SolanaPrivateKey = v
	}
	if v := os.Getenv("AURA_CRYPTO_SOLANA_RPC_URL"); v != "" {
		cfg.Crypto.SolanaRPCURL = v
	}
	if v := os.Getenv("AURA_CRYPTO_SOLANA_NETWORK"); v != "" {
		cfg.Crypto.SolanaNetwork = v
	}
	if v := os.Getenv("AURA_CRYPTO_SOLANA_USDC_MINT"); v != "" {
		cfg.Crypto.SolanaUSDCMint = v
	}
	if v := getInt("AURA_CRYPTO_DEAL_TTL_SECONDS"); v != nil {
		cfg.Crypto.DealTTLSeconds = *v
	}
	if v := os.Getenv("AURA_CRYPTO_SECRET_ENCRYPTION_KEY"); v != "" {
		cfg.Crypto.SecretEncryptionKey = v
	}
	if v := getFloat("AURA_CRYPTO_SOL_USD_RATE"); v != nil {
		cfg.Crypto.SolUSDRate = *v
	}

	if v := getFloat("AURA_LOGIC_MIN_MARGIN"); v != nil {
		cfg.Logic.MinMargin = *v
	}
	if v := getFloat("AURA_LOGIC_MAX_DISCOUNT_PERCENT"); v != nil {
		cfg.Logic.MaxDiscountPercent = *v
	}
	if v := os.Getenv("AURA_LOGIC_ALLOWED_ADDONS"); v != "" {
		cfg.Logic.AllowedAddons = strings.Split(v, ",")
	}
	if v := getFloat("AURA_LOGIC_TRIGGER_PRICE"); v != nil {
		cfg.Logic.TriggerPrice = *v
	}

	if v := getInt("AURA_SERVER_PORT"); v != nil {
		cfg.Server.Port = *v
	}
	if v := getInt("AURA_SERVER_GRPC_MAX_WORKERS"); v != nil {
		cfg.Server.GRPCMaxWorkers = *v
	}
	if v := os.Getenv("AURA_SERVER_PROMETHEUS_URL"); v != "" {
		cfg.Server.PrometheusURL = v
	}
	if v := os.Getenv("AURA_SERVER_VERSION"); v != "" {
		cfg.Server.Version = v
	}
	if v := os.Getenv("AURA_SERVER_LOG_FILE"); v != "" {
		cfg.Server.LogFile = v
	}

	if v := getInt("AURA_SECURITY_TIMESTAMP_TOLERANCE_SECONDS"); v != nil {
		cfg.Security.TimestampToleranceSeconds = *v
	}

	// min_margin falls back to the default on invalid values, matching
	// the Membrane's own clamping of the same value.
	if cfg.Logic.MinMargin < 0 || cfg.Logic.MinMargin >= 1.0 {
		cfg.Logic.MinMargin = 0.10
	}

	return cfg
}

func getInt(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func getFloat(key string) *float64 {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

// DealTTL returns the crypto-lock deal time-to-live as a duration.
func (c Crypto) DealTTL() time.Duration {
	return time.Duration(c.DealTTLSeconds) * time.Second
}
