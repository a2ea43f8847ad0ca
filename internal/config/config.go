package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Oracle provider identifiers.
const (
	OracleProviderGroq     = "groq"
	OracleProviderOpenAI   = "openai"
	OracleProviderDeepSeek = "deepseek"
	OracleProviderGemini   = "gemini"
	OracleProviderNone     = "none"
)

// Config holds all runtime configuration for the remediation agent.
type Config struct {
	BindAddress string
	Port        int
	DataDir     string
	EnvPath     string

	// ProjectRoot is the only directory patches and source-context reads may touch.
	ProjectRoot string
	// LogDir confines the log_path values alerts may reference.
	LogDir         string
	DefaultLogPath string
	LogTailLines   int

	LogLevel  string
	LogFormat string
	LogFile   string

	OracleProvider string
	OracleModel    string
	OracleAPIKey   string
	OracleBaseURL  string
	OracleTimeout  time.Duration

	RecoveryTimeout   time.Duration
	ScriptTimeout     time.Duration
	ScriptHTTPTimeout time.Duration

	RunbookPath          string
	WebhookRatePerMinute int

	// MinConfidence is the diagnosis confidence below which plans escalate
	// instead of asking the Oracle for a script or patch.
	MinConfidence float64

	// ApprovalTokenHash is the bcrypt hash approvers must present. Empty disables the check.
	ApprovalTokenHash string
}

// ArchivePath returns the sqlite file decided plans are archived to.
func (c *Config) ArchivePath() string {
	return filepath.Join(c.DataDir, "plans.db")
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// LoadConfig loads agent configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	envPath := envOrDefault("CW_ENV_FILE", ".env")
	// Best-effort .env loading (not required)
	_ = godotenv.Load(envPath)

	port, err := envOrDefaultInt("CW_PORT", 8001)
	if err != nil {
		return nil, err
	}
	tailLines, err := envOrDefaultInt("CW_LOG_TAIL_LINES", 50)
	if err != nil {
		return nil, err
	}
	ratePerMinute, err := envOrDefaultInt("CW_WEBHOOK_RATE_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}
	minConfidence, err := envOrDefaultFloat("CW_MIN_CONFIDENCE", 0.8)
	if err != nil {
		return nil, err
	}
	oracleTimeout, err := envOrDefaultDuration("ORACLE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	recoveryTimeout, err := envOrDefaultDuration("CW_RECOVERY_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	scriptTimeout, err := envOrDefaultDuration("CW_SCRIPT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	scriptHTTPTimeout, err := envOrDefaultDuration("CW_SCRIPT_HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	provider := strings.ToLower(envOrDefault("ORACLE_PROVIDER", OracleProviderGroq))
	cfg := &Config{
		BindAddress:          envOrDefault("CW_BIND_ADDRESS", "0.0.0.0"),
		Port:                 port,
		DataDir:              envOrDefault("CW_DATA_DIR", "./data"),
		EnvPath:              envPath,
		ProjectRoot:          envOrDefault("PROJECT_PATH", "/workspace"),
		LogDir:               envOrDefault("CW_LOG_DIR", "/logs"),
		DefaultLogPath:       envOrDefault("CW_DEFAULT_LOG_PATH", "/logs/service.log"),
		LogTailLines:         tailLines,
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		LogFormat:            envOrDefault("LOG_FORMAT", "auto"),
		LogFile:              strings.TrimSpace(os.Getenv("CW_LOG_FILE")),
		OracleProvider:       provider,
		OracleModel:          envOrDefault("ORACLE_MODEL", defaultModel(provider)),
		OracleAPIKey:         oracleAPIKey(provider),
		OracleBaseURL:        strings.TrimSpace(os.Getenv("ORACLE_BASE_URL")),
		OracleTimeout:        oracleTimeout,
		RecoveryTimeout:      recoveryTimeout,
		ScriptTimeout:        scriptTimeout,
		ScriptHTTPTimeout:    scriptHTTPTimeout,
		RunbookPath:          strings.TrimSpace(os.Getenv("CW_RUNBOOK_FILE")),
		WebhookRatePerMinute: ratePerMinute,
		MinConfidence:        minConfidence,
		ApprovalTokenHash:    strings.TrimSpace(os.Getenv("CW_APPROVAL_TOKEN_HASH")),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate agent config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("CW_PORT must be between 1 and 65535, got %d", c.Port)
	}
	if strings.TrimSpace(c.ProjectRoot) == "" {
		return fmt.Errorf("PROJECT_PATH must not be empty")
	}
	if c.LogTailLines <= 0 {
		return fmt.Errorf("CW_LOG_TAIL_LINES must be greater than 0, got %d", c.LogTailLines)
	}
	if c.WebhookRatePerMinute <= 0 {
		return fmt.Errorf("CW_WEBHOOK_RATE_PER_MINUTE must be greater than 0, got %d", c.WebhookRatePerMinute)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("CW_MIN_CONFIDENCE must be between 0 and 1, got %g", c.MinConfidence)
	}
	for name, d := range map[string]time.Duration{
		"ORACLE_TIMEOUT":         c.OracleTimeout,
		"CW_RECOVERY_TIMEOUT":    c.RecoveryTimeout,
		"CW_SCRIPT_TIMEOUT":      c.ScriptTimeout,
		"CW_SCRIPT_HTTP_TIMEOUT": c.ScriptHTTPTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	switch c.OracleProvider {
	case OracleProviderGroq, OracleProviderOpenAI, OracleProviderDeepSeek, OracleProviderGemini:
		if c.OracleAPIKey == "" {
			return fmt.Errorf("an API key is required for oracle provider %q", c.OracleProvider)
		}
	case OracleProviderNone:
	default:
		return fmt.Errorf("unknown ORACLE_PROVIDER %q", c.OracleProvider)
	}

	if c.ApprovalTokenHash != "" && !strings.HasPrefix(c.ApprovalTokenHash, "$2") {
		return fmt.Errorf("CW_APPROVAL_TOKEN_HASH must be a bcrypt hash (see `codeweaver hash-token`)")
	}

	if c.OracleBaseURL != "" {
		parsed, err := url.Parse(c.OracleBaseURL)
		if err != nil {
			return fmt.Errorf("ORACLE_BASE_URL must be a valid URL: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("ORACLE_BASE_URL must use http or https scheme")
		}
	}
	return nil
}

func defaultModel(provider string) string {
	switch provider {
	case OracleProviderGroq:
		return "llama-3.1-8b-instant"
	case OracleProviderOpenAI:
		return "gpt-4o-mini"
	case OracleProviderDeepSeek:
		return "deepseek-chat"
	case OracleProviderGemini:
		return "gemini-2.0-flash"
	default:
		return ""
	}
}

// oracleAPIKey prefers ORACLE_API_KEY, then the provider's conventional variable.
func oracleAPIKey(provider string) string {
	if v := strings.TrimSpace(os.Getenv("ORACLE_API_KEY")); v != "" {
		return v
	}
	switch provider {
	case OracleProviderGroq:
		return strings.TrimSpace(os.Getenv("GROQ_API_KEY"))
	case OracleProviderOpenAI:
		return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	case OracleProviderDeepSeek:
		return strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY"))
	case OracleProviderGemini:
		return strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	default:
		return ""
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultFloat(key string, fallback float64) (float64, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
		}
		return f, nil
	}
	return fallback, nil
}

func envOrDefaultDuration(key string, fallback time.Duration) (time.Duration, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration (e.g. 10s): %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}
