package oracle

import (
	"context"
	"fmt"

	"github.com/rooney011/CodeWeaver/internal/circuit"
	"github.com/rooney011/CodeWeaver/internal/config"
)

// NewFromConfig builds the configured provider wrapped in a Guarded Oracle.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Oracle, error) {
	var inner Oracle
	switch cfg.OracleProvider {
	case config.OracleProviderGroq, config.OracleProviderOpenAI, config.OracleProviderDeepSeek:
		o, err := NewOpenAIOracle(cfg.OracleProvider, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleBaseURL)
		if err != nil {
			return nil, err
		}
		inner = o
	case config.OracleProviderGemini:
		o, err := NewGeminiOracle(ctx, cfg.OracleAPIKey, cfg.OracleModel, cfg.OracleBaseURL)
		if err != nil {
			return nil, err
		}
		inner = o
	case config.OracleProviderNone, "":
		inner = Unavailable{}
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.OracleProvider)
	}

	return NewGuarded(inner, cfg.OracleTimeout, circuit.NewBreaker("oracle-"+inner.Name(), circuit.DefaultConfig())), nil
}
