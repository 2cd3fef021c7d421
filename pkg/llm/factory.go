package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Providers supported by NewClientFromConfig.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Tiers holds the primary model and the optional lower-tier fallback.
// Secondary is nil when no fallback is configured.
type Tiers struct {
	Primary   LLMClient
	Secondary LLMClient
}

// NewClientFromConfig creates a client for the configured provider.
func NewClientFromConfig(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewTiers builds circuit-breaker guarded clients for both tiers. A nil or
// model-less secondary config leaves Secondary unset.
func NewTiers(primary, secondary *Config, breaker CircuitBreakerConfig, logger *zap.Logger) (*Tiers, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary llm config is required")
	}

	p, err := NewClientFromConfig(primary, logger)
	if err != nil {
		return nil, fmt.Errorf("create primary client: %w", err)
	}
	tiers := &Tiers{Primary: NewGuardedClient(p, NewCircuitBreaker(breaker))}

	if secondary != nil && secondary.Model != "" {
		s, err := NewClientFromConfig(secondary, logger)
		if err != nil {
			return nil, fmt.Errorf("create secondary client: %w", err)
		}
		tiers.Secondary = NewGuardedClient(s, NewCircuitBreaker(breaker))
	}

	logger.Info("LLM tiers configured",
		zap.String("primary_model", tiers.Primary.GetModel()),
		zap.Bool("has_secondary", tiers.Secondary != nil))

	return tiers, nil
}

// Status reports the circuit state of each configured tier, keyed by tier
// name. Tiers not wrapped in a breaker are omitted.
func (t *Tiers) Status() map[string]string {
	status := make(map[string]string, 2)
	for name, c := range map[string]LLMClient{"primary": t.Primary, "secondary": t.Secondary} {
		if g, ok := c.(*GuardedClient); ok {
			status[name] = g.Breaker().State().String()
		}
	}
	return status
}
