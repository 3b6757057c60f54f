package llm

import (
	"context"
	"fmt"
)

// NewProvider builds the provider named by cfg.Provider, guarded by the
// timeout, retry and limit policy of cfg.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Provider {
	case ProviderOpenAI, "":
		p = NewOpenAI(cfg)

	case ProviderAnthropic:
		p = NewAnthropic(cfg)

	case ProviderGemini:
		p, err = NewGemini(ctx, cfg)

	case ProviderOllama:
		p, err = NewOllama(cfg)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	return Guard(p, cfg), nil
}
