package billing

import (
	"fmt"
	"strings"
)

// New builds the gateway selected by cfg.Provider.
func New(cfg Config, stripeCfg StripeConfig, paddleCfg PaddleConfig, opts ...Option) (Gateway, error) {
	opts = append([]Option{WithTimeout(cfg.Timeout)}, opts...)

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderStripe, "":
		return NewStripeGateway(stripeCfg, opts...)
	case ProviderPaddle:
		return NewPaddleGateway(paddleCfg, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
