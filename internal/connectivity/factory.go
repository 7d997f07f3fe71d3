package connectivity

import (
	"fmt"

	"fieldsync/internal/config"
	"fieldsync/internal/fieldsync"
)

// NewNetworkFromConfig creates a Network based on the connectivity config type.
func NewNetworkFromConfig(cfg config.ConnectivityConfig) (fieldsync.Network, error) {
	switch cfg.Type {
	case "", "probe":
		return NewProbeNetwork(cfg.ProbeURL, cfg.Timeout.Duration), nil
	case "always":
		return NewStaticNetwork(true), nil
	case "never":
		return NewStaticNetwork(false), nil
	default:
		return nil, fmt.Errorf("unknown connectivity type: %s", cfg.Type)
	}
}
