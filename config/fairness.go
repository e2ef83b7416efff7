package config

import (
	"fmt"
	"strings"
)

// Normalize clamps configuration values and standardises domain keys.
func (c FairnessConfig) Normalize() FairnessConfig {
	cfg := c
	if cfg.BaselineCredibility <= 0 {
		cfg.BaselineCredibility = 0.6
	}
	cfg.BaselineCredibility = clampUnit(cfg.BaselineCredibility)
	cfg.MinCredibility = clampUnit(cfg.MinCredibility)
	domainBias := make(map[string]float64, len(cfg.DomainBias))
	for host, value := range cfg.DomainBias {
		key := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(host)), "www.")
		if key == "" {
			continue
		}
		if value < -1 {
			value = -1
		}
		if value > 1 {
			value = 1
		}
		domainBias[key] = value
	}
	cfg.DomainBias = domainBias
	return cfg
}

// Validate ensures configuration is internally consistent.
func (c FairnessConfig) Validate() error {
	if c.BaselineCredibility <= 0 || c.BaselineCredibility > 1 {
		return fmt.Errorf("fairness.baseline_credibility must be within (0,1]")
	}
	if c.MinCredibility < 0 || c.MinCredibility > 1 {
		return fmt.Errorf("fairness.min_credibility must be within [0,1]")
	}
	if c.MinCredibility > c.BaselineCredibility {
		return fmt.Errorf("fairness.min_credibility cannot exceed baseline_credibility")
	}
	for domain, bias := range c.DomainBias {
		if bias < -1 || bias > 1 {
			return fmt.Errorf("fairness.domain_bias[%s] must be within [-1,1]", domain)
		}
	}
	return nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
