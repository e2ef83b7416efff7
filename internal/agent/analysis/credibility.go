package analysis

import (
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/sentiscope/config"
	"github.com/mohammad-safakhou/sentiscope/internal/agent/core"
)

// CredibilityPolicy governs per-domain credibility adjustments.
type CredibilityPolicy struct {
	Enabled        bool
	Baseline       float64
	MinCredibility float64
	DomainBias     map[string]float64
}

// NewCredibilityPolicy constructs a CredibilityPolicy from configuration.
func NewCredibilityPolicy(cfg config.FairnessConfig) (*CredibilityPolicy, error) {
	if !cfg.Enabled {
		return &CredibilityPolicy{Enabled: false}, nil
	}
	norm := cfg.Normalize()
	if err := norm.Validate(); err != nil {
		return nil, err
	}
	bias := make(map[string]float64, len(norm.DomainBias))
	for domain, v := range norm.DomainBias {
		if host := normalizeHost(domain); host != "" {
			bias[host] = v
		}
	}
	return &CredibilityPolicy{
		Enabled:        true,
		Baseline:       core.Clamp(norm.BaselineCredibility, 0, 1),
		MinCredibility: core.Clamp(norm.MinCredibility, 0, 1),
		DomainBias:     bias,
	}, nil
}

// Adjust returns the adjusted credibility for a document hosted on domain.
func (p *CredibilityPolicy) Adjust(domain string, credibility float64) float64 {
	if p == nil || !p.Enabled {
		return credibility
	}
	base := credibility
	if base <= 0 {
		base = p.Baseline
	}
	delta := core.Clamp(p.DomainBias[normalizeHost(domain)], -1, 1)
	var adjusted float64
	if delta >= 0 {
		adjusted = base + delta*(1-base)
	} else {
		adjusted = base + delta*base
	}
	adjusted = core.Clamp(adjusted, 0, 1)
	if adjusted < p.MinCredibility {
		adjusted = p.MinCredibility
	}
	return adjusted
}

// Blend mixes a model's credibility estimate with the policy's view of the
// document set. A disabled policy returns the estimate unchanged.
func (p *CredibilityPolicy) Blend(estimate float64, docs []core.Document) float64 {
	estimate = core.Clamp(estimate, 0, 1)
	if p == nil || !p.Enabled || len(docs) == 0 {
		return estimate
	}
	var sum float64
	for _, d := range docs {
		sum += p.Adjust(domainOf(d.URL), 0)
	}
	return core.Clamp((estimate+sum/float64(len(docs)))/2, 0, 1)
}

func domainOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return normalizeHost(u.Host)
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if u, err := url.Parse(value); err == nil {
			value = u.Host
		}
	}
	if i := strings.IndexByte(value, ':'); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimPrefix(value, "www.")
	return strings.TrimSuffix(value, ".")
}
