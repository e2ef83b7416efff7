package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFairnessNormalizeClampsAndKeys(t *testing.T) {
	norm := FairnessConfig{
		BaselineCredibility: 1.5,
		MinCredibility:      -0.2,
		DomainBias: map[string]float64{
			" www.Reuters.COM ": 2,
			"tabloid.net":       -5,
			"   ":               0.5,
		},
	}.Normalize()

	assert.Equal(t, 1.0, norm.BaselineCredibility)
	assert.Zero(t, norm.MinCredibility)
	assert.Equal(t, map[string]float64{"reuters.com": 1, "tabloid.net": -1}, norm.DomainBias)
	assert.Equal(t, 0.6, FairnessConfig{}.Normalize().BaselineCredibility)
	require.NoError(t, norm.Validate())
}

func TestFairnessValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  FairnessConfig
		ok   bool
	}{
		{"defaults", FairnessConfig{BaselineCredibility: 0.6, MinCredibility: 0.2}, true},
		{"zero baseline", FairnessConfig{}, false},
		{"min above baseline", FairnessConfig{BaselineCredibility: 0.3, MinCredibility: 0.5}, false},
		{"domain out of range", FairnessConfig{BaselineCredibility: 0.6, DomainBias: map[string]float64{"x.com": 1.2}}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.name)
		} else {
			assert.Error(t, err, tc.name)
		}
	}
}
