// Package risk holds risk profiles and the portfolio risk gate validator.
package risk

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aristath/swingsentinel/internal/domain"
	"gopkg.in/yaml.v3"
)

// Profile names.
const (
	Conservative = "CONSERVATIVE"
	Balanced     = "BALANCED"
	Aggressive   = "AGGRESSIVE"
)

// Profile is a named set of risk budgets and caps. Percentages are of account equity.
type Profile struct {
	Name            string  `yaml:"-" json:"name"`
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	// MinRiskCash and MaxRiskCash clamp the per-trade risk budget; 0 disables a bound.
	MinRiskCash    float64 `yaml:"min_risk_cash" json:"min_risk_cash"`
	MaxRiskCash    float64 `yaml:"max_risk_cash" json:"max_risk_cash"`
	MaxOpenRiskPct float64 `yaml:"max_open_risk_pct" json:"max_open_risk_pct"`
	MaxPositions   int     `yaml:"max_positions" json:"max_positions"`
	// MaxLossPct caps the loss of a single position at its stop; 0 disables it.
	MaxLossPct float64 `yaml:"max_loss_pct" json:"max_loss_pct"`

	SleeveCapsPct       map[domain.Sleeve]float64 `yaml:"sleeve_caps_pct" json:"sleeve_caps_pct"`
	PositionSizeCapsPct map[domain.Sleeve]float64 `yaml:"position_size_caps_pct" json:"position_size_caps_pct"`
	ClusterCapPct       float64                   `yaml:"cluster_cap_pct" json:"cluster_cap_pct"`
	SectorCapPct        float64                   `yaml:"sector_cap_pct" json:"sector_cap_pct"`
}

// SleeveCap returns the sleeve value cap, or 100 when the sleeve is not configured.
func (p Profile) SleeveCap(s domain.Sleeve) float64 {
	if v, ok := p.SleeveCapsPct[s]; ok {
		return v
	}
	return 100
}

// PositionSizeCap returns the per-position cost cap for a sleeve, or 100.
func (p Profile) PositionSizeCap(s domain.Sleeve) float64 {
	if v, ok := p.PositionSizeCapsPct[s]; ok {
		return v
	}
	return 100
}

// Validate checks that the profile is usable.
func (p Profile) Validate() error {
	switch {
	case p.RiskPerTradePct <= 0 || p.RiskPerTradePct > 10:
		return fmt.Errorf("profile %s: risk_per_trade_pct must be in (0, 10], got %v", p.Name, p.RiskPerTradePct)
	case p.MaxOpenRiskPct <= 0:
		return fmt.Errorf("profile %s: max_open_risk_pct must be positive", p.Name)
	case p.MaxPositions <= 0:
		return fmt.Errorf("profile %s: max_positions must be positive", p.Name)
	case p.MaxLossPct < 0:
		return fmt.Errorf("profile %s: max_loss_pct must not be negative", p.Name)
	case p.MinRiskCash < 0 || p.MaxRiskCash < 0:
		return fmt.Errorf("profile %s: risk cash bounds must not be negative", p.Name)
	case p.MaxRiskCash > 0 && p.MinRiskCash > p.MaxRiskCash:
		return fmt.Errorf("profile %s: min_risk_cash exceeds max_risk_cash", p.Name)
	case p.ClusterCapPct <= 0 || p.SectorCapPct <= 0:
		return fmt.Errorf("profile %s: cluster and sector caps must be positive", p.Name)
	}
	for s := range p.SleeveCapsPct {
		if !s.Valid() {
			return fmt.Errorf("profile %s: unknown sleeve %q in sleeve_caps_pct", p.Name, s)
		}
	}
	for s := range p.PositionSizeCapsPct {
		if !s.Valid() {
			return fmt.Errorf("profile %s: unknown sleeve %q in position_size_caps_pct", p.Name, s)
		}
	}
	return nil
}

func defaultSleeveCaps() map[domain.Sleeve]float64 {
	return map[domain.Sleeve]float64{
		domain.SleeveCore:     80,
		domain.SleeveHighRisk: 40,
		domain.SleeveETF:      80,
		domain.SleeveHedge:    100,
	}
}

func defaultPositionSizeCaps() map[domain.Sleeve]float64 {
	return map[domain.Sleeve]float64{
		domain.SleeveCore:     25,
		domain.SleeveETF:      30,
		domain.SleeveHighRisk: 15,
		domain.SleeveHedge:    20,
	}
}

// DefaultProfiles returns fresh copies of the built-in profiles.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		Conservative: {
			Name:                Conservative,
			RiskPerTradePct:     0.5,
			MaxOpenRiskPct:      5,
			MaxPositions:        8,
			MaxLossPct:          1.0,
			SleeveCapsPct:       defaultSleeveCaps(),
			PositionSizeCapsPct: defaultPositionSizeCaps(),
			ClusterCapPct:       20,
			SectorCapPct:        25,
		},
		Balanced: {
			Name:                Balanced,
			RiskPerTradePct:     0.95,
			MaxOpenRiskPct:      7,
			MaxPositions:        12,
			MaxLossPct:          1.5,
			SleeveCapsPct:       defaultSleeveCaps(),
			PositionSizeCapsPct: defaultPositionSizeCaps(),
			ClusterCapPct:       20,
			SectorCapPct:        25,
		},
		Aggressive: {
			Name:                Aggressive,
			RiskPerTradePct:     1.5,
			MaxOpenRiskPct:      10,
			MaxPositions:        15,
			MaxLossPct:          2.0,
			SleeveCapsPct:       defaultSleeveCaps(),
			PositionSizeCapsPct: defaultPositionSizeCaps(),
			ClusterCapPct:       20,
			SectorCapPct:        25,
		},
	}
}

// ProfileSet is the resolved set of profiles after overrides.
type ProfileSet struct {
	profiles map[string]Profile
}

// NewProfileSet returns the built-in profiles.
func NewProfileSet() *ProfileSet {
	return &ProfileSet{profiles: DefaultProfiles()}
}

// LoadProfiles reads YAML overrides from path on top of the built-in profiles.
// An empty path returns the defaults. Each top-level key is a profile name; fields not
// given keep their built-in value, and unknown names start from BALANCED.
//
//	BALANCED:
//	  risk_per_trade_pct: 0.8
//	  sleeve_caps_pct:
//	    HIGH_RISK: 30
func LoadProfiles(path string) (*ProfileSet, error) {
	set := NewProfileSet()
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read risk profiles %s: %w", path, err)
	}
	if err := set.apply(data); err != nil {
		return nil, fmt.Errorf("failed to load risk profiles %s: %w", path, err)
	}
	return set, nil
}

func (s *ProfileSet) apply(data []byte) error {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return err
	}
	for rawName, node := range raw {
		name := strings.ToUpper(strings.TrimSpace(rawName))
		base, ok := s.profiles[name]
		if !ok {
			base = DefaultProfiles()[Balanced]
		}
		base.Name = name
		if err := node.Decode(&base); err != nil {
			return fmt.Errorf("profile %s: %w", name, err)
		}
		if err := base.Validate(); err != nil {
			return err
		}
		s.profiles[name] = base
	}
	return nil
}

// Get returns a profile by case-insensitive name.
func (s *ProfileSet) Get(name string) (Profile, error) {
	p, ok := s.profiles[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown risk profile %q", name)
	}
	return p, nil
}

// Names lists the available profile names, sorted.
func (s *ProfileSet) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
