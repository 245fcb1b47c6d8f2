package profile

import (
	"fmt"
	"strings"
)

// Multipliers applied to skill weights by tier.
const (
	PrimaryMultiplier   = 2.0
	SecondaryMultiplier = 1.0
)

// Flat bonuses added on top of skill hits.
const (
	LocationBonus = 0.5
	RemoteBonus   = 0.3
	SalaryBonus   = 0.2
)

// Skill is one weighted skill of a candidate profile.
type Skill struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Category string  `json:"category,omitempty"`
}

// Weights is the caller's relevance profile. Supplied per search, never persisted by the pipeline.
type Weights struct {
	Primary   []Skill `json:"primary,omitempty"`
	Secondary []Skill `json:"secondary,omitempty"`
	Location  string  `json:"location,omitempty"`
	Remote    bool    `json:"remote,omitempty"`
	MinSalary int     `json:"min_salary,omitempty"`
}

// Validate rejects skills without a name or with a negative weight.
func (w *Weights) Validate() error {
	for _, group := range [][]Skill{w.Primary, w.Secondary} {
		for _, s := range group {
			if strings.TrimSpace(s.Name) == "" {
				return fmt.Errorf("skill name is required")
			}
			if s.Weight < 0 {
				return fmt.Errorf("skill %q has negative weight", s.Name)
			}
		}
	}
	if w.MinSalary < 0 {
		return fmt.Errorf("min_salary must not be negative")
	}
	return nil
}

// MaxScore is the best achievable score: every skill hit plus all three bonuses.
func (w *Weights) MaxScore() float64 {
	var total float64
	for _, s := range w.Primary {
		total += s.Weight * PrimaryMultiplier
	}
	for _, s := range w.Secondary {
		total += s.Weight * SecondaryMultiplier
	}
	return total + LocationBonus + RemoteBonus + SalaryBonus
}
