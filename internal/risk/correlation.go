package risk

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// pairKey canonicalizes an unordered (team, team) pair for map lookups.
func pairKey(a, b string) string {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// CorrelationEntry is one row of the static correlation matrix config.
type CorrelationEntry struct {
	TeamA       string  `yaml:"team_a"`
	TeamB       string  `yaml:"team_b"`
	Correlation float64 `yaml:"correlation"`
}

// correlationConfig is the on-disk shape of the correlation matrix file.
type correlationConfig struct {
	Pairs []CorrelationEntry `yaml:"pairs"`
}

// Matrix is a static, configuration-driven pairwise correlation table over
// team pairs, keyed by case-insensitive team name; sport is not part of the key.
type Matrix struct {
	pairs map[string]float64
}

// NewMatrix builds an empty Matrix (self-correlation always 1, everything
// else defaults to 0 unless loaded).
func NewMatrix() *Matrix {
	return &Matrix{pairs: make(map[string]float64)}
}

// LoadMatrix reads a correlation matrix from a YAML file. A missing file is
// not fatal — it yields an empty Matrix where only self-correlation applies.
func LoadMatrix(path string) (*Matrix, error) {
	m := NewMatrix()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("reading correlation matrix %s: %w", path, err)
	}

	var cfg correlationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing correlation matrix %s: %w", path, err)
	}

	for _, p := range cfg.Pairs {
		m.Set(p.TeamA, p.TeamB, p.Correlation)
	}
	return m, nil
}

// Set installs a correlation value for a team pair.
func (m *Matrix) Set(teamA, teamB string, correlation float64) {
	m.pairs[pairKey(teamA, teamB)] = correlation
}

// Correlation returns the configured correlation between two teams; 1 for a
// team with itself, 0 if unconfigured.
func (m *Matrix) Correlation(teamA, teamB string) float64 {
	if strings.EqualFold(teamA, teamB) {
		return 1.0
	}
	if c, ok := m.pairs[pairKey(teamA, teamB)]; ok {
		return c
	}
	return 0.0
}
