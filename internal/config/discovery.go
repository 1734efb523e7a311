package config

import "fmt"

// DiscoveryConfig bounds the two-level address space walk.
type DiscoveryConfig struct {
	RootNode      string `yaml:"root_node" env:"DISCOVERY_ROOT_NODE" env-default:"i=85"`
	MaxBranches   int    `yaml:"max_branches" env:"DISCOVERY_MAX_BRANCHES" env-default:"5"`
	MaxLeaves     int    `yaml:"max_leaves" env:"DISCOVERY_MAX_LEAVES" env-default:"10"`
	MaxCandidates int    `yaml:"max_candidates" env:"DISCOVERY_MAX_CANDIDATES" env-default:"15"`
}

type ReportConfig struct {
	Limit int `yaml:"limit" env:"REPORT_LIMIT" env-default:"10"`
}

func DefaultDiscovery() DiscoveryConfig {
	return DiscoveryConfig{
		RootNode:      "i=85",
		MaxBranches:   5,
		MaxLeaves:     10,
		MaxCandidates: 15,
	}
}

func (d DiscoveryConfig) validate() error {
	if d.RootNode == "" {
		return fmt.Errorf("discovery root node is empty")
	}
	if d.MaxBranches <= 0 || d.MaxLeaves <= 0 || d.MaxCandidates <= 0 {
		return fmt.Errorf("discovery limits must be positive: branches=%d leaves=%d candidates=%d",
			d.MaxBranches, d.MaxLeaves, d.MaxCandidates)
	}
	return nil
}
