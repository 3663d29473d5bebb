package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/engagement"
)

// Project is the tracked-project definition: whose posts to ingest, which
// terms make a post relevant, and which accounts to register at setup.
type Project struct {
	Accounts []string           `yaml:"accounts"`
	Keywords []string           `yaml:"keywords"`
	Hashtags []string           `yaml:"hashtags"`
	Weights  engagement.Weights `yaml:"weights"`
	// Users are "handle,wallet[,chain]" rows registered by `engagementctl seed`.
	Users []string `yaml:"users"`
}

// Seed is one parsed Users row.
type Seed struct {
	Handle string
	Wallet string
	Chain  string
}

// LoadProject reads the YAML project file. A missing file yields an empty
// Project.
func LoadProject(path string) (*Project, error) {
	p := &Project{}
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	if err := yaml.Unmarshal(b, p); err != nil {
		return nil, fmt.Errorf("parse project file %s: %w", path, err)
	}
	return p, nil
}

// Merge appends the environment-supplied lists from cfg.
func (p *Project) Merge(cfg *Config) {
	p.Accounts = appendUnique(p.Accounts, cfg.Accounts...)
	p.Keywords = appendUnique(p.Keywords, cfg.Keywords...)
	p.Hashtags = appendUnique(p.Hashtags, cfg.Hashtags...)
}

// Seeds parses Users. Malformed rows are returned as errors alongside the
// valid seeds.
func (p *Project) Seeds() ([]Seed, []error) {
	var out []Seed
	var errs []error
	for i, row := range p.Users {
		parts := strings.Split(row, ",")
		if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			errs = append(errs, fmt.Errorf("users[%d]: want \"handle,wallet[,chain]\", got %q", i, row))
			continue
		}
		s := Seed{Handle: strings.TrimSpace(parts[0]), Wallet: strings.TrimSpace(parts[1])}
		if len(parts) > 2 {
			s.Chain = strings.TrimSpace(parts[2])
		}
		out = append(out, s)
	}
	return out, errs
}

func appendUnique(dst []string, src ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}
