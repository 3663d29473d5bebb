package eligibility

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Checker decides whether an address may be bound to an identity.
type Checker interface {
	IsEligible(ctx context.Context, address, chain string) bool
}

// Registry is a set of eligible addresses backed by a CSV file whose first
// column is the address. An empty path keeps the set in memory only.
type Registry struct {
	mu    sync.RWMutex
	path  string
	addrs map[string]struct{}
	log   zerolog.Logger
}

// Load reads the registry file. A missing file yields an empty set.
func Load(path string, log zerolog.Logger) (*Registry, error) {
	r := &Registry{path: path, addrs: make(map[string]struct{}), log: log}
	if path == "" {
		return r, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("eligibility file not found; starting with empty set")
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open eligibility file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read eligibility file %s: %w", path, err)
		}
		if len(rec) == 0 {
			continue
		}
		if a := strings.TrimSpace(rec[0]); a != "" {
			r.addrs[a] = struct{}{}
		}
	}
	log.Info().Str("path", path).Int("count", len(r.addrs)).Msg("eligible wallets loaded")
	return r, nil
}

// IsEligible reports whether address is in the set. Chain is accepted for
// interface symmetry; eligibility is chain-agnostic.
func (r *Registry) IsEligible(_ context.Context, address, _ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.addrs[strings.TrimSpace(address)]
	return ok
}

// Len returns the number of eligible addresses.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.addrs)
}

// Add marks address eligible and appends it to the backing file. It reports
// false when the address was already present.
func (r *Registry) Add(address string) (bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return false, errors.New("eligibility: empty address")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.addrs[address]; ok {
		return false, nil
	}
	if r.path != "" {
		if err := r.appendRow(address); err != nil {
			return false, err
		}
	}
	r.addrs[address] = struct{}{}
	r.log.Info().Str("address", address).Msg("eligible wallet added")
	return true, nil
}

func (r *Registry) appendRow(address string) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create eligibility dir: %w", err)
		}
	}
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open eligibility file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{address}); err != nil {
		_ = f.Close()
		return fmt.Errorf("append eligibility row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush eligibility file: %w", err)
	}
	return f.Close()
}

// AllowAll accepts every non-empty address.
type AllowAll struct{}

func (AllowAll) IsEligible(_ context.Context, address, _ string) bool {
	return strings.TrimSpace(address) != ""
}
