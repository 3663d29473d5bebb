package factory

import (
	"github.com/rs/zerolog"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/eligibility"
)

// NewEligibility returns AllowAll when cfg.EligibilityOpen is set, otherwise
// the CSV-backed registry.
func NewEligibility(cfg *config.Config, log zerolog.Logger) (eligibility.Checker, error) {
	if cfg.EligibilityOpen {
		log.Warn().Msg("wallet eligibility is open; every address is accepted")
		return eligibility.AllowAll{}, nil
	}
	return eligibility.Load(cfg.EligibilityFile, log)
}
