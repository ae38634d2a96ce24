// Package normalizer deduplicates raw trade prints and bundles immaterial
// small prints into synthetic aggregate records.
package normalizer

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowgrade/flowgrade/internal/models"
)

// BundleThreshold is the total premium below which a print is considered
// small enough to bundle with other prints of the same contract and minute.
const BundleThreshold = 500.0

// Normalize deduplicates prints by identity key (first occurrence wins,
// input order preserved) and merges small same-contract, same-minute prints
// into synthetic bundles. It is a pure, total function: malformed prints are
// skipped with a logged warning, everything else always produces output.
func Normalize(prints []models.TradePrint, logger *logrus.Logger) []models.NormalizedTrade {
	deduped := dedupe(prints, logger)

	// Group small prints by bundle key, remembering where each group first
	// appeared so output order follows input order.
	groups := make(map[string][]models.TradePrint)
	for _, p := range deduped {
		if p.TotalPremium >= BundleThreshold {
			continue
		}
		key := p.BundleKey()
		groups[key] = append(groups[key], p)
	}

	emitted := make(map[string]bool, len(groups))
	out := make([]models.NormalizedTrade, 0, len(deduped))
	for _, p := range deduped {
		if p.TotalPremium >= BundleThreshold {
			out = append(out, passThrough(p))
			continue
		}
		key := p.BundleKey()
		if emitted[key] {
			continue
		}
		emitted[key] = true
		group := groups[key]
		if len(group) == 1 {
			out = append(out, passThrough(group[0]))
			continue
		}
		out = append(out, bundle(group))
	}
	return out
}

// dedupe drops prints whose identity key has already been seen, preserving
// input order, and rejects malformed records.
func dedupe(prints []models.TradePrint, logger *logrus.Logger) []models.TradePrint {
	seen := make(map[string]bool, len(prints))
	out := make([]models.TradePrint, 0, len(prints))
	for i := range prints {
		p := prints[i]
		if err := p.Validate(); err != nil {
			if logger != nil {
				logger.WithError(err).WithField("ticker", p.Ticker).
					Warn("Skipping malformed trade print")
			}
			continue
		}
		key := p.IdentityKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

func passThrough(p models.TradePrint) models.NormalizedTrade {
	return models.NormalizedTrade{
		ID:           uuid.NewString(),
		Ticker:       p.Ticker,
		Right:        p.Right,
		Strike:       p.Strike,
		Expiry:       p.Expiry,
		Size:         p.Size,
		Premium:      p.Premium,
		TotalPremium: p.TotalPremium,
		Spot:         p.Spot,
		ExecutedAt:   p.ExecutedAt,
		Tag:          p.Tag,
		Exchange:     p.Exchange,
		BundledCount: 1,
	}
}

// bundle merges a group of small prints: size and total premium sum,
// per-contract premium is the size-weighted average, timestamp is the
// earliest of the group.
func bundle(group []models.TradePrint) models.NormalizedTrade {
	first := group[0]
	totalSize := 0
	totalPremium := 0.0
	earliest := first.ExecutedAt
	for _, p := range group {
		totalSize += p.Size
		totalPremium += p.TotalPremium
		if p.ExecutedAt.Before(earliest) {
			earliest = p.ExecutedAt
		}
	}
	perContract := 0.0
	if totalSize > 0 {
		perContract = totalPremium / float64(totalSize)
	}
	return models.NormalizedTrade{
		ID:           uuid.NewString(),
		Ticker:       first.Ticker,
		Right:        first.Right,
		Strike:       first.Strike,
		Expiry:       first.Expiry,
		Size:         totalSize,
		Premium:      perContract,
		TotalPremium: totalPremium,
		Spot:         first.Spot,
		ExecutedAt:   earliest,
		Tag:          first.Tag,
		Exchange:     fmt.Sprintf("%d prints (bundled)", len(group)),
		BundledCount: len(group),
	}
}
