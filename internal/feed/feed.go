// Package feed parses inbound trade-print batches from CSV or JSON files.
// Malformed rows are skipped with a logged warning; a bad record never
// aborts the batch.
package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"

	"github.com/flowgrade/flowgrade/internal/models"
)

// Format selects the feed file encoding.
type Format string

const (
	// FormatCSV is a comma-separated feed with a header row
	FormatCSV Format = "csv"
	// FormatJSON is a JSON array of print records
	FormatJSON Format = "json"
)

// Valid returns true if the Format is one of the defined constants
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatJSON
}

// record is the wire shape of one print in either encoding.
type record struct {
	Ticker       string  `csv:"ticker" json:"ticker"`
	Right        string  `csv:"right" json:"right"`
	Strike       float64 `csv:"strike" json:"strike"`
	Expiry       string  `csv:"expiry" json:"expiry"`
	Size         int     `csv:"size" json:"size"`
	Premium      float64 `csv:"premium" json:"premium"`
	TotalPremium float64 `csv:"total_premium" json:"total_premium"`
	Spot         float64 `csv:"spot" json:"spot"`
	ExecutedAt   string  `csv:"executed_at" json:"executed_at"`
	Tag          string  `csv:"tag" json:"tag"`
	Exchange     string  `csv:"exchange" json:"exchange"`
}

func (r record) toPrint() (models.TradePrint, error) {
	expiry, err := time.Parse("2006-01-02", r.Expiry)
	if err != nil {
		return models.TradePrint{}, fmt.Errorf("parsing expiry %q: %w", r.Expiry, err)
	}
	executedAt, err := time.Parse(time.RFC3339, r.ExecutedAt)
	if err != nil {
		return models.TradePrint{}, fmt.Errorf("parsing executed_at %q: %w", r.ExecutedAt, err)
	}
	p := models.TradePrint{
		Ticker:       strings.ToUpper(strings.TrimSpace(r.Ticker)),
		Right:        models.Right(strings.ToLower(r.Right)),
		Strike:       r.Strike,
		Expiry:       expiry,
		Size:         r.Size,
		Premium:      r.Premium,
		TotalPremium: r.TotalPremium,
		Spot:         r.Spot,
		ExecutedAt:   executedAt,
		Tag:          models.TradeTag(r.Tag),
		Exchange:     r.Exchange,
	}
	if err := p.Validate(); err != nil {
		return models.TradePrint{}, err
	}
	return p, nil
}

// ReadFile parses a feed file into trade prints.
func ReadFile(path string, format Format, logger *logrus.Logger) ([]models.TradePrint, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("reading feed file: %w", err)
	}

	var records []record
	switch format {
	case FormatCSV:
		if err := gocsv.UnmarshalBytes(data, &records); err != nil {
			return nil, fmt.Errorf("parsing csv feed: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing json feed: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown feed format %q", format)
	}

	return convert(records, logger), nil
}

func convert(records []record, logger *logrus.Logger) []models.TradePrint {
	prints := make([]models.TradePrint, 0, len(records))
	for i, r := range records {
		p, err := r.toPrint()
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("row", i+1).
					Warn("Skipping malformed feed record")
			}
			continue
		}
		prints = append(prints, p)
	}
	return prints
}
