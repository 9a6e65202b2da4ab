// Package instrument handles exchange ticker parsing, validation, and
// derivation of market-maker parameters from projected activity.
package instrument

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Supported instrument kinds.
const (
	KindPrediction = "PRED" // binary prediction market (LMSR)
	KindGood       = "GOOD" // auctionable good / order-book instrument
)

var validKinds = map[string]bool{
	KindPrediction: true,
	KindGood:       true,
}

// tickerRegex matches: AX-{kind}-{marketID}-{YYYYMMDD}
// Example: AX-PRED-12-20260901
var tickerRegex = regexp.MustCompile(
	`^AX-([A-Z]+)-(\d+)-(\d{8})$`,
)

var (
	ErrInvalidTicker = errors.New("instrument: invalid ticker format")
	ErrInvalidKind   = errors.New("instrument: unsupported instrument kind")
)

// Instrument represents a parsed exchange ticker.
type Instrument struct {
	Ticker     string    `json:"ticker"`
	Kind       string    `json:"kind"`
	MarketID   int64     `json:"market_id"`
	ExpiryDate time.Time `json:"expiry_date"`
}

// Ticker formats the canonical ticker for a kind, market id, and expiry.
func Ticker(kind string, marketID int64, expiry time.Time) string {
	return fmt.Sprintf("AX-%s-%d-%s", kind, marketID, expiry.Format("20060102"))
}

// ParseTicker parses and validates a ticker string.
// Format: AX-{kind}-{marketID}-{YYYYMMDD}
func ParseTicker(ticker string) (*Instrument, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected AX-{kind}-{id}-{YYYYMMDD})",
			ErrInvalidTicker, ticker)
	}

	kind := matches[1]
	idStr := matches[2]
	dateStr := matches[3]

	if !validKinds[kind] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	marketID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid market id %s", ErrInvalidTicker, idStr)
	}

	expiry, err := time.Parse("20060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidTicker, dateStr)
	}

	return &Instrument{
		Ticker:     ticker,
		Kind:       kind,
		MarketID:   marketID,
		ExpiryDate: expiry,
	}, nil
}

// ActivityProfile holds projected trade-volume percentiles for a market,
// estimated from comparable past sessions.
type ActivityProfile struct {
	Percentile10 decimal.Decimal `json:"percentile_10"`
	Percentile25 decimal.Decimal `json:"percentile_25"`
	Percentile50 decimal.Decimal `json:"percentile_50"` // median
	Percentile75 decimal.Decimal `json:"percentile_75"`
	Percentile90 decimal.Decimal `json:"percentile_90"`
}

// DeriveLiquidity computes the LMSR b parameter from an activity profile.
// Uses the interquartile range (IQR = P75 - P25) relative to the median as
// a measure of volume uncertainty, scaled by baseVolume: uncertain markets
// get deeper books so early trades do not whipsaw the price.
func DeriveLiquidity(profile ActivityProfile, baseVolume decimal.Decimal) (decimal.Decimal, error) {
	iqr := profile.Percentile75.Sub(profile.Percentile25)
	median := profile.Percentile50
	minB := decimal.NewFromInt(10)

	if median.LessThanOrEqual(decimal.Zero) {
		// For idle projections (median = 0), use absolute IQR.
		if iqr.LessThanOrEqual(decimal.Zero) {
			return minB, nil
		}
		b := baseVolume.Mul(iqr)
		if b.LessThan(minB) {
			return minB, nil
		}
		return b.Round(2), nil
	}

	// Coefficient of variation: IQR / median.
	cv := iqr.Div(median)
	b := baseVolume.Mul(cv)

	// Enforce minimum b to prevent degenerate markets.
	if b.LessThan(minB) {
		return minB, nil
	}
	return b.Round(2), nil
}

// DeriveAlpha computes the liquidity-sensitivity factor for a
// volume-scaled market maker from the expected number of active traders:
// alpha = 1 / (n * ln n), floored at 0.01. More traders mean each trade
// should move the effective depth less.
func DeriveAlpha(expectedTraders int64) decimal.Decimal {
	minAlpha := decimal.NewFromFloat(0.01)
	if expectedTraders < 3 {
		return decimal.NewFromFloat(0.25)
	}
	n := float64(expectedTraders)
	alpha := decimal.NewFromFloat(1 / (n * math.Log(n))).Round(4)
	if alpha.LessThan(minAlpha) {
		return minAlpha
	}
	return alpha
}
