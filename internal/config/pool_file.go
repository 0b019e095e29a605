package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/congo-pay/prizepool/internal/fixedpoint"
)

// Units is an 18-decimal amount written in YAML as a decimal, e.g. "0.1".
type Units struct {
	v *big.Int
}

// UnmarshalYAML parses a decimal scalar.
func (u *Units) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a decimal amount", node.Line)
	}
	v, err := fixedpoint.ParseUnits(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	u.v = v
	return nil
}

// Int returns the amount in base units, or nil when unset.
func (u Units) Int() *big.Int {
	if u.v == nil {
		return nil
	}
	return new(big.Int).Set(u.v)
}

// Set reports whether the amount was present in the file.
func (u Units) Set() bool { return u.v != nil }

// BalanceDrip configures a drip proportional to balances of Measure.
type BalanceDrip struct {
	Measure       string `yaml:"measure"`
	DripToken     string `yaml:"drip_token"`
	RatePerSecond Units  `yaml:"rate_per_second"`
}

// VolumeDrip configures a drip shared by deposit volume per period.
type VolumeDrip struct {
	Measure       string `yaml:"measure"`
	DripToken     string `yaml:"drip_token"`
	Referral      bool   `yaml:"referral"`
	PeriodSeconds int64  `yaml:"period_seconds"`
	DripAmount    Units  `yaml:"drip_amount"`
	StartTime     int64  `yaml:"start_time"`
	EndTime       int64  `yaml:"end_time"`
}

// PoolFile holds the pool parameters read from YAML.
type PoolFile struct {
	ID               string `yaml:"id"`
	UnderlyingToken  string `yaml:"underlying_token"`
	TicketToken      string `yaml:"ticket_token"`
	SponsorshipToken string `yaml:"sponsorship_token"`

	PrizePeriodSeconds int64  `yaml:"prize_period_seconds"`
	PrizePeriodStart   int64  `yaml:"prize_period_start"`
	Strategy           string `yaml:"strategy"`
	NumberOfWinners    int    `yaml:"number_of_winners"`

	CreditRateMantissa         Units `yaml:"credit_rate_mantissa"`
	CreditLimitMantissa        Units `yaml:"credit_limit_mantissa"`
	MaxExitFeeMantissa         Units `yaml:"max_exit_fee_mantissa"`
	MaxTimelockDurationSeconds int64 `yaml:"max_timelock_duration_seconds"`
	TimelockDurationSeconds    int64 `yaml:"timelock_duration_seconds"`
	ReserveRateMantissa        Units `yaml:"reserve_rate_mantissa"`
	LiquidityCap               Units `yaml:"liquidity_cap"`

	YieldSourceAccount string `yaml:"yield_source_account"`
	YieldRatePerSecond Units  `yaml:"yield_rate_per_second"`

	RNGRequestTimeoutSeconds int64  `yaml:"rng_request_timeout_seconds"`
	RNGFeeAccount            string `yaml:"rng_fee_account"`
	RNGFeeToken              string `yaml:"rng_fee_token"`
	RNGFeeAmount             Units  `yaml:"rng_fee_amount"`

	DripAccount  string        `yaml:"drip_account"`
	BalanceDrips []BalanceDrip `yaml:"balance_drips"`
	VolumeDrips  []VolumeDrip  `yaml:"volume_drips"`
}

// DefaultPoolFile is a weekly single-winner pool on dai with a 10% exit fee
// worn down over two weeks.
func DefaultPoolFile() PoolFile {
	return PoolFile{
		ID:                         "pool",
		UnderlyingToken:            "dai",
		TicketToken:                "ticket",
		SponsorshipToken:           "sponsorship",
		PrizePeriodSeconds:         7 * 24 * 3600,
		Strategy:                   "single",
		CreditRateMantissa:         Units{fixedpoint.MustParseUnits("0.0000000826719576")},
		CreditLimitMantissa:        Units{fixedpoint.MustParseUnits("0.1")},
		MaxExitFeeMantissa:         Units{fixedpoint.MustParseUnits("0.5")},
		MaxTimelockDurationSeconds: 14 * 24 * 3600,
		YieldSourceAccount:         "venue",
		RNGRequestTimeoutSeconds:   1800,
		RNGFeeAccount:              "rng",
		DripAccount:                "comptroller",
	}
}

// LoadPoolFile reads path over DefaultPoolFile. A missing file yields the
// defaults.
func LoadPoolFile(path string) (PoolFile, error) {
	f := DefaultPoolFile()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return PoolFile{}, fmt.Errorf("read pool config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return PoolFile{}, fmt.Errorf("parse pool config: %w", err)
		}
	}
	if err := f.Validate(); err != nil {
		return PoolFile{}, err
	}
	return f, nil
}

// Validate checks that required fields are set. Cross-field limits are
// checked again when the pool is built.
func (f PoolFile) Validate() error {
	switch {
	case f.ID == "":
		return fmt.Errorf("id is required")
	case f.UnderlyingToken == "" || f.TicketToken == "" || f.SponsorshipToken == "":
		return fmt.Errorf("underlying_token, ticket_token and sponsorship_token are required")
	case f.PrizePeriodSeconds <= 0:
		return fmt.Errorf("prize_period_seconds must be positive")
	case f.YieldSourceAccount == "":
		return fmt.Errorf("yield_source_account is required")
	case !f.MaxExitFeeMantissa.Set():
		return fmt.Errorf("max_exit_fee_mantissa is required")
	case f.CreditRateMantissa.Set() != f.CreditLimitMantissa.Set():
		return fmt.Errorf("credit_rate_mantissa and credit_limit_mantissa go together")
	}
	switch f.Strategy {
	case "single":
	case "multiple":
		if f.NumberOfWinners < 1 {
			return fmt.Errorf("number_of_winners must be at least 1")
		}
	default:
		return fmt.Errorf("strategy must be single or multiple, got %q", f.Strategy)
	}
	if f.RNGFeeAmount.Set() && f.RNGFeeToken == "" {
		return fmt.Errorf("rng_fee_token is required with rng_fee_amount")
	}
	if (len(f.BalanceDrips) > 0 || len(f.VolumeDrips) > 0) && f.DripAccount == "" {
		return fmt.Errorf("drip_account is required when drips are configured")
	}
	for i, d := range f.BalanceDrips {
		if d.Measure == "" || d.DripToken == "" || !d.RatePerSecond.Set() {
			return fmt.Errorf("balance_drips[%d]: measure, drip_token and rate_per_second are required", i)
		}
	}
	for i, d := range f.VolumeDrips {
		if d.Measure == "" || d.DripToken == "" || !d.DripAmount.Set() || d.PeriodSeconds <= 0 {
			return fmt.Errorf("volume_drips[%d]: measure, drip_token, drip_amount and period_seconds are required", i)
		}
	}
	return nil
}
