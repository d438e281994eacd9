package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AgingBucket defines one accounts-receivable aging band.
type AgingBucket struct {
	Label          string  `mapstructure:"label"`
	MinDays        int     `mapstructure:"minDays"`
	MaxDays        *int    `mapstructure:"maxDays"` // nil = open-ended
	WorklistWeight float64 `mapstructure:"worklistWeight"`
}

// MatcherWeights are the composite-score weights of the payment matcher.
type MatcherWeights struct {
	Amount     float64 `mapstructure:"amount"`
	DateRange  float64 `mapstructure:"dateRange"`
	Turnaround float64 `mapstructure:"turnaround"`
}

const (
	AgeBasisServiceEnd = "service_end"
	AgeBasisSubmission = "submission"
)

// BillingConfig is the hot-reloadable billing policy.
type BillingConfig struct {
	// AgeBasis selects the anchor for claim aging: AgeBasisServiceEnd or
	// AgeBasisSubmission.
	AgeBasis string `mapstructure:"ageBasis"`
	// RoundingToleranceCents is the slack allowed when deciding a claim is
	// fully paid. Defaults to one cent, the smallest currency unit.
	RoundingToleranceCents int64 `mapstructure:"roundingToleranceCents"`
	// AutoMatchThreshold is the minimum suggestion score auto-reconciliation
	// will apply without operator review.
	AutoMatchThreshold float64 `mapstructure:"autoMatchThreshold"`
	// MinMatchScore is the floor below which suggestions are omitted.
	MinMatchScore float64 `mapstructure:"minMatchScore"`
	// DefaultTurnaroundDays is used when a payer has no turnaround configured.
	DefaultTurnaroundDays int `mapstructure:"defaultTurnaroundDays"`
	// CurrentBucketWeight is the worklist weight of not-yet-submitted claims.
	CurrentBucketWeight float64 `mapstructure:"currentBucketWeight"`

	MatcherWeights MatcherWeights `mapstructure:"matcherWeights"`
	AgingBuckets   []AgingBucket  `mapstructure:"agingBuckets"`
	// DenialCodes are adjustment codes treated as denial signals when a
	// remittance line carries no payment.
	DenialCodes []string `mapstructure:"denialCodes"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		AgeBasis:               AgeBasisServiceEnd,
		RoundingToleranceCents: 1,
		AutoMatchThreshold:     0.85,
		MinMatchScore:          0.40,
		DefaultTurnaroundDays:  30,
		CurrentBucketWeight:    0.5,
		MatcherWeights: MatcherWeights{
			Amount:     0.55,
			DateRange:  0.25,
			Turnaround: 0.20,
		},
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30), WorklistWeight: 1},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60), WorklistWeight: 2},
			{Label: "61-90", MinDays: 61, MaxDays: intPtr(90), WorklistWeight: 3},
			{Label: "90+", MinDays: 91, MaxDays: nil, WorklistWeight: 5},
		},
		DenialCodes: []string{"CO-50", "CO-96", "CO-97", "PR-204"},
	}
}

func intPtr(v int) *int { return &v }

// BillingConfigHolder serves the current billing policy and hot-reloads it
// when the config file changes.
type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	log = log.Named("billing.config")
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/revcycle/config")
	v.AddConfigPath("/etc/revcycle")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVCYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("billing", map[string]any{})
	}

	cfg := defaults
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	applyBillingDefaults(&cfg, defaults)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated := defaults
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		applyBillingDefaults(&updated, defaults)
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed policy; used by tests.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func applyBillingDefaults(cfg *BillingConfig, defaults BillingConfig) {
	if strings.TrimSpace(cfg.AgeBasis) == "" {
		cfg.AgeBasis = defaults.AgeBasis
	}
	if cfg.RoundingToleranceCents <= 0 {
		cfg.RoundingToleranceCents = defaults.RoundingToleranceCents
	}
	if cfg.AutoMatchThreshold <= 0 {
		cfg.AutoMatchThreshold = defaults.AutoMatchThreshold
	}
	if cfg.MinMatchScore <= 0 {
		cfg.MinMatchScore = defaults.MinMatchScore
	}
	if cfg.DefaultTurnaroundDays <= 0 {
		cfg.DefaultTurnaroundDays = defaults.DefaultTurnaroundDays
	}
	if cfg.CurrentBucketWeight <= 0 {
		cfg.CurrentBucketWeight = defaults.CurrentBucketWeight
	}
	if cfg.MatcherWeights == (MatcherWeights{}) {
		cfg.MatcherWeights = defaults.MatcherWeights
	}
	if len(cfg.AgingBuckets) == 0 {
		cfg.AgingBuckets = defaults.AgingBuckets
	}
	if len(cfg.DenialCodes) == 0 {
		cfg.DenialCodes = defaults.DenialCodes
	}
}

func validateBillingConfig(cfg BillingConfig) error {
	if cfg.AgeBasis != AgeBasisServiceEnd && cfg.AgeBasis != AgeBasisSubmission {
		return errors.New("billing.ageBasis must be service_end or submission")
	}
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("billing.agingBuckets cannot be empty")
	}
	if cfg.AutoMatchThreshold > 1 || cfg.MinMatchScore > 1 {
		return errors.New("billing match thresholds must be <= 1")
	}
	return nil
}

// IsDenialCode reports whether the adjustment code is configured as a denial
// signal.
func (c BillingConfig) IsDenialCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, d := range c.DenialCodes {
		if strings.EqualFold(d, code) {
			return true
		}
	}
	return false
}

// BucketFor returns the aging bucket label and worklist weight for an age in
// days.
func (c BillingConfig) BucketFor(ageDays int) (string, float64) {
	for _, b := range c.AgingBuckets {
		if ageDays < b.MinDays {
			continue
		}
		if b.MaxDays == nil || ageDays <= *b.MaxDays {
			return b.Label, b.WorklistWeight
		}
	}
	if len(c.AgingBuckets) > 0 {
		last := c.AgingBuckets[len(c.AgingBuckets)-1]
		return last.Label, last.WorklistWeight
	}
	return "", 0
}
