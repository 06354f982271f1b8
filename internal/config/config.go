// Package config loads engine configuration from file and environment
// via viper. Invalid policy values fail loading outright rather than
// being silently clamped.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/genesis-gov/genesis/internal/governance/model"
)

// TierPolicy is the review policy for one risk tier.
type TierPolicy struct {
	ReviewersRequired  int     `mapstructure:"reviewers_required"`
	ApprovalsRequired  int     `mapstructure:"approvals_required"`
	HumanFinalGate     bool    `mapstructure:"human_final_gate"`
	MinRegions         int     `mapstructure:"min_regions"`
	MinOrganizations   int     `mapstructure:"min_organizations"`
	ConstitutionalFlow bool    `mapstructure:"constitutional_flow"`
	MinModelFamilies   int     `mapstructure:"min_model_families"`
	MinMethodTypes     int     `mapstructure:"min_method_types"`
	MinReviewerTrust   float64 `mapstructure:"min_reviewer_trust"`
}

// LeavePolicy governs protected-leave adjudication. MaxDaysByCategory
// caps the duration of a granted leave per category; categories absent
// from the map are open-ended.
type LeavePolicy struct {
	MinQuorum           int            `mapstructure:"min_quorum"`
	MinApproveToGrant   int            `mapstructure:"min_approve_to_grant"`
	MinAdjudicatorTrust float64        `mapstructure:"min_adjudicator_trust"`
	MaxDaysByCategory   map[string]int `mapstructure:"max_days_by_category"`
}

// TrustPolicy holds trust score update weights and bounds.
type TrustPolicy struct {
	QualityWeight     float64 `mapstructure:"quality_weight"`
	ReliabilityWeight float64 `mapstructure:"reliability_weight"`
	VolumeWeight      float64 `mapstructure:"volume_weight"`
	EffortWeight      float64 `mapstructure:"effort_weight"`
	MaxDelta          float64 `mapstructure:"max_delta"`
	InitialScore      float64 `mapstructure:"initial_score"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
	RateLimitRPS   int      `mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	TokenTTLSecs   int      `mapstructure:"token_ttl_seconds"`
	AdminSecret    string   `mapstructure:"admin_secret"`
}

// StorageConfig selects the audit log backend and snapshot location.
// An empty DatabaseURL selects the JSONL file log.
type StorageConfig struct {
	DatabaseURL  string `mapstructure:"database_url"`
	EventLogPath string `mapstructure:"event_log_path"`
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// Config is the full engine configuration.
type Config struct {
	Server  ServerConfig                  `mapstructure:"server"`
	Storage StorageConfig                 `mapstructure:"storage"`
	Tiers   map[model.RiskTier]TierPolicy `mapstructure:"-"`
	Leave   LeavePolicy                   `mapstructure:"leave"`
	Trust   TrustPolicy                   `mapstructure:"trust"`
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("server.rate_limit_burst", 40)
	viper.SetDefault("server.jwt_secret", "")
	viper.SetDefault("server.token_ttl_seconds", 3600)
	viper.SetDefault("server.admin_secret", "")

	viper.SetDefault("storage.database_url", "")
	viper.SetDefault("storage.event_log_path", "data/events.jsonl")
	viper.SetDefault("storage.snapshot_path", "data/snapshot.json")

	viper.SetDefault("tiers.r0.reviewers_required", 0)
	viper.SetDefault("tiers.r0.approvals_required", 0)
	viper.SetDefault("tiers.r0.human_final_gate", false)

	viper.SetDefault("tiers.r1.reviewers_required", 1)
	viper.SetDefault("tiers.r1.approvals_required", 1)
	viper.SetDefault("tiers.r1.human_final_gate", false)
	viper.SetDefault("tiers.r1.min_reviewer_trust", 0.3)

	viper.SetDefault("tiers.r2.reviewers_required", 3)
	viper.SetDefault("tiers.r2.approvals_required", 2)
	viper.SetDefault("tiers.r2.human_final_gate", true)
	viper.SetDefault("tiers.r2.min_regions", 2)
	viper.SetDefault("tiers.r2.min_organizations", 2)
	viper.SetDefault("tiers.r2.min_reviewer_trust", 0.5)

	viper.SetDefault("tiers.r3.reviewers_required", 5)
	viper.SetDefault("tiers.r3.approvals_required", 4)
	viper.SetDefault("tiers.r3.human_final_gate", true)
	viper.SetDefault("tiers.r3.min_regions", 3)
	viper.SetDefault("tiers.r3.min_organizations", 3)
	viper.SetDefault("tiers.r3.constitutional_flow", true)
	viper.SetDefault("tiers.r3.min_model_families", 2)
	viper.SetDefault("tiers.r3.min_method_types", 2)
	viper.SetDefault("tiers.r3.min_reviewer_trust", 0.6)

	viper.SetDefault("leave.min_quorum", 3)
	viper.SetDefault("leave.min_approve_to_grant", 2)
	viper.SetDefault("leave.min_adjudicator_trust", 0.6)
	viper.SetDefault("leave.max_days_by_category", map[string]int{
		"pregnancy":  365,
		"child_care": 365,
	})

	viper.SetDefault("trust.quality_weight", 0.4)
	viper.SetDefault("trust.reliability_weight", 0.3)
	viper.SetDefault("trust.volume_weight", 0.15)
	viper.SetDefault("trust.effort_weight", 0.15)
	viper.SetDefault("trust.max_delta", 0.05)
	viper.SetDefault("trust.initial_score", 0.5)
}

// Load reads configuration from genesis.yaml (configs/ or cwd) with
// environment overrides, and validates the result.
func Load() (*Config, error) {
	viper.SetConfigName("genesis")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Tiers = make(map[model.RiskTier]TierPolicy, 4)
	for _, tier := range []model.RiskTier{model.TierR0, model.TierR1, model.TierR2, model.TierR3} {
		var tp TierPolicy
		key := "tiers." + strings.ToLower(string(tier))
		if err := viper.UnmarshalKey(key, &tp); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		cfg.Tiers[tier] = tp
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects incoherent policy settings.
func (c *Config) Validate() error {
	for tier, tp := range c.Tiers {
		if tp.ReviewersRequired < 0 {
			return fmt.Errorf("tier %s: reviewers_required must be >= 0", tier)
		}
		if tp.ApprovalsRequired > tp.ReviewersRequired {
			return fmt.Errorf("tier %s: approvals_required %d exceeds reviewers_required %d",
				tier, tp.ApprovalsRequired, tp.ReviewersRequired)
		}
		if tp.MinReviewerTrust < 0 || tp.MinReviewerTrust > 1 {
			return fmt.Errorf("tier %s: min_reviewer_trust must be in [0,1], got %g", tier, tp.MinReviewerTrust)
		}
	}
	if c.Leave.MinQuorum < 1 {
		return fmt.Errorf("leave.min_quorum must be >= 1, got %d", c.Leave.MinQuorum)
	}
	if c.Leave.MinApproveToGrant > c.Leave.MinQuorum {
		return fmt.Errorf("leave.min_approve_to_grant %d exceeds min_quorum %d",
			c.Leave.MinApproveToGrant, c.Leave.MinQuorum)
	}
	if c.Leave.MinAdjudicatorTrust < 0 || c.Leave.MinAdjudicatorTrust > 1 {
		return fmt.Errorf("leave.min_adjudicator_trust must be in [0,1], got %g", c.Leave.MinAdjudicatorTrust)
	}
	for cat, days := range c.Leave.MaxDaysByCategory {
		if days < 1 {
			return fmt.Errorf("leave.max_days_by_category.%s must be >= 1, got %d", cat, days)
		}
	}
	sum := c.Trust.QualityWeight + c.Trust.ReliabilityWeight + c.Trust.VolumeWeight + c.Trust.EffortWeight
	if sum <= 0 {
		return fmt.Errorf("trust weights must sum to a positive value, got %g", sum)
	}
	if c.Trust.MaxDelta <= 0 || c.Trust.MaxDelta > 1 {
		return fmt.Errorf("trust.max_delta must be in (0,1], got %g", c.Trust.MaxDelta)
	}
	if c.Trust.InitialScore < 0 || c.Trust.InitialScore > 1 {
		return fmt.Errorf("trust.initial_score must be in [0,1], got %g", c.Trust.InitialScore)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("server.rate_limit_rps must be positive, got %d", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("server.rate_limit_burst must not be negative, got %d", c.Server.RateLimitBurst)
	}
	return nil
}

// PolicyFor returns the tier policy, defaulting to the strictest tier for
// unknown inputs.
func (c *Config) PolicyFor(tier model.RiskTier) TierPolicy {
	if tp, ok := c.Tiers[tier]; ok {
		return tp
	}
	return c.Tiers[model.TierR3]
}
