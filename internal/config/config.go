package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"helios.network/testnetapi/pkg/leveling"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	defaultJWTSecret = "helios-dev-secret"
)

// DatabaseConfig holds postgres settings
type DatabaseConfig struct {
	Host         string `mapstructure:"db_host"`
	Port         int    `mapstructure:"db_port"`
	User         string `mapstructure:"db_user"`
	Password     string `mapstructure:"db_pass"`
	Name         string `mapstructure:"db_name"`
	SSLMode      string `mapstructure:"db_sslmode"`
	MaxOpenConns int    `mapstructure:"db_max_open_conns"`
	MaxIdleConns int    `mapstructure:"db_max_idle_conns"`
}

// CloudinaryConfig holds upload storage settings
type CloudinaryConfig struct {
	URL          string `mapstructure:"cloudinary_url"`
	CloudName    string `mapstructure:"cloudinary_cloud_name"`
	APIKey       string `mapstructure:"cloudinary_api_key"`
	APISecret    string `mapstructure:"cloudinary_api_secret"`
	UploadFolder string `mapstructure:"cloudinary_upload_folder"`
}

// AuthConfig holds token and signature settings
type AuthConfig struct {
	JWTSecret             string        `mapstructure:"jwt_secret"`
	JWTTTL                time.Duration `mapstructure:"jwt_ttl"`
	AdminWallets          []string      `mapstructure:"admin_wallets"`
	SignatureVerification bool          `mapstructure:"signature_verification"`
	SignatureDomain       string        `mapstructure:"signature_domain"`
	ReferralCodes         []string      `mapstructure:"referral_codes"`
}

// FaucetToken is one entry of the faucet catalog.
type FaucetToken struct {
	Token         string  `mapstructure:"token" json:"token"`
	Chain         string  `mapstructure:"chain" json:"chain"`
	MaxAmount     float64 `mapstructure:"max_amount" json:"max_amount"`
	CooldownHours int     `mapstructure:"cooldown_hours" json:"cooldown_hours"`
}

// Cooldown returns the cooldown as a duration.
func (t FaucetToken) Cooldown() time.Duration {
	return time.Duration(t.CooldownHours) * time.Hour
}

// FaucetConfig holds the token catalog and reward rules
type FaucetConfig struct {
	Tokens         []FaucetToken      `mapstructure:"faucet_tokens"`
	Multipliers    map[string]float64 `mapstructure:"faucet_multipliers"`
	BaseReward     float64            `mapstructure:"faucet_base_reward"`
	RewardCap      float64            `mapstructure:"faucet_reward_cap"`
	PendingTimeout time.Duration      `mapstructure:"faucet_pending_timeout"`
	SweepInterval  time.Duration      `mapstructure:"faucet_sweep_interval"`
	LockTTL        time.Duration      `mapstructure:"faucet_lock_ttl"`
}

// XPConfig holds ledger amounts and level tables
type XPConfig struct {
	Levels             leveling.Table `mapstructure:"-"`
	ContributionLevels leveling.Table `mapstructure:"-"`
	LevelThresholds    []int          `mapstructure:"xp_levels"`
	DailyAmount        int            `mapstructure:"daily_xp_amount"`
	MaxTransfer        int            `mapstructure:"max_xp_transfer"`
	ActivityRewards    map[string]int `mapstructure:"activity_rewards"`
}

// OnboardingConfig holds quest rewards
type OnboardingConfig struct {
	StepRewards map[string]int `mapstructure:"onboarding_step_rewards"`
	RewardXP    int            `mapstructure:"onboarding_reward_xp"`
	RewardNFT   string         `mapstructure:"onboarding_reward_nft"`
}

type Config struct {
	AppEnv         string   `mapstructure:"app_env"`
	Port           int      `mapstructure:"port"`
	Debug          bool     `mapstructure:"debug"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RedisURL        string        `mapstructure:"redis_url"`
	MeiliSearchHost string        `mapstructure:"meilisearch_host"`
	MeiliMasterKey  string        `mapstructure:"meili_master_key"`
	SearchReindex   time.Duration `mapstructure:"search_reindex_interval"`
	EVMRPCURL       string        `mapstructure:"evm_rpc_url"`

	Database   DatabaseConfig   `mapstructure:",squash"`
	Cloudinary CloudinaryConfig `mapstructure:",squash"`
	Auth       AuthConfig       `mapstructure:",squash"`
	Faucet     FaucetConfig     `mapstructure:",squash"`
	XP         XPConfig         `mapstructure:",squash"`
	Onboarding OnboardingConfig `mapstructure:",squash"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// Load reads an optional .env at envPath and an optional yaml file at
// configFile, then overlays environment variables.
func Load(configFile, envPath string) (*Config, error) {
	v := configureViper(configFile, envPath)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configureViper(configFile, envPath string) *viper.Viper {
	if envPath == "" {
		envPath = ".env"
	}
	// Missing .env is fine, production injects real env vars.
	_ = godotenv.Load(envPath)

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvDevelopment)
	v.SetDefault("port", 8080)
	v.SetDefault("debug", false)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_pass", "")
	v.SetDefault("db_name", "helios_testnet")
	v.SetDefault("db_sslmode", "disable")
	v.SetDefault("db_max_open_conns", 25)
	v.SetDefault("db_max_idle_conns", 5)

	v.SetDefault("redis_url", "")
	v.SetDefault("meilisearch_host", "")
	v.SetDefault("meili_master_key", "")
	v.SetDefault("search_reindex_interval", "1h")
	v.SetDefault("evm_rpc_url", "")

	v.SetDefault("cloudinary_url", "")
	v.SetDefault("cloudinary_cloud_name", "")
	v.SetDefault("cloudinary_api_key", "")
	v.SetDefault("cloudinary_api_secret", "")
	v.SetDefault("cloudinary_upload_folder", "helios_testnet")

	v.SetDefault("jwt_secret", defaultJWTSecret)
	v.SetDefault("jwt_ttl", "24h")
	v.SetDefault("admin_wallets", []string{})
	v.SetDefault("signature_verification", false)
	v.SetDefault("signature_domain", "Helios Testnet")
	v.SetDefault("referral_codes", []string{"HELIOS2025"})

	v.SetDefault("faucet_base_reward", 10)
	v.SetDefault("faucet_reward_cap", 100)
	v.SetDefault("faucet_pending_timeout", "10m")
	v.SetDefault("faucet_sweep_interval", "1m")
	v.SetDefault("faucet_lock_ttl", "30s")

	v.SetDefault("xp_levels", []int{})
	v.SetDefault("daily_xp_amount", 50)
	v.SetDefault("max_xp_transfer", 100)

	v.SetDefault("onboarding_reward_xp", 500)
	v.SetDefault("onboarding_reward_nft", "onboarding-nft-token-id")
}

// DefaultFaucetTokens is the catalog used when none is configured.
func DefaultFaucetTokens() []FaucetToken {
	return []FaucetToken{
		{Token: "HLS", Chain: "helios-testnet", MaxAmount: 100, CooldownHours: 24},
		{Token: "ETH", Chain: "goerli", MaxAmount: 0.1, CooldownHours: 24},
	}
}

// DefaultFaucetMultipliers is the reward multiplier per token symbol.
func DefaultFaucetMultipliers() map[string]float64 {
	return map[string]float64{"HLS": 2, "ETH": 1.5}
}

// DefaultActivityRewards is the xp credited per logged activity.
func DefaultActivityRewards() map[string]int {
	return map[string]int{
		"tutorial_complete": 100,
		"contribution":      75,
		"referral":          50,
	}
}

// DefaultOnboardingRewards is the xp credited per completed onboarding step.
func DefaultOnboardingRewards() map[string]int {
	return map[string]int{
		"add_helios_network":  50,
		"claim_from_faucet":   100,
		"mint_early_bird_nft": 150,
	}
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.AllowedOrigins = trimAll(c.AllowedOrigins)
	c.Auth.AdminWallets = trimAll(c.Auth.AdminWallets)
	for i, w := range c.Auth.AdminWallets {
		c.Auth.AdminWallets[i] = strings.ToLower(w)
	}
	c.Auth.ReferralCodes = trimAll(c.Auth.ReferralCodes)

	if c.MeiliSearchHost != "" && !strings.HasPrefix(c.MeiliSearchHost, "http") {
		c.MeiliSearchHost = "http://" + c.MeiliSearchHost + ":7700"
	}

	if len(c.Faucet.Tokens) == 0 {
		c.Faucet.Tokens = DefaultFaucetTokens()
	}
	// viper lowercases map keys; symbols are matched uppercase.
	multipliers := DefaultFaucetMultipliers()
	for token, m := range c.Faucet.Multipliers {
		multipliers[strings.ToUpper(token)] = m
	}
	c.Faucet.Multipliers = multipliers

	c.XP.Levels = leveling.DefaultTable()
	if len(c.XP.LevelThresholds) > 0 {
		c.XP.Levels = make(leveling.Table, len(c.XP.LevelThresholds))
		for i, threshold := range c.XP.LevelThresholds {
			c.XP.Levels[i+1] = threshold
		}
	}
	c.XP.ContributionLevels = leveling.DefaultContributionTable()

	c.XP.ActivityRewards = mergeInts(DefaultActivityRewards(), c.XP.ActivityRewards)
	c.Onboarding.StepRewards = mergeInts(DefaultOnboardingRewards(), c.Onboarding.StepRewards)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if err := c.XP.Levels.Validate(); err != nil {
		return fmt.Errorf("xp levels: %w", err)
	}
	if len(c.Faucet.Tokens) == 0 {
		return errors.New("faucet catalog is empty")
	}
	seen := make(map[string]bool, len(c.Faucet.Tokens))
	for _, t := range c.Faucet.Tokens {
		if t.Token == "" || t.Chain == "" {
			return errors.New("faucet token entries need token and chain")
		}
		if t.MaxAmount <= 0 {
			return fmt.Errorf("faucet token %s/%s: max amount must be positive", t.Token, t.Chain)
		}
		if t.CooldownHours <= 0 {
			return fmt.Errorf("faucet token %s/%s: cooldown must be positive", t.Token, t.Chain)
		}
		key := t.Token + "/" + t.Chain
		if seen[key] {
			return fmt.Errorf("faucet token %s listed twice", key)
		}
		seen[key] = true
	}
	if c.Faucet.BaseReward <= 0 || c.Faucet.RewardCap <= 0 {
		return errors.New("faucet reward base and cap must be positive")
	}
	if c.XP.DailyAmount <= 0 {
		return errors.New("daily_xp_amount must be positive")
	}
	if c.XP.MaxTransfer <= 0 {
		return errors.New("max_xp_transfer must be positive")
	}
	if c.Onboarding.RewardXP < 0 {
		return errors.New("onboarding_reward_xp must not be negative")
	}
	for k, v := range c.XP.ActivityRewards {
		if v <= 0 {
			return fmt.Errorf("activity reward %s must be positive", k)
		}
	}
	if c.Auth.JWTTTL <= 0 {
		return errors.New("jwt_ttl must be positive")
	}
	if c.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

// FindToken looks up a catalog entry.
func (f FaucetConfig) FindToken(token, chain string) (FaucetToken, bool) {
	for _, t := range f.Tokens {
		if strings.EqualFold(t.Token, token) && t.Chain == chain {
			return t, true
		}
	}
	return FaucetToken{}, false
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		// A comma separated env var may arrive unsplit.
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func mergeInts(base, override map[string]int) map[string]int {
	for k, v := range override {
		base[k] = v
	}
	return base
}

// Getenv is a convenience for values read before Load (e.g. CONFIG_FILE).
func Getenv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
