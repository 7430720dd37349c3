package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion is the config file version this binary expects.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Vector     Vector     `koanf:"vector"`
	Similarity Similarity `koanf:"similarity"`
	Scoring    Scoring    `koanf:"scoring"`
	Scheduler  Scheduler  `koanf:"scheduler"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Vector contains embedding index configuration.
type Vector struct {
	// Embedding dimension enforced by the index.
	Dimension int `koanf:"dimension"`
	// Path of the serialized index snapshot.
	IndexPath string `koanf:"index_path"`
}

// Similarity contains hybrid similarity scoring configuration.
type Similarity struct {
	// Weight of the visual (embedding) signal.
	VisualWeight float64 `koanf:"visual_weight"`
	// Weight of the EXIF metadata signal.
	ExifWeight float64 `koanf:"exif_weight"`
	// Weight of the location signal.
	LocationWeight float64 `koanf:"location_weight"`
	// Distance in kilometers at which location similarity has mostly decayed.
	LocationRadiusKM float64 `koanf:"location_radius_km"`
	// Minimum hybrid score for a candidate to be returned.
	Threshold float64 `koanf:"threshold"`
	// Pairwise score cache TTL in minutes.
	CacheTTLMinutes int `koanf:"cache_ttl_minutes"`
}

// Scoring contains the recommendation boost cascade weights.
// The cascade applies boosts in a fixed order; these weights tune each
// boost's influence without changing that order.
type Scoring struct {
	// Base score assigned when no collaborative-filtering signal exists.
	BaselineScore float64 `koanf:"baseline_score"`
	// Weight of the recent activity boost.
	RecentActivityWeight float64 `koanf:"recent_activity_weight"`
	// Multiplier applied to last-day activity relative to last-month activity.
	RecentDayFactor float64 `koanf:"recent_day_factor"`
	// Activity count at which the recent activity factor saturates.
	RecentActivityScale float64 `koanf:"recent_activity_scale"`
	// Weight of the lifetime activity boost.
	LifetimeActivityWeight float64 `koanf:"lifetime_activity_weight"`
	// Activity count at which the lifetime factor saturates.
	LifetimeActivityScale float64 `koanf:"lifetime_activity_scale"`
	// Weight of the mutual friend count boost.
	MutualFriendWeight float64 `koanf:"mutual_friend_weight"`
	// Mutual friend count at which the factor saturates.
	MutualFriendScale float64 `koanf:"mutual_friend_scale"`
	// Weight of the common following overlap boost.
	CommonFollowingWeight float64 `koanf:"common_following_weight"`
	// Weight of the public account boost.
	PublicAccountWeight float64 `koanf:"public_account_weight"`
	// Weight of the common follower overlap boost.
	CommonFollowerWeight float64 `koanf:"common_follower_weight"`
	// Overlap count at which follower/following factors saturate.
	OverlapScale float64 `koanf:"overlap_scale"`
	// Weight of the photo similarity boost.
	PhotoSimilarityWeight float64 `koanf:"photo_similarity_weight"`
	// Weight of the new account recency boost.
	NewAccountWeight float64 `koanf:"new_account_weight"`
	// Window in days during which an account counts as new.
	NewAccountWindowDays int `koanf:"new_account_window_days"`
	// Divisor normalizing composite scores into [0,1].
	NormalizationDivisor float64 `koanf:"normalization_divisor"`
	// Number of recommendations persisted per user.
	TopK int `koanf:"top_k"`
	// Number of recommendations shown per display read.
	DisplayCount int `koanf:"display_count"`
	// Rotation window in minutes for display reads.
	RotationWindowMinutes int `koanf:"rotation_window_minutes"`
}

// Scheduler contains background recompute configuration.
type Scheduler struct {
	// Recommendation freshness TTL in minutes.
	RecommendationTTLMinutes int `koanf:"recommendation_ttl_minutes"`
	// Maximum recompute attempts per task.
	MaxAttempts int `koanf:"max_attempts"`
	// Initial retry delay in milliseconds; doubles on each attempt.
	InitialBackoffMS int `koanf:"initial_backoff_ms"`
	// Queue poll interval in milliseconds.
	PollIntervalMS int `koanf:"poll_interval_ms"`
	// Tasks pulled from the queue per poll.
	BatchSize int `koanf:"batch_size"`
}

// LoadConfig loads the config file from the standard search paths.
// Returns the config along with the directory it was loaded from.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".lumapix",
		homeDir + "/.lumapix/config",
		"/etc/lumapix/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := path + "/config.toml"
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: config.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version, CurrentVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: config.toml", ErrConfigVersionMissing)
	}

	if current != expected {
		return fmt.Errorf("%w: config.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, current, expected)
	}

	return nil
}
