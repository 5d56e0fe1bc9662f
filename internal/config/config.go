package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/politrack/sentinel/internal/models"
)

// Config holds all configuration for the pipeline
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Collection scheduling
	CollectionInterval time.Duration // periodic sweep cadence
	DetectionInterval  time.Duration // campaign detector cadence
	WorkerCount        int
	MaxPages           int
	MaxResultsPerPage  int
	TaskRetryLimit     int

	// Persistence
	DatabaseURL   string
	MigrationsDir string
	RedisURL      string

	// Rate limiting: per-platform window accounting, enforcement is a toggle
	RateLimitEnforced bool
	RateLimits        map[models.Platform]RateLimit

	// Platform credentials
	TwitterBearerToken   string
	FacebookAccessToken  string
	InstagramAccessToken string
	YouTubeAPIKey        string
	RedditClientID       string
	RedditClientSecret   string

	// Sentiment classifier (external service; heuristic fallback when empty)
	ClassifierURL    string
	ClassifierAPIKey string

	// Campaign detection
	CampaignWindow       time.Duration
	CampaignMinPosts     int
	CampaignMinVelocity  float64 // posts per hour
	EscalationVelocity   float64
	CampaignQuietTimeout time.Duration

	// Raw snapshot archive (Azure Blob, optional)
	StorageAccount   string
	StorageContainer string

	// Notifications
	WebhookURL         string
	NotificationEmails []string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string

	// Tracked clusters, seeded from a JSON file
	ClustersFile string
}

// RateLimit bounds outbound API calls for one platform
type RateLimit struct {
	Window      time.Duration `json:"window_seconds"`
	MaxRequests int           `json:"max_requests"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		CollectionInterval: getDurationEnv("COLLECTION_INTERVAL", 15*time.Minute),
		DetectionInterval:  getDurationEnv("DETECTION_INTERVAL", 30*time.Minute),
		WorkerCount:        getIntEnv("WORKER_COUNT", 4),
		MaxPages:           getIntEnv("MAX_PAGES", 5),
		MaxResultsPerPage:  getIntEnv("MAX_RESULTS_PER_PAGE", 100),
		TaskRetryLimit:     getIntEnv("TASK_RETRY_LIMIT", 2),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		RedisURL:      getEnv("REDIS_URL", ""),

		RateLimitEnforced: getBoolEnv("RATE_LIMIT_ENFORCED", false),
		RateLimits: map[models.Platform]RateLimit{
			models.PlatformTwitter:   {Window: getDurationEnv("TWITTER_RATE_WINDOW", 15 * time.Minute), MaxRequests: getIntEnv("TWITTER_RATE_MAX", 100)},
			models.PlatformFacebook:  {Window: getDurationEnv("FACEBOOK_RATE_WINDOW", 15 * time.Minute), MaxRequests: getIntEnv("FACEBOOK_RATE_MAX", 50)},
			models.PlatformInstagram: {Window: getDurationEnv("INSTAGRAM_RATE_WINDOW", 15 * time.Minute), MaxRequests: getIntEnv("INSTAGRAM_RATE_MAX", 50)},
			models.PlatformYouTube:   {Window: getDurationEnv("YOUTUBE_RATE_WINDOW", 15 * time.Minute), MaxRequests: getIntEnv("YOUTUBE_RATE_MAX", 80)},
			models.PlatformReddit:    {Window: getDurationEnv("REDDIT_RATE_WINDOW", 15 * time.Minute), MaxRequests: getIntEnv("REDDIT_RATE_MAX", 60)},
		},

		TwitterBearerToken:   getEnv("TWITTER_BEARER_TOKEN", ""),
		FacebookAccessToken:  getEnv("FACEBOOK_ACCESS_TOKEN", ""),
		InstagramAccessToken: getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		YouTubeAPIKey:        getEnv("YOUTUBE_API_KEY", ""),
		RedditClientID:       getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret:   getEnv("REDDIT_CLIENT_SECRET", ""),

		ClassifierURL:    getEnv("CLASSIFIER_URL", ""),
		ClassifierAPIKey: getEnv("CLASSIFIER_API_KEY", ""),

		CampaignWindow:       getDurationEnv("CAMPAIGN_WINDOW", 24*time.Hour),
		CampaignMinPosts:     getIntEnv("CAMPAIGN_MIN_POSTS", 5),
		CampaignMinVelocity:  getFloatEnv("CAMPAIGN_MIN_VELOCITY", 1.0),
		EscalationVelocity:   getFloatEnv("CAMPAIGN_ESCALATION_VELOCITY", 10.0),
		CampaignQuietTimeout: getDurationEnv("CAMPAIGN_QUIET_TIMEOUT", 48*time.Hour),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "raw-posts"),

		WebhookURL:         getEnv("WEBHOOK_URL", ""),
		NotificationEmails: getSliceEnv("NOTIFICATION_EMAILS", nil),
		SMTPHost:           getEnv("SMTP_HOST", ""),
		SMTPPort:           getIntEnv("SMTP_PORT", 587),
		SMTPUsername:       getEnv("SMTP_USERNAME", ""),
		SMTPPassword:       getEnv("SMTP_PASSWORD", ""),

		ClustersFile: getEnv("CLUSTERS_FILE", "clusters.json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.WorkerCount <= 0 {
		return fmt.Errorf("WORKER_COUNT must be positive")
	}

	if c.CollectionInterval < time.Minute {
		return fmt.Errorf("COLLECTION_INTERVAL must be at least one minute")
	}

	for platform, rl := range c.RateLimits {
		if rl.MaxRequests <= 0 || rl.Window <= 0 {
			return fmt.Errorf("invalid rate limit for %s", platform)
		}
	}

	if len(c.NotificationEmails) > 0 {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAILS is set")
		}
	}

	return nil
}

// LoadClusters reads the tracked cluster definitions from the configured JSON file
func (c *Config) LoadClusters() ([]models.Cluster, error) {
	data, err := os.ReadFile(c.ClustersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read clusters file %s: %w", c.ClustersFile, err)
	}

	var clusters []models.Cluster
	if err := json.Unmarshal(data, &clusters); err != nil {
		return nil, fmt.Errorf("failed to parse clusters file: %w", err)
	}

	for i, cluster := range clusters {
		if cluster.Name == "" {
			return nil, fmt.Errorf("cluster %d has no name", i)
		}
		if len(cluster.Keywords) == 0 {
			return nil, fmt.Errorf("cluster %q has no keywords", cluster.Name)
		}
	}

	return clusters, nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
