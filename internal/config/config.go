// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Timing controls the pacing of the automation loop.
type Timing struct {
	ViewDuration         time.Duration
	ActionDelay          time.Duration
	NotificationInterval time.Duration
}

// Safety bounds the interaction volume.
type Safety struct {
	MaxDailyInteractions  int
	PauseAfterInteraction int
	PauseDuration         time.Duration
}

// Account holds follow-management thresholds. The follow features are
// driven by the same safety loop but tuned separately.
type Account struct {
	FollowThreshold   int
	UnfollowThreshold int
	MaxFollowsPerDay  int
}

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	TelegramChatID   int64
	AllowedUsers     []int64

	OpenAIAPIKey string
	OpenAIModel  string
	ReplyTone    string

	DatabasePath string
	LogLevel     string

	ApprovalTimeout time.Duration // zero waits indefinitely

	Timing  Timing
	Safety  Safety
	Account Account
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	chatID, err := envInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required")
	}

	allowedUsers, err := envInt64List("ALLOWED_USERS")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramBotToken: token,
		TelegramChatID:   chatID,
		AllowedUsers:     allowedUsers,
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      os.Getenv("OPENAI_MODEL"),
		ReplyTone:        envOr("REPLY_TONE", "Friendly"),
		DatabasePath:     envOr("DATABASE_PATH", "./data/bot.db"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
	}

	if cfg.ApprovalTimeout, err = envDuration("APPROVAL_TIMEOUT", 0); err != nil {
		return nil, err
	}

	if cfg.Timing.ViewDuration, err = envDuration("VIEW_DURATION", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timing.ActionDelay, err = envDuration("ACTION_DELAY", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.Timing.NotificationInterval, err = envDuration("NOTIFICATION_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Safety.MaxDailyInteractions, err = envInt("MAX_DAILY_INTERACTIONS", 100); err != nil {
		return nil, err
	}
	if cfg.Safety.PauseAfterInteraction, err = envInt("PAUSE_AFTER_INTERACTIONS", 10); err != nil {
		return nil, err
	}
	if cfg.Safety.PauseDuration, err = envDuration("PAUSE_DURATION", 15*time.Minute); err != nil {
		return nil, err
	}

	if cfg.Account.FollowThreshold, err = envInt("FOLLOW_THRESHOLD", 50); err != nil {
		return nil, err
	}
	if cfg.Account.UnfollowThreshold, err = envInt("UNFOLLOW_THRESHOLD", 20); err != nil {
		return nil, err
	}
	if cfg.Account.MaxFollowsPerDay, err = envInt("MAX_FOLLOWS_PER_DAY", 25); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envInt64List(key string) ([]int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID %q in %s: %w", s, key, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
