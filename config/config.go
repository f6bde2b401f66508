package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Backend        string // "rest" or "caldav"
	APIBaseURL     string
	APIToken       string
	OwnerID        int64
	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVPath     string
	TelegramToken  string
	ChatID         int64
	DatabasePath   string
	Timezone       *time.Location
	ExactAlarms    bool
	ResyncInterval time.Duration
}

func Load() (*Config, error) {
	backend := os.Getenv("EVENT_BACKEND")
	if backend == "" {
		backend = "rest"
	}
	if backend != "rest" && backend != "caldav" {
		return nil, fmt.Errorf("EVENT_BACKEND must be rest or caldav, got %q", backend)
	}

	baseURL := os.Getenv("API_BASE_URL")
	if backend == "rest" && baseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	ownerID, err := strconv.ParseInt(os.Getenv("OWNER_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("OWNER_ID is required and must be a number")
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required and must be a number")
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/calmind.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "Europe/Moscow"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	exact := os.Getenv("EXACT_ALARMS") != "false"

	resync := 15 * time.Minute
	if v := os.Getenv("RESYNC_INTERVAL"); v != "" {
		resync, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RESYNC_INTERVAL: %w", err)
		}
	}

	return &Config{
		Backend:        backend,
		APIBaseURL:     baseURL,
		APIToken:       os.Getenv("API_TOKEN"),
		OwnerID:        ownerID,
		CalDAVURL:      os.Getenv("CALDAV_URL"),
		CalDAVUsername: os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword: os.Getenv("CALDAV_PASSWORD"),
		CalDAVPath:     os.Getenv("CALDAV_PATH"),
		TelegramToken:  token,
		ChatID:         chatID,
		DatabasePath:   dbPath,
		Timezone:       tz,
		ExactAlarms:    exact,
		ResyncInterval: resync,
	}, nil
}
