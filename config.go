package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"podaudit/internal/sample"
)

type Config struct {
	ListenAddr      string `yaml:"listen_addr"`
	ReportOutputDir string `yaml:"report_output_dir"`

	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`
	SweepSchedule     string `yaml:"sweep_schedule"`

	SampleCap      int    `yaml:"sample_cap"`
	SampleSeed     int64  `yaml:"sample_seed"`
	ExcludedPrefix string `yaml:"excluded_prefix"`
	RequiredStatus int    `yaml:"required_status"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.SessionTTLMinutes, "SESSION_TTL_MINUTES")
	envOverride(&cfg.SweepSchedule, "SWEEP_SCHEDULE")
	envOverrideInt(&cfg.SampleCap, "SAMPLE_CAP")
	envOverrideInt64(&cfg.SampleSeed, "SAMPLE_SEED")
	envOverride(&cfg.ExcludedPrefix, "EXCLUDED_PREFIX")
	envOverrideInt(&cfg.RequiredStatus, "REQUIRED_STATUS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")

	// Defaults
	defaults := sample.DefaultOptions()
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.SessionTTLMinutes == 0 {
		cfg.SessionTTLMinutes = 240
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "*/30 * * * *"
	}
	if cfg.SampleCap == 0 {
		cfg.SampleCap = defaults.Cap
	}
	if cfg.SampleSeed == 0 {
		cfg.SampleSeed = defaults.Seed
	}
	if cfg.ExcludedPrefix == "" {
		cfg.ExcludedPrefix = defaults.ExcludedPrefix
	}
	if cfg.RequiredStatus == 0 {
		cfg.RequiredStatus = defaults.RequiredStatus
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate
	if cfg.SampleCap < 1 {
		log.Fatalf("invalid sample_cap '%d': must be >= 1", cfg.SampleCap)
	}
	if cfg.SessionTTLMinutes < 0 {
		log.Fatalf("invalid session_ttl_minutes '%d': must be >= 0", cfg.SessionTTLMinutes)
	}
	if (cfg.SlackBotToken == "") != (cfg.SlackChannelID == "") {
		log.Fatalf("slack_bot_token and slack_channel_id must be set together")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

// SampleOptions maps the configured overrides onto the sampler contract.
func (c Config) SampleOptions() sample.Options {
	opts := sample.DefaultOptions()
	opts.Cap = c.SampleCap
	opts.Seed = c.SampleSeed
	opts.ExcludedPrefix = c.ExcludedPrefix
	opts.RequiredStatus = c.RequiredStatus
	return opts
}

// SessionTTL returns the idle lifetime of a session; 0 disables expiry.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideInt64(field *int64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
