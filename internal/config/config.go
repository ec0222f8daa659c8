package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	WeChat        struct {
		LoginURL     string `json:"login_url"`
		BaseURL      string `json:"base_url"`
		PushURL      string `json:"push_url"`
		FileURL      string `json:"file_url"`
		UserAgent    string `json:"user_agent"`
		ExtSpam      string `json:"ext_spam"`
		RetryLimit   int    `json:"retry_limit"`
		RetryDelay   string `json:"retry_delay"`
		PollInterval string `json:"poll_interval"`
		SyncInterval string `json:"sync_interval"`
	} `json:"wechat"`
	Telegram struct {
		Token  string `json:"token"`
		ChatID int64  `json:"chat_id"`
	} `json:"telegram"`
	State struct {
		CheckpointSchedule string `json:"checkpoint_schedule"`
		RefreshSchedule    string `json:"refresh_schedule"`
	} `json:"state"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".wechatgram"),
		MaxConcurrent: 4,
	}
	cfg.LogLevel = "info"
	cfg.WeChat.LoginURL = "https://login.wx2.qq.com"
	cfg.WeChat.BaseURL = "https://wx2.qq.com/cgi-bin/mmwebwx-bin"
	cfg.WeChat.PushURL = "https://webpush.wx2.qq.com/cgi-bin/mmwebwx-bin"
	cfg.WeChat.FileURL = "https://file.wx2.qq.com/cgi-bin/mmwebwx-bin"
	cfg.WeChat.RetryLimit = 10
	cfg.WeChat.RetryDelay = "10s"
	cfg.WeChat.PollInterval = "1s"
	cfg.WeChat.SyncInterval = "5s"
	cfg.State.CheckpointSchedule = "@every 10m"
	cfg.HTTP.Listen = "127.0.0.1:8484"
	return cfg
}

// Load reads the config at path, allowing comments and trailing commas.
// A missing file is created with defaults. Environment variables win over
// the file.
func Load(path string) (*Config, error) {
	cfg := defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	if dataDir := os.Getenv("WECHATGRAM_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	return cfg, nil
}

// Save writes cfg to path atomically, creating the directory.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Durations holds the parsed wechat timings.
type Durations struct {
	RetryDelay   time.Duration
	PollInterval time.Duration
	SyncInterval time.Duration
}

// Durations parses the wechat timing strings. Empty values stay zero so
// the client applies its own defaults.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	for _, f := range []struct {
		key string
		raw string
		out *time.Duration
	}{
		{"wechat.retry_delay", c.WeChat.RetryDelay, &d.RetryDelay},
		{"wechat.poll_interval", c.WeChat.PollInterval, &d.PollInterval},
		{"wechat.sync_interval", c.WeChat.SyncInterval, &d.SyncInterval},
	} {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return Durations{}, fmt.Errorf("%s: %w", f.key, err)
		}
		if v < 0 {
			return Durations{}, fmt.Errorf("%s: must not be negative", f.key)
		}
		*f.out = v
	}
	return d, nil
}

// ToMap converts cfg to the generic map its JSON encoding produces.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every key of cfg flattened, optionally with secrets
// masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// readRaw returns the file at path flattened, keeping keys the Config
// struct does not know about.
func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Flatten(m), nil
}

// GetValue returns the value stored under a dot-separated key. A missing
// file is created with defaults first.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	flat, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores raw under a dot-separated key. raw is parsed as JSON
// when it is valid JSON (numbers, booleans) and kept as a string otherwise.
// The file must exist.
func SetValue(path, key, raw string) error {
	flat, err := readRaw(path)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	flat[key] = v
	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}
