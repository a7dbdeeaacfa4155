package rpclient

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration — time.Duration, который в конфиге пишется строкой: "5s", "250ms".
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config — настройки клиента. Нулевые значения заменяются дефолтами (withDefaults).
type Config struct {
	// Адрес и токен нужны хосту для сборки транспорта; ядро их не разбирает.
	URL         string `json:"url" yaml:"url"`
	Token       string `json:"token" yaml:"token"`
	TokenHeader string `json:"token_header" yaml:"token_header"`
	TokenPrefix string `json:"token_prefix" yaml:"token_prefix"`
	Codec       string `json:"codec" yaml:"codec"` // proto | json | cbor

	ConnectAttempts   int      `json:"connect_attempts" yaml:"connect_attempts"`
	ConnectRetryDelay Duration `json:"connect_retry_delay" yaml:"connect_retry_delay"`

	AutoReconnect     bool     `json:"auto_reconnect" yaml:"auto_reconnect"`
	ReconnectAttempts int      `json:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelayMin Duration `json:"reconnect_delay_min" yaml:"reconnect_delay_min"`
	ReconnectDelayMax Duration `json:"reconnect_delay_max" yaml:"reconnect_delay_max"`

	// 0 — ждать ответа без ограничения (до разрыва/Cancel).
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout"`
	SweepInterval  Duration `json:"sweep_interval" yaml:"sweep_interval"`

	// SendRate <= 0 — без ограничения.
	SendRate  float64 `json:"send_rate" yaml:"send_rate"`
	SendBurst int     `json:"send_burst" yaml:"send_burst"`

	WriteTimeout Duration `json:"write_timeout" yaml:"write_timeout"`
	PingInterval Duration `json:"ping_interval" yaml:"ping_interval"`
	ReadLimit    int64    `json:"read_limit" yaml:"read_limit"`
}

const (
	defaultConnectAttempts   = 3
	defaultConnectRetryDelay = time.Second
	defaultReconnectAttempts = 3
	defaultReconnectDelayMin = time.Second
	defaultReconnectDelayMax = 30 * time.Second
	defaultSweepInterval     = 50 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = defaultConnectAttempts
	}
	if c.ConnectRetryDelay <= 0 {
		c.ConnectRetryDelay = Duration(defaultConnectRetryDelay)
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = defaultReconnectAttempts
	}
	if c.ReconnectDelayMin <= 0 {
		c.ReconnectDelayMin = Duration(defaultReconnectDelayMin)
	}
	if c.ReconnectDelayMax < c.ReconnectDelayMin {
		c.ReconnectDelayMax = Duration(max(defaultReconnectDelayMax, c.ReconnectDelayMin.D()))
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = Duration(defaultSweepInterval)
	}
	if c.SendRate > 0 && c.SendBurst <= 0 {
		c.SendBurst = 1
	}
	return c
}

// LoadConfig читает конфиг из JSON или YAML (по расширению .yaml/.yml).
func LoadConfig(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("rpclient: config %s: %w", path, err)
	}
	return cfg, nil
}
