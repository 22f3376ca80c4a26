package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rescp17/streamlite/internal/util"
)

const EnvPrefix = "STREAMLITE"

type Config struct {
	SignalingURL     string        `mapstructure:"signaling_url"`
	RoomURL          string        `mapstructure:"room_url"`
	SiteURL          string        `mapstructure:"site_url"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	StatsInterval    time.Duration `mapstructure:"stats_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFile          string        `mapstructure:"log_file"`
	PositionFile     string        `mapstructure:"position_file"`
	RecordDir        string        `mapstructure:"record_dir"`
	DiscoveryService string        `mapstructure:"discovery_service"`
	VideoFile        string        `mapstructure:"video_file"`
	AudioFile        string        `mapstructure:"audio_file"`
	Loop             bool          `mapstructure:"loop"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"signaling-url": "signaling_url",
	"room-url":      "room_url",
	"site-url":      "site_url",
	"ice-server":    "ice_servers",
	"log-level":     "log_level",
	"log-file":      "log_file",
	"record-dir":    "record_dir",
	"video":         "video_file",
	"audio":         "audio_file",
	"loop":          "loop",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("signaling_url", "https://hwosecurity.org:5443/webrtc")
	v.SetDefault("room_url", "")
	v.SetDefault("site_url", "https://hwosecurity.org")
	v.SetDefault("ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
	})
	v.SetDefault("stats_interval", "1s")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "debug.log")
	v.SetDefault("position_file", "positions.yaml")
	v.SetDefault("record_dir", "")
	v.SetDefault("discovery_service", "_streamlite._tcp")
	v.SetDefault("loop", true)
}

// Load reads defaults, then a YAML file, then STREAMLITE_* environment
// variables, then any flags that were set. An explicit path must exist;
// otherwise config/config.<CONFIG_ENV>.yaml is optional.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName := fmt.Sprintf("config/config.%s.yaml", env)
		v.SetConfigFile(fileName)
		if err := v.ReadInConfig(); err != nil {
			log.Debug().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		} else {
			log.Debug().Str("module", "config").Str("file", fileName).Msg("loaded config")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// Environment values arrive comma-separated, possibly with spaces.
	cfg.ICEServers = splitList(strings.Join(cfg.ICEServers, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if err := checkURL("signaling_url", c.SignalingURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if err := checkURL("site_url", c.SiteURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}
	if c.RoomURL != "" {
		if err := checkURL("room_url", c.RoomURL, "ws", "wss"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("stats_interval must be positive, got %s", c.StatsInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid log_level %q", c.LogLevel))
	}
	if c.RecordDir != "" {
		exists, isDir, err := util.CheckDirectory(c.RecordDir)
		if err != nil {
			errs = append(errs, fmt.Errorf("record_dir: %w", err))
		} else if exists && !isDir {
			errs = append(errs, fmt.Errorf("record_dir %s is not a directory", c.RecordDir))
		}
	}
	return errors.Join(errs...)
}

func checkURL(key, raw string, schemes ...string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s must be a %s URL, got %q", key, strings.Join(schemes, "/"), raw)
}
