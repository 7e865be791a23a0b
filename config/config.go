// Package config loads the TOML configuration shared by the chat server and
// client.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Codec names, matching the frame package.
const (
	CodecText   = "text"
	CodecBinary = "binary"
)

// Roster cache backends.
const (
	RosterNone   = "none"
	RosterMemory = "memory"
	RosterRedis  = "redis"
)

// MaxNicknameLength bounds nicknames accepted by the server.
const MaxNicknameLength = 32

// Config is the whole configuration file. Servers read Server, Roster and
// Logging; the client reads Client.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Client  ClientConfig  `toml:"client"`
	Roster  RosterConfig  `toml:"roster"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig configures the listener and per-session limits.
type ServerConfig struct {
	Addr           string        `toml:"addr"`             // host:port to listen on
	Codec          string        `toml:"codec"`            // "text" or "binary"
	MaxFrameSize   int           `toml:"max_frame_size"`   // bytes buffered for one incoming frame
	ReadBufferSize int           `toml:"read_buffer_size"` // bytes per socket read
	WriteQueueSize int           `toml:"write_queue_size"` // outbound frames queued per session
	WriteTimeout   time.Duration `toml:"write_timeout"`
}

// ClientConfig configures cmd/chatclient.
type ClientConfig struct {
	Addr        string        `toml:"addr"`
	Nick        string        `toml:"nick"`
	Codec       string        `toml:"codec"`
	DialTimeout time.Duration `toml:"dial_timeout"`
}

// RosterConfig selects and configures the cache behind "active" replies.
type RosterConfig struct {
	Backend       string        `toml:"backend"` // "none", "memory" or "redis"
	TTL           time.Duration `toml:"ttl"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	KeyPrefix     string        `toml:"key_prefix"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
	Dir    string `toml:"dir"`    // optional directory for daily log files
}

// Load reads the TOML file at path over Defaults and validates the result.
//
// Parameters:
//   - path: Path of the configuration file
//
// Returns:
//   - The configuration, or an error if the file cannot be read, parsed or
//     fails validation
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Defaults()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse config %s: unknown key %q", path, undecoded[0].String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:7000",
			Codec:          CodecText,
			MaxFrameSize:   1 << 20,
			ReadBufferSize: 4096,
			WriteQueueSize: 256,
			WriteTimeout:   10 * time.Second,
		},
		Client: ClientConfig{
			Addr:        "127.0.0.1:7000",
			Codec:       CodecText,
			DialTimeout: 5 * time.Second,
		},
		Roster: RosterConfig{
			Backend:   RosterMemory,
			TTL:       30 * time.Second,
			RedisAddr: "127.0.0.1:6379",
			KeyPrefix: "hashchat",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports every invalid setting, joined into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if !validCodec(c.Server.Codec) {
		errs = append(errs, fmt.Errorf("server.codec %q is not %q or %q", c.Server.Codec, CodecText, CodecBinary))
	}
	if c.Server.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("server.max_frame_size must be positive"))
	}
	if c.Server.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("server.read_buffer_size must be positive"))
	}
	if c.Server.WriteQueueSize <= 0 {
		errs = append(errs, errors.New("server.write_queue_size must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}

	if !validCodec(c.Client.Codec) {
		errs = append(errs, fmt.Errorf("client.codec %q is not %q or %q", c.Client.Codec, CodecText, CodecBinary))
	}
	if len(c.Client.Nick) > MaxNicknameLength {
		errs = append(errs, fmt.Errorf("client.nick is longer than %d bytes", MaxNicknameLength))
	}

	switch c.Roster.Backend {
	case RosterNone, RosterMemory:
	case RosterRedis:
		if c.Roster.RedisAddr == "" {
			errs = append(errs, errors.New("roster.redis_addr is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("roster.backend %q is unknown", c.Roster.Backend))
	}
	if c.Roster.Backend != RosterNone && c.Roster.TTL <= 0 {
		errs = append(errs, errors.New("roster.ttl must be positive"))
	}

	return errors.Join(errs...)
}

func validCodec(name string) bool {
	return name == CodecText || name == CodecBinary
}
