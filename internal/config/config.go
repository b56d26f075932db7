package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfig marks a missing or unparsable configuration file.
var ErrConfig = errors.New("config error")

const (
	DefaultHost          = "https://lichess.org"
	DefaultBookPath      = "book.json"
	DefaultEngineName    = "BOT"
	defaultMaxTCSecs     = 600
	defaultMaxIncSecs    = 10
	defaultRegistryTTL   = 6 * 60 * 60
	defaultChatDelaySecs = 5

	TransportHTTP = "http"
	TransportWS   = "ws"

	NotationRaw = "raw"
	NotationSAN = "san"
)

// Command is the engine launch command. Accepts a string (split on whitespace)
// or a list of arguments.
type Command []string

func (c *Command) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = strings.Fields(s)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("command must be a string or a list of strings: %w", err)
	}
	*c = list
	return nil
}

func (c *Command) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = strings.Fields(node.Value)
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("command must be a string or a list of strings: %w", err)
	}
	*c = list
	return nil
}

// Config is an immutable snapshot. Never mutate a *Config obtained from a Store.
type Config struct {
	Command   Command        `json:"command" yaml:"command"`
	Options   map[string]any `json:"options" yaml:"options"`
	NodeCount int            `json:"node_count" yaml:"node_count"`

	MinTCSecs  int `json:"min_tc_secs" yaml:"min_tc_secs"`
	MaxTCSecs  int `json:"max_tc_secs" yaml:"max_tc_secs"`
	MinIncSecs int `json:"min_inc_secs" yaml:"min_inc_secs"`
	MaxIncSecs int `json:"max_inc_secs" yaml:"max_inc_secs"`

	Variants  []string `json:"variants" yaml:"variants"`
	Blacklist []string `json:"blacklist" yaml:"blacklist"`
	Whitelist []string `json:"whitelist" yaml:"whitelist"`
	AllowBots bool     `json:"allow_bots" yaml:"allow_bots"`
	Open      bool     `json:"open" yaml:"open"`

	Account string `json:"account" yaml:"account"`
	Token   string `json:"token" yaml:"token"`
	Host    string `json:"host" yaml:"host"`

	Book         string `json:"book" yaml:"book"`
	BookNotation string `json:"book_notation" yaml:"book_notation"`

	FeedTransport string `json:"feed_transport" yaml:"feed_transport"`
	WSURL         string `json:"ws_url" yaml:"ws_url"`

	RedisURL        string `json:"redis_url" yaml:"redis_url"`
	RegistryTTLSecs int    `json:"registry_ttl_secs" yaml:"registry_ttl_secs"`

	ChatDelaySecs int    `json:"chat_delay_secs" yaml:"chat_delay_secs"`
	EngineName    string `json:"engine_name" yaml:"engine_name"`
	// DryRun logs host actions instead of posting them.
	DryRun bool `json:"dry_run" yaml:"dry_run"`
	// MessagesDir holds YAML overrides for chat texts.
	MessagesDir string `json:"messages_dir" yaml:"messages_dir"`
}

// Defaults returns a configuration with every optional key set.
func Defaults() *Config {
	return &Config{
		Options:         map[string]any{},
		MaxTCSecs:       defaultMaxTCSecs,
		MaxIncSecs:      defaultMaxIncSecs,
		Variants:        []string{"standard"},
		Blacklist:       []string{},
		Whitelist:       []string{},
		AllowBots:       true,
		Open:            true,
		Host:            DefaultHost,
		Book:            DefaultBookPath,
		BookNotation:    NotationRaw,
		FeedTransport:   TransportHTTP,
		RegistryTTLSecs: defaultRegistryTTL,
		ChatDelaySecs:   defaultChatDelaySecs,
		EngineName:      DefaultEngineName,
	}
}

// Load reads a JSON or YAML (by extension) configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: couldn't load %s: %v", ErrConfig, path, err)
	}
	return Parse(raw, filepath.Ext(path))
}

// Parse decodes raw bytes; ext selects the format (".yaml"/".yml" → YAML, otherwise JSON).
func Parse(raw []byte, ext string) (*Config, error) {
	cfg := Defaults()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%w: illegal yaml: %v", ErrConfig, err)
		}
	default:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("%w: illegal json: %v", ErrConfig, err)
		}
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.Options == nil {
		c.Options = map[string]any{}
	}
	if c.Variants == nil {
		c.Variants = []string{"standard"}
	}
	c.Host = strings.TrimRight(strings.TrimSpace(c.Host), "/")
	if c.Host == "" {
		c.Host = DefaultHost
	}
	c.BookNotation = strings.ToLower(strings.TrimSpace(c.BookNotation))
	if c.BookNotation == "" {
		c.BookNotation = NotationRaw
	}
	c.FeedTransport = strings.ToLower(strings.TrimSpace(c.FeedTransport))
	if c.FeedTransport == "" {
		c.FeedTransport = TransportHTTP
	}
	if c.RegistryTTLSecs <= 0 {
		c.RegistryTTLSecs = defaultRegistryTTL
	}
	if c.ChatDelaySecs < 0 {
		c.ChatDelaySecs = 0
	}
	if strings.TrimSpace(c.EngineName) == "" {
		c.EngineName = DefaultEngineName
	}
}

func (c *Config) validate() error {
	if len(c.Command) == 0 {
		return fmt.Errorf("%w: command is required", ErrConfig)
	}
	if strings.TrimSpace(c.Token) == "" {
		return fmt.Errorf("%w: token is required", ErrConfig)
	}
	if strings.TrimSpace(c.Account) == "" {
		return fmt.Errorf("%w: account is required", ErrConfig)
	}
	switch c.BookNotation {
	case NotationRaw, NotationSAN:
	default:
		return fmt.Errorf("%w: unknown book_notation %q", ErrConfig, c.BookNotation)
	}
	switch c.FeedTransport {
	case TransportHTTP:
	case TransportWS:
		if strings.TrimSpace(c.WSURL) == "" {
			return fmt.Errorf("%w: ws_url is required for ws transport", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown feed_transport %q", ErrConfig, c.FeedTransport)
	}
	return nil
}

// HasNodeCount reports whether a fixed node-count search is configured.
func (c *Config) HasNodeCount() bool { return c.NodeCount > 0 }

func (c *Config) ChatDelay() time.Duration {
	return time.Duration(c.ChatDelaySecs) * time.Second
}

func (c *Config) RegistryTTL() time.Duration {
	return time.Duration(c.RegistryTTLSecs) * time.Second
}

// Redacted returns a copy safe for printing.
func (c *Config) Redacted() Config {
	out := *c
	if out.Token != "" {
		out.Token = "***"
	}
	return out
}
