package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every section the binaries need.
type Config struct {
	API    APIConfig
	Engine EngineConfig
	Server ServerConfig
	AI     AIConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	api, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{API: api, Engine: engine, Server: server, AI: ai}, nil
}

// APIConfig locates the upstream NPC API.
type APIConfig struct {
	BaseURL string
	UserID  string
	Timeout time.Duration
}

func loadAPIConfig() (APIConfig, error) {
	timeout := 30 * time.Second
	if override, err := parseOptionalIntEnv("NPC_API_TIMEOUT_SECONDS"); err != nil {
		return APIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return APIConfig{}, fmt.Errorf("NPC_API_TIMEOUT_SECONDS must be positive, got %d", *override)
		}
		timeout = time.Duration(*override) * time.Second
	}

	return APIConfig{
		BaseURL: getEnvOrDefault("NPC_API_BASE_URL", "http://localhost:10010"),
		UserID:  strings.TrimSpace(os.Getenv("NPC_USER_ID")),
		Timeout: timeout,
	}, nil
}

// EngineConfig carries the reconciliation engine knobs. Every value has a
// default matching the upstream's observed behavior; tests shrink the
// durations to keep runs fast.
type EngineConfig struct {
	// MarkerDelimiter separates a speaker display name from the reply body
	// in the first fragment of a bot's turn.
	MarkerDelimiter string
	// MarkerMaxLen bounds how long a prefix may be before the delimiter to
	// still count as a speaker marker. Guards against ordinary prose that
	// happens to contain the delimiter.
	MarkerMaxLen int
	// StallTimeout force-completes a turn when no event arrives for this
	// long while streaming.
	StallTimeout time.Duration
	// DedupWindow suppresses identical user turns closer together than
	// this. Deliberate repeats outside the window pass through.
	DedupWindow time.Duration
}

func loadEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		MarkerDelimiter: getEnvOrDefault("NPC_MARKER_DELIMITER", "|"),
		MarkerMaxLen:    24,
		StallTimeout:    30 * time.Second,
		DedupWindow:     30 * time.Second,
	}

	if override, err := parseOptionalIntEnv("NPC_MARKER_MAX_LEN"); err != nil {
		return EngineConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return EngineConfig{}, fmt.Errorf("NPC_MARKER_MAX_LEN must be positive, got %d", *override)
		}
		cfg.MarkerMaxLen = *override
	}

	if override, err := parseOptionalIntEnv("NPC_STALL_TIMEOUT_SECONDS"); err != nil {
		return EngineConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return EngineConfig{}, fmt.Errorf("NPC_STALL_TIMEOUT_SECONDS must be positive, got %d", *override)
		}
		cfg.StallTimeout = time.Duration(*override) * time.Second
	}

	if override, err := parseOptionalIntEnv("NPC_DEDUP_WINDOW_SECONDS"); err != nil {
		return EngineConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return EngineConfig{}, fmt.Errorf("NPC_DEDUP_WINDOW_SECONDS must be positive, got %d", *override)
		}
		cfg.DedupWindow = time.Duration(*override) * time.Second
	}

	return cfg, nil
}

// ServerConfig describes the development NPC server listen address.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "10010"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":10010" or "127.0.0.1:10010" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig configures the optional Ark-backed replies of the development
// server. When the credentials are absent the server falls back to scripted
// replies.
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the required credentials were provided.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials missing: provide ARK_API_KEY + ARK_MODEL or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
