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

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Transcribe TranscribeConfig
	Avatar     AvatarConfig
	Session    SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	transcribe, err := loadTranscribeConfig()
	if err != nil {
		return nil, err
	}

	avatar, err := loadAvatarConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Transcribe: transcribe,
		Avatar:     avatar,
		Session:    session,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value %q: %w", port, err)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
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
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// TranscribeConfig 描述语音识别服务相关配置。
type TranscribeConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c TranscribeConfig) Enabled() bool {
	return c.Endpoint != "" && c.APIKey != ""
}

func loadTranscribeConfig() (TranscribeConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return TranscribeConfig{}, err
	}

	timeoutSeconds := 5
	if timeout != nil {
		if *timeout < 1 {
			return TranscribeConfig{}, fmt.Errorf("SPEECH_TIMEOUT must be at least 1 second, got %d", *timeout)
		}
		timeoutSeconds = *timeout
	}

	return TranscribeConfig{
		Endpoint: strings.TrimSpace(os.Getenv("SPEECH_ENDPOINT")),
		APIKey:   strings.TrimSpace(os.Getenv("SPEECH_API_KEY")),
		Timeout:  time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// AvatarConfig 描述数字人流媒体服务相关配置。
type AvatarConfig struct {
	APIKey   string
	BaseURL  string
	AvatarID string
	VoiceID  string
	Quality  string
	Timeout  time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AvatarConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadAvatarConfig() (AvatarConfig, error) {
	timeout, err := parseOptionalIntEnv("AVATAR_TIMEOUT")
	if err != nil {
		return AvatarConfig{}, err
	}

	timeoutSeconds := 5
	if timeout != nil {
		if *timeout < 1 {
			return AvatarConfig{}, fmt.Errorf("AVATAR_TIMEOUT must be at least 1 second, got %d", *timeout)
		}
		timeoutSeconds = *timeout
	}

	return AvatarConfig{
		APIKey:   strings.TrimSpace(os.Getenv("AVATAR_API_KEY")),
		BaseURL:  getEnvOrDefault("AVATAR_BASE_URL", "https://api.heygen.com/v1"),
		AvatarID: getEnvOrDefault("AVATAR_ID", "22e57a238de540c39d17b9abbcb814dd"),
		VoiceID:  getEnvOrDefault("AVATAR_VOICE_ID", "7f3cf16f222240eead2e712ff3a91a77"),
		Quality:  getEnvOrDefault("AVATAR_QUALITY", "medium"),
		Timeout:  time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// SessionConfig 描述会话闲置回收相关配置。
type SessionConfig struct {
	MaxIdle       time.Duration
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	maxIdle, err := parseOptionalIntEnv("SESSION_MAX_IDLE")
	if err != nil {
		return SessionConfig{}, err
	}

	maxIdleSeconds := 600
	if maxIdle != nil {
		if *maxIdle < 1 {
			return SessionConfig{}, fmt.Errorf("SESSION_MAX_IDLE must be at least 1 second, got %d", *maxIdle)
		}
		maxIdleSeconds = *maxIdle
	}

	interval, err := parseOptionalIntEnv("SESSION_SWEEP_INTERVAL")
	if err != nil {
		return SessionConfig{}, err
	}

	intervalSeconds := 60
	if interval != nil {
		if *interval < 1 {
			return SessionConfig{}, fmt.Errorf("SESSION_SWEEP_INTERVAL must be at least 1 second, got %d", *interval)
		}
		intervalSeconds = *interval
	}

	return SessionConfig{
		MaxIdle:       time.Duration(maxIdleSeconds) * time.Second,
		SweepInterval: time.Duration(intervalSeconds) * time.Second,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
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
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
