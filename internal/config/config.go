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
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Secrets SecretsConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Log:     logCfg,
		AI:      ai,
		Secrets: loadSecretsConfig(),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr          string
	AllowedOrigin string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	origin := getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, AllowedOrigin: origin}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, AllowedOrigin: origin}, nil
}

// LogConfig 描述日志输出配置。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "debug", "info", "warn", "error":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value: %q", level)
	}

	format := strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json"))
	if format != "json" && format != "console" {
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value: %q", format)
	}

	return LogConfig{Level: level, Format: format}, nil
}

// SecretsConfig 描述凭证来源。
type SecretsConfig struct {
	// File is an optional dotenv-format file consulted before the process environment.
	File string
}

func loadSecretsConfig() SecretsConfig {
	return SecretsConfig{File: strings.TrimSpace(os.Getenv("SECRETS_FILE"))}
}

// Generation holds the per-call knobs sent to the model.
type Generation struct {
	MaxTokens   int
	Temperature float32
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	// APIKey is used verbatim when set; otherwise APIKeyName is resolved through the secrets service.
	APIKey         string
	APIKeyName     string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	StreamResponse bool
	RequestTimeout time.Duration

	Persona    Generation
	Chat       Generation
	Reflection Generation
}

// Enabled 表示是否提供了必需的模型与凭证来源。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	return c.APIKey != "" || c.APIKeyName != "" || (c.AccessKey != "" && c.SecretKey != "")
}

func loadAIConfig() (AIConfig, error) {
	stream, err := parseBoolEnv("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseOptionalIntEnv("REQUEST_TIMEOUT")
	if err != nil {
		return AIConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		if *timeout < 1 {
			return AIConfig{}, fmt.Errorf("invalid REQUEST_TIMEOUT value %d: must be positive", *timeout)
		}
		timeoutSeconds = *timeout
	}

	personaGen, err := loadGeneration("PERSONA", Generation{MaxTokens: 500, Temperature: 0.9})
	if err != nil {
		return AIConfig{}, err
	}
	chatGen, err := loadGeneration("CHAT", Generation{MaxTokens: 200, Temperature: 0.8})
	if err != nil {
		return AIConfig{}, err
	}
	reflectionGen, err := loadGeneration("REFLECTION", Generation{MaxTokens: 300, Temperature: 0.7})
	if err != nil {
		return AIConfig{}, err
	}

	modelName := strings.TrimSpace(os.Getenv("Model"))
	if modelName == "" {
		modelName = strings.TrimSpace(os.Getenv("ARK_MODEL"))
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		APIKeyName:     strings.TrimSpace(os.Getenv("ARK_API_KEY_NAME")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:          modelName,
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		StreamResponse: stream,
		RequestTimeout: time.Duration(timeoutSeconds) * time.Second,
		Persona:        personaGen,
		Chat:           chatGen,
		Reflection:     reflectionGen,
	}, nil
}

// loadGeneration reads <PREFIX>_MAX_TOKENS and <PREFIX>_TEMPERATURE over the given defaults.
func loadGeneration(prefix string, def Generation) (Generation, error) {
	maxTokens, err := parseOptionalIntEnv(prefix + "_MAX_TOKENS")
	if err != nil {
		return Generation{}, err
	}
	if maxTokens != nil {
		if *maxTokens < 1 {
			return Generation{}, fmt.Errorf("invalid %s_MAX_TOKENS value %d: must be positive", prefix, *maxTokens)
		}
		def.MaxTokens = *maxTokens
	}

	temperature, err := parseOptionalFloat32Env(prefix + "_TEMPERATURE")
	if err != nil {
		return Generation{}, err
	}
	if temperature != nil {
		if *temperature < 0 || *temperature > 2 {
			return Generation{}, fmt.Errorf("invalid %s_TEMPERATURE value %v: must be within [0, 2]", prefix, *temperature)
		}
		def.Temperature = *temperature
	}

	return def, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
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

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}

// NewChatModel 使用配置创建一个 Ark 模型实例。apiKey 为空时回退到 AK/SK 组合。
func (c AIConfig) NewChatModel(ctx context.Context, apiKey string) (model.ChatModel, error) {
	if c.Model == "" {
		return nil, fmt.Errorf("Ark 模型配置缺失，请设置 Model 或 ARK_MODEL")
	}
	if apiKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
		return nil, fmt.Errorf("Ark 凭证缺失，至少提供 API Key 或 AK/SK 组合")
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    apiKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	})
}
