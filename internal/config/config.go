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

// APIKeyHeader 是管理接口携带共享密钥的请求头。
const APIKeyHeader = "x-api-key"

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	AI         AIConfig
	Agent      AgentConfig
	ToolServer ToolServerConfig
	Secrets    SecretsConfig
	Log        LogConfig
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

	agent, err := loadAgentConfig()
	if err != nil {
		return nil, err
	}

	toolServer, err := loadToolServerConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		AI:         ai,
		Agent:      agent,
		ToolServer: toolServer,
		Secrets:    SecretsConfig{ParamPrefix: strings.TrimSpace(os.Getenv("PARAM_PREFIX"))},
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// APIKey 为空时管理接口一律拒绝。
	APIKey string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	addr, err := ParseAddr(os.Getenv("PORT"))
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		Addr:   addr,
		APIKey: strings.TrimSpace(os.Getenv("API_KEY")),
	}, nil
}

// ParseAddr 接受端口号或完整监听地址，空值回落到 8080。
func ParseAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
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

// WithModel 返回使用指定模型的配置副本；name 为空时原样返回。
func (c AIConfig) WithModel(name string) AIConfig {
	if name = strings.TrimSpace(name); name != "" {
		c.Model = name
	}
	return c
}

// NewChatModel 使用配置创建模型实例。ark 模型通过 BindTools 绑定工具，由智能体在构建时完成绑定。
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

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 Ark 模型失败: %w", err)
	}
	return chatModel, nil
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

// AgentConfig 描述智能体定义来源。
type AgentConfig struct {
	// DefinitionFile 指向 YAML 定义文件，为空时使用内置的开票助手。
	DefinitionFile string
	MaxStep        int
}

func loadAgentConfig() (AgentConfig, error) {
	maxStep := 12
	if override, err := parseOptionalIntEnv("AGENT_MAX_STEP"); err != nil {
		return AgentConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AgentConfig{}, fmt.Errorf("invalid AGENT_MAX_STEP value %d: must be positive", *override)
		}
		maxStep = *override
	}

	return AgentConfig{
		DefinitionFile: strings.TrimSpace(os.Getenv("AGENT_FILE")),
		MaxStep:        maxStep,
	}, nil
}

// ToolServerConfig 描述每次调用时启动的工具服务进程。
type ToolServerConfig struct {
	Name    string
	Command string
	Args    []string
	// Secret 以 --api-key=<secret> 形式追加到启动参数。
	Secret  string
	Timeout time.Duration
}

// CommandArgs 返回带凭证的完整启动参数。
func (c ToolServerConfig) CommandArgs() []string {
	args := append([]string(nil), c.Args...)
	if c.Secret != "" {
		args = append(args, "--api-key="+c.Secret)
	}
	return args
}

func loadToolServerConfig() (ToolServerConfig, error) {
	timeout := 180
	if override, err := parseOptionalIntEnv("TOOL_SERVER_TIMEOUT"); err != nil {
		return ToolServerConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ToolServerConfig{}, fmt.Errorf("invalid TOOL_SERVER_TIMEOUT value %d: must be positive", *override)
		}
		timeout = *override
	}

	return ToolServerConfig{
		Name:    getEnvOrDefault("TOOL_SERVER_NAME", "Stripe MCP Server"),
		Command: getEnvOrDefault("TOOL_SERVER_COMMAND", "npx"),
		Args:    strings.Fields(getEnvOrDefault("TOOL_SERVER_ARGS", "-y @stripe/mcp --tools=all")),
		Secret:  strings.TrimSpace(os.Getenv("STRIPE_API_KEY")),
		Timeout: time.Duration(timeout) * time.Second,
	}, nil
}

// SecretsConfig 描述从 SSM Parameter Store 补全密钥的方式。
type SecretsConfig struct {
	ParamPrefix string
}

// Enabled 表示是否配置了参数前缀。
func (c SecretsConfig) Enabled() bool {
	return c.ParamPrefix != ""
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
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
