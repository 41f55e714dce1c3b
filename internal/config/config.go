// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Chat          ChatConfig          `mapstructure:"chat"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig 配置可恢复流的通道后端。
// Backend 取值 redis / memory / none；none 表示不支持断线续传。
type StreamConfig struct {
	Backend      string        `mapstructure:"backend"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	ActiveTTL    time.Duration `mapstructure:"active_ttl"`
	ReclaimTTL   time.Duration `mapstructure:"reclaim_ttl"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
}

// ChatConfig 存储对话生成相关的策略参数。
type ChatConfig struct {
	MaxDuration    time.Duration  `mapstructure:"max_duration"`
	ResumeWindow   time.Duration  `mapstructure:"resume_window"`
	RateLimitHours int            `mapstructure:"rate_limit_hours"`
	MaxSteps       int            `mapstructure:"max_steps"`
	Entitlements   map[string]int `mapstructure:"entitlements"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时标题任务在进程内执行。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	TitleModel string              `mapstructure:"title_model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
	Prompt     LLMPromptConfig     `mapstructure:"prompt"`
}

// LLMModel 把对外暴露的模型 ID 映射到供应商的模型名。
type LLMModel struct {
	Name      string `mapstructure:"name"`
	Reasoning bool   `mapstructure:"reasoning"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LLMPromptConfig 配置系统提示词。
type LLMPromptConfig struct {
	System string `mapstructure:"system"`
	Title  string `mapstructure:"title"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", 90*time.Second)
	v.SetDefault("stream.backend", "redis")
	v.SetDefault("stream.key_prefix", "resumable-stream")
	v.SetDefault("stream.active_ttl", 10*time.Minute)
	v.SetDefault("stream.reclaim_ttl", 24*time.Hour)
	v.SetDefault("stream.block_timeout", 2*time.Second)
	v.SetDefault("chat.max_duration", 60*time.Second)
	v.SetDefault("chat.resume_window", 15*time.Second)
	v.SetDefault("chat.rate_limit_hours", 24)
	v.SetDefault("chat.max_steps", 5)
	v.SetDefault("chat.entitlements", map[string]int{"guest": 20, "regular": 100})
	v.SetDefault("jwt.access_token_expire_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("kafka.topic", "chat-title-tasks")
	v.SetDefault("kafka.group_id", "ai-chat-go-consumer")
	v.SetDefault("elasticsearch.index_name", "chat_messages")
	v.SetDefault("llm.title_model", "chat-model")
}

// Load 从指定路径读取 YAML 配置，环境变量 AICHAT_* 可以覆盖同名配置项。
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AICHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	return cfg, nil
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Entitlement 返回某类用户每个窗口期内允许发送的最大消息数。未知类型按 guest 处理。
func (c ChatConfig) Entitlement(userType string) int {
	if n, ok := c.Entitlements[userType]; ok {
		return n
	}
	return c.Entitlements["guest"]
}
