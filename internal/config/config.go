package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Redis   RedisConfig   `yaml:"redis"`
	Cache   CacheConfig   `yaml:"cache"`
	Chat    ChatConfig    `yaml:"chat"`
	Upload  UploadConfig  `yaml:"upload"`
	Auth    AuthConfig    `yaml:"auth"`
	CORS    CORSConfig    `yaml:"cors"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
}

// BackendConfig 外部 RAG 后端地址（每个子服务一个）
type BackendConfig struct {
	FunctionsURL    string        `yaml:"functionsUrl"` // generate
	DocProcURL      string        `yaml:"docProcUrl"`   // documents / knowledge-bases / chats / cleanup
	EmbeddingURL    string        `yaml:"embeddingUrl"` // embed
	Model           string        `yaml:"model"`
	SearchType      string        `yaml:"searchType"`
	GenerateTimeout time.Duration `yaml:"generateTimeout"`
	BeaconTimeout   time.Duration `yaml:"beaconTimeout"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig 知识库列表缓存
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// ChatConfig 聊天组件配置（人设、开场白等内容数据）
type ChatConfig struct {
	AssistantName string `yaml:"assistantName"`
	Greeting      string `yaml:"greeting"`
	EnableRAG     *bool  `yaml:"enableRag"`
}

// RAGEnabled 默认开启检索增强
func (c ChatConfig) RAGEnabled() bool {
	return c.EnableRAG == nil || *c.EnableRAG
}

// UploadConfig 上传流水线的状态展示节奏
type UploadConfig struct {
	SuccessPause      time.Duration `yaml:"successPause"`
	FailurePause      time.Duration `yaml:"failurePause"`
	SummaryClearDelay time.Duration `yaml:"summaryClearDelay"`
}

// AuthConfig 管理端鉴权
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// CORSConfig 跨域配置，为空表示回显 Origin
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// LoadConfig 加载配置文件，path 为空时依次尝试默认位置，都不存在则只用默认值
func LoadConfig(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"configs/sambot.yaml",
			"sambot.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/sambot/sambot.yaml"),
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	mergeWithEnv(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Name == "" {
		cfg.Server.Name = "sambot-gateway"
	}

	if cfg.Backend.FunctionsURL == "" {
		cfg.Backend.FunctionsURL = "http://localhost:7071"
	}
	if cfg.Backend.DocProcURL == "" {
		cfg.Backend.DocProcURL = "http://localhost:7072"
	}
	if cfg.Backend.EmbeddingURL == "" {
		cfg.Backend.EmbeddingURL = "http://localhost:7073"
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = "phi3:14b"
	}
	if cfg.Backend.SearchType == "" {
		cfg.Backend.SearchType = "hybrid"
	}
	if cfg.Backend.GenerateTimeout == 0 {
		// 大文档摘要可能很慢
		cfg.Backend.GenerateTimeout = 10 * time.Minute
	}
	if cfg.Backend.BeaconTimeout == 0 {
		cfg.Backend.BeaconTimeout = 5 * time.Second
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 30 * time.Second
	}

	if cfg.Chat.AssistantName == "" {
		cfg.Chat.AssistantName = "SamBot"
	}

	if cfg.Upload.SuccessPause == 0 {
		cfg.Upload.SuccessPause = time.Second
	}
	if cfg.Upload.FailurePause == 0 {
		cfg.Upload.FailurePause = 1500 * time.Millisecond
	}
	if cfg.Upload.SummaryClearDelay == 0 {
		cfg.Upload.SummaryClearDelay = 5 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func mergeWithEnv(cfg *Config) {
	if v := os.Getenv("SAMBOT_FUNCTIONS_URL"); v != "" {
		cfg.Backend.FunctionsURL = v
	}
	if v := os.Getenv("SAMBOT_DOCPROC_URL"); v != "" {
		cfg.Backend.DocProcURL = v
	}
	if v := os.Getenv("SAMBOT_EMBEDDING_URL"); v != "" {
		cfg.Backend.EmbeddingURL = v
	}
	if v := os.Getenv("SAMBOT_DEFAULT_MODEL"); v != "" {
		cfg.Backend.Model = v
	}
	if v := os.Getenv("SAMBOT_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SAMBOT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
}
