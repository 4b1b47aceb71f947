package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// WindowPolicy 投票时间窗口策略
type WindowPolicy string

const (
	// WindowEnforce 仅在 poll_start 与 poll_end 之间接受投票
	WindowEnforce WindowPolicy = "enforce"
	// WindowOpen 投票账户存在即可投票，不检查时间窗口
	WindowOpen WindowPolicy = "open"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	RocketMQ  RocketMQConfig
	Voting    VotingConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins []string
}

// DatabaseConfig 账户存储配置
type DatabaseConfig struct {
	Driver     string // mysql 或 sqlite
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
	LogLevel   string
}

// RedisConfig Redis连接配置，Addr 为空时不使用Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// RocketMQConfig RocketMQ配置，NameServers 为空时不发布到RocketMQ
type RocketMQConfig struct {
	NameServers []string
	Topic       string
	GroupName   string
}

// VotingConfig 状态转换相关配置
type VotingConfig struct {
	WindowPolicy WindowPolicy
	LockExpiry   time.Duration
	TokenLeeway  time.Duration
	TokenMaxTTL  time.Duration
}

// RateLimitConfig 每个身份的投票限流
type RateLimitConfig struct {
	VotesPerSecond float64
	Burst          int
}

// DSN 返回MySQL连接串
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Load 从环境变量读取配置，存在 .env 文件时先加载
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	policy := WindowPolicy(strings.ToLower(getEnv("VOTING_WINDOW_POLICY", string(WindowEnforce))))
	if policy != WindowEnforce && policy != WindowOpen {
		return nil, fmt.Errorf("invalid VOTING_WINDOW_POLICY %q", policy)
	}

	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))
	if driver != "mysql" && driver != "sqlite" {
		return nil, fmt.Errorf("invalid DB_DRIVER %q", driver)
	}

	voteRate, err := strconv.ParseFloat(getEnv("VOTE_RATE_LIMIT", "5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid VOTE_RATE_LIMIT: %w", err)
	}
	voteBurst, err := strconv.Atoi(getEnv("VOTE_RATE_BURST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid VOTE_RATE_BURST: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8090"),
			ReadTimeout:        getSeconds("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getSeconds("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			Driver:     driver,
			Host:       getEnv("DB_HOST", "mysql"),
			Port:       getEnv("DB_PORT", "3306"),
			User:       getEnv("DB_USER", "voteuser"),
			Password:   getEnv("DB_PASSWORD", "votepassword"),
			Name:       getEnv("DB_NAME", "votingdb"),
			SQLitePath: getEnv("SQLITE_PATH", "voting.db"),
			LogLevel:   getEnv("DB_LOG_LEVEL", "warn"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
			CacheTTL: getSeconds("CACHE_TTL_SEC", 300),
		},
		RocketMQ: RocketMQConfig{
			NameServers: splitList(getEnv("ROCKETMQ_NAMESRV_ADDR", "")),
			Topic:       getEnv("ROCKETMQ_TOPIC", "voting_events"),
			GroupName:   getEnv("ROCKETMQ_GROUP", "voting_producer"),
		},
		Voting: VotingConfig{
			WindowPolicy: policy,
			LockExpiry:   getSeconds("LOCK_EXPIRY_SEC", 8),
			TokenLeeway:  getSeconds("TOKEN_LEEWAY_SEC", 5),
			TokenMaxTTL:  getSeconds("TOKEN_MAX_TTL_SEC", 3600),
		},
		RateLimit: RateLimitConfig{
			VotesPerSecond: voteRate,
			Burst:          voteBurst,
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
	return cfg, nil
}

// getEnv 获取环境变量值或使用默认值
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getSeconds(key string, defaultSec int) time.Duration {
	sec, err := strconv.Atoi(getEnv(key, strconv.Itoa(defaultSec)))
	if err != nil || sec < 0 {
		sec = defaultSec
	}
	return time.Duration(sec) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
