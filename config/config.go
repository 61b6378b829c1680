package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"musichud/core/player"
	"musichud/logger"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config 应用配置，环境变量优先读取，可由 TOML 文件覆盖
type Config struct {
	ServerAddr string

	// 网易云 API
	APIBaseURL   string
	APITimeout   time.Duration
	APIRateLimit float64
	APIBurst     int

	// 播放
	PlaybackInterval   time.Duration
	EnableIdlePlaylist bool
	VoteSkipEnabled    bool
	VoteSkipRatio      float64
	VoteSkipMinVotes   int
	QRPollInterval     time.Duration
	Timezone           string

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// 管理接口
	AdminPasswordHash string
	JWTSecret         string
	TokenTTL          time.Duration

	Debug   bool
	LogFile string

	// File 覆盖用的 TOML 文件路径
	File string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Load 读取 .env 与环境变量，再叠加 MUSICHUD_CONFIG 指向的 TOML 文件
func Load() (*Config, error) {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cfg := fromEnv()
	if cfg.File != "" {
		if err := cfg.overlayFile(cfg.File); err != nil {
			return nil, err
		}
	}
	cfg.normalize()
	return cfg, nil
}

// Reload 重新读取环境变量与配置文件，不再加载 .env
func Reload(file string) (*Config, error) {
	cfg := fromEnv()
	if file != "" {
		cfg.File = file
	}
	if cfg.File != "" {
		if err := cfg.overlayFile(cfg.File); err != nil {
			return nil, err
		}
	}
	cfg.normalize()
	return cfg, nil
}

func fromEnv() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		APIBaseURL:   getEnv("NETEASE_API_BASE_URL", "http://localhost:3000"),
		APITimeout:   millis(getEnvInt("NETEASE_API_TIMEOUT_MS", 10000)),
		APIRateLimit: getEnvFloat("NETEASE_API_RATE_LIMIT", 10),
		APIBurst:     getEnvInt("NETEASE_API_BURST", 5),

		PlaybackInterval:   millis(getEnvInt("PLAYBACK_INTERVAL_MS", 1000)),
		EnableIdlePlaylist: getEnvBool("ENABLE_IDLE_PLAYLIST", true),
		VoteSkipEnabled:    getEnvBool("VOTE_SKIP_ENABLED", true),
		VoteSkipRatio:      getEnvFloat("VOTE_SKIP_REQUIRED_RATIO", 0.5),
		VoteSkipMinVotes:   getEnvInt("VOTE_SKIP_MIN_VOTES", 1),
		QRPollInterval:     millis(getEnvInt("QR_POLL_INTERVAL_MS", 5000)),
		Timezone:           getEnv("TIMEZONE", "UTC"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库
		CacheTTL:      time.Duration(getEnvInt("CACHE_TTL_SECONDS", 600)) * time.Second,

		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		TokenTTL:          time.Duration(getEnvInt("ADMIN_TOKEN_TTL_MINUTES", 60)) * time.Minute,

		Debug:   getEnvBool("DEBUG", false),
		LogFile: getEnv("LOG_FILE", ""),

		File: os.Getenv("MUSICHUD_CONFIG"),
	}
}

type fileConfig struct {
	Server struct {
		Addr *string `toml:"addr"`
	} `toml:"server"`
	API struct {
		BaseURL   *string  `toml:"base_url"`
		TimeoutMs *int     `toml:"timeout_ms"`
		RateLimit *float64 `toml:"rate_limit"`
		Burst     *int     `toml:"burst"`
	} `toml:"api"`
	Playback struct {
		IntervalMs         *int    `toml:"interval_ms"`
		EnableIdlePlaylist *bool   `toml:"enable_idle_playlist"`
		Timezone           *string `toml:"timezone"`
	} `toml:"playback"`
	VoteSkip struct {
		Enabled       *bool    `toml:"enabled"`
		RequiredRatio *float64 `toml:"required_ratio"`
		MinVotes      *int     `toml:"min_votes"`
	} `toml:"vote_skip"`
	QR struct {
		PollIntervalMs *int `toml:"poll_interval_ms"`
	} `toml:"qr"`
	Cache struct {
		Enabled    *bool   `toml:"enabled"`
		Host       *string `toml:"host"`
		Port       *string `toml:"port"`
		Password   *string `toml:"password"`
		DB         *int    `toml:"db"`
		TTLSeconds *int    `toml:"ttl_seconds"`
	} `toml:"cache"`
	Admin struct {
		PasswordHash    *string `toml:"password_hash"`
		JWTSecret       *string `toml:"jwt_secret"`
		TokenTTLMinutes *int    `toml:"token_ttl_minutes"`
	} `toml:"admin"`
	Log struct {
		Debug *bool   `toml:"debug"`
		File  *string `toml:"file"`
	} `toml:"log"`
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *int, unit time.Duration) {
	if src != nil {
		*dst = time.Duration(*src) * unit
	}
}

func (c *Config) overlayFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("读取配置文件 %s 失败: %w", path, err)
	}

	setString(&c.ServerAddr, fc.Server.Addr)

	setString(&c.APIBaseURL, fc.API.BaseURL)
	setDuration(&c.APITimeout, fc.API.TimeoutMs, time.Millisecond)
	setFloat(&c.APIRateLimit, fc.API.RateLimit)
	setInt(&c.APIBurst, fc.API.Burst)

	setDuration(&c.PlaybackInterval, fc.Playback.IntervalMs, time.Millisecond)
	setBool(&c.EnableIdlePlaylist, fc.Playback.EnableIdlePlaylist)
	setString(&c.Timezone, fc.Playback.Timezone)

	setBool(&c.VoteSkipEnabled, fc.VoteSkip.Enabled)
	setFloat(&c.VoteSkipRatio, fc.VoteSkip.RequiredRatio)
	setInt(&c.VoteSkipMinVotes, fc.VoteSkip.MinVotes)

	setDuration(&c.QRPollInterval, fc.QR.PollIntervalMs, time.Millisecond)

	setBool(&c.RedisEnabled, fc.Cache.Enabled)
	setString(&c.RedisHost, fc.Cache.Host)
	setString(&c.RedisPort, fc.Cache.Port)
	setString(&c.RedisPassword, fc.Cache.Password)
	setInt(&c.RedisDB, fc.Cache.DB)
	setDuration(&c.CacheTTL, fc.Cache.TTLSeconds, time.Second)

	setString(&c.AdminPasswordHash, fc.Admin.PasswordHash)
	setString(&c.JWTSecret, fc.Admin.JWTSecret)
	setDuration(&c.TokenTTL, fc.Admin.TokenTTLMinutes, time.Minute)

	setBool(&c.Debug, fc.Log.Debug)
	setString(&c.LogFile, fc.Log.File)
	return nil
}

// normalize 把越界的取值拉回合法范围
func (c *Config) normalize() {
	if c.VoteSkipRatio < 0 {
		c.VoteSkipRatio = 0
	}
	if c.VoteSkipRatio > 1 {
		c.VoteSkipRatio = 1
	}
	if c.VoteSkipMinVotes < 0 {
		c.VoteSkipMinVotes = 0
	}
	if c.PlaybackInterval < 0 {
		c.PlaybackInterval = 0
	}
	if c.QRPollInterval <= 0 {
		c.QRPollInterval = 5 * time.Second
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 10 * time.Second
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = time.Hour
	}
}

// Location 解析时区，无效时回退到 UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

// RedisAddr host:port
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// PlayerConfig 播放编排器配置
func (c *Config) PlayerConfig() player.Config {
	pc := player.DefaultConfig()
	pc.Interval = c.PlaybackInterval
	pc.IdlePlaylistEnabled = c.EnableIdlePlaylist
	pc.VoteSkipEnabled = c.VoteSkipEnabled
	pc.VoteSkipRatio = c.VoteSkipRatio
	pc.VoteSkipMinVotes = c.VoteSkipMinVotes
	pc.LookupTimeout = c.APITimeout + 5*time.Second
	pc.Location = c.Location()
	return pc
}

// LogLevel debug 开启时输出调试日志
func (c *Config) LogLevel() logger.LogLevel {
	if c.Debug {
		return logger.DebugLevel
	}
	return logger.InfoLevel
}
