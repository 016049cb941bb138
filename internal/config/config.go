// Package config 提供配置加载和管理功能
package config

import (
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Backup        BackupConfig        `yaml:"backup" mapstructure:"backup"`
	Encryption    EncryptionConfig    `yaml:"encryption" mapstructure:"encryption"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	TenantHeader string        `yaml:"tenant_header" mapstructure:"tenant_header"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
// Host/Port/User/Password/Database 描述默认（共享）连接目标；
// 租户可在注册表中用 connection_target 覆盖。
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// TenantMaxOpenConns 每租户连接源的池上限（含溢出余量）
	TenantMaxOpenConns int `yaml:"tenant_max_open_conns" mapstructure:"tenant_max_open_conns"`
	// TenantMaxIdleConns 每租户连接源的空闲连接数
	TenantMaxIdleConns int `yaml:"tenant_max_idle_conns" mapstructure:"tenant_max_idle_conns"`
}

// DSN 构造默认连接目标的 DSN
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// TenantTTL 租户配置缓存的过期时间
	TenantTTL time.Duration `yaml:"tenant_ttl" mapstructure:"tenant_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// BackupConfig 备份配置
type BackupConfig struct {
	// Root 备份根目录，每个租户一个子目录
	Root string `yaml:"root" mapstructure:"root"`
	// DumpCommand 导出工具路径
	DumpCommand string `yaml:"dump_command" mapstructure:"dump_command"`
	// RestoreCommand 导入工具路径
	RestoreCommand string `yaml:"restore_command" mapstructure:"restore_command"`
	// MaxBackups 默认保留份数，租户可在注册表中覆盖
	MaxBackups int `yaml:"max_backups" mapstructure:"max_backups"`
	// Timeout 单次备份/恢复的超时时间
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EncryptionConfig 字段加密配置
type EncryptionConfig struct {
	// MasterSecret 进程级主密钥，派生租户密钥的必要输入
	MasterSecret string `yaml:"master_secret" mapstructure:"master_secret"`
	// KDFIterations PBKDF2 迭代次数
	KDFIterations int `yaml:"kdf_iterations" mapstructure:"kdf_iterations"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Output string `yaml:"output" mapstructure:"output"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Exporter   string  `yaml:"exporter" mapstructure:"exporter"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig 按租户的请求限流配置
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Requests 窗口内允许的请求数
	Requests int `yaml:"requests" mapstructure:"requests"`
	// Window 滑动窗口长度
	Window time.Duration `yaml:"window" mapstructure:"window"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
