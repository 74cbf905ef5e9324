// =============================================================================
// 📦 AgentQuorum 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentquorum.yaml").
//	    WithEnvPrefix("AGENTQUORUM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/agentquorum/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentQuorum 的完整配置结构
type Config struct {
	// 对话引擎
	Engine EngineConfig `yaml:"engine" env:"ENGINE"`

	// 工具调度
	Dispatch DispatchConfig `yaml:"dispatch" env:"DISPATCH"`

	// 共识投票
	Voting VotingConfig `yaml:"voting" env:"VOTING"`

	// 交叉验证
	Validation ValidationConfig `yaml:"validation" env:"VALIDATION"`

	// 错误恢复
	Recovery RecoveryConfig `yaml:"recovery" env:"RECOVERY"`

	// 精确追踪
	Trace TraceConfig `yaml:"trace" env:"TRACE"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// EngineConfig 对话引擎配置
type EngineConfig struct {
	// 单次运行的最大轮数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 覆盖所有 Agent 的模型
	ModelOverride string `yaml:"model_override" env:"MODEL_OVERRIDE"`
	// 同一轮多个 handoff 的处理策略: last_wins, reject_multiple, vote
	HandoffPolicy string `yaml:"handoff_policy" env:"HANDOFF_POLICY"`
	// 模型调用重试
	Retry RetryConfig `yaml:"retry" env:"RETRY"`
}

// RetryConfig 模型调用重试配置
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       bool          `yaml:"jitter" env:"JITTER"`
}

// DispatchConfig 工具调度配置
type DispatchConfig struct {
	Parallel       bool          `yaml:"parallel" env:"PARALLEL"`
	MaxConcurrency int           `yaml:"max_concurrency" env:"MAX_CONCURRENCY"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	BatchTimeout   time.Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT"`
}

// VotingConfig 共识投票配置
type VotingConfig struct {
	WinningVoteCount         int           `yaml:"winning_vote_count" env:"WINNING_VOTE_COUNT"`
	CandidateCount           int           `yaml:"candidate_count" env:"CANDIDATE_COUNT"`
	MaxRounds                int           `yaml:"max_rounds" env:"MAX_ROUNDS"`
	Timeout                  time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Parallel                 bool          `yaml:"parallel" env:"PARALLEL"`
	EarlyTermination         bool          `yaml:"early_termination" env:"EARLY_TERMINATION"`
	ConfidenceThreshold      float64       `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	FallbackToMajority       bool          `yaml:"fallback_to_majority" env:"FALLBACK_TO_MAJORITY"`
	FallbackToBestConfidence bool          `yaml:"fallback_to_best_confidence" env:"FALLBACK_TO_BEST_CONFIDENCE"`
	AllowSingleAgentFallback bool          `yaml:"allow_single_agent_fallback" env:"ALLOW_SINGLE_AGENT_FALLBACK"`
	// 收集意见所用的模型
	Model string `yaml:"model" env:"MODEL"`
	// 单 Agent 兜底时选中的候选
	DefaultAgent string `yaml:"default_agent" env:"DEFAULT_AGENT"`
}

// ValidationConfig 交叉验证配置
type ValidationConfig struct {
	MinLength           int           `yaml:"min_length" env:"MIN_LENGTH"`
	MaxLength           int           `yaml:"max_length" env:"MAX_LENGTH"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	MaxVariance         float64       `yaml:"max_variance" env:"MAX_VARIANCE"`
	Timeout             time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ErrorKeywords       []string      `yaml:"error_keywords" env:"ERROR_KEYWORDS"`
	ModelOverride       string        `yaml:"model_override" env:"MODEL_OVERRIDE"`
}

// RecoveryConfig 错误恢复配置
type RecoveryConfig struct {
	// 尝试次数存储: memory, redis
	Store string `yaml:"store" env:"STORE"`
	// Redis 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 尝试计数的过期时间
	AttemptTTL time.Duration `yaml:"attempt_ttl" env:"ATTEMPT_TTL"`
	// 保留的失败记录上限
	MaxHistory int `yaml:"max_history" env:"MAX_HISTORY"`
}

// TraceConfig 追踪配置
type TraceConfig struct {
	// 会话 ID，空则自动生成
	SessionID string `yaml:"session_id" env:"SESSION_ID"`
	// 工作节点 ID，空则自动生成
	WorkerID string `yaml:"worker_id" env:"WORKER_ID"`
	// FlushTraces 的落盘目标: none, database, redis
	Sink string `yaml:"sink" env:"SINK"`
	// Redis 归档键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// Redis 归档过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// 每条追踪记录同时写出 OTel span
	OTel bool `yaml:"otel" env:"OTEL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTQUORUM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，所有问题合并为一个 ErrInvalidConfig
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.MaxTurns < 0 {
		errs = append(errs, "engine.max_turns must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Engine.HandoffPolicy)) {
	case "", "last_wins", "reject_multiple", "vote":
	default:
		errs = append(errs, fmt.Sprintf("engine.handoff_policy %q is not supported", c.Engine.HandoffPolicy))
	}
	if c.Engine.Retry.MaxRetries < 0 {
		errs = append(errs, "engine.retry.max_retries must be >= 0")
	}

	if c.Dispatch.MaxConcurrency < 0 {
		errs = append(errs, "dispatch.max_concurrency must be >= 0")
	}

	// 法定票数约束
	v := c.Voting
	if v.WinningVoteCount < 1 {
		errs = append(errs, "voting.winning_vote_count must be >= 1")
	}
	if v.CandidateCount < v.WinningVoteCount {
		errs = append(errs, "voting.candidate_count must be >= voting.winning_vote_count")
	}
	if v.MaxRounds < 0 {
		errs = append(errs, "voting.max_rounds must be >= 0")
	}
	if v.Timeout <= 0 {
		errs = append(errs, "voting.timeout must be positive")
	}
	if v.ConfidenceThreshold < 0 || v.ConfidenceThreshold > 1 {
		errs = append(errs, "voting.confidence_threshold must be within [0,1]")
	}

	if c.Validation.MinLength < 0 || (c.Validation.MaxLength > 0 && c.Validation.MaxLength < c.Validation.MinLength) {
		errs = append(errs, "validation length bounds are inconsistent")
	}
	if c.Validation.ConfidenceThreshold < 0 || c.Validation.ConfidenceThreshold > 1 {
		errs = append(errs, "validation.confidence_threshold must be within [0,1]")
	}

	switch c.Recovery.Store {
	case "", "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("recovery.store %q is not supported", c.Recovery.Store))
	}
	switch c.Trace.Sink {
	case "", "none", "database", "redis":
	default:
		errs = append(errs, fmt.Sprintf("trace.sink %q is not supported", c.Trace.Sink))
	}
	if (c.Recovery.Store == "redis" || c.Trace.Sink == "redis") && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required by the redis store")
	}
	if c.Trace.Sink == "database" && c.Database.DSN() == "" {
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be within [0,1]")
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, "config validation errors: "+strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
