// =============================================================================
// 📦 AgentQuorum 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Engine:     DefaultEngineConfig(),
		Dispatch:   DefaultDispatchConfig(),
		Voting:     DefaultVotingConfig(),
		Validation: DefaultValidationConfig(),
		Recovery:   DefaultRecoveryConfig(),
		Trace:      DefaultTraceConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultEngineConfig 返回默认引擎配置
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxTurns:      10,
		HandoffPolicy: "last_wins",
		Retry: RetryConfig{
			MaxRetries:   3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// DefaultDispatchConfig 返回默认调度配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Parallel:       true,
		MaxConcurrency: 8,
		Timeout:        30 * time.Second,
		BatchTimeout:   2 * time.Minute,
	}
}

// DefaultVotingConfig 返回默认投票配置
func DefaultVotingConfig() VotingConfig {
	return VotingConfig{
		WinningVoteCount:         2,
		CandidateCount:           3,
		MaxRounds:                1,
		Timeout:                  30 * time.Second,
		Parallel:                 true,
		EarlyTermination:         true,
		ConfidenceThreshold:      0.6,
		FallbackToMajority:       true,
		FallbackToBestConfidence: true,
		AllowSingleAgentFallback: true,
		Model:                    "gpt-4o-mini",
	}
}

// DefaultValidationConfig 返回默认验证配置
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinLength:           10,
		MaxLength:           10000,
		ConfidenceThreshold: 0.7,
		MaxVariance:         0.3,
		Timeout:             30 * time.Second,
		ErrorKeywords:       []string{"error", "todo", "fixme", "not implemented"},
	}
}

// DefaultRecoveryConfig 返回默认恢复配置
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Store:      "memory",
		KeyPrefix:  "agentquorum:recovery",
		AttemptTTL: time.Hour,
		MaxHistory: 1000,
	}
}

// DefaultTraceConfig 返回默认追踪配置
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Sink:      "none",
		KeyPrefix: "agentquorum:trace",
		TTL:       24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		Password:            "",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentquorum",
		Password:        "",
		Name:            "agentquorum",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentquorum",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentquorum",
	}
}
