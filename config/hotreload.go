// 配置热重载管理器实现。
//
// 监听配置文件，校验后应用新配置并通知订阅者，回调失败时回滚。
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// hotSections 中的字段可以在运行时生效，其余字段需要重启
var hotSections = []string{"Engine.", "Dispatch.", "Voting.", "Validation."}

// sensitiveFields 在变更日志中脱敏
var sensitiveFields = map[string]struct{}{
	"Redis.Password":    {},
	"Database.Password": {},
}

// ConfigChange 代表一个字段的变更
type ConfigChange struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	Path            string    `json:"path"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	RequiresRestart bool      `json:"requires_restart"`
}

// ReloadCallback 在新配置生效后调用，返回错误会触发回滚
type ReloadCallback func(oldConfig, newConfig *Config) error

// ConfigSnapshot 配置快照
type ConfigSnapshot struct {
	Config    *Config   `json:"config"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   int       `json:"version"`
}

// HotReloadOption 热重载选项
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置日志
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithReloadPath 设置被监听的配置文件
func WithReloadPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithEnvOverrides 重载时沿用环境变量覆盖
func WithEnvOverrides(prefix string) HotReloadOption {
	return func(m *HotReloadManager) { m.envPrefix = prefix }
}

// WithMaxHistorySize 设置历史快照数量
func WithMaxHistorySize(size int) HotReloadOption {
	return func(m *HotReloadManager) {
		if size > 0 {
			m.maxHistorySize = size
		}
	}
}

// WithWatcherOptions 传递给底层 FileWatcher 的选项
func WithWatcherOptions(opts ...WatcherOption) HotReloadOption {
	return func(m *HotReloadManager) { m.watcherOpts = append(m.watcherOpts, opts...) }
}

// HotReloadManager 管理配置热重载
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string
	envPrefix  string

	history        []ConfigSnapshot
	maxHistorySize int
	changeLog      []ConfigChange

	callbacks   []ReloadCallback
	watcher     *FileWatcher
	watcherOpts []WatcherOption

	logger *zap.Logger
}

// NewHotReloadManager 创建热重载管理器
func NewHotReloadManager(cfg *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:         cfg,
		envPrefix:      "AGENTQUORUM",
		maxHistorySize: 10,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_reload"))
	m.pushHistory(cfg, "init")
	return m
}

// OnReload 注册重载回调
func (m *HotReloadManager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Start 启动文件监听，未设置路径时为空操作
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher != nil {
		return fmt.Errorf("hot reload manager already running")
	}
	if m.configPath == "" {
		return nil
	}

	opts := append([]WatcherOption{WithWatcherLogger(m.logger), WithDebounceDelay(500 * time.Millisecond)}, m.watcherOpts...)
	watcher, err := NewFileWatcher([]string{m.configPath}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	watcher.OnChange(m.handleFileChange)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}
	m.watcher = watcher

	m.logger.Info("hot reload started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止监听
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watcher == nil {
		return nil
	}
	err := m.watcher.Stop()
	m.watcher = nil
	return err
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	if event.Op == FileOpRemove {
		m.logger.Warn("config file removed, keeping current config", zap.String("path", event.Path))
		return
	}
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Error("failed to reload configuration", zap.Error(err))
	}
}

// ReloadFromFile 从文件重新加载并应用配置，失败时保留当前配置
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	newConfig, err := NewLoader().
		WithConfigPath(m.configPath).
		WithEnvPrefix(m.envPrefix).
		Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 校验并应用新配置。任一回调失败时恢复旧配置并再次通知。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m.mu.Lock()
	oldConfig := m.config
	changes := detectChanges(oldConfig, newConfig, source)
	if len(changes) == 0 {
		m.mu.Unlock()
		m.logger.Debug("config unchanged", zap.String("source", source))
		return nil
	}
	m.config = newConfig
	callbacks := append([]ReloadCallback(nil), m.callbacks...)
	m.mu.Unlock()

	if err := notify(callbacks, oldConfig, newConfig); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.config = oldConfig
		}
		m.mu.Unlock()
		m.logger.Error("reload callback failed, rolled back", zap.Error(err), zap.String("source", source))
		if rbErr := notify(callbacks, newConfig, oldConfig); rbErr != nil {
			m.logger.Error("rollback callback failed", zap.Error(rbErr))
		}
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	m.mu.Lock()
	m.pushHistory(newConfig, source)
	m.changeLog = append(m.changeLog, changes...)
	if len(m.changeLog) > 1000 {
		m.changeLog = m.changeLog[len(m.changeLog)-1000:]
	}
	m.mu.Unlock()

	restart := false
	for _, c := range changes {
		restart = restart || c.RequiresRestart
		m.logger.Info("config changed",
			zap.String("path", c.Path),
			zap.Any("old_value", c.OldValue),
			zap.Any("new_value", c.NewValue),
			zap.Bool("requires_restart", c.RequiresRestart))
	}
	if restart {
		m.logger.Warn("some configuration changes require restart to take effect")
	}
	return nil
}

// Rollback 恢复上一个快照
func (m *HotReloadManager) Rollback() error {
	m.mu.RLock()
	if len(m.history) < 2 {
		m.mu.RUnlock()
		return fmt.Errorf("no previous config to roll back to")
	}
	prev := m.history[len(m.history)-2].Config
	m.mu.RUnlock()
	return m.ApplyConfig(prev, "rollback")
}

// GetConfig 返回当前配置
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// History 返回配置快照
func (m *HotReloadManager) History() []ConfigSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ConfigSnapshot(nil), m.history...)
}

// GetChangeLog 返回最近 limit 条变更，limit<=0 返回全部
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	log := m.changeLog
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	return append([]ConfigChange(nil), log...)
}

// IsHotReloadable reports whether a field path takes effect without restart.
func IsHotReloadable(path string) bool {
	for _, prefix := range hotSections {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (m *HotReloadManager) pushHistory(cfg *Config, source string) {
	version := 1
	if n := len(m.history); n > 0 {
		version = m.history[n-1].Version + 1
	}
	m.history = append(m.history, ConfigSnapshot{
		Config:    deepCopyConfig(cfg),
		Timestamp: time.Now(),
		Source:    source,
		Version:   version,
	})
	if len(m.history) > m.maxHistorySize {
		m.history = m.history[len(m.history)-m.maxHistorySize:]
	}
}

func notify(callbacks []ReloadCallback, oldConfig, newConfig *Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range callbacks {
		if err := cb(oldConfig, newConfig); err != nil {
			return err
		}
	}
	return nil
}

// deepCopyConfig 深拷贝配置（JSON 往返）
func deepCopyConfig(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var copied Config
	if err := json.Unmarshal(data, &copied); err != nil {
		return cfg
	}
	return &copied
}

func detectChanges(oldConfig, newConfig *Config, source string) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), func(path string, oldV, newV any) {
		c := ConfigChange{
			Timestamp:       time.Now(),
			Source:          source,
			Path:            path,
			OldValue:        oldV,
			NewValue:        newV,
			RequiresRestart: !IsHotReloadable(path),
		}
		if _, ok := sensitiveFields[path]; ok {
			c.OldValue, c.NewValue = "[REDACTED]", "[REDACTED]"
		}
		changes = append(changes, c)
	})
	return changes
}

// compareStructs 递归比较结构体字段
func compareStructs(prefix string, oldVal, newVal reflect.Value, emit func(path string, oldV, newV any)) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		name := t.Field(i).Name
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct && of.Type() != reflect.TypeOf(time.Time{}) {
			compareStructs(path, of, nf, emit)
			continue
		}
		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			emit(path, of.Interface(), nf.Interface())
		}
	}
}
