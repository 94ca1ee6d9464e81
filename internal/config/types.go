package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Budget    BudgetConfig    `mapstructure:"budget"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Quote     QuoteConfig     `mapstructure:"quote"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Advisor   AdvisorConfig   `mapstructure:"advisor"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// BrokerConfig 描述券商连接信息。
type BrokerConfig struct {
	Name       string      `mapstructure:"name"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	APIPass    string      `mapstructure:"api_password"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BudgetConfig 决定每轮可用预算的取值来源。
type BudgetConfig struct {
	// Tag 选择余额字段: free 或 total。
	Tag            string  `mapstructure:"tag"`
	Currency       string  `mapstructure:"currency"`
	MaxUtilization float64 `mapstructure:"max_utilization"`
}

// PolicyConfig 管理交易计划校验的硬性约束。
type PolicyConfig struct {
	MaxPositions   int     `mapstructure:"max_positions"`
	MinConfidence  float64 `mapstructure:"min_confidence"`
	MinSources     int     `mapstructure:"min_sources"`
	LimitBufferBps float64 `mapstructure:"limit_buffer_bps"`
	PriceTick      float64 `mapstructure:"price_tick"`
	LongOnly       bool    `mapstructure:"long_only"`
}

// QuoteConfig 控制参考价解析行为。
type QuoteConfig struct {
	MaxWait      time.Duration `mapstructure:"max_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Workers      int           `mapstructure:"workers"`
}

// ExecutionConfig 控制下单与回执确认行为。
type ExecutionConfig struct {
	AckTimeout   time.Duration `mapstructure:"ack_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Workers      int           `mapstructure:"workers"`
	TimeInForce  string        `mapstructure:"time_in_force"`
}

// AdvisorConfig 描述大模型调用参数。
type AdvisorConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuditConfig 控制审计文档与记忆回溯。
type AuditConfig struct {
	Dir            string        `mapstructure:"dir"`
	MemoryLookback time.Duration `mapstructure:"memory_lookback"`
	MemoryRuns     int           `mapstructure:"memory_runs"`
}

// NotifyConfig 控制邮件通知。
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	To       string `mapstructure:"to"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
}

// MonitorConfig 控制审计查询接口，端口为 0 时关闭。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Broker.Name == "" {
		err = multierr.Append(err, errors.New("broker.name 不能为空"))
	}
	if c.Broker.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("broker.retry.max_attempts 必须大于0"))
	}
	if c.Broker.Retry.MinDelay <= 0 || c.Broker.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("broker.retry.delay 必须为正"))
	}
	if c.Broker.Retry.MinDelay > c.Broker.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("broker.retry.min_delay 不能大于 max_delay"))
	}

	switch strings.ToLower(c.Budget.Tag) {
	case "free", "total":
	default:
		err = multierr.Append(err, fmt.Errorf("budget.tag 仅支持 free/total，当前为 %q", c.Budget.Tag))
	}
	if c.Budget.Currency == "" {
		err = multierr.Append(err, errors.New("budget.currency 不能为空"))
	}
	if c.Budget.MaxUtilization <= 0 || c.Budget.MaxUtilization > 1 {
		err = multierr.Append(err, errors.New("budget.max_utilization 必须位于(0,1]"))
	}

	if c.Policy.MaxPositions <= 0 {
		err = multierr.Append(err, errors.New("policy.max_positions 必须大于0"))
	}
	if c.Policy.MinConfidence < 0 || c.Policy.MinConfidence > 1 {
		err = multierr.Append(err, errors.New("policy.min_confidence 必须位于[0,1]"))
	}
	if c.Policy.MinSources < 0 {
		err = multierr.Append(err, errors.New("policy.min_sources 不能为负"))
	}
	if c.Policy.LimitBufferBps < 0 || c.Policy.LimitBufferBps > 500 {
		err = multierr.Append(err, errors.New("policy.limit_buffer_bps 应位于[0,500]"))
	}
	if c.Policy.PriceTick <= 0 {
		err = multierr.Append(err, errors.New("policy.price_tick 必须大于0"))
	}

	if c.Quote.MaxWait <= 0 {
		err = multierr.Append(err, errors.New("quote.max_wait 必须大于0"))
	}
	if c.Quote.PollInterval <= 0 || c.Quote.PollInterval > c.Quote.MaxWait {
		err = multierr.Append(err, errors.New("quote.poll_interval 必须为正且不大于 max_wait"))
	}
	if c.Quote.Workers <= 0 {
		err = multierr.Append(err, errors.New("quote.workers 必须大于0"))
	}

	if c.Execution.AckTimeout <= 0 {
		err = multierr.Append(err, errors.New("execution.ack_timeout 必须大于0"))
	}
	if c.Execution.PollInterval <= 0 || c.Execution.PollInterval > c.Execution.AckTimeout {
		err = multierr.Append(err, errors.New("execution.poll_interval 必须为正且不大于 ack_timeout"))
	}
	if c.Execution.Workers <= 0 {
		err = multierr.Append(err, errors.New("execution.workers 必须大于0"))
	}

	if c.Advisor.APIKey == "" {
		err = multierr.Append(err, errors.New("advisor.api_key 不能为空"))
	}
	if c.Advisor.Model == "" {
		err = multierr.Append(err, errors.New("advisor.model 不能为空"))
	}
	if c.Advisor.Timeout <= 0 {
		err = multierr.Append(err, errors.New("advisor.timeout 必须大于0"))
	}

	if c.Audit.Dir == "" {
		err = multierr.Append(err, errors.New("audit.dir 不能为空"))
	}
	if c.Audit.MemoryLookback < 0 {
		err = multierr.Append(err, errors.New("audit.memory_lookback 不能为负"))
	}
	if c.Audit.MemoryRuns < 0 {
		err = multierr.Append(err, errors.New("audit.memory_runs 不能为负"))
	}

	if c.Notify.Enabled {
		if c.Notify.SMTPHost == "" || c.Notify.SMTPPort <= 0 {
			err = multierr.Append(err, errors.New("notify 启用时必须配置 smtp_host 与 smtp_port"))
		}
		if c.Notify.To == "" {
			err = multierr.Append(err, errors.New("notify 启用时必须配置收件地址 to"))
		}
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}

	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}
	if c.Monitor.Port < 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[0,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
