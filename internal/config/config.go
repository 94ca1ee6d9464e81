package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "trader"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("broker.name", "binanceusdm")
	v.SetDefault("broker.use_sandbox", false)
	v.SetDefault("broker.retry.max_attempts", 5)
	v.SetDefault("broker.retry.min_delay", "500ms")
	v.SetDefault("broker.retry.max_delay", "5s")

	v.SetDefault("budget.tag", "free")
	v.SetDefault("budget.currency", "EUR")
	v.SetDefault("budget.max_utilization", 0.80)

	v.SetDefault("policy.max_positions", 5)
	v.SetDefault("policy.min_confidence", 0.60)
	v.SetDefault("policy.min_sources", 2)
	v.SetDefault("policy.limit_buffer_bps", 25)
	v.SetDefault("policy.price_tick", 0.01)
	v.SetDefault("policy.long_only", true)

	v.SetDefault("quote.max_wait", "2s")
	v.SetDefault("quote.poll_interval", "250ms")
	v.SetDefault("quote.workers", 4)

	v.SetDefault("execution.ack_timeout", "10s")
	v.SetDefault("execution.poll_interval", "500ms")
	v.SetDefault("execution.workers", 4)
	v.SetDefault("execution.time_in_force", "DAY")

	v.SetDefault("advisor.base_url", "https://api.x.ai/v1")
	v.SetDefault("advisor.model", "grok-4-1-fast")
	v.SetDefault("advisor.timeout", "60s")

	v.SetDefault("audit.dir", "audit")
	v.SetDefault("audit.memory_lookback", "72h")
	v.SetDefault("audit.memory_runs", 8)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.smtp_port", 587)

	v.SetDefault("database.path", "data/catalyst_trader.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.loop_interval", "1h")
	v.SetDefault("monitor.port", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
