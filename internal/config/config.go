package config

import (
	"strings"
	"time"

	"github.com/blues/wallet-reward/internal/logger"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Transaction TransactionConfig `mapstructure:"transaction"`
	Reward      RewardConfig      `mapstructure:"reward"`
	Task        TaskConfig        `mapstructure:"task"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	LogLevel string `mapstructure:"log_level"` // gorm 日志级别: silent, error, warn, info
}

// ChainConfig 链配置
type ChainConfig struct {
	RpcUrl            string  `mapstructure:"rpc_url"`             // HTTP RPC 节点
	WsUrl             string  `mapstructure:"ws_url"`              // WebSocket 节点，用于订阅新区块
	ChainId           int64   `mapstructure:"chain_id"`            // 链ID
	TokenAddress      string  `mapstructure:"token_address"`       // 奖励代币合约地址，为空则发放原生币
	TokenDecimals     int32   `mapstructure:"token_decimals"`      // 代币精度
	AdminPrivateKey   string  `mapstructure:"admin_private_key"`   // 管理员钱包私钥
	GasLimit          uint64  `mapstructure:"gas_limit"`           // 代币转账 gas 上限
	NativeGasLimit    uint64  `mapstructure:"native_gas_limit"`    // 原生币转账 gas 上限
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // RPC 限流
	RequestBurst      int     `mapstructure:"request_burst"`
}

// TransactionConfig 交易生命周期配置
type TransactionConfig struct {
	MaxPendingAge   time.Duration `mapstructure:"max_pending_age"`   // 超过该时长未打包则重发
	MaxAttempts     int           `mapstructure:"max_attempts"`      // 最大发送次数
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`    // 单次广播超时
	ReceiptTimeout  time.Duration `mapstructure:"receipt_timeout"`   // 单次回执查询超时
	WatchBlockchain bool          `mapstructure:"watch_blockchain"`  // 是否订阅新区块
	MonitorPoolSize int           `mapstructure:"monitor_pool_size"` // 区块处理协程数
	SweepPoolSize   int           `mapstructure:"sweep_pool_size"`   // 重发任务协程数
}

// RewardConfig 奖励配置
type RewardConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	PeriodType     string        `mapstructure:"period_type"` // WEEK, MONTH, QUARTER, SEMESTER, YEAR
	TimeZone       string        `mapstructure:"time_zone"`
	BudgetType     string        `mapstructure:"budget_type"` // FIXED, FIXED_PER_MEMBER, FIXED_PER_POINT
	Amount         string        `mapstructure:"amount"`      // 预算总额，FIXED_PER_POINT 时为每积分奖励
	MaxBudget      string        `mapstructure:"max_budget"`  // FIXED_PER_POINT 的总额上限，0 表示不限
	Threshold      float64       `mapstructure:"threshold"`   // 最低积分门槛
	EnabledPlugins []string      `mapstructure:"enabled_plugins"`
	PluginTimeout  time.Duration `mapstructure:"plugin_timeout"`
}

// TaskConfig 定时任务间隔，单位秒
type TaskConfig struct {
	PendingTransactionInterval int `mapstructure:"pending_transaction_interval"`
	RewardStatusInterval       int `mapstructure:"reward_status_interval"`
	RewardPeriodInterval       int `mapstructure:"reward_period_interval"`
	RewardReminderInterval     int `mapstructure:"reward_reminder_interval"`
	GasPriceInterval           int `mapstructure:"gas_price_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "wallet_reward")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.token_decimals", 18)
	v.SetDefault("chain.gas_limit", 100000)
	v.SetDefault("chain.native_gas_limit", 21000)
	v.SetDefault("chain.requests_per_second", 10)
	v.SetDefault("chain.request_burst", 5)
	v.SetDefault("transaction.max_pending_age", "1h")
	v.SetDefault("transaction.max_attempts", 5)
	v.SetDefault("transaction.submit_timeout", "30s")
	v.SetDefault("transaction.receipt_timeout", "15s")
	v.SetDefault("transaction.watch_blockchain", true)
	v.SetDefault("transaction.monitor_pool_size", 8)
	v.SetDefault("transaction.sweep_pool_size", 4)
	v.SetDefault("reward.enabled", false)
	v.SetDefault("reward.period_type", "MONTH")
	v.SetDefault("reward.time_zone", "UTC")
	v.SetDefault("reward.budget_type", "FIXED")
	v.SetDefault("reward.amount", "0")
	v.SetDefault("reward.max_budget", "0")
	v.SetDefault("reward.threshold", 0)
	v.SetDefault("reward.plugin_timeout", "30s")
	v.SetDefault("task.pending_transaction_interval", 300)
	v.SetDefault("task.reward_status_interval", 300)
	v.SetDefault("task.reward_period_interval", 3600)
	v.SetDefault("task.reward_reminder_interval", 86400)
	v.SetDefault("task.gas_price_interval", 60)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Unmarshal 从 viper 实例解析配置
func Unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/wallet-reward")

	SetDefaults(v)

	// 自动读取环境变量，例如 CHAIN_RPC_URL
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("Warning: Could not read config file: %v", err)
	}

	config, err := Unmarshal(v)
	if err != nil {
		logger.Fatal("Unable to decode config into struct: %v", err)
	}

	return config
}
