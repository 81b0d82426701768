package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StoreConfig struct {
	SnapshotPath string `mapstructure:"snapshot_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvent string `mapstructure:"ledger_event"`
}

// BusinessConfig 业务参数（金额单位均为最小货币单位）
type BusinessConfig struct {
	SignupBonus           int64 `mapstructure:"signup_bonus"`            // 注册默认赠送金额
	ReferralBonus         int64 `mapstructure:"referral_bonus"`          // 推荐奖励（双方各得）
	VIPReferralBonus      int64 `mapstructure:"vip_referral_bonus"`      // 推荐人为 VIP 时的奖励
	LockTimeoutMillis     int   `mapstructure:"lock_timeout_ms"`         // 账户锁获取超时
	IdempotencyTTLMinutes int   `mapstructure:"idempotency_ttl_minutes"` // 幂等记录保留时间
	MaxRetryCount         int   `mapstructure:"max_retry_count"`         // 消息发送最大重试次数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// DefaultBusiness 返回默认业务参数，供测试与缺省配置使用
func DefaultBusiness() BusinessConfig {
	return BusinessConfig{
		SignupBonus:           5000,
		ReferralBonus:         1000000,
		VIPReferralBonus:      10000000,
		LockTimeoutMillis:     3000,
		IdempotencyTTLMinutes: 60,
		MaxRetryCount:         3,
	}
}
