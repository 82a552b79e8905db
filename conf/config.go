package conf

import (
	"fmt"
	"os"
	"time"

	"signalflow/pkg/cache"
	"signalflow/pkg/logger"

	"gopkg.in/yaml.v3"
)

// 配置加载（webhook密钥、数据库、队列策略等）

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type JwtConfig struct {
	Secret                  string `yaml:"secret"`
	JwtTtl                  int64  `yaml:"ttl"`             // token 有效期（秒）
	JwtBlacklistGracePeriod int64  `yaml:"blacklistperiod"` // 黑名单宽限时间（秒）
}

type KafkaConfig struct {
	Broker     string `yaml:"broker"`
	AlertTopic string `yaml:"alert-topic"`
}

type EmailConfig struct {
	Host     string   `yaml:"smtp_host"`
	Port     int      `yaml:"smtp_port"`
	Username string   `yaml:"smtp_user"`
	Password string   `yaml:"smtp_password"`
	Sender   string   `yaml:"smtp_sender"`
	To       []string `yaml:"to"` // 运营告警收件人
}

// QueuePolicy 单个逻辑队列的默认策略
type QueuePolicy struct {
	MaxAttempts int           `yaml:"max-attempts"`
	BaseBackoff time.Duration `yaml:"base-backoff"` // 本队列重试延迟的下限
	Priority    int           `yaml:"priority"`     // 数值越大优先级越高
}

type DispatchConfig struct {
	WorkerCount       int           `yaml:"worker-count"`
	ExecTimeout       time.Duration `yaml:"exec-timeout"`       // 单次券商调用超时
	PollInterval      time.Duration `yaml:"poll-interval"`      // 延迟队列搬运间隔
	SweepInterval     time.Duration `yaml:"sweep-interval"`     // 悬死任务兜底扫描间隔
	StaleAfter        time.Duration `yaml:"stale-after"`        // 超过该时长没动静的pending/in_flight视为悬死
	ReconcileInterval time.Duration `yaml:"reconcile-interval"` // 周期对账间隔，0表示关闭
	Execution         QueuePolicy   `yaml:"execution"`
	Reconciliation    QueuePolicy   `yaml:"reconciliation"`
}

type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure-threshold"`
	SuccessThreshold int           `yaml:"success-threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring-period"`
	CleanupInterval  time.Duration `yaml:"cleanup-interval"`
}

type DeadLetterConfig struct {
	AlertThreshold int           `yaml:"alert-threshold"` // 待处理条目超过该值触发告警
	Retention      time.Duration `yaml:"retention"`       // 保留期，过期自动清理
	PurgeInterval  time.Duration `yaml:"purge-interval"`
}

type NotifyConfig struct {
	Cooldown time.Duration `yaml:"cooldown"` // 同一(service,level,category)的告警冷却窗口
	Email    bool          `yaml:"email"`
	Kafka    bool          `yaml:"kafka"`
}

// RateLimitConfig 公共/鉴权webhook各自的限频窗口
type RateLimitConfig struct {
	PublicInterval time.Duration `yaml:"public-interval"`
	AuthInterval   time.Duration `yaml:"auth-interval"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Webhook    WebhookConfig     `yaml:"webhook"`
	Db         `yaml:"database"`
	Log        logger.Config     `yaml:"log"`
	Jwt        JwtConfig         `yaml:"jwt"`
	Redis      cache.RedisConfig `yaml:"redis"`
	Kafka      KafkaConfig       `yaml:"kafka"`
	Email      EmailConfig       `yaml:"email"`
	Dispatch   DispatchConfig    `yaml:"dispatch"`
	Breaker    BreakerConfig     `yaml:"breaker"`
	DeadLetter DeadLetterConfig  `yaml:"deadletter"`
	Notify     NotifyConfig      `yaml:"notify"`
	RateLimit  RateLimitConfig   `yaml:"rate-limit"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	return nil
}
