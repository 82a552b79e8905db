package notify

import (
	"context"
	"fmt"
	"time"

	"signalflow/pkg/logger"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"
)

// 运营告警。关键失败（死信积压、熔断开启等）推送到运营渠道，
// 同一 (service, level, category) 在冷却窗口内只发一次，防止告警风暴

type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert 一条告警
type Alert struct {
	Service  string                 `json:"service"`
	Level    Level                  `json:"level"`
	Category string                 `json:"category"` // 告警归类，限频的维度之一
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Context  map[string]interface{} `json:"context,omitempty"`
	At       time.Time              `json:"at"`
}

// Channel 投递渠道，尽力而为，单渠道失败不影响其他渠道
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert Alert) error
}

type Sink struct {
	service  string
	cooldown time.Duration
	channels []Channel

	// 限频记录。lru并发安全，容量封顶避免key无限膨胀
	recent *lru.Cache
	now    func() time.Time
}

func NewSink(service string, cooldown time.Duration, channels ...Channel) *Sink {
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	recent, _ := lru.New(1024)
	return &Sink{
		service:  service,
		cooldown: cooldown,
		channels: channels,
		recent:   recent,
		now:      time.Now,
	}
}

// SendAlert 发送告警，返回是否实际投递（限频命中返回false）
func (s *Sink) SendAlert(ctx context.Context, level Level, category, title, message string, fields map[string]interface{}) bool {
	key := s.service + "|" + string(level) + "|" + category

	now := s.now()
	if value, ok := s.recent.Get(key); ok {
		if last, ok := value.(time.Time); ok && now.Sub(last) < s.cooldown {
			logger.Debug("[Notify] alert suppressed by cooldown", logger.Pair("key", key))
			return false
		}
	}
	s.recent.Add(key, now)

	alert := Alert{
		Service:  s.service,
		Level:    level,
		Category: category,
		Title:    title,
		Message:  message,
		Context:  fields,
		At:       now,
	}

	// 日志渠道永远在线
	logger.Warn("[Notify] "+title,
		logger.Pair("level", level),
		logger.Pair("category", category),
		logger.Pair("message", message),
		logger.Pair("context", fields))

	var deliverErr error
	for _, ch := range s.channels {
		if err := ch.Deliver(ctx, alert); err != nil {
			deliverErr = multierr.Append(deliverErr, fmt.Errorf("channel %s: %w", ch.Name(), err))
		}
	}
	if deliverErr != nil {
		logger.Errorf("[Notify] delivery incomplete: %v", deliverErr)
		return false
	}
	return true
}
