package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/config"
)

// RocketPublisher 把事件发送到RocketMQ主题，标签为事件类型，键为事件ID
type RocketPublisher struct {
	producer rocketmq.Producer
	topic    string
	logger   *zap.Logger
}

// NewRocketPublisher 创建并启动RocketMQ生产者
func NewRocketPublisher(cfg config.RocketMQConfig, logger *zap.Logger) (*RocketPublisher, error) {
	if len(cfg.NameServers) == 0 {
		return nil, fmt.Errorf("rocketmq: no name server configured")
	}

	p, err := rocketmq.NewProducer(
		producer.WithNameServer(cfg.NameServers),
		producer.WithGroupName(cfg.GroupName),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("create rocketmq producer: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start rocketmq producer: %w", err)
	}

	logger.Info("rocketmq producer started",
		zap.Strings("name_servers", cfg.NameServers), zap.String("topic", cfg.Topic))
	return &RocketPublisher{producer: p, topic: cfg.Topic, logger: logger}, nil
}

// Publish 同步发送事件
func (p *RocketPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}

	msg := primitive.NewMessage(p.topic, body)
	msg.WithTag(string(ev.Type))
	msg.WithKeys([]string{ev.ID})

	res, err := p.producer.SendSync(ctx, msg)
	if err != nil {
		return fmt.Errorf("send event %s to %s: %w", ev.ID, p.topic, err)
	}
	if res.Status != primitive.SendOK {
		return fmt.Errorf("send event %s to %s: status %d", ev.ID, p.topic, res.Status)
	}
	p.logger.Debug("event sent", zap.String("event_id", ev.ID), zap.String("msg_id", res.MsgID))
	return nil
}

// Close 关闭生产者
func (p *RocketPublisher) Close() error {
	return p.producer.Shutdown()
}
