package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dujiao-next/commission-engine/internal/config"

	"github.com/IBM/sarama"
)

// KafkaPublisher 将事件写入 Kafka 主题
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaSaramaConfig 生成生产者配置
func NewKafkaSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll // 等待所有副本确认
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	return cfg
}

// NewKafkaPublisher 创建 Kafka 事件投递
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, broker := range cfg.Brokers {
		if trimmed := strings.TrimSpace(broker); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewKafkaSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer 使用现有生产者创建事件投递
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = "commission-events"
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish 发送事件
func (p *KafkaPublisher) Publish(_ context.Context, event Event) error {
	msg, err := buildKafkaMessage(p.topic, event)
	if err != nil {
		return err
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send kafka message: %w", err)
	}
	return nil
}

// Close 关闭生产者
func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func buildKafkaMessage(topic string, event Event) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_name"), Value: []byte(event.Name)},
			{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		},
	}, nil
}
