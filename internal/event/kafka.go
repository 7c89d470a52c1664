package event

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const defaultTopic = "storefront.orders"

type KafkaPublisher struct {
	writer *kafka.Writer
}

// brokersCSVは "host1:9092,host2:9092" 形式。
func NewKafkaPublisher(brokersCSV string) *KafkaPublisher {
	brokers := []string{}
	for _, b := range strings.Split(brokersCSV, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        defaultTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ev OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 同じ注文のイベントは同じパーティションに載せる
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OrderID, 10)),
		Value: data,
		Time:  ev.CreatedAt,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// ブローカー未設定のとき用
type NoopPublisher struct{}

func (NoopPublisher) Publish(ev OrderEvent) error { return nil }
func (NoopPublisher) Close() error                { return nil }
