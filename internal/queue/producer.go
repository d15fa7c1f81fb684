package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	rediskey "customs_auction/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// Publisher 发布一条出价事件。
type Publisher interface {
	Publish(ctx context.Context, ev BidEvent) error
}

// StreamPublisher 写 Redis outbox stream，由 Relay 异步转发 Kafka。
// HTTP 与定时任务只依赖它，Kafka 不可用时请求路径不受影响。
type StreamPublisher struct {
	rdb    rd.Cmdable
	stream string
}

func NewStreamPublisher(rdb rd.Cmdable, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream}
}

func (p *StreamPublisher) Publish(ctx context.Context, ev BidEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	_, err := rediskey.AppendBidEvent(ctx, p.rdb, p.stream, ev.Values())
	return err
}

// Producer 封装 Kafka 写入器。
type Producer struct {
	w *kafka.Writer
}

// NewProducer 创建生产者并配置可靠性参数：
// - Hash + Key: 同一拍卖的事件落到同一分区，保持顺序。
// - RequireAll: 等待 ISR 副本确认，降低消息丢失风险。
// - MaxAttempts/Timeout: 控制重试与超时边界。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步写入一条事件，key 为 auction_id。
func (p *Producer) Publish(ctx context.Context, ev BidEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(ev.AuctionID), 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
}
