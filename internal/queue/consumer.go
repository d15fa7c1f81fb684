package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"customs_auction/internal/notify"
	rediskey "customs_auction/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Notifier 发送出价相关通知，由 notify.Notifier 实现。
type Notifier interface {
	NotifyOutbid(ctx context.Context, in notify.OutbidNotice) error
	NotifyWinner(ctx context.Context, in notify.WinnerNotice) error
}

// NotificationHandler 处理单条事件：按 event_id 去重后发送通知。
// 发送失败会撤销去重标记，同一事件再次处理时可以重发。
type NotificationHandler struct {
	rdb      *rd.Client
	notifier Notifier
	log      *zap.Logger
}

func NewNotificationHandler(rdb *rd.Client, notifier Notifier, log *zap.Logger) *NotificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationHandler{rdb: rdb, notifier: notifier, log: log}
}

// Handle 返回 sent=false 表示重复事件或无联系人而跳过。
func (h *NotificationHandler) Handle(ctx context.Context, ev BidEvent) (bool, error) {
	if err := ev.Validate(); err != nil {
		return false, err
	}
	first, err := rediskey.MarkNotifiedOnce(ctx, h.rdb, ev.EventID)
	if err != nil {
		return false, fmt.Errorf("mark notified: %w", err)
	}
	if !first {
		h.log.Debug("duplicate event skipped", zap.String("event_id", ev.EventID))
		return false, nil
	}

	switch ev.Type {
	case EventOutbid:
		err = h.notifier.NotifyOutbid(ctx, notify.OutbidNotice{
			UserID:         ev.UserID,
			AuctionID:      ev.AuctionID,
			Title:          ev.Title,
			PreviousAmount: ev.PreviousAmount,
			NewAmount:      ev.Amount,
		})
	case EventWon:
		err = h.notifier.NotifyWinner(ctx, notify.WinnerNotice{
			UserID:     ev.UserID,
			AuctionID:  ev.AuctionID,
			Title:      ev.Title,
			Amount:     ev.Amount,
			DeliveryID: ev.DeliveryID,
		})
	}
	if errors.Is(err, notify.ErrNoContact) {
		h.log.Info("no contact for notification",
			zap.String("event_id", ev.EventID),
			zap.String("user_id", ev.UserID))
		return false, nil
	}
	if err != nil {
		if unmarkErr := rediskey.UnmarkNotified(ctx, h.rdb, ev.EventID); unmarkErr != nil {
			h.log.Warn("unmark notified failed", zap.String("event_id", ev.EventID), zap.Error(unmarkErr))
		}
		return false, err
	}
	return true, nil
}

// maxHandleAttempts 单条消息的处理次数上限，用完后记日志并提交位移，避免卡住分区。
const maxHandleAttempts = 3

var handleBackoff = 500 * time.Millisecond

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r   messageReader
	h   *NotificationHandler
	log *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, h *NotificationHandler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1e3,
		MaxBytes: 1e6,
	}), h, log.With(zap.String("topic", topic)))
}

func newConsumer(r messageReader, h *NotificationHandler, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{r: r, h: h, log: log.With(zap.String("component", "consumer"))}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run 阻塞直到 ctx 取消或 reader 关闭。
// 位移在消息处理完（发送成功、重复、无联系人或重试用完）之后才提交。
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer fetch: %w", err)
		}
		c.process(ctx, m)
		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("consumer commit: %w", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, m kafka.Message) {
	var ev BidEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.Warn("consumer unmarshal", zap.Int64("offset", m.Offset), zap.Error(err))
		return
	}
	var err error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		if _, err = c.h.Handle(ctx, ev); err == nil {
			return
		}
		c.log.Warn("notification attempt failed",
			zap.String("event_id", ev.EventID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == maxHandleAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * handleBackoff):
		}
	}
	c.log.Error("notification failed",
		zap.String("event_id", ev.EventID),
		zap.String("type", string(ev.Type)),
		zap.Int64("offset", m.Offset),
		zap.Error(err))
}
