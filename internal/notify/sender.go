// Package notify 负责出价相关的旁路通知（被超价、成交），目前经 Whapi 发 WhatsApp。
// 通知失败只记录日志，不影响出价与结拍结果。
package notify

//go:generate mockgen -destination=mock/notify.go -package=mock . Sender,Directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Sender 发送一条文本消息到手机号。
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// WhapiSender 调用 Whapi 的 /messages/text 接口。
type WhapiSender struct {
	client  *resty.Client
	baseURL string
}

func NewWhapiSender(baseURL, token string) *WhapiSender {
	client := resty.New().
		SetTimeout(10*time.Second).
		SetAuthToken(token).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &WhapiSender{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type whapiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (w *WhapiSender) Send(ctx context.Context, phone, text string) error {
	to := NormalizePhone(phone)
	if to == "" {
		return fmt.Errorf("whapi: invalid phone %q", phone)
	}

	var apiErr whapiError
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"to": to, "body": text}).
		SetError(&apiErr).
		Post(w.baseURL + "/messages/text")
	if err != nil {
		return fmt.Errorf("whapi: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return fmt.Errorf("whapi: status %d: %s", resp.StatusCode(), apiErr.Error.Message)
		}
		return fmt.Errorf("whapi: status %d", resp.StatusCode())
	}
	return nil
}

// NoopSender 未配置 WHAPI_TOKEN 时使用，只写日志。
type NoopSender struct {
	log *zap.Logger
}

func NewNoopSender(log *zap.Logger) *NoopSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoopSender{log: log}
}

func (n *NoopSender) Send(_ context.Context, phone, text string) error {
	n.log.Info("notification skipped, no channel configured",
		zap.String("phone", maskPhone(phone)),
		zap.Int("length", len(text)))
	return nil
}

// NormalizePhone 只保留数字（Whapi 的 to 字段不带 + 号与分隔符）。
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func maskPhone(phone string) string {
	p := NormalizePhone(phone)
	if len(p) <= 4 {
		return p
	}
	return strings.Repeat("*", len(p)-4) + p[len(p)-4:]
}
