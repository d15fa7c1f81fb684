package notify

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"go.uber.org/zap"
)

var (
	outbidTmpl = template.Must(template.New("outbid").Funcs(funcs).Parse(
		`Hi {{.Name}}, your bid of {{money .PreviousAmount}} on "{{.Title}}" has been outbid. ` +
			`The new highest bid is {{money .NewAmount}}. Bid again before auction #{{.AuctionID}} closes.`))

	winnerTmpl = template.Must(template.New("winner").Funcs(funcs).Parse(
		`Congratulations {{.Name}}! You won "{{.Title}}" (auction #{{.AuctionID}}) at {{money .Amount}}. ` +
			`Your pickup code for delivery #{{.DeliveryID}} is now available in your account.`))

	funcs = template.FuncMap{"money": FormatMoney}
)

// OutbidNotice 被超价通知的内容。
type OutbidNotice struct {
	UserID         string
	AuctionID      uint
	Title          string
	PreviousAmount int64
	NewAmount      int64
}

// WinnerNotice 成交通知的内容。
type WinnerNotice struct {
	UserID     string
	AuctionID  uint
	Title      string
	Amount     int64
	DeliveryID uint
}

type Notifier struct {
	dir    Directory
	sender Sender
	log    *zap.Logger

	outbid *template.Template
	winner *template.Template
}

type Option func(*Notifier)

// WithMoney 替换通知中的金额格式，默认 DefaultMoney。
func WithMoney(m Money) Option {
	return func(n *Notifier) {
		money := template.FuncMap{"money": m.Format}
		n.outbid = template.Must(outbidTmpl.Clone()).Funcs(money)
		n.winner = template.Must(winnerTmpl.Clone()).Funcs(money)
	}
}

func NewNotifier(dir Directory, sender Sender, log *zap.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{dir: dir, sender: sender, log: log, outbid: outbidTmpl, winner: winnerTmpl}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) NotifyOutbid(ctx context.Context, in OutbidNotice) error {
	c, err := n.dir.Lookup(ctx, in.UserID)
	if err != nil {
		return err
	}
	text, err := render(n.outbid, struct {
		OutbidNotice
		Name string
	}{in, firstName(c)})
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, c.Phone, text); err != nil {
		return err
	}
	n.log.Info("outbid notification sent",
		zap.Uint("auction_id", in.AuctionID),
		zap.String("user_id", in.UserID))
	return nil
}

func (n *Notifier) NotifyWinner(ctx context.Context, in WinnerNotice) error {
	c, err := n.dir.Lookup(ctx, in.UserID)
	if err != nil {
		return err
	}
	text, err := render(n.winner, struct {
		WinnerNotice
		Name string
	}{in, firstName(c)})
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, c.Phone, text); err != nil {
		return err
	}
	n.log.Info("winner notification sent",
		zap.Uint("auction_id", in.AuctionID),
		zap.String("user_id", in.UserID))
	return nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func firstName(c Contact) string {
	if f := strings.Fields(c.FullName); len(f) > 0 {
		return f[0]
	}
	return "bidder"
}

// Money 金额显示格式。金额一律以最小货币单位存储，MinorUnits 为其小数位数。
type Money struct {
	Symbol     string
	MinorUnits int
}

// DefaultMoney 美元式写法：$1,234.50。
var DefaultMoney = Money{Symbol: "$", MinorUnits: 2}

// FormatMoney 按 DefaultMoney 格式化以分为单位的金额。
func FormatMoney(cents int64) string { return DefaultMoney.Format(cents) }

func (m Money) Format(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	scale := int64(1)
	for i := 0; i < m.MinorUnits; i++ {
		scale *= 10
	}
	whole := strconv.FormatInt(amount/scale, 10)
	var b strings.Builder
	b.WriteString(m.Symbol)
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if m.MinorUnits > 0 {
		fmt.Fprintf(&b, ".%0*d", m.MinorUnits, amount%scale)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
