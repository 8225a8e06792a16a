// Package notify posts alerts for closed trades to a webhook.
package notify

import (
	"context"
	"fmt"
	"time"

	"options-momentum-bot/internal/api"
	"options-momentum-bot/internal/interfaces"
	"options-momentum-bot/internal/types"
)

type Level string

const (
	Info    Level = "INFO"
	Warning Level = "WARNING"
)

type Alert struct {
	Level   Level              `json:"level"`
	Title   string             `json:"title"`
	Message string             `json:"message"`
	Trade   *types.TradeRecord `json:"trade,omitempty"`
	Time    time.Time          `json:"ts"`
}

type Webhook struct {
	client *api.Client
	url    string
	now    func() time.Time
}

// NewWebhook posts alerts as JSON to url.
func NewWebhook(url string, opts ...api.ClientOption) *Webhook {
	base := []api.ClientOption{api.WithTimeout(10 * time.Second)}
	return &Webhook{
		client: api.NewClient(append(base, opts...)...),
		url:    url,
		now:    time.Now,
	}
}

func (w *Webhook) Send(ctx context.Context, a Alert) error {
	if a.Time.IsZero() {
		a.Time = w.now().UTC()
	}
	if err := w.client.PostJSON(ctx, w.url, a, nil); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// TradeSink alerts on every SELL that closed a position.
type TradeSink struct {
	webhook *Webhook
}

var _ interfaces.TradeSink = (*TradeSink)(nil)

func NewTradeSink(w *Webhook) *TradeSink { return &TradeSink{webhook: w} }

func (s *TradeSink) AppendTrade(ctx context.Context, rec types.TradeRecord) error {
	if !rec.Closed() {
		return nil
	}
	level := Info
	if *rec.NetProfit < 0 {
		level = Warning
	}
	return s.webhook.Send(ctx, Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s closed %s", rec.Leg, rec.Instrument.Key),
		Message: fmt.Sprintf("exit %.2f entry %.2f net %.2f day %.2f (%s)", rec.Price, deref(rec.EntryPrice), *rec.NetProfit, deref(rec.DayPnL), rec.Reason),
		Trade:   &rec,
		Time:    rec.Time,
	})
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
