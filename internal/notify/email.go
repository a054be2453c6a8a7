package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anjiru/duka-pos/internal/common"
	"github.com/anjiru/duka-pos/internal/db"
	"github.com/anjiru/duka-pos/internal/events"
)

// AlertNotifier emails the shop owner about operational events, currently
// low-stock warnings. It implements events.Notifier.
type AlertNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	Recipient    string
	TopicToggles map[string]bool
}

// Notify implements the events.Notifier interface.
func (n AlertNotifier) Notify(_ context.Context, event db.DomainEvent) error {
	if !n.Enabled || n.Mail == nil {
		return nil
	}
	to := strings.TrimSpace(n.Recipient)
	if to == "" {
		return nil
	}
	if n.TopicToggles != nil {
		if enabled, ok := n.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	if event.Topic != events.TopicStockLow {
		return nil
	}
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("alert notify: decode payload: %w", err)
		}
	}
	name := payloadString(payload, "name")
	if name == "" {
		name = payloadString(payload, "itemId")
	}
	subject := "Low stock alert"
	if name != "" {
		subject = fmt.Sprintf("Low stock: %s", name)
	}
	body := lowStockBody(name, payload)
	return n.Mail.Send(to, subject, body)
}

func payloadString(payload map[string]any, key string) string {
	if val, ok := payload[key]; ok {
		if s, ok := val.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func lowStockBody(name string, payload map[string]any) string {
	var b strings.Builder
	b.WriteString("<p>An item has dropped to or below its restock threshold.</p>")
	if name != "" {
		fmt.Fprintf(&b, "<p><strong>%s</strong></p>", name)
	}
	if qty, ok := payload["quantity"]; ok {
		fmt.Fprintf(&b, "<p>Units remaining: %v</p>", qty)
	}
	b.WriteString("<p>Restock it from the inventory screen.</p>")
	return b.String()
}
