package notify

import (
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"coachdesk/internal/events"
)

// TelegramSender is the slice of the bot API the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes admin alerts for domain events to the configured
// manager chats.
type TelegramNotifier struct {
	bot     TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramNotifier(bot TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:     bot,
		chatIDs: chatIDs,
		logger:  logger,
	}
}

// SubscribeAll wires the notifier onto the event bus.
func (n *TelegramNotifier) SubscribeAll(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingStatusChanged, n.onBookingStatusChanged)
	bus.Subscribe(events.EventPaymentsSynced, n.onPaymentsSynced)
	bus.Subscribe(events.EventPayoutRunGenerated, n.onPayoutRunGenerated)
	bus.Subscribe(events.EventPayoutRunLocked, n.onPayoutRunLocked)
}

func (n *TelegramNotifier) onBookingStatusChanged(event *events.Event) error {
	var p events.BookingStatusPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}

	// Only warn-worthy changes reach the managers
	if len(p.Warnings) == 0 {
		return nil
	}

	text := fmt.Sprintf("Booking #%d (%s, %s): %s -> %s",
		p.BookingID, p.AthleteName, p.Date.Format("2006-01-02"), p.Field, p.Value)
	for _, w := range p.Warnings {
		text += "\n⚠ " + w
	}
	n.broadcast(text)
	return nil
}

func (n *TelegramNotifier) onPaymentsSynced(event *events.Event) error {
	var p events.PaymentsSyncedPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}

	if p.Failed == 0 {
		return nil
	}
	n.broadcast(fmt.Sprintf("Payment sync: %d updated, %d skipped, %d FAILED", p.Updated, p.Skipped, p.Failed))
	return nil
}

func (n *TelegramNotifier) onPayoutRunGenerated(event *events.Event) error {
	var p events.PayoutRunPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}

	text := fmt.Sprintf("Payout run #%d generated for %s..%s: %d sessions, %.2f owed",
		p.RunID, p.PeriodStart.Format("2006-01-02"), p.PeriodEnd.Format("2006-01-02"),
		p.TotalSessions, float64(p.TotalOwedCents)/100)
	if p.Failed > 0 {
		text += fmt.Sprintf("\n⚠ %d sessions could not be priced", p.Failed)
	}
	n.broadcast(text)
	return nil
}

func (n *TelegramNotifier) onPayoutRunLocked(event *events.Event) error {
	var p events.PayoutRunPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return err
	}

	n.broadcast(fmt.Sprintf("Payout run #%d locked: %d sessions, %.2f owed",
		p.RunID, p.TotalSessions, float64(p.TotalOwedCents)/100))
	return nil
}

func (n *TelegramNotifier) broadcast(text string) {
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("failed to send telegram alert")
		}
	}
}
