package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"planora/internal/domain"
	"planora/internal/events"
	"planora/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("notification queue is full")

// TelegramNotifier tells vendors and customers about booking changes made by
// the other party. Events are queued by the bus handler and sent by Start.
type TelegramNotifier struct {
	sender  domain.TelegramSender
	vendors domain.VendorRepository
	users   domain.UserRepository
	queue   chan *events.Event
	logger  *zerolog.Logger
}

func NewTelegramNotifier(sender domain.TelegramSender, vendors domain.VendorRepository, users domain.UserRepository, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		sender:  sender,
		vendors: vendors,
		users:   users,
		queue:   make(chan *events.Event, models.WorkerQueueSize),
		logger:  logger,
	}
}

// Register subscribes the notifier to every event on the bus.
func (n *TelegramNotifier) Register(bus *events.EventBus) {
	bus.Subscribe(events.AllEvents, n.enqueue)
}

func (n *TelegramNotifier) enqueue(e *events.Event) error {
	select {
	case n.queue <- e:
		return nil
	default:
		return fmt.Errorf("%w: dropped %s", ErrQueueFull, e.Type)
	}
}

// Start sends queued notifications until ctx is done.
func (n *TelegramNotifier) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-n.queue:
			hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := n.Handle(hctx, e); err != nil {
				n.logger.Error().Err(err).Str("event_type", e.Type).Msg("Failed to send notification")
			}
			cancel()
		}
	}
}

// Handle sends the notifications for one event.
func (n *TelegramNotifier) Handle(ctx context.Context, e *events.Event) error {
	if e.Type == events.EventMessageSent {
		var p events.MessageEventPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		chatID := n.userChat(ctx, p.ReceiverID)
		return n.send(chatID, fmt.Sprintf("💬 New message from %s:\n\n%s", p.SenderID, p.Text))
	}

	var p events.BookingEventPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	text := bookingText(e.Type, &p)
	if text == "" {
		return nil
	}

	var errs []error
	if notifyVendor(e.Type, models.Actor(p.Actor)) {
		errs = append(errs, n.send(n.vendorChat(ctx, p.VendorID), text))
	}
	if notifyCustomer(e.Type, models.Actor(p.Actor)) {
		errs = append(errs, n.send(n.userChat(ctx, p.CustomerID), text))
	}
	return errors.Join(errs...)
}

func (n *TelegramNotifier) send(chatID int64, text string) error {
	if chatID == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

func (n *TelegramNotifier) vendorChat(ctx context.Context, vendorID string) int64 {
	if n.vendors == nil || vendorID == "" {
		return 0
	}
	v, err := n.vendors.GetVendor(ctx, vendorID)
	if err != nil {
		n.logger.Debug().Err(err).Str("vendor_id", vendorID).Msg("Vendor chat lookup failed")
		return 0
	}
	return v.TelegramChatID
}

func (n *TelegramNotifier) userChat(ctx context.Context, userID string) int64 {
	if n.users == nil || userID == "" {
		return 0
	}
	u, err := n.users.GetUser(ctx, userID)
	if err != nil {
		n.logger.Debug().Err(err).Str("user_id", userID).Msg("User chat lookup failed")
		return 0
	}
	return u.TelegramChatID
}

// The party that acted is not told about its own action.
func notifyVendor(eventType string, actor models.Actor) bool {
	if eventType == events.EventBookingCreated {
		return true
	}
	return actor != models.ActorVendor
}

func notifyCustomer(eventType string, actor models.Actor) bool {
	if eventType == events.EventBookingCreated {
		return false
	}
	return actor != models.ActorCustomer
}

func bookingText(eventType string, p *events.BookingEventPayload) string {
	var b strings.Builder
	switch eventType {
	case events.EventBookingCreated:
		fmt.Fprintf(&b, "🆕 New booking request #%d", p.BookingID)
	case events.EventCounterOffered:
		fmt.Fprintf(&b, "💰 Counter offer on booking #%d", p.BookingID)
	case events.EventPriceAgreed:
		fmt.Fprintf(&b, "🤝 Price agreed on booking #%d", p.BookingID)
	case events.EventPaymentCompleted:
		fmt.Fprintf(&b, "✅ Payment received for booking #%d", p.BookingID)
	case events.EventBookingCompleted:
		fmt.Fprintf(&b, "🎉 Booking #%d completed", p.BookingID)
	case events.EventBookingCancelled:
		fmt.Fprintf(&b, "❌ Booking #%d cancelled", p.BookingID)
	case events.EventBookingStatusChanged:
		fmt.Fprintf(&b, "🔄 Booking #%d is now %s", p.BookingID, strings.ReplaceAll(p.To, "_", " "))
	default:
		return ""
	}

	if p.Price != "" {
		fmt.Fprintf(&b, "\n💵 Amount: %s", p.Price)
	}
	if p.Message != "" {
		fmt.Fprintf(&b, "\n💬 %s", p.Message)
	}
	return b.String()
}
