package service

import (
	"context"
	"strings"
	"time"

	"planora/internal/domain"
	"planora/internal/events"
	"planora/internal/models"

	"github.com/rs/zerolog"
)

const maxMessageLength = 4000

// MessageService stores direct messages between users, rate limited per
// sender.
type MessageService struct {
	repo     domain.MessageRepository
	limiter  domain.CartRepository
	eventBus domain.EventPublisher
	limit    int
	window   time.Duration
	logger   *zerolog.Logger
}

func NewMessageService(
	repo domain.MessageRepository,
	limiter domain.CartRepository,
	eventBus domain.EventPublisher,
	limit int,
	window time.Duration,
	logger *zerolog.Logger,
) *MessageService {
	if limit <= 0 {
		limit = models.RateLimitMessages
	}
	if window <= 0 {
		window = models.RateLimitWindow * time.Second
	}
	return &MessageService{
		repo:     repo,
		limiter:  limiter,
		eventBus: eventBus,
		limit:    limit,
		window:   window,
		logger:   logger,
	}
}

func (s *MessageService) SendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	msg.SenderID = strings.TrimSpace(msg.SenderID)
	msg.ReceiverID = strings.TrimSpace(msg.ReceiverID)
	msg.Text = strings.TrimSpace(msg.Text)
	switch {
	case msg.SenderID == "" || msg.ReceiverID == "":
		return nil, validationError("senderId and receiverId are required")
	case msg.SenderID == msg.ReceiverID:
		return nil, validationError("cannot message yourself")
	case msg.Text == "":
		return nil, validationError("text is required")
	case len(msg.Text) > maxMessageLength:
		return nil, validationError("text exceeds %d characters", maxMessageLength)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.CheckRateLimit(ctx, "messages:"+msg.SenderID, s.limit, s.window)
		if err != nil {
			// лимитер недоступен, сообщение не блокируем
			s.logger.Warn().Err(err).Str("sender_id", msg.SenderID).Msg("Rate limit check failed")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	msg.ID = 0
	msg.ConversationID = ""
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	if s.eventBus != nil {
		payload := events.MessageEventPayload{
			MessageID:  msg.ID,
			SenderID:   msg.SenderID,
			ReceiverID: msg.ReceiverID,
			BookingID:  msg.BookingID,
			Text:       msg.Text,
		}
		if err := s.eventBus.PublishJSON(events.EventMessageSent, payload); err != nil {
			s.logger.Error().Err(err).Int64("message_id", msg.ID).Msg("publish event error")
		}
	}
	return msg, nil
}

func (s *MessageService) GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	if userA == "" || userB == "" {
		return nil, validationError("both user ids are required")
	}
	return s.repo.GetConversation(ctx, userA, userB)
}
