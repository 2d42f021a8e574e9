package service

import (
	"context"
	"strings"
	"time"

	"whatsmoney/backend/messaging/models"
	"whatsmoney/backend/messaging/repository"
	"whatsmoney/backend/pkg/errors"
	"whatsmoney/backend/pkg/logger"
)

// RecipientDirectory is the slice of the user directory the send path
// needs: existence and active-status of the recipient.
type RecipientDirectory interface {
	IsActive(ctx context.Context, id uint) (bool, error)
}

// Publisher receives every successfully stored message for fan-out to
// live subscriptions
type Publisher interface {
	Publish(message models.Message)
}

// MessageService is the core function-call API over the message store.
// Every operation takes the acting user id explicitly; nothing here reads
// ambient session state.
type MessageService struct {
	repo             repository.MessageRepository
	directory        RecipientDirectory
	publisher        Publisher
	log              *logger.Logger
	maxContentLength int
}

// MessageServiceOption customizes a MessageService
type MessageServiceOption func(*MessageService)

// WithMaxContentLength caps the accepted message body size
func WithMaxContentLength(n int) MessageServiceOption {
	return func(s *MessageService) { s.maxContentLength = n }
}

// NewMessageService wires the core service
func NewMessageService(repo repository.MessageRepository, directory RecipientDirectory, publisher Publisher, log *logger.Logger, opts ...MessageServiceOption) *MessageService {
	s := &MessageService{
		repo:             repo,
		directory:        directory,
		publisher:        publisher,
		log:              log.WithComponent("messaging.service"),
		maxContentLength: 4096,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendRequest carries the fields of a send operation
type SendRequest struct {
	Sender      uint
	Recipient   uint
	Content     string
	MessageType models.MessageType
	FileURL     string
}

// Send validates and persists a message, then publishes it for live
// delivery. Validation and recipient checks run before any write; a failed
// send leaves no partial row.
func (s *MessageService) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	if req.MessageType == "" {
		req.MessageType = models.MessageTypeText
	}

	if err := s.validate(req); err != nil {
		return nil, err
	}

	active, err := s.directory.IsActive(ctx, req.Recipient)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	if !active {
		return nil, errors.NewNotFoundError("recipient not found or inactive")
	}

	message := &models.Message{
		SenderID:    req.Sender,
		RecipientID: req.Recipient,
		Content:     strings.TrimSpace(req.Content),
		MessageType: req.MessageType,
		FileURL:     req.FileURL,
	}

	if err := s.repo.Append(ctx, message); err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}

	if s.publisher != nil {
		s.publisher.Publish(*message)
	}

	return message, nil
}

func (s *MessageService) validate(req SendRequest) error {
	if req.Recipient == 0 {
		return errors.NewValidationError("recipient is required")
	}
	if req.Sender == req.Recipient {
		return errors.NewValidationError("cannot message yourself")
	}
	if !req.MessageType.Valid() {
		return errors.NewValidationError("unsupported message type")
	}
	if req.MessageType == models.MessageTypeText && strings.TrimSpace(req.Content) == "" {
		return errors.NewValidationError("content is required for text messages")
	}
	if req.MessageType != models.MessageTypeText && req.FileURL == "" {
		return errors.NewValidationError("file_url is required for non-text messages")
	}
	if s.maxContentLength > 0 && len(req.Content) > s.maxContentLength {
		return errors.NewValidationError("content exceeds maximum length")
	}
	return nil
}

// History returns the conversation between viewer and withUser, ascending
// by (created_at, id). since restricts to messages created after it.
func (s *MessageService) History(ctx context.Context, viewer, withUser uint, since *time.Time) ([]models.Message, error) {
	if withUser == 0 {
		return nil, errors.NewValidationError("counterpart is required")
	}
	messages, err := s.repo.ListBetween(ctx, viewer, withUser, since)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	return messages, nil
}

// Conversations returns the viewer's conversation list, most recent
// activity first
func (s *MessageService) Conversations(ctx context.Context, viewer uint) ([]models.Conversation, error) {
	conversations, err := s.repo.ListConversations(ctx, viewer)
	if err != nil {
		return nil, errors.NewStoreUnavailableError(err)
	}
	return conversations, nil
}
