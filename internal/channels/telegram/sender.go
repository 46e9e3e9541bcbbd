// Package telegram delivers medication reminders to Telegram chats.
package telegram

import (
	"context"
	"fmt"

	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/security"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config holds Telegram delivery configuration
type Config struct {
	Token   string
	Enabled bool
	ChatIDs []int64 // chats that receive reminders
}

// botAPI is the part of tgbotapi.BotAPI the sender needs.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender posts reminders to every configured chat.
type Sender struct {
	api      botAPI
	chatIDs  []int64
	username string
	logger   *zap.Logger
}

// NewSender authorizes the bot token.
func NewSender(cfg Config, logger *zap.Logger) (*Sender, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if len(cfg.ChatIDs) == 0 {
		return nil, fmt.Errorf("telegram needs at least one chat id")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false

	logger.Info("Telegram reminders enabled",
		zap.String("username", api.Self.UserName),
		zap.Int("chats", len(cfg.ChatIDs)))

	return &Sender{
		api:      api,
		chatIDs:  cfg.ChatIDs,
		username: api.Self.UserName,
		logger:   logger,
	}, nil
}

func newSender(api botAPI, chatIDs []int64, logger *zap.Logger) *Sender {
	return &Sender{api: api, chatIDs: chatIDs, logger: logger}
}

// Deliver implements reminders.Deliverer.
func (s *Sender) Deliver(ctx context.Context, r reminders.Reminder) error {
	var errs error
	for _, chatID := range s.chatIDs {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := s.sendMessage(chatID, format(r)); err != nil {
			// Transport errors carry the bot URL, token included.
			err = security.RedactError(err)
			s.logger.Warn("Telegram send failed",
				zap.Int64("chat_id", chatID),
				zap.String("identifier", r.Identifier),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errs
}

func (s *Sender) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := s.api.Send(msg); err != nil {
		// Medication names may contain markdown control characters.
		msg.ParseMode = ""
		if _, err = s.api.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func format(r reminders.Reminder) string {
	if r.Body == "" {
		return "💊 *" + r.Title + "*"
	}
	return "💊 *" + r.Title + "*\n" + r.Body
}

// Info returns sender information for status output
func (s *Sender) Info() map[string]interface{} {
	return map[string]interface{}{
		"enabled":  true,
		"username": s.username,
		"chats":    len(s.chatIDs),
	}
}
