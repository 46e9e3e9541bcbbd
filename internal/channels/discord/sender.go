// Package discord delivers medication reminders to Discord channels
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/gmsas95/medtracker/internal/reminders"
	"github.com/gmsas95/medtracker/internal/security"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// maxMessageLen is Discord's message size limit.
const maxMessageLen = 2000

// Config holds Discord delivery configuration
type Config struct {
	Token    string
	Enabled  bool
	Channels []string // channel ids that receive reminders
}

type session interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender posts reminders to every configured channel over the REST API.
// It never opens a gateway connection.
type Sender struct {
	session  session
	channels []string
	logger   *zap.Logger
}

// NewSender creates a new Discord sender
func NewSender(cfg Config, logger *zap.Logger) (*Sender, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("discord needs at least one channel id")
	}

	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	return &Sender{
		session:  s,
		channels: cfg.Channels,
		logger:   logger,
	}, nil
}

// Deliver implements reminders.Deliverer.
func (s *Sender) Deliver(ctx context.Context, r reminders.Reminder) error {
	text := fmt.Sprintf("💊 **%s**", r.Title)
	if r.Body != "" {
		text += "\n" + r.Body
	}

	var errs error
	for _, ch := range s.channels {
		for _, part := range splitMessage(text, maxMessageLen) {
			_, err := s.session.ChannelMessageSend(ch, part, discordgo.WithContext(ctx))
			if err != nil {
				err = security.RedactError(err)
				s.logger.Warn("Discord send failed",
					zap.String("channel", ch),
					zap.String("identifier", r.Identifier),
					zap.Error(err))
				errs = multierr.Append(errs, fmt.Errorf("channel %s: %w", ch, err))
				break
			}
		}
	}
	return errs
}

// splitMessage splits a message into chunks under max length
func splitMessage(text string, maxLen int) []string {
	var parts []string
	var current strings.Builder

	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
			parts = append(parts, line[:maxLen])
			line = line[maxLen:]
		}
		if current.Len() > 0 && current.Len()+len(line)+1 > maxLen {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}
