package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/commforge/pulse/internal/models"
)

const discordSenderName = "discord"

// DiscordAPI is the slice of the discordgo session the sender needs
// (allows mocking in tests). *discordgo.Session satisfies it.
type DiscordAPI interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordSender delivers notifications as Discord direct messages.
type DiscordSender struct {
	api DiscordAPI
}

// NewDiscordSender wraps an open discord session.
func NewDiscordSender(api DiscordAPI) *DiscordSender {
	return &DiscordSender{api: api}
}

func (d *DiscordSender) Name() string { return discordSenderName }

// SendDirect opens (or reuses) the DM channel with the user and sends text.
func (d *DiscordSender) SendDirect(ctx context.Context, userID, text string) (*models.SendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	channel, err := d.api.UserChannelCreate(userID)
	if err != nil {
		return nil, fmt.Errorf("open dm channel for %s: %w", userID, err)
	}

	msg, err := d.api.ChannelMessageSend(channel.ID, text)
	if err != nil {
		return nil, fmt.Errorf("send dm to %s: %w", userID, err)
	}

	ts := time.Now()
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp
	}
	return &models.SendReceipt{MessageID: msg.ID, Timestamp: ts, Content: msg.Content}, nil
}

// Broadcast posts text to a guild channel.
func (d *DiscordSender) Broadcast(ctx context.Context, channelID, text string) (*models.SendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg, err := d.api.ChannelMessageSend(channelID, text)
	if err != nil {
		return nil, fmt.Errorf("broadcast to %s: %w", channelID, err)
	}

	ts := time.Now()
	if !msg.Timestamp.IsZero() {
		ts = msg.Timestamp
	}
	return &models.SendReceipt{MessageID: msg.ID, Timestamp: ts, Content: msg.Content}, nil
}
