package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/commforge/pulse/internal/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramSenderName = "telegram"

// TelegramBot is the slice of the bot API the sender uses (allows mocking).
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers notifications over Telegram. User ids are chat ids
// in decimal form.
type TelegramSender struct {
	bot TelegramBot
}

// NewTelegramSender creates a sender from a bot token.
func NewTelegramSender(token string) (*TelegramSender, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSender{bot: bot}, nil
}

// NewTelegramSenderWithBot wraps an existing bot (for testing).
func NewTelegramSenderWithBot(bot TelegramBot) *TelegramSender {
	return &TelegramSender{bot: bot}
}

func (t *TelegramSender) Name() string { return telegramSenderName }

func (t *TelegramSender) SendDirect(ctx context.Context, userID, text string) (*models.SendReceipt, error) {
	return t.send(ctx, userID, text)
}

func (t *TelegramSender) Broadcast(ctx context.Context, channelID, text string) (*models.SendReceipt, error) {
	return t.send(ctx, channelID, text)
}

func (t *TelegramSender) send(ctx context.Context, chat, text string) (*models.SendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chat, err)
	}

	sent, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return nil, fmt.Errorf("send telegram message: %w", err)
	}

	return &models.SendReceipt{
		MessageID: strconv.Itoa(sent.MessageID),
		Timestamp: time.Unix(int64(sent.Date), 0),
		Content:   sent.Text,
	}, nil
}
