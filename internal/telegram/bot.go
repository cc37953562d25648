// Package telegram provides the Telegram bot for admin notifications and commands.
package telegram

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// callbackDigestOff is the inline button payload that pauses the digest.
const callbackDigestOff = "digest_off"

// Bot wraps the Telegram bot API.
type Bot struct {
	api         *tgbotapi.BotAPI
	adminChatID int64
	handler     *CommandHandler
}

// New creates a Bot. Returns nil if token is empty (Telegram disabled).
func New(token string, adminChatID int64, handler *CommandHandler) (*Bot, error) {
	if token == "" {
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram.New: %w", err)
	}
	return &Bot{api: api, adminChatID: adminChatID, handler: handler}, nil
}

// Send sends a plain text message to the admin chat.
func (b *Bot) Send(msg string) error {
	if b == nil {
		return nil
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(b.adminChatID, msg)); err != nil {
		return fmt.Errorf("telegram.Send: %w", err)
	}
	return nil
}

// SendDigest sends the daily digest with a button that pauses it.
func (b *Bot) SendDigest(msg string) error {
	if b == nil {
		return nil
	}
	m := tgbotapi.NewMessage(b.adminChatID, msg)
	m.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔕 Pause digest", callbackDigestOff),
		),
	)
	if _, err := b.api.Send(m); err != nil {
		return fmt.Errorf("telegram.SendDigest: %w", err)
	}
	return nil
}

// Start begins polling for updates. Must be called in a goroutine.
// Only processes messages from adminChatID.
func (b *Bot) Start(ctx context.Context) {
	if b == nil {
		return
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery != nil {
				b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
			msg := update.Message
			if msg == nil || msg.Chat.ID != b.adminChatID || !msg.IsCommand() || b.handler == nil {
				continue
			}
			b.reply(msg.Chat.ID, b.handler.Reply(ctx, msg.Command(), msg.CommandArguments()))
		}
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	text := ""
	if query.Message != nil && query.Message.Chat.ID == b.adminChatID && b.handler != nil {
		text = b.handler.HandleCallback(ctx, query.Data)
	}
	ack := tgbotapi.NewCallback(query.ID, text)
	if _, err := b.api.Request(ack); err != nil {
		log.Printf("telegram: ack callback: %v", err)
	}
}

// reply sends a text reply to a message.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("telegram.reply: %v", err)
	}
}
