package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"booking-engine/internal/model"
	"booking-engine/internal/store"
)

// BotSender is the part of *tgbotapi.BotAPI the channel needs.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel messages users who linked a Telegram chat.
type TelegramChannel struct {
	store store.Store
	bot   BotSender
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(s store.Store, bot BotSender) *TelegramChannel {
	return &TelegramChannel{store: s, bot: bot}
}

// SendSlotAvailable implements Notifier. Users without a linked chat are skipped.
func (c *TelegramChannel) SendSlotAvailable(ctx context.Context, job SlotAvailable) error {
	chat, err := c.store.TelegramChatForUser(ctx, job.UserID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chat.ChatID, "<b>A spot opened up!</b>\n"+slotMessage(job))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram message to chat %d: %w", chat.ChatID, err)
	}
	return nil
}

// ChatLinker links Telegram chats to users. The booking site sends users to
// the bot with a deep link, which arrives as "/start <user id>".
type ChatLinker struct {
	store store.Store
	bot   BotSender
}

// NewChatLinker creates a ChatLinker.
func NewChatLinker(s store.Store, bot BotSender) *ChatLinker {
	return &ChatLinker{store: s, bot: bot}
}

// Run handles updates until ctx ends or the channel closes.
func (l *ChatLinker) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := l.Handle(ctx, update); err != nil {
				log.Printf("Error handling telegram update %d: %v", update.UpdateID, err)
			}
		}
	}
}

// Handle processes one update. Anything but /start is ignored.
func (l *ChatLinker) Handle(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() || msg.Command() != "start" {
		return nil
	}

	userID := strings.TrimSpace(msg.CommandArguments())
	if userID == "" {
		return l.reply(msg.Chat.ID, "Open the Telegram link on the booking site to connect your account.")
	}
	if err := l.store.SaveTelegramChat(ctx, &model.TelegramChat{UserID: userID, ChatID: msg.Chat.ID}); err != nil {
		return err
	}
	return l.reply(msg.Chat.ID, "Connected. You will get a message here when a waitlisted place opens up.")
}

func (l *ChatLinker) reply(chatID int64, text string) error {
	if _, err := l.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("telegram reply to chat %d: %w", chatID, err)
	}
	return nil
}
