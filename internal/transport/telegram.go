package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Telegram adapts the Transport boundary onto the Telegram bot API:
// long-poll updates feed Receive, quick-reply buttons become reply
// keyboards, attachments become photo messages.
type Telegram struct {
	api     *tgbotapi.BotAPI
	updates tgbotapi.UpdatesChannel
	log     *zap.Logger
}

func NewTelegram(token string, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("authorized on telegram", zap.String("account", api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	return &Telegram{
		api:     api,
		updates: api.GetUpdatesChan(u),
		log:     logger,
	}, nil
}

func (t *Telegram) Receive(ctx context.Context) (Incoming, error) {
	for {
		select {
		case <-ctx.Done():
			return Incoming{}, ctx.Err()
		case update, ok := <-t.updates:
			if !ok {
				return Incoming{}, errors.New("telegram update channel closed")
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			return Incoming{
				RequesterID: update.Message.From.ID,
				Text:        update.Message.Text,
				Addressed:   update.Message.Chat.IsPrivate(),
			}, nil
		}
	}
}

func (t *Telegram) Send(ctx context.Context, requesterID int64, out Outgoing) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chunks := SplitText(out.Text, MaxMessageLen)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(requesterID, chunk)
		if i == len(chunks)-1 {
			msg.ReplyMarkup = t.replyMarkup(out)
		}
		if _, err := t.api.Send(msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}

	for _, ref := range out.Attachments {
		photo := tgbotapi.NewPhoto(requesterID, photoFile(ref))
		if _, err := t.api.Send(photo); err != nil {
			// A broken media reference should not kill the turn.
			t.log.Warn("failed to send attachment",
				zap.Int64("requester_id", requesterID), zap.String("ref", ref), zap.Error(err))
		}
	}

	return nil
}

func (t *Telegram) replyMarkup(out Outgoing) interface{} {
	if len(out.Buttons) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(out.Buttons))
		for _, row := range out.Buttons {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.NewReplyKeyboard(rows...)
	}
	if out.ClearButtons {
		return tgbotapi.NewRemoveKeyboard(false)
	}
	return nil
}

func photoFile(ref string) tgbotapi.RequestFileData {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tgbotapi.FileURL(ref)
	}
	return tgbotapi.FileID(ref)
}
