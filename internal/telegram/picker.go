package telegram

import (
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	pageSize     = 10
	peerPrefix   = "PEER "
	pagePrefix   = "PAGE "
	pickerPrompt = "Please select a peer:"
)

// compactPeer shortens a hex username to fit callback data (64 bytes):
// "@@<hex>" and "@<hex>" keep their prefix and re-encode the hex as base64.
func compactPeer(id string) string {
	prefix, body := splitPeer(id)
	if prefix == "" {
		return id
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return id
	}
	return prefix + base64.StdEncoding.EncodeToString(raw)
}

// expandPeer reverses compactPeer.
func expandPeer(s string) string {
	prefix, body := splitPeer(s)
	if prefix == "" {
		return s
	}
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return s
	}
	return prefix + hex.EncodeToString(raw)
}

func splitPeer(s string) (prefix, body string) {
	switch {
	case strings.HasPrefix(s, "@@"):
		return "@@", s[2:]
	case strings.HasPrefix(s, "@"):
		return "@", s[1:]
	}
	return "", s
}

// peerSelection builds one page of the picker: a button per contact and a
// row with whichever of the previous/next buttons apply.
func (a *Adapter) peerSelection(page int) tgbotapi.InlineKeyboardMarkup {
	contacts := a.dir.Contacts()
	if page < 0 {
		page = 0
	}
	from := page * pageSize
	if from > len(contacts) {
		from = len(contacts)
	}
	to := min(from+pageSize, len(contacts))

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, to-from+1)
	for _, c := range contacts[from:to] {
		label := c.DisplayName
		if label == "" {
			label = c.ID
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, peerPrefix+compactPeer(c.ID)),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if from > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("<", pagePrefix+strconv.Itoa(page-1)))
	}
	if to < len(contacts) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(">", pagePrefix+strconv.Itoa(page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (a *Adapter) showPicker(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, pickerPrompt)
	msg.ReplyMarkup = a.peerSelection(0)
	if _, err := a.bot.Send(msg); err != nil {
		slog.Error("send peer picker", "error", err)
	}
}

// handleCallback answers the picker's buttons. Choosing a peer makes it the
// last peer and runs the parked action once.
func (a *Adapter) handleCallback(q *tgbotapi.CallbackQuery) {
	if _, err := a.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		slog.Debug("answer callback", "error", err)
	}
	if q.Message == nil || q.Message.Chat == nil || q.Message.Chat.ID != a.chatID {
		return
	}
	chatID, messageID := q.Message.Chat.ID, q.Message.MessageID

	switch {
	case strings.HasPrefix(q.Data, peerPrefix):
		peer := expandPeer(strings.TrimPrefix(q.Data, peerPrefix))
		a.mu.Lock()
		a.lastPeer = peer
		action := a.lastAction
		a.lastAction = nil
		a.mu.Unlock()
		if action != nil {
			action(peer)
		}
		done := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, "Done.",
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, err := a.bot.Send(done); err != nil {
			slog.Error("close peer picker", "error", err)
		}
	case strings.HasPrefix(q.Data, pagePrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(q.Data, pagePrefix))
		if err != nil {
			slog.Warn("bad picker page", "data", q.Data)
			return
		}
		edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, a.peerSelection(page))
		if _, err := a.bot.Send(edit); err != nil {
			slog.Error("page peer picker", "error", err)
		}
	default:
		slog.Debug("unknown callback", "data", q.Data)
	}
}
