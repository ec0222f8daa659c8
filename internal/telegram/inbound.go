package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/wechatgram/internal/types"
)

// maxDownload caps a single file fetched from Telegram.
const maxDownload = 50 << 20

// handleUpdate processes one update from the long poll.
func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		a.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		if update.Message.Chat == nil || update.Message.Chat.ID != a.chatID {
			slog.Debug("ignoring update from foreign chat", "update_id", update.UpdateID)
			return
		}
		if err := a.handleMessage(ctx, update.Message); err != nil {
			slog.Error("handle telegram message", "message_id", update.Message.MessageID, "error", err)
			a.reply(a.chatID, fmt.Sprintf("Could not relay message: %v", err))
		}
	}
}

func replyTo(m *tgbotapi.Message) int {
	if m.ReplyToMessage == nil {
		return 0
	}
	return m.ReplyToMessage.MessageID
}

// handleMessage turns a chat message into one or two outbound messages:
// the payload and, when present, its caption as text.
func (a *Adapter) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	var (
		kind     types.Kind
		fileID   string
		filename string
	)
	switch {
	case m.Text != "":
		if commands := commandEntities(m); len(commands) > 0 {
			a.handleCommand(m, commands)
			return nil
		}
		text := m.Text
		a.send(replyTo(m), func(peer string) {
			a.relay(ctx, &types.Message{Kind: types.KindText, Text: text, To: peer, Peer: peer})
		})
		return nil
	case m.Sticker != nil:
		kind, fileID = types.KindSticker, m.Sticker.FileID
	case len(m.Photo) > 0:
		best := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		kind, fileID = types.KindPhoto, best.FileID
	case m.Document != nil:
		kind, fileID, filename = types.KindDocument, m.Document.FileID, m.Document.FileName
	case m.Audio != nil:
		// There is no audio message on the other side; audio goes as a file.
		kind, fileID, filename = types.KindDocument, m.Audio.FileID, m.Audio.FileName
	case m.Voice != nil:
		kind, fileID = types.KindVoice, m.Voice.FileID
	case m.Video != nil:
		kind, fileID = types.KindVideo, m.Video.FileID
	case m.Location != nil:
		point := &types.Point{X: m.Location.Latitude, Y: m.Location.Longitude}
		a.send(replyTo(m), func(peer string) {
			a.relay(ctx, &types.Message{Kind: types.KindLocation, Location: point, To: peer, Peer: peer})
		})
		return nil
	default:
		slog.Debug("ignoring unsupported telegram message", "message_id", m.MessageID)
		return nil
	}

	data, err := a.download(ctx, fileID)
	if err != nil {
		return err
	}
	caption := m.Caption
	a.send(replyTo(m), func(peer string) {
		a.relay(ctx, &types.Message{Kind: kind, Data: data, Filename: filename, To: peer, Peer: peer})
		if caption != "" {
			a.relay(ctx, &types.Message{Kind: types.KindText, Text: caption, To: peer, Peer: peer})
		}
	})
	return nil
}

// commandEntities returns the text of every bot command in m.
func commandEntities(m *tgbotapi.Message) []string {
	var (
		units    []uint16
		commands []string
	)
	for _, e := range m.Entities {
		if !e.IsCommand() {
			continue
		}
		// Entity offsets count UTF-16 code units.
		if units == nil {
			units = utf16.Encode([]rune(m.Text))
		}
		end := e.Offset + e.Length
		if e.Offset < 0 || end > len(units) {
			continue
		}
		commands = append(commands, string(utf16.Decode(units[e.Offset:end])))
	}
	return commands
}

func (a *Adapter) handleCommand(m *tgbotapi.Message, commands []string) {
	if len(commands) > 1 {
		a.reply(m.Chat.ID, "Multiple commands are not supported.")
		return
	}
	command := commands[0]
	name, _, _ := strings.Cut(command, "@")
	switch name {
	case "/peer":
		a.mu.Lock()
		a.lastPeer = ""
		a.mu.Unlock()
		a.showPicker(m.Chat.ID)
	default:
		a.reply(m.Chat.ID, fmt.Sprintf("Unknown command %s.", command))
	}
}

// send runs action against the conversation the message targets: the peer
// of the replied-to message, else the last peer. With neither, the action
// is parked and the operator is asked to pick a peer.
func (a *Adapter) send(replyToID int, action func(peer string)) {
	a.mu.Lock()
	if replyToID != 0 {
		if peer, ok := a.peers[replyToID]; ok {
			a.lastPeer = peer
		}
	}
	peer := a.lastPeer
	if peer == "" {
		a.lastAction = action
	}
	a.mu.Unlock()

	if peer != "" {
		action(peer)
		return
	}
	a.showPicker(a.chatID)
}

func (a *Adapter) relay(ctx context.Context, msg *types.Message) {
	a.mu.Lock()
	emit := a.emit
	a.mu.Unlock()
	if emit == nil {
		slog.Warn("dropping telegram message before run", "kind", string(msg.Kind))
		return
	}
	emit(ctx, types.NewEvent(Name, msg))
}

// download fetches a file the operator sent.
func (a *Adapter) download(ctx context.Context, fileID string) ([]byte, error) {
	link, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		// The file URL embeds the bot token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("file larger than %d bytes", maxDownload)
	}
	return data, nil
}
