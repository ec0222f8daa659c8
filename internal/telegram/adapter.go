package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/wechatgram/internal/transport"
	"github.com/user/wechatgram/internal/types"
)

// Name is the adapter name used for routing.
const Name = "telegram"

const (
	maxTelegramMessage = 4096
	// maxPeers bounds how many relayed message ids are remembered for
	// reply routing.
	maxPeers = 10000
)

// botAPI is the part of *tgbotapi.BotAPI the adapter uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetFileDirectURL(fileID string) (string, error)
}

// Config configures the adapter.
type Config struct {
	Token string
	// ChatID is the operator chat. Updates from other chats are ignored.
	ChatID int64
	// Client is used for Bot API calls and file downloads. Defaults to a
	// transport client retrying connection failures.
	Client *http.Client
}

// Adapter bridges the operator's Telegram chat to the gateway. Everything
// relayed into the chat is remembered by message id so that replies go
// back to the same conversation.
type Adapter struct {
	bot    botAPI
	chatID int64
	client *http.Client
	dir    types.Directory

	mu         sync.Mutex
	peers      map[int]string
	order      []int
	lastPeer   string
	lastAction func(peer string)
	emit       types.EventHandler
}

// New creates a Telegram adapter. dir supplies the peers offered by the
// peer picker.
func New(cfg Config, dir types.Directory) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	client := cfg.Client
	if client == nil {
		client = transport.NewClient(transport.Options{Timeout: 90 * time.Second})
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return newAdapter(bot, cfg.ChatID, client, dir), nil
}

func newAdapter(bot botAPI, chatID int64, client *http.Client, dir types.Directory) *Adapter {
	return &Adapter{
		bot:    bot,
		chatID: chatID,
		client: client,
		dir:    dir,
		peers:  make(map[int]string),
	}
}

func (a *Adapter) Name() string { return Name }

// Run long-polls for Telegram updates until ctx is done. Updates are
// handled one at a time so that relayed messages keep the chat's order.
func (a *Adapter) Run(ctx context.Context, emit types.EventHandler) error {
	a.mu.Lock()
	a.emit = emit
	a.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.bot.GetUpdatesChan(u)
	emit(ctx, types.NewLifecycleEvent(Name, types.EventLaunch))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			a.handleUpdate(ctx, update)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return nil
		}
	}
}

// Send relays msg into the operator chat with a caption naming sender and
// recipient.
func (a *Adapter) Send(ctx context.Context, msg *types.Message) error {
	caption := fmt.Sprintf("%s → %s", msg.From, msg.To)

	var c tgbotapi.Chattable
	switch msg.Kind {
	case types.KindText:
		return a.sendText(msg.Peer, fmt.Sprintf("🔤 %s:\n%s", caption, msg.Text))
	case types.KindPhoto, types.KindSticker:
		cfg := tgbotapi.NewPhoto(a.chatID, fileBytes(msg, "photo.jpg"))
		cfg.Caption = "🖼️ " + caption
		if msg.Filename != "" {
			cfg.Caption += "\n" + msg.Filename
		}
		c = cfg
	case types.KindVideo:
		cfg := tgbotapi.NewVideo(a.chatID, fileBytes(msg, "video.mp4"))
		cfg.Caption = "📽️ " + caption
		c = cfg
	case types.KindDocument:
		cfg := tgbotapi.NewDocument(a.chatID, fileBytes(msg, "file"))
		cfg.Caption = "📃 " + caption
		c = cfg
	case types.KindVoice:
		cfg := tgbotapi.NewVoice(a.chatID, fileBytes(msg, "voice.mp3"))
		cfg.Caption = "🔊 " + caption
		c = cfg
	case types.KindLocation:
		if msg.Location == nil {
			return errors.New("location message without coordinates")
		}
		c = tgbotapi.NewLocation(a.chatID, msg.Location.X, msg.Location.Y)
	default:
		return fmt.Errorf("unsupported message kind %q", msg.Kind)
	}

	sent, err := a.bot.Send(c)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	a.addPeer(sent.MessageID, msg.Peer)
	return nil
}

// Notify implements types.Notifier.
func (a *Adapter) Notify(ctx context.Context, text string) error {
	return a.reply(a.chatID, text)
}

func fileBytes(msg *types.Message, name string) tgbotapi.FileBytes {
	if msg.Filename != "" {
		name = msg.Filename
	}
	return tgbotapi.FileBytes{Name: name, Bytes: msg.Data}
}

func (a *Adapter) sendText(peer, text string) error {
	for _, part := range splitMessage(text) {
		sent, err := a.bot.Send(tgbotapi.NewMessage(a.chatID, part))
		if err != nil {
			return fmt.Errorf("send text: %w", err)
		}
		a.addPeer(sent.MessageID, peer)
	}
	return nil
}

// reply sends bot-authored text, trying Markdown first.
func (a *Adapter) reply(chatID int64, text string) error {
	var lastErr error
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := a.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("send message error", "error", err)
				lastErr = err
			}
		}
	}
	return lastErr
}

// addPeer remembers which conversation a relayed message belongs to and
// makes it the default target.
func (a *Adapter) addPeer(messageID int, peer string) {
	if peer == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastPeer = peer
	if _, ok := a.peers[messageID]; !ok {
		a.order = append(a.order, messageID)
	}
	a.peers[messageID] = peer
	if len(a.order) > maxPeers {
		delete(a.peers, a.order[0])
		a.order = a.order[1:]
	}
}

// LastPeer returns the conversation untargeted messages currently go to.
func (a *Adapter) LastPeer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPeer
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		// Don't cut a UTF-8 sequence in half.
		for end < len(text) && end > 1 && !utf8.RuneStart(text[end]) {
			end--
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

var (
	_ types.Adapter  = (*Adapter)(nil)
	_ types.Notifier = (*Adapter)(nil)
)
