package wechat

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/user/wechatgram/internal/transport"
	"github.com/user/wechatgram/internal/types"
)

// Name identifies the client as a bridge adapter.
const Name = "wechat"

// Sender and recipient shown on messages addressed to the operator.
const (
	OperatorSender    = "Bot"
	OperatorRecipient = "You"
)

// DefaultUserAgent is a desktop browser string the web frontend accepts.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config holds endpoints and timings. Zero fields take the defaults of
// DefaultConfig, except RetryLimit where zero disables retries.
type Config struct {
	LoginURL string
	BaseURL  string
	PushURL  string
	FileURL  string

	UserAgent string
	// ExtSpam is sent as the extspam header of the token exchange when set.
	ExtSpam string

	RetryLimit   int
	RetryDelay   time.Duration
	PollInterval time.Duration
	SyncInterval time.Duration

	// Transport overrides the round-tripper under the retry layer.
	Transport http.RoundTripper
	// AvatarClient fetches contact card avatars. Defaults to a plain
	// client without cookies.
	AvatarClient *http.Client
	Logger       *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		LoginURL:     "https://login.wx2.qq.com",
		BaseURL:      "https://wx2.qq.com/cgi-bin/mmwebwx-bin",
		PushURL:      "https://webpush.wx2.qq.com/cgi-bin/mmwebwx-bin",
		FileURL:      "https://file.wx2.qq.com/cgi-bin/mmwebwx-bin",
		UserAgent:    DefaultUserAgent,
		RetryLimit:   10,
		RetryDelay:   10 * time.Second,
		PollInterval: time.Second,
		SyncInterval: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LoginURL == "" {
		c.LoginURL = d.LoginURL
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.PushURL == "" {
		c.PushURL = d.PushURL
	}
	if c.FileURL == "" {
		c.FileURL = d.FileURL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.PollInterval == 0 {
		c.PollInterval = d.PollInterval
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = d.SyncInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Snapshot is the persisted form of a client: its session tokens and every
// cookie of the jar.
type Snapshot struct {
	Session Session            `json:"session"`
	Cookies []transport.Cookie `json:"cookie"`
}

// Status is a read-only view for status reporting.
type Status struct {
	State    string `json:"state"`
	Valid    bool   `json:"valid"`
	User     string `json:"user,omitempty"`
	Contacts int    `json:"contacts"`
}

// Client speaks the web protocol for one account.
type Client struct {
	cfg     Config
	http    *http.Client
	avatars *http.Client
	jar     *transport.Jar
	log     *slog.Logger
	now     func() time.Time

	contacts *Directory

	mu      sync.RWMutex
	session Session
	user    Contact
	cursor  SyncKey
	state   AuthState
	emit    types.EventHandler
}

// New builds a client, resuming from snap when it is non-nil. A snapshot
// whose cookies cannot be restored starts over with an invalid session.
func New(cfg Config, snap *Snapshot) (*Client, error) {
	cfg = cfg.withDefaults()
	jar, err := transport.NewJar()
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:      cfg,
		jar:      jar,
		log:      cfg.Logger.With("adapter", Name),
		now:      time.Now,
		contacts: NewDirectory(),
		avatars:  cfg.AvatarClient,
	}
	if snap != nil {
		if err := jar.Restore(snap.Cookies); err != nil {
			c.log.Warn("discarding persisted state", "error", err)
		} else {
			c.session = snap.Session
		}
	}
	c.http = transport.NewClient(transport.Options{
		Jar:       jar,
		Policy:    &transport.RetryPolicy{MaxAttempts: cfg.RetryLimit + 1, Delay: cfg.RetryDelay},
		UserAgent: cfg.UserAgent,
		Base:      cfg.Transport,
	})
	if c.avatars == nil {
		c.avatars = &http.Client{Timeout: 30 * time.Second}
	}
	return c, nil
}

func (c *Client) Name() string { return Name }

// Session returns a copy of the current tokens.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// User is the logged-in account, zero before initialization.
func (c *Client) User() Contact {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// Cursor is the current sync bookmark.
func (c *Client) Cursor() SyncKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

func (c *Client) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Directory exposes the contact directory for lookups. Entries are only
// written by the client's own fetches.
func (c *Client) Directory() *Directory { return c.contacts }

// Contacts lists the directory in the neutral form used by other adapters.
func (c *Client) Contacts() []types.Contact {
	list := c.contacts.List()
	out := make([]types.Contact, 0, len(list))
	for _, ct := range list {
		out = append(out, types.Contact{ID: ct.UserName, DisplayName: ct.DisplayName(), Group: IsGroup(ct.UserName)})
	}
	return out
}

func (c *Client) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		State:    c.state.String(),
		Valid:    c.session.Valid,
		User:     c.user.UserName,
		Contacts: c.contacts.Len(),
	}
}

// Snapshot captures the session and cookie jar for persistence.
func (c *Client) Snapshot() *Snapshot {
	return &Snapshot{Session: c.Session(), Cookies: c.jar.Snapshot()}
}

// RefreshContacts re-reads the whole contact list into the directory, then
// every known group with its members. It refuses to run outside of a live
// session and leaves the session alone on failure; the sync loop notices a
// dead session on its own.
func (c *Client) RefreshContacts(ctx context.Context) error {
	if c.State() != StateInitialized || !c.Session().Valid {
		return ErrSessionInvalid
	}
	if err := c.fetchAll(ctx); err != nil {
		return err
	}
	return c.refreshGroups(ctx)
}

func (c *Client) setState(s AuthState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setCursor(k SyncKey) {
	c.mu.Lock()
	c.cursor = k
	c.mu.Unlock()
}

// replaceSession installs the tokens of a completed handshake.
func (c *Client) replaceSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// invalidate flips the session to invalid so the next poll iteration
// hands control back to login.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.session.Valid = false
	if c.state == StateInitialized {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

// Run drives login and polling until ctx is done. It never returns for a
// protocol failure.
func (c *Client) Run(ctx context.Context, emit types.EventHandler) error {
	c.mu.Lock()
	c.emit = emit
	c.mu.Unlock()

	c.emitLifecycle(ctx, types.EventLaunch)
	for {
		if err := c.login(ctx); err != nil {
			return err
		}
		c.emitLifecycle(ctx, types.EventLoggedIn)
		err := c.poll(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.fail(ctx, err)
		} else {
			c.log.Info("session invalidated, logging in again")
		}
	}
}

// login loops until a valid session is initialized. It only returns an
// error when ctx is done.
func (c *Client) login(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.Session().Valid {
			sess, err := c.handshake(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.report(ctx, err)
				if err := sleep(ctx, c.cfg.PollInterval); err != nil {
					return err
				}
				continue
			}
			c.replaceSession(sess)
		}
		if err := c.initialize(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.fail(ctx, err)
			continue
		}
		return nil
	}
}

// fail is the single recovery path for session-fatal errors.
func (c *Client) fail(ctx context.Context, err error) {
	c.invalidate()
	c.report(ctx, err)
}

// report logs err and shows it to the operator.
func (c *Client) report(ctx context.Context, err error) {
	c.log.Error("wechat session error", "error", err)
	c.emitMessage(ctx, &types.Message{
		Kind: types.KindText,
		Text: err.Error(),
		From: OperatorSender,
		To:   OperatorRecipient,
	})
}

func (c *Client) handler() types.EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.emit
}

func (c *Client) emitMessage(ctx context.Context, msg *types.Message) {
	if h := c.handler(); h != nil {
		h(ctx, types.NewEvent(Name, msg))
	}
}

func (c *Client) emitLifecycle(ctx context.Context, typ types.EventType) {
	if h := c.handler(); h != nil {
		h(ctx, types.NewLifecycleEvent(Name, typ))
	}
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ types.Adapter = (*Client)(nil)
var _ types.Directory = (*Client)(nil)
