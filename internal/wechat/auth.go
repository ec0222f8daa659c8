package wechat

import (
	"context"
	"net/http"
	"net/url"

	"github.com/user/wechatgram/internal/types"
)

// AuthState tracks the login handshake. Only StateInitialized allows the
// poll loop to run.
type AuthState int

const (
	StateIdle AuthState = iota
	StateAwaitingScan
	StateScanned
	StateConfirmed
	StateInitialized
)

func (s AuthState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateScanned:
		return "scanned"
	case StateConfirmed:
		return "confirmed"
	case StateInitialized:
		return "initialized"
	}
	return "unknown"
}

const (
	appID    = "wx782c26e4c19acffb"
	referer  = "https://wx.qq.com/?&lang=zh_CN&target=t"
	clientV2 = "2.0.0"

	// statusInited is the presence-notify code telling the phone that the
	// web session finished loading.
	statusInited = 3
)

// Login status codes returned by the status poll.
const (
	loginConfirmed = "200"
	loginScanned   = "201"
	loginPending   = "408"
)

// handshake runs Idle through Confirmed and returns the new session.
func (c *Client) handshake(ctx context.Context) (Session, error) {
	c.setState(StateIdle)
	uuid, err := c.requestUUID(ctx)
	if err != nil {
		return Session{}, err
	}

	qr, err := c.get(ctx, endpoint(c.cfg.LoginURL, "qrcode/"+uuid, nil), nil)
	if err != nil {
		return Session{}, &HandshakeError{Op: "fetch qr code", Err: err}
	}
	c.setState(StateAwaitingScan)
	c.emitMessage(ctx, &types.Message{
		Kind:     types.KindPhoto,
		Data:     qr,
		Filename: "qrcode.jpg",
		From:     OperatorSender,
		To:       OperatorRecipient,
	})

	params, err := c.awaitConfirmation(ctx, uuid)
	if err != nil {
		return Session{}, err
	}
	c.setState(StateConfirmed)
	return c.exchangeTicket(ctx, params)
}

// requestUUID obtains the one-time login ticket encoded in the QR code.
func (c *Client) requestUUID(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("appid", appID)
	q.Set("fun", "new")
	body, err := c.get(ctx, endpoint(c.cfg.LoginURL, "jslogin", q), nil)
	if err != nil {
		return "", &HandshakeError{Op: "request uuid", Err: err}
	}
	fields := parseAssignments(string(body))
	if code := fields["code"]; code != loginConfirmed {
		return "", &HandshakeError{Op: "request uuid", Reason: "code=" + code}
	}
	if fields["uuid"] == "" {
		return "", &HandshakeError{Op: "request uuid", Reason: "no uuid in response"}
	}
	return fields["uuid"], nil
}

// awaitConfirmation polls the login status until the phone confirms and
// returns the query of the redirect it hands out.
func (c *Client) awaitConfirmation(ctx context.Context, uuid string) (url.Values, error) {
	for {
		q := url.Values{}
		q.Set("loginicon", "true")
		q.Set("uuid", uuid)
		q.Set("tip", "1")
		q.Set("r", timestampParam(c.now()))
		body, err := c.get(ctx, endpoint(c.cfg.LoginURL, "cgi-bin/mmwebwx-bin/login", q), nil)
		if err != nil {
			return nil, &HandshakeError{Op: "check login", Err: err}
		}

		fields := parseAssignments(string(body))
		switch code := fields["code"]; code {
		case loginConfirmed:
			redirect, err := url.Parse(fields["redirect_uri"])
			if err != nil || fields["redirect_uri"] == "" {
				return nil, &HandshakeError{Op: "check login", Reason: "bad redirect uri", Err: err}
			}
			return redirect.Query(), nil
		case loginScanned:
			c.setState(StateScanned)
			c.emitLifecycle(ctx, types.EventScanned)
		case loginPending:
			c.emitLifecycle(ctx, types.EventScanning)
		default:
			return nil, &HandshakeError{Op: "check login", Reason: "code=" + code}
		}

		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}
}

// exchangeTicket turns the confirmed redirect parameters into session
// tokens.
func (c *Client) exchangeTicket(ctx context.Context, params url.Values) (Session, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("fun", "new")
	q.Set("version", "v2")
	q.Set("mod", "desktop")

	header := http.Header{}
	header.Set("Client-Version", clientV2)
	header.Set("Referer", referer)
	if c.cfg.ExtSpam != "" {
		header.Set("Extspam", c.cfg.ExtSpam)
	}

	body, err := c.get(ctx, endpoint(c.cfg.BaseURL, "webwxnewloginpage", q), header)
	if err != nil {
		return Session{}, &HandshakeError{Op: "new login page", Err: err}
	}
	fields := elementTexts(string(body))
	if fields["redirecturl"] != "" {
		return Session{}, &HandshakeError{Op: "new login page", Reason: "unexpected redirect url"}
	}
	if fields["ret"] != "0" {
		reason := fields["message"]
		if reason == "" {
			reason = "ret=" + fields["ret"]
		}
		return Session{}, &HandshakeError{Op: "new login page", Reason: reason}
	}

	sess := Session{
		SKey:   fields["skey"],
		Uin:    fields["wxuin"],
		SID:    fields["wxsid"],
		Ticket: fields["pass_ticket"],
		Valid:  true,
	}
	for name, v := range map[string]string{"skey": sess.SKey, "wxuin": sess.Uin, "wxsid": sess.SID, "pass_ticket": sess.Ticket} {
		if v == "" {
			return Session{}, &HandshakeError{Op: "new login page", Reason: "missing " + name}
		}
	}
	return sess, nil
}

type initResponse struct {
	BaseResponse BaseResponse `json:"BaseResponse"`
	User         Contact      `json:"User"`
	SyncKey      SyncKey      `json:"SyncKey"`
}

func (r *initResponse) status() BaseResponse { return r.BaseResponse }

// initialize loads the profile, the sync cursor and the directory for a
// valid session, then tells the phone the web client is up.
func (c *Client) initialize(ctx context.Context) error {
	q := url.Values{}
	q.Set("r", timestampParam(c.now()))
	var resp initResponse
	body := map[string]any{"BaseRequest": c.Session().baseRequest()}
	if err := c.call(ctx, "init page", endpoint(c.cfg.BaseURL, "webwxinit", q), body, &resp); err != nil {
		return err
	}
	if resp.User.UserName == "" {
		return &ProtocolError{Op: "init page", Err: errMalformed}
	}

	c.mu.Lock()
	c.user = resp.User
	c.cursor = resp.SyncKey
	c.mu.Unlock()
	c.contacts.Merge(normalizeContact(resp.User))

	if err := c.fetchAll(ctx); err != nil {
		return err
	}
	if err := c.notifyMobile(ctx, resp.User.UserName); err != nil {
		c.log.Warn("presence notify failed", "error", err)
	}
	c.setState(StateInitialized)
	c.log.Info("logged in", "user", resp.User.UserName, "contacts", c.contacts.Len())
	return nil
}

// notifyMobile marks the web session as active on the phone.
func (c *Client) notifyMobile(ctx context.Context, username string) error {
	body := map[string]any{
		"BaseRequest":  c.Session().baseRequest(),
		"Code":         statusInited,
		"FromUserName": username,
		"ToUserName":   username,
		"ClientMsgId":  c.now().UnixMilli(),
	}
	var resp statusOnly
	return c.call(ctx, "notify status", endpoint(c.cfg.BaseURL, "webwxstatusnotify", nil), body, &resp)
}
