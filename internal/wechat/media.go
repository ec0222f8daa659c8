package wechat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

func (c *Client) mediaQuery(msgID string) url.Values {
	q := url.Values{}
	q.Set("msgid", msgID)
	q.Set("skey", c.Session().SKey)
	return q
}

func (c *Client) fetchImage(ctx context.Context, msgID string) ([]byte, error) {
	data, err := c.get(ctx, endpoint(c.cfg.BaseURL, "webwxgetmsgimg", c.mediaQuery(msgID)), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", msgID, err)
	}
	return data, nil
}

func (c *Client) fetchVoice(ctx context.Context, msgID string) ([]byte, error) {
	data, err := c.get(ctx, endpoint(c.cfg.BaseURL, "webwxgetvoice", c.mediaQuery(msgID)), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch voice %s: %w", msgID, err)
	}
	return data, nil
}

// fetchVideo requires an explicit range header or the server answers
// with an empty body.
func (c *Client) fetchVideo(ctx context.Context, msgID string) ([]byte, error) {
	header := http.Header{}
	header.Set("Range", "bytes=0-")
	data, err := c.get(ctx, endpoint(c.cfg.BaseURL, "webwxgetvideo", c.mediaQuery(msgID)), header)
	if err != nil {
		return nil, fmt.Errorf("fetch video %s: %w", msgID, err)
	}
	return data, nil
}

func (c *Client) fetchAttachment(ctx context.Context, raw *RawMessage) ([]byte, error) {
	q := url.Values{}
	q.Set("sender", raw.FromUserName)
	q.Set("mediaid", raw.MediaID)
	q.Set("encryfilename", raw.EncryFileName)
	q.Set("fromuser", strconv.FormatInt(c.User().Uin, 10))
	q.Set("pass_ticket", c.Session().Ticket)
	data, err := c.get(ctx, endpoint(c.cfg.FileURL, "webwxgetmedia", q), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment %s: %w", raw.FileName, err)
	}
	return data, nil
}

// fetchCard reads a shared contact card and downloads its avatar over
// plain HTTPS, outside the session.
func (c *Client) fetchCard(ctx context.Context, content string) ([]byte, string, error) {
	attrs, ok := findAttrs(content, "msg")
	if !ok || attrs["bigheadimgurl"] == "" {
		return nil, "", fmt.Errorf("contact card: %w", errMalformed)
	}
	name := attrs["nickname"]
	if name == "" {
		name = attrs["username"]
	}

	avatar := attrs["bigheadimgurl"]
	if strings.HasPrefix(avatar, "http:") {
		avatar = "https:" + strings.TrimPrefix(avatar, "http:")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatar, nil)
	if err != nil {
		return nil, "", fmt.Errorf("contact card avatar: %w", err)
	}
	data, err := do(c.avatars, req)
	if err != nil {
		return nil, "", fmt.Errorf("contact card avatar: %w", err)
	}
	return data, name, nil
}
