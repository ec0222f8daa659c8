package wechat

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/user/wechatgram/internal/types"
)

// send posts one outbound message. A non-zero status invalidates the
// session, which sends the poll loop back to login.
func (c *Client) send(ctx context.Context, op, method string, query url.Values, fields map[string]any) error {
	id := clientMsgID(c.now())
	msg := map[string]any{
		"FromUserName": c.User().UserName,
		"LocalID":      id,
		"ClientMsgId":  id,
	}
	for k, v := range fields {
		msg[k] = v
	}
	body := map[string]any{
		"BaseRequest": c.Session().baseRequest(),
		"Msg":         msg,
		"Scene":       0,
	}
	var resp statusOnly
	if err := c.call(ctx, op, endpoint(c.cfg.BaseURL, method, query), body, &resp); err != nil {
		if ctx.Err() != nil {
			return err
		}
		c.fail(ctx, err)
		return err
	}
	return nil
}

func asyncQuery(extra ...string) url.Values {
	q := url.Values{}
	q.Set("fun", "async")
	q.Set("f", "json")
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	return c.send(ctx, "send text", "webwxsendmsg", nil, map[string]any{
		"Type":       int(MsgText),
		"Content":    text,
		"ToUserName": to,
	})
}

// SendSticker uploads data as a document and sends it as a custom emoticon.
func (c *Client) SendSticker(ctx context.Context, to string, data []byte) error {
	mediaID, err := c.Upload(ctx, data, MediaDocument, to)
	if err != nil {
		return err
	}
	q := url.Values{}
	q.Set("fun", "sys")
	return c.send(ctx, "send sticker", "webwxsendemoticon", q, map[string]any{
		"Type":       int(MsgEmoticon),
		"MediaId":    mediaID,
		"ToUserName": to,
		"EmojiFlag":  2,
	})
}

func (c *Client) SendImage(ctx context.Context, to string, data []byte) error {
	mediaID, err := c.Upload(ctx, data, MediaPicture, to)
	if err != nil {
		return err
	}
	return c.send(ctx, "send image", "webwxsendmsgimg", asyncQuery(), map[string]any{
		"Type":       int(MsgImage),
		"MediaId":    mediaID,
		"ToUserName": to,
	})
}

func (c *Client) SendVideo(ctx context.Context, to string, data []byte) error {
	mediaID, err := c.Upload(ctx, data, MediaVideo, to)
	if err != nil {
		return err
	}
	return c.send(ctx, "send video", "webwxsendvideomsg", asyncQuery(), map[string]any{
		"Type":       int(MsgVideo),
		"MediaId":    mediaID,
		"ToUserName": to,
	})
}

// SendDocument uploads data and sends it as a file attachment named
// filename.
func (c *Client) SendDocument(ctx context.Context, to, filename string, data []byte) error {
	if filename == "" {
		filename = "file"
	}
	mediaID, err := c.Upload(ctx, data, MediaDocument, to)
	if err != nil {
		return err
	}
	return c.send(ctx, "send document", "webwxsendappmsg", asyncQuery("mod", "desktop"), map[string]any{
		"Type":       int(AppAttach),
		"ToUserName": to,
		"Content":    attachmentXML(filename, len(data), mediaID),
	})
}

func attachmentXML(filename string, size int, mediaID string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	var b strings.Builder
	b.WriteString("<appmsg appid='' sdkver=''><title>")
	b.WriteString(html.EscapeString(filename))
	b.WriteString("</title><des></des><action></action><type>")
	b.WriteString(strconv.Itoa(int(AppAttach)))
	b.WriteString("</type><content></content><url></url><lowurl></lowurl><appattach><totallen>")
	b.WriteString(strconv.Itoa(size))
	b.WriteString("</totallen><attachid>")
	b.WriteString(mediaID)
	b.WriteString("</attachid><fileext>")
	b.WriteString(ext)
	b.WriteString("</fileext></appattach><extinfo></extinfo></appmsg>")
	return b.String()
}

// Send delivers a neutral message to msg.To. Voice and location cannot be
// sent through the web protocol and report ErrNotSupported.
func (c *Client) Send(ctx context.Context, msg *types.Message) error {
	switch msg.Kind {
	case types.KindVoice:
		return fmt.Errorf("wechat: sending voice message: %w", ErrNotSupported)
	case types.KindLocation:
		return fmt.Errorf("wechat: sending location: %w", ErrNotSupported)
	}
	if msg.To == "" {
		return fmt.Errorf("wechat: message has no recipient")
	}
	if !c.Session().Valid {
		return fmt.Errorf("wechat: sending %s: %w", msg.Kind, ErrSessionInvalid)
	}
	switch msg.Kind {
	case types.KindText:
		return c.SendText(ctx, msg.To, msg.Text)
	case types.KindSticker:
		return c.SendSticker(ctx, msg.To, msg.Data)
	case types.KindPhoto:
		return c.SendImage(ctx, msg.To, msg.Data)
	case types.KindVideo:
		return c.SendVideo(ctx, msg.To, msg.Data)
	case types.KindDocument:
		return c.SendDocument(ctx, msg.To, msg.Filename, msg.Data)
	}
	return fmt.Errorf("wechat: sending %s: %w", msg.Kind, ErrNotSupported)
}
