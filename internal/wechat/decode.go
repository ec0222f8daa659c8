package wechat

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/wechatgram/internal/types"
)

// MsgType is the primary type code of a RawMessage.
type MsgType int

const (
	MsgUnknown        MsgType = 0
	MsgText           MsgType = 1
	MsgImage          MsgType = 3
	MsgVoice          MsgType = 34
	MsgVerify         MsgType = 37
	MsgPossibleFriend MsgType = 40
	MsgShareCard      MsgType = 42
	MsgVideo          MsgType = 43
	MsgEmoticon       MsgType = 47
	MsgLocation       MsgType = 48
	MsgApp            MsgType = 49
	MsgVoipMsg        MsgType = 50
	MsgStatusNotify   MsgType = 51
	MsgVoipNotify     MsgType = 52
	MsgVoipInvite     MsgType = 53
	MsgMicroVideo     MsgType = 62
	MsgSysNotice      MsgType = 9999
	MsgSys            MsgType = 10000
	MsgRecalled       MsgType = 10002
)

// AppMsgType is the subtype of an application message.
type AppMsgType int

const (
	AppUnknown               AppMsgType = 0
	AppText                  AppMsgType = 1
	AppImage                 AppMsgType = 2
	AppAudio                 AppMsgType = 3
	AppVideo                 AppMsgType = 4
	AppURL                   AppMsgType = 5
	AppAttach                AppMsgType = 6
	AppOpen                  AppMsgType = 7
	AppEmoji                 AppMsgType = 8
	AppVoiceRemind           AppMsgType = 9
	AppScanGood              AppMsgType = 10
	AppGood                  AppMsgType = 13
	AppEmotion               AppMsgType = 15
	AppCardTicket            AppMsgType = 16
	AppRealtimeShareLocation AppMsgType = 17
	AppTransfers             AppMsgType = 2000
	AppRedEnvelopes          AppMsgType = 2001
	AppReaderType            AppMsgType = 100001
)

const (
	unknownMessage     = "Unknown message"
	unsupportedSticker = "Unsupported sticker"
)

// splitGroupSender strips the "sender:<br/>" prefix of a group message.
// ok is false when content carries no such prefix.
func splitGroupSender(content string) (sender, rest string, ok bool) {
	i := strings.Index(content, ":<br/>")
	if i <= 0 {
		return "", content, false
	}
	name := content[:i]
	body := name
	if strings.HasPrefix(name, "@") {
		body = name[1:]
		if body == "" {
			return "", content, false
		}
	}
	for _, r := range body {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum && (name[0] == '@' || (r != '_' && r != '-')) {
			return "", content, false
		}
	}
	return name, content[i+len(":<br/>"):], true
}

// peerOf is the conversation a message belongs to.
func (c *Client) peerOf(msg *RawMessage) string {
	self := c.User().UserName
	if msg.FromUserName == self || msg.FromUserName == "" {
		return msg.ToUserName
	}
	return msg.FromUserName
}

// resolveGroup makes sure the group and the sender are in the directory,
// fetching either lazily.
func (c *Client) resolveGroup(ctx context.Context, group, sender string) error {
	g, ok := c.contacts.Get(group)
	if !ok {
		var err error
		if g, err = c.fetchGroup(ctx, group); err != nil {
			return err
		}
	}
	if _, ok := c.contacts.Get(sender); ok {
		return nil
	}
	_, err := c.fetchGroupMember(ctx, g.EncryChatRoomID, sender)
	return err
}

// process decodes one message and emits at most one event.
func (c *Client) process(ctx context.Context, raw *RawMessage) error {
	content := raw.Content
	sender, receiver := raw.FromUserName, raw.ToUserName
	peer := c.peerOf(raw)

	if IsGroup(peer) {
		if name, rest, ok := splitGroupSender(content); ok {
			sender, content = name, rest
		}
		receiver = peer
		if err := c.resolveGroup(ctx, peer, sender); err != nil {
			return err
		}
	}

	msg := &types.Message{
		From: c.contacts.DisplayName(sender),
		To:   c.contacts.DisplayName(receiver),
		Peer: peer,
	}
	content = decodeContent(content)

	typ := raw.MsgType
	if raw.AppMsgType != AppUnknown {
		typ = MsgApp
	}

	switch typ {
	case MsgText:
		if raw.SubMsgType == MsgLocation {
			return c.emitLocation(ctx, msg, raw.OriContent, content)
		}
		msg.Kind, msg.Text = types.KindText, content

	case MsgEmoticon:
		if raw.HasProductID != 0 {
			msg.Kind, msg.Text = types.KindText, unsupportedSticker
			break
		}
		fallthrough
	case MsgImage:
		data, err := c.fetchImage(ctx, raw.MsgID)
		if err != nil {
			return err
		}
		msg.Kind, msg.Data = types.KindPhoto, data

	case MsgVoice:
		data, err := c.fetchVoice(ctx, raw.MsgID)
		if err != nil {
			return err
		}
		msg.Kind, msg.Data = types.KindVoice, data

	case MsgVideo, MsgMicroVideo:
		data, err := c.fetchVideo(ctx, raw.MsgID)
		if err != nil {
			return err
		}
		msg.Kind, msg.Data = types.KindVideo, data

	case MsgLocation:
		return c.emitLocation(ctx, msg, raw.OriContent, content)

	case MsgApp:
		switch raw.AppMsgType {
		case AppImage, AppEmoji:
			data, err := c.fetchImage(ctx, raw.MsgID)
			if err != nil {
				return err
			}
			msg.Kind, msg.Data = types.KindPhoto, data
		case AppAttach:
			data, err := c.fetchAttachment(ctx, raw)
			if err != nil {
				return err
			}
			msg.Kind, msg.Data, msg.Filename = types.KindDocument, data, raw.FileName
		default:
			c.log.Warn("unknown app message", "msg_id", raw.MsgID, "app_msg_type", int(raw.AppMsgType))
			msg.Kind, msg.Text = types.KindText, unknownMessage
		}

	case MsgShareCard:
		data, name, err := c.fetchCard(ctx, content)
		if err != nil {
			return err
		}
		msg.Kind, msg.Data, msg.Filename = types.KindPhoto, data, "User Card: "+name

	case MsgSys:
		msg.Kind, msg.Text = types.KindText, flattenNotice(content)

	case MsgStatusNotify, MsgRecalled, MsgSysNotice:
		return nil

	default:
		c.log.Warn("unknown message", "msg_id", raw.MsgID, "msg_type", int(raw.MsgType))
		msg.Kind, msg.Text = types.KindText, unknownMessage
	}

	c.emitMessage(ctx, msg)
	return nil
}

// emitLocation reads the coordinates from the original markup, falling
// back to the decoded content.
func (c *Client) emitLocation(ctx context.Context, msg *types.Message, original, content string) error {
	x, y, err := parseCoordinates(original)
	if err != nil {
		x, y, err = parseCoordinates(content)
	}
	if err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	msg.Kind = types.KindLocation
	msg.Location = &types.Point{X: x, Y: y}
	c.emitMessage(ctx, msg)
	return nil
}

// flattenNotice renders system notices that embed markup (revoke hints,
// red envelope banners) as plain text.
func flattenNotice(content string) string {
	if !strings.Contains(content, "<") {
		return content
	}
	out, err := htmltomarkdown.ConvertString(content)
	if err != nil || strings.TrimSpace(out) == "" {
		return content
	}
	return strings.TrimSpace(out)
}
