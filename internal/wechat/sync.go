package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// SyncKey is the server's incremental sync bookmark. It is threaded back
// verbatim: MarshalJSON returns exactly the bytes it was decoded from.
type SyncKey struct {
	raw   json.RawMessage
	pairs [][2]string
}

type syncKeyWire struct {
	Count int `json:"Count"`
	List  []struct {
		Key json.RawMessage `json:"Key"`
		Val json.RawMessage `json:"Val"`
	} `json:"List"`
}

func (k *SyncKey) UnmarshalJSON(data []byte) error {
	var wire syncKeyWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	pairs := make([][2]string, 0, len(wire.List))
	for _, item := range wire.List {
		pairs = append(pairs, [2]string{scalar(item.Key), scalar(item.Val)})
	}
	k.raw = append(json.RawMessage(nil), data...)
	k.pairs = pairs
	return nil
}

func (k SyncKey) MarshalJSON() ([]byte, error) {
	if len(k.raw) == 0 {
		return []byte(`{"Count":0,"List":[]}`), nil
	}
	return k.raw, nil
}

// String renders the cursor as the push host expects it: "K_V|K_V".
func (k SyncKey) String() string {
	parts := make([]string, len(k.pairs))
	for i, p := range k.pairs {
		parts[i] = p[0] + "_" + p[1]
	}
	return strings.Join(parts, "|")
}

// Len is the number of pairs in the cursor.
func (k SyncKey) Len() int { return len(k.pairs) }

// Equal reports whether two cursors carry the same bytes.
func (k SyncKey) Equal(other SyncKey) bool {
	return bytes.Equal(k.raw, other.raw)
}

// scalar returns a JSON string's content or any other literal as written.
func scalar(raw json.RawMessage) string {
	var s string
	if len(raw) > 0 && raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// RawMessage is one entry of a sync batch's AddMsgList.
type RawMessage struct {
	MsgID         string     `json:"MsgId"`
	FromUserName  string     `json:"FromUserName"`
	ToUserName    string     `json:"ToUserName"`
	MsgType       MsgType    `json:"MsgType"`
	AppMsgType    AppMsgType `json:"AppMsgType"`
	SubMsgType    MsgType    `json:"SubMsgType"`
	Content       string     `json:"Content"`
	OriContent    string     `json:"OriContent"`
	FileName      string     `json:"FileName"`
	FileSize      string     `json:"FileSize"`
	MediaID       string     `json:"MediaId"`
	EncryFileName string     `json:"EncryFileName"`
	HasProductID  int        `json:"HasProductId"`
	CreateTime    int64      `json:"CreateTime"`
}

type syncResponse struct {
	BaseResponse          BaseResponse      `json:"BaseResponse"`
	SyncKey               SyncKey           `json:"SyncKey"`
	AddMsgList            []RawMessage      `json:"AddMsgList"`
	ModContactList        []json.RawMessage `json:"ModContactList"`
	DelContactList        []json.RawMessage `json:"DelContactList"`
	ModChatRoomMemberList []json.RawMessage `json:"ModChatRoomMemberList"`
}

func (r *syncResponse) status() BaseResponse { return r.BaseResponse }

// syncCheck long-polls the push host. A non-zero selector means new data.
func (c *Client) syncCheck(ctx context.Context) (int, error) {
	sess := c.Session()
	q := url.Values{}
	q.Set("r", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("skey", sess.SKey)
	q.Set("sid", sess.SID)
	q.Set("uin", sess.Uin)
	q.Set("deviceid", newDeviceID())
	q.Set("synckey", c.Cursor().String())

	body, err := c.get(ctx, endpoint(c.cfg.PushURL, "synccheck", q), nil)
	if err != nil {
		return 0, &ProtocolError{Op: "sync check", Err: err}
	}
	fields := parseAssignments(string(body))
	retcode, ok := fields["retcode"]
	if !ok {
		return 0, &ProtocolError{Op: "sync check", Err: errMalformed}
	}
	if retcode != "0" {
		ret, _ := strconv.Atoi(retcode)
		return 0, &ProtocolError{Op: "sync check", Ret: ret, ErrMsg: "retcode " + retcode}
	}
	selector, err := strconv.Atoi(fields["selector"])
	if err != nil {
		return 0, &ProtocolError{Op: "sync check", Err: fmt.Errorf("selector %q: %w", fields["selector"], errMalformed)}
	}
	return selector, nil
}

// sync fetches the batch the current cursor points at.
func (c *Client) sync(ctx context.Context) (*syncResponse, error) {
	sess := c.Session()
	q := url.Values{}
	q.Set("skey", sess.SKey)
	q.Set("sid", sess.SID)
	q.Set("pass_ticket", sess.Ticket)
	body := map[string]any{
		"BaseRequest": sess.baseRequest(),
		"SyncKey":     c.Cursor(),
		"rr":          ^int32(c.now().UnixMilli()),
	}
	var resp syncResponse
	if err := c.call(ctx, "sync", endpoint(c.cfg.BaseURL, "webwxsync", q), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.SyncKey.raw) == 0 {
		return nil, &ProtocolError{Op: "sync", Err: fmt.Errorf("no sync key: %w", errMalformed)}
	}
	return &resp, nil
}

// poll runs while the session is valid. It returns nil when something
// else invalidated the session and a protocol error when it failed itself.
func (c *Client) poll(ctx context.Context) error {
	for c.Session().Valid {
		selector, err := c.syncCheck(ctx)
		if err != nil {
			return err
		}
		if selector != 0 {
			batch, err := c.sync(ctx)
			if err != nil {
				return err
			}
			// The next check must carry the new cursor, so it is stored
			// before any message of this batch is looked at.
			c.setCursor(batch.SyncKey)
			if n := len(batch.ModContactList) + len(batch.DelContactList) + len(batch.ModChatRoomMemberList); n > 0 {
				c.log.Debug("directory changes ignored", "count", n)
			}
			c.dispatch(ctx, batch.AddMsgList)
		}
		if err := sleep(ctx, c.cfg.SyncInterval); err != nil {
			return err
		}
	}
	return nil
}

// dispatch decodes a batch concurrently and waits for every message.
// A failed message is logged and dropped.
func (c *Client) dispatch(ctx context.Context, batch []RawMessage) {
	var g errgroup.Group
	for i := range batch {
		msg := &batch[i]
		g.Go(func() error {
			if err := c.process(ctx, msg); err != nil {
				c.log.Warn("message dropped", "msg_id", msg.MsgID, "type", int(msg.MsgType), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
