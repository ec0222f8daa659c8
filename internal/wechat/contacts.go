package wechat

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
)

// Contact is a directory entry as the server describes it. Individual
// accounts, groups ("@@" usernames) and group members share the shape.
type Contact struct {
	Uin             int64     `json:"Uin"`
	UserName        string    `json:"UserName"`
	NickName        string    `json:"NickName"`
	RemarkName      string    `json:"RemarkName"`
	HeadImgURL      string    `json:"HeadImgUrl"`
	EncryChatRoomID string    `json:"EncryChatRoomId"`
	MemberList      []Contact `json:"MemberList,omitempty"`
}

// DisplayName resolves through the remark, then the nickname, then the
// raw username.
func (c Contact) DisplayName() string {
	if c.RemarkName != "" {
		return c.RemarkName
	}
	if c.NickName != "" {
		return c.NickName
	}
	return c.UserName
}

func normalizeContact(c Contact) Contact {
	c.NickName = NormalizeText(c.NickName)
	c.RemarkName = NormalizeText(c.RemarkName)
	return c
}

// Directory holds at most one Contact per username. It is safe for
// concurrent use.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Contact
}

func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]Contact)}
}

// Merge stores every contact, replacing any entry with the same username.
func (d *Directory) Merge(contacts ...Contact) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range contacts {
		if c.UserName == "" {
			continue
		}
		d.entries[c.UserName] = c
	}
}

func (d *Directory) Get(username string) (Contact, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.entries[username]
	return c, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// List returns every contact ordered by username.
func (d *Directory) List() []Contact {
	d.mu.RLock()
	out := make([]Contact, 0, len(d.entries))
	for _, c := range d.entries {
		out = append(out, c)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out
}

// DisplayName returns the display name of username, or username itself
// when it is not in the directory.
func (d *Directory) DisplayName(username string) string {
	if c, ok := d.Get(username); ok {
		return c.DisplayName()
	}
	return username
}

type contactPage struct {
	BaseResponse BaseResponse `json:"BaseResponse"`
	MemberList   []Contact    `json:"MemberList"`
	Seq          int64        `json:"Seq"`
}

type batchContacts struct {
	BaseResponse BaseResponse `json:"BaseResponse"`
	ContactList  []Contact    `json:"ContactList"`
}

// fetchAll pages through the contact list until the server returns a zero
// cursor, merging every page into the directory.
func (c *Client) fetchAll(ctx context.Context) error {
	sess := c.Session()
	var seq int64
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("skey", sess.SKey)
		q.Set("pass_ticket", sess.Ticket)
		q.Set("seq", strconv.FormatInt(seq, 10))
		q.Set("r", strconv.FormatInt(c.now().UnixMilli(), 10))

		data, err := c.get(ctx, endpoint(c.cfg.BaseURL, "webwxgetcontact", q), nil)
		if err != nil {
			return &ProtocolError{Op: "get contacts", Err: err}
		}
		var resp contactPage
		if err := decodeJSON(data, &resp); err != nil {
			return &ProtocolError{Op: "get contacts", Err: err}
		}
		if resp.BaseResponse.Ret != 0 {
			return &ProtocolError{Op: "get contacts", Ret: resp.BaseResponse.Ret, ErrMsg: resp.BaseResponse.ErrMsg}
		}
		for i := range resp.MemberList {
			resp.MemberList[i] = normalizeContact(resp.MemberList[i])
		}
		c.contacts.Merge(resp.MemberList...)
		c.log.Debug("contact page merged", "page", page, "count", len(resp.MemberList), "next_seq", resp.Seq)
		if resp.Seq == 0 {
			return nil
		}
		seq = resp.Seq
	}
}

var errContactNotFound = errors.New("contact not returned")

// batchContactItem selects one entity of webwxbatchgetcontact. Groups are
// requested with an empty ChatRoomId, members with their group's
// encrypted room id.
type batchContactItem struct {
	UserName        string  `json:"UserName"`
	ChatRoomID      *string `json:"ChatRoomId,omitempty"`
	EncryChatRoomID *string `json:"EncryChatRoomId,omitempty"`
}

// fetchGroup resolves a group the directory has not seen.
func (c *Client) fetchGroup(ctx context.Context, group string) (Contact, error) {
	empty := ""
	return c.fetchOne(ctx, batchContactItem{UserName: group, ChatRoomID: &empty})
}

// fetchGroupMember resolves one member of the group with the given
// encrypted room id.
func (c *Client) fetchGroupMember(ctx context.Context, roomID, member string) (Contact, error) {
	return c.fetchOne(ctx, batchContactItem{UserName: member, EncryChatRoomID: &roomID})
}

// groupBatchSize caps the entries of one webwxbatchgetcontact request.
const groupBatchSize = 50

// refreshGroups re-reads every known group, member list included, in
// batches. A failed batch is returned as a DirectoryError naming its first
// group.
func (c *Client) refreshGroups(ctx context.Context) error {
	var items []batchContactItem
	for _, ct := range c.contacts.List() {
		if IsGroup(ct.UserName) {
			empty := ""
			items = append(items, batchContactItem{UserName: ct.UserName, ChatRoomID: &empty})
		}
	}
	for start := 0; start < len(items); start += groupBatchSize {
		batch := items[start:min(start+groupBatchSize, len(items))]
		list, err := c.batchGet(ctx, batch)
		if err != nil {
			return &DirectoryError{UserName: batch[0].UserName, Err: err}
		}
		for i := range list {
			list[i] = normalizeContact(list[i])
			for j := range list[i].MemberList {
				list[i].MemberList[j] = normalizeContact(list[i].MemberList[j])
			}
		}
		c.contacts.Merge(list...)
		c.log.Debug("groups refreshed", "requested", len(batch), "returned", len(list))
	}
	return nil
}

func (c *Client) batchGet(ctx context.Context, items []batchContactItem) ([]Contact, error) {
	q := url.Values{}
	q.Set("type", "ex")
	q.Set("r", strconv.FormatInt(c.now().UnixMilli(), 10))
	body := map[string]any{
		"BaseRequest": c.Session().baseRequest(),
		"Count":       len(items),
		"List":        items,
	}
	var resp batchContacts
	if err := c.postJSON(ctx, endpoint(c.cfg.BaseURL, "webwxbatchgetcontact", q), body, &resp); err != nil {
		return nil, err
	}
	if resp.BaseResponse.Ret != 0 {
		return nil, fmt.Errorf("ret=%d: %s", resp.BaseResponse.Ret, resp.BaseResponse.ErrMsg)
	}
	return resp.ContactList, nil
}

func (c *Client) fetchOne(ctx context.Context, item batchContactItem) (Contact, error) {
	list, err := c.batchGet(ctx, []batchContactItem{item})
	if err != nil {
		return Contact{}, &DirectoryError{UserName: item.UserName, Err: err}
	}
	if len(list) == 0 || list[0].UserName == "" {
		return Contact{}, &DirectoryError{UserName: item.UserName, Err: errContactNotFound}
	}
	contact := normalizeContact(list[0])
	c.contacts.Merge(contact)
	return contact, nil
}
