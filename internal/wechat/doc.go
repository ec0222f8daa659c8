// Package wechat is a client for the web protocol spoken by the desktop
// web frontend of WeChat.
//
// A Client owns all protocol state: the Session tokens, the sync cursor,
// the logged-in user and the contact Directory. Run drives two loops that
// never overlap. The login loop performs the QR-code handshake and page
// initialisation; the poll loop long-polls for new data, fetches each
// batch and decodes every message into a types.Message. Any protocol-level
// failure in the poll loop invalidates the session and hands control back
// to the login loop.
//
// Outbound messages go through the Send* methods. Media is first uploaded
// in 512 KiB chunks by Upload, which yields the media handle the send
// endpoints reference.
package wechat
