package wechat

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Session is the token bundle that authorises every request after login.
// It is replaced wholesale by a new handshake and only ever flipped to
// invalid in place.
type Session struct {
	SKey   string `json:"skey"`
	Uin    string `json:"uin"`
	SID    string `json:"sid"`
	Ticket string `json:"ticket"`
	Valid  bool   `json:"valid"`
}

// BaseRequest is embedded in every JSON request body.
type BaseRequest struct {
	Uin      string `json:"Uin"`
	Sid      string `json:"Sid"`
	Skey     string `json:"Skey"`
	DeviceID string `json:"DeviceID"`
}

// BaseResponse is the application status embedded in every JSON response.
type BaseResponse struct {
	Ret    int    `json:"Ret"`
	ErrMsg string `json:"ErrMsg"`
}

// baseRequest derives a BaseRequest with a fresh device id.
func (s Session) baseRequest() BaseRequest {
	return BaseRequest{
		Uin:      s.Uin,
		Sid:      s.SID,
		Skey:     s.SKey,
		DeviceID: newDeviceID(),
	}
}

// newDeviceID returns "e" followed by 15 random digits.
func newDeviceID() string {
	return fmt.Sprintf("e%015d", rand.Int64N(1_000_000_000_000_000))
}

// timestampParam is the bitwise complement of the 32-bit truncated
// millisecond clock, as the web frontend sends in its "r" parameters.
func timestampParam(now time.Time) string {
	return fmt.Sprintf("%d", ^int32(now.UnixMilli()))
}

// clientMsgID is a millisecond timestamp followed by four random digits.
func clientMsgID(now time.Time) string {
	return fmt.Sprintf("%d%04d", now.UnixMilli(), rand.IntN(10000))
}
