package wechat

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned by Send for message kinds the web protocol
// client cannot deliver.
var ErrNotSupported = errors.New("not supported")

// ErrSessionInvalid is returned by Send while the client is logged out.
var ErrSessionInvalid = errors.New("session is not valid")

// errMalformed marks a payload field that could not be parsed.
var errMalformed = errors.New("malformed payload")

// HandshakeError reports a failed step of the QR login handshake. The
// whole handshake restarts from the beginning.
type HandshakeError struct {
	// Op names the step, e.g. "request uuid", "check login".
	Op string
	// Reason is the server message or parser diagnostic.
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	msg := "wechat: handshake " + e.Op + " failed"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ProtocolError reports a non-zero application status (or an unreadable
// response) from an authenticated call. It invalidates the session.
type ProtocolError struct {
	Op     string
	Ret    int
	ErrMsg string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("wechat: failed to %s: %v", e.Op, e.Err)
	}
	if e.ErrMsg != "" {
		return fmt.Sprintf("wechat: failed to %s: ret=%d: %s", e.Op, e.Ret, e.ErrMsg)
	}
	return fmt.Sprintf("wechat: failed to %s: ret=%d", e.Op, e.Ret)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// DirectoryError reports a failed lazy lookup of a group or group member.
// Only the message that needed the lookup is dropped.
type DirectoryError struct {
	UserName string
	Err      error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("wechat: resolve contact %s: %v", e.UserName, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// UploadError reports a chunked upload that failed or produced no media id.
type UploadError struct {
	Chunk  int
	Ret    int
	ErrMsg string
	Err    error
}

func (e *UploadError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("wechat: upload chunk %d: %v", e.Chunk, e.Err)
	case e.Ret != 0:
		return fmt.Sprintf("wechat: upload chunk %d: ret=%d: %s", e.Chunk, e.Ret, e.ErrMsg)
	default:
		return "wechat: upload produced no media id"
	}
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsSessionFatal reports whether err must send the client back to login.
func IsSessionFatal(err error) bool {
	var protoErr *ProtocolError
	return errors.As(err, &protoErr)
}
