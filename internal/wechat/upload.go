package wechat

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
)

// ChunkSize is the fixed size of every upload chunk but the last.
const ChunkSize = 512 * 1024

// MediaKind is the upload classification declared to the file host.
type MediaKind string

const (
	MediaPicture  MediaKind = "pic"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "doc"
)

// mediaTypeAttachment is the descriptor MediaType used for every upload.
const mediaTypeAttachment = 4

type uploadDescriptor struct {
	UploadType    int         `json:"UploadType"`
	BaseRequest   BaseRequest `json:"BaseRequest"`
	ClientMediaID int64       `json:"ClientMediaId"`
	TotalLen      int         `json:"TotalLen"`
	StartPos      int         `json:"StartPos"`
	DataLen       int         `json:"DataLen"`
	MediaType     int         `json:"MediaType"`
	FromUserName  string      `json:"FromUserName"`
	ToUserName    string      `json:"ToUserName"`
	FileMd5       string      `json:"FileMd5"`
}

type uploadResponse struct {
	BaseResponse BaseResponse `json:"BaseResponse"`
	MediaID      string       `json:"MediaId"`
}

// Chunks is the number of requests Upload issues for size bytes.
func Chunks(size int) int {
	return (size + ChunkSize - 1) / ChunkSize
}

// Upload sends data to the file host in ChunkSize pieces and returns the
// media handle the send endpoints reference.
func (c *Client) Upload(ctx context.Context, data []byte, kind MediaKind, to string) (string, error) {
	chunks := Chunks(len(data))
	if chunks == 0 {
		return "", &UploadError{}
	}
	sum := md5.Sum(data)
	sess := c.Session()
	descriptor, err := json.Marshal(uploadDescriptor{
		UploadType:    2,
		BaseRequest:   sess.baseRequest(),
		ClientMediaID: c.now().UnixMilli(),
		TotalLen:      len(data),
		StartPos:      0,
		DataLen:       len(data),
		MediaType:     mediaTypeAttachment,
		FromUserName:  c.User().UserName,
		ToUserName:    to,
		FileMd5:       hex.EncodeToString(sum[:]),
	})
	if err != nil {
		return "", &UploadError{Err: err}
	}

	q := url.Values{}
	q.Set("f", "json")
	target := endpoint(c.cfg.FileURL, "webwxuploadmedia", q)

	var mediaID string
	for i := 0; i < chunks; i++ {
		end := min((i+1)*ChunkSize, len(data))
		body, contentType, err := uploadForm(chunks, i, kind, descriptor, sess.Ticket, data[i*ChunkSize:end])
		if err != nil {
			return "", &UploadError{Chunk: i, Err: err}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
		if err != nil {
			return "", &UploadError{Chunk: i, Err: err}
		}
		req.Header.Set("Content-Type", contentType)
		raw, err := do(c.http, req)
		if err != nil {
			return "", &UploadError{Chunk: i, Err: err}
		}
		var resp uploadResponse
		if err := decodeJSON(raw, &resp); err != nil {
			return "", &UploadError{Chunk: i, Err: err}
		}
		if resp.BaseResponse.Ret != 0 {
			return "", &UploadError{Chunk: i, Ret: resp.BaseResponse.Ret, ErrMsg: resp.BaseResponse.ErrMsg}
		}
		if resp.MediaID != "" {
			mediaID = resp.MediaID
		}
	}
	if mediaID == "" {
		return "", &UploadError{Chunk: chunks - 1}
	}
	c.log.Debug("media uploaded", "kind", kind, "size", len(data), "chunks", chunks)
	return mediaID, nil
}

func uploadForm(chunks, chunk int, kind MediaKind, descriptor []byte, ticket string, part []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"chunks", strconv.Itoa(chunks)},
		{"mediatype", string(kind)},
		{"uploadmediarequest", string(descriptor)},
		{"pass_ticket", ticket},
		{"chunk", strconv.Itoa(chunk)},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	fw, err := w.CreateFormFile("filename", "blob")
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := fw.Write(part); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
