package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseSize bounds every response body, media included.
const maxResponseSize = 256 << 20

// endpoint joins a host prefix and a path.
func endpoint(prefix, path string, query url.Values) string {
	u := strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs req with hc and returns the body of a 2xx response.
func do(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", req.URL.Path, err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", req.URL.Path, maxResponseSize)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected %d response from %s", resp.StatusCode, req.URL.Path)
	}
	return body, nil
}

// get fetches a URL with the session client.
func (c *Client) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return do(c.http, req)
}

// postJSON sends body as JSON and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, rawURL string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	data, err := do(c.http, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeJSON(data, out)
}

// call is postJSON for endpoints answering with a BaseResponse. Any
// failure is reported as a *ProtocolError.
func (c *Client) call(ctx context.Context, op, rawURL string, body any, out statusCarrier) error {
	if err := c.postJSON(ctx, rawURL, body, out); err != nil {
		return &ProtocolError{Op: op, Err: err}
	}
	if st := out.status(); st.Ret != 0 {
		return &ProtocolError{Op: op, Ret: st.Ret, ErrMsg: st.ErrMsg}
	}
	return nil
}

type statusCarrier interface {
	status() BaseResponse
}

// statusOnly decodes responses whose payload is ignored.
type statusOnly struct {
	BaseResponse BaseResponse `json:"BaseResponse"`
}

func (r *statusOnly) status() BaseResponse { return r.BaseResponse }

func decodeJSON(data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
