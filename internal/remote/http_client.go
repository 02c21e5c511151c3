package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"mediafirefs/internal/errs"
	"mediafirefs/internal/logging"
)

var httpLog = logging.Get("remote")

// HTTPClient is a minimal implementation of Client against a JSON/REST
// façade of the remote account API. It is deliberately thin: §1 places
// the transport and authentication of the real remote API out of scope,
// so this exists to make the mount command runnable end to end, not as
// the subject of the exercise.
type HTTPClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

// NewHTTPClient builds a client that talks to baseURL using apiKey for
// bearer authentication.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errs.InvalidArg("remote.do", path)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errs.Transient("remote.do", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		httpLog.WithError(err).WithField("path", path).Debug("request failed")
		return errs.Transient("remote.do", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusNotFound:
		return errs.NotFound("remote.do", path)
	case http.StatusForbidden, http.StatusUnauthorized:
		return errs.AccessDenied("remote.do", path)
	case http.StatusBadRequest:
		return errs.InvalidArg("remote.do", path)
	default:
		return errs.Transient("remote.do", path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Transient("remote.do", path, err)
	}
	return nil
}

func (c *HTTPClient) FolderCreate(ctx context.Context, parentKey, name string) error {
	return c.do(ctx, http.MethodPost, "/folder/create", map[string]string{
		"parent_key": parentKey,
		"name":       name,
	}, nil)
}

func (c *HTTPClient) FolderDelete(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/folder/delete", map[string]string{"key": key}, nil)
}

func (c *HTTPClient) FileDelete(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodPost, "/file/delete", map[string]string{"key": key}, nil)
}

func (c *HTTPClient) DeviceChanges(ctx context.Context, sinceRevision int64) ([]ChangeRecord, error) {
	var out struct {
		Changes []ChangeRecord `json:"changes"`
	}
	path := fmt.Sprintf("/device/changes?since=%d", sinceRevision)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Changes, nil
}

func (c *HTTPClient) FolderGetContent(ctx context.Context, key string) ([]FolderInfo, []FileInfo, error) {
	var out struct {
		Folders []FolderInfo `json:"folders"`
		Files   []FileInfo   `json:"files"`
	}
	path := "/folder/content?key=" + url.QueryEscape(key)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Folders, out.Files, nil
}

func (c *HTTPClient) FileGetInfo(ctx context.Context, key string) (FileInfo, error) {
	var out FileInfo
	path := "/file/info?key=" + url.QueryEscape(key)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return FileInfo{}, err
	}
	return out, nil
}

func (c *HTTPClient) Download(ctx context.Context, link string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return errs.Transient("remote.download", link, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return errs.Transient("remote.download", link, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return errs.AccessDenied("remote.download", link)
	}
	if resp.StatusCode != http.StatusOK {
		return errs.Transient("remote.download", link, fmt.Errorf("status %d", resp.StatusCode))
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		return errs.Transient("remote.download", link, err)
	}
	return nil
}

func (c *HTTPClient) UploadSimple(ctx context.Context, parentKey string, r io.Reader, name string) (string, error) {
	return c.upload(ctx, "/upload/simple", map[string]string{"parent_key": parentKey, "name": name}, r)
}

func (c *HTTPClient) UploadPatch(ctx context.Context, fileKey string, r io.Reader) (string, error) {
	return c.upload(ctx, "/upload/patch", map[string]string{"file_key": fileKey}, r)
}

func (c *HTTPClient) upload(ctx context.Context, path string, fields map[string]string, r io.Reader) (string, error) {
	q := url.Values{}
	for k, v := range fields {
		q.Set(k, v)
	}
	full := path + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+full, r)
	if err != nil {
		return "", errs.Transient("remote.upload", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", errs.Transient("remote.upload", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return "", errs.AccessDenied("remote.upload", path)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errs.Transient("remote.upload", path, fmt.Errorf("status %d", resp.StatusCode))
	}

	var out struct {
		UploadKey string `json:"upload_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errs.Transient("remote.upload", path, err)
	}
	return out.UploadKey, nil
}

func (c *HTTPClient) UploadPoll(ctx context.Context, uploadKey string) (UploadStatus, error) {
	var out UploadStatus
	path := "/upload/poll?key=" + url.QueryEscape(uploadKey)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return UploadStatus{}, err
	}
	return out, nil
}

func (c *HTTPClient) AccountID(ctx context.Context) (string, error) {
	var out struct {
		AccountID string `json:"account_id"`
	}
	if err := c.do(ctx, http.MethodGet, "/account/id", nil, &out); err != nil {
		return "", err
	}
	return out.AccountID, nil
}
