package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mnemo-cli/mnemo/internal/core/config"
	"github.com/mnemo-cli/mnemo/internal/core/models"
)

// Remote talks to a sync server over HTTP JSON. The same client serves the
// "remote" (self-hosted) and "saas" modes; they differ only in endpoint
// and token.
type Remote struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewRemote(cfg config.SyncConfig) (*Remote, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("remote sync requires an endpoint")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Remote{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (r *Remote) Ping(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodGet, "/v1/ping", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync server ping: status %d", resp.StatusCode)
	}
	return nil
}

func (r *Remote) Push(ctx context.Context, bundle *models.SessionBundle, baseVersion int64) (int64, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return 0, fmt.Errorf("marshal bundle: %w", err)
	}
	path := "/v1/sessions/" + url.PathEscape(bundle.Session.ID) + "?base_version=" + strconv.FormatInt(baseVersion, 10)
	resp, err := r.do(ctx, http.MethodPut, path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read push response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return 0, fmt.Errorf("parse push response: %w", err)
		}
		return out.Version, nil
	case http.StatusConflict:
		var remote models.SessionBundle
		if err := json.Unmarshal(body, &remote); err != nil {
			return 0, fmt.Errorf("parse conflict body: %w", err)
		}
		return 0, &Conflict{Remote: &remote}
	default:
		return 0, fmt.Errorf("push %s: status %d: %s", bundle.Session.ID, resp.StatusCode, truncate(body))
	}
}

func (r *Remote) Pull(ctx context.Context, since int64) ([]*models.SessionBundle, int64, error) {
	resp, err := r.do(ctx, http.MethodGet, "/v1/sessions?since="+strconv.FormatInt(since, 10), nil)
	if err != nil {
		return nil, since, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, since, fmt.Errorf("pull: status %d", resp.StatusCode)
	}
	var out struct {
		Bundles   []*models.SessionBundle `json:"bundles"`
		Watermark int64                   `json:"watermark"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, since, fmt.Errorf("parse pull response: %w", err)
	}
	if out.Watermark < since {
		out.Watermark = since
	}
	return out.Bundles, out.Watermark, nil
}

func (r *Remote) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sync server unreachable: %w", err)
	}
	return resp, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
