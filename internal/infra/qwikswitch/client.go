package qwikswitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"qwikswitch-bridge/internal/domain"
)

const defaultBaseURL = "https://qsusa.info/api/v1"

// Client talks to the QwikSwitch cloud API. It carries no rate limiting of
// its own; every call is expected to arrive through the dispatcher.
type Client struct {
	email     string
	masterKey string
	baseURL   string

	httpClient *http.Client

	mu           sync.RWMutex
	readKey      string
	readWriteKey string
}

func NewClient(email, masterKey string) *Client {
	return NewClientWithURL(email, masterKey, defaultBaseURL)
}

func NewClientWithURL(email, masterKey, baseURL string) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		email:      email,
		masterKey:  masterKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// GenerateAPIKeys exchanges the account credentials for read and read/write
// API keys. Called once at startup; every other call requires it.
func (c *Client) GenerateAPIKeys(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":      c.email,
		"master_key": c.masterKey,
	})
	if err != nil {
		return fmt.Errorf("marshaling key request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/keys", body)
	if err != nil {
		return fmt.Errorf("generating api keys: %w", err)
	}

	var result struct {
		OK  int    `json:"ok"`
		Err string `json:"err"`
		R   string `json:"r"`
		RW  string `json:"rw"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("parsing key response: %w", err)
	}
	if result.OK != 1 {
		return fmt.Errorf("qwikswitch error: %s", result.Err)
	}

	c.mu.Lock()
	c.readKey = result.R
	c.readWriteKey = result.RW
	c.mu.Unlock()

	return nil
}

// DeleteAPIKeys revokes the keys generated at startup so they do not
// persist beyond this process.
func (c *Client) DeleteAPIKeys(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":      c.email,
		"master_key": c.masterKey,
	})
	if err != nil {
		return fmt.Errorf("marshaling key request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/keys/delete", body)
	if err != nil {
		return fmt.Errorf("deleting api keys: %w", err)
	}

	var result struct {
		OK  int    `json:"ok"`
		Err string `json:"err"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("parsing key response: %w", err)
	}
	if result.OK != 1 {
		return fmt.Errorf("qwikswitch error: %s", result.Err)
	}

	c.mu.Lock()
	c.readKey = ""
	c.readWriteKey = ""
	c.mu.Unlock()

	return nil
}

// ControlDevice sets a device to a level in 0..100.
func (c *Client) ControlDevice(ctx context.Context, deviceID string, level int) error {
	key, err := c.key(true)
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/control/%s/?device=%s&setlevel=%d", key, url.QueryEscape(deviceID), level)
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("controlling device %s: %w", deviceID, err)
	}

	var result struct {
		OK  int    `json:"ok"`
		Err string `json:"err"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("parsing control response: %w", err)
	}
	if result.OK != 1 {
		return fmt.Errorf("qwikswitch error controlling %s: %s", deviceID, result.Err)
	}

	return nil
}

// DeviceStatuses fetches the current value of every device on the account.
func (c *Client) DeviceStatuses(ctx context.Context) (domain.StatusMap, error) {
	key, err := c.key(false)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/getallvalues/"+key, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching statuses: %w", err)
	}

	var result []struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Value int    `json:"val"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parsing statuses: %w", err)
	}

	statuses := make(domain.StatusMap, len(result))
	for _, s := range result {
		statuses[s.ID] = domain.DeviceStatus{
			DeviceID: s.ID,
			Class:    typeToClass(s.Type),
			Value:    s.Value,
		}
	}

	return statuses, nil
}

func (c *Client) key(write bool) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	key := c.readKey
	if write {
		key = c.readWriteKey
	}
	if key == "" {
		return "", errors.New("api keys not generated")
	}
	return key, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrRemoteTimeout, err)
		}
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrRemoteTimeout, err)
		}
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qwikswitch API error %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func typeToClass(deviceType string) domain.DeviceClass {
	switch deviceType {
	case "rel":
		return domain.ClassRelay
	case "dim":
		return domain.ClassDimmer
	default:
		return domain.ClassUnknown
	}
}
