package cartapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mbarroso/giftregistry/internal/models"
)

// Client wraps the backend cart endpoints, one method per operation.
// It holds no state between calls and performs no retries; transport
// failures surface to the caller untranslated.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// AddResult discriminates between an accepted add and a server-side
// rejection (e.g. the gift was purchased while the request raced).
type AddResult struct {
	Accepted           bool
	Reason             string
	OthersHoldingCount int
}

type RemoveResult struct {
	Accepted bool
}

type AvailabilityResult struct {
	UnavailableGiftIDs []int64
}

func (c *Client) Fetch(ctx context.Context, userID int64) ([]models.RemoteCartRecord, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cart?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var records []models.RemoteCartRecord
	if err := c.do(req, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) Add(ctx context.Context, userID, giftID int64) (*AddResult, error) {
	body := map[string]int64{"userId": userID, "giftId": giftID}

	req, err := c.jsonRequest(ctx, http.MethodPost, c.baseURL+"/cart", body)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	// A conflict is a named rejection, not a transport failure.
	if resp.StatusCode == http.StatusConflict {
		var rej struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&rej)
		if rej.Reason == "" {
			rej.Reason = "gift is no longer available"
		}
		return &AddResult{Accepted: false, Reason: rej.Reason}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError("add", resp)
	}

	var out struct {
		Success         bool `json:"success"`
		OtherUsersCount int  `json:"otherUsersCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return &AddResult{Accepted: false, Reason: "add declined by server"}, nil
	}
	return &AddResult{Accepted: true, OthersHoldingCount: out.OtherUsersCount}, nil
}

func (c *Client) Remove(ctx context.Context, userID, giftID int64) (*RemoveResult, error) {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))
	q.Set("giftId", strconv.FormatInt(giftID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/cart?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var out struct {
		Success bool `json:"success"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &RemoveResult{Accepted: out.Success}, nil
}

func (c *Client) CheckAvailability(ctx context.Context, userID int64, giftIDs []int64) (*AvailabilityResult, error) {
	body := map[string]any{"userId": userID, "giftIds": giftIDs}

	req, err := c.jsonRequest(ctx, http.MethodPost, c.baseURL+"/cart/check", body)
	if err != nil {
		return nil, err
	}

	var out struct {
		PurchasedItems      []int64 `json:"purchasedItems"`
		HasUnavailableItems bool    `json:"hasUnavailableItems"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &AvailabilityResult{UnavailableGiftIDs: out.PurchasedItems}, nil
}

func (c *Client) OthersCount(ctx context.Context, userID int64, giftIDs []int64) (map[int64]int, error) {
	body := map[string]any{"userId": userID, "giftIds": giftIDs}

	req, err := c.jsonRequest(ctx, http.MethodPost, c.baseURL+"/cart/others", body)
	if err != nil {
		return nil, err
	}

	raw := map[string]int{}
	if err := c.do(req, &raw); err != nil {
		return nil, err
	}

	out := make(map[int64]int, len(raw))
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(req.Method+" "+req.URL.Path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(b) > 0 {
		return fmt.Errorf("%s failed with status %d: %s", op, resp.StatusCode, b)
	}
	return fmt.Errorf("%s failed with status %d", op, resp.StatusCode)
}
