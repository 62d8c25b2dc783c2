package giftapi

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

// Client talks to the gift catalog service.
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

// PurchaseOptions carries the offline payment details recorded with a
// purchase. DeliveryAddress is only set for ship-to-host methods.
type PurchaseOptions struct {
	PaymentMethod   models.PaymentMethod
	DeliveryAddress string
}

func (c *Client) List(ctx context.Context) ([]models.Gift, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gifts", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var gifts []models.Gift
	if err := c.do(req, &gifts); err != nil {
		return nil, err
	}
	return gifts, nil
}

func (c *Client) Get(ctx context.Context, id int64) (*models.Gift, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/gifts/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var gift models.Gift
	if err := c.do(req, &gift); err != nil {
		return nil, err
	}
	return &gift, nil
}

func (c *Client) MarkPurchased(ctx context.Context, giftID, userID int64, opts PurchaseOptions) error {
	body := map[string]any{"userId": userID}
	if opts.PaymentMethod != "" {
		body["paymentMethod"] = string(opts.PaymentMethod)
	}
	if opts.DeliveryAddress != "" {
		body["deliveryAddress"] = opts.DeliveryAddress
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/gifts/"+strconv.FormatInt(giftID, 10)+"/purchase",
		bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, nil)
}

func (c *Client) MarkUnpurchased(ctx context.Context, giftID, userID int64) error {
	q := url.Values{}
	q.Set("userId", strconv.FormatInt(userID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/gifts/"+strconv.FormatInt(giftID, 10)+"/unpurchase?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(b) > 0 {
			return fmt.Errorf("%s %s failed with status %d: %s", req.Method, req.URL.Path, resp.StatusCode, b)
		}
		return fmt.Errorf("%s %s failed with status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
