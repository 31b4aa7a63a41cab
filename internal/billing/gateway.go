package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPGateway talks to the payment provider's REST API.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGateway builds the provider client.
func NewHTTPGateway(baseURL, apiKey string) (*HTTPGateway, error) {
	if baseURL == "" {
		return nil, errors.New("gateway requires a base url")
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// CreateCheckoutSession opens a hosted checkout page for the user and
// returns its URL.
func (g *HTTPGateway) CreateCheckoutSession(ctx context.Context, userID, email string) (string, error) {
	body := map[string]string{"reference": userID, "email": email, "plan": "pro_monthly"}
	var out struct {
		URL string `json:"url"`
	}
	if err := g.post(ctx, "/checkout/sessions", body, &out); err != nil {
		return "", err
	}
	if out.URL == "" {
		return "", errors.New("gateway returned no checkout url")
	}
	return out.URL, nil
}

// CancelSubscription requests cancellation at period end. The state change
// itself arrives later as a webhook.
func (g *HTTPGateway) CancelSubscription(ctx context.Context, externalID string) error {
	return g.post(ctx, "/subscriptions/"+externalID+"/cancel", map[string]string{}, nil)
}

func (g *HTTPGateway) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("payment gateway returned %d: %s", resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
