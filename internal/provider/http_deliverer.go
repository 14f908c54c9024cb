package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPDeliverer sends outbound messages through a provider gateway over JSON
// HTTP. A shared token-bucket limiter paces sends across all workers so the
// process respects the gateway's rate agreement.
//
// Request:  POST url with {"provider","channel","peer","text"}.
// Response: 200 with {"message_id": "..."}; any other status is an error.
type HTTPDeliverer struct {
	URL     string
	Client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPDeliverer constructs a deliverer pacing sends at perSec with the
// given burst.
func NewHTTPDeliverer(url string, timeout time.Duration, perSec float64, burst int) *HTTPDeliverer {
	return &HTTPDeliverer{
		URL:     url,
		Client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

type sendRequest struct {
	Provider string `json:"provider"`
	Channel  string `json:"channel"`
	Peer     string `json:"peer"`
	Text     string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send implements Deliverer. It blocks on the pacing limiter first, so a
// cancelled context returns before any bytes hit the wire.
func (d *HTTPDeliverer) Send(ctx context.Context, dst Destination, text string) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("deliverer: pacing wait: %w", err)
	}

	body, err := json.Marshal(sendRequest{
		Provider: dst.Provider,
		Channel:  dst.Channel,
		Peer:     dst.Peer,
		Text:     text,
	})
	if err != nil {
		return "", fmt.Errorf("deliverer: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("deliverer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("deliverer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("deliverer: unexpected status %d: %s", resp.StatusCode, snippet)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("deliverer: decode response: %w", err)
	}
	if out.MessageID == "" {
		return "", fmt.Errorf("deliverer: response missing message_id")
	}
	return out.MessageID, nil
}
