package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client is a small HTTP client for the gossip surface, used for
// bootstrap and peer_exchange broadcast.
type Client struct {
	http *http.Client
}

// NewClient wraps an http.Client for gossip RPCs.
func NewClient(httpClient *http.Client) *Client {
	return &Client{http: httpClient}
}

// RegisterPeer calls POST {baseURL}/mesh/register-peer and returns the
// reported peer count.
func (c *Client) RegisterPeer(ctx context.Context, baseURL string, self PeerRecord) (int, error) {
	body, err := json.Marshal(self)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/mesh/register-peer", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("gossip client: register-peer status %d", resp.StatusCode)
	}

	var out struct {
		OK        bool `json:"ok"`
		PeerCount int  `json:"peer_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.PeerCount, nil
}

// FetchPeers calls GET {baseURL}/mesh/peers.
func (c *Client) FetchPeers(ctx context.Context, baseURL string) ([]PeerRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/mesh/peers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gossip client: peers status %d", resp.StatusCode)
	}

	var out struct {
		Peers []PeerRecord `json:"peers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Peers, nil
}

// Ingest calls POST {baseURL}/mesh/ingest with a signed envelope.
func (c *Client) Ingest(ctx context.Context, baseURL string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/mesh/ingest", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gossip client: ingest status %d", resp.StatusCode)
	}
	return nil
}
