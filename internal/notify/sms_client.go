// Package notify contains thin HTTP clients for the outbound messaging
// providers: the SMS gateway and the WhatsApp Business (Meta Graph) API.
// Clients translate one send call into one HTTP request and report the
// provider message id; retry and bookkeeping policy belongs to the services
// that call them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SMSClient talks to the SMS gateway's single-message endpoint.
type SMSClient struct {
	url      string
	apiToken string
	senderID string
	client   *http.Client
}

// NewSMSClient builds a client for the given gateway endpoint. senderID is
// the registered alphanumeric sender name shown to recipients.
func NewSMSClient(url, apiToken, senderID string) *SMSClient {
	return &SMSClient{
		url:      url,
		apiToken: apiToken,
		senderID: senderID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type smsSendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	SenderID    string `json:"senderId"`
}

type smsSendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
}

// Send delivers one SMS and returns the provider message id.
func (c *SMSClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	reqBody, err := json.Marshal(smsSendRequest{
		PhoneNumber: phoneNumber,
		Message:     message,
		SenderID:    c.senderID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var sr smsSendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if sr.MessageID == "" {
		return "", fmt.Errorf("missing messageId in response body=%q", string(body))
	}

	return sr.MessageID, nil
}
