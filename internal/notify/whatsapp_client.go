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

// defaultGraphBaseURL is the Meta Graph API root used when no override is
// configured (tests point the client at a local server instead).
const defaultGraphBaseURL = "https://graph.facebook.com/v18.0"

// WhatsAppClient sends template messages through the WhatsApp Business
// (Meta Graph) API on behalf of one registered phone number.
type WhatsAppClient struct {
	baseURL       string
	apiToken      string
	phoneNumberID string
	templateName  string
	client        *http.Client
}

// NewWhatsAppClient builds a client for the given business phone number id
// and approved template. baseURL may be empty to use the public Graph API.
func NewWhatsAppClient(baseURL, apiToken, phoneNumberID, templateName string) *WhatsAppClient {
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	return &WhatsAppClient{
		baseURL:       baseURL,
		apiToken:      apiToken,
		phoneNumberID: phoneNumberID,
		templateName:  templateName,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type waTemplatePayload struct {
	MessagingProduct string     `json:"messaging_product"`
	To               string     `json:"to"`
	Type             string     `json:"type"`
	Template         waTemplate `json:"template"`
}

type waTemplate struct {
	Name       string        `json:"name"`
	Language   waLanguage    `json:"language"`
	Components []waComponent `json:"components"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waComponent struct {
	Type       string        `json:"type"`
	Parameters []waParameter `json:"parameters"`
}

type waParameter struct {
	Type          string   `json:"type"`
	Text          string   `json:"text,omitempty"`
	ParameterName string   `json:"parameter_name,omitempty"`
	Image         *waImage `json:"image,omitempty"`
}

type waImage struct {
	Link string `json:"link"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate sends the configured template with an image header and a body
// text parameter. to must be in international digits form (no plus sign).
// It returns the provider message id.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, to, imageURL, messageText string) (string, error) {
	payload := waTemplatePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: waTemplate{
			Name:     c.templateName,
			Language: waLanguage{Code: "en"},
			Components: []waComponent{
				{
					Type: "header",
					Parameters: []waParameter{
						{Type: "image", Image: &waImage{Link: imageURL}},
					},
				},
				{
					Type: "body",
					Parameters: []waParameter{
						{Type: "text", Text: messageText, ParameterName: "message"},
					},
				},
			},
		},
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
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

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	var wr waSendResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if len(wr.Messages) == 0 || wr.Messages[0].ID == "" {
		return "", fmt.Errorf("missing message id in response body=%q", string(body))
	}

	return wr.Messages[0].ID, nil
}
