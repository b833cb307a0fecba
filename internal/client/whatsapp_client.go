package client

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
	"unicode/utf8"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

const (
	maxButtons     = 3
	maxButtonTitle = 20
)

// DeliveryError is returned when the provider rejects a send. Permanent
// rejections must not be retried.
type DeliveryError struct {
	Permanent bool
	Status    int
	Detail    string
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery failure: status=%d detail=%q", kind, e.Status, e.Detail)
}

// IsPermanent reports whether err wraps a permanent DeliveryError.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}

type WhatsAppClient struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewWhatsAppClient(apiURL, phoneNumberID, token string, timeout time.Duration) *WhatsAppClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WhatsAppClient{
		endpoint: strings.TrimRight(apiURL, "/") + "/" + phoneNumberID + "/messages",
		token:    token,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type button struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type interactive struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []button `json:"buttons"`
	} `json:"action"`
}

type sendRequest struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *textBody    `json:"text,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText delivers a plain text message and returns the provider message id.
func (c *WhatsAppClient) SendText(ctx context.Context, to, text string) (string, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

// SendQuickReplies delivers text with up to three reply buttons. Extra
// options are dropped and titles are cut to the provider's limit.
func (c *WhatsAppClient) SendQuickReplies(ctx context.Context, to, text string, options []model.QuickReply) (string, error) {
	if len(options) == 0 {
		return c.SendText(ctx, to, text)
	}
	if len(options) > maxButtons {
		options = options[:maxButtons]
	}

	in := &interactive{Type: "button"}
	in.Body.Text = text
	for _, o := range options {
		in.Action.Buttons = append(in.Action.Buttons, button{
			Type:  "reply",
			Reply: buttonReply{ID: o.ID, Title: truncateRunes(o.Title, maxButtonTitle)},
		})
	}

	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      in,
	})
}

func (c *WhatsAppClient) send(ctx context.Context, payload sendRequest) (string, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &DeliveryError{
			Permanent: permanentStatus(resp.StatusCode),
			Status:    resp.StatusCode,
			Detail:    errorDetail(body),
		}
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("failed to decode json: %w body=%q", err, string(body))
	}
	if len(sr.Messages) == 0 || sr.Messages[0].ID == "" {
		return "", fmt.Errorf("missing message id in response body=%q", string(body))
	}

	return sr.Messages[0].ID, nil
}

// 4xx means the request itself is wrong, except for timeouts and rate limits.
func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

func errorDetail(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return string(body)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
