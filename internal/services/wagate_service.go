package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WagateService talks to the WhatsApp message gateway used for courtesy
// messages (welcome after first check-in, registration confirmations). Code
// delivery itself is handled by the directory's OTP service. When the
// gateway is not configured, every send is a silent no-op: these messages
// must never block or fail the primary transaction.
type WagateService struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewWagateService creates a gateway client. An empty baseURL disables it.
func NewWagateService(baseURL, apiKey string, log zerolog.Logger) *WagateService {
	return &WagateService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "wagate").Logger(),
	}
}

// Enabled reports whether a gateway endpoint is configured.
func (s *WagateService) Enabled() bool {
	return s.baseURL != ""
}

type wagateMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendMessage posts a text message to the gateway and returns the gateway
// message ID for delivery-status correlation.
func (s *WagateService) SendMessage(phone, text string) (string, error) {
	if !s.Enabled() {
		s.log.Debug().Msg("gateway not configured, skipping message")
		return "", nil
	}

	body, err := json.Marshal(wagateMessage{Phone: phone, Message: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("wagate request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("gateway send failed")
		return "", fmt.Errorf("wagate send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.Warn().Int("status", resp.StatusCode).Msg("gateway rejected message")
		return "", fmt.Errorf("wagate send: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", nil
	}
	return result.MessageID, nil
}

// NotifyWelcome greets a newly checked-in guest. Failures are logged, never
// propagated.
func (s *WagateService) NotifyWelcome(phone, name, churchName string) {
	text := fmt.Sprintf("Hi %s, welcome to %s! Your check-in is confirmed.", name, churchName)
	if _, err := s.SendMessage(phone, text); err != nil {
		s.log.Warn().Err(err).Str("phone", phone).Msg("welcome message failed")
	}
}

// NotifyRegistration confirms a group registration to the primary
// registrant. Failures are logged, never propagated.
func (s *WagateService) NotifyRegistration(phone, eventTitle string, partySize int) {
	text := fmt.Sprintf("You are registered for %s with a party of %d. See you there!", eventTitle, partySize)
	if _, err := s.SendMessage(phone, text); err != nil {
		s.log.Warn().Err(err).Str("phone", phone).Msg("registration message failed")
	}
}
