package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/jemaat/internal/flow"
)

const directoryTokenLeeway = 30 * time.Second

// ErrDirectoryUnavailable wraps transport-level failures talking to the
// member directory. Always recoverable by retry.
var ErrDirectoryUnavailable = errors.New("member directory unavailable")

// DirectoryService is the HTTP client for the church-platform member
// directory: point lookup by phone, fuzzy search, OTP issuance/verification
// and pre-visitor creation. Access tokens are cached and refreshed with
// leeway; a request that comes back 401 is retried once with a fresh token.
type DirectoryService struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        zerolog.Logger

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

// NewDirectoryService constructs a client for the given directory API.
func NewDirectoryService(baseURL, apiKey, apiSecret string, log zerolog.Logger) *DirectoryService {
	return &DirectoryService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "directory").Logger(),
	}
}

type directoryAuthResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

func (s *DirectoryService) getToken(force bool) (string, error) {
	if !force {
		s.tokenMu.RLock()
		if s.token != "" && time.Now().Before(s.tokenExpiry) {
			token := s.token
			s.tokenMu.RUnlock()
			return token, nil
		}
		s.tokenMu.RUnlock()
	}

	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	// Check again in case another goroutine refreshed while we waited.
	if !force && s.token != "" && time.Now().Before(s.tokenExpiry) {
		return s.token, nil
	}

	payload, _ := json.Marshal(map[string]string{
		"api_key":    s.apiKey,
		"api_secret": s.apiSecret,
	})

	req, err := http.NewRequest(http.MethodPost, s.baseURL+"/auth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("directory auth request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("directory auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var authResp directoryAuthResponse
	if err := json.Unmarshal(body, &authResp); err != nil {
		return "", fmt.Errorf("directory auth unmarshal: %w", err)
	}
	if authResp.Token == "" {
		return "", errors.New("directory auth: empty token")
	}

	s.token = authResp.Token
	if authResp.ExpiresIn > 0 {
		s.tokenExpiry = time.Now().Add(time.Duration(authResp.ExpiresIn)*time.Second - directoryTokenLeeway)
	} else {
		s.tokenExpiry = time.Now().Add(55 * time.Minute)
	}

	return s.token, nil
}

type directoryRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   any
}

type directoryResponse struct {
	Status int
	Body   []byte
}

func (s *DirectoryService) do(opts directoryRequest) (*directoryResponse, error) {
	token, err := s.getToken(false)
	if err != nil {
		return nil, err
	}

	resp, err := s.doOnce(opts, token)
	if err != nil {
		return nil, err
	}

	// Retry once on 401 with a forced token refresh.
	if resp.Status == http.StatusUnauthorized {
		token, err = s.getToken(true)
		if err != nil {
			return nil, err
		}
		return s.doOnce(opts, token)
	}

	return resp, nil
}

func (s *DirectoryService) doOnce(opts directoryRequest, token string) (*directoryResponse, error) {
	endpoint := s.baseURL + "/" + strings.TrimLeft(opts.Path, "/")
	if len(opts.Query) > 0 {
		values := url.Values{}
		for key, value := range opts.Query {
			values.Set(key, value)
		}
		endpoint += "?" + values.Encode()
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		data, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("directory request marshal: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("directory request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return &directoryResponse{Status: resp.StatusCode, Body: respBody}, nil
}

type memberEnvelope struct {
	Data flow.Member `json:"data"`
}

type memberListEnvelope struct {
	Data []flow.Member `json:"data"`
}

// LookupMemberByPhone resolves an exact phone to a member record. Returns
// nil without error when the directory does not know the number.
func (s *DirectoryService) LookupMemberByPhone(phone, churchID string) (*flow.Member, error) {
	resp, err := s.do(directoryRequest{
		Method: http.MethodGet,
		Path:   "members/lookup",
		Query:  map[string]string{"phone": phone, "church_id": churchID},
	})
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		return nil, nil
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("directory lookup: status %d, body: %s", resp.Status, string(resp.Body))
	}

	var envelope memberEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("directory lookup unmarshal: %w", err)
	}
	if envelope.Data.ID == "" {
		return nil, nil
	}
	member := envelope.Data
	return &member, nil
}

// SearchMembers runs a fuzzy name/phone-substring search scoped to a church.
func (s *DirectoryService) SearchMembers(query, churchID string) ([]flow.Member, error) {
	resp, err := s.do(directoryRequest{
		Method: http.MethodGet,
		Path:   "members/search",
		Query:  map[string]string{"query": query, "church_id": churchID},
	})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("directory search: status %d, body: %s", resp.Status, string(resp.Body))
	}

	var envelope memberListEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("directory search unmarshal: %w", err)
	}
	return envelope.Data, nil
}

// SendOTP asks the directory's companion OTP service to issue a code for the
// phone. Returns the server-announced validity window in seconds; zero when
// the server omits the field (the caller applies its default).
func (s *DirectoryService) SendOTP(phone, churchID string) (int, error) {
	resp, err := s.do(directoryRequest{
		Method: http.MethodPost,
		Path:   "otp/send",
		Body:   map[string]string{"phone": phone, "church_id": churchID},
	})
	if err != nil {
		return 0, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return 0, fmt.Errorf("directory send otp: status %d, body: %s", resp.Status, string(resp.Body))
	}

	var result struct {
		ExpiresInSeconds int `json:"expires_in_seconds"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return 0, fmt.Errorf("directory send otp unmarshal: %w", err)
	}
	return result.ExpiresInSeconds, nil
}

// VerifyOTP checks a submitted code. A false return means the server
// rejected the code; the session returns to awaiting input.
func (s *DirectoryService) VerifyOTP(phone, code string) (bool, error) {
	resp, err := s.do(directoryRequest{
		Method: http.MethodPost,
		Path:   "otp/verify",
		Body:   map[string]string{"phone": phone, "code": code},
	})
	if err != nil {
		return false, err
	}
	if resp.Status == http.StatusBadRequest || resp.Status == http.StatusUnprocessableEntity {
		return false, nil
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return false, fmt.Errorf("directory verify otp: status %d, body: %s", resp.Status, string(resp.Body))
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return false, fmt.Errorf("directory verify otp unmarshal: %w", err)
	}
	return result.Success, nil
}

// PreVisitorPayload is the creation payload for a person with no existing
// member record.
type PreVisitorPayload struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	Gender      string `json:"gender,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
	ChurchID    string `json:"church_id"`
}

// CreatePreVisitor registers a new guest with the directory and returns the
// record it created.
func (s *DirectoryService) CreatePreVisitor(payload PreVisitorPayload) (*flow.Member, error) {
	resp, err := s.do(directoryRequest{
		Method: http.MethodPost,
		Path:   "pre-visitors",
		Body:   payload,
	})
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status >= 300 {
		return nil, fmt.Errorf("directory create pre-visitor: status %d, body: %s", resp.Status, string(resp.Body))
	}

	var envelope memberEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("directory create pre-visitor unmarshal: %w", err)
	}
	member := envelope.Data
	return &member, nil
}
