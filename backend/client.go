package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coinflip/models"
	"coinflip/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var _ service.BackendClient = (*Client)(nil)

// Errors mapped from backend status codes
var (
	ErrBadRequest          = errors.New("backend rejected the request")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrServerMisconfigured = errors.New("backend misconfigured")
	ErrUpstreamTimeout     = errors.New("backend upstream timeout")
	ErrUnexpectedStatus    = errors.New("unexpected backend status")
)

const (
	// maxPayloadBytes mirrors the server's body limit
	maxPayloadBytes = 100 * 1024

	defaultTimeout  = 10 * time.Second
	requestIDHeader = "X-Request-ID"
)

// allowedWagers is the fixed wager set the backend accepts
var allowedWagers = []float64{0.25, 0.5, 1, 2}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("wager_amount", func(fl validator.FieldLevel) bool {
		amount := fl.Field().Float()
		for _, allowed := range allowedWagers {
			if amount == allowed {
				return true
			}
		}
		return false
	})
	return v
}

// Client talks to the bet-recording and leaderboard API
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (e errorBody) text() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// statusError maps a non-2xx response onto the typed errors
func statusError(status int, body []byte) error {
	var parsed errorBody
	_ = json.Unmarshal(body, &parsed)
	detail := parsed.text()
	if detail == "" {
		detail = strings.TrimSpace(string(body))
	}

	var base error
	switch status {
	case http.StatusBadRequest:
		base = ErrBadRequest
	case http.StatusRequestEntityTooLarge:
		base = ErrPayloadTooLarge
	case http.StatusInternalServerError:
		base = ErrServerMisconfigured
	case http.StatusGatewayTimeout:
		base = ErrUpstreamTimeout
	default:
		base = fmt.Errorf("%w %d", ErrUnexpectedStatus, status)
	}
	if detail == "" {
		return base
	}
	return fmt.Errorf("%w: %s", base, detail)
}

// do sends one request and returns the response body of a 2xx reply
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.WithFields(log.Fields{
		"method":    method,
		"path":      path,
		"status":    resp.StatusCode,
		"requestID": requestID,
		"duration":  time.Since(start),
	}).Debug("Backend request completed")
	return resp.StatusCode, respBody, nil
}

// RecordBet posts one settled bet
func (c *Client) RecordBet(ctx context.Context, record models.BetRecord) error {
	if err := validate.Struct(record); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode bet record: %w", err)
	}
	if len(body) > maxPayloadBytes {
		return ErrPayloadTooLarge
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/api/bet", body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("failed to record bet: %w", statusError(status, respBody))
	}
	return nil
}

func isNotFound(status int, body []byte) bool {
	if status == http.StatusNotFound {
		return true
	}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(parsed.text()), "not found")
}

// GetUserStats returns the aggregate stats for address. An address the
// backend has never seen yields zeroed stats.
func (c *Client) GetUserStats(ctx context.Context, address string) (*models.PlayerStats, error) {
	address = strings.ToLower(address)
	status, body, err := c.do(ctx, http.MethodGet, "/api/user/"+url.PathEscape(address), nil)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		if isNotFound(status, body) {
			return &models.PlayerStats{PlayerAddress: address}, nil
		}
		return nil, fmt.Errorf("failed to get user stats: %w", statusError(status, body))
	}
	if isNotFound(status, body) {
		return &models.PlayerStats{PlayerAddress: address}, nil
	}

	var stats models.PlayerStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode user stats: %w", err)
	}
	if stats.PlayerAddress == "" {
		stats.PlayerAddress = address
	}
	return &stats, nil
}

// GetLeaderboard returns one leaderboard page
func (c *Client) GetLeaderboard(ctx context.Context, query models.LeaderboardQuery) (*models.LeaderboardPage, error) {
	params := url.Values{}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.PlayerAddress != "" {
		params.Set("player_address", strings.ToLower(query.PlayerAddress))
	}
	if query.SortBy != "" {
		params.Set("sort_by", query.SortBy)
	}

	path := "/api/leaderboard"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("failed to get leaderboard: %w", statusError(status, body))
	}

	var page models.LeaderboardPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode leaderboard: %w", err)
	}
	if page.Data == nil {
		page.Data = []models.PlayerStats{}
	}
	return &page, nil
}
