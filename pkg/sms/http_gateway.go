package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/bus-booking-backend/pkg/validator"
)

// tokenRefreshMargin is how long before expiry a cached token is renewed
const tokenRefreshMargin = 5 * time.Minute

// HTTPGateway sends SMS through a bulk SMS provider that uses a login
// token and a JSON send endpoint (POST {api}/login, POST {api}/sms).
type HTTPGateway struct {
	apiURL   string
	username string
	password string
	senderID string
	client   *http.Client
	phones   *validator.PhoneValidator
	logger   *logrus.Logger

	tokenMutex  sync.RWMutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

// HTTPConfig holds configuration for the HTTP SMS gateway
type HTTPConfig struct {
	APIURL   string
	Username string
	Password string
	SenderID string
	Timeout  time.Duration
}

// NewHTTPGateway creates a new HTTP SMS gateway client
func NewHTTPGateway(config HTTPConfig, logger *logrus.Logger) *HTTPGateway {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		apiURL:   strings.TrimRight(config.APIURL, "/"),
		username: config.Username,
		password: config.Password,
		senderID: config.SenderID,
		client:   &http.Client{Timeout: timeout},
		phones:   validator.NewPhoneValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

type recipient struct {
	Mobile string `json:"mobile"`
}

type sendRequest struct {
	MSISDN        []recipient `json:"msisdn"`
	Message       string      `json:"message"`
	SourceAddress string      `json:"sourceAddress,omitempty"`
	TransactionID int64       `json:"transaction_id"`
}

type sendResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID   int     `json:"campaignId"`
		CampaignCost float64 `json:"campaignCost"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// Send delivers message to one phone number
func (g *HTTPGateway) Send(ctx context.Context, phone, message string) (int64, error) {
	mobile, err := g.phones.Validate(phone)
	if err != nil {
		return 0, fmt.Errorf("failed to format phone number: %w", err)
	}

	token, err := g.ensureValidToken(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	transactionID := g.now().UnixMicro()
	payload := sendRequest{
		MSISDN:        []recipient{{Mobile: mobile}},
		Message:       message,
		SourceAddress: g.senderID,
		TransactionID: transactionID,
	}

	var resp sendResponse
	if err := g.postJSON(ctx, "/sms", token, payload, &resp); err != nil {
		return 0, fmt.Errorf("failed to send SMS: %w", err)
	}
	if resp.Status != "success" {
		// A rejected token is dropped so the next send logs in again
		if resp.ErrCode == "104" {
			g.clearToken()
		}
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", resp.Comment, resp.ErrCode)
	}

	g.logger.WithFields(logrus.Fields{
		"transaction_id": transactionID,
		"campaign_id":    resp.Data.CampaignID,
		"cost":           resp.Data.CampaignCost,
	}).Debug("SMS sent")

	return transactionID, nil
}

// GetName returns the name of this gateway
func (g *HTTPGateway) GetName() string {
	return "HTTP SMS Gateway"
}

func (g *HTTPGateway) ensureValidToken(ctx context.Context) (string, error) {
	g.tokenMutex.RLock()
	token, expiry := g.token, g.tokenExpiry
	g.tokenMutex.RUnlock()

	if token != "" && g.now().Before(expiry.Add(-tokenRefreshMargin)) {
		return token, nil
	}
	return g.login(ctx)
}

func (g *HTTPGateway) login(ctx context.Context) (string, error) {
	var resp loginResponse
	err := g.postJSON(ctx, "/login", "", loginRequest{Username: g.username, Password: g.password}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Status != "success" || resp.Token == "" {
		return "", fmt.Errorf("login failed: %s (error code: %s)", resp.Comment, resp.ErrCode)
	}

	g.tokenMutex.Lock()
	g.token = resp.Token
	g.tokenExpiry = g.now().Add(time.Duration(resp.Expiration) * time.Second)
	g.tokenMutex.Unlock()

	g.logger.WithField("expires_in", resp.Expiration).Info("SMS gateway login succeeded")
	return resp.Token, nil
}

func (g *HTTPGateway) clearToken() {
	g.tokenMutex.Lock()
	g.token = ""
	g.tokenMutex.Unlock()
}

func (g *HTTPGateway) postJSON(ctx context.Context, path, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
