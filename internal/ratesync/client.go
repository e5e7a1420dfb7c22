// Package ratesync загружает курсы валют из Open Exchange Rates и сохраняет их в хранилище.
package ratesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultBaseURL задаёт адрес API Open Exchange Rates.
const DefaultBaseURL = "https://openexchangerates.org"

// ErrNotConfigured возвращается, если не задан идентификатор приложения API.
var ErrNotConfigured = errors.New("open exchange rates app id is not configured")

// Client инкапсулирует HTTP-взаимодействие с сервисом курсов валют.
type Client struct {
	baseURL    string
	appID      string
	httpClient *retryablehttp.Client
}

type latestResponse struct {
	Base        string                     `json:"base"`
	Rates       map[string]decimal.Decimal `json:"rates"`
	Error       bool                       `json:"error"`
	Message     string                     `json:"message"`
	Description string                     `json:"description"`
}

// NewClient создаёт клиент с повторами запросов при временных ошибках.
func NewClient(baseURL, appID string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = 10 * time.Second
	if logger != nil {
		hc.Logger = leveledLogger{s: logger.Sugar()}
	} else {
		hc.Logger = nil
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		appID:      appID,
		httpClient: hc,
	}
}

// Latest запрашивает актуальные курсы относительно валюты base.
func (c *Client) Latest(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if c == nil || c.appID == "" {
		return nil, ErrNotConfigured
	}

	q := url.Values{}
	q.Set("app_id", c.appID)
	q.Set("base", base)
	endpoint := fmt.Sprintf("%s/api/latest.json?%s", c.baseURL, q.Encode())

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var result latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Error {
		return nil, fmt.Errorf("api error: %s", result.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return result.Rates, nil
}

// leveledLogger перенаправляет журнал retryablehttp в zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }
func (l leveledLogger) Info(msg string, keysAndValues ...interface{})  { l.s.Infow(msg, keysAndValues...) }
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l leveledLogger) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
