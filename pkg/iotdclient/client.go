// Package iotdclient talks to the IOTD API on behalf of one staff member.
//
// Promote, Retract and Dismiss run the engine pre-checks locally and return
// the engine error without touching the network when the action is
// disallowed. Rejections from the backend come back unmodified as *APIError.
package iotdclient

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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/iotd-api/internal/dto"
	"github.com/noah-isme/iotd-api/internal/models"
	"github.com/noah-isme/iotd-api/pkg/iotd"
)

// ErrConfirmationRequired is returned locally when a dismissal was not confirmed.
var ErrConfirmationRequired = errors.New("dismissal requires confirmation")

// APIError is a rejection reported by the backend.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("iotd api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Snapshot is the caller's view of its own records for one stage and of the
// backend configuration at the time of an action.
type Snapshot struct {
	Config  iotd.Config
	Records []iotd.Record
}

// Client is safe for concurrent use once configured.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
	clock   func() time.Time
	logger  *zap.Logger

	mu        sync.RWMutex
	loc       *time.Location
	pinnedLoc bool
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token used on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithClock sets the clock used for the quota day.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLocation pins the quota day location. Without it the client adopts
// the zone the backend reports from Config, and UTC until then.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		c.loc = loc
		c.pinnedLoc = loc != nil
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client for the API rooted at baseURL, e.g. http://host/api/v1.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		clock:   time.Now,
		loc:     time.UTC,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	var out models.LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.token = out.AccessToken
	return &out, nil
}

// Config fetches the backend configuration. Callers fetch it once per
// session and pass it along in a Snapshot. The reported quota timezone
// becomes the client's quota day unless WithLocation pinned one.
func (c *Client) Config(ctx context.Context) (iotd.Config, error) {
	var out dto.IotdConfigResponse
	if err := c.do(ctx, http.MethodGet, "/iotd/config", nil, &out); err != nil {
		return iotd.Config{}, err
	}
	c.adoptTimezone(out.QuotaTimezone)
	var cfg iotd.Config
	for key, value := range out.Values {
		if err := cfg.Set(key, value); err != nil {
			c.logger.Debug("ignoring unknown config key", zap.String("key", key))
		}
	}
	return cfg, nil
}

// Queue fetches one page of a stage queue.
func (c *Client) Queue(ctx context.Context, stage iotd.Stage, page, pageSize int) (*dto.QueuePage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}
	path := "/iotd/" + stage.Slug() + "/queue"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out dto.QueuePage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Records fetches the caller's own records for stage.
func (c *Client) Records(ctx context.Context, stage iotd.Stage) ([]iotd.Record, error) {
	var out dto.PromotionList
	if err := c.do(ctx, http.MethodGet, "/iotd/"+stage.Slug()+"/promotions", nil, &out); err != nil {
		return nil, err
	}
	return models.ToRecords(out.Records), nil
}

// Snapshot fetches the configuration and the caller's records for stage.
func (c *Client) Snapshot(ctx context.Context, stage iotd.Stage) (Snapshot, error) {
	cfg, err := c.Config(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	records, err := c.Records(ctx, stage)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Config: cfg, Records: records}, nil
}

// Engine returns an engine bound to the client's clock and quota location.
func (c *Client) Engine(cfg iotd.Config) *iotd.Engine {
	return iotd.NewEngine(cfg, c.clock, c.Location())
}

// Location is the zone the client uses for the quota day.
func (c *Client) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loc
}

func (c *Client) adoptTimezone(zone string) {
	if zone == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinnedLoc {
		return
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		c.logger.Warn("unknown quota timezone, keeping current", zap.String("zone", zone), zap.Error(err))
		return
	}
	c.loc = loc
}

// Promote creates a promotion record after the local eligibility check.
func (c *Client) Promote(ctx context.Context, stage iotd.Stage, snap Snapshot, imageID string) (*models.PromotionRecord, error) {
	engine := c.Engine(snap.Config)
	promoted := iotd.IsPromoted(stage, snap.Records, imageID)
	if err := iotd.CheckPromote(stage, engine.Today(snap.Records), snap.Config.MaxPerDay(stage), promoted); err != nil {
		return nil, err
	}
	var out models.PromotionRecord
	if err := c.do(ctx, http.MethodPost, "/iotd/"+stage.Slug()+"/promotions", dto.PromotionRequest{ImageID: imageID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Retract deletes one of the caller's own records.
func (c *Client) Retract(ctx context.Context, stage iotd.Stage, records []iotd.Record, recordID string) error {
	if err := iotd.CheckRetract(records, recordID); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/iotd/"+stage.Slug()+"/promotions/"+url.PathEscape(recordID), nil, nil)
}

// Hide removes an image from the caller's queues until unhidden.
func (c *Client) Hide(ctx context.Context, imageID string) (*models.HiddenImage, error) {
	var out models.HiddenImage
	if err := c.do(ctx, http.MethodPost, "/iotd/hidden-images", dto.VisibilityRequest{ImageID: imageID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unhide restores a hidden image.
func (c *Client) Unhide(ctx context.Context, hiddenID string) error {
	return c.do(ctx, http.MethodDelete, "/iotd/hidden-images/"+url.PathEscape(hiddenID), nil, nil)
}

// Dismiss irreversibly dismisses an image. confirmed must be true.
func (c *Client) Dismiss(ctx context.Context, imageID string, confirmed bool) (*dto.DismissalResponse, error) {
	if iotd.RequiresConfirmation(iotd.ActionDismiss) && !confirmed {
		return nil, ErrConfirmationRequired
	}
	var out dto.DismissalResponse
	req := dto.VisibilityRequest{ImageID: imageID, Confirm: confirmed}
	if err := c.do(ctx, http.MethodPost, "/iotd/dismissed-images", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *APIError       `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("iotd api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		if env.Error == nil {
			env.Error = &APIError{Message: http.StatusText(resp.StatusCode)}
		}
		if env.Error.Status == 0 {
			env.Error.Status = resp.StatusCode
		}
		return env.Error
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
