// Package remote is the HTTP client for the relay controller.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// RequestIDHeader carries the per-call request id.
const RequestIDHeader = "X-Request-ID"

// Mutation is the outcome of one mutating call.
type Mutation struct {
	RequestID string
	Op        string
	RelayID   int
	RuleID    int
	Payload   []byte
	Status    int
	Err       error
	Duration  time.Duration
}

// Recorder receives every mutation outcome.
type Recorder interface {
	RecordMutation(ctx context.Context, m Mutation)
}

// Observer receives the latency and status of every call.
type Observer interface {
	ObserveRequest(op string, status int, d time.Duration)
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Schema       string
	RateLimitRPS float64
	Recorder     Recorder
	Observer     Observer
}

// Client talks to the relay controller.
type Client struct {
	http     *resty.Client
	codec    relay.Codec
	limiter  *rate.Limiter
	recorder Recorder
	observer Observer

	// Settings saves never overlap.
	saveMu sync.Mutex
}

// NewClient creates a new Client
func NewClient(cfg Config) (*Client, error) {
	codec, err := relay.CodecFor(cfg.Schema)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 5.0
	}
	burst := int(cfg.RateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	r := resty.New()
	r.SetBaseURL(strings.TrimRight(cfg.BaseURL, "/"))
	r.SetTimeout(cfg.Timeout)
	r.SetHeader("Accept", "application/json")

	return &Client{
		http:     r,
		codec:    codec,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst),
		recorder: cfg.Recorder,
		observer: cfg.Observer,
	}, nil
}

// Schema returns the wire schema in use.
func (c *Client) Schema() relay.Schema {
	return c.codec.Version()
}

// SetRecorder attaches a mutation recorder.
func (c *Client) SetRecorder(r Recorder) {
	c.recorder = r
}

// SetObserver attaches a latency observer.
func (c *Client) SetObserver(o Observer) {
	c.observer = o
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

func (c *Client) request(ctx context.Context) (*resty.Request, string) {
	id := uuid.NewString()
	return c.http.R().SetContext(ctx).SetHeader(RequestIDHeader, id), id
}

func (c *Client) execute(op, method, path string, req *resty.Request) (*resty.Response, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if c.observer != nil {
		c.observer.ObserveRequest(op, status, time.Since(start))
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	}
	if resp.IsError() {
		return resp, &StatusError{Op: op, Code: status, Body: strings.TrimSpace(resp.String())}
	}
	return resp, nil
}

// mutate rate limits, executes and records a mutating call.
func (c *Client) mutate(ctx context.Context, m Mutation, method, path string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", m.Op, ErrRequestFailed, err)
	}

	start := time.Now()
	resp, err := c.execute(m.Op, method, path, req)
	m.Duration = time.Since(start)
	m.Err = err
	m.Status = StatusCode(err)
	if resp != nil {
		m.Status = resp.StatusCode()
	}

	if err != nil {
		log.Warn().Err(err).Str("op", m.Op).Str("request_id", m.RequestID).Msg("Device mutation failed")
	} else {
		log.Debug().Str("op", m.Op).Str("request_id", m.RequestID).Dur("took", m.Duration).Msg("Device mutation acknowledged")
	}
	if c.recorder != nil {
		c.recorder.RecordMutation(ctx, m)
	}
	return resp, err
}

func (c *Client) getJSON(ctx context.Context, op, path string, dst any) error {
	req, _ := c.request(ctx)
	resp, err := c.execute(op, resty.MethodGet, path, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return fmt.Errorf("%s: %w: %s", op, relay.ErrMalformedPayload, err)
	}
	return nil
}

func (c *Client) jsonBody(req *resty.Request, body []byte) *resty.Request {
	return req.SetHeader("Content-Type", "application/json").SetBody(body)
}

// ListRelays fetches every relay. When some entities are malformed the good
// ones are returned together with an error matching relay.ErrMalformedPayload.
func (c *Client) ListRelays(ctx context.Context) ([]relay.Relay, error) {
	req, _ := c.request(ctx)
	resp, err := c.execute("list relays", resty.MethodGet, "/api/all-relays", req)
	if err != nil {
		return nil, err
	}
	return relay.DecodeRelays(c.codec, resp.Body())
}

// SetRelayState switches a relay.
func (c *Client) SetRelayState(ctx context.Context, relayID int, state relay.State) error {
	body, err := c.codec.EncodeRelayState(relayID, state)
	if err != nil {
		return err
	}
	req, id := c.request(ctx)
	_, err = c.mutate(ctx, Mutation{RequestID: id, Op: "set relay state", RelayID: relayID, Payload: body},
		resty.MethodPost, "/api/relay-control", c.jsonBody(req, body))
	return err
}

// ListRules fetches one relay's rules. Malformed entities are handled as in
// ListRelays.
func (c *Client) ListRules(ctx context.Context, relayID int) ([]relay.AlarmRule, error) {
	req, _ := c.request(ctx)
	path := "/api/relay-alarms"
	if c.legacy() {
		path = "/api/relay-alarms/" + strconv.Itoa(relayID)
	} else {
		req.SetQueryParam("relayId", strconv.Itoa(relayID))
	}

	resp, err := c.execute("list rules", resty.MethodGet, path, req)
	if err != nil {
		return nil, err
	}
	return relay.DecodeRules(c.codec, relayID, resp.Body())
}

type createdResponse struct {
	ID *int `json:"id"`
}

// CreateRule adds a rule and returns the id the device assigned. The id is 0
// when the device only acknowledges.
func (c *Client) CreateRule(ctx context.Context, relayID int, rule relay.AlarmRule) (int, error) {
	rule.RelayID = relayID
	body, err := c.codec.EncodeRule(rule)
	if err != nil {
		return 0, err
	}

	req, id := c.request(ctx)
	resp, err := c.mutate(ctx, Mutation{RequestID: id, Op: "create rule", RelayID: relayID, Payload: body},
		resty.MethodPost, "/api/relay-alarm", c.jsonBody(req, body))
	if err != nil {
		return 0, err
	}

	var created createdResponse
	if err := json.Unmarshal(resp.Body(), &created); err != nil || created.ID == nil {
		return 0, nil
	}
	return *created.ID, nil
}

// UpdateRule replaces the fields of a rule.
func (c *Client) UpdateRule(ctx context.Context, relayID, ruleID int, rule relay.AlarmRule) error {
	rule.RelayID = relayID
	rule.ID = ruleID
	body, err := c.codec.EncodeRule(rule)
	if err != nil {
		return err
	}

	req, id := c.request(ctx)
	path := c.rulePath(req, relayID, ruleID)
	_, err = c.mutate(ctx, Mutation{RequestID: id, Op: "update rule", RelayID: relayID, RuleID: ruleID, Payload: body},
		resty.MethodPut, path, c.jsonBody(req, body))
	return err
}

// DeleteRule removes a rule.
func (c *Client) DeleteRule(ctx context.Context, relayID, ruleID int) error {
	req, id := c.request(ctx)
	path := c.rulePath(req, relayID, ruleID)
	_, err := c.mutate(ctx, Mutation{RequestID: id, Op: "delete rule", RelayID: relayID, RuleID: ruleID},
		resty.MethodDelete, path, req)
	return err
}

func (c *Client) legacy() bool {
	return c.codec.Version() == relay.SchemaLegacy
}

func (c *Client) rulePath(req *resty.Request, relayID, ruleID int) string {
	if c.legacy() {
		return fmt.Sprintf("/api/relay-alarm/%d/%d", relayID, ruleID)
	}
	req.SetQueryParam("relayId", strconv.Itoa(relayID))
	req.SetQueryParam("alarmId", strconv.Itoa(ruleID))
	return "/api/relay-alarm"
}

// GetSettings loads the settings record.
func (c *Client) GetSettings(ctx context.Context) (relay.Settings, error) {
	var s relay.Settings
	if err := c.getJSON(ctx, "get settings", "/api/settings", &s); err != nil {
		return relay.Settings{}, err
	}
	return s, nil
}

// SaveSettings stores the settings record. Concurrent saves are serialized.
func (c *Client) SaveSettings(ctx context.Context, s relay.Settings) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	req, id := c.request(ctx)
	_, err = c.mutate(ctx, Mutation{RequestID: id, Op: "save settings", Payload: body},
		resty.MethodPost, "/api/settings", c.jsonBody(req, body))
	return err
}

// GetServerTime reads the device clock.
func (c *Client) GetServerTime(ctx context.Context) (relay.DeviceTime, error) {
	var t relay.DeviceTime
	if err := c.getJSON(ctx, "get server time", "/api/server-time", &t); err != nil {
		return relay.DeviceTime{}, err
	}
	return t, nil
}

// AdjustServerTime nudges the device clock and returns the resulting time when
// the device reports it.
func (c *Client) AdjustServerTime(ctx context.Context, adj relay.TimeAdjustment) (relay.DeviceTime, error) {
	body, err := json.Marshal(adj)
	if err != nil {
		return relay.DeviceTime{}, err
	}

	req, id := c.request(ctx)
	resp, err := c.mutate(ctx, Mutation{RequestID: id, Op: "adjust server time", Payload: body},
		resty.MethodPost, "/api/server-time", c.jsonBody(req, body))
	if err != nil {
		return relay.DeviceTime{}, err
	}

	var t relay.DeviceTime
	_ = json.Unmarshal(resp.Body(), &t)
	return t, nil
}

type firmwareResponse struct {
	Message string `json:"message"`
}

// UploadFirmware sends a firmware image as the multipart field "firmware".
func (c *Client) UploadFirmware(ctx context.Context, name string, r io.Reader) (string, error) {
	req, id := c.request(ctx)
	req.SetFileReader("firmware", name, r)

	resp, err := c.mutate(ctx, Mutation{RequestID: id, Op: "upload firmware", Payload: []byte(name)},
		resty.MethodPost, "/api/update-firmware", req)
	if err != nil {
		return "", err
	}

	var out firmwareResponse
	if json.Unmarshal(resp.Body(), &out) != nil {
		return strings.TrimSpace(resp.String()), nil
	}
	return out.Message, nil
}
