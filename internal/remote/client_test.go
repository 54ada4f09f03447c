package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayboard/internal/relay"
)

type recordedRequest struct {
	Method    string
	Path      string
	Query     string
	RequestID string
	Body      string
}

type deviceStub struct {
	mu       sync.Mutex
	requests []recordedRequest
	mux      *http.ServeMux
}

func newDeviceStub(t *testing.T) (*deviceStub, *httptest.Server) {
	t.Helper()
	d := &deviceStub{mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := ""
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
			r.Body = io.NopCloser(strings.NewReader(body))
		}
		d.mu.Lock()
		d.requests = append(d.requests, recordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			Query:     r.URL.RawQuery,
			RequestID: r.Header.Get(RequestIDHeader),
			Body:      body,
		})
		d.mu.Unlock()
		d.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return d, srv
}

func (d *deviceStub) last() recordedRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

type recorderFunc func(Mutation)

func (f recorderFunc) RecordMutation(_ context.Context, m Mutation) { f(m) }

func newTestClient(t *testing.T, url, schema string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, Schema: schema, Timeout: 2 * time.Second, RateLimitRPS: 1000})
	require.NoError(t, err)
	return c
}

func TestListRelays(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("GET /api/all-relays", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"relays":[{"id":1,"name":"Pump","state":true},{"id":2,"name":"Fan","state":false},{"id":3}]}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	relays, err := c.ListRelays(context.Background())

	assert.ErrorIs(t, err, relay.ErrMalformedPayload)
	assert.Equal(t, []relay.Relay{
		{ID: 1, Name: "Pump", State: relay.StateOn},
		{ID: 2, Name: "Fan", State: relay.StateOff},
	}, relays)
	assert.NotEmpty(t, d.last().RequestID)
}

func TestSetRelayStateRecordsMutation(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("POST /api/relay-control", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"status":"ok"}`)
	})

	var got []Mutation
	c := newTestClient(t, srv.URL, "")
	c.SetRecorder(recorderFunc(func(m Mutation) { got = append(got, m) }))

	require.NoError(t, c.SetRelayState(context.Background(), 2, relay.StateOn))

	req := d.last()
	assert.JSONEq(t, `{"relayId":2,"state":"on"}`, req.Body)
	require.Len(t, got, 1)
	assert.Equal(t, "set relay state", got[0].Op)
	assert.Equal(t, 2, got[0].RelayID)
	assert.Equal(t, 200, got[0].Status)
	assert.Equal(t, req.RequestID, got[0].RequestID)
	assert.NoError(t, got[0].Err)
}

func TestListRulesV1UsesQuery(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("GET /api/relay-alarms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"alarms":[{"id":4,"state":true,"time":"07:30:00","weekdays":[false,true,false,false,false,false,false]}]}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	rules, err := c.ListRules(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, "relayId=3", d.last().Query)
	require.Len(t, rules, 1)
	assert.Equal(t, relay.AlarmRule{ID: 4, RelayID: 3, Trigger: relay.TimeOfDay{Hour: 7, Minute: 30}, Target: relay.StateOn,
		Weekdays: relay.WeekdaysOf(time.Monday)}, rules[0])
}

func TestLegacySchemaUsesPathSegments(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("GET /api/relay-alarms/{relay}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"alarms":[{"id":1,"state":"off","time":"06:00:00","weekdays":["sat","sun"]}]}`)
	})
	d.mux.HandleFunc("PUT /api/relay-alarm/{relay}/{rule}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	})
	d.mux.HandleFunc("DELETE /api/relay-alarm/{relay}/{rule}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{}`)
	})

	c := newTestClient(t, srv.URL, "legacy")
	assert.Equal(t, relay.SchemaLegacy, c.Schema())

	rules, err := c.ListRules(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "/api/relay-alarms/2", d.last().Path)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].Weekdays.On(time.Sunday))
	assert.Equal(t, relay.StateOff, rules[0].Target)

	rule := rules[0]
	rule.Target = relay.StateOn
	require.NoError(t, c.UpdateRule(context.Background(), 2, 1, rule))
	req := d.last()
	assert.Equal(t, "/api/relay-alarm/2/1", req.Path)
	assert.Empty(t, req.Query)

	var wire map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &wire))
	assert.Equal(t, "on", wire["state"])

	require.NoError(t, c.DeleteRule(context.Background(), 2, 1))
	assert.Equal(t, http.MethodDelete, d.last().Method)
	assert.Equal(t, "/api/relay-alarm/2/1", d.last().Path)
}

func TestRuleMutationsV1(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("POST /api/relay-alarm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"id":12}`)
	})
	d.mux.HandleFunc("PUT /api/relay-alarm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"status":"ok"}`)
	})
	d.mux.HandleFunc("DELETE /api/relay-alarm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"status":"ok"}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	ctx := context.Background()
	rule := relay.AlarmRule{Trigger: relay.TimeOfDay{Hour: 8}, Target: relay.StateOn}

	id, err := c.CreateRule(ctx, 3, rule)
	require.NoError(t, err)
	assert.Equal(t, 12, id)
	assert.JSONEq(t, `{"id":0,"relayId":3,"state":true,"time":"08:00:00","weekdays":[false,false,false,false,false,false,false]}`, d.last().Body)

	require.NoError(t, c.UpdateRule(ctx, 3, 12, rule))
	assert.Equal(t, "alarmId=12&relayId=3", d.last().Query)

	require.NoError(t, c.DeleteRule(ctx, 3, 12))
	assert.Equal(t, "alarmId=12&relayId=3", d.last().Query)
	assert.Equal(t, http.MethodDelete, d.last().Method)
}

func TestCreateRuleAckWithoutID(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("POST /api/relay-alarm", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Alarm added"))
	})

	c := newTestClient(t, srv.URL, "v1")
	id, err := c.CreateRule(context.Background(), 1, relay.DefaultDraft(1))
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestNon2xxIsStatusError(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("DELETE /api/relay-alarm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, `{"error":"flash write failed"}`)
	})

	var recorded Mutation
	c := newTestClient(t, srv.URL, "v1")
	c.SetRecorder(recorderFunc(func(m Mutation) { recorded = m }))

	err := c.DeleteRule(context.Background(), 1, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Code)
	assert.Contains(t, se.Body, "flash write failed")
	assert.Equal(t, 500, StatusCode(err))

	assert.Equal(t, 500, recorded.Status)
	assert.Error(t, recorded.Err)
}

func TestTransportErrorIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url, "v1")
	_, err := c.ListRelays(context.Background())
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Zero(t, StatusCode(err))
}

func TestSettings(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("GET /api/settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"systemName":"Garden","relays":[{"id":1,"name":"Pump"}]}`)
	})
	d.mux.HandleFunc("POST /api/settings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"status":"ok"}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	s, err := c.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, relay.Settings{SystemName: "Garden", Relays: []relay.RelayName{{ID: 1, Name: "Pump"}}}, s)

	require.NoError(t, c.SaveSettings(context.Background(), s.WithName(1, "Well")))
	assert.JSONEq(t, `{"systemName":"Garden","relays":[{"id":1,"name":"Well"}]}`, d.last().Body)
}

func TestSaveSettingsSerialized(t *testing.T) {
	d, srv := newDeviceStub(t)
	var active, maxActive atomic.Int32
	d.mux.HandleFunc("POST /api/settings", func(w http.ResponseWriter, r *http.Request) {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		writeJSON(w, 200, `{}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.SaveSettings(context.Background(), relay.Settings{SystemName: "x"}))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestServerTime(t *testing.T) {
	d, srv := newDeviceStub(t)
	d.mux.HandleFunc("GET /api/server-time", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"hour":9,"minute":5,"second":1,"year":2024,"month":3,"day":7}`)
	})
	d.mux.HandleFunc("POST /api/server-time", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"hour":10,"minute":5,"second":1,"year":2024,"month":3,"day":8}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	now, err := c.GetServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-07", now.Date())
	assert.Equal(t, "09:05:01", now.Clock())

	after, err := c.AdjustServerTime(context.Background(), relay.TimeAdjustment{Hours: 1, Date: "2024-03-08"})
	require.NoError(t, err)
	assert.Equal(t, 10, after.Hour)
	assert.JSONEq(t, `{"hourAdjustment":1,"minuteAdjustment":0,"secondAdjustment":0,"date":"2024-03-08"}`, d.last().Body)
}

func TestUploadFirmware(t *testing.T) {
	d, srv := newDeviceStub(t)
	var got string
	d.mux.HandleFunc("POST /api/update-firmware", func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("firmware")
		if err != nil {
			writeJSON(w, 400, `{"error":"no file"}`)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		got = hdr.Filename + ":" + string(b)
		writeJSON(w, 200, `{"message":"Update successful"}`)
	})

	c := newTestClient(t, srv.URL, "v1")
	msg, err := c.UploadFirmware(context.Background(), "fw.bin", strings.NewReader("IMAGE"))
	require.NoError(t, err)
	assert.Equal(t, "Update successful", msg)
	assert.Equal(t, "fw.bin:IMAGE", got)
}

func TestNewClientRejectsUnknownSchema(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://device", Schema: "v9"})
	assert.Error(t, err)
}
