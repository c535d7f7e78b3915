package iotdclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/iotd-api/pkg/iotd"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type backend struct {
	calls int32
	srv   *httptest.Server
	auth  atomic.Value
}

func newBackend(t *testing.T, handler http.HandlerFunc) *backend {
	t.Helper()
	b := &backend{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&b.calls, 1)
		b.auth.Store(r.Header.Get("Authorization"))
		handler(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) client() *Client {
	return New(b.srv.URL+"/api/v1/", WithToken("tok"), WithClock(func() time.Time { return now }))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func reviewConfig() iotd.Config {
	return iotd.Config{ReviewMaxPerDay: 2, JudgementMaxPerDay: 1, ReviewWindowDays: 5}
}

func TestPromoteQuotaExhaustedSkipsNetwork(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"data": map[string]string{"id": "rec-3"}})
	})
	snap := Snapshot{Config: reviewConfig(), Records: []iotd.Record{
		{ID: "rec-1", ImageID: "img-1", CreatedAt: now.Add(-time.Hour)},
		{ID: "rec-2", ImageID: "img-2", CreatedAt: now.Add(-2 * time.Hour)},
	}}

	_, err := b.client().Promote(context.Background(), iotd.StageReview, snap, "img-3")
	assert.ErrorIs(t, err, iotd.ErrQuotaExceeded)

	_, err = b.client().Promote(context.Background(), iotd.StageReview, snap, "img-1")
	assert.ErrorIs(t, err, iotd.ErrAlreadyPromoted)
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.calls))
}

func TestPromoteCountsOnlyToday(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/iotd/review/promotions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"data": map[string]string{"id": "rec-3", "image_id": "img-3", "stage": "REVIEW"}})
	})
	snap := Snapshot{Config: reviewConfig(), Records: []iotd.Record{
		{ID: "rec-1", ImageID: "img-1", CreatedAt: now.AddDate(0, 0, -1)},
		{ID: "rec-2", ImageID: "img-2", CreatedAt: now.AddDate(0, 0, -1)},
	}}

	record, err := b.client().Promote(context.Background(), iotd.StageReview, snap, "img-3")
	require.NoError(t, err)
	assert.Equal(t, "rec-3", record.ID)
	assert.Equal(t, "Bearer tok", b.auth.Load())
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.calls))
}

func TestPromoteJudgementDefersQuotaToBackend(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": map[string]interface{}{"code": "QUOTA_EXCEEDED", "message": "daily promotion quota exhausted", "status": 409},
		})
	})
	snap := Snapshot{Config: reviewConfig(), Records: []iotd.Record{{ID: "rec-1", ImageID: "img-1", CreatedAt: now}}}

	_, err := b.client().Promote(context.Background(), iotd.StageJudgement, snap, "img-2")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "QUOTA_EXCEEDED", apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.calls))
}

func TestRetractRejectsForeignRecordLocally(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	records := []iotd.Record{{ID: "rec-1", ImageID: "img-1", CreatedAt: now}}

	err := b.client().Retract(context.Background(), iotd.StageSubmission, records, "rec-99")
	assert.ErrorIs(t, err, iotd.ErrRecordNotOwned)
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.calls))

	require.NoError(t, b.client().Retract(context.Background(), iotd.StageSubmission, records, "rec-1"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b.calls))
}

func TestDismissRequiresConfirmation(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["confirm"])
		writeJSON(w, http.StatusCreated, map[string]interface{}{"data": map[string]interface{}{"dismissals": 1}})
	})

	_, err := b.client().Dismiss(context.Background(), "img-1", false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, int32(0), atomic.LoadInt32(&b.calls))

	res, err := b.client().Dismiss(context.Background(), "img-1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dismissals)
}

func TestHideNeedsNoConfirmation(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]interface{}{"data": map[string]string{"id": "hid-1", "image_id": "img-1"}})
	})
	hidden, err := b.client().Hide(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, "hid-1", hidden.ID)
}

func TestConfigAndLogin(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{"access_token": "fresh"}})
		case "/api/v1/iotd/config":
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
				"values": map[string]int{iotd.KeyReviewMaxPerDay: 4, iotd.KeyReviewWindowDays: 6, "IOTD_FUTURE": 1},
			}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	client := New(b.srv.URL + "/api/v1")

	_, err := client.Login(context.Background(), "reviewer@astrobin.test", "secret")
	require.NoError(t, err)

	cfg, err := client.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", b.auth.Load())
	assert.Equal(t, 4, cfg.MaxPerDay(iotd.StageReview))
	assert.Equal(t, 6, cfg.WindowDays(iotd.StageReview))
}

func TestConfigAdoptsBackendQuotaTimezone(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
			"values":         map[string]int{iotd.KeyReviewMaxPerDay: 2},
			"quota_timezone": "Asia/Tokyo",
		}})
	})
	// 16:00 UTC is already the next day in Tokyo, so the 14:00 UTC votes are yesterday's there.
	clock := WithClock(func() time.Time { return time.Date(2024, 3, 10, 16, 0, 0, 0, time.UTC) })
	records := []iotd.Record{
		{ID: "rec-1", ImageID: "img-1", CreatedAt: time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)},
		{ID: "rec-2", ImageID: "img-2", CreatedAt: time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)},
	}

	client := New(b.srv.URL+"/api/v1", clock)
	assert.Equal(t, time.UTC, client.Location())
	cfg, err := client.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", client.Location().String())
	assert.Empty(t, client.Engine(cfg).Today(records))

	pinned := New(b.srv.URL+"/api/v1", clock, WithLocation(time.UTC))
	cfg, err = pinned.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.UTC, pinned.Location())
	assert.Len(t, pinned.Engine(cfg).Today(records), 2)
}

func TestRetractOlderRecordFromListing(t *testing.T) {
	var deleted atomic.Value
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
				"stage": "REVIEW",
				"records": []map[string]interface{}{
					{"id": "old-vote", "stage": "REVIEW", "image_id": "img-1", "actor_id": "reviewer-1", "created_at": now.AddDate(0, 0, -7)},
				},
			}})
		case http.MethodDelete:
			deleted.Store(r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})
	client := b.client()

	records, err := client.Records(context.Background(), iotd.StageReview)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, iotd.IsPromoted(iotd.StageReview, records, "img-1"))

	require.NoError(t, client.Retract(context.Background(), iotd.StageReview, records, "old-vote"))
	assert.Equal(t, "/api/v1/iotd/review/promotions/old-vote", deleted.Load())
}

func TestErrorWithoutEnvelope(t *testing.T) {
	b := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	_, err := b.client().Queue(context.Background(), iotd.StageReview, 1, 20)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}
