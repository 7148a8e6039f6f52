package jobrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/creative-dispatch/config"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
	"github.com/target/creative-dispatch/internal/testutil"
)

type reportedEvent struct {
	Type    model.JobEventType
	Message string
}

type recordingReporter struct {
	mu       sync.Mutex
	progress [][2]int
	events   []reportedEvent
}

func (r *recordingReporter) Progress(_ context.Context, current, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, [2]int{current, total})
}

func (r *recordingReporter) Event(_ context.Context, t model.JobEventType, msg string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, reportedEvent{Type: t, Message: msg})
}

// offerAPI serves pages of offers; page N holds offers N*10..N*10+perPage-1.
type offerAPI struct {
	t        *testing.T
	pages    int
	perPage  int
	status   int
	requests []*http.Request
	mu       sync.Mutex
}

func (a *offerAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.Clone(context.Background()))
	a.mu.Unlock()

	if a.status != 0 {
		http.Error(w, `{"error":"nope"}`, a.status)
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		http.Error(w, "bad page", http.StatusBadRequest)
		return
	}

	data := make([]map[string]any, 0, a.perPage)
	for i := range a.perPage {
		n := page*10 + i
		data = append(data, map[string]any{
			"id":          fmt.Sprintf("offer-%d", n),
			"status":      map[bool]string{true: "active", false: "paused"}[i%2 == 0],
			"landing_url": fmt.Sprintf("https://promo%d.shop.example.co.uk/deal", i),
		})
	}
	body := map[string]any{"data": data, "total": a.pages * a.perPage}
	if page < a.pages {
		body["next_page"] = page + 1
	}
	w.Header().Set("Content-Type", "application/json")
	assert.NoError(a.t, json.NewEncoder(w).Encode(body))
}

func newOfferSyncHandler(t *testing.T, baseURL string, tweak func(*config.OfferSyncConfig)) *OfferSyncHandler {
	t.Helper()
	cfg := config.OfferSyncConfig{
		BaseURL:           baseURL,
		APIKey:            "k-123",
		RequestsPerSecond: 1000,
		Burst:             10,
		Timeout:           5 * time.Second,
		PageSize:          2,
		MaxPages:          10,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	h, err := NewOfferSyncHandler(OfferSyncHandlerOptions{Config: cfg})
	require.NoError(t, err)
	return h
}

func TestNewOfferSyncHandler_RequiresBaseURL(t *testing.T) {
	_, err := NewOfferSyncHandler(OfferSyncHandlerOptions{})
	require.ErrorContains(t, err, "base URL is required")
}

func TestOfferSyncHandler_FetchesAllPages(t *testing.T) {
	api := &offerAPI{t: t, pages: 3, perPage: 2}
	srv := httptest.NewServer(api)
	defer srv.Close()

	h := newOfferSyncHandler(t, srv.URL+"/", nil)
	job := testutil.NewJob().WithPayload(`{"advertiser_id":"adv-9","filters":{"region":"us"}}`).Build()
	rep := &recordingReporter{}

	out, err := h.Handle(context.Background(), job, rep)
	require.NoError(t, err)

	var res OfferSyncResult
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 6, res.Fetched)
	assert.Equal(t, 6, res.Matched)
	assert.False(t, res.Truncated)
	assert.Equal(t, map[string]int{"example.co.uk": 6}, res.Domains)
	assert.Len(t, res.OfferIDs, 6)

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, rep.progress)

	require.Len(t, api.requests, 3)
	first := api.requests[0]
	assert.Equal(t, "/offers", first.URL.Path)
	assert.Equal(t, "Bearer k-123", first.Header.Get("Authorization"))
	assert.Equal(t, "adv-9", first.URL.Query().Get("advertiser_id"))
	assert.Equal(t, "us", first.URL.Query().Get("region"))
	assert.Equal(t, "2", first.URL.Query().Get("page_size"))
}

func TestOfferSyncHandler_SelectExpression(t *testing.T) {
	api := &offerAPI{t: t, pages: 1, perPage: 4}
	srv := httptest.NewServer(api)
	defer srv.Close()

	h := newOfferSyncHandler(t, srv.URL, func(c *config.OfferSyncConfig) { c.PageSize = 4 })
	job := testutil.NewJob().WithPayload(`{"select":"[?status == 'active']"}`).Build()

	out, err := h.Handle(context.Background(), job, domainjob.NopReporter{})
	require.NoError(t, err)

	var res OfferSyncResult
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, 4, res.Fetched)
	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, []string{"offer-10", "offer-12"}, res.OfferIDs)
}

func TestOfferSyncHandler_PageLimit(t *testing.T) {
	api := &offerAPI{t: t, pages: 5, perPage: 1}
	srv := httptest.NewServer(api)
	defer srv.Close()

	h := newOfferSyncHandler(t, srv.URL, func(c *config.OfferSyncConfig) { c.MaxPages = 2 })
	rep := &recordingReporter{}

	out, err := h.Handle(context.Background(), testutil.NewJob().Build(), rep)
	require.NoError(t, err)

	var res OfferSyncResult
	require.NoError(t, json.Unmarshal(out, &res))
	assert.Equal(t, 2, res.Pages)
	assert.True(t, res.Truncated)
	require.Len(t, rep.events, 1)
	assert.Equal(t, model.JobEventProgress, rep.events[0].Type)
}

func TestOfferSyncHandler_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		payload  string
		wantKind domainjob.ErrorKind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: domainjob.KindRateLimit},
		{name: "server error", status: http.StatusBadGateway, wantKind: domainjob.KindExternalAPI},
		{name: "forbidden", status: http.StatusForbidden, wantKind: domainjob.KindPermission},
		{name: "malformed payload", payload: `{"filters":[1,2]}`, wantKind: domainjob.KindDataCorruption},
		{name: "bad select expression", payload: `{"select":"[?status =="}`, wantKind: domainjob.KindDataCorruption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &offerAPI{t: t, pages: 1, perPage: 1, status: tt.status}
			srv := httptest.NewServer(api)
			defer srv.Close()

			payload := tt.payload
			if payload == "" {
				payload = `{}`
			}
			h := newOfferSyncHandler(t, srv.URL, nil)
			_, err := h.Handle(context.Background(), testutil.NewJob().WithPayload(payload).Build(), domainjob.NopReporter{})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domainjob.Classify(err).Kind)
		})
	}
}

func TestOfferSyncHandler_UnreachableAPIIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := newOfferSyncHandler(t, url, nil)
	_, err := h.Handle(context.Background(), testutil.NewJob().Build(), domainjob.NopReporter{})
	require.Error(t, err)
	assert.Equal(t, domainjob.KindNetwork, domainjob.Classify(err).Kind)
}

func TestLandingDomain(t *testing.T) {
	tests := map[string]string{
		"https://www.Example.com/path":   "example.com",
		"promo.shop.example.co.uk/x":     "example.co.uk",
		"http://localhost:8080/":         "localhost",
		"":                               "",
		"https://cdn.example.com.:443/a": "example.com",
	}
	for in, want := range tests {
		assert.Equal(t, want, LandingDomain(in), in)
	}
}

// tokenEndpoint issues client-credentials tokens and counts grants.
type tokenEndpoint struct {
	status int
	grants atomic.Int32
	form   url.Values
	mu     sync.Mutex
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	e.mu.Lock()
	e.form = r.PostForm
	e.mu.Unlock()
	if e.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(e.status)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		return
	}
	e.grants.Add(1)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
}

func withClientCredentials(tokenURL string) func(*config.OfferSyncConfig) {
	return func(c *config.OfferSyncConfig) {
		c.TokenURL = tokenURL
		c.ClientID = "creative-dispatch"
		c.ClientSecret = "s3cret"
		c.Scopes = []string{"offers.read", " "}
	}
}

func TestOfferSyncHandler_ClientCredentials(t *testing.T) {
	tokens := &tokenEndpoint{}
	tokenSrv := httptest.NewServer(tokens)
	defer tokenSrv.Close()
	api := &offerAPI{t: t, pages: 3, perPage: 2}
	srv := httptest.NewServer(api)
	defer srv.Close()

	h := newOfferSyncHandler(t, srv.URL, withClientCredentials(tokenSrv.URL))
	_, err := h.Handle(context.Background(), testutil.NewJob().Build(), domainjob.NopReporter{})
	require.NoError(t, err)

	require.Len(t, api.requests, 3)
	for _, r := range api.requests {
		assert.Equal(t, "Bearer cc-token", r.Header.Get("Authorization"), "static API key is not sent")
	}
	assert.Equal(t, int32(1), tokens.grants.Load(), "token is reused across pages")
	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	assert.Equal(t, "client_credentials", tokens.form.Get("grant_type"))
	assert.Equal(t, "offers.read", tokens.form.Get("scope"))
}

func TestOfferSyncHandler_RejectedClientIsPermissionError(t *testing.T) {
	tokenSrv := httptest.NewServer(&tokenEndpoint{status: http.StatusUnauthorized})
	defer tokenSrv.Close()
	api := &offerAPI{t: t, pages: 1, perPage: 1}
	srv := httptest.NewServer(api)
	defer srv.Close()

	h := newOfferSyncHandler(t, srv.URL, withClientCredentials(tokenSrv.URL))
	_, err := h.Handle(context.Background(), testutil.NewJob().Build(), domainjob.NopReporter{})
	require.Error(t, err)
	assert.Equal(t, domainjob.KindPermission, domainjob.Classify(err).Kind)
	assert.Contains(t, err.Error(), "fetch offer API token")
	assert.Empty(t, api.requests, "no offer request without a token")
}

func TestNewOfferSyncHandler_ClientCredentialsNeedClientID(t *testing.T) {
	_, err := NewOfferSyncHandler(OfferSyncHandlerOptions{Config: config.OfferSyncConfig{
		BaseURL:  "https://offers.example.com",
		TokenURL: "https://auth.example.com/token",
	}})
	require.ErrorContains(t, err, "client ID is required")
}
