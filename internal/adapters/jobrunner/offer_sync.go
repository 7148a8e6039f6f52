package jobrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/target/creative-dispatch/config"
	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
)

const (
	maxResponseBodyBytes = 8 << 20
	maxErrorBodyBytes    = 4 * 1024
)

// OfferSyncPayload is the payload of an offer_sync job.
type OfferSyncPayload struct {
	AdvertiserID string `json:"advertiser_id,omitempty"`
	// Filters are passed through to the offer API as query parameters.
	Filters map[string]string `json:"filters,omitempty"`
	// Select is a JMESPath expression applied to each page's records; it must yield an array.
	Select       string     `json:"select,omitempty"`
	UpdatedSince *time.Time `json:"updated_since,omitempty"`
	PageSize     int        `json:"page_size,omitempty"`
}

// OfferSyncResult summarises one successful sync.
type OfferSyncResult struct {
	Pages     int            `json:"pages"`
	Fetched   int            `json:"fetched"`
	Matched   int            `json:"matched"`
	Truncated bool           `json:"truncated,omitempty"`
	Domains   map[string]int `json:"domains,omitempty"`
	OfferIDs  []string       `json:"offer_ids,omitempty"`
}

type offerPage struct {
	Data     []any `json:"data"`
	NextPage *int  `json:"next_page"`
	Total    int   `json:"total"`
}

// OfferSyncHandlerOptions configures OfferSyncHandler.
type OfferSyncHandlerOptions struct {
	Config config.OfferSyncConfig
	// HTTPClient is the base client. With client credentials configured it also fetches tokens.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OfferSyncHandler pulls advertiser offers from the third-party offer API page by page.
// Every run starts from page one, so a retried job simply re-fetches.
type OfferSyncHandler struct {
	cfg     config.OfferSyncConfig
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ domainjob.Handler = (*OfferSyncHandler)(nil)

// NewOfferSyncHandler constructs an OfferSyncHandler.
func NewOfferSyncHandler(opts OfferSyncHandlerOptions) (*OfferSyncHandler, error) {
	cfg := opts.Config
	cfg.Sanitize()
	if !cfg.Enabled() {
		return nil, errors.New("offer API base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse offer API base URL: %w", err)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.UsesClientCredentials() {
		var err error
		if hc, err = clientCredentialsClient(cfg, hc); err != nil {
			return nil, err
		}
	}
	return &OfferSyncHandler{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  resolveLogger(opts.Logger).With("component", "offer_sync"),
	}, nil
}

// clientCredentialsClient wraps base so every request carries a cached client-credentials token.
func clientCredentialsClient(cfg config.OfferSyncConfig, base *http.Client) (*http.Client, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("offer API client ID is required with a token URL")
	}
	if _, err := url.Parse(cfg.TokenURL); err != nil {
		return nil, fmt.Errorf("parse offer API token URL: %w", err)
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := cc.Client(ctx)
	hc.Timeout = base.Timeout
	return hc, nil
}

// Handle implements domainjob.Handler.
func (h *OfferSyncHandler) Handle(ctx context.Context, job *model.Job, r domainjob.Reporter) (json.RawMessage, error) {
	payload, err := decodeOfferSyncPayload(job.Payload)
	if err != nil {
		return nil, err
	}
	pageSize := h.cfg.PageSize
	if payload.PageSize > 0 && payload.PageSize < pageSize {
		pageSize = payload.PageSize
	}

	res := OfferSyncResult{Domains: map[string]int{}}
	page := 1
	for {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for offer API rate limit: %w", err)
		}
		p, err := h.fetchPage(ctx, payload, page, pageSize)
		if err != nil {
			return nil, err
		}
		res.Pages++
		res.Fetched += len(p.Data)

		matched, err := selectOffers(payload.Select, p.Data)
		if err != nil {
			return nil, err
		}
		res.Matched += len(matched)
		for _, rec := range matched {
			collectOffer(&res, rec)
		}

		totalPages := pagesFor(p.Total, pageSize)
		r.Progress(ctx, page, max(totalPages, page))

		if p.NextPage == nil || *p.NextPage <= page {
			break
		}
		if res.Pages >= h.cfg.MaxPages {
			res.Truncated = true
			r.Event(ctx, model.JobEventProgress, "Page limit reached", map[string]int{
				"pages":     res.Pages,
				"max_pages": h.cfg.MaxPages,
			})
			break
		}
		page = *p.NextPage
	}

	slices.Sort(res.OfferIDs)
	h.logger.InfoContext(ctx, "offer sync finished",
		"job_id", job.ID,
		"pages", res.Pages,
		"fetched", res.Fetched,
		"matched", res.Matched,
		"truncated", res.Truncated,
	)
	out, err := json.Marshal(res)
	if err != nil {
		return nil, domainjob.NewError(domainjob.KindSystem, fmt.Errorf("encode offer sync result: %w", err))
	}
	return out, nil
}

func decodeOfferSyncPayload(raw json.RawMessage) (OfferSyncPayload, error) {
	var p OfferSyncPayload
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, domainjob.NewError(domainjob.KindDataCorruption, fmt.Errorf("decode offer_sync payload: %w", err))
	}
	if strings.TrimSpace(p.Select) != "" {
		if _, err := jmespath.Compile(p.Select); err != nil {
			return p, domainjob.NewError(domainjob.KindDataCorruption, fmt.Errorf("compile select expression: %w", err))
		}
	}
	return p, nil
}

func (h *OfferSyncHandler) pageURL(p OfferSyncPayload, page, pageSize int) string {
	q := url.Values{}
	for k, v := range p.Filters {
		q.Set(k, v)
	}
	if p.AdvertiserID != "" {
		q.Set("advertiser_id", p.AdvertiserID)
	}
	if p.UpdatedSince != nil {
		q.Set("updated_since", p.UpdatedSince.UTC().Format(time.RFC3339))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	return h.cfg.BaseURL + "/offers?" + q.Encode()
}

func (h *OfferSyncHandler) fetchPage(ctx context.Context, p OfferSyncPayload, page, pageSize int) (*offerPage, error) {
	target := h.pageURL(p, page, pageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, domainjob.NewError(domainjob.KindSystem, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if h.cfg.APIKey != "" && !h.cfg.UsesClientCredentials() {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	}

	resp, err := h.http.Do(req)
	if err != nil {
		var tokenErr *oauth2.RetrieveError
		if errors.As(err, &tokenErr) && tokenErr.Response != nil {
			// Surface the token endpoint's status so a rejected client dead-letters like a 401 would.
			return nil, fmt.Errorf("fetch offer API token: %w", &domainjob.HTTPStatusError{
				StatusCode: tokenErr.Response.StatusCode,
				Status:     http.StatusText(tokenErr.Response.StatusCode),
				URL:        redactQuery(h.cfg.TokenURL),
			})
		}
		return nil, fmt.Errorf("fetch offers page %d: %w", page, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			h.logger.DebugContext(ctx, "close offer API response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		h.logger.WarnContext(ctx, "offer API returned an error",
			"status", resp.StatusCode,
			"page", page,
			"body", strings.TrimSpace(string(body)),
		)
		return nil, &domainjob.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			URL:        redactQuery(target),
		}
	}

	var out offerPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode offers page %d: %w", page, err)
	}
	return &out, nil
}

// selectOffers applies the JMESPath select expression to a page's records.
func selectOffers(expr string, records []any) ([]any, error) {
	if strings.TrimSpace(expr) == "" || len(records) == 0 {
		return records, nil
	}
	v, err := jmespath.Search(expr, records)
	if err != nil {
		return nil, domainjob.NewError(domainjob.KindDataCorruption, fmt.Errorf("evaluate select expression: %w", err))
	}
	switch typed := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return typed, nil
	default:
		return nil, domainjob.Errorf(domainjob.KindDataCorruption, "select expression must yield an array, got %T", v)
	}
}

func collectOffer(res *OfferSyncResult, rec any) {
	m, ok := rec.(map[string]any)
	if !ok {
		return
	}
	if id := stringField(m, "id"); id != "" {
		res.OfferIDs = append(res.OfferIDs, id)
	}
	if d := LandingDomain(stringField(m, "landing_url")); d != "" {
		res.Domains[d]++
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// LandingDomain reduces an offer's landing URL to its registrable domain (eTLD+1).
func LandingDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

func pagesFor(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func redactQuery(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	u.RawQuery = ""
	return u.String()
}
