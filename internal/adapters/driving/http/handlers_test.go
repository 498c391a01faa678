package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
)

// Mock services for testing

type mockCorpusService struct {
	createFromCrawlFn  func(ctx context.Context, req driving.CreateFromCrawlRequest) (*domain.Corpus, error)
	crawlFn            func(ctx context.Context, corpusID string, req driving.CrawlRequest) error
	createFromUploadFn func(ctx context.Context, req driving.CreateFromUploadRequest) (*domain.Corpus, error)
	addFilesFn         func(ctx context.Context, corpusID string, files []domain.ExpectedFile) error
	getFn              func(ctx context.Context, corpusID string) (*domain.Corpus, error)
	listFn             func(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error)
	summaryFn          func(ctx context.Context, corpusID string) (*domain.CorpusSummary, error)
	statusFn           func(ctx context.Context, corpusID string) (*domain.CorpusStatus, error)
	documentFn         func(ctx context.Context, corpusID, docID string) (*domain.UrlEntry, error)
	crawlReadyFn       func(ctx context.Context, corpusID string) (*domain.Readiness, error)
	uploadReadyFn      func(ctx context.Context, corpusID string) (*domain.Readiness, error)
	deleteDocumentsFn  func(ctx context.Context, corpusID string, dataIDs []string) error
	checkIntegrityFn   func(ctx context.Context, corpusID string) error
}

var errNotImplemented = errors.New("not implemented")

func (m *mockCorpusService) CreateFromCrawl(ctx context.Context, req driving.CreateFromCrawlRequest) (*domain.Corpus, error) {
	if m.createFromCrawlFn != nil {
		return m.createFromCrawlFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) Crawl(ctx context.Context, corpusID string, req driving.CrawlRequest) error {
	if m.crawlFn != nil {
		return m.crawlFn(ctx, corpusID, req)
	}
	return errNotImplemented
}

func (m *mockCorpusService) CreateFromUpload(ctx context.Context, req driving.CreateFromUploadRequest) (*domain.Corpus, error) {
	if m.createFromUploadFn != nil {
		return m.createFromUploadFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) AddExpectedFiles(ctx context.Context, corpusID string, files []domain.ExpectedFile) error {
	if m.addFilesFn != nil {
		return m.addFilesFn(ctx, corpusID, files)
	}
	return errNotImplemented
}

func (m *mockCorpusService) Get(ctx context.Context, corpusID string) (*domain.Corpus, error) {
	if m.getFn != nil {
		return m.getFn(ctx, corpusID)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) List(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error) {
	if m.listFn != nil {
		return m.listFn(ctx, opts)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) Summary(ctx context.Context, corpusID string) (*domain.CorpusSummary, error) {
	if m.summaryFn != nil {
		return m.summaryFn(ctx, corpusID)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) Status(ctx context.Context, corpusID string) (*domain.CorpusStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, corpusID)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) Document(ctx context.Context, corpusID, docID string) (*domain.UrlEntry, error) {
	if m.documentFn != nil {
		return m.documentFn(ctx, corpusID, docID)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) CrawlIsReady(ctx context.Context, corpusID string) (*domain.Readiness, error) {
	if m.crawlReadyFn != nil {
		return m.crawlReadyFn(ctx, corpusID)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) FileUploadIsReady(ctx context.Context, corpusID string) (*domain.Readiness, error) {
	if m.uploadReadyFn != nil {
		return m.uploadReadyFn(ctx, corpusID)
	}
	return nil, errNotImplemented
}

func (m *mockCorpusService) DeleteDocuments(ctx context.Context, corpusID string, dataIDs []string) error {
	if m.deleteDocumentsFn != nil {
		return m.deleteDocumentsFn(ctx, corpusID, dataIDs)
	}
	return errNotImplemented
}

func (m *mockCorpusService) CheckIntegrity(ctx context.Context, corpusID string) error {
	if m.checkIntegrityFn != nil {
		return m.checkIntegrityFn(ctx, corpusID)
	}
	return errNotImplemented
}

type mockFeatureService struct {
	checkFn    func(ctx context.Context, corpusID string, featureCount int) (*domain.Availability, error)
	featuresFn func(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.FeatureView], error)
	graphFn    func(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.Graph], error)
}

func (m *mockFeatureService) CheckAvailability(ctx context.Context, corpusID string, featureCount int) (*domain.Availability, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, corpusID, featureCount)
	}
	return nil, errNotImplemented
}

func (m *mockFeatureService) RequestFeatures(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.FeatureView], error) {
	if m.featuresFn != nil {
		return m.featuresFn(ctx, params)
	}
	return nil, errNotImplemented
}

func (m *mockFeatureService) RequestGraph(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.Graph], error) {
	if m.graphFn != nil {
		return m.graphFn(ctx, params)
	}
	return nil, errNotImplemented
}

type mockCallbackService struct {
	computeFn   func(ctx context.Context, cb domain.ComputeCallback) error
	integrityFn func(ctx context.Context, cb domain.IntegrityCallback) error
	extractFn   func(ctx context.Context, cb domain.FileExtractCallback) error
}

func (m *mockCallbackService) ComputeCompleted(ctx context.Context, cb domain.ComputeCallback) error {
	if m.computeFn != nil {
		return m.computeFn(ctx, cb)
	}
	return errNotImplemented
}

func (m *mockCallbackService) IntegrityCompleted(ctx context.Context, cb domain.IntegrityCallback) error {
	if m.integrityFn != nil {
		return m.integrityFn(ctx, cb)
	}
	return errNotImplemented
}

func (m *mockCallbackService) FileExtracted(ctx context.Context, cb domain.FileExtractCallback) error {
	if m.extractFn != nil {
		return m.extractFn(ctx, cb)
	}
	return errNotImplemented
}

type mockScheduleAdmin struct {
	schedules []*domain.ScheduledTask
	enabled   map[string]bool
}

func (m *mockScheduleAdmin) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return m.schedules, nil
}

func (m *mockScheduleAdmin) SetEnabled(ctx context.Context, id string, enabled bool) error {
	for _, s := range m.schedules {
		if s.ID == id {
			m.enabled[id] = enabled
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockScheduleAdmin) TriggerNow(ctx context.Context, id string) (*domain.Task, error) {
	for _, s := range m.schedules {
		if s.ID == id {
			return s.NewTask(), nil
		}
	}
	return nil, domain.ErrNotFound
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testDeps struct {
	corpora   *mockCorpusService
	features  *mockFeatureService
	callbacks *mockCallbackService
	schedules *mockScheduleAdmin
	queue     *mocks.MockTaskQueue
}

func newTestServer(t *testing.T) (http.Handler, *testDeps) {
	t.Helper()
	d := &testDeps{
		corpora:   &mockCorpusService{},
		features:  &mockFeatureService{},
		callbacks: &mockCallbackService{},
		schedules: &mockScheduleAdmin{
			schedules: domainSchedules(),
			enabled:   map[string]bool{},
		},
		queue: mocks.NewMockTaskQueue(),
	}
	cfg := DefaultConfig()
	cfg.Version = "1.2.3"
	cfg.Docs = func() string { return `{"openapi":"3.0.0"}` }
	s := NewServer(cfg, Deps{
		Corpora:   d.corpora,
		Features:  d.features,
		Callbacks: d.callbacks,
		Schedules: d.schedules,
		TaskQueue: d.queue,
		Checks:    map[string]Pinger{"queue": d.queue},
	})
	return s.Handler(), d
}

func domainSchedules() []*domain.ScheduledTask {
	return domain.DefaultSchedules(time.Hour, 24*time.Hour)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}

// Health endpoints

func TestHandleHealthAndVersion(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(t, h, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	rr = do(t, h, "GET", "/version", nil)
	if v := decode[VersionResponse](t, rr); v.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", v.Version)
	}
}

func TestHandleReady(t *testing.T) {
	h, d := newTestServer(t)

	rr := do(t, h, "GET", "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	d.queue.PingFn = func() error { return errors.New("connection refused") }
	rr = do(t, h, "GET", "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	resp := decode[ReadyResponse](t, rr)
	if resp.Components["queue"] != "unavailable" {
		t.Errorf("expected queue unavailable, got %v", resp.Components)
	}
}

func TestHandleOpenAPIAndMetrics(t *testing.T) {
	h, _ := newTestServer(t)

	rr := do(t, h, "GET", "/api/v1/openapi.json", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != `{"openapi":"3.0.0"}` {
		t.Errorf("unexpected openapi response %d %q", rr.Code, rr.Body.String())
	}

	do(t, h, "GET", "/health", nil)
	rr = do(t, h, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`path="GET /health"`)) {
		t.Error("expected request metrics labelled by route pattern")
	}
}

func TestHandleReady_IgnoresNilCheck(t *testing.T) {
	s := NewServer(DefaultConfig(), Deps{Checks: map[string]Pinger{
		"redis":    nil,
		"postgres": pingerFunc(func(ctx context.Context) error { return nil }),
	}})

	rr := do(t, s.Handler(), "GET", "/ready", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
}

// Corpus endpoints

func TestHandleListCorpora(t *testing.T) {
	h, d := newTestServer(t)

	var got domain.ListOptions
	d.corpora.listFn = func(ctx context.Context, opts domain.ListOptions) ([]*domain.Corpus, error) {
		got = opts
		return nil, nil
	}

	rr := do(t, h, "GET", "/api/v1/corpora?ready=true&offset=20&limit=10", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	want := domain.ListOptions{ReadyOnly: true, Offset: 20, Limit: 10}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if body := rr.Body.String(); body != "[]\n" {
		t.Errorf("expected empty array, got %q", body)
	}

	rr = do(t, h, "GET", "/api/v1/corpora?limit=ten", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleCreateFromCrawl(t *testing.T) {
	h, d := newTestServer(t)

	d.corpora.createFromCrawlFn = func(ctx context.Context, req driving.CreateFromCrawlRequest) (*domain.Corpus, error) {
		if req.Endpoint == "" {
			return nil, fmt.Errorf("%w: endpoint is required", domain.ErrInvalidInput)
		}
		c := domain.NewCorpus(req.Name, req.Description, domain.DataSourceWeb)
		c.ID = "c1"
		return c, nil
	}

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"created", driving.CreateFromCrawlRequest{Name: "news", Endpoint: "https://example.com", Crawl: true}, http.StatusCreated},
		{"missing endpoint", driving.CreateFromCrawlRequest{Name: "news"}, http.StatusBadRequest},
		{"malformed body", "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, "POST", "/api/v1/corpora/crawl", tt.body)
			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d (%s)", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestHandleCorpusRoutes_NotFound(t *testing.T) {
	h, d := newTestServer(t)

	d.corpora.getFn = func(ctx context.Context, id string) (*domain.Corpus, error) { return nil, domain.ErrNotFound }
	d.corpora.summaryFn = func(ctx context.Context, id string) (*domain.CorpusSummary, error) { return nil, domain.ErrNotFound }
	d.corpora.statusFn = func(ctx context.Context, id string) (*domain.CorpusStatus, error) { return nil, domain.ErrNotFound }
	d.corpora.documentFn = func(ctx context.Context, id, doc string) (*domain.UrlEntry, error) { return nil, domain.ErrNotFound }
	d.corpora.crawlReadyFn = func(ctx context.Context, id string) (*domain.Readiness, error) { return nil, domain.ErrNotFound }
	d.corpora.uploadReadyFn = func(ctx context.Context, id string) (*domain.Readiness, error) { return nil, domain.ErrNotFound }
	d.corpora.checkIntegrityFn = func(ctx context.Context, id string) error { return domain.ErrNotFound }

	for _, path := range []string{
		"/api/v1/corpora/missing",
		"/api/v1/corpora/missing/summary",
		"/api/v1/corpora/missing/status",
		"/api/v1/corpora/missing/documents/d1",
		"/api/v1/corpora/missing/crawl-ready",
		"/api/v1/corpora/missing/upload-ready",
	} {
		if rr := do(t, h, "GET", path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected status 404, got %d", path, rr.Code)
		}
	}
	if rr := do(t, h, "POST", "/api/v1/corpora/missing/integrity-check", nil); rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleCrawlIsReady(t *testing.T) {
	h, d := newTestServer(t)

	d.corpora.crawlReadyFn = func(ctx context.Context, id string) (*domain.Readiness, error) {
		return &domain.Readiness{CorpusID: id, Ready: true}, nil
	}

	rr := do(t, h, "GET", "/api/v1/corpora/c1/crawl-ready", nil)
	got := decode[domain.Readiness](t, rr)
	if !got.Ready || got.CorpusID != "c1" {
		t.Errorf("unexpected readiness %+v", got)
	}
}

func TestHandleDeleteDocuments(t *testing.T) {
	h, d := newTestServer(t)

	var gotCorpus string
	var gotIDs []string
	d.corpora.deleteDocumentsFn = func(ctx context.Context, corpusID string, dataIDs []string) error {
		gotCorpus, gotIDs = corpusID, dataIDs
		return nil
	}

	rr := do(t, h, "POST", "/api/v1/corpora/c1/documents/delete", DeleteDocumentsRequest{DataIDs: []string{"a", "b", "c"}})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	if gotCorpus != "c1" || !reflect.DeepEqual(gotIDs, []string{"a", "b", "c"}) {
		t.Errorf("unexpected call %s %v", gotCorpus, gotIDs)
	}
}

func TestHandleCrawlAndFiles(t *testing.T) {
	h, d := newTestServer(t)

	d.corpora.crawlFn = func(ctx context.Context, id string, req driving.CrawlRequest) error {
		if id != "c1" || req.Endpoint != "https://example.com" {
			t.Errorf("unexpected crawl %s %+v", id, req)
		}
		return nil
	}
	d.corpora.addFilesFn = func(ctx context.Context, id string, files []domain.ExpectedFile) error {
		if len(files) != 1 || files[0].UniqueID != "u1" {
			t.Errorf("unexpected files %+v", files)
		}
		return nil
	}

	rr := do(t, h, "POST", "/api/v1/corpora/c1/crawl", driving.CrawlRequest{Endpoint: "https://example.com"})
	if rr.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rr.Code)
	}
	rr = do(t, h, "POST", "/api/v1/corpora/c1/files", AddFilesRequest{Files: []domain.ExpectedFile{{FileName: "a.pdf", UniqueID: "u1"}}})
	if rr.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rr.Code)
	}
}

// Feature endpoints

func TestHandleCheckAvailability(t *testing.T) {
	h, d := newTestServer(t)

	var gotCount int
	d.features.checkFn = func(ctx context.Context, corpusID string, featureCount int) (*domain.Availability, error) {
		gotCount = featureCount
		return &domain.Availability{
			CorpusID:      corpusID,
			FeatureCount:  featureCount,
			Kind:          domain.AvailabilityBusy,
			FeatureCounts: []int{5},
		}, nil
	}

	rr := do(t, h, "GET", "/api/v1/corpora/c1/availability", nil)
	resp := decode[AvailabilityResponse](t, rr)
	if gotCount != domain.DefaultFeatureCount {
		t.Errorf("expected default feature count, got %d", gotCount)
	}
	if resp.Status != "busy" || !reflect.DeepEqual(resp.AvailableFeatures, []int{5}) {
		t.Errorf("unexpected response %+v", resp)
	}

	rr = do(t, h, "GET", "/api/v1/corpora/c1/availability?features=x", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleRequestFeatures_Outcomes(t *testing.T) {
	view := domain.FeatureView{
		CorpusID: "c1",
		Features: []domain.Feature{{ID: 0, Weight: 1, Words: []domain.FeatureWord{{Word: "cat", Weight: 1}}}},
	}

	tests := []struct {
		name     string
		outcome  domain.Outcome
		status   int
		busy     bool
		retry    bool
		wantData bool
	}{
		{"ready", domain.OutcomeReady, http.StatusOK, false, false, true},
		{"busy", domain.OutcomeBusy, http.StatusOK, true, false, false},
		{"dispatched", domain.OutcomeDispatched, http.StatusAccepted, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := newTestServer(t)
			var got domain.FeatureParams
			d.features.featuresFn = func(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.FeatureView], error) {
				got = params
				a := domain.Availability{CorpusID: params.CorpusID, FeatureCount: params.Features}
				if tt.outcome == domain.OutcomeReady {
					return domain.Ready(a, view), nil
				}
				return domain.Pending[domain.FeatureView](tt.outcome, a), nil
			}

			rr := do(t, h, "GET", "/api/v1/corpora/c1/features?features=4&words=7&docs_per_feature=3&features_per_doc=2", nil)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			want := domain.FeatureParams{CorpusID: "c1", Features: 4, Words: 7, DocsPerFeature: 3, FeaturesPerDoc: 2}
			if got != want {
				t.Errorf("expected params %+v, got %+v", want, got)
			}

			resp := decode[map[string]any](t, rr)
			if resp["outcome"] != string(tt.outcome) || resp["busy"] != tt.busy || resp["retry"] != tt.retry {
				t.Errorf("unexpected response %v", resp)
			}
			if _, ok := resp["data"]; ok != tt.wantData {
				t.Errorf("expected data present=%v, got %v", tt.wantData, resp)
			}
		})
	}
}

func TestHandleRequestFeatures_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown corpus", domain.ErrNotFound, http.StatusNotFound},
		{"invalid params", fmt.Errorf("%w: features must be positive", domain.ErrInvalidInput), http.StatusBadRequest},
		{"unknown document", fmt.Errorf("hydrate: %w", domain.ErrUnknownDocumentReference), http.StatusInternalServerError},
		{"store down", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := newTestServer(t)
			d.features.featuresFn = func(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.FeatureView], error) {
				return nil, tt.err
			}
			rr := do(t, h, "GET", "/api/v1/corpora/c1/features", nil)
			if rr.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, rr.Code)
			}
		})
	}

	h, _ := newTestServer(t)
	rr := do(t, h, "GET", "/api/v1/corpora/c1/features?words=-", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestHandleRequestGraph(t *testing.T) {
	h, d := newTestServer(t)

	d.features.graphFn = func(ctx context.Context, params domain.FeatureParams) (*domain.Gated[domain.Graph], error) {
		g := domain.Graph{
			CorpusID: params.CorpusID,
			Nodes: []domain.GraphNode{
				domain.NewFeatureNode("f0", domain.Feature{Weight: 1}),
				domain.NewDocumentNode("d0", "f0", domain.Document{DataID: "a", Title: "A"}),
			},
			Links: []domain.GraphLink{{Source: "d0", Target: "f0", Weight: 0.5}},
		}
		return domain.Ready(domain.Availability{FeatureCount: params.Features}, g), nil
	}

	rr := do(t, h, "GET", "/api/v1/corpora/c1/graph?features=2", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Outcome string          `json:"outcome"`
		Data    domainGraphJSON `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Nodes) != 2 || resp.Data.Nodes[1]["type"] != "document" || resp.Data.Nodes[1]["group"] != "f0" {
		t.Errorf("unexpected nodes %v", resp.Data.Nodes)
	}
}

type domainGraphJSON struct {
	Nodes []map[string]any `json:"nodes"`
	Links []map[string]any `json:"links"`
}

// Callback endpoints

func TestHandleComputeCallback(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		err        error
		status     int
		wantStatus string
	}{
		{"success", domain.ComputeCallback{CorpusID: "c1", FeatureCount: 5, Success: true}, nil, http.StatusOK, "ok"},
		{"worker failure", domain.ComputeCallback{CorpusID: "c1", FeatureCount: 5}, fmt.Errorf("%w: boom", domain.ErrRemoteWorkerFailure), http.StatusOK, "failed"},
		{"invalid", domain.ComputeCallback{}, domain.ErrInvalidInput, http.StatusBadRequest, ""},
		{"malformed", "not json", nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := newTestServer(t)
			d.callbacks.computeFn = func(ctx context.Context, cb domain.ComputeCallback) error { return tt.err }

			rr := do(t, h, "POST", "/api/v1/callbacks/compute", tt.body)
			if rr.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rr.Code)
			}
			if tt.wantStatus != "" {
				if got := decode[StatusResponse](t, rr); got.Status != tt.wantStatus {
					t.Errorf("expected %q, got %q", tt.wantStatus, got.Status)
				}
			}
		})
	}
}

func TestHandleIntegrityAndExtractCallbacks(t *testing.T) {
	h, d := newTestServer(t)

	var integrity domain.IntegrityCallback
	var extract domain.FileExtractCallback
	d.callbacks.integrityFn = func(ctx context.Context, cb domain.IntegrityCallback) error {
		integrity = cb
		return nil
	}
	d.callbacks.extractFn = func(ctx context.Context, cb domain.FileExtractCallback) error {
		extract = cb
		return domain.ErrNotFound
	}

	rr := do(t, h, "POST", "/api/v1/callbacks/integrity", domain.IntegrityCallback{CorpusID: "c1"})
	if rr.Code != http.StatusOK || integrity.CorpusID != "c1" {
		t.Errorf("unexpected integrity callback %d %+v", rr.Code, integrity)
	}

	rr = do(t, h, "POST", "/api/v1/callbacks/file-extract", domain.FileExtractCallback{CorpusID: "gone", UniqueID: "u1", Success: true})
	if rr.Code != http.StatusNotFound || extract.UniqueID != "u1" {
		t.Errorf("unexpected extract callback %d %+v", rr.Code, extract)
	}
}

// Task endpoints

func TestHandleTasks(t *testing.T) {
	h, d := newTestServer(t)
	ctx := context.Background()

	task := domain.NewIntegrityCheckTask("c1")
	if err := d.queue.Enqueue(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := d.queue.Enqueue(ctx, domain.NewIntegrityCheckTask("c2")); err != nil {
		t.Fatal(err)
	}

	rr := do(t, h, "GET", "/api/v1/tasks?corpus_id=c1", nil)
	tasks := decode[[]domain.Task](t, rr)
	if len(tasks) != 1 || tasks[0].ID != task.ID {
		t.Errorf("unexpected tasks %+v", tasks)
	}

	rr = do(t, h, "GET", "/api/v1/tasks/stats", nil)
	if stats := decode[map[string]any](t, rr); rr.Code != http.StatusOK || len(stats) == 0 {
		t.Errorf("unexpected stats %d %v", rr.Code, stats)
	}

	rr = do(t, h, "GET", "/api/v1/tasks/"+task.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	rr = do(t, h, "DELETE", "/api/v1/tasks/"+task.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}

	rr = do(t, h, "GET", "/api/v1/tasks/missing", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

// Schedule endpoints

func TestHandleSchedules(t *testing.T) {
	h, d := newTestServer(t)

	rr := do(t, h, "GET", "/api/v1/schedules", nil)
	schedules := decode[[]domain.ScheduledTask](t, rr)
	if len(schedules) != 1 || schedules[0].ID != "task-purge" {
		t.Fatalf("unexpected schedules %+v", schedules)
	}

	rr = do(t, h, "PUT", "/api/v1/schedules/task-purge", UpdateScheduleRequest{Enabled: false})
	if rr.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rr.Code)
	}
	if enabled, ok := d.schedules.enabled["task-purge"]; !ok || enabled {
		t.Errorf("expected schedule disabled, got %v", d.schedules.enabled)
	}

	rr = do(t, h, "POST", "/api/v1/schedules/task-purge/trigger", nil)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	if task := decode[domain.Task](t, rr); task.Type != domain.TaskTypePurgeTasks {
		t.Errorf("expected purge task, got %s", task.Type)
	}

	rr = do(t, h, "POST", "/api/v1/schedules/missing/trigger", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}

func TestRoutesWithoutOptionalDeps(t *testing.T) {
	s := NewServer(DefaultConfig(), Deps{})
	h := s.Handler()

	for _, path := range []string{"/api/v1/schedules", "/api/v1/tasks", "/api/v1/openapi.json"} {
		if rr := do(t, h, "GET", path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected status 404, got %d", path, rr.Code)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.ErrAlreadyExists, http.StatusConflict},
		{domain.ErrCorpusFull, http.StatusConflict},
		{domain.ErrUnknownDocumentReference, http.StatusInternalServerError},
		{domain.ErrRemoteWorkerFailure, http.StatusBadGateway},
		{domain.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got, _ := errorStatus(tt.err); got != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, got)
		}
	}
}
