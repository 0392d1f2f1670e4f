package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailaudit/internal/dmarc"
	"mailaudit/internal/dnscheck"
	"mailaudit/internal/lookup"
	"mailaudit/internal/lookup/lookuptest"
	"mailaudit/internal/models"
	"mailaudit/internal/phishing"
	"mailaudit/internal/queue"
	"mailaudit/internal/sitemap"
	"mailaudit/internal/spf"
	"mailaudit/internal/store"
	"mailaudit/internal/txtrecords"
	"mailaudit/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	mu          sync.Mutex
	validations []models.ValidationRecord
	jobs        map[string]models.Job
	results     map[string][]models.JobResult
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]models.Job{}, results: map[string][]models.JobResult{}}
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) SaveValidation(_ context.Context, res models.ValidationResult, ip string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations = append(m.validations, models.ValidationRecord{
		ID: int64(len(m.validations) + 1), ClientIP: ip, CreatedAt: time.Now(), ValidationResult: res,
	})
	return nil
}

func (m *memStore) History(_ context.Context, limit int) ([]models.ValidationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = store.ClampLimit(limit)
	out := []models.ValidationRecord{}
	for i := len(m.validations) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.validations[i])
	}
	return out, nil
}

func (m *memStore) Stats(context.Context) (models.ValidationStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var valid, disposable int64
	for _, v := range m.validations {
		if v.IsValidSyntax && v.IsValidDNS {
			valid++
		}
		if v.IsDisposable {
			disposable++
		}
	}
	return store.NewStats(int64(len(m.validations)), valid, disposable), nil
}

func (m *memStore) CreateJob(_ context.Context, total int) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := models.Job{ID: "job-1", Status: models.JobPending, TotalCount: total, CreatedAt: time.Now()}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memStore) GetJob(_ context.Context, id string) (models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.Job{}, store.ErrJobNotFound
	}
	return job, nil
}

func (m *memStore) JobResults(_ context.Context, id string) ([]models.JobResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.JobResult{}, m.results[id]...), nil
}

type memQueue struct {
	tasks []queue.Task
}

func (q *memQueue) Ping(context.Context) error { return nil }

func (q *memQueue) Enqueue(_ context.Context, tasks ...queue.Task) error {
	q.tasks = append(q.tasks, tasks...)
	return nil
}

func newTestServer() (*server, *lookuptest.Resolver) {
	r := lookuptest.New()
	r.MX["example.com"] = []lookup.MXRecord{{Priority: 10, Host: "mx.example.com"}}
	r.NS["example.com"] = []string{"ns1.example.com"}
	r.SOA["example.com"] = &lookup.SOARecord{MName: "ns1.example.com", RName: "hostmaster.example.com"}
	r.TXT["example.com"] = []string{"v=spf1 ip4:1.2.3.4 -all", "google-site-verification=abc"}
	r.TXT["_dmarc.example.com"] = []string{"v=DMARC1; p=reject; pct=50"}

	return &server{
		validator: validator.New(r, nil, nil),
		spf:       spf.NewChecker(r),
		dmarc:     dmarc.NewChecker(r),
		txt:       txtrecords.NewChecker(r),
		dns:       dnscheck.NewChecker(r, 4),
		blacklist: dnscheck.NewBlacklistChecker(r, nil, 4),
		phishing:  phishing.New(nil, nil, nil),
		sitemaps:  sitemap.NewService(lookup.NewHTTPFetcher(nil, time.Second), 2),
	}, r
}

func do(t *testing.T, h http.Handler, method, path string, body any, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestCheckEmail(t *testing.T) {
	s, _ := newTestServer()
	st := newMemStore()
	s.store = st
	h := s.routes()

	w, body := do(t, h, http.MethodPost, "/api/emails/check", gin.H{"email": "alice@example.com", "check_smtp": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["is_valid_syntax"])
	assert.Equal(t, true, body["is_valid_dns"])
	assert.Equal(t, "Email is syntactically valid with valid DNS", body["message"])
	require.Len(t, st.validations, 1)
	assert.NotEmpty(t, st.validations[0].ClientIP)

	w, body = do(t, h, http.MethodPost, "/api/emails/check", gin.H{"email": "invalid-email"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["is_valid_syntax"])
	assert.Equal(t, false, body["is_valid_dns"])
	assert.Equal(t, []any{}, body["mx_records"])

	w, body = do(t, h, http.MethodPost, "/api/emails/check", gin.H{"email": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "email is required", body["error"])

	w, body = do(t, h, http.MethodPost, "/api/emails/check", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "Invalid request body")
}

func TestHistoryAndStats(t *testing.T) {
	s, _ := newTestServer()
	h := s.routes()

	w, body := do(t, h, http.MethodGet, "/api/emails/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Validation history is not configured", body["error"])
	w, _ = do(t, h, http.MethodGet, "/api/emails/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.store = newMemStore()
	h = s.routes()
	do(t, h, http.MethodPost, "/api/emails/check", gin.H{"email": "alice@example.com", "check_smtp": false})
	do(t, h, http.MethodPost, "/api/emails/check", gin.H{"email": "bad"})

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/emails/history?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.ValidationRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "bad", history[0].Email)

	w, body = do(t, h, http.MethodGet, "/api/emails/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total_validations"])
	assert.Equal(t, float64(1), body["valid_emails"])
	assert.Equal(t, float64(50), body["success_rate"])

	w, _ = do(t, h, http.MethodGet, "/api/emails/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecordTools(t *testing.T) {
	s, _ := newTestServer()
	h := s.routes()

	w, body := do(t, h, http.MethodPost, "/api/tools/spf-check", gin.H{"domain": "https://Example.com/path"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "example.com", body["domain"])
	assert.Equal(t, float64(0), body["dns_lookup_count"])
	assert.Equal(t, "-", body["all_mechanism"].(map[string]any)["qualifier"])

	w, body = do(t, h, http.MethodPost, "/api/tools/dmarc-check", gin.H{"domain": "example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "reject", body["policy"])
	assert.Equal(t, float64(50), body["percentage"])

	w, body = do(t, h, http.MethodPost, "/api/tools/txt-check", gin.H{"domain": "example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["verification"], 1)

	w, body = do(t, h, http.MethodPost, "/api/tools/dns-check", gin.H{"domain": "example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, body["a_records"])
	assert.Equal(t, []any{}, body["errors"])
	assert.Len(t, body["mx_records"], 1)

	w, body = do(t, h, http.MethodPost, "/api/tools/dns-record", gin.H{"domain": "example.com", "record_type": "ns"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"ns1.example.com"}, body["records"])

	w, _ = do(t, h, http.MethodPost, "/api/tools/dns-record", gin.H{"domain": "example.com", "record_type": "PTR"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, h, http.MethodPost, "/api/tools/spf-check", gin.H{"domain": "not a domain!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"], "Invalid domain")
}

func TestNetworkFailureStaysInPayload(t *testing.T) {
	s, r := newTestServer()
	r.Errors["TXT slow.example"] = lookup.ErrTimeout
	h := s.routes()

	w, body := do(t, h, http.MethodPost, "/api/tools/spf-check", gin.H{"domain": "slow.example"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"DNS query timeout"}, body["errors"])
}

func TestBlacklistCheck(t *testing.T) {
	s, r := newTestServer()
	r.A["4.3.2.1.zen.spamhaus.org"] = []string{"127.0.0.2"}
	h := s.routes()

	w, body := do(t, h, http.MethodPost, "/api/tools/blacklist-check", gin.H{"ip": "1.2.3.4"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3.4", body["ip_or_domain"])
	assert.Equal(t, float64(1), body["listed_count"])
	assert.Contains(t, r.Calls(), "A 4.3.2.1.zen.spamhaus.org")

	w, _ = do(t, h, http.MethodPost, "/api/tools/blacklist-check", gin.H{"ip": "2001:db8::1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContentTools(t *testing.T) {
	s, _ := newTestServer()
	h := s.routes()

	w, body := do(t, h, http.MethodPost, "/api/tools/header-analyze", gin.H{"raw_headers": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"No headers provided"}, body["errors"])

	w, body = do(t, h, http.MethodPost, "/api/tools/phishing-check", gin.H{"url": "http://192.168.1.1/verify-account-login"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["is_safe"])

	w, _ = do(t, h, http.MethodPost, "/api/tools/phishing-check", gin.H{"url": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = do(t, h, http.MethodPost, "/api/tools/generate-spf", gin.H{
		"domain": "example.com", "ip4": []string{"192.0.2.1"}, "include_domains": []string{"_spf.google.com"}, "policy": "-all",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v=spf1 ip4:192.0.2.1 include:_spf.google.com -all", body["spf_record"])

	w, _ = do(t, h, http.MethodPost, "/api/tools/generate-spf", gin.H{"domain": "example.com", "policy": "reject"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSitemapTools(t *testing.T) {
	s, _ := newTestServer()
	h := s.routes()

	w, body := do(t, h, http.MethodPost, "/api/seo/validate-sitemap", gin.H{
		"sitemap_content": `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["is_valid"])
	assert.Equal(t, float64(50), body["score"])

	w, body = do(t, h, http.MethodPost, "/api/seo/validate-sitemap", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Either sitemap_url or sitemap_content is required", body["error"])

	w, _ = do(t, h, http.MethodPost, "/api/seo/validate-sitemap", gin.H{"sitemap_url": "http://127.0.0.1:1/sitemap.xml"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "fetch failures are reported as bad input")

	w, body = do(t, h, http.MethodPost, "/api/seo/generate-sitemap", gin.H{
		"urls": []gin.H{{"loc": "https://example.com/", "priority": 0.8}, {"loc": "https://example.com/a", "priority": 1}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, body["sitemap"], "<priority>0.8</priority>")
	assert.Contains(t, body["sitemap"], "<priority>1.0</priority>")
	assert.Equal(t, float64(2), body["url_count"])

	w, _ = do(t, h, http.MethodPost, "/api/seo/find-sitemap", gin.H{"domain": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkRequiresKey(t *testing.T) {
	s, _ := newTestServer()
	s.store, s.queue = newMemStore(), &memQueue{}

	w, body := do(t, s.routes(), http.MethodPost, "/api/emails/bulk", gin.H{"emails": []string{"a@example.com"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, body["error"], "API_SECRET_KEY not set")

	s.apiKey = "secret"
	w, _ = do(t, s.routes(), http.MethodPost, "/api/emails/bulk", gin.H{"emails": []string{"a@example.com"}}, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBulkLifecycle(t *testing.T) {
	s, _ := newTestServer()
	st, q := newMemStore(), &memQueue{}
	s.store, s.queue, s.apiKey = st, q, "secret"
	h := s.routes()
	auth := []string{"Authorization", "Bearer secret"}

	w, body := do(t, h, http.MethodPost, "/api/emails/bulk", gin.H{"emails": []string{" a@example.com ", "", "b@example.com"}}, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Equal(t, float64(2), body["total_rows"])
	assert.Equal(t, []queue.Task{{JobID: "job-1", Email: "a@example.com"}, {JobID: "job-1", Email: "b@example.com"}}, q.tasks)

	w, body = do(t, h, http.MethodGet, "/api/emails/bulk/status?id=job-1", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", body["status"])

	st.results["job-1"] = []models.JobResult{{Email: "a@example.com"}}
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/emails/bulk/results?id=job-1", nil)
	req.Header.Set(auth[0], auth[1])
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var results []models.JobResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	assert.Len(t, results, 1)

	w, body = do(t, h, http.MethodGet, "/api/emails/bulk/status?id=nope", nil, auth...)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Job not found", body["error"])

	w, _ = do(t, h, http.MethodGet, "/api/emails/bulk/results", nil, auth...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBulkCSVUpload(t *testing.T) {
	s, _ := newTestServer()
	q := &memQueue{}
	s.store, s.queue, s.apiKey = newMemStore(), q, "secret"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "emails.csv")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("email,name\nalice@example.com,Alice\nbob@example.com\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/emails/bulk", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, q.tasks, 2)
	assert.Equal(t, "alice@example.com", q.tasks[0].Email)
}

func TestBulkWithoutBackends(t *testing.T) {
	s, _ := newTestServer()
	s.apiKey = "secret"
	w, _ := do(t, s.routes(), http.MethodPost, "/api/emails/bulk", gin.H{"emails": []string{"a@example.com"}}, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthInfoAndCORS(t *testing.T) {
	s, _ := newTestServer()
	h := s.routes()

	w, body := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "disabled", body["database"])
	assert.Equal(t, "disabled", body["queue"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w, body = do(t, h, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["capabilities"])

	w, _ = do(t, h, http.MethodOptions, "/api/tools/spf-check", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization"))
}
