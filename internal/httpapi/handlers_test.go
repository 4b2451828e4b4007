package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"incident-portal/internal/assignments"
	"incident-portal/internal/audit"
	"incident-portal/internal/auth"
	"incident-portal/internal/commanders"
	"incident-portal/internal/config"
	"incident-portal/internal/dashboard"
	"incident-portal/internal/events"
	"incident-portal/internal/rbac"
	"incident-portal/internal/reports"
	"incident-portal/internal/storage"
)

const (
	adminEmail    = "ops@portal.test"
	adminPassword = "correct horse battery"
)

type setupMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *setupMailer) SendPasswordSetup(ctx context.Context, c commanders.Commander, link string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *setupMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links, "no setup link sent")
	link := m.links[len(m.links)-1]
	i := strings.Index(link, "token=")
	require.GreaterOrEqual(t, i, 0, "link without token: %s", link)
	return link[i+len("token="):]
}

type apiFixture struct {
	router *gin.Engine
	tokens *auth.Manager
	bus    *events.Bus
	mailer *setupMailer
	audit  *audit.MemoryRepo
	cmds   *commanders.MemoryRepo
}

func newAPI(t *testing.T, rl config.RateLimitSettings) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authCfg := config.AuthConfig{
		JWTSecret:         "test-secret",
		JWTIssuer:         "incident-portal",
		JWTAudience:       "portal-api",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   24 * time.Hour,
		AdminEmail:        adminEmail,
		AdminPasswordHash: string(hash),
	}
	mgr, err := auth.NewManager(authCfg)
	require.NoError(t, err)

	f := &apiFixture{
		tokens: mgr,
		bus:    events.NewBus(nil),
		mailer: &setupMailer{},
		audit:  audit.NewMemoryRepo(),
		cmds:   commanders.NewMemoryRepo(),
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.bus.Drain(ctx)
	})

	auditSvc := audit.NewService(f.audit)
	reportRepo := reports.NewMemoryRepo()
	reportSvc := reports.NewService(reportRepo, storage.NewMemoryStore("evidence"), auditSvc, f.bus, config.DefaultSettings().Intake)
	cmdSvc := commanders.NewService(f.cmds, commanders.NewMemoryTokenStore(), f.mailer, auditSvc, f.bus, "https://portal.test")
	assignMgr := assignments.NewManager(assignments.NewMemoryStore(reportRepo), cmdSvc, auditSvc, f.bus)

	h := Handlers{
		Auth:        mgr,
		Admin:       auth.NewAdminAccount(authCfg),
		Reports:     reportSvc,
		Assignments: assignMgr,
		Commanders:  cmdSvc,
		Audit:       auditSvc,
		Dashboard:   dashboard.NewService(dashboard.NewMemoryRepo()),
		Bus:         f.bus,
	}

	f.router = gin.New()
	Register(f.router, h, auth.RequireAccessToken(mgr), NewIPRateLimiter(rl).Middleware())
	return f
}

func openLimits() config.RateLimitSettings {
	return config.RateLimitSettings{SubmissionsPerMinute: 0, Burst: 1}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func (f *apiFixture) token(t *testing.T, userID, unitID, role string) string {
	t.Helper()
	pair, err := f.tokens.IssuePair(time.Now(), userID, unitID, role)
	require.NoError(t, err)
	return pair.AccessToken
}

func anonymousReport() map[string]any {
	return map[string]any{
		"description":  "Armed men sighted near the motor park",
		"threat_type":  "armed robbery",
		"state":        "Kaduna",
		"urgency":      "critical",
		"is_anonymous": true,
	}
}

func (f *apiFixture) submit(t *testing.T) reports.SubmitResult {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/reports", "", anonymousReport())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[reports.SubmitResult](t, w)
}

func TestSubmitReport_JSONThenTrack(t *testing.T) {
	f := newAPI(t, openLimits())

	res := f.submit(t)
	assert.True(t, res.Success)
	assert.True(t, reports.ValidSerial(res.SerialNumber), res.SerialNumber)

	w := f.do(t, http.MethodGet, "/v1/reports/track/"+res.SerialNumber, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[map[string]any](t, w)
	assert.Equal(t, "pending", view["status"])
	assert.NotContains(t, view, "reporter_name")

	w = f.do(t, http.MethodGet, "/v1/reports/track/DHQ-1999-000000", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitReport_ValidationFields(t *testing.T) {
	f := newAPI(t, openLimits())

	w := f.do(t, http.MethodPost, "/v1/reports", "", map[string]any{
		"description": "short",
		"urgency":     "extreme",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	body := decode[struct {
		Error  string               `json:"error"`
		Fields []reports.FieldError `json:"fields"`
	}](t, w)
	fields := map[string]bool{}
	for _, fe := range body.Fields {
		fields[fe.Field] = true
	}
	for _, want := range []string{"description", "threat_type", "state", "urgency"} {
		assert.True(t, fields[want], "missing field error for %s in %v", want, body.Fields)
	}
}

func TestSubmitReport_MalformedJSON(t *testing.T) {
	f := newAPI(t, openLimits())

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitReport_Multipart(t *testing.T) {
	f := newAPI(t, openLimits())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	raw, err := json.Marshal(anonymousReport())
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("report", string(raw)))

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="scene.png"`)
	hdr.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG fake image bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/reports", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[reports.SubmitResult](t, w)
	assert.Equal(t, 1, res.Images)
	assert.Zero(t, res.FailedUploads)
}

func TestSubmitReport_RateLimited(t *testing.T) {
	f := newAPI(t, config.RateLimitSettings{SubmissionsPerMinute: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/v1/reports", "", anonymousReport())
		require.Equal(t, http.StatusCreated, w.Code, "request %d", i)
	}
	w := f.do(t, http.MethodPost, "/v1/reports", "", anonymousReport())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// Tracking is not limited.
	w = f.do(t, http.MethodGet, "/v1/reports/track/DHQ-1999-000000", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRBAC(t *testing.T) {
	f := newAPI(t, openLimits())
	res := f.submit(t)

	w := f.do(t, http.MethodGet, "/v1/admin/reports", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	commander := f.token(t, "cmd-1", "unit-1", rbac.RoleCommander)
	w = f.do(t, http.MethodGet, "/v1/admin/reports", commander, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	analyst := f.token(t, "an-1", "", rbac.RoleAnalyst)
	w = f.do(t, http.MethodGet, "/v1/admin/reports?queue=triage", analyst, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = f.do(t, http.MethodPost, "/v1/admin/reports/"+res.ReportID+"/assign", analyst, map[string]string{"commander_id": "cmd-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := f.token(t, "admin", "", rbac.RoleAdmin)
	w = f.do(t, http.MethodGet, "/v1/commander/assignments", admin, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	unitless := f.token(t, "cmd-1", "", rbac.RoleCommander)
	w = f.do(t, http.MethodGet, "/v1/commander/assignments", unitless, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogin(t *testing.T) {
	f := newAPI(t, openLimits())

	w := f.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: adminEmail, Password: "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: "OPS@portal.test", Password: adminPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[loginResponse](t, w)
	assert.Equal(t, rbac.RoleAdmin, login.Role)

	w = f.do(t, http.MethodGet, "/v1/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decode[map[string]any](t, w)["user_id"])

	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: login.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh_RequiresActiveCommander(t *testing.T) {
	f := newAPI(t, openLimits())
	admin := f.token(t, "admin", "", rbac.RoleAdmin)

	w := f.do(t, http.MethodPost, "/v1/admin/commanders", admin, commanders.RegisterRequest{
		FullName: "Musa Danjuma",
		Email:    "musa.danjuma@unit.test",
		Phone:    "+2348000000003",
		Rank:     "Inspector",
		UnitID:   "unit-kn-1",
		State:    "Kano",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cmd := decode[commanders.Commander](t, w)

	setup := passwordSetupRequest{Token: f.mailer.lastToken(t), Password: strings.Repeat("x", 80)}
	w = f.do(t, http.MethodPost, "/v1/auth/password-setup", "", setup)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	setup.Password = "s3cure-pass"
	w = f.do(t, http.MethodPost, "/v1/auth/password-setup", "", setup)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: "musa.danjuma@unit.test", Password: "s3cure-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[loginResponse](t, w)

	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f.cmds.SetStatus(cmd.ID, commanders.StatusDisabled)
	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pair, err := f.tokens.IssuePair(time.Now(), "not-a-commander", "unit-kn-1", rbac.RoleCommander)
	require.NoError(t, err)
	w = f.do(t, http.MethodPost, "/v1/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAssignmentLifecycleOverHTTP(t *testing.T) {
	f := newAPI(t, openLimits())
	admin := f.token(t, "admin", "", rbac.RoleAdmin)

	// Register a commander and activate them through the emailed link.
	w := f.do(t, http.MethodPost, "/v1/admin/commanders", admin, commanders.RegisterRequest{
		FullName: "Amina Bello",
		Email:    "amina.bello@unit.test",
		Phone:    "+2348000000001",
		Rank:     "Inspector",
		UnitID:   "unit-kd-3",
		State:    "Kaduna",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cmd := decode[commanders.Commander](t, w)

	w = f.do(t, http.MethodPost, "/v1/admin/commanders", admin, commanders.RegisterRequest{
		FullName: "Someone Else",
		Email:    "AMINA.BELLO@unit.test",
		Phone:    "+2348000000002",
		Rank:     "Sergeant",
		UnitID:   "unit-kd-4",
		State:    "Kaduna",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	setup := passwordSetupRequest{Token: f.mailer.lastToken(t), Password: "s3cure-pass"}
	w = f.do(t, http.MethodPost, "/v1/auth/password-setup", "", setup)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, "/v1/auth/password-setup", "", setup)
	assert.Equal(t, http.StatusBadRequest, w.Code, "token must be single-use")

	w = f.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: "amina.bello@unit.test", Password: "s3cure-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[loginResponse](t, w)
	require.Equal(t, rbac.RoleCommander, login.Role)
	require.Equal(t, "unit-kd-3", login.UnitID)
	commander := login.AccessToken

	// Assign, then a second assign conflicts.
	res := f.submit(t)
	w = f.do(t, http.MethodPost, "/v1/admin/reports/"+res.ReportID+"/assign", admin, assignRequest{CommanderID: cmd.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	a := decode[assignments.Assignment](t, w)
	w = f.do(t, http.MethodPost, "/v1/admin/reports/"+res.ReportID+"/assign", admin, assignRequest{CommanderID: cmd.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/v1/commander/assignments", commander, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[struct {
		Assignments []assignments.Assignment `json:"assignments"`
	}](t, w)
	require.Len(t, mine.Assignments, 1)

	base := "/v1/commander/assignments/" + a.ID
	w = f.do(t, http.MethodPost, base+"/respond", commander, respondRequest{Status: "accepted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodPost, base+"/respond", commander, respondRequest{Status: "assigned"})
	assert.Equal(t, http.StatusConflict, w.Code, "respond is forward-only")

	// Resolve before any resolution is an invalid transition.
	w = f.do(t, http.MethodPost, "/v1/admin/assignments/"+a.ID+"/resolve", admin, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, base+"/respond", commander, respondRequest{Status: "responded_to"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, base+"/resolution", commander, map[string]any{"resolution_notes": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, base+"/resolution", commander, map[string]any{"resolution_notes": "Suspects dispersed", "casualties": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/admin/assignments/"+a.ID+"/return", admin, returnRequest{Reason: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/v1/admin/assignments/"+a.ID+"/return", admin, returnRequest{Reason: "Add arrest count"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	returned := decode[assignments.Assignment](t, w)
	assert.Equal(t, "returned_for_revision", string(returned.Status))
	assert.Equal(t, 1, returned.RevisionCount)

	w = f.do(t, http.MethodPost, base+"/resubmit", commander, map[string]any{"resolution_notes": "Two suspects arrested", "weapons_recovered": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/v1/admin/assignments/"+a.ID+"/resolve", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode[assignments.Assignment](t, w)
	assert.Equal(t, "resolved", string(resolved.Status))
	assert.Equal(t, "admin", resolved.ResolvedBy)

	w = f.do(t, http.MethodGet, "/v1/reports/track/"+res.SerialNumber, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "resolved", decode[map[string]any](t, w)["status"])

	w = f.do(t, http.MethodGet, "/v1/admin/reports/"+res.ReportID+"/trail", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	trail := decode[struct {
		Entries []audit.Entry `json:"entries"`
	}](t, w)
	assert.NotEmpty(t, trail.Entries)
	assert.Equal(t, audit.ActionReportSubmitted, trail.Entries[0].ActionType)
}

func TestStatsRejectsBadRange(t *testing.T) {
	f := newAPI(t, openLimits())
	admin := f.token(t, "admin", "", rbac.RoleAdmin)

	w := f.do(t, http.MethodGet, "/v1/admin/stats", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/v1/admin/stats?from=yesterday&to=today", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/v1/admin/stats?from=2025-02-01T00:00:00Z&to=2025-01-01T00:00:00Z", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		&reports.ValidationError{}:            http.StatusUnprocessableEntity,
		assignments.ErrAlreadyAssigned:        http.StatusConflict,
		assignments.ErrNotFound:               http.StatusNotFound,
		assignments.ErrForbidden:              http.StatusForbidden,
		assignments.ErrResolutionNotSubmitted: http.StatusConflict,
		reports.ErrExhaustedRetries:           http.StatusServiceUnavailable,
		commanders.ErrInvalidCredentials:      http.StatusUnauthorized,
		context.DeadlineExceeded:              http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
