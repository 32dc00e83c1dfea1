package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/erp-session/auth"
	"github.com/jrsteele09/erp-session/internal/config"
	"github.com/jrsteele09/erp-session/login"
	"github.com/jrsteele09/erp-session/server"
	"github.com/jrsteele09/erp-session/sessions"
	"github.com/jrsteele09/erp-session/storage"
	"github.com/jrsteele09/erp-session/storage/memstore"
	"github.com/jrsteele09/erp-session/widget"
	"github.com/jrsteele09/erp-session/widget/google"
	"github.com/jrsteele09/erp-session/widget/widgetfake"
	"github.com/stretchr/testify/require"
)

const (
	testClientID    = "client-123.apps.googleusercontent.com"
	goodIDToken     = "eyJhbGciOiJSUzI1NiJ9.good.sig"
	rejectedIDToken = "eyJhbGciOiJSUzI1NiJ9.rejected.sig"
	goodAccessToken = "ya29.good"
	csrfToken       = "csrf-abc"
)

type pendingFlow struct {
	result    widget.Result
	returnURL string
}

// fakeIdentity stands in for the Google provider
type fakeIdentity struct {
	mu        sync.Mutex
	verifyErr error
	begun     []widget.Flow
	pending   map[string]pendingFlow
	next      int
}

func (f *fakeIdentity) ClientID() string { return testClientID }

func (f *fakeIdentity) Begin(flow widget.Flow, returnURL string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	state := fmt.Sprintf("state-%d", f.next)
	f.begun = append(f.begun, flow)
	credential := goodIDToken
	if flow == widget.FlowInteractive {
		credential = goodAccessToken
	}
	f.pending[state] = pendingFlow{result: widget.Result{Flow: flow, Credential: credential}, returnURL: returnURL}
	return "https://accounts.example.test/o/oauth2/auth?state=" + state, state, nil
}

func (f *fakeIdentity) Complete(_ context.Context, state, code string) (widget.Result, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	flow, ok := f.pending[state]
	if !ok {
		return widget.Result{}, "", google.ErrStateNotFound
	}
	delete(f.pending, state)
	if code == "" {
		flow.result = widget.Result{Flow: flow.result.Flow, Err: fmt.Errorf("authorization code missing")}
	}
	return flow.result, flow.returnURL, nil
}

func (f *fakeIdentity) VerifyCredential(_ context.Context, _ string) (*google.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &google.Identity{Subject: "sub-1", Email: "ana@uni.edu"}, nil
}

type testFixture struct {
	ctx      context.Context
	store    *memstore.Store
	state    *sessions.State
	widget   *widgetfake.FakeWidget
	identity *fakeIdentity
	server   *server.Server
}

func setupTestFixture(t *testing.T, vars map[string]string) *testFixture {
	t.Helper()
	f := &testFixture{
		ctx:      context.Background(),
		store:    memstore.New(),
		widget:   widgetfake.NewFakeWidget(),
		identity: &fakeIdentity{pending: make(map[string]pendingFlow)},
	}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AccessToken string `json:"access_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.AccessToken {
		case goodIDToken, goodAccessToken:
			_, _ = w.Write([]byte(`{"key":"abc","user":{"id":1,"email":"ana@uni.edu","first_name":"Ana","last_name":"Lopez","is_staff":true}}`))
		case rejectedIDToken:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Invalid Google token"}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(backend.Close)

	env := map[string]string{
		"ENV":          "TEST",
		"API_URL":      backend.URL + "/api",
		"STORE_DRIVER": "memory",
	}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.NewFromMap(env)
	require.NoError(t, err)

	f.state, err = sessions.New(f.store)
	require.NoError(t, err)
	require.NoError(t, f.state.Initialize(f.ctx))

	client, err := auth.NewExchangeClient(cfg.GetAPIURL(), f.state, auth.WithDoer(backend.Client()))
	require.NoError(t, err)
	svc, err := auth.NewService(f.state, client, f.widget)
	require.NoError(t, err)
	controller, err := login.NewController(svc, f.widget,
		login.WithFallbackMode(cfg.GetFallbackMode()),
		login.WithAppName(cfg.GetAppName()),
		login.WithNoticeBoard(login.NewNoticeBoard(time.Minute)),
	)
	require.NoError(t, err)

	morning := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	f.server, err = server.New(cfg, f.state, controller, f.identity, server.WithNowTime(func() time.Time { return morning }))
	require.NoError(t, err)
	return f
}

func (f *testFixture) do(r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, r)
	return rec
}

func (f *testFixture) get(target string) *httptest.ResponseRecorder {
	return f.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (f *testFixture) postCredential(credential, returnURL string) *httptest.ResponseRecorder {
	form := url.Values{"credential": {credential}, "g_csrf_token": {csrfToken}}
	target := server.RouteGoogleCredential
	if returnURL != "" {
		target += "?returnUrl=" + url.QueryEscape(returnURL)
	}
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.AddCookie(&http.Cookie{Name: "g_csrf_token", Value: csrfToken})
	return f.do(r)
}

func (f *testFixture) signIn(t *testing.T) {
	t.Helper()
	rec := f.postCredential(goodIDToken, "")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.True(t, f.state.IsAuthenticated(f.ctx))
}

func requireRedirect(t *testing.T, rec *httptest.ResponseRecorder, code int, path string) *url.URL {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
	u, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, path, u.Path)
	return u
}

func TestNew_Validation(t *testing.T) {
	cfg, err := config.NewFromMap(map[string]string{"STORE_DRIVER": "memory"})
	require.NoError(t, err)
	_, err = server.New(cfg, nil, nil, nil)
	require.Error(t, err)
}

func TestProtectedRoute_WithoutSession(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.get("/dashboard/grades")
	u := requireRedirect(t, rec, http.StatusSeeOther, "/login")
	require.Equal(t, "/dashboard/grades", u.Query().Get("returnUrl"))
}

func TestLoginPage(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.get("/login?returnUrl=%2Fdashboard%2Fgrades")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	require.Contains(t, body, `data-client_id="`+testClientID+`"`)
	require.Contains(t, body, "http://localhost:4200/auth/google/credential?returnUrl=%2Fdashboard%2Fgrades")
	require.Contains(t, body, "/auth/google/start?flow=interactive")

	t.Run("fallback off hides the interactive link", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{"LOGIN_FALLBACK": "off"})
		body := f.get("/login").Body.String()
		require.NotContains(t, body, "/auth/google/start")
	})

	t.Run("signed in users go to the dashboard", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		f.signIn(t)
		requireRedirect(t, f.get("/login"), http.StatusSeeOther, "/dashboard")
	})
}

func TestCredentialSubmission(t *testing.T) {
	t.Run("success replays the return url", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		rec := f.postCredential(goodIDToken, "/dashboard/grades")
		requireRedirect(t, rec, http.StatusSeeOther, "/dashboard/grades")
		require.Equal(t, "abc", f.state.Token())
		require.Equal(t, "ana@uni.edu", f.state.CurrentUser().Email)

		stored, ok, err := f.store.Get(f.ctx, storage.KeyAuthToken)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", stored)
	})

	t.Run("csrf mismatch", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		form := url.Values{"credential": {goodIDToken}, "g_csrf_token": {"other"}}
		r := httptest.NewRequest(http.MethodPost, server.RouteGoogleCredential, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		r.AddCookie(&http.Cookie{Name: "g_csrf_token", Value: csrfToken})

		rec := f.do(r)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.False(t, f.state.IsAuthenticated(f.ctx))
	})

	t.Run("rejected credential starts the interactive flow", func(t *testing.T) {
		f := setupTestFixture(t, nil)

		rec := f.postCredential(rejectedIDToken, "/dashboard/courses")
		u := requireRedirect(t, rec, http.StatusSeeOther, server.RouteGoogleStart)
		require.Equal(t, "interactive", u.Query().Get("flow"))
		require.Equal(t, "/dashboard/courses", u.Query().Get("returnUrl"))
		require.False(t, f.state.IsAuthenticated(f.ctx))
	})

	t.Run("manual fallback returns to login with a notice", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{"LOGIN_FALLBACK": "manual"})

		rec := f.postCredential(rejectedIDToken, "")
		requireRedirect(t, rec, http.StatusSeeOther, "/login")
		require.Contains(t, f.get("/login").Body.String(), login.MsgFallback)
	})

	t.Run("verification failure is treated as no credential", func(t *testing.T) {
		f := setupTestFixture(t, map[string]string{"LOGIN_FALLBACK": "off"})
		f.identity.verifyErr = fmt.Errorf("bad signature")

		rec := f.postCredential(goodIDToken, "")
		requireRedirect(t, rec, http.StatusSeeOther, "/login")
		require.False(t, f.state.IsAuthenticated(f.ctx))
		require.Contains(t, f.get("/login").Body.String(), login.MsgUnavailable)
	})
}

func TestInteractiveFlow(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.get("/auth/google/start?flow=interactive&returnUrl=%2Fdashboard%2Fschedule")
	require.Equal(t, http.StatusFound, rec.Code)
	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "accounts.example.test", authURL.Host)
	require.Equal(t, []widget.Flow{widget.FlowInteractive}, f.identity.begun)

	state := authURL.Query().Get("state")
	rec = f.get("/auth/google/callback?state=" + state + "&code=xyz")
	requireRedirect(t, rec, http.StatusSeeOther, "/dashboard/schedule")
	require.True(t, f.state.IsAuthenticated(f.ctx))

	t.Run("state is single use", func(t *testing.T) {
		rec := f.get("/auth/google/callback?state=" + state + "&code=xyz")
		requireRedirect(t, rec, http.StatusSeeOther, "/login")
	})
}

func TestInteractiveFlow_Errors(t *testing.T) {
	t.Run("invalid flow", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		require.Equal(t, http.StatusBadRequest, f.get("/auth/google/start?flow=popup").Code)
	})

	t.Run("missing code", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		require.Equal(t, http.StatusBadRequest, f.get("/auth/google/callback?state=unknown").Code)
	})

	t.Run("user declined", func(t *testing.T) {
		f := setupTestFixture(t, nil)
		rec := f.get("/auth/google/start?returnUrl=%2Fdashboard%2Fgrades")
		authURL, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)

		rec = f.get("/auth/google/callback?error=access_denied&state=" + authURL.Query().Get("state"))
		u := requireRedirect(t, rec, http.StatusSeeOther, "/login")
		require.Equal(t, "/dashboard/grades", u.Query().Get("returnUrl"))
		require.Contains(t, f.get("/login").Body.String(), login.MsgUnavailable)
	})
}

func TestDashboard(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.signIn(t)

	rec := f.get("/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "Good morning, Ana")
	require.Contains(t, body, "Welcome Ana! You are signed in to University ERP.")
	require.Contains(t, body, "Active Courses")
	require.Contains(t, body, "Staff")

	rec = f.get("/dashboard/grades")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `<li class="active">`)
	require.NotContains(t, rec.Body.String(), "Active Courses")

	require.Equal(t, http.StatusNotFound, f.get("/dashboard/unknown").Code)
}

func TestGreeting(t *testing.T) {
	day := func(hour int) time.Time { return time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC) }
	require.Equal(t, "Good morning", server.Greeting(day(0)))
	require.Equal(t, "Good morning", server.Greeting(day(11)))
	require.Equal(t, "Good afternoon", server.Greeting(day(12)))
	require.Equal(t, "Good afternoon", server.Greeting(day(17)))
	require.Equal(t, "Good evening", server.Greeting(day(18)))
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.signIn(t)

	rec := f.do(httptest.NewRequest(http.MethodPost, server.RouteLogout, nil))
	requireRedirect(t, rec, http.StatusSeeOther, "/login")
	require.False(t, f.state.IsAuthenticated(f.ctx))
	require.Zero(t, f.store.Len())
	require.Equal(t, []string{"ana@uni.edu"}, f.widget.Forgotten())

	requireRedirect(t, f.get("/dashboard"), http.StatusSeeOther, "/login")
	require.Contains(t, f.get("/login").Body.String(), login.MsgSignedOut)
}

func TestLogout_CrossSite(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		allowed bool
	}{
		{"same host origin", map[string]string{"Origin": "http://example.com"}, true},
		{"base url origin", map[string]string{"Origin": "http://localhost:4200"}, true},
		{"same-origin fetch", map[string]string{"Sec-Fetch-Site": "same-origin"}, true},
		{"foreign origin", map[string]string{"Origin": "https://evil.example"}, false},
		{"opaque origin", map[string]string{"Origin": "null"}, false},
		{"cross-site fetch", map[string]string{"Sec-Fetch-Site": "cross-site"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, nil)
			f.signIn(t)

			req := httptest.NewRequest(http.MethodPost, server.RouteLogout, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := f.do(req)

			if tt.allowed {
				requireRedirect(t, rec, http.StatusSeeOther, "/login")
				require.False(t, f.state.IsAuthenticated(f.ctx))
				return
			}
			require.Equal(t, http.StatusForbidden, rec.Code)
			require.True(t, f.state.IsAuthenticated(f.ctx))
			require.Empty(t, f.widget.Forgotten())
		})
	}
}

func TestCatchAll(t *testing.T) {
	f := setupTestFixture(t, nil)

	requireRedirect(t, f.get("/"), http.StatusSeeOther, "/dashboard")
	requireRedirect(t, f.get("/no/such/page"), http.StatusSeeOther, "/dashboard")
	requireRedirect(t, f.get("/login/"), http.StatusSeeOther, "/login")
}

func TestSessionClearedByAnotherProcess(t *testing.T) {
	f := setupTestFixture(t, nil)
	f.signIn(t)
	require.Equal(t, http.StatusOK, f.get("/dashboard").Code)

	require.NoError(t, f.store.Delete(f.ctx, storage.RecordKeys...))

	requireRedirect(t, f.get("/dashboard"), http.StatusSeeOther, "/login")
	require.Nil(t, f.state.CurrentUser())
}

func TestSessionStatusAPI(t *testing.T) {
	f := setupTestFixture(t, nil)

	decode := func(rec *httptest.ResponseRecorder) server.SessionStatusResponse {
		t.Helper()
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
		var resp server.SessionStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := decode(f.get(server.RouteAPISession))
	require.False(t, resp.Authenticated)
	require.Nil(t, resp.User)

	f.signIn(t)
	rec := f.get(server.RouteAPISession)
	require.NotContains(t, rec.Body.String(), `"abc"`)
	resp = decode(rec)
	require.True(t, resp.Authenticated)
	require.Equal(t, int64(1), resp.User.ID)
	require.NotNil(t, resp.Token)
	require.Equal(t, 3, resp.Token.Length)
	require.False(t, resp.Token.Expired)

	t.Run("cors", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, server.RouteAPISession, nil)
		r.Header.Set("Origin", "http://localhost:4200")
		rec := f.do(r)
		require.Equal(t, "http://localhost:4200", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

		r = httptest.NewRequest(http.MethodGet, server.RouteAPISession, nil)
		r.Header.Set("Origin", "https://evil.example")
		require.Empty(t, f.do(r).Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestStaticFiles(t *testing.T) {
	f := setupTestFixture(t, nil)

	rec := f.get("/css/erp.css")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/css"))

	require.Equal(t, http.StatusNotFound, f.get("/css/missing.css").Code)
}
