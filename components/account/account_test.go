package account

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	acct "github.com/yanizio/openaccount/internal/account"
	"github.com/yanizio/openaccount/internal/component"
	"github.com/yanizio/openaccount/internal/config"
	"github.com/yanizio/openaccount/internal/form"
	"github.com/yanizio/openaccount/internal/submission"
	"github.com/yanizio/openaccount/internal/view"
)

var today = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

// newServer starts the component behind httptest with a cookie-aware client.
func newServer(t *testing.T, delay time.Duration) (*httptest.Server, *http.Client, *Component) {
	t.Helper()

	cfg := &config.Config{
		Submission: config.Submission{Delay: delay, Notice: "Account successfully opened!"},
		Session:    config.Session{IdleTTL: time.Minute, MaxEntries: 100, EvictInterval: time.Minute},
	}
	c := &Component{now: func() time.Time { return today }}
	err := c.Init(component.Env{
		Config:    cfg,
		Log:       zap.NewNop().Sugar(),
		Validator: acct.NewValidator(acct.WithClock(func() time.Time { return today })),
		Guard:     form.Guard{},
		Views:     view.New(nil, view.CacheDefault),
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	srv := httptest.NewServer(c.Routes())
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return srv, client, c
}

func validForm(t *testing.T) url.Values {
	t.Helper()
	tok, err := form.GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	v := url.Values{
		"fullName":       {"Ally Perera"},
		"email":          {"ally@example.com"},
		"phoneNumber":    {"0771234567"},
		"dateOfBirth":    {"1990-05-17"},
		"accountType":    {"Savings"},
		"initialDeposit": {"250.50"},
		"currency":       {"LKR"},
		"streetAddress":  {"12 Galle Road"},
		"city":           {"Colombo"},
		"zipCode":        {"00300"},
		"termsAccepted":  {"true"},
	}
	v.Set(form.CSRFField, tok)
	return v
}

const validJSON = `{"fullName":"Ally Perera","email":"ally@example.com","phoneNumber":"0771234567",
"dateOfBirth":"1990-05-17","accountType":"Checking","initialDeposit":100,"currency":"USD",
"streetAddress":"12 Galle Road","city":"Colombo","zipCode":"00300","termsAccepted":true}`

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

func status(t *testing.T, client *http.Client, base string) map[string]string {
	t.Helper()
	resp, err := client.Get(base + "/api/account/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

// waitIdle polls the status endpoint and returns the notice seen on the
// transition back to idle.
func waitIdle(t *testing.T, client *http.Client, base string) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := status(t, client, base); s["state"] == "idle" {
			return s["notice"]
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("submission never returned to idle")
	return ""
}

/*──────────────────────────── page ─────────────────────────────────────────*/

func TestPage_GetRendersEmptyForm(t *testing.T) {
	srv, client, _ := newServer(t, 10*time.Millisecond)

	resp, err := client.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(resp.Cookies()) != 0 {
		t.Error("session cookie issued before any submit")
	}
	html := body(t, resp)
	for _, want := range []string{
		"<title>Open New Account</title>",
		`<meta name="robots" content="noindex, nofollow">`,
		`name="fullName"`,
		`name="termsAccepted"`,
		`max="2008-10-18"`,
		`name="` + form.CSRFField + `"`,
		`<button type="submit">Open My Account</button>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if strings.Contains(html, `class="notice"`) {
		t.Error("notice shown on first load")
	}
}

func TestPage_SubmitRoundTrip(t *testing.T) {
	srv, client, _ := newServer(t, 300*time.Millisecond)

	resp, err := client.PostForm(srv.URL+"/", validForm(t))
	if err != nil {
		t.Fatal(err)
	}
	_ = body(t, resp)
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}

	// Busy page while the submission runs.
	resp, err = client.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	html := body(t, resp)
	if resp.Header.Get("Refresh") == "" {
		t.Error("busy page does not refresh")
	}
	if !strings.Contains(html, `<meta http-equiv="refresh" content="1">`) {
		t.Error("busy page lacks meta refresh")
	}
	if !strings.Contains(html, `disabled aria-busy="true">Processing...</button>`) {
		t.Error("busy button missing")
	}
	if !strings.Contains(html, `value="Ally Perera"`) {
		t.Error("draft not shown while busy")
	}

	// A second post while busy is refused.
	resp, err = client.PostForm(srv.URL+"/", validForm(t))
	if err != nil {
		t.Fatal(err)
	}
	_ = body(t, resp)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("busy post status = %d, want 409", resp.StatusCode)
	}

	if n := waitIdle(t, client, srv.URL); n != "Account successfully opened!" {
		t.Errorf("notice = %q", n)
	}
	if n := status(t, client, srv.URL)["notice"]; n != "" {
		t.Errorf("notice shown twice: %q", n)
	}

	// Form is back to empty.
	resp, err = client.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	if html := body(t, resp); strings.Contains(html, "Ally Perera") {
		t.Error("form not reset after success")
	}
}

func TestPage_FieldErrorsKeepInput(t *testing.T) {
	srv, client, _ := newServer(t, 10*time.Millisecond)

	v := validForm(t)
	v.Set("fullName", "Al")
	v.Del("termsAccepted")

	resp, err := client.PostForm(srv.URL+"/", v)
	if err != nil {
		t.Fatal(err)
	}
	html := body(t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	for _, want := range []string{
		"Full Name must be at least 3 characters",
		"You must accept the Terms &amp; Conditions",
		`aria-invalid="true" aria-describedby="err-fullName"`,
		`value="Al"`,
		`value="ally@example.com"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("page missing %q", want)
		}
	}
	if s := status(t, client, srv.URL); s["state"] != "idle" {
		t.Errorf("state = %q after invalid submit", s["state"])
	}
}

func TestPage_GuardRejects(t *testing.T) {
	srv, client, _ := newServer(t, 10*time.Millisecond)

	v := validForm(t)
	v.Set(form.CSRFField, "forged")

	resp, err := client.PostForm(srv.URL+"/", v)
	if err != nil {
		t.Fatal(err)
	}
	html := body(t, resp)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
	if !strings.Contains(html, `<p class="form-error" role="alert">Security token invalid.`) {
		t.Error("form-level error missing")
	}
	if !strings.Contains(html, `value="Ally Perera"`) {
		t.Error("input not kept after guard failure")
	}
}

/*──────────────────────────── API ──────────────────────────────────────────*/

func TestAPI_Validate(t *testing.T) {
	srv, client, _ := newServer(t, 10*time.Millisecond)

	cases := []struct {
		name        string
		contentType string
		payload     string
		want        int
		wantKey     string
	}{
		{"valid", "application/json", validJSON, http.StatusOK, "application"},
		{"invalid", "application/json", `{"fullName":"Al"}`, http.StatusUnprocessableEntity, "errors"},
		{"malformed", "application/json", `{"fullName":`, http.StatusBadRequest, "error"},
		{"wrong type", "text/plain", validJSON, http.StatusUnsupportedMediaType, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := client.Post(srv.URL+"/api/account/validate", tc.contentType, strings.NewReader(tc.payload))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.want)
			}
			var out map[string]json.RawMessage
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatal(err)
			}
			if _, ok := out[tc.wantKey]; !ok {
				t.Errorf("response lacks %q: %v", tc.wantKey, out)
			}
		})
	}
}

func TestAPI_ValidateNormalizes(t *testing.T) {
	srv, client, _ := newServer(t, 10*time.Millisecond)

	resp, err := client.Post(srv.URL+"/api/account/validate", "application/json", strings.NewReader(validJSON))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out struct {
		Application map[string]any `json:"application"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if got := out.Application["dateOfBirth"]; got != "1990-05-17" {
		t.Errorf("dateOfBirth = %v", got)
	}
	if got := out.Application["termsAccepted"]; got != true {
		t.Errorf("termsAccepted = %v", got)
	}
}

func TestAPI_SubmitBusyThenIdle(t *testing.T) {
	srv, client, _ := newServer(t, 300*time.Millisecond)

	post := func() int {
		resp, err := client.Post(srv.URL+"/api/account", "application/json", strings.NewReader(validJSON))
		if err != nil {
			t.Fatal(err)
		}
		_ = body(t, resp)
		return resp.StatusCode
	}

	if got := post(); got != http.StatusAccepted {
		t.Fatalf("first submit = %d, want 202", got)
	}
	if got := post(); got != http.StatusConflict {
		t.Errorf("second submit = %d, want 409", got)
	}
	if n := waitIdle(t, client, srv.URL); n != "Account successfully opened!" {
		t.Errorf("notice = %q", n)
	}
	if got := post(); got != http.StatusAccepted {
		t.Errorf("submit after idle = %d, want 202", got)
	}
	waitIdle(t, client, srv.URL)
}

func TestAPI_SessionsAreIsolated(t *testing.T) {
	srv, client, _ := newServer(t, 300*time.Millisecond)

	resp, err := client.Post(srv.URL+"/api/account", "application/json", strings.NewReader(validJSON))
	if err != nil {
		t.Fatal(err)
	}
	_ = body(t, resp)

	other := &http.Client{}
	resp, err = other.Post(srv.URL+"/api/account", "application/json", strings.NewReader(validJSON))
	if err != nil {
		t.Fatal(err)
	}
	_ = body(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("other browser got %d, want 202", resp.StatusCode)
	}
	waitIdle(t, client, srv.URL)
}

func TestAPI_CookielessStatusCreatesNoSession(t *testing.T) {
	srv, _, c := newServer(t, 10*time.Millisecond)

	bare := &http.Client{}
	for i := 0; i < 1000; i++ {
		if s := status(t, bare, srv.URL); s["state"] != "idle" || s["notice"] != "" {
			t.Fatalf("status = %v", s)
		}
	}
	for i := 0; i < 10; i++ {
		resp, err := bare.Get(srv.URL + "/")
		if err != nil {
			t.Fatal(err)
		}
		_ = body(t, resp)
	}
	if n := c.sessions.Len(); n != 0 {
		t.Errorf("sessions = %d, want 0", n)
	}
}

func TestClose_WaitsForRunningSubmission(t *testing.T) {
	srv, client, c := newServer(t, 200*time.Millisecond)

	resp, err := client.Post(srv.URL+"/api/account", "application/json", strings.NewReader(validJSON))
	if err != nil {
		t.Fatal(err)
	}
	_ = body(t, resp)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit = %d, want 202", resp.StatusCode)
	}

	u, _ := url.Parse(srv.URL)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range client.Jar.Cookies(u) {
		req.AddCookie(ck)
	}
	sess, ok := c.sessions.Lookup(req)
	if !ok {
		t.Fatal("session not found after submit")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := sess.Controller.State(); st != submission.Idle {
		t.Errorf("state after Close = %v, want idle", st)
	}
	if n := sess.Controller.TakeNotice(); n != "Account successfully opened!" {
		t.Errorf("notice = %q", n)
	}
}

func TestAdultCeiling_LeapDay(t *testing.T) {
	c := &Component{now: func() time.Time { return time.Date(2028, 2, 29, 12, 0, 0, 0, time.UTC) }}
	if got := c.adultCeiling(); got != "2010-02-28" {
		t.Errorf("adultCeiling = %q, want 2010-02-28", got)
	}
}

func TestInit_RejectsMismatchedForm(t *testing.T) {
	fd := &form.FormDef{
		ID:     "account/bad",
		Fields: []form.FieldDef{{Name: "nickname", Type: "text"}},
	}
	if err := checkFields(fd); err == nil {
		t.Fatal("unknown field accepted")
	}

	fd.Fields = fd.Fields[:0]
	for _, n := range acct.FieldNames()[1:] {
		fd.Fields = append(fd.Fields, form.FieldDef{Name: n, Type: "text"})
	}
	if err := checkFields(fd); err == nil {
		t.Fatal("missing field accepted")
	}
}
