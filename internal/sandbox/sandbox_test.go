package sandbox

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/IVANFROL/reklama-oleg/internal/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	opts.BcryptCost = bcrypt.MinCost
	s := New(opts)
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, u, token string, body interface{}, out interface{}) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, u, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, u, err)
	}
	defer resp.Body.Close()
	if out != nil {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func signUp(t *testing.T, base, username string) string {
	t.Helper()
	code := doJSON(t, http.MethodPost, base+"/register", "", models.RegisterRequest{
		Email: username + "@example.com", Username: username, Password: "secret1",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("register %s: status %d", username, code)
	}
	resp, err := http.PostForm(base+"/token", url.Values{"username": {username}, "password": {"secret1"}})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	defer resp.Body.Close()
	var tok models.Token
	json.NewDecoder(resp.Body).Decode(&tok)
	if tok.AccessToken == "" {
		t.Fatalf("token: status %d, empty token", resp.StatusCode)
	}
	return tok.AccessToken
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegisterLoginMe(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	token := signUp(t, ts.URL, "oleg")

	var me models.Identity
	if code := doJSON(t, http.MethodGet, ts.URL+"/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	if me.Username != "oleg" || me.Balance != 0 || !me.IsActive {
		t.Errorf("me: got %+v", me)
	}

	// Duplicate registration.
	code := doJSON(t, http.MethodPost, ts.URL+"/register", "", models.RegisterRequest{
		Email: "other@example.com", Username: "oleg", Password: "secret1",
	}, nil)
	if code != http.StatusConflict {
		t.Errorf("duplicate username: got %d, want 409", code)
	}

	// Wrong password.
	resp, _ := http.PostForm(ts.URL+"/token", url.Values{"username": {"oleg"}, "password": {"wrong"}})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d", resp.StatusCode)
	}

	// Missing / bad token.
	if code := doJSON(t, http.MethodGet, ts.URL+"/me", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("no token: got %d", code)
	}
	if code := doJSON(t, http.MethodGet, ts.URL+"/me", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("bad token: got %d", code)
	}
}

func TestRegisterFieldErrors(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	var body struct {
		Detail []fieldError `json:"detail"`
	}
	code := doJSON(t, http.MethodPost, ts.URL+"/register", "", models.RegisterRequest{
		Email: "nope", Username: "ab", Password: "1",
	}, &body)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d", code)
	}
	if len(body.Detail) != 3 {
		t.Errorf("detail: got %+v", body.Detail)
	}
}

func TestTokenExpires(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	_, ts := newTestServer(t, Options{Now: c.Now})
	token := signUp(t, ts.URL, "oleg")

	c.Advance(31 * time.Minute)
	if code := doJSON(t, http.MethodGet, ts.URL+"/me", token, nil, nil); code != http.StatusUnauthorized {
		t.Errorf("expired token: got %d", code)
	}
}

func TestViewAdOncePerDay(t *testing.T) {
	c := &clock{now: time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)}
	_, ts := newTestServer(t, Options{Now: c.Now, TokenTTL: 48 * time.Hour})
	token := signUp(t, ts.URL, "oleg")

	var view models.AdView
	if code := doJSON(t, http.MethodPost, ts.URL+"/ads/view", token, models.ViewAdRequest{AdID: 1}, &view); code != http.StatusOK {
		t.Fatalf("first view: %d", code)
	}
	if view.RewardEarned != 10 {
		t.Errorf("reward: got %v, want 10", view.RewardEarned)
	}
	if code := doJSON(t, http.MethodPost, ts.URL+"/ads/view", token, models.ViewAdRequest{AdID: 1}, nil); code != http.StatusConflict {
		t.Errorf("second view: got %d, want 409", code)
	}
	if code := doJSON(t, http.MethodPost, ts.URL+"/ads/view", token, models.ViewAdRequest{AdID: 99}, nil); code != http.StatusNotFound {
		t.Errorf("missing ad: got %d, want 404", code)
	}

	c.Advance(2 * time.Hour) // next UTC day
	if code := doJSON(t, http.MethodPost, ts.URL+"/ads/view", token, models.ViewAdRequest{AdID: 1}, nil); code != http.StatusOK {
		t.Errorf("next day view: got %d", code)
	}

	var bal models.Balance
	doJSON(t, http.MethodGet, ts.URL+"/balance", token, nil, &bal)
	if bal.Balance != 20 {
		t.Errorf("balance: got %v, want 20", bal.Balance)
	}
}

func TestCreateApplicationDebitsCost(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	token := signUp(t, ts.URL, "oleg")
	me, _ := s.Store().AccountByName("oleg")
	s.Store().SetBalance(me.ID, 40)

	draft := models.ApplicationDraft{Title: "Banner", Description: "Spring sale"}
	var errBody map[string]string
	if code := doJSON(t, http.MethodPost, ts.URL+"/applications", token, draft, &errBody); code != http.StatusPaymentRequired {
		t.Fatalf("insufficient: got %d", code)
	}
	if !strings.Contains(errBody["detail"], "Insufficient balance") {
		t.Errorf("detail: got %q", errBody["detail"])
	}

	s.Store().SetBalance(me.ID, 60)
	var app models.Application
	if code := doJSON(t, http.MethodPost, ts.URL+"/applications", token, draft, &app); code != http.StatusOK {
		t.Fatalf("create: got %d", code)
	}
	if app.Status != models.StatusPending || app.Cost != 50 {
		t.Errorf("app: got %+v", app)
	}
	var bal models.Balance
	doJSON(t, http.MethodGet, ts.URL+"/balance", token, nil, &bal)
	if bal.Balance != 10 {
		t.Errorf("balance: got %v, want 10", bal.Balance)
	}
}

func TestLegacyStatus(t *testing.T) {
	s, ts := newTestServer(t, Options{LegacyStatus: true})
	token := signUp(t, ts.URL, "oleg")

	doJSON(t, http.MethodPost, ts.URL+"/ads/view", token, models.ViewAdRequest{AdID: 2}, nil)
	if code := doJSON(t, http.MethodPost, ts.URL+"/ads/view", token, models.ViewAdRequest{AdID: 2}, nil); code != http.StatusBadRequest {
		t.Errorf("duplicate view: got %d, want 400", code)
	}

	me, _ := s.Store().AccountByName("oleg")
	s.Store().SetBalance(me.ID, 0)
	draft := models.ApplicationDraft{Title: "t", Description: "d"}
	if code := doJSON(t, http.MethodPost, ts.URL+"/applications", token, draft, nil); code != http.StatusBadRequest {
		t.Errorf("insufficient funds: got %d, want 400", code)
	}
}

func TestAdminReview(t *testing.T) {
	s, ts := newTestServer(t, Options{Admins: []string{"boss"}})
	user := signUp(t, ts.URL, "oleg")
	admin := signUp(t, ts.URL, "boss")

	me, _ := s.Store().AccountByName("oleg")
	s.Store().SetBalance(me.ID, 100)
	var app models.Application
	doJSON(t, http.MethodPost, ts.URL+"/applications", user, models.ApplicationDraft{Title: "t", Description: "d"}, &app)

	if code := doJSON(t, http.MethodGet, ts.URL+"/admin/applications", user, nil, nil); code != http.StatusForbidden {
		t.Errorf("non-admin list: got %d, want 403", code)
	}

	var all []models.Application
	if code := doJSON(t, http.MethodGet, ts.URL+"/admin/applications", admin, nil, &all); code != http.StatusOK || len(all) != 1 {
		t.Fatalf("admin list: got %d, %d apps", code, len(all))
	}

	u := ts.URL + "/admin/applications/" + jsonInt(app.ID)
	if code := doJSON(t, http.MethodPut, u, admin, models.StatusUpdate{Status: "archived"}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("bad status: got %d", code)
	}
	var reviewed models.Application
	if code := doJSON(t, http.MethodPut, u, admin, models.StatusUpdate{Status: models.StatusRejected}, &reviewed); code != http.StatusOK {
		t.Fatalf("reject: got %d", code)
	}
	if reviewed.Status != models.StatusRejected {
		t.Errorf("status: got %s", reviewed.Status)
	}
	if code := doJSON(t, http.MethodPut, u, admin, models.StatusUpdate{Status: models.StatusApproved}, nil); code != http.StatusConflict {
		t.Errorf("approve rejected: got %d, want 409", code)
	}
	if code := doJSON(t, http.MethodPut, ts.URL+"/admin/applications/999", admin, models.StatusUpdate{Status: models.StatusApproved}, nil); code != http.StatusNotFound {
		t.Errorf("missing: got %d", code)
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestUpload(t *testing.T) {
	_, ts := newTestServer(t, Options{MaxUploadBytes: 64})
	token := signUp(t, ts.URL, "oleg")

	post := func(contentType string, data []byte) (*http.Response, models.Upload) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="clip.mov"`)
		h.Set("Content-Type", contentType)
		part, _ := mw.CreatePart(h)
		part.Write(data)
		mw.Close()
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		defer resp.Body.Close()
		var up models.Upload
		json.NewDecoder(resp.Body).Decode(&up)
		return resp, up
	}

	resp, up := post("video/mov", []byte("tiny"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: got %d", resp.StatusCode)
	}
	if up.Type != models.MediaVideo || !strings.HasPrefix(up.URL, "/uploads/") || !strings.HasSuffix(up.Filename, ".mov") {
		t.Errorf("upload: got %+v", up)
	}
	got, err := http.Get(ts.URL + up.URL)
	if err != nil || got.StatusCode != http.StatusOK {
		t.Fatalf("fetch upload: %v %v", err, got)
	}
	got.Body.Close()

	if resp, _ := post("application/pdf", []byte("%PDF")); resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("pdf: got %d, want 415", resp.StatusCode)
	}
	if resp, _ := post("video/mp4", bytes.Repeat([]byte("x"), 65)); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("too large: got %d, want 413", resp.StatusCode)
	}
}
