package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CostinMirescu/sala-alternativa/internal/attendance"
	"github.com/CostinMirescu/sala-alternativa/internal/auth"
	"github.com/CostinMirescu/sala-alternativa/internal/store/storetest"
	"github.com/CostinMirescu/sala-alternativa/internal/token"
)

const (
	testSalt   = "api-salt"
	testKey    = "api-jwt-key"
	testIssuer = "sala-test"
)

var eet = time.FixedZone("+02:00", 2*60*60)

func at(h, m, s int) time.Time {
	return time.Date(2025, 9, 23, h, m, s, 0, eet)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixedCheck bool

func (f fixedCheck) Healthy(context.Context) bool { return bool(f) }

type env struct {
	router  *gin.Engine
	clock   *clock
	codec   *token.Codec
	teacher string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.New(t)
	storetest.AddSession(t, db, "S1", "9A", at(10, 0, 0), at(10, 50, 0))
	storetest.AddSession(t, db, "S2", "9B", at(10, 0, 0), at(10, 50, 0))
	for _, code := range []string{"1111", "2222"} {
		storetest.AddCode(t, db, "9A", attendance.HashCode(testSalt, "9A", code), code)
	}

	clk := &clock{t: at(10, 2, 0)}
	svc := attendance.NewService(attendance.NewRepository(db), attendance.Options{Salt: testSalt, Location: eet, Now: clk.Now})
	codec := token.New("qr-key", testIssuer, 90*time.Second, clk.Now)
	teachers := auth.NewTeachers(db)
	if _, err := teachers.Create(context.Background(), "dirig@school.ro", "parola", "9A"); err != nil {
		t.Fatalf("create teacher: %v", err)
	}
	tok, err := auth.Issue(auth.Identity{TeacherID: "t1", ClassID: "9A"}, testIssuer, testKey, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue teacher token: %v", err)
	}

	h := New(svc, codec, teachers, Config{
		JWTIssuer:     testIssuer,
		JWTSigningKey: testKey,
		AccessTTL:     time.Hour,
		PublicURL:     "https://sala.test",
	}, map[string]Checker{"db": fixedCheck(true)})
	r := gin.New()
	h.Register(r)
	return &env{router: r, clock: clk, codec: codec, teacher: tok.Token}
}

func (e *env) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *env) bearer() http.Header {
	return http.Header{"Authorization": {"Bearer " + e.teacher}}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (e *env) sessionToken(t *testing.T, path string) string {
	t.Helper()
	rec := e.do(t, http.MethodGet, path, nil, e.bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s: %d %s", path, rec.Code, rec.Body.String())
	}
	return decode(t, rec)["token"].(string)
}

func TestCheckInFlow(t *testing.T) {
	e := newEnv(t)
	tok := e.sessionToken(t, "/v1/sessions/S1/token")

	rec := e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkin: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["status"]; got != "prezent" {
		t.Errorf("status: got %v", got)
	}

	rec = e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "1111", "device_id": "dev-b"}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["reason"] != "duplicate-code" || body["message"] != "cod deja folosit în această oră" {
		t.Errorf("duplicate body: %v", body)
	}

	rec = e.do(t, http.MethodGet, "/v1/sessions/S1/me?code=1111", nil, nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "prezent" {
		t.Errorf("me: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodGet, "/v1/sessions/S1/me?code=2222", nil, nil)
	if rec.Code != http.StatusOK || decode(t, rec)["status"] != "neconfirmat" {
		t.Errorf("me unconfirmed: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckInTokenErrors(t *testing.T) {
	e := newEnv(t)
	start := e.sessionToken(t, "/v1/sessions/S1/token?phase=start")
	end := e.sessionToken(t, "/v1/sessions/S1/token?phase=end")

	rec := e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": end, "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["reason"] != "token-invalid" {
		t.Errorf("end token on checkin: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/v1/checkout", gin.H{"token": start, "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["reason"] != "token-invalid" {
		t.Errorf("start token on checkout: %d %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": "garbage", "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: %d", rec.Code)
	}

	e.clock.Set(at(10, 3, 31))
	rec = e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": start, "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusUnauthorized || decode(t, rec)["reason"] != "token-expired" {
		t.Errorf("expired token: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckInValidation(t *testing.T) {
	e := newEnv(t)
	tok := e.sessionToken(t, "/v1/sessions/S1/token")

	rec := e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "12", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short code: %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "1111"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no device: %d", rec.Code)
	}
	rec = e.do(t, http.MethodPost, "/v1/checkin", gin.H{"code": "1111"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no token: %d", rec.Code)
	}
}

func TestDeviceCookie(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/device", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("device: %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != deviceCookie || cookies[0].Value == "" {
		t.Fatalf("cookies: %v", cookies)
	}
	id := cookies[0].Value
	if decode(t, rec)["device_id"] != id {
		t.Errorf("body does not match cookie")
	}

	cookie := http.Header{"Cookie": {deviceCookie + "=" + id}}
	rec = e.do(t, http.MethodGet, "/v1/device", nil, cookie)
	if len(rec.Result().Cookies()) != 0 || decode(t, rec)["device_id"] != id {
		t.Errorf("existing cookie was replaced: %s", rec.Body.String())
	}

	tok := e.sessionToken(t, "/v1/sessions/S1/token")
	rec = e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "2222"}, cookie)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkin with cookie: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckOutFlow(t *testing.T) {
	e := newEnv(t)
	tok := e.sessionToken(t, "/v1/sessions/S1/token")
	if rec := e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "1111", "device_id": "dev-a"}, nil); rec.Code != http.StatusCreated {
		t.Fatalf("checkin: %d %s", rec.Code, rec.Body.String())
	}

	e.clock.Set(at(10, 48, 0))
	out := e.sessionToken(t, "/v1/sessions/S1/token")
	rec := e.do(t, http.MethodPost, "/v1/checkout", gin.H{"token": out, "code": "2222", "device_id": "dev-b"}, nil)
	if rec.Code != http.StatusForbidden || decode(t, rec)["reason"] != "no-checkin" {
		t.Errorf("checkout without checkin: %d %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodPost, "/v1/checkout", gin.H{"token": out, "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["status"] != "plecat" || body["checkin_status"] != "prezent" {
		t.Errorf("checkout body: %v", body)
	}

	rec = e.do(t, http.MethodPost, "/v1/checkout", gin.H{"token": out, "code": "1111", "device_id": "dev-a"}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second checkout: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSessionTokenDefaultsToPhase(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/sessions/S1/token", nil, e.bearer())
	body := decode(t, rec)
	if body["phase"] != "start" || !strings.HasPrefix(body["scan_url"].(string), "https://sala.test/scan?t=") {
		t.Errorf("start token: %v", body)
	}

	e.clock.Set(at(10, 46, 0))
	rec = e.do(t, http.MethodGet, "/v1/sessions/S1/token", nil, e.bearer())
	body = decode(t, rec)
	if body["phase"] != "end" || !strings.HasPrefix(body["scan_url"].(string), "https://sala.test/scan/out?t=") {
		t.Errorf("end token: %v", body)
	}
	claims, err := e.codec.Verify(body["token"].(string))
	if err != nil || claims.SessionID != "S1" {
		t.Errorf("issued token: %+v %v", claims, err)
	}

	rec = e.do(t, http.MethodGet, "/v1/sessions/S1/token?phase=middle", nil, e.bearer())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad phase: %d", rec.Code)
	}
}

func TestSessionTokenRequiresOwnClass(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodGet, "/v1/sessions/S1/token", nil, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/sessions/S2/token", nil, e.bearer()); rec.Code != http.StatusForbidden {
		t.Errorf("other class: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/sessions/nope/token", nil, e.bearer()); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: %d", rec.Code)
	}
}

func TestSessionQR(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodGet, "/v1/sessions/S1/qr.png", nil, e.bearer())
	if rec.Code != http.StatusOK {
		t.Fatalf("qr: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type: %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	rec := e.do(t, http.MethodPost, "/v1/teachers/login", gin.H{"email": "dirig@school.ro", "password": "parola"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["class_id"] != "9A" {
		t.Errorf("class: %v", body["class_id"])
	}
	e.teacher = body["access_token"].(string)
	if rec := e.do(t, http.MethodGet, "/v1/sessions/S1/token", nil, e.bearer()); rec.Code != http.StatusOK {
		t.Errorf("token with login jwt: %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/v1/teachers/login", gin.H{"email": "dirig@school.ro", "password": "x"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: %d", rec.Code)
	}
}

func TestStatusEndpoints(t *testing.T) {
	e := newEnv(t)
	tok := e.sessionToken(t, "/v1/sessions/S1/token")
	e.do(t, http.MethodPost, "/v1/checkin", gin.H{"token": tok, "code": "1111", "device_id": "dev-a"}, nil)

	rec := e.do(t, http.MethodGet, "/v1/sessions/S1/status", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var st attendance.SessionStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.PresentCount != 1 || st.Window.Mode != "active" || st.Frozen {
		t.Errorf("status: %+v", st)
	}

	rec = e.do(t, http.MethodGet, "/v1/classes/9A/current", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current: %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Session.ID != "S1" {
		t.Errorf("current session: %s", st.Session.ID)
	}

	if rec := e.do(t, http.MethodGet, "/v1/sessions/nope/status", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown session: %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/v1/classes/10Z/current", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown class: %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	if rec := e.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Errorf("healthy: %d", rec.Code)
	}

	r := gin.New()
	New(nil, nil, nil, Config{}, map[string]Checker{"db": fixedCheck(true), "redis": fixedCheck(false)}).Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded: %d", rec.Code)
	}
	if decode(t, rec)["redis"] != false {
		t.Errorf("redis flag: %s", rec.Body.String())
	}
}
