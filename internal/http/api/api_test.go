package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/challenge"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/jwt"
	"github.com/dropDatabas3/tokenguard/internal/otp"
	"github.com/dropDatabas3/tokenguard/internal/rate"
	"github.com/dropDatabas3/tokenguard/internal/scheduler"
	"github.com/dropDatabas3/tokenguard/internal/security/secretbox"
	"github.com/dropDatabas3/tokenguard/internal/store/memory"
	"github.com/dropDatabas3/tokenguard/internal/token"
)

var rfcSecret = []byte("12345678901234567890")

type fixture struct {
	conn    *memory.Conn
	cache   cache.Client
	tokens  *token.Service
	issuer  *jwt.Issuer
	handler http.Handler
}

func newFixture(t *testing.T, mod func(*Deps)) *fixture {
	t.Helper()
	conn := memory.New()
	c := cache.NewMemory("")

	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(key)
	require.NoError(t, err)

	challenges := challenge.New(conn.Challenges())
	tokens := token.NewService(conn.Tokens(), challenges, box, token.Options{})
	ledgers, err := audit.NewFactory(audit.Options{Repo: conn.Audit(), ServerName: "node1"})
	require.NoError(t, err)

	registry := event.NewRegistry(event.Deps{Tokens: conn.Tokens(), Cache: c})
	loader := event.NewLoader(conn.Events(), c, time.Minute)
	mods := scheduler.NewModules(scheduler.ModuleDeps{
		Challenges: challenges, Audit: ledgers, Tokens: conn.Tokens(), Cache: c,
	})
	sched := scheduler.New(conn.PeriodicTasks(), mods)
	issuer := jwt.NewIssuer("tokenguard", []byte("test-secret"))

	d := Deps{
		Tokens:       tokens,
		Ledgers:      ledgers,
		Pipeline:     event.NewPipeline(registry, ledgers),
		Events:       loader,
		Manager:      event.NewManager(conn.Events(), registry, loader),
		Handlers:     registry,
		Scheduler:    sched,
		Runner:       scheduler.NewRunner(sched, mods),
		Tasks:        mods,
		Node:         "node1",
		Issuer:       issuer,
		EnforceAdmin: true,
		Ping:         conn.Ping,
		Version:      "test",
	}
	if mod != nil {
		mod(&d)
	}
	return &fixture{conn: conn, cache: c, tokens: tokens, issuer: issuer, handler: NewRouter(d)}
}

func (f *fixture) bearer(t *testing.T, sub, role string) string {
	t.Helper()
	tok, _, err := f.issuer.Issue(sub, role, "", time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

type result struct {
	Result struct {
		Status bool            `json:"status"`
		Value  json.RawMessage `json:"value"`
		Error  *struct {
			Code string `json:"code"`
		} `json:"error"`
	} `json:"result"`
	Detail map[string]any `json:"detail"`
}

func (f *fixture) do(t *testing.T, method, path, auth, body string) (*httptest.ResponseRecorder, result) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var res result
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec, res
}

func (f *fixture) enrollHOTP(t *testing.T, serial string) {
	t.Helper()
	_, err := f.tokens.Enroll(context.Background(), token.EnrollRequest{Serial: serial, Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)
}

func TestValidateCheck(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollHOTP(t, "OATH1")

	rec, res := f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"755224"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Result.Status)
	assert.JSONEq(t, "true", string(res.Result.Value))
	assert.Equal(t, "hotp", res.Detail["type"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, res = f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"755224"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, res.Result.Status)
	assert.JSONEq(t, "false", string(res.Result.Value))
	assert.Equal(t, token.MessageFailed, res.Detail["message"])
}

func TestValidateCheckFormEncoded(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollHOTP(t, "OATH1")

	req := httptest.NewRequest(http.MethodPost, "/validate/check", strings.NewReader("serial=OATH1&pass=755224"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"value":true`)
}

func TestValidateCheckMissingParams(t *testing.T) {
	f := newFixture(t, nil)
	rec, res := f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, res.Result.Error)
	assert.Equal(t, "MISSING_FIELDS", res.Result.Error.Code)
}

func TestTriggerChallengeThenAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollHOTP(t, "OATH1")

	rec, res := f.do(t, http.MethodPost, "/validate/triggerchallenge", "", `{"serial":"OATH1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	txid, _ := res.Detail["transaction_id"].(string)
	require.NotEmpty(t, txid)

	rec, res = f.do(t, http.MethodPost, "/validate/check", "",
		`{"serial":"OATH1","pass":"755224","transaction_id":"`+txid+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "true", string(res.Result.Value))

	rec, _ = f.do(t, http.MethodPost, "/validate/triggerchallenge", "", `{"serial":"NOPE"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostEventCountsFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollHOTP(t, "OATH1")
	admin := f.bearer(t, "alice", jwt.RoleAdmin)

	rec, _ := f.do(t, http.MethodPost, "/event/", admin, `{
		"name": "count-fails", "event": ["validate_check"], "handlermodule": "Counter",
		"action": "increase_counter", "options": {"counter_name": "fails"},
		"conditions": {"result_value": "false"}, "active": true, "position": "post"
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"000000"}`)
	f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"755224"}`)

	n, err := event.ReadCounter(context.Background(), f.cache, "fails")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newFixture(t, nil)

	rec, _ := f.do(t, http.MethodGet, "/event/handlermodules", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/event/handlermodules", f.bearer(t, "bob", jwt.RoleUser), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/event/handlermodules", "Bearer garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, res := f.do(t, http.MethodGet, "/event/handlermodules", f.bearer(t, "alice", jwt.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var modules []string
	require.NoError(t, json.Unmarshal(res.Result.Value, &modules))
	assert.Contains(t, modules, "Counter")
}

func TestAdminNotEnforced(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.EnforceAdmin = false })
	rec, _ := f.do(t, http.MethodGet, "/periodictask/taskmodules", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditSearchAfterValidate(t *testing.T) {
	f := newFixture(t, nil)
	f.enrollHOTP(t, "OATH1")
	admin := f.bearer(t, "alice", jwt.RoleAdmin)

	f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"755224"}`)
	f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"111111"}`)

	rec, res := f.do(t, http.MethodGet, "/audit/?serial=OATH1&action=POST+/validate*&sortorder=asc", admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page struct {
		Count     int64            `json:"count"`
		AuditData []map[string]any `json:"auditdata"`
	}
	require.NoError(t, json.Unmarshal(res.Result.Value, &page))
	require.EqualValues(t, 2, page.Count)
	assert.Equal(t, true, page.AuditData[0]["success"])
	assert.Equal(t, false, page.AuditData[1]["success"])
	assert.Equal(t, "hotp", page.AuditData[0]["token_type"])
	assert.Equal(t, "POST /validate/check", page.AuditData[0]["action"])

	rec, _ = f.do(t, http.MethodGet, "/audit/?bogus=1", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/audit/export.csv?serial=OATH1", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "number,date,"))
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestAuditRecordsAdministrator(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.bearer(t, "alice", jwt.RoleAdmin)

	f.do(t, http.MethodGet, "/event/", admin, "")
	// la acción usa el patrón de chi, que no lleva la barra final del subrouter
	rec, res := f.do(t, http.MethodGet, "/audit/?action=GET+/event", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		AuditData []map[string]any `json:"auditdata"`
	}
	require.NoError(t, json.Unmarshal(res.Result.Value, &page))
	require.Len(t, page.AuditData, 1)
	assert.Equal(t, "GET /event", page.AuditData[0]["action"])
	assert.Equal(t, "alice", page.AuditData[0]["administrator"])
	assert.Equal(t, true, page.AuditData[0]["success"])
}

func TestEventCRUD(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.bearer(t, "alice", jwt.RoleAdmin)

	rec, _ := f.do(t, http.MethodPost, "/event/", admin, `{"name":"x","event":["validate_check"],"handlermodule":"Nope","action":"a"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res := f.do(t, http.MethodPost, "/event/", admin, `{"name":"log","event":["validate_check"],"handlermodule":"Logging","action":"logging","active":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var id int64
	require.NoError(t, json.Unmarshal(res.Result.Value, &id))

	rec, _ = f.do(t, http.MethodPost, "/event/disable/"+itoa(id), admin, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, res = f.do(t, http.MethodGet, "/event/"+itoa(id), admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got eventDTO
	require.NoError(t, json.Unmarshal(res.Result.Value, &got))
	assert.False(t, got.Active)
	assert.Equal(t, "post", got.Position)

	rec, _ = f.do(t, http.MethodDelete, "/event/"+itoa(id), admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/event/"+itoa(id), admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/event/abc", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPeriodicTaskRoutes(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.bearer(t, "alice", jwt.RoleAdmin)

	rec, _ := f.do(t, http.MethodPost, "/periodictask/", admin, `{"name":"bad","interval":"every two days","nodes":["node1"],"taskmodule":"simple_stats"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, res := f.do(t, http.MethodPost, "/periodictask/", admin, `{"name":"stats","interval":"*/5 * * * *","nodes":["node1"],"taskmodule":"simple_stats","active":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var id int64
	require.NoError(t, json.Unmarshal(res.Result.Value, &id))

	rec, res = f.do(t, http.MethodGet, "/periodictask/", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []taskDTO
	require.NoError(t, json.Unmarshal(res.Result.Value, &tasks))
	require.Len(t, tasks, 1)
	assert.Contains(t, tasks[0].LastRuns, "node1")
	assert.Contains(t, tasks[0].NextRuns, "node1")

	rec, _ = f.do(t, http.MethodPost, "/periodictask/run/"+itoa(id), admin, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, _ = f.do(t, http.MethodPost, "/periodictask/disable/"+itoa(id), admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, res = f.do(t, http.MethodGet, "/periodictask/"+itoa(id), admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var task taskDTO
	require.NoError(t, json.Unmarshal(res.Result.Value, &task))
	assert.False(t, task.Active)

	rec, res = f.do(t, http.MethodGet, "/periodictask/options/audit_rotate", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(res.Result.Value), "age")
}

func TestTokenInit(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.bearer(t, "alice", jwt.RoleAdmin)

	rec, res := f.do(t, http.MethodPost, "/token/init", admin, `{"type":"totp","serial":"TOTP1","otplen":8}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "TOTP1", res.Detail["serial"])
	assert.Contains(t, res.Detail["googleurl"], "otpauth://totp/")
	assert.NotEmpty(t, res.Detail["otpkey"])

	rec, res = f.do(t, http.MethodGet, "/token/TOTP1", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tok tokenDTO
	require.NoError(t, json.Unmarshal(res.Result.Value, &tok))
	assert.Equal(t, "totp", tok.Type)
	assert.Equal(t, 8, tok.OTPLen)

	rec, _ = f.do(t, http.MethodPost, "/token/init", admin, `{"type":"sms"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitValidate(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Limiter = rate.NewMemoryLimiter(1, time.Hour) })
	f.enrollHOTP(t, "OATH1")

	rec, _ := f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"000000"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/validate/check", "", `{"serial":"OATH1","pass":"000000"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestHealthzAndNotFound(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec, res := f.do(t, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, res.Result.Error)
	assert.Equal(t, "ROUTE_NOT_FOUND", res.Result.Error.Code)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
