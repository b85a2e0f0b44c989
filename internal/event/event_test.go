package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/store/memory"
)

type fixture struct {
	conn     *memory.Conn
	cache    cache.Client
	registry *Registry
	ledgers  *audit.Factory
	pipeline *Pipeline
}

func newFixture(t *testing.T, d Deps) *fixture {
	t.Helper()
	f := &fixture{conn: memory.New(), cache: cache.NewMemory("")}
	if d.Cache == nil {
		d.Cache = f.cache
	}
	if d.Tokens == nil {
		d.Tokens = f.conn.Tokens()
	}
	f.registry = NewRegistry(d)
	ledgers, err := audit.NewFactory(audit.Options{Repo: f.conn.Audit(), ServerName: "node1"})
	require.NoError(t, err)
	f.ledgers = ledgers
	f.pipeline = NewPipeline(f.registry, ledgers)
	return f
}

func counterDef(id int64, position, name string) repository.EventDefinition {
	return repository.EventDefinition{
		ID: id, Name: name, Events: []string{"validate_check"}, HandlerModule: "Counter",
		Action: CounterIncrease, Options: map[string]string{"counter_name": name},
		Active: true, Position: position,
	}
}

func okBody(ctx context.Context, req *Request) (*Response, error) {
	return NewResponse(true, true, map[string]any{"serial": "HOTP0001", "message": "matching 1 tokens"}), nil
}

func TestRegistryResolvesKnownModules(t *testing.T) {
	r := NewRegistry(Deps{})
	assert.Len(t, r.Modules(), len(Kinds()))
	for _, k := range Kinds() {
		h := r.Get(k.String())
		require.NotNil(t, h, k.String())
		assert.Equal(t, k, h.Kind())
	}
	assert.Nil(t, r.Get("Federation"))
}

func TestConfigMatchingOrder(t *testing.T) {
	cfg := NewConfig([]repository.EventDefinition{
		{ID: 3, Events: []string{"validate_check"}, Active: true, Ordering: 1},
		{ID: 1, Events: []string{"validate_check", "auth"}, Active: true, Ordering: 5, Position: "post"},
		{ID: 2, Events: []string{"validate_check"}, Active: true, Ordering: 1},
		{ID: 4, Events: []string{"validate_check"}, Active: false},
		{ID: 5, Events: []string{"validate_check"}, Active: true, Position: "pre"},
	})
	var ids []int64
	for _, d := range cfg.Matching("validate_check", repository.PositionPost) {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []int64{2, 3, 1}, ids)
	assert.Len(t, cfg.Matching("validate_check", repository.PositionPre), 1)
	assert.Empty(t, cfg.Matching("token_init", repository.PositionPost))
}

func TestPipelineRunsPreBodyPost(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{
		counterDef(1, repository.PositionPre, "pre"),
		counterDef(2, repository.PositionPost, "post"),
	})
	ctx := context.Background()

	resp, err := f.pipeline.Wrap(ctx, cfg, "validate_check", &Request{}, okBody)
	require.NoError(t, err)
	assert.NotNil(t, resp)

	pre, err := ReadCounter(ctx, f.cache, "pre")
	require.NoError(t, err)
	post, err := ReadCounter(ctx, f.cache, "post")
	require.NoError(t, err)
	assert.EqualValues(t, 1, pre)
	assert.EqualValues(t, 1, post)
}

func TestPipelineSkipsPostWhenBodyFails(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{
		counterDef(1, repository.PositionPre, "pre"),
		counterDef(2, repository.PositionPost, "post"),
	})
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := f.pipeline.Wrap(ctx, cfg, "validate_check", &Request{}, func(ctx context.Context, req *Request) (*Response, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	pre, _ := ReadCounter(ctx, f.cache, "pre")
	post, _ := ReadCounter(ctx, f.cache, "post")
	assert.EqualValues(t, 1, pre)
	assert.EqualValues(t, 0, post)
}

func TestPipelineSkipsUnknownModule(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{
		{ID: 1, Name: "legacy", Events: []string{"validate_check"}, HandlerModule: "Federation", Action: "forward", Active: true},
		counterDef(2, repository.PositionPost, "post"),
	})
	_, err := f.pipeline.Wrap(context.Background(), cfg, "validate_check", &Request{}, okBody)
	require.NoError(t, err)
	post, _ := ReadCounter(context.Background(), f.cache, "post")
	assert.EqualValues(t, 1, post)
}

func TestPipelineWritesInvocationAudit(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{counterDef(1, repository.PositionPost, "post")})

	parent := f.ledgers.New()
	parent.Log(audit.Fields{audit.KeyAction: "POST /validate/check", audit.KeyUser: "alice", audit.KeyClient: "10.0.0.1"})
	ctx := audit.ToContext(context.Background(), parent)

	_, err := f.pipeline.Wrap(ctx, cfg, "validate_check", &Request{}, okBody)
	require.NoError(t, err)

	page, err := parent.Search(ctx, audit.SearchParams{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	e := page.Entries[0]
	assert.Equal(t, "POST-EVENT validate_check>>Counter:increase_counter", e.Action)
	assert.Equal(t, "alice", e.User)
	assert.Equal(t, "10.0.0.1", e.Client)
	assert.True(t, e.Success)

	// El registro del request sigue intacto.
	assert.Equal(t, "POST /validate/check", parent.Snapshot()[audit.KeyAction])
}

func TestPipelineHandlerErrorPropagates(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{{
		ID: 1, Name: "notify", Events: []string{"validate_check"}, HandlerModule: "UserNotification",
		Action: NotificationActionSendMail, Options: map[string]string{"emailaddress": "a@example.com"},
		Active: true, Position: repository.PositionPre,
	}})
	called := false
	_, err := f.pipeline.Wrap(context.Background(), cfg, "validate_check", &Request{}, func(ctx context.Context, req *Request) (*Response, error) {
		called = true
		return okBody(ctx, req)
	})
	assert.ErrorIs(t, err, errNoMailer)
	assert.False(t, called)

	n, err := f.conn.Audit().Count(context.Background(), repository.AuditFilter{Success: boolPtr(false)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestResponseManglerRewritesResponse(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{
		{ID: 1, Name: "hide", Events: []string{"validate_check"}, HandlerModule: "ResponseMangler", Action: MangleDelete,
			Options: map[string]string{"JSON pointer": "/detail/message"}, Active: true},
		{ID: 2, Name: "set", Events: []string{"validate_check"}, HandlerModule: "ResponseMangler", Action: MangleSet,
			Options: map[string]string{"JSON pointer": "/detail/attempts", "type": "integer", "value": "3"}, Active: true},
	})
	resp, err := f.pipeline.Wrap(context.Background(), cfg, "validate_check", &Request{}, okBody)
	require.NoError(t, err)
	detail := resp.Body["detail"].(map[string]any)
	assert.NotContains(t, detail, "message")
	assert.Equal(t, 3, detail["attempts"])
	assert.Equal(t, "HOTP0001", detail["serial"])
}

func TestRequestManglerRunsBeforeBody(t *testing.T) {
	f := newFixture(t, Deps{})
	cfg := NewConfig([]repository.EventDefinition{{
		ID: 1, Name: "strip-domain", Events: []string{"validate_check"}, HandlerModule: "RequestMangler", Action: MangleSet,
		Options: map[string]string{"parameter": "user", "value": "{1}", "match_parameter": "user", "match_pattern": `^(\w+)@.*$`},
		Active:  true, Position: repository.PositionPre,
	}})
	var seen string
	_, err := f.pipeline.Wrap(context.Background(), cfg, "validate_check",
		&Request{Params: map[string]string{"user": "alice@example.com"}},
		func(ctx context.Context, req *Request) (*Response, error) {
			seen = req.Param("user")
			return okBody(ctx, req)
		})
	require.NoError(t, err)
	assert.Equal(t, "alice", seen)
}

func TestConditions(t *testing.T) {
	resp := NewResponse(true, false, map[string]any{"serial": "HOTP0001", "type": "hotp"})
	req := &Request{ClientIP: "10.1.2.3", Realm: "corp", Admin: ""}
	cases := []struct {
		cond map[string]string
		want bool
	}{
		{map[string]string{CondResultValue: "False"}, true},
		{map[string]string{CondResultValue: "True"}, false},
		{map[string]string{CondResultStatus: "true"}, true},
		{map[string]string{CondSerial: "^HOTP"}, true},
		{map[string]string{CondSerial: "^TOTP"}, false},
		{map[string]string{CondSerial: "("}, false},
		{map[string]string{CondTokenType: "totp, HOTP"}, true},
		{map[string]string{CondRealm: "corp,other"}, true},
		{map[string]string{CondLoggedInUser: "user"}, true},
		{map[string]string{CondLoggedInUser: "admin"}, false},
		{map[string]string{CondClientIP: "10.0.0.0/8"}, true},
		{map[string]string{CondClientIP: "192.168.0.0/16, 10.1.2.3"}, true},
		{map[string]string{CondClientIP: "192.168.0.0/16"}, false},
		{map[string]string{CondClientIP: "10.0.0.0/8", CondSerial: "^TOTP"}, false},
		{map[string]string{"unknown": "x"}, false},
	}
	for _, tc := range cases {
		inv := &Invocation{Definition: repository.EventDefinition{Conditions: tc.cond}, Request: req, Response: resp}
		assert.Equal(t, tc.want, conditional{}.CheckCondition(context.Background(), inv), "%v", tc.cond)
	}

	// En PRE no hay respuesta: result_value no se cumple.
	inv := &Invocation{Definition: repository.EventDefinition{Conditions: map[string]string{CondResultValue: "True"}}, Request: req}
	assert.False(t, conditional{}.CheckCondition(context.Background(), inv))
}

func TestCounterDecreaseFloorsAtZero(t *testing.T) {
	f := newFixture(t, Deps{})
	h := f.registry.Get("Counter")
	ctx := context.Background()
	inv := &Invocation{Definition: repository.EventDefinition{Options: map[string]string{"counter_name": "fails"}}}

	ok, err := h.Do(ctx, CounterDecrease, inv)
	require.NoError(t, err)
	assert.True(t, ok)
	v, _ := ReadCounter(ctx, f.cache, "fails")
	assert.EqualValues(t, 0, v)

	inv.Definition.Options["allow_negative_values"] = "true"
	_, err = h.Do(ctx, CounterDecrease, inv)
	require.NoError(t, err)
	v, _ = ReadCounter(ctx, f.cache, "fails")
	assert.EqualValues(t, -1, v)

	_, err = h.Do(ctx, CounterReset, inv)
	require.NoError(t, err)
	v, _ = ReadCounter(ctx, f.cache, "fails")
	assert.EqualValues(t, 0, v)
}

func TestTokenHandlerDisablesToken(t *testing.T) {
	f := newFixture(t, Deps{})
	ctx := context.Background()
	require.NoError(t, f.conn.Tokens().Create(ctx, &repository.Token{Serial: "HOTP0001", Type: "hotp", Active: true}))

	h := f.registry.Get("Token")
	inv := &Invocation{Request: &Request{}, Response: NewResponse(true, false, map[string]any{"serial": "HOTP0001"})}
	ok, err := h.Do(ctx, TokenActionDisable, inv)
	require.NoError(t, err)
	assert.True(t, ok)
	tok, err := f.conn.Tokens().Get(ctx, "HOTP0001")
	require.NoError(t, err)
	assert.False(t, tok.Active)

	inv.Definition.Options = map[string]string{"key": "last_event", "value": "{event}:{serial}"}
	inv.Event = "validate_check"
	ok, err = h.Do(ctx, TokenActionSetTokenInfo, inv)
	require.NoError(t, err)
	assert.True(t, ok)
	tok, err = f.conn.Tokens().Get(ctx, "HOTP0001")
	require.NoError(t, err)
	assert.Equal(t, "validate_check:HOTP0001", tok.InfoValue("last_event"))

	ok, err = h.Do(ctx, TokenActionDisable, &Invocation{Request: &Request{Serial: "NOPE"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to+"|"+subject+"|"+textBody)
	return nil
}

func TestNotificationHandlerRendersTags(t *testing.T) {
	mailer := &fakeMailer{}
	f := newFixture(t, Deps{Mailer: mailer})
	h := f.registry.Get("UserNotification")
	inv := &Invocation{
		Event:      "validate_check",
		Definition: repository.EventDefinition{Options: map[string]string{"emailaddress": "{user}@example.com", "subject": "Token {{.serial}}", "body": "hi {{.user}}"}},
		Request:    &Request{User: "alice", Serial: "HOTP0001"},
	}
	ok, err := h.Do(context.Background(), NotificationActionSendMail, inv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"alice@example.com|Token HOTP0001|hi alice"}, mailer.sent)
}

func TestWebHookHandler(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		if got["serial"] == "FAIL" {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	f := newFixture(t, Deps{HTTPClient: srv.Client()})
	h := f.registry.Get("WebHook")
	inv := &Invocation{
		Event:      "validate_check",
		Definition: repository.EventDefinition{Options: map[string]string{"URL": srv.URL}},
		Request:    &Request{Serial: "HOTP0001", User: "alice"},
	}
	ok, err := h.Do(context.Background(), WebHookActionPost, inv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "HOTP0001", got["serial"])
	assert.Equal(t, "alice", got["user"])

	inv.Request.Serial = "FAIL"
	ok, err = h.Do(context.Background(), WebHookActionPost, inv)
	require.NoError(t, err)
	assert.False(t, ok)

	inv.Definition.Options["URL"] = "ftp://example.com"
	_, err = h.Do(context.Background(), WebHookActionPost, inv)
	assert.Error(t, err)
}

func TestScriptHandler(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	script := "#!/bin/sh\necho \"$@\" > " + out + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notify.sh"), []byte(script), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fail.sh"), []byte("#!/bin/sh\nexit 3\n"), 0o755))

	f := newFixture(t, Deps{ScriptDir: dir})
	h := f.registry.Get("Script")
	assert.Contains(t, h.Actions(), "notify.sh")

	inv := &Invocation{Request: &Request{Serial: "HOTP0001", User: "alice"}, Definition: repository.EventDefinition{Options: map[string]string{}}}
	ok, err := h.Do(context.Background(), "notify.sh", inv)
	require.NoError(t, err)
	assert.True(t, ok)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "--serial HOTP0001")

	ok, err = h.Do(context.Background(), "fail.sh", inv)
	require.NoError(t, err)
	assert.False(t, ok)

	inv.Definition.Options["raise_error"] = "true"
	_, err = h.Do(context.Background(), "fail.sh", inv)
	assert.Error(t, err)

	_, err = h.Do(context.Background(), "../etc/passwd", inv)
	assert.Error(t, err)
}

func TestManagerValidatesDefinitions(t *testing.T) {
	f := newFixture(t, Deps{})
	loader := NewLoader(f.conn.Events(), f.cache, 60e9)
	m := NewManager(f.conn.Events(), f.registry, loader)
	ctx := context.Background()

	def := counterDef(0, "", "hits")
	id, err := m.Save(ctx, &def)
	require.NoError(t, err)
	assert.Equal(t, repository.PositionPost, def.Position)

	cfg, err := loader.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, cfg.Events(), 1)

	// Invalida la foto cacheada.
	require.NoError(t, m.Disable(ctx, id))
	cfg, err = loader.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, cfg.Matching("validate_check", repository.PositionPost))

	bad := []repository.EventDefinition{
		{Name: "x", Events: []string{"e"}, HandlerModule: "Counter", Action: CounterIncrease, Position: "middle"},
		{Name: "x", Events: []string{"e"}, HandlerModule: "Nope", Action: "a"},
		{Name: "x", Events: []string{"e"}, HandlerModule: "Counter", Action: "explode"},
		{Name: "x", HandlerModule: "Counter", Action: CounterIncrease},
		{Name: "x", Events: []string{"e"}, HandlerModule: "Counter", Action: CounterIncrease, Conditions: map[string]string{"moon": "full"}},
	}
	for _, d := range bad {
		_, err := m.Save(ctx, &d)
		assert.ErrorIs(t, err, repository.ErrInvalidInput)
	}
}

func boolPtr(b bool) *bool { return &b }
