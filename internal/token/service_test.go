package token

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/challenge"
	"github.com/dropDatabas3/tokenguard/internal/domain/repository"
	"github.com/dropDatabas3/tokenguard/internal/otp"
	"github.com/dropDatabas3/tokenguard/internal/security/secretbox"
	"github.com/dropDatabas3/tokenguard/internal/store/memory"
)

var rfcSecret = []byte("12345678901234567890")

type fixture struct {
	conn  *memory.Conn
	svc   *Service
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := secretbox.GenerateKey()
	require.NoError(t, err)
	box, err := secretbox.New(key)
	require.NoError(t, err)

	f := &fixture{conn: memory.New(), clock: time.Unix(59, 0).UTC()}
	now := func() time.Time { return f.clock }
	f.svc = NewService(f.conn.Tokens(), challenge.New(f.conn.Challenges(), challenge.WithClock(now)), box, Options{
		MaxFail:           3,
		ChallengeValidity: time.Minute,
		Now:               now,
	})
	return f
}

func (f *fixture) check(t *testing.T, serial, pass string) *CheckResult {
	t.Helper()
	res, err := f.svc.Check(context.Background(), CheckRequest{Serial: serial, Pass: pass})
	require.NoError(t, err)
	return res
}

func TestHOTPCheckAdvancesCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, EnrollRequest{Serial: "OATH1", Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)

	res := f.check(t, "OATH1", "755224")
	assert.True(t, res.Value)
	assert.Equal(t, otp.Match, res.Outcome)

	tok, err := f.conn.Tokens().Get(ctx, "OATH1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, tok.Count)

	// Replay del mismo código.
	res = f.check(t, "OATH1", "755224")
	assert.False(t, res.Value)
	assert.Equal(t, MessageFailed, res.Message)

	// Dentro de la ventana (contador 5).
	res = f.check(t, "OATH1", "254676")
	assert.True(t, res.Value)
	tok, err = f.conn.Tokens().Get(ctx, "OATH1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, tok.Count)
	assert.Zero(t, tok.FailCount)
}

func TestFailCounterLocksToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{Serial: "OATH1", Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.False(t, f.check(t, "OATH1", "000000").Value)
	}
	res := f.check(t, "OATH1", "755224")
	assert.False(t, res.Value)
	assert.Equal(t, "failcounter exceeded", res.Detail)
	assert.Equal(t, MessageFailed, res.Message)
}

func TestDisabledAndUnknownToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, EnrollRequest{Serial: "OATH1", Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)
	require.NoError(t, f.conn.Tokens().SetActive(ctx, "OATH1", false))

	res := f.check(t, "OATH1", "755224")
	assert.False(t, res.Value)
	assert.Equal(t, "token disabled", res.Detail)

	res = f.check(t, "NOPE", "755224")
	assert.False(t, res.Value)
	assert.Equal(t, MessageFailed, res.Message)

	_, err = f.svc.TriggerChallenge(ctx, "NOPE", nil)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = f.svc.TriggerChallenge(ctx, "OATH1", nil)
	assert.ErrorIs(t, err, ErrTokenDisabled)
}

func TestTOTPCheckRejectsReplay(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{
		Serial: "TOTP1", Type: otp.TypeTOTP, Secret: rfcSecret, OTPLen: 8, TimeStep: 30,
	})
	require.NoError(t, err)

	assert.True(t, f.check(t, "TOTP1", "94287082").Value)
	assert.False(t, f.check(t, "TOTP1", "94287082").Value)
}

func TestYubikeyCheckPinsUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := []byte("0123456789abcdef")
	uid := []byte{1, 2, 3, 4, 5, 6}
	_, err := f.svc.Enroll(ctx, EnrollRequest{Serial: "UBAM1", Type: otp.TypeYubikey, Secret: key})
	require.NoError(t, err)

	pass, err := otp.EncodeYubikey(key, "cccccccb", uid, 3, 1, 100, 7)
	require.NoError(t, err)
	res := f.check(t, "UBAM1", pass)
	require.True(t, res.Value)

	tok, err := f.conn.Tokens().Get(ctx, "UBAM1")
	require.NoError(t, err)
	assert.Equal(t, "010203040506", tok.InfoValue(InfoYubikeyUID))
	assert.Equal(t, "cccccccb", tok.InfoValue(InfoYubikeyPrefix))

	assert.False(t, f.check(t, "UBAM1", pass).Value)

	next, err := otp.EncodeYubikey(key, "cccccccb", uid, 3, 2, 120, 9)
	require.NoError(t, err)
	assert.True(t, f.check(t, "UBAM1", next).Value)

	other, err := otp.EncodeYubikey(key, "cccccccb", []byte{9, 9, 9, 9, 9, 9}, 4, 0, 130, 1)
	require.NoError(t, err)
	res = f.check(t, "UBAM1", other)
	assert.False(t, res.Value)
	assert.Equal(t, otp.WrongToken, res.Outcome)
	assert.Equal(t, MessageFailed, res.Message)
}

func TestChallengeResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, EnrollRequest{Serial: "OATH1", Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)

	txid, err := f.svc.TriggerChallenge(ctx, "OATH1", map[string]any{"client": "vpn"})
	require.NoError(t, err)
	assert.Len(t, txid, challenge.DefaultDigits)

	res, err := f.svc.Check(ctx, CheckRequest{Serial: "OATH1", Pass: "755224", TransactionID: txid})
	require.NoError(t, err)
	assert.True(t, res.Value)

	ch, err := f.conn.Challenges().Get(ctx, txid)
	require.NoError(t, err)
	assert.True(t, ch.OTPReceived)
	assert.True(t, ch.OTPValid)
	assert.Equal(t, 1, ch.ReceivedCount)

	// Vencido.
	txid, err = f.svc.TriggerChallenge(ctx, "OATH1", nil)
	require.NoError(t, err)
	f.clock = f.clock.Add(2 * time.Minute)
	res, err = f.svc.Check(ctx, CheckRequest{Serial: "OATH1", Pass: "287082", TransactionID: txid})
	require.NoError(t, err)
	assert.False(t, res.Value)
	assert.Equal(t, "challenge unknown or expired", res.Detail)
}

func TestAnsweredChallengeIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Enroll(ctx, EnrollRequest{Serial: "OATH1", Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)

	txid, err := f.svc.TriggerChallenge(ctx, "OATH1", nil)
	require.NoError(t, err)
	res, err := f.svc.Check(ctx, CheckRequest{Serial: "OATH1", Pass: "755224", TransactionID: txid})
	require.NoError(t, err)
	require.True(t, res.Value)

	// Respuesta mala sobre el mismo txid: rechazada y el challenge sigue válido.
	res, err = f.svc.Check(ctx, CheckRequest{Serial: "OATH1", Pass: "000000", TransactionID: txid})
	require.NoError(t, err)
	assert.False(t, res.Value)
	assert.Equal(t, "challenge already answered", res.Detail)

	// El siguiente código correcto tampoco vale con ese txid.
	res, err = f.svc.Check(ctx, CheckRequest{Serial: "OATH1", Pass: "287082", TransactionID: txid})
	require.NoError(t, err)
	assert.False(t, res.Value)
	assert.Equal(t, "challenge already answered", res.Detail)

	ch, err := f.conn.Challenges().Get(ctx, txid)
	require.NoError(t, err)
	assert.True(t, ch.OTPValid)
	assert.Equal(t, 1, ch.ReceivedCount)

	tok, err := f.conn.Tokens().Get(ctx, "OATH1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, tok.Count)
}

func TestCheckWritesAuditFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Enroll(context.Background(), EnrollRequest{Serial: "OATH1", Type: otp.TypeHOTP, Secret: rfcSecret})
	require.NoError(t, err)

	fac, err := audit.NewFactory(audit.Options{Modules: []string{audit.ModuleLogger}})
	require.NoError(t, err)
	l := fac.New()
	ctx := audit.ToContext(context.Background(), l)

	_, err = f.svc.Check(ctx, CheckRequest{Serial: "OATH1", Pass: "111111"})
	require.NoError(t, err)
	snap := l.Snapshot()
	assert.Equal(t, "OATH1", snap[audit.KeySerial])
	assert.Equal(t, false, snap[audit.KeySuccess])
	assert.Equal(t, "otp check no_match", snap[audit.KeyInfo])
	assert.Equal(t, "code -1", snap[audit.KeyActionDetail])
}

func TestEnrollGeneratesSerialAndSecret(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Enroll(context.Background(), EnrollRequest{Type: otp.TypeTOTP, Owner: "alice"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Serial, "TOTP"))
	assert.Len(t, res.Secret, 20)
	assert.True(t, strings.HasPrefix(res.URL, "otpauth://totp/"))

	tok, err := f.conn.Tokens().Get(context.Background(), res.Serial)
	require.NoError(t, err)
	assert.NotContains(t, tok.SecretEnc, string(res.Secret))
	assert.Equal(t, "30", tok.InfoValue(InfoTimeStep))

	_, err = f.svc.Enroll(context.Background(), EnrollRequest{Type: "sms"})
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEnrollRejectsMalformedSerialAndRealm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enroll(ctx, EnrollRequest{Serial: "bad serial", Type: otp.TypeHOTP})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = f.svc.Enroll(ctx, EnrollRequest{Type: otp.TypeHOTP, Realm: "Corp Realm"})
	assert.ErrorIs(t, err, repository.ErrInvalidInput)

	_, err = f.svc.Enroll(ctx, EnrollRequest{Serial: "OATH-lab.1", Type: otp.TypeHOTP, Realm: "corp"})
	assert.NoError(t, err)
}
