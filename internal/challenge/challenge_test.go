package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/tokenguard/internal/store/memory"
)

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := New(memory.New().Challenges(), WithClock(func() time.Time { return now }))

	txid, err := s.Create(ctx, "OATH0001", "please enter otp", map[string]any{"attempts": 1}, 2*time.Minute)
	require.NoError(t, err)
	assert.Len(t, txid, DefaultDigits)

	c, err := s.Get(ctx, txid)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "OATH0001", c.Serial)
	assert.Equal(t, 0, c.ReceivedCount)
	assert.False(t, c.OTPReceived)
	assert.False(t, c.OTPValid)
	assert.Equal(t, map[string]any{"attempts": float64(1)}, c.Decoded)
	assert.True(t, c.IsValid(now.Add(time.Minute)))
	assert.False(t, c.IsValid(now.Add(2*time.Minute)))
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := New(memory.New().Challenges())
	c, err := s.Get(context.Background(), "00000000000000000000")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestRecordResponseKeepsCounting(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New().Challenges())
	txid, err := s.Create(ctx, "S", "", nil, time.Minute)
	require.NoError(t, err)

	require.NoError(t, s.RecordResponse(ctx, txid, true, false))
	require.NoError(t, s.RecordResponse(ctx, txid, true, true))
	c, err := s.Get(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, 2, c.ReceivedCount)
	assert.True(t, c.OTPValid)

	// una respuesta mala posterior no des-valida el challenge
	require.NoError(t, s.RecordResponse(ctx, txid, true, false))
	c, err = s.Get(ctx, txid)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ReceivedCount)
	assert.True(t, c.OTPValid)
}

func TestTransactionIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New().Challenges(), WithDigits(12))
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		txid, err := s.Create(ctx, "S", "", nil, time.Minute)
		require.NoError(t, err)
		assert.Len(t, txid, 12)
		assert.False(t, seen[txid], "duplicate %s", txid)
		seen[txid] = true
	}
}

func TestDataEncoding(t *testing.T) {
	raw, err := EncodeData("plain text")
	require.NoError(t, err)
	assert.Equal(t, "plain text", raw)
	assert.Equal(t, "plain text", DecodeData(raw))

	raw, err = EncodeData([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, raw)
	assert.Equal(t, []any{"a", "b"}, DecodeData(raw))

	assert.Equal(t, "{broken", DecodeData("{broken"))
	assert.Nil(t, DecodeData(""))

	_, err = EncodeData(func() {})
	assert.Error(t, err)
}

func TestForSerialAndDeleteExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	s := New(memory.New().Challenges(), WithClock(func() time.Time { return now }))

	_, err := s.Create(ctx, "A", "", nil, -time.Second)
	require.NoError(t, err)
	_, err = s.Create(ctx, "A", "", "aux", time.Hour)
	require.NoError(t, err)

	list, err := s.ForSerial(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err = s.ForSerial(ctx, "A")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "aux", list[0].Decoded)
}
