package dispatch

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/unigate/backend/internal/ingress"
	"github.com/unigate/backend/internal/observability"
)

func TestDigestRecordsPacket(t *testing.T) {
	var logs bytes.Buffer
	logger, err := observability.NewLogger("unigate", "test", &logs).WithLevel("debug")
	require.NoError(t, err)

	var got []Record
	d := NewDigest(logger, func(r Record) { got = append(got, r) })

	payload := []byte("hello ingress")
	require.NoError(t, d.Dispatch(context.Background(), payload, nil, ingress.ConnID(7)))

	require.Len(t, got, 1)
	rec := got[0]
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, ingress.ConnID(7), rec.ConnID)
	assert.Equal(t, len(payload), rec.Size)
	assert.Equal(t, blake3.Sum256(payload), rec.Digest)
	assert.Len(t, rec.DigestHex(), 64)

	assert.Contains(t, logs.String(), `"message":"packet received"`)
	assert.Contains(t, logs.String(), rec.DigestHex())
	assert.Contains(t, logs.String(), rec.ID.String())
	assert.Contains(t, logs.String(), `"connection_id":7`)
}

func TestDigestAcceptsEmptyPacket(t *testing.T) {
	var logs bytes.Buffer
	logger, err := observability.NewLogger("unigate", "test", &logs).WithLevel("debug")
	require.NoError(t, err)

	var got []Record
	d := NewDigest(logger, func(r Record) { got = append(got, r) })
	require.NoError(t, d.Dispatch(context.Background(), nil, nil, ingress.ConnID(1)))

	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Size)
	assert.Equal(t, blake3.Sum256(nil), got[0].Digest)
	assert.Contains(t, logs.String(), `"message":"packet received"`)
	assert.NotContains(t, logs.String(), `"level":"error"`)
}

func TestDigestAssignsUniqueIDs(t *testing.T) {
	var mu sync.Mutex
	ids := make(map[uuid.UUID]bool)
	d := NewDigest(nil, func(r Record) {
		mu.Lock()
		ids[r.ID] = true
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Dispatch(context.Background(), []byte("same payload"), nil, ingress.ConnID(1)))
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 50)
}
