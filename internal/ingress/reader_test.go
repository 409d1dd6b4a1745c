package ingress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPacket(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		limit   int
		wantErr error
	}{
		{name: "empty stream", size: 0, limit: MaxPacketSize},
		{name: "small", size: 17, limit: MaxPacketSize},
		{name: "exactly at limit", size: MaxPacketSize, limit: MaxPacketSize},
		{name: "one over limit", size: MaxPacketSize + 1, limit: MaxPacketSize, wantErr: ErrPacketTooLarge},
		{name: "far over limit", size: 64 * 1024, limit: MaxPacketSize, wantErr: ErrPacketTooLarge},
		{name: "default limit", size: MaxPacketSize, limit: 0},
		{name: "custom limit", size: 9, limit: 8, wantErr: ErrPacketTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0x5A}, tt.size)
			got, err := ReadPacket(bytes.NewReader(payload), tt.limit)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestReadPacketNeverBuffersPastLimit(t *testing.T) {
	r := &countingReader{r: strings.NewReader(strings.Repeat("x", 1<<20))}
	_, err := ReadPacket(r, MaxPacketSize)
	assert.ErrorIs(t, err, ErrPacketTooLarge)
	assert.LessOrEqual(t, r.n, MaxPacketSize+1)
}

func TestReadPacketSlowReader(t *testing.T) {
	payload := bytes.Repeat([]byte("ab"), 300)
	got, err := ReadPacket(iotest.OneByteReader(bytes.NewReader(payload)), MaxPacketSize)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadPacketTransportError(t *testing.T) {
	reset := errors.New("stream reset by peer")
	_, err := ReadPacket(iotest.ErrReader(reset), MaxPacketSize)
	assert.ErrorIs(t, err, reset)
	assert.NotErrorIs(t, err, ErrPacketTooLarge)
}

type countingReader struct {
	r *strings.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
