// Package dispatch provides packet dispatchers for the ingress server.
package dispatch

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/unigate/backend/internal/ingress"
	"github.com/unigate/backend/internal/observability"
)

// Record describes one received packet.
type Record struct {
	ID       uuid.UUID
	ConnID   ingress.ConnID
	Size     int
	Digest   [32]byte
	Received time.Time
}

// DigestHex returns the BLAKE3 digest as lowercase hex.
func (r Record) DigestHex() string {
	return hex.EncodeToString(r.Digest[:])
}

// Digest tags every packet with an ID, hashes it and logs the result.
// A stream closed without data is a valid zero-length packet.
type Digest struct {
	logger  *observability.Logger
	observe func(Record)
}

// NewDigest returns a Digest dispatcher. observe, if non-nil, receives every
// record and must be safe for concurrent use.
func NewDigest(logger *observability.Logger, observe func(Record)) *Digest {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Digest{logger: logger, observe: observe}
}

// Dispatch implements ingress.Dispatcher.
func (d *Digest) Dispatch(_ context.Context, payload []byte, _ *ingress.Conn, id ingress.ConnID) error {
	rec := Record{
		ID:       uuid.New(),
		ConnID:   id,
		Size:     len(payload),
		Digest:   blake3.Sum256(payload),
		Received: time.Now(),
	}
	d.logger.WithConn(uint64(id)).PacketDigest(rec.ID.String(), rec.DigestHex(), rec.Size)
	if d.observe != nil {
		d.observe(rec)
	}
	return nil
}
