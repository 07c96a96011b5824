package transfer

import (
	"time"

	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
)

type Config struct {
	// ChunkSize is the payload size of every chunk but the last.
	ChunkSize int
	// ChunkDelay paces the sender between chunks.
	ChunkDelay time.Duration
	// MaxAttempts bounds appends of one chunk when the buffer is full.
	MaxAttempts int
	// SettleDelay is waited once all bytes are applied before finalizing.
	SettleDelay time.Duration
	// OperationTimeout fails the session when a buffer operation does not
	// complete in time. Zero disables it.
	OperationTimeout time.Duration
	// QueueHighWatermark logs a warning once per session when queued
	// bytes exceed it.
	QueueHighWatermark int64
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          protocol.ChunkSize,
		ChunkDelay:         10 * time.Millisecond,
		MaxAttempts:        3,
		SettleDelay:        time.Second,
		OperationTimeout:   30 * time.Second,
		QueueHighWatermark: 32 << 20,
	}
}
