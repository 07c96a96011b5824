package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var ErrHostClosed = errors.New("buffer host closed")

type MemoryConfig struct {
	// Capacity is the number of bytes the host holds before appends fail
	// with ErrCapacityExceeded.
	Capacity int64
	// BytesPerSecond maps appended bytes onto the media timeline.
	BytesPerSecond int64
	// Spill, if set, receives every appended byte in order. Spilled
	// segments live in the writer and are not charged against Capacity.
	Spill io.Writer
}

func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Capacity:       64 << 20,
		BytesPerSecond: 1 << 20,
	}
}

type segment struct {
	rng  Range
	size int64
}

// MemoryHost is an in-memory decode buffer. Each append becomes one
// segment on the timeline; eviction drops whole segments.
type MemoryHost struct {
	cfg MemoryConfig

	mu        sync.Mutex
	mediaType string
	opened    bool
	finalized bool
	closed    bool
	segments  []segment
	used      int64
	appended  int64
}

func NewMemoryHost(cfg MemoryConfig) *MemoryHost {
	if cfg.BytesPerSecond <= 0 {
		cfg.BytesPerSecond = DefaultMemoryConfig().BytesPerSecond
	}
	return &MemoryHost{cfg: cfg}
}

func (h *MemoryHost) Open(mimeDescriptor string) error {
	mediaType, err := ParseMime(mimeDescriptor)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}
	h.mediaType = mediaType
	h.opened = true
	return nil
}

func (h *MemoryHost) Append(data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed:
		return ErrHostClosed
	case !h.opened:
		return ErrNotOpen
	case h.finalized:
		return ErrFinalized
	}

	size := int64(len(data))
	if size == 0 {
		return nil
	}
	held := size
	if h.cfg.Spill != nil {
		if _, err := h.cfg.Spill.Write(data); err != nil {
			return fmt.Errorf("failed to spill segment: %w", err)
		}
		held = 0
	} else if h.used+size > h.cfg.Capacity {
		return fmt.Errorf("%w: %d of %d bytes used, need %d", ErrCapacityExceeded, h.used, h.cfg.Capacity, size)
	}

	h.segments = append(h.segments, segment{
		rng: Range{
			Start: h.seconds(h.appended),
			End:   h.seconds(h.appended + size),
		},
		size: held,
	})
	h.used += held
	h.appended += size
	return nil
}

// Evict drops every segment lying entirely inside [start, end).
func (h *MemoryHost) Evict(start, end float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}

	kept := h.segments[:0]
	for _, seg := range h.segments {
		if seg.rng.Start >= start && seg.rng.End <= end {
			h.used -= seg.size
			continue
		}
		kept = append(kept, seg)
	}
	h.segments = kept
	return nil
}

func (h *MemoryHost) Finalize() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}
	h.finalized = true
	return nil
}

func (h *MemoryHost) Ranges() []Range {
	h.mu.Lock()
	defer h.mu.Unlock()

	w := NewWindow()
	for _, seg := range h.segments {
		w.Add(seg.rng)
	}
	return w.Ranges()
}

func (h *MemoryHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.segments = nil
	h.used = 0
	return nil
}

func (h *MemoryHost) Used() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

func (h *MemoryHost) Appended() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.appended
}

func (h *MemoryHost) MediaType() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mediaType
}

func (h *MemoryHost) Finalized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finalized
}

func (h *MemoryHost) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *MemoryHost) seconds(bytes int64) float64 {
	return float64(bytes) / float64(h.cfg.BytesPerSecond)
}
