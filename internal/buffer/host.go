package buffer

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	ErrBusy             = errors.New("buffer operation already in flight")
	ErrCapacityExceeded = errors.New("buffer capacity exceeded")
	ErrUnsupportedMime  = errors.New("unsupported mime descriptor")
	ErrNotOpen          = errors.New("buffer host not open")
	ErrFinalized        = errors.New("buffer finalized")
	ErrReleased         = errors.New("buffer released")
)

// Host is the decode buffer the sink drives. Calls are never concurrent:
// the sink holds a single lease across each one.
type Host interface {
	Open(mimeDescriptor string) error
	Append(data []byte) error
	Evict(start, end float64) error
	Finalize() error
	Ranges() []Range
	Close() error
}

// ParseMime validates a container/codec descriptor such as
// `video/mp4; codecs="avc1.64001f"` and returns its media type.
func ParseMime(descriptor string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(descriptor)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnsupportedMime, descriptor, err)
	}

	major, _, ok := strings.Cut(mediaType, "/")
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMime, descriptor)
	}

	switch major {
	case "video", "audio", "application":
		return mediaType, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMime, descriptor)
	}
}
