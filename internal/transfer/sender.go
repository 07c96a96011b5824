package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rudransh-shrivastava/peer-watch/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Source is a local media object that can be served on request.
type Source interface {
	io.ReaderAt
	Size() int64
	MimeDescriptor() string
}

type FileSource struct {
	file *os.File
	size int64
	mime string
}

func OpenFileSource(path, mimeDescriptor string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat media: %w", err)
	}
	return &FileSource{file: f, size: info.Size(), mime: mimeDescriptor}, nil
}

func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

func (s *FileSource) Size() int64 {
	return s.size
}

func (s *FileSource) MimeDescriptor() string {
	return s.mime
}

func (s *FileSource) Close() error {
	return s.file.Close()
}

// BytesSource serves an in-memory media object.
type BytesSource struct {
	data []byte
	mime string
}

func NewBytesSource(data []byte, mimeDescriptor string) *BytesSource {
	return &BytesSource{data: data, mime: mimeDescriptor}
}

func (s *BytesSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *BytesSource) Size() int64 {
	return int64(len(s.data))
}

func (s *BytesSource) MimeDescriptor() string {
	return s.mime
}

// SendFunc delivers one message to the requesting peer.
type SendFunc func(protocol.Message) error

type SenderOptions struct {
	Config Config
	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Sender answers video requests. At most one send runs per peer; a newer
// request cancels the older one.
type Sender struct {
	cfg   Config
	clock clock.Clock
	log   logrus.FieldLogger

	mu     sync.Mutex
	active map[string]*activeSend
}

type activeSend struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSender(opts SenderOptions) *Sender {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Config.ChunkSize <= 0 {
		opts.Config.ChunkSize = DefaultConfig().ChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Sender{
		cfg:    opts.Config,
		clock:  opts.Clock,
		log:    opts.Logger,
		active: make(map[string]*activeSend),
	}
}

// Serve streams src to peerID as metadata, chunks in offset order, then
// complete. It blocks until the send ends, fails or is superseded.
func (s *Sender) Serve(ctx context.Context, peerID string, send SendFunc, src Source) error {
	if src == nil {
		return ErrNoSource
	}

	ctx, cancel := context.WithCancel(ctx)
	current := &activeSend{cancel: cancel, done: make(chan struct{})}
	defer close(current.done)
	defer cancel()

	s.mu.Lock()
	prev := s.active[peerID]
	s.active[peerID] = current
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.active[peerID] == current {
			delete(s.active, peerID)
		}
		s.mu.Unlock()
	}()

	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log := s.log.WithField("peer", peerID)
	size := src.Size()

	if err := send(&protocol.VideoMetadata{Size: uint64(size), MimeDescriptor: src.MimeDescriptor()}); err != nil {
		return fmt.Errorf("failed to send metadata: %w", err)
	}
	log.Infof("Serving %d bytes of %s", size, src.MimeDescriptor())

	buf := make([]byte, s.cfg.ChunkSize)
	for offset := int64(0); offset < size; {
		if err := ctx.Err(); err != nil {
			log.Infof("Send cancelled at %d of %d bytes", offset, size)
			return err
		}

		n := min(int64(s.cfg.ChunkSize), size-offset)
		read, err := src.ReadAt(buf[:n], offset)
		if int64(read) < n {
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("failed to read media at %d: %w", offset, err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		if err := send(&protocol.VideoChunk{Offset: uint64(offset), Data: data}); err != nil {
			return fmt.Errorf("failed to send chunk at %d: %w", offset, err)
		}
		offset += n

		if offset < size {
			if err := s.pace(ctx); err != nil {
				log.Infof("Send cancelled at %d of %d bytes", offset, size)
				return err
			}
		}
	}

	if err := send(&protocol.VideoComplete{}); err != nil {
		return fmt.Errorf("failed to send complete: %w", err)
	}
	log.Infof("Served %d bytes", size)
	return nil
}

func (s *Sender) pace(ctx context.Context) error {
	if s.cfg.ChunkDelay <= 0 {
		return ctx.Err()
	}
	t := s.clock.Timer(s.cfg.ChunkDelay)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the send to peerID, if any.
func (s *Sender) Cancel(peerID string) {
	s.mu.Lock()
	a := s.active[peerID]
	s.mu.Unlock()
	if a != nil {
		a.cancel()
	}
}

func (s *Sender) Active(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[peerID]
	return ok
}
