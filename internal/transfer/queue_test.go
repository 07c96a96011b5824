package transfer

import "testing"

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()

	for i := 0; i < 5; i++ {
		q.Enqueue(Chunk{Offset: uint64(i * 10), Data: make([]byte, 10)})
	}
	if q.Len() != 5 || q.Bytes() != 50 {
		t.Fatalf("expected 5 chunks / 50 bytes, got %d / %d", q.Len(), q.Bytes())
	}

	head, _ := q.Peek()
	if head.Offset != 0 {
		t.Errorf("expected head at 0, got %d", head.Offset)
	}
	if q.Len() != 5 {
		t.Error("Peek must not remove the head")
	}

	for i := 0; i < 5; i++ {
		c, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop %d failed", i)
		}
		if c.Offset != uint64(i*10) {
			t.Errorf("expected offset %d, got %d", i*10, c.Offset)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
	if q.Bytes() != 0 {
		t.Errorf("expected 0 bytes, got %d", q.Bytes())
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Chunk{Data: []byte("abc")})
	q.Clear()

	if q.Len() != 0 || q.Bytes() != 0 {
		t.Errorf("expected cleared queue, got %d / %d", q.Len(), q.Bytes())
	}
	if _, ok := q.Peek(); ok {
		t.Error("expected nothing to peek")
	}
}

func TestSessionProgress(t *testing.T) {
	s := newSession("p", 200, "video/mp4")
	s.AppliedSize = 50
	if p := s.Progress(); p != 0.25 {
		t.Errorf("expected 0.25, got %v", p)
	}
	if s.ID == "" {
		t.Error("expected session id")
	}
	if s.State.String() != "metadata-received" {
		t.Errorf("unexpected state name %q", s.State.String())
	}
}
