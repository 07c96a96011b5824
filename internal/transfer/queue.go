package transfer

type Chunk struct {
	Offset uint64
	Data   []byte
}

func (c Chunk) Len() int {
	return len(c.Data)
}

// Queue is the FIFO of accepted chunks waiting for the buffer. It is not
// safe for concurrent use; the receiver loop owns it.
type Queue struct {
	items []Chunk
	bytes int64
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(c Chunk) {
	q.items = append(q.items, c)
	q.bytes += int64(len(c.Data))
}

func (q *Queue) Peek() (Chunk, bool) {
	if len(q.items) == 0 {
		return Chunk{}, false
	}
	return q.items[0], true
}

func (q *Queue) Pop() (Chunk, bool) {
	if len(q.items) == 0 {
		return Chunk{}, false
	}
	c := q.items[0]
	q.items[0] = Chunk{}
	q.items = q.items[1:]
	q.bytes -= int64(len(c.Data))
	return c, true
}

func (q *Queue) Clear() {
	q.items = nil
	q.bytes = 0
}

func (q *Queue) Len() int {
	return len(q.items)
}

func (q *Queue) Bytes() int64 {
	return q.bytes
}
