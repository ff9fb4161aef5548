package capture

import "fmt"

const (
	// DefaultCapacity is the number of records the receiver buffers.
	DefaultCapacity = 10000
	// DefaultOverflowGuard is the number of free slots required before capture
	// resumes after an overflow.
	DefaultOverflowGuard = 10
)

// PushResult tells whether a record entered the buffer.
type PushResult int

const (
	// Accepted means the record was stored.
	Accepted PushResult = iota
	// Dropped means the buffer had no room for the record.
	Dropped
)

func (r PushResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	default:
		return fmt.Sprintf("PushResult(%d)", int(r))
	}
}

// Buffer is a fixed-capacity FIFO ring of records. Live entries occupy
// [read, read+count) modulo the capacity. It is not safe for concurrent use.
type Buffer struct {
	records  []Record
	read     int
	write    int
	count    int
	overflow bool
	guard    int
}

// NewBuffer creates a buffer. guard must leave room for a sentinel and a
// record, so 1 <= guard < capacity.
func NewBuffer(capacity, guard int) (*Buffer, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("buffer capacity must be at least 2, got %d", capacity)
	}
	if guard < 1 || guard >= capacity {
		return nil, fmt.Errorf("overflow guard must be in [1, %d), got %d", capacity, guard)
	}
	return &Buffer{
		records: make([]Record, capacity),
		guard:   guard,
	}, nil
}

// Len returns the number of buffered records.
func (b *Buffer) Len() int { return b.count }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.records) }

// Overflowed reports whether a push has been refused since the last recovery.
func (b *Buffer) Overflowed() bool { return b.overflow }

// Push appends r, or sets the overflow flag and drops r when the buffer is full.
func (b *Buffer) Push(r Record) PushResult {
	if b.count == len(b.records) {
		b.overflow = true
		return Dropped
	}
	b.append(r)
	return Accepted
}

// PushWithOverflowRecovery is Push while no overflow is pending. After an
// overflow it drops every record until occupancy is below capacity-guard, then
// inserts a Sentinel ahead of r so the consumer sees the gap, and clears the
// flag.
func (b *Buffer) PushWithOverflowRecovery(r Record) PushResult {
	if !b.overflow {
		return b.Push(r)
	}
	if b.count >= len(b.records)-b.guard {
		return Dropped
	}
	b.append(Sentinel)
	b.append(r)
	b.overflow = false
	return Accepted
}

// Peek returns the oldest record without removing it.
func (b *Buffer) Peek() (Record, bool) {
	if b.count == 0 {
		return Record{}, false
	}
	return b.records[b.read], true
}

// Pop removes and returns the oldest record.
func (b *Buffer) Pop() (Record, bool) {
	if b.count == 0 {
		return Record{}, false
	}
	r := b.records[b.read]
	b.records[b.read] = Record{}
	b.read++
	if b.read == len(b.records) {
		b.read = 0
	}
	b.count--
	return r, true
}

func (b *Buffer) append(r Record) {
	b.records[b.write] = r
	b.write++
	if b.write == len(b.records) {
		b.write = 0
	}
	b.count++
}
