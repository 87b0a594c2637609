package mqtt

import "log"

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 256

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// When full, the oldest message is overwritten.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		if r.dropped == 0 {
			log.Printf("mqtt: offline buffer full (%d messages), dropping oldest", r.capacity)
		}
		r.dropped++
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drainAll returns buffered messages oldest first and how many were lost
// to overflow, then empties the buffer.
func (r *ringBuffer) drainAll() ([]bufferedMsg, int) {
	dropped := r.dropped
	r.dropped = 0
	if r.count == 0 {
		return nil, dropped
	}

	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	return result, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
