package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO holding messages while disconnected.
// When full the oldest message is dropped. Not safe for concurrent use;
// the publisher synchronizes around it.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	start    int // index of the oldest message
	count    int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		if !r.overflow {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", r.capacity)
			r.overflow = true
		}
		// Overwrite the oldest slot and move the start marker past it.
		r.buf[r.start] = msg
		r.start = (r.start + 1) % r.capacity
		return
	}
	r.buf[(r.start+r.count)%r.capacity] = msg
	r.count++
}

// drainAll returns the buffered messages oldest-first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(r.start+i)%r.capacity]
	}

	r.start = 0
	r.count = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
