package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

const levelWindow = 16

// levelMeter keeps a rolling window of per-frame RMS levels.
type levelMeter struct {
	mu      sync.Mutex
	samples [levelWindow]float64
	next    int
	filled  int

	done      chan struct{}
	closeOnce sync.Once
}

func newLevelMeter() *levelMeter {
	return &levelMeter{done: make(chan struct{})}
}

func (m *levelMeter) observe(frame []byte) {
	count := len(frame) / 2
	if count == 0 {
		return
	}
	var sum float64
	for i := 0; i < count; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(frame[2*i:]))) / 32768
		sum += sample * sample
	}
	rms := math.Sqrt(sum / float64(count))

	m.mu.Lock()
	m.samples[m.next] = rms
	m.next = (m.next + 1) % levelWindow
	if m.filled < levelWindow {
		m.filled++
	}
	m.mu.Unlock()
}

// level is the window mean, clamped to [0,1].
func (m *levelMeter) level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filled == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < m.filled; i++ {
		sum += m.samples[i]
	}
	return math.Min(1, math.Max(0, sum/float64(m.filled)))
}

func (m *levelMeter) close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

// recorder buffers captured PCM up to a byte limit. A limit of zero
// disables recording.
type recorder struct {
	mu        sync.Mutex
	limit     int
	data      []byte
	sealed    bool
	truncated bool
}

func newRecorder(limit int) *recorder {
	return &recorder{limit: limit}
}

func (r *recorder) write(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed || r.limit <= 0 {
		return
	}
	room := r.limit - len(r.data)
	if room <= 0 {
		r.truncated = true
		return
	}
	if len(frame) > room {
		frame = frame[:room-room%2]
		r.truncated = true
	}
	r.data = append(r.data, frame...)
}

func (r *recorder) seal() error {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
	return nil
}

func (r *recorder) bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}
