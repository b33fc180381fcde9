// Package buffer implements the bounded frame queue that bridges the
// network-side producers and the single decode worker. It holds two
// independent lanes (video, audio) behind one mutex and one shared wakeup
// signal, and applies a keyframe-preserving eviction policy on the video
// lane so that sustained overload degrades to "fewer frames" rather than
// "undecodable frames".
package buffer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/user/snapstream/media"
)

// Ring is a dual-lane bounded frame queue with a blocking single-consumer
// Take. Producers may call PutVideo/PutAudio from any goroutine; exactly one
// goroutine may call Take. Puts never block and never return errors: when a
// lane is full the eviction policy decides what is lost.
type Ring struct {
	mu       sync.Mutex
	video    []media.Frame
	audio    []media.Frame
	capacity int
	closed   bool

	// notify carries at most one pending wakeup for the consumer. A single
	// shared signal serves both lanes: the consumer must wake no matter
	// which lane received data.
	notify chan struct{}
	done   chan struct{}

	stats RingStats
	log   *slog.Logger
}

// RingStats is a point-in-time snapshot of lane depth and loss counters.
type RingStats struct {
	VideoLen           int   `json:"video_len"`
	AudioLen           int   `json:"audio_len"`
	VideoPushed        int64 `json:"video_pushed"`
	VideoDiscarded     int64 `json:"video_discarded"`      // full lane, non-keyframe arrival dropped
	VideoEvicted       int64 `json:"video_evicted"`        // non-keyframe removed to admit a keyframe
	VideoDroppedOldest int64 `json:"video_dropped_oldest"` // all-keyframe lane, oldest removed
	AudioPushed        int64 `json:"audio_pushed"`
	AudioDroppedOldest int64 `json:"audio_dropped_oldest"`
	Taken              int64 `json:"taken"`
}

// NewRing creates a Ring with the given per-lane capacity. A capacity of
// zero or less selects media.DefaultLaneCapacity. If log is nil,
// slog.Default() is used.
func NewRing(capacity int, log *slog.Logger) *Ring {
	if capacity <= 0 {
		capacity = media.DefaultLaneCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ring{
		video:    make([]media.Frame, 0, capacity),
		audio:    make([]media.Frame, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		log:      log.With("component", "framebuffer"),
	}
}

// Capacity returns the per-lane capacity.
func (r *Ring) Capacity() int {
	return r.capacity
}

// PutVideo appends a video frame. When the lane is full, a keyframe arrival
// evicts the first queued non-keyframe (oldest first); if the lane somehow
// holds only keyframes, the oldest entry is dropped instead. A non-keyframe
// arriving at a full lane is discarded: losing one delta frame is cheaper
// than losing the keyframe that makes later frames decodable.
func (r *Ring) PutVideo(f media.Frame) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.video) >= r.capacity {
		if !f.IsKeyframe {
			r.stats.VideoDiscarded++
			r.mu.Unlock()
			r.log.Debug("video lane full, discarding frame",
				"ts", f.Timestamp, "channel", f.Channel)
			return
		}
		if i := firstNonKeyframe(r.video); i >= 0 {
			r.video = append(r.video[:i], r.video[i+1:]...)
			r.stats.VideoEvicted++
		} else {
			r.video = r.video[1:]
			r.stats.VideoDroppedOldest++
		}
	}
	r.video = append(r.video, f)
	r.stats.VideoPushed++
	r.mu.Unlock()
	r.signal()
}

// PutAudio appends an audio frame, dropping the oldest entry when the lane
// is full. Audio has no keyframe concept, so plain FIFO loss is correct.
func (r *Ring) PutAudio(f media.Frame) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.audio) >= r.capacity {
		r.audio = r.audio[1:]
		r.stats.AudioDroppedOldest++
	}
	r.audio = append(r.audio, f)
	r.stats.AudioPushed++
	r.mu.Unlock()
	r.signal()
}

// Take removes and returns the next frame for the single consumer, blocking
// up to timeout when both lanes are empty. Video is strictly preferred over
// audio whenever both are available: stale video is more disruptive
// downstream than brief audio jitter. The second return is false on timeout
// (an idle poll, not an error) and after Shutdown.
func (r *Ring) Take(timeout time.Duration) (media.Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return media.Frame{}, false
		}
		if len(r.video) > 0 {
			f := r.video[0]
			r.video = r.video[1:]
			r.stats.Taken++
			r.mu.Unlock()
			return f, true
		}
		if len(r.audio) > 0 {
			f := r.audio[0]
			r.audio = r.audio[1:]
			r.stats.Taken++
			r.mu.Unlock()
			return f, true
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-r.done:
			return media.Frame{}, false
		case <-timer.C:
			return media.Frame{}, false
		}
	}
}

// Shutdown clears both lanes and permanently closes the ring: a blocked Take
// wakes and reports no data, and subsequent puts become no-ops. Safe to call
// more than once and from any goroutine.
func (r *Ring) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.video = nil
	r.audio = nil
	r.mu.Unlock()
	close(r.done)
	r.log.Debug("frame buffer shut down")
}

// Stats returns a snapshot of lane depths and loss counters.
func (r *Ring) Stats() RingStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.VideoLen = len(r.video)
	s.AudioLen = len(r.audio)
	return s
}

// signal posts the consumer wakeup without blocking; one pending wakeup is
// enough since the consumer re-checks both lanes before sleeping.
func (r *Ring) signal() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func firstNonKeyframe(lane []media.Frame) int {
	for i, f := range lane {
		if !f.IsKeyframe {
			return i
		}
	}
	return -1
}
