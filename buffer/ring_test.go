package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/user/snapstream/media"
)

func vf(ts int64, keyframe bool) media.Frame {
	return media.Frame{
		Kind:       media.KindVideo,
		Codec:      media.CodecH264,
		Data:       []byte{0x00},
		Timestamp:  ts,
		IsKeyframe: keyframe,
	}
}

func af(ts int64) media.Frame {
	return media.Frame{
		Kind:      media.KindAudio,
		Codec:     media.CodecOpus,
		Data:      []byte{0x00},
		Timestamp: ts,
	}
}

func TestRingVideoPriority(t *testing.T) {
	t.Parallel()

	r := NewRing(8, nil)
	r.PutAudio(af(1))
	r.PutAudio(af(2))
	r.PutVideo(vf(3, true))

	f, ok := r.Take(time.Second)
	if !ok {
		t.Fatal("Take: got no data, want a frame")
	}
	if f.Kind != media.KindVideo {
		t.Errorf("first Take kind: got %v, want %v", f.Kind, media.KindVideo)
	}

	f, ok = r.Take(time.Second)
	if !ok || f.Kind != media.KindAudio || f.Timestamp != 1 {
		t.Errorf("second Take: got (%v, ts=%d, ok=%v), want audio ts=1", f.Kind, f.Timestamp, ok)
	}
}

func TestRingFullLaneDiscardsNewNonKeyframe(t *testing.T) {
	t.Parallel()

	r := NewRing(20, nil)
	for i := 0; i < 25; i++ {
		r.PutVideo(vf(int64(i), false))
	}

	s := r.Stats()
	if s.VideoLen != 20 {
		t.Fatalf("video lane length: got %d, want 20", s.VideoLen)
	}
	if s.VideoDiscarded != 5 {
		t.Errorf("discarded: got %d, want 5", s.VideoDiscarded)
	}
	if s.VideoEvicted != 0 || s.VideoDroppedOldest != 0 {
		t.Errorf("evictions: got evicted=%d droppedOldest=%d, want 0/0", s.VideoEvicted, s.VideoDroppedOldest)
	}

	// The first 20 frames remain in order; the overflow arrivals were dropped.
	for want := int64(0); want < 20; want++ {
		f, ok := r.Take(time.Second)
		if !ok {
			t.Fatalf("Take %d: got no data", want)
		}
		if f.Timestamp != want {
			t.Fatalf("Take order: got ts=%d, want %d", f.Timestamp, want)
		}
	}
}

func TestRingKeyframeEvictsOldestNonKeyframe(t *testing.T) {
	t.Parallel()

	r := NewRing(20, nil)
	for i := 0; i < 20; i++ {
		r.PutVideo(vf(int64(i), false))
	}
	r.PutVideo(vf(100, true))

	s := r.Stats()
	if s.VideoLen != 20 {
		t.Fatalf("video lane length: got %d, want 20", s.VideoLen)
	}
	if s.VideoEvicted != 1 {
		t.Errorf("evicted: got %d, want 1", s.VideoEvicted)
	}

	var got []int64
	for {
		f, ok := r.Take(10 * time.Millisecond)
		if !ok {
			break
		}
		got = append(got, f.Timestamp)
	}
	if len(got) != 20 {
		t.Fatalf("drained: got %d frames, want 20", len(got))
	}
	if got[0] != 1 {
		t.Errorf("oldest survivor: got ts=%d, want 1 (ts=0 evicted)", got[0])
	}
	if got[19] != 100 {
		t.Errorf("newest: got ts=%d, want the keyframe ts=100", got[19])
	}
}

func TestRingEvictionPrefersNonKeyframe(t *testing.T) {
	t.Parallel()

	// Oldest entry is the lane's only keyframe; eviction must skip it.
	r := NewRing(4, nil)
	r.PutVideo(vf(0, true))
	for i := 1; i < 4; i++ {
		r.PutVideo(vf(int64(i), false))
	}
	r.PutVideo(vf(9, true))

	var got []int64
	var keyframes int
	for {
		f, ok := r.Take(10 * time.Millisecond)
		if !ok {
			break
		}
		got = append(got, f.Timestamp)
		if f.IsKeyframe {
			keyframes++
		}
	}
	if len(got) != 4 {
		t.Fatalf("drained: got %d frames, want 4", len(got))
	}
	if got[0] != 0 {
		t.Errorf("keyframe at head was evicted: got first ts=%d, want 0", got[0])
	}
	if keyframes != 2 {
		t.Errorf("keyframes retained: got %d, want 2", keyframes)
	}
}

func TestRingAllKeyframeLaneDropsOldest(t *testing.T) {
	t.Parallel()

	r := NewRing(3, nil)
	for i := 0; i < 3; i++ {
		r.PutVideo(vf(int64(i), true))
	}
	r.PutVideo(vf(3, true))

	s := r.Stats()
	if s.VideoDroppedOldest != 1 {
		t.Errorf("dropped oldest: got %d, want 1", s.VideoDroppedOldest)
	}
	f, ok := r.Take(time.Second)
	if !ok || f.Timestamp != 1 {
		t.Errorf("head after drop: got ts=%d ok=%v, want ts=1", f.Timestamp, ok)
	}
}

func TestRingAudioDropsOldest(t *testing.T) {
	t.Parallel()

	r := NewRing(3, nil)
	for i := 0; i < 5; i++ {
		r.PutAudio(af(int64(i)))
	}

	s := r.Stats()
	if s.AudioLen != 3 {
		t.Fatalf("audio lane length: got %d, want 3", s.AudioLen)
	}
	if s.AudioDroppedOldest != 2 {
		t.Errorf("audio dropped: got %d, want 2", s.AudioDroppedOldest)
	}
	f, ok := r.Take(time.Second)
	if !ok || f.Timestamp != 2 {
		t.Errorf("audio head: got ts=%d ok=%v, want ts=2", f.Timestamp, ok)
	}
}

func TestRingTakeTimesOutEmpty(t *testing.T) {
	t.Parallel()

	r := NewRing(4, nil)
	start := time.Now()
	_, ok := r.Take(30 * time.Millisecond)
	if ok {
		t.Fatal("Take on empty ring: got data, want none")
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("Take returned after %v, want it to wait for the timeout", elapsed)
	}
}

func TestRingPutWakesBlockedTake(t *testing.T) {
	t.Parallel()

	r := NewRing(4, nil)
	got := make(chan media.Frame, 1)
	go func() {
		f, ok := r.Take(5 * time.Second)
		if ok {
			got <- f
		}
		close(got)
	}()

	time.Sleep(20 * time.Millisecond)
	r.PutAudio(af(7))

	select {
	case f, ok := <-got:
		if !ok {
			t.Fatal("Take: got no data after put")
		}
		if f.Kind != media.KindAudio || f.Timestamp != 7 {
			t.Errorf("woken Take: got (%v, ts=%d), want audio ts=7", f.Kind, f.Timestamp)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not wake after put")
	}
}

func TestRingShutdownWakesBlockedTake(t *testing.T) {
	t.Parallel()

	r := NewRing(4, nil)
	done := make(chan bool, 1)
	go func() {
		_, ok := r.Take(10 * time.Second)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	r.Shutdown()

	select {
	case ok := <-done:
		if ok {
			t.Error("Take after shutdown: got data, want none")
		}
	case <-time.After(time.Second):
		t.Fatal("Take still blocked after shutdown")
	}
}

func TestRingShutdownClearsAndDisables(t *testing.T) {
	t.Parallel()

	r := NewRing(4, nil)
	r.PutVideo(vf(1, true))
	r.PutAudio(af(2))
	r.Shutdown()
	r.Shutdown() // idempotent

	if _, ok := r.Take(10 * time.Millisecond); ok {
		t.Error("Take after shutdown: got data, want none")
	}

	r.PutVideo(vf(3, true))
	r.PutAudio(af(4))
	s := r.Stats()
	if s.VideoLen != 0 || s.AudioLen != 0 {
		t.Errorf("lanes after shutdown: got video=%d audio=%d, want empty", s.VideoLen, s.AudioLen)
	}
}

func TestRingConcurrentProducersStayBounded(t *testing.T) {
	t.Parallel()

	const capacity = 8
	r := NewRing(capacity, nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.PutVideo(vf(int64(i), i%10 == 0))
				r.PutAudio(af(int64(i)))
			}
		}(p)
	}

	consumed := make(chan int)
	go func() {
		n := 0
		for {
			select {
			case <-stop:
				consumed <- n
				return
			default:
			}
			if _, ok := r.Take(5 * time.Millisecond); ok {
				n++
			}
		}
	}()

	wg.Wait()
	s := r.Stats()
	if s.VideoLen > capacity || s.AudioLen > capacity {
		t.Errorf("lane bounds: got video=%d audio=%d, want <= %d", s.VideoLen, s.AudioLen, capacity)
	}
	close(stop)
	if n := <-consumed; n == 0 {
		t.Error("consumer: got 0 frames, want some")
	}
}
