// Package decoder bridges a push-style media producer to a rate-limited
// async consumer. A dedicated worker goroutine drains the buffered frame
// lanes, keeps the video decoder fed so reference-frame state stays warm,
// and forwards JPEG snapshots and PCM batches through the consumer's
// dispatch loop. Producers push concurrently and never block or see
// errors; everything that goes wrong inside the worker is logged and the
// next frame is tried.
package decoder

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/snapstream/buffer"
	"github.com/user/snapstream/codec"
	"github.com/user/snapstream/dispatch"
	"github.com/user/snapstream/gate"
	"github.com/user/snapstream/media"
	"github.com/user/snapstream/snapshot"
)

// DefaultTakeTimeout bounds each wait for buffered work. Short enough
// that the worker notices a stop request promptly, long enough to avoid
// spinning on an idle stream.
const DefaultTakeTimeout = 200 * time.Millisecond

var (
	// ErrVideoCallbackRequired is returned by New when no video callback
	// is configured.
	ErrVideoCallbackRequired = errors.New("decoder: video callback required")

	// ErrAudioCallbackRequired is returned by New when audio is enabled
	// without an audio callback.
	ErrAudioCallbackRequired = errors.New("decoder: audio callback required when audio is enabled")

	// ErrDispatchLoopRequired is returned by New when no dispatch loop is
	// configured.
	ErrDispatchLoopRequired = errors.New("decoder: dispatch loop required")

	// ErrVideoFactoryRequired is returned by New when no video decoder
	// factory is configured.
	ErrVideoFactoryRequired = errors.New("decoder: video decoder factory required")

	// ErrAudioFactoryRequired is returned by New when audio is enabled
	// without an audio decoder factory.
	ErrAudioFactoryRequired = errors.New("decoder: audio decoder factory required when audio is enabled")

	// ErrAlreadyStarted is returned by Start on a running decoder.
	ErrAlreadyStarted = errors.New("decoder: already started")

	// ErrStopped is returned by Start after Stop; a decoder never
	// restarts.
	ErrStopped = errors.New("decoder: stopped")
)

// State tracks the decoder lifecycle. Transitions only move forward:
// created, running, stopping, stopped.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshotter turns a decoded picture into the payload handed to the
// video callback. *snapshot.Encoder is the production implementation.
type Snapshotter interface {
	Encode(img image.Image) ([]byte, error)
}

// Config carries the collaborators and tuning for a Decoder. Zero values
// get sensible defaults where noted; required fields make New fail.
type Config struct {
	// FrameInterval is the minimum spacing between forwarded snapshots.
	// Zero or less disables throttling.
	FrameInterval time.Duration

	// OnVideo receives JPEG snapshots. Required.
	OnVideo dispatch.Callback

	// OnAudio receives 16 kHz mono s16le PCM batches. Required when
	// EnableAudio is set.
	OnAudio dispatch.Callback

	// EnableAudio turns on the audio lane. When unset, pushed audio
	// frames are ignored.
	EnableAudio bool

	// HWAccel hints the video decoder factory that hardware-assisted
	// decoding is available on this host.
	HWAccel bool

	// Loop is the consumer's dispatch loop. Required.
	Loop *dispatch.Loop

	// NewVideoDecoder builds the video decoder when the first video
	// frame reveals its codec. Required.
	NewVideoDecoder codec.VideoFactory

	// NewAudioDecoder builds the audio decoder on first use. Required
	// when EnableAudio is set.
	NewAudioDecoder codec.AudioFactory

	// Snapshotter encodes decoded pictures. Defaults to a JPEG encoder
	// at quality 90 with no downscaling.
	Snapshotter Snapshotter

	// BufferCapacity bounds each buffered lane. Defaults to
	// media.DefaultLaneCapacity.
	BufferCapacity int

	// TakeTimeout bounds each wait for buffered work. Defaults to
	// DefaultTakeTimeout.
	TakeTimeout time.Duration

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Now overrides the wall clock used by the snapshot gate. Tests use
	// it to drive emission ticks deterministically.
	Now func() time.Time
}

// Decoder owns the worker goroutine and the buffered lanes in front of
// it. Create with New, feed with PushVideoFrame and PushAudioFrame, and
// tear down with Stop.
type Decoder struct {
	log  *slog.Logger
	ring *buffer.Ring
	gate *gate.Gate
	disp *dispatch.Dispatcher
	enc  Snapshotter
	now  func() time.Time

	hwAccel     bool
	enableAudio bool
	takeTimeout time.Duration

	newVideo codec.VideoFactory
	newAudio codec.AudioFactory

	state      atomic.Int32
	started    atomic.Bool
	stopOnce   sync.Once
	finishOnce sync.Once
	stopped    chan struct{}

	// Codec bindings are worker-owned: only the run goroutine touches
	// them between Start and the final close.
	video      codec.VideoDecoder
	videoCodec media.Codec
	audio      codec.AudioDecoder
	audioCodec media.Codec

	decodeErrors  atomic.Int64
	convertErrors atomic.Int64
	videoEmitted  atomic.Int64
	videoGated    atomic.Int64
	videoEmpty    atomic.Int64
	audioBatches  atomic.Int64
}

// New validates cfg and builds a Decoder in the created state. The
// worker does not run until Start.
func New(cfg Config) (*Decoder, error) {
	if cfg.OnVideo == nil {
		return nil, ErrVideoCallbackRequired
	}
	if cfg.Loop == nil {
		return nil, ErrDispatchLoopRequired
	}
	if cfg.NewVideoDecoder == nil {
		return nil, ErrVideoFactoryRequired
	}
	if cfg.EnableAudio {
		if cfg.OnAudio == nil {
			return nil, ErrAudioCallbackRequired
		}
		if cfg.NewAudioDecoder == nil {
			return nil, ErrAudioFactoryRequired
		}
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	enc := cfg.Snapshotter
	if enc == nil {
		enc = snapshot.NewEncoder(snapshot.DefaultQuality, 0)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	takeTimeout := cfg.TakeTimeout
	if takeTimeout <= 0 {
		takeTimeout = DefaultTakeTimeout
	}
	var onAudio dispatch.Callback
	if cfg.EnableAudio {
		onAudio = cfg.OnAudio
	}

	d := &Decoder{
		log:         log.With("component", "decoder"),
		ring:        buffer.NewRing(cfg.BufferCapacity, cfg.Logger),
		gate:        gate.New(cfg.FrameInterval),
		disp:        dispatch.NewDispatcher(cfg.Loop, cfg.OnVideo, onAudio, cfg.Logger),
		enc:         enc,
		now:         now,
		hwAccel:     cfg.HWAccel,
		enableAudio: cfg.EnableAudio,
		takeTimeout: takeTimeout,
		newVideo:    cfg.NewVideoDecoder,
		newAudio:    cfg.NewAudioDecoder,
		stopped:     make(chan struct{}),
	}
	d.state.Store(int32(StateCreated))
	return d, nil
}

// Start launches the worker goroutine. It fails if the decoder is not in
// the created state; a stopped decoder cannot be restarted.
func (d *Decoder) Start() error {
	if !d.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		if d.State() == StateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}
	d.started.Store(true)
	d.log.Info("starting",
		"interval", d.gate.Interval(),
		"take_timeout", d.takeTimeout,
		"audio", d.enableAudio,
		"hw_accel", d.hwAccel)
	go d.run()
	return nil
}

// Stop shuts the buffer down, wakes the worker, and waits for it to
// exit. Safe to call from any state and any number of times; pushes
// after Stop are silently ignored.
func (d *Decoder) Stop() {
	d.stopOnce.Do(func() {
		if d.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
			d.log.Info("stopping")
		}
		d.ring.Shutdown()
		if !d.started.Load() {
			d.state.Store(int32(StateStopped))
			d.finish()
		}
	})
	<-d.stopped
}

func (d *Decoder) finish() {
	d.finishOnce.Do(func() { close(d.stopped) })
}

// State returns the current lifecycle state.
func (d *Decoder) State() State {
	return State(d.state.Load())
}

// PushVideoFrame queues one encoded video unit. Never blocks; when the
// video lane is full the buffer's eviction policy decides what gives.
func (d *Decoder) PushVideoFrame(f media.Frame) {
	f.Kind = media.KindVideo
	d.ring.PutVideo(f)
}

// PushAudioFrame queues one encoded audio unit. Never blocks; ignored
// when audio is disabled.
func (d *Decoder) PushAudioFrame(f media.Frame) {
	if !d.enableAudio {
		return
	}
	f.Kind = media.KindAudio
	d.ring.PutAudio(f)
}

// Stats describes a point-in-time view of the decoder and its buffer.
type Stats struct {
	State         string           `json:"state"`
	Ring          buffer.RingStats `json:"ring"`
	DecodeErrors  int64            `json:"decode_errors"`
	ConvertErrors int64            `json:"convert_errors"`
	VideoEmitted  int64            `json:"video_emitted"`
	VideoGated    int64            `json:"video_gated"`
	VideoEmpty    int64            `json:"video_empty"`
	AudioBatches  int64            `json:"audio_batches"`
	VideoDropped  int64            `json:"video_dropped"`
	AudioDropped  int64            `json:"audio_dropped"`
}

// Stats returns current counters. Safe to call from any goroutine.
func (d *Decoder) Stats() Stats {
	videoDropped, audioDropped := d.disp.Dropped()
	return Stats{
		State:         d.State().String(),
		Ring:          d.ring.Stats(),
		DecodeErrors:  d.decodeErrors.Load(),
		ConvertErrors: d.convertErrors.Load(),
		VideoEmitted:  d.videoEmitted.Load(),
		VideoGated:    d.videoGated.Load(),
		VideoEmpty:    d.videoEmpty.Load(),
		AudioBatches:  d.audioBatches.Load(),
		VideoDropped:  videoDropped,
		AudioDropped:  audioDropped,
	}
}
