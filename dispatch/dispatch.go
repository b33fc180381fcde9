// Package dispatch carries decoded payloads from the decode worker's
// goroutine into the consumer's execution context. The contract is "submit,
// do not await": the worker schedules a callback invocation and moves on,
// and per-media-kind delivery order follows submission order. No ordering
// is promised between video and audio deliveries.
package dispatch

import (
	"log/slog"
	"sync/atomic"
)

// Callback receives one decoded payload on the consumer's loop goroutine.
// Timestamps are capture time in milliseconds; channel is the camera
// multiplex channel the frame arrived on.
type Callback func(payload []byte, timestampMs int64, channel int)

// Dispatcher binds a Loop to the consumer's video and audio callbacks.
// Submission failures are logged and counted, never surfaced to the decode
// path: a torn-down or stalled consumer costs payloads, not worker uptime.
type Dispatcher struct {
	loop    *Loop
	onVideo Callback
	onAudio Callback
	log     *slog.Logger

	videoDropped atomic.Int64
	audioDropped atomic.Int64
}

// NewDispatcher creates a Dispatcher delivering through loop. Either
// callback may be nil, in which case payloads of that kind are ignored.
// If log is nil, slog.Default() is used.
func NewDispatcher(loop *Loop, onVideo, onAudio Callback, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		loop:    loop,
		onVideo: onVideo,
		onAudio: onAudio,
		log:     log.With("component", "dispatcher"),
	}
}

// Video schedules the video callback for payload. Never blocks.
func (d *Dispatcher) Video(payload []byte, timestampMs int64, channel int) {
	if d.onVideo == nil {
		return
	}
	err := d.loop.Submit(func() {
		d.onVideo(payload, timestampMs, channel)
	})
	if err != nil {
		d.videoDropped.Add(1)
		d.log.Warn("video dispatch dropped", "error", err,
			"ts", timestampMs, "channel", channel)
	}
}

// Audio schedules the audio callback for payload. Never blocks.
func (d *Dispatcher) Audio(payload []byte, timestampMs int64, channel int) {
	if d.onAudio == nil {
		return
	}
	err := d.loop.Submit(func() {
		d.onAudio(payload, timestampMs, channel)
	})
	if err != nil {
		d.audioDropped.Add(1)
		d.log.Warn("audio dispatch dropped", "error", err,
			"ts", timestampMs, "channel", channel)
	}
}

// Loop returns the loop this dispatcher delivers through.
func (d *Dispatcher) Loop() *Loop {
	return d.loop
}

// Dropped returns how many video and audio payloads failed to schedule.
func (d *Dispatcher) Dropped() (video, audio int64) {
	return d.videoDropped.Load(), d.audioDropped.Load()
}
