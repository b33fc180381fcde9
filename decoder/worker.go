package decoder

import (
	"bytes"
	"fmt"

	"github.com/user/snapstream/media"
)

// run is the worker loop. It exits when Stop is called or when the
// consumer's dispatch loop goes away, and never for a bad frame: decode
// and conversion failures are logged and the next frame is tried.
func (d *Decoder) run() {
	loopDone := d.disp.Loop().Done()
	defer func() {
		d.closeDecoders()
		d.state.Store(int32(StateStopped))
		d.finish()
		d.log.Info("stopped",
			"emitted", d.videoEmitted.Load(),
			"decode_errors", d.decodeErrors.Load())
	}()

	for d.State() == StateRunning {
		select {
		case <-loopDone:
			d.log.Warn("dispatch loop closed, stopping worker")
			return
		default:
		}

		f, ok := d.ring.Take(d.takeTimeout)
		if !ok {
			continue
		}
		switch f.Kind {
		case media.KindVideo:
			d.handleVideo(f)
		case media.KindAudio:
			d.handleAudio(f)
		}
	}
}

// handleVideo decodes every frame to keep reference state intact, then
// forwards a snapshot only when the gate grants a tick. The gate runs
// before the picture count check so an empty decode still consumes its
// tick; a stalled decoder must not let later frames bunch up.
func (d *Decoder) handleVideo(f media.Frame) {
	if err := d.bindVideo(f.Codec); err != nil {
		d.decodeErrors.Add(1)
		d.log.Warn("video decoder unavailable", "codec", f.Codec, "error", err)
		return
	}

	n, err := d.video.Decode(f.Data)
	if err != nil {
		d.decodeErrors.Add(1)
		d.log.Warn("video decode failed", "codec", d.videoCodec, "ts", f.Timestamp, "error", err)
		return
	}

	if !d.gate.Allow(d.now()) {
		d.videoGated.Add(1)
		return
	}
	if n == 0 {
		d.videoEmpty.Add(1)
		d.log.Debug("no picture at snapshot tick", "ts", f.Timestamp)
		return
	}

	pic, err := d.video.Picture()
	if err != nil {
		d.convertErrors.Add(1)
		d.log.Warn("picture conversion failed", "ts", f.Timestamp, "error", err)
		return
	}
	payload, err := d.enc.Encode(pic)
	if err != nil {
		d.convertErrors.Add(1)
		d.log.Warn("snapshot encode failed", "ts", f.Timestamp, "error", err)
		return
	}
	d.disp.Video(payload, f.Timestamp, f.Channel)
	d.videoEmitted.Add(1)
}

// handleAudio decodes and forwards every audio frame; audio is never
// throttled. A batch that produced no samples is still forwarded, the
// resampler may simply not have flushed yet.
func (d *Decoder) handleAudio(f media.Frame) {
	if err := d.bindAudio(f.Codec); err != nil {
		d.decodeErrors.Add(1)
		d.log.Warn("audio decoder unavailable", "codec", f.Codec, "error", err)
		return
	}

	chunks, err := d.audio.Decode(f.Data)
	if err != nil {
		d.decodeErrors.Add(1)
		d.log.Warn("audio decode failed", "codec", d.audioCodec, "ts", f.Timestamp, "error", err)
		return
	}

	d.disp.Audio(bytes.Join(chunks, nil), f.Timestamp, f.Channel)
	d.audioBatches.Add(1)
}

// bindVideo creates the video decoder on first use. The first frame's
// codec wins for the life of the worker; a frame announcing a different
// codec afterwards is rejected so half-decoded reference state is never
// mixed across codecs.
func (d *Decoder) bindVideo(c media.Codec) error {
	if d.video != nil {
		if c != d.videoCodec {
			return fmt.Errorf("decoder: codec changed mid-stream: bound %s, got %s", d.videoCodec, c)
		}
		return nil
	}
	dec, err := d.newVideo(c, d.hwAccel)
	if err != nil {
		return err
	}
	d.video = dec
	d.videoCodec = c
	d.log.Info("video decoder ready", "codec", c, "hw_accel", d.hwAccel)
	return nil
}

func (d *Decoder) bindAudio(c media.Codec) error {
	if d.audio != nil {
		if c != d.audioCodec {
			return fmt.Errorf("decoder: codec changed mid-stream: bound %s, got %s", d.audioCodec, c)
		}
		return nil
	}
	dec, err := d.newAudio(c)
	if err != nil {
		return err
	}
	d.audio = dec
	d.audioCodec = c
	d.log.Info("audio decoder ready", "codec", c)
	return nil
}

func (d *Decoder) closeDecoders() {
	if d.video != nil {
		d.video.Close()
		d.video = nil
	}
	if d.audio != nil {
		d.audio.Close()
		d.audio = nil
	}
}
