// Package main provides the snapstream CLI: it replays a recorded
// elementary stream through the decode pipeline at a configurable pace
// and writes the emitted JPEG snapshots to disk.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/user/snapstream/codec/avcodec"
	"github.com/user/snapstream/config"
	"github.com/user/snapstream/decoder"
	"github.com/user/snapstream/dispatch"
	"github.com/user/snapstream/hwaccel"
	"github.com/user/snapstream/internal/annexb"
	"github.com/user/snapstream/media"
	"github.com/user/snapstream/session"
	"github.com/user/snapstream/snapshot"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "snapstream",
		Usage:   "turn live camera streams into periodic JPEG snapshots",
		Version: version,
		Commands: []*cli.Command{
			runCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		slog.Error("snapstream failed", "error", err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "replay an Annex B elementary stream through the snapshot pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Required: true, Usage: "Annex B elementary stream file"},
			&cli.StringFlag{Name: "codec", Value: "h264", Usage: "input video codec (h264 or h265)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "snapshots", Usage: "snapshot output directory"},
			&cli.StringFlag{Name: "device", Value: "cam0", Usage: "device ID for the session"},
			&cli.IntFlag{Name: "channel", Value: 0, Usage: "channel number stamped on frames"},
			&cli.IntFlag{Name: "fps", Value: 25, Usage: "replay pace in frames per second"},
			&cli.IntFlag{Name: "interval", Usage: "snapshot interval in milliseconds (overrides config)"},
			&cli.StringFlag{Name: "libs", Value: "third_party", Usage: "bundled FFmpeg/VAAPI library directory"},
			&cli.BoolFlag{Name: "no-hw-accel", Usage: "disable hardware acceleration probing"},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info", Usage: "log level (debug, info, warn, error)"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	log, err := setupLogger(c.String("log-level"))
	if err != nil {
		return err
	}

	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
		if err != nil {
			return err
		}
	}
	if ms := c.Int("interval"); ms > 0 {
		cfg.Camera.FrameIntervalMs = ms
	}
	if c.Bool("no-hw-accel") {
		cfg.Decoder.HWAccel = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	videoCodec, err := parseCodec(c.String("codec"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(c.String("input"))
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var units []annexb.AccessUnit
	switch videoCodec {
	case media.CodecH265:
		units = annexb.AccessUnitsHEVC(data)
	default:
		units = annexb.AccessUnitsH264(data)
	}
	if len(units) == 0 {
		return fmt.Errorf("no access units found in %s", c.String("input"))
	}

	hw := false
	if cfg.Decoder.HWAccel {
		hwaccel.SetupLibraryPaths(c.String("libs"), log)
		info := hwaccel.Detect(log)
		hw = info.Available
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	sink, err := newSnapshotSink(c.String("out"), log)
	if err != nil {
		return err
	}

	loop := dispatch.NewLoop(cfg.Decoder.DispatchQueue, log)

	decCfg := decoder.Config{
		FrameInterval:   cfg.Camera.FrameInterval(),
		OnVideo:         sink.save,
		EnableAudio:     cfg.Decoder.Audio,
		HWAccel:         hw,
		Loop:            loop,
		NewVideoDecoder: avcodec.NewVideo,
		Snapshotter:     snapshot.NewEncoder(cfg.Decoder.JPEGQuality, cfg.Decoder.SnapshotMaxWidth),
		BufferCapacity:  cfg.Decoder.BufferCapacity,
		TakeTimeout:     cfg.Decoder.TakeTimeout(),
		Logger:          log,
	}
	if cfg.Decoder.Audio {
		pcm, perr := newPCMSink(filepath.Join(c.String("out"), "audio.pcm"), log)
		if perr != nil {
			return perr
		}
		defer pcm.Close()
		decCfg.OnAudio = pcm.append
		decCfg.NewAudioDecoder = avcodec.NewAudio
	}

	dec, err := decoder.New(decCfg)
	if err != nil {
		return err
	}

	device := c.String("device")
	mgr := session.NewManager(log)
	if _, ok := mgr.Create(device, cfg.Camera.QualityFor(device), dec); !ok {
		return fmt.Errorf("session for %s already exists", device)
	}
	if err := dec.Start(); err != nil {
		return err
	}

	log.Info("snapstream starting",
		"version", version,
		"input", c.String("input"),
		"codec", videoCodec,
		"access_units", len(units),
		"fps", c.Int("fps"),
		"interval", cfg.Camera.FrameInterval(),
		"hw_accel", hw,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		feed(ctx, dec, units, videoCodec, c.Int("fps"), c.Int("channel"))
		waitDrain(ctx, dec)
		return nil
	})

	err = g.Wait()
	mgr.StopAll()

	s := dec.Stats()
	log.Info("snapstream finished",
		"snapshots", s.VideoEmitted,
		"gated", s.VideoGated,
		"decode_errors", s.DecodeErrors,
		"pushed", s.Ring.VideoPushed,
	)
	return err
}

func setupLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log, nil
}

func parseCodec(name string) (media.Codec, error) {
	switch strings.ToLower(name) {
	case "h264", "avc":
		return media.CodecH264, nil
	case "h265", "hevc":
		return media.CodecH265, nil
	default:
		return media.CodecUnknown, fmt.Errorf("unsupported codec %q", name)
	}
}

// feed pushes access units at the requested pace until the stream or the
// context runs out. Push never blocks, so a slow consumer shows up as
// buffer evictions rather than feeder stalls.
func feed(ctx context.Context, dec *decoder.Decoder, units []annexb.AccessUnit, c media.Codec, fps, channel int) {
	if fps <= 0 {
		fps = 25
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	start := time.Now()
	for _, au := range units {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		dec.PushVideoFrame(media.Frame{
			Codec:      c,
			Data:       au.Data,
			Timestamp:  time.Since(start).Milliseconds(),
			Channel:    channel,
			IsKeyframe: au.Keyframe,
		})
	}
}

// waitDrain gives the worker a moment to finish buffered frames before
// teardown.
func waitDrain(ctx context.Context, dec *decoder.Decoder) {
	deadline := time.NewTimer(3 * time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if dec.Stats().Ring.VideoLen == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}

// snapshotSink writes delivered snapshots as numbered JPEG files. save
// runs on the dispatch loop goroutine, so seq needs no locking.
type snapshotSink struct {
	dir string
	log *slog.Logger
	seq int
}

func newSnapshotSink(dir string, log *slog.Logger) (*snapshotSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &snapshotSink{dir: dir, log: log.With("component", "snapshot-sink")}, nil
}

func (s *snapshotSink) save(payload []byte, ts int64, channel int) {
	path := filepath.Join(s.dir, fmt.Sprintf("snapshot-%06d.jpg", s.seq))
	s.seq++
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		s.log.Error("write snapshot failed", "path", path, "error", err)
		return
	}
	if err := s.writeLatest(payload); err != nil {
		s.log.Warn("update latest snapshot failed", "error", err)
	}
	s.log.Info("snapshot saved", "path", path, "ts", ts, "channel", channel, "bytes", len(payload))
}

// writeLatest replaces latest.jpg atomically so readers polling the file
// never observe a partial image.
func (s *snapshotSink) writeLatest(payload []byte) error {
	tmp := filepath.Join(s.dir, ".latest.jpg.tmp")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, "latest.jpg"))
}

// pcmSink appends delivered PCM batches to one raw s16le file. append runs
// on the dispatch loop goroutine.
type pcmSink struct {
	f     *os.File
	log   *slog.Logger
	bytes int64
}

func newPCMSink(path string, log *slog.Logger) (*pcmSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	return &pcmSink{f: f, log: log.With("component", "pcm-sink")}, nil
}

func (s *pcmSink) append(payload []byte, ts int64, channel int) {
	if len(payload) == 0 {
		return
	}
	n, err := s.f.Write(payload)
	s.bytes += int64(n)
	if err != nil {
		s.log.Error("write pcm failed", "error", err, "ts", ts, "channel", channel)
	}
}

func (s *pcmSink) Close() error {
	s.log.Debug("audio file closed", "bytes", s.bytes)
	return s.f.Close()
}
