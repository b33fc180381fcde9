// Package hwaccel probes the host for VAAPI decode support and prepares
// dynamic-library paths for deployments that bundle their own FFmpeg/VAAPI
// builds. Detection is advisory: the decode worker treats the result as a
// preference, never a requirement.
package hwaccel

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Info reports the outcome of a hardware probe.
type Info struct {
	Available bool
	Kind      string // "vaapi" when available
}

// renderNodes are DRI devices whose presence suggests a usable VAAPI
// driver even when the ffmpeg binary is not on PATH to confirm it.
var renderNodes = []string{"/dev/dri/renderD128", "/dev/dri/card0"}

// ffmpegFallbacks are checked when ffmpeg is not on PATH.
var ffmpegFallbacks = []string{
	"/usr/local/bin/ffmpeg",
	"/usr/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
}

// Detect probes for VAAPI support: first by asking ffmpeg for its hwaccel
// list, then by checking for DRI render devices. If log is nil,
// slog.Default() is used.
func Detect(log *slog.Logger) Info {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "hwaccel")

	if out, err := hwaccelList(); err == nil {
		if ListsVAAPI(out) {
			log.Info("vaapi acceleration detected via ffmpeg")
			return Info{Available: true, Kind: "vaapi"}
		}
	} else {
		log.Debug("ffmpeg hwaccel probe unavailable", "error", err)
	}

	for _, dev := range renderNodes {
		if _, err := os.Stat(dev); err == nil {
			log.Info("vaapi render device present", "device", dev)
			return Info{Available: true, Kind: "vaapi"}
		}
	}

	log.Info("no hardware acceleration available, using software decode")
	return Info{}
}

// ListsVAAPI reports whether `ffmpeg -hwaccels` output names vaapi.
func ListsVAAPI(output string) bool {
	return strings.Contains(strings.ToLower(output), "vaapi")
}

func hwaccelList() (string, error) {
	ff, err := findFFmpeg()
	if err != nil {
		return "", err
	}
	out, err := exec.Command(ff, "-hwaccels").Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func findFFmpeg() (string, error) {
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}
	for _, p := range ffmpegFallbacks {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", exec.ErrNotFound
}

// SetupLibraryPaths exports LD_LIBRARY_PATH/LIBVA_DRIVERS_PATH entries for
// codec libraries bundled under baseDir, when present. Layout follows the
// bundled third_party convention: <base>/{ffmpeg,vaapi}/linux/x86_64/lib,
// with VAAPI drivers in a dri/ subdirectory. Missing directories are
// skipped silently; the system libraries serve instead.
func SetupLibraryPaths(baseDir string, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "hwaccel")

	if baseDir == "" {
		return
	}
	if _, err := os.Stat(baseDir); err != nil {
		log.Debug("no bundled libraries, using system paths", "dir", baseDir)
		return
	}

	prependLibPath(filepath.Join(baseDir, "ffmpeg", "linux", "x86_64", "lib"), log)

	vaapiLib := filepath.Join(baseDir, "vaapi", "linux", "x86_64", "lib")
	prependLibPath(vaapiLib, log)
	if driver := filepath.Join(vaapiLib, "dri"); dirExists(driver) {
		os.Setenv("LIBVA_DRIVERS_PATH", driver)
		log.Info("set vaapi driver path", "path", driver)
	}
}

func prependLibPath(dir string, log *slog.Logger) {
	if !dirExists(dir) {
		return
	}
	cur := os.Getenv("LD_LIBRARY_PATH")
	if strings.Contains(cur, dir) {
		return
	}
	if cur == "" {
		os.Setenv("LD_LIBRARY_PATH", dir)
	} else {
		os.Setenv("LD_LIBRARY_PATH", dir+":"+cur)
	}
	log.Info("added library path", "dir", dir)
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
