// Package video renders short vertical news clips with ffmpeg: a solid
// background, text overlays and an optional narration track.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Overlay is one line of text drawn on the clip.
type Overlay struct {
	Text     string
	FontSize int
	Color    string
	X, Y     string // ffmpeg expressions
	BoxColor string // empty means no box
}

// Spec describes one clip.
type Spec struct {
	Background string // #RRGGBB
	Width      int
	Height     int
	Duration   int // seconds
	FrameRate  int
	Overlays   []Overlay
	AudioPath  string
}

// DefaultSpec is a 60s 720x1280 clip at 30fps.
func DefaultSpec() Spec {
	return Spec{Background: "#DC143C", Width: 720, Height: 1280, Duration: 60, FrameRate: 30}
}

var ErrUnavailable = errors.New("ffmpeg not available")

type Encoder struct {
	binary   string
	dir      string
	fontFile string
	logger   *slog.Logger
}

func NewEncoder(binary, dir string, logger *slog.Logger) *Encoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{binary: binary, dir: dir, logger: logger}
}

// WithFont sets a font file for every overlay.
func (e *Encoder) WithFont(path string) *Encoder {
	e.fontFile = path
	return e
}

// Available reports whether the ffmpeg binary can be found.
func (e *Encoder) Available() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Render writes the clip to <dir>/news_<uuid>.mp4 and returns its path.
// A partially written file is removed on failure.
func (e *Encoder) Render(ctx context.Context, spec Spec) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create video dir: %w", err)
	}
	out := filepath.Join(e.dir, "news_"+uuid.NewString()+".mp4")

	args := BuildArgs(spec, out, e.fontFile)
	e.logger.Debug("rendering video", "output", out, "overlays", len(spec.Overlays), "audio", spec.AudioPath != "")

	cmd := exec.CommandContext(ctx, e.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(out)
		return "", fmt.Errorf("ffmpeg: %w: %s", err, tail(string(output), 400))
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() == 0 {
		_ = os.Remove(out)
		return "", fmt.Errorf("ffmpeg produced no output")
	}
	return out, nil
}

// BuildArgs returns the ffmpeg argument list for spec writing to out.
func BuildArgs(spec Spec, out, fontFile string) []string {
	def := DefaultSpec()
	if spec.Width <= 0 || spec.Height <= 0 {
		spec.Width, spec.Height = def.Width, def.Height
	}
	if spec.Duration <= 0 {
		spec.Duration = def.Duration
	}
	if spec.FrameRate <= 0 {
		spec.FrameRate = def.FrameRate
	}
	if spec.Background == "" {
		spec.Background = def.Background
	}

	color := fmt.Sprintf("color=c=0x%s:s=%dx%d:d=%d:r=%d",
		strings.TrimPrefix(spec.Background, "#"), spec.Width, spec.Height, spec.Duration, spec.FrameRate)

	args := []string{"-y", "-f", "lavfi", "-i", color}
	if spec.AudioPath != "" {
		args = append(args, "-i", spec.AudioPath)
	}
	if len(spec.Overlays) > 0 {
		filters := make([]string, 0, len(spec.Overlays))
		for _, o := range spec.Overlays {
			filters = append(filters, drawtext(o, fontFile))
		}
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	args = append(args, "-c:v", "libx264", "-preset", "fast", "-crf", "23", "-pix_fmt", "yuv420p")
	if spec.AudioPath != "" {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}
	args = append(args, "-movflags", "+faststart", "-t", strconv.Itoa(spec.Duration), out)
	return args
}

func drawtext(o Overlay, fontFile string) string {
	size := o.FontSize
	if size <= 0 {
		size = 36
	}
	color := o.Color
	if color == "" {
		color = "white"
	}
	x, y := o.X, o.Y
	if x == "" {
		x = "(w-text_w)/2"
	}
	if y == "" {
		y = "h/2"
	}

	parts := []string{"drawtext=text='" + EscapeText(o.Text) + "'"}
	if fontFile != "" {
		parts = append(parts, "fontfile='"+EscapeText(fontFile)+"'")
	}
	parts = append(parts,
		"fontsize="+strconv.Itoa(size),
		"fontcolor="+color,
		"x="+x,
		"y="+y,
	)
	if o.BoxColor != "" {
		parts = append(parts, "box=1", "boxcolor="+o.BoxColor, "boxborderw=12")
	}
	parts = append(parts, "expansion=none")
	return strings.Join(parts, ":")
}

// EscapeText makes s safe inside a quoted drawtext value.
func EscapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, "’",
		`:`, `\:`,
		"\n", " ",
		"\r", "",
	)
	return r.Replace(s)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
