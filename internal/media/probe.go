// Package media inspects recordings with ffprobe.
package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNoProbe is returned when ffprobe is not installed.
var ErrNoProbe = errors.New("ffprobe not found in PATH")

// Info is the metadata of one recording.
type Info struct {
	Duration   time.Duration
	Size       int64
	Codec      string
	SampleRate int
	Channels   int
}

// Prober runs ffprobe. The zero value looks the binary up in PATH.
type Prober struct {
	Binary string
}

// Available reports whether the ffprobe binary can be found.
func (p Prober) Available() bool {
	_, err := exec.LookPath(p.binary())
	return err == nil
}

func (p Prober) binary() string {
	if p.Binary != "" {
		return p.Binary
	}
	return "ffprobe"
}

// Probe returns the first audio stream's metadata.
func (p Prober) Probe(ctx context.Context, input string) (*Info, error) {
	bin, err := exec.LookPath(p.binary())
	if err != nil {
		return nil, ErrNoProbe
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels",
		"-show_entries", "format=duration,size",
		"-of", "default=noprint_wrappers=1",
		input,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}
	return parse(string(output))
}

// parse reads ffprobe's key=value output.
func parse(output string) (*Info, error) {
	info := &Info{}
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || value == "N/A" {
			continue
		}
		switch key {
		case "codec_name":
			info.Codec = value
		case "sample_rate":
			if n, err := strconv.Atoi(value); err == nil {
				info.SampleRate = n
			}
		case "channels":
			if n, err := strconv.Atoi(value); err == nil {
				info.Channels = n
			}
		case "duration":
			if d, err := strconv.ParseFloat(value, 64); err == nil {
				info.Duration = time.Duration(d * float64(time.Second))
			}
		case "size":
			if s, err := strconv.ParseInt(value, 10, 64); err == nil {
				info.Size = s
			}
		}
	}
	if info.Codec == "" {
		return nil, errors.New("no audio stream found")
	}
	return info, nil
}
