// Package probe reports what a pipeline would read from an input: geometry, rate and the
// number of frames actually decodable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
)

type Kind string

const (
	KindStill Kind = "still"
	KindVideo Kind = "video"
)

type Report struct {
	Path       string
	Kind       Kind
	Width      int
	Height     int
	Channels   int
	FPS        float64
	Advertised int
	// Decoded is the number of frames a run would see. The advertised count is only a hint.
	Decoded   int
	Container *ContainerInfo
}

// Fields renders the report for structured logging.
func (r Report) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"path":     r.Path,
		"kind":     string(r.Kind),
		"width":    r.Width,
		"height":   r.Height,
		"channels": r.Channels,
		"frames":   r.Decoded,
	}
	if r.Kind == KindVideo {
		fields["fps"] = r.FPS
		fields["advertised_frames"] = r.Advertised
	}
	if r.Container != nil {
		fields["codec"] = r.Container.Codec
		fields["container_samples"] = r.Container.Samples
		fields["container_duration"] = r.Container.Duration.String()
	}
	return fields
}

// File opens path the way a run would and reads it to the end.
func File(ctx context.Context, path string, log logger.Logger) (Report, error) {
	if log == nil {
		log = logger.Nop()
	}

	src := pipeline.OpenSource(path, log)
	if err := src.Open(ctx); err != nil {
		return Report{}, err
	}
	defer src.Close()

	props := src.Properties()
	report := Report{
		Path:       path,
		Kind:       KindVideo,
		Width:      props.Width,
		Height:     props.Height,
		FPS:        props.FPS,
		Advertised: props.FrameCount,
	}
	if props.Still {
		report.Kind = KindStill
	}

	for {
		f, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, err
		}
		if report.Decoded == 0 {
			report.Channels = f.Format().Channels
		}
		report.Decoded++
		f.Close()
	}

	if IsMP4Path(path) {
		info, err := MP4File(path)
		if err != nil {
			log.Warning("Probe", "container inspection failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		} else {
			report.Container = &info
		}
	}

	log.Debug("Probe", "input probed", report.Fields())
	return report, nil
}

// Describe is a one-line human summary.
func (r Report) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %dx%d", r.Path, r.Kind, r.Width, r.Height)
	if r.Channels > 0 {
		fmt.Fprintf(&b, " %s", frame.Format{Channels: r.Channels, Depth: frame.DepthU8})
	}
	if r.Kind == KindVideo {
		fmt.Fprintf(&b, ", %.3g fps, %d frames decoded", r.FPS, r.Decoded)
		if r.Advertised > 0 && r.Advertised != r.Decoded {
			fmt.Fprintf(&b, " (%d advertised)", r.Advertised)
		}
	}
	if c := r.Container; c != nil {
		fmt.Fprintf(&b, ", %s, %d samples, %s", c.Codec, c.Samples, c.Duration)
	}
	return b.String()
}

func IsMP4Path(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return true
	}
	return false
}
