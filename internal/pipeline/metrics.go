package pipeline

import (
	"time"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/debug/timing"
)

// RunStats summarises one execution of a pipeline.
type RunStats struct {
	FramesRead    int
	FramesWritten int
	Cancelled     bool
	Duration      time.Duration
	Stages        []timing.Summary
}

// FramesPerSecond is the achieved processing rate, zero for an empty run.
func (s RunStats) FramesPerSecond() float64 {
	if s.Duration <= 0 || s.FramesWritten == 0 {
		return 0
	}
	return float64(s.FramesWritten) / s.Duration.Seconds()
}

// Fields flattens the stats for structured logging.
func (s RunStats) Fields() map[string]interface{} {
	fields := map[string]interface{}{
		"frames_read":    s.FramesRead,
		"frames_written": s.FramesWritten,
		"cancelled":      s.Cancelled,
		"duration_ms":    s.Duration.Milliseconds(),
		"fps":            s.FramesPerSecond(),
	}
	for _, stage := range s.Stages {
		fields["stage_"+stage.Operation+"_avg_us"] = stage.Average.Microseconds()
	}
	return fields
}
