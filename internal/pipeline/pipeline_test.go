package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/debug/timing"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/memory"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/chain"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/processing/filters"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 8), B: 128, A: 255})
		}
	}

	path := filepath.Join(dir, "input.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

// writeClip produces a short MJPG/AVI clip, which OpenCV can write and read without
// external codecs.
func writeClip(t *testing.T, dir string, frames int) string {
	t.Helper()
	path := filepath.Join(dir, "clip.avi")

	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	require.True(t, writer.IsOpened())

	for i := 0; i < frames; i++ {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(i*20), 100, float64(255-i*20), 0), 48, 64, gocv.MatTypeCV8UC3)
		require.NoError(t, writer.Write(m))
		m.Close()
	}
	require.NoError(t, writer.Close())
	return path
}

func countFrames(t *testing.T, path string) int {
	t.Helper()
	capture, err := gocv.VideoCaptureFile(path)
	require.NoError(t, err)
	defer capture.Close()

	m := gocv.NewMat()
	defer m.Close()
	n := 0
	for capture.Read(&m) && !m.Empty() {
		n++
	}
	return n
}

func buildChain(t *testing.T, kinds ...string) *chain.ProcessingChain {
	t.Helper()
	return buildTimedChain(t, nil, kinds...)
}

func buildTimedChain(t *testing.T, tracker *timing.Tracker, kinds ...string) *chain.ProcessingChain {
	t.Helper()
	stages := make([]chain.Stage, 0, len(kinds))
	for _, kind := range kinds {
		s, err := filters.Build(kind, nil)
		require.NoError(t, err)
		stages = append(stages, s)
	}
	return chain.NewProcessingChain(stages, tracker, logger.Nop())
}

// fakeSource emits count 8x8 gray frames and records its lifecycle.
type fakeSource struct {
	count  int
	props  frame.Properties
	next   int
	opens  int
	closes int
}

func (f *fakeSource) Path() string                 { return "fake" }
func (f *fakeSource) Properties() frame.Properties { return f.props }

func (f *fakeSource) Open(context.Context) error {
	f.opens++
	return nil
}

func (f *fakeSource) Close() error {
	f.closes++
	return nil
}

func (f *fakeSource) Next(context.Context) (*frame.Frame, error) {
	if f.next >= f.count {
		return nil, io.EOF
	}
	m, err := safe.NewMat(8, 8, gocv.MatTypeCV8UC1, "fake")
	if err != nil {
		return nil, err
	}
	mat := m.GetMat()
	mat.SetTo(gocv.NewScalar(float64(f.next), 0, 0, 0))
	fr := frame.New(f.next, m)
	f.next++
	return fr, nil
}

// recordingSink stands in for a display: it keeps geometry, never touches the filesystem.
type recordingSink struct {
	cancelAfter int
	sizes       []image.Point
	opened      bool
	closes      int
}

func (r *recordingSink) Path() string          { return "recording" }
func (r *recordingSink) Accepts() frame.Format { return frame.Format{Depth: frame.DepthU8} }

func (r *recordingSink) Open(context.Context, frame.Properties) error {
	r.opened = true
	return nil
}

func (r *recordingSink) Write(_ context.Context, f *frame.Frame) error {
	r.sizes = append(r.sizes, image.Pt(f.Width(), f.Height()))
	if r.cancelAfter > 0 && len(r.sizes) >= r.cancelAfter {
		return ErrCancelled
	}
	return nil
}

func (r *recordingSink) Close() error {
	r.closes++
	return nil
}

func TestRunner_StillToFileKeepsGeometry(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, 40, 30)
	out := filepath.Join(dir, "edges.png")

	sink, err := NewStillFileSink(out, nil)
	require.NoError(t, err)

	runner := NewRunner(OpenSource(in, nil), buildChain(t, "grayscale", "canny"), sink, nil, nil)
	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.FramesRead)
	assert.Equal(t, 1, stats.FramesWritten)
	assert.Equal(t, StateClosed, runner.State())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 40, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestRunner_StillDisplayWritesNoFile(t *testing.T) {
	dir := t.TempDir()
	in := writePNG(t, dir, 16, 12)

	sink := &recordingSink{}
	runner := NewRunner(OpenSource(in, nil), buildChain(t, "grayscale", "median"), sink, nil, nil)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.sizes, 1)
	assert.Equal(t, image.Pt(16, 12), sink.sizes[0])
	assert.Equal(t, 1, sink.closes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "input.png", entries[0].Name())
}

func TestRunner_VideoPreservesFrameCount(t *testing.T) {
	dir := t.TempDir()
	in := writeClip(t, dir, 10)
	out := filepath.Join(dir, "median.avi")

	sink, err := NewVideoFileSink(out, "MJPG", nil)
	require.NoError(t, err)

	source := OpenSource(in, nil)
	_, isVideo := source.(*VideoSource)
	require.True(t, isVideo)

	tracker := timing.NewTracker()
	runner := NewRunner(source, buildTimedChain(t, tracker, "grayscale", "median"), sink, tracker, nil)
	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.FramesRead)
	assert.Equal(t, 10, stats.FramesWritten)
	assert.Equal(t, 10, sink.Written())
	assert.Equal(t, 10, countFrames(t, out))

	names := make([]string, 0, len(stats.Stages))
	for _, s := range stats.Stages {
		names = append(names, s.Operation)
		assert.Equal(t, 10, s.Count)
	}
	assert.ElementsMatch(t, []string{"grayscale", "median"}, names)
}

func TestRunner_TemporalStageKeepsFrameCount(t *testing.T) {
	dir := t.TempDir()
	in := writeClip(t, dir, 10)
	out := filepath.Join(dir, "diff.avi")

	sink, err := NewVideoFileSink(out, "MJPG", nil)
	require.NoError(t, err)

	runner := NewRunner(OpenSource(in, nil), buildChain(t, "grayscale", "framediff"), sink, nil, nil)
	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.FramesWritten)
	assert.Equal(t, 10, countFrames(t, out))
}

func TestVideoSource_Properties(t *testing.T) {
	dir := t.TempDir()
	in := writeClip(t, dir, 4)

	source := NewVideoSource(in, nil)
	require.NoError(t, source.Open(context.Background()))
	defer source.Close()

	props := source.Properties()
	assert.Equal(t, 64, props.Width)
	assert.Equal(t, 48, props.Height)
	assert.InDelta(t, 10, props.FPS, 0.01)
	assert.False(t, props.Still)

	first, err := source.Next(context.Background())
	require.NoError(t, err)
	defer first.Close()
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, frame.BGR8, first.Format())
}

func TestRunner_InvalidParameterFailsBeforeSourceOpens(t *testing.T) {
	stage, err := filters.Build("median", filters.Params{"radius": 0})
	require.NoError(t, err)

	source := &fakeSource{count: 3}
	sink := &recordingSink{}
	runner := NewRunner(source, chain.NewProcessingChain([]chain.Stage{stage}, nil, nil), sink, nil, nil)

	_, err = runner.Run(context.Background())
	var cfgErr *StageConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "median", cfgErr.Stage)
	assert.Zero(t, source.opens)
	assert.False(t, sink.opened)
}

func TestRunner_SinkFormatCheckedUpFront(t *testing.T) {
	source := &fakeSource{count: 1}
	runner := NewRunner(source, buildChain(t, "curvatureflow"), &recordingSink{}, nil, nil)

	_, err := runner.Run(context.Background())
	var cfgErr *StageConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sink", cfgErr.Stage)
	assert.Zero(t, source.opens)
}

func TestRunner_MissingInputLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"missing.png", "missing.avi"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(dir, "out.png")
			sink, err := NewStillFileSink(out, nil)
			require.NoError(t, err)

			runner := NewRunner(OpenSource(filepath.Join(dir, name), nil), buildChain(t, "grayscale"), sink, nil, nil)
			_, err = runner.Run(context.Background())

			var openErr *SourceOpenError
			require.ErrorAs(t, err, &openErr)
			assert.ErrorIs(t, err, os.ErrNotExist)
			assert.NoFileExists(t, out)
		})
	}
}

func TestRunner_UndecodableInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.png")
	require.NoError(t, os.WriteFile(in, []byte("not an image"), 0o644))

	runner := NewRunner(OpenSource(in, nil), buildChain(t, "grayscale"), &recordingSink{}, nil, nil)
	_, err := runner.Run(context.Background())

	var openErr *SourceOpenError
	assert.ErrorAs(t, err, &openErr)
}

func TestRunner_DisplayKeyPressEndsGracefully(t *testing.T) {
	source := &fakeSource{count: 10, props: frame.Properties{Width: 8, Height: 8, FPS: 25}}
	sink := &recordingSink{cancelAfter: 3}

	runner := NewRunner(source, buildChain(t, "median"), sink, nil, nil)
	stats, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.Cancelled)
	assert.Equal(t, 3, stats.FramesRead)
	assert.Equal(t, 3, stats.FramesWritten)
	assert.Equal(t, 1, source.closes)
	assert.Equal(t, 1, sink.closes)
}

func TestRunner_ContextCancellationReleasesEverything(t *testing.T) {
	source := &fakeSource{count: 10}
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(source, buildChain(t, "framediff"), sink, nil, nil)
	stats, err := runner.Run(ctx)

	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, stats.Cancelled)
	assert.Equal(t, 1, source.closes)
	assert.Equal(t, 1, sink.closes)
	assert.Equal(t, StateClosed, runner.State())
}

func TestRunner_ReleasesEveryMat(t *testing.T) {
	tracker := memory.NewTracker(logger.Nop())
	safe.SetTracker(tracker)
	defer safe.SetTracker(nil)

	source := &fakeSource{count: 5}
	runner := NewRunner(source, buildChain(t, "framediff", "frameavg", "cast"), &recordingSink{}, nil, nil)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	stats := tracker.GetStats()
	assert.Greater(t, stats.AllocCount, int64(0))
	assert.Zero(t, stats.ActiveMats, "leaked: %v", tracker.Live())
}

func TestRunner_RunsOnce(t *testing.T) {
	runner := NewRunner(&fakeSource{count: 1}, buildChain(t), &recordingSink{}, nil, nil)
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	assert.Error(t, err)
}

func TestStillFileSink_Validation(t *testing.T) {
	_, err := NewStillFileSink("out.xyz", nil)
	assert.True(t, IsUsage(err))

	sink, err := NewStillFileSink("out.tiff", nil)
	require.NoError(t, err)
	err = sink.Open(context.Background(), frame.Properties{FPS: 25})
	var writeErr *StreamWriteError
	assert.ErrorAs(t, err, &writeErr)
}

func TestStillFileSink_EncodesEveryFormat(t *testing.T) {
	dir := t.TempDir()

	for _, ext := range []string{".png", ".jpg", ".gif", ".bmp", ".tif"} {
		t.Run(ext, func(t *testing.T) {
			out := filepath.Join(dir, "out"+ext)
			sink, err := NewStillFileSink(out, nil)
			require.NoError(t, err)
			require.NoError(t, sink.Open(context.Background(), frame.Properties{Still: true}))

			m, err := safe.NewMat(6, 9, gocv.MatTypeCV8UC3, "still")
			require.NoError(t, err)
			f := frame.New(0, m)
			defer f.Close()

			require.NoError(t, sink.Write(context.Background(), f))
			assert.Error(t, sink.Write(context.Background(), f))

			reader, err := os.Open(out)
			require.NoError(t, err)
			defer reader.Close()
			cfg, _, err := image.DecodeConfig(reader)
			require.NoError(t, err)
			assert.Equal(t, 9, cfg.Width)
			assert.Equal(t, 6, cfg.Height)
		})
	}
}

func TestVideoFileSink_Validation(t *testing.T) {
	_, err := NewVideoFileSink("out.avi", "MJPEG", nil)
	assert.True(t, IsUsage(err))

	_, err = NewVideoFileSink("out", "MJPG", nil)
	assert.True(t, IsUsage(err))

	sink, err := NewVideoFileSink(filepath.Join(t.TempDir(), "never.avi"), "", nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
}

func TestFrameDelay(t *testing.T) {
	assert.Equal(t, 0, FrameDelay(frame.Properties{Still: true}))
	assert.Equal(t, 40, FrameDelay(frame.Properties{FPS: 25}))
	assert.Equal(t, 33, FrameDelay(frame.Properties{FPS: 30}))
	assert.Equal(t, 40, FrameDelay(frame.Properties{}))
	assert.Equal(t, 1, FrameDelay(frame.Properties{FPS: 5000}))
}

func TestIsStillPath(t *testing.T) {
	assert.True(t, IsStillPath("a/b/c.PNG"))
	assert.True(t, IsStillPath("x.tiff"))
	assert.False(t, IsStillPath("x.avi"))
	assert.False(t, IsStillPath("x"))
}
