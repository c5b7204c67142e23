package display

import (
	"context"
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
)

func grayFrame(t *testing.T, index int) *frame.Frame {
	t.Helper()
	m, err := safe.NewMat(12, 16, gocv.MatTypeCV8UC1, "display")
	require.NoError(t, err)
	return frame.New(index, m)
}

func TestFyneSink_ShowsFramesAtSourceRate(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	sink := NewFyneSink(a, "video", nil)
	require.NoError(t, sink.Open(context.Background(), frame.Properties{Width: 16, Height: 12, FPS: 100}))
	defer sink.Close()

	for i := 0; i < 3; i++ {
		f := grayFrame(t, i)
		start := time.Now()
		require.NoError(t, sink.Write(context.Background(), f))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
		f.Close()
	}

	assert.Equal(t, 3, sink.Shown())
	require.NotNil(t, sink.image.Image)
	assert.Equal(t, image.Rect(0, 0, 16, 12), sink.image.Image.Bounds())
}

func TestFyneSink_KeyPressCancels(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	sink := NewFyneSink(a, "still", nil)
	require.NoError(t, sink.Open(context.Background(), frame.Properties{Still: true}))
	defer sink.Close()

	sink.window.Canvas().OnTypedKey()(&fyne.KeyEvent{Name: fyne.KeyEscape})

	f := grayFrame(t, 0)
	defer f.Close()
	assert.ErrorIs(t, sink.Write(context.Background(), f), pipeline.ErrCancelled)
}

func TestFyneSink_ClosedWindowCancels(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	sink := NewFyneSink(a, "closed", nil)
	require.NoError(t, sink.Open(context.Background(), frame.Properties{FPS: 25}))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	f := grayFrame(t, 0)
	defer f.Close()
	assert.ErrorIs(t, sink.Write(context.Background(), f), pipeline.ErrCancelled)
}

func TestFyneSink_ShowAfterWindowClosedReturns(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	sink := NewFyneSink(a, "gone", nil)
	require.NoError(t, sink.Open(context.Background(), frame.Properties{FPS: 25}))
	sink.markClosed()

	done := make(chan error, 1)
	go func() {
		done <- sink.show(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, pipeline.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("show blocked after the window closed")
	}
	assert.Equal(t, 0, sink.Shown())
	require.NoError(t, sink.Close())
}

func TestFyneSink_ContextStopsStillWait(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	sink := NewFyneSink(a, "ctx", nil)
	require.NoError(t, sink.Open(context.Background(), frame.Properties{Still: true}))
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := grayFrame(t, 0)
	defer f.Close()
	assert.ErrorIs(t, sink.Write(ctx, f), context.DeadlineExceeded)
}

func TestFyneSink_RejectsFloat(t *testing.T) {
	sink := NewFyneSink(nil, "fmt", nil)
	assert.False(t, sink.Accepts().Accepts(frame.GrayF32))
	assert.True(t, sink.Accepts().Accepts(frame.BGR8))
}
