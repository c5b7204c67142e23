// Package display shows pipeline output in a Fyne window.
package display

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/frame"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/logger"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/conversion"
	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
)

const AppID = "org.insightsoftwareconsortium.bridgetutorial"

// RunWithFyne runs body on a worker goroutine while the Fyne event loop owns the main
// goroutine, and returns body's error once the loop has stopped.
func RunWithFyne(body func(a fyne.App) error) error {
	a := app.NewWithID(AppID)

	done := make(chan error, 1)
	go func() {
		err := body(a)
		done <- err
		fyne.Do(a.Quit)
	}()

	a.Run()
	return <-done
}

// FyneSink is the Fyne counterpart of the highgui window: frames are paced at the source
// rate and any key press or closing the window ends the stream.
type FyneSink struct {
	app    fyne.App
	title  string
	logger logger.Logger

	window fyne.Window
	image  *canvas.Image
	delay  time.Duration
	keys   chan fyne.KeyName
	closed chan struct{}
	once   sync.Once
	shown  int
}

func NewFyneSink(a fyne.App, title string, log logger.Logger) *FyneSink {
	if log == nil {
		log = logger.Nop()
	}
	return &FyneSink{
		app:    a,
		title:  title,
		logger: log,
		keys:   make(chan fyne.KeyName, 1),
		closed: make(chan struct{}),
	}
}

func (s *FyneSink) Path() string {
	return "fyne:" + s.title
}

func (s *FyneSink) Accepts() frame.Format {
	return frame.Format{Depth: frame.DepthU8}
}

func (s *FyneSink) Open(ctx context.Context, props frame.Properties) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.delay = time.Duration(pipeline.FrameDelay(props)) * time.Millisecond

	fyne.DoAndWait(func() {
		s.image = canvas.NewImageFromImage(nil)
		s.image.FillMode = canvas.ImageFillContain
		if props.Width > 0 && props.Height > 0 {
			s.image.SetMinSize(fyne.NewSize(float32(props.Width), float32(props.Height)))
		}

		s.window = s.app.NewWindow(s.title)
		s.window.SetContent(s.image)
		s.window.Canvas().SetOnTypedKey(s.onKey)
		s.window.SetOnClosed(s.markClosed)
		s.window.Show()
	})

	s.logger.Debug("FyneSink", "window opened", map[string]interface{}{
		"title":    s.title,
		"delay_ms": s.delay.Milliseconds(),
	})
	return nil
}

func (s *FyneSink) onKey(ev *fyne.KeyEvent) {
	select {
	case s.keys <- ev.Name:
	default:
	}
}

func (s *FyneSink) markClosed() {
	s.once.Do(func() { close(s.closed) })
}

func (s *FyneSink) Write(ctx context.Context, f *frame.Frame) error {
	select {
	case <-s.closed:
		return pipeline.ErrCancelled
	default:
	}
	if s.window == nil {
		return &pipeline.StreamWriteError{Path: s.Path(), Index: f.Index, Err: fmt.Errorf("window not open")}
	}

	img, err := conversion.FromProcessing(f.Mat)
	if err != nil {
		return &pipeline.StreamWriteError{Path: s.Path(), Index: f.Index, Err: err}
	}
	if err := s.show(ctx, img); err != nil {
		return err
	}

	var tick <-chan time.Time
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		defer timer.Stop()
		tick = timer.C
	}

	select {
	case key := <-s.keys:
		s.logger.Debug("FyneSink", "key pressed", map[string]interface{}{
			"key":   string(key),
			"frame": f.Index,
		})
		return pipeline.ErrCancelled
	case <-s.closed:
		return pipeline.ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	case <-tick:
		return nil
	}
}

// show hands img to the event loop and waits for it to be drawn. The window may close
// while the update is queued, after which the loop no longer runs it.
func (s *FyneSink) show(ctx context.Context, img image.Image) error {
	select {
	case <-s.closed:
		return pipeline.ErrCancelled
	default:
	}

	drawn := make(chan struct{})
	fyne.Do(func() {
		s.image.Image = img
		s.image.Refresh()
		close(drawn)
	})

	select {
	case <-drawn:
		s.shown++
		return nil
	case <-s.closed:
		return pipeline.ErrCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shown is the number of frames put on screen.
func (s *FyneSink) Shown() int {
	return s.shown
}

func (s *FyneSink) Close() error {
	if s.window == nil {
		return nil
	}
	select {
	case <-s.closed:
	default:
		fyne.Do(func() {
			s.window.Close()
			s.markClosed()
		})
		<-s.closed
	}
	return nil
}
