package probe

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/pipeline"
)

func TestFile_Still(t *testing.T) {
	path := filepath.Join(t.TempDir(), "still.png")
	img := image.NewGray(image.Rect(0, 0, 20, 10))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	report, err := File(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, KindStill, report.Kind)
	assert.Equal(t, 20, report.Width)
	assert.Equal(t, 10, report.Height)
	assert.Equal(t, 1, report.Channels)
	assert.Equal(t, 1, report.Decoded)
	assert.Nil(t, report.Container)
	assert.Contains(t, report.Describe(), "still 20x10")
}

func TestFile_Video(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.avi")
	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(i*30), 80, 160, 0), 48, 64, gocv.MatTypeCV8UC3)
		require.NoError(t, writer.Write(m))
		m.Close()
	}
	require.NoError(t, writer.Close())

	report, err := File(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, KindVideo, report.Kind)
	assert.Equal(t, 64, report.Width)
	assert.Equal(t, 48, report.Height)
	assert.Equal(t, 3, report.Channels)
	assert.Equal(t, 6, report.Decoded)
	assert.InDelta(t, 10.0, report.FPS, 0.01)
	assert.Equal(t, 6, report.Fields()["frames"])
}

func TestFile_Missing(t *testing.T) {
	_, err := File(context.Background(), filepath.Join(t.TempDir(), "absent.avi"), nil)

	var openErr *pipeline.SourceOpenError
	assert.True(t, errors.As(err, &openErr))
}

func fragmentedMP4(t *testing.T, samples int) []byte {
	t.Helper()

	initSeg := mp4.CreateEmptyInit()
	initSeg.AddEmptyTrack(1000, "video", "en")
	trak := initSeg.Moov.Trak
	trak.Mdia.Minf.Stbl.Stsd.AddChild(mp4.CreateVisualSampleEntryBox("av01", 64, 48, &mp4.Av1CBox{}))
	trak.Tkhd.Width = mp4.Fixed32(64 << 16)
	trak.Tkhd.Height = mp4.Fixed32(48 << 16)

	frag, err := mp4.CreateFragment(1, 1)
	require.NoError(t, err)
	for i := 0; i < samples; i++ {
		data := []byte{0x12, 0x00, byte(i)}
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: mp4.SyncSampleFlags,
				Size:  uint32(len(data)),
				Dur:   40,
			},
			DecodeTime: uint64(i * 40),
			Data:       data,
		})
	}

	var buf bytes.Buffer
	require.NoError(t, mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "av01"}).Encode(&buf))
	require.NoError(t, initSeg.Moov.Encode(&buf))
	require.NoError(t, frag.Encode(&buf))
	return buf.Bytes()
}

func TestMP4_Fragmented(t *testing.T) {
	info, err := MP4(bytes.NewReader(fragmentedMP4(t, 5)))
	require.NoError(t, err)

	assert.True(t, info.Fragmented)
	assert.Equal(t, "av1", info.Codec)
	assert.Equal(t, 64, info.Width)
	assert.Equal(t, 48, info.Height)
	assert.Equal(t, 5, info.Samples)
	assert.Equal(t, uint32(1000), info.Timescale)
	assert.Equal(t, 200*time.Millisecond, info.Duration)
}

func TestMP4_FragmentedTrackWithoutHeader(t *testing.T) {
	file, err := mp4.DecodeFile(bytes.NewReader(fragmentedMP4(t, 3)))
	require.NoError(t, err)
	require.True(t, file.IsFragmented())
	file.Init.Moov.Traks[0].Tkhd = nil

	_, err = fragmentedInfo(file)
	assert.ErrorContains(t, err, "tkhd")
}

func TestMP4File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, fragmentedMP4(t, 2), 0o644))

	info, err := MP4File(path)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Samples)

	_, err = MP4File(filepath.Join(t.TempDir(), "none.mp4"))
	assert.Error(t, err)
}

func TestMP4_Rejects(t *testing.T) {
	_, err := MP4(bytes.NewReader([]byte("not an mp4 at all")))
	assert.Error(t, err)
}

func TestIsMP4Path(t *testing.T) {
	assert.True(t, IsMP4Path("a/b.MP4"))
	assert.True(t, IsMP4Path("x.mov"))
	assert.False(t, IsMP4Path("x.avi"))
	assert.False(t, IsMP4Path("x.png"))
}

func TestReport_Describe(t *testing.T) {
	r := Report{
		Path:       "clip.mp4",
		Kind:       KindVideo,
		Width:      64,
		Height:     48,
		Channels:   3,
		FPS:        25,
		Advertised: 12,
		Decoded:    10,
		Container:  &ContainerInfo{Codec: "h264", Samples: 12, Duration: time.Second},
	}
	d := r.Describe()
	assert.Contains(t, d, "10 frames decoded (12 advertised)")
	assert.Contains(t, d, "h264, 12 samples, 1s")
}
