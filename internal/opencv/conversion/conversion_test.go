package conversion

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

func gradientGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x*31 + y*17) % 256)})
		}
	}
	return img
}

func TestToProcessing_GrayRoundTripIsExact(t *testing.T) {
	src := gradientGray(13, 7)

	m, err := ToProcessing(src)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, gocv.MatTypeCV8UC1, m.Type())
	assert.Equal(t, 13, m.Cols())
	assert.Equal(t, 7, m.Rows())

	back, err := FromProcessing(m)
	require.NoError(t, err)

	gray, ok := back.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, src.Bounds(), gray.Bounds())
	assert.Equal(t, src.Pix, gray.Pix)
}

func TestToProcessing_ColorRoundTripIsExact(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 5; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 50), G: uint8(y * 60), B: uint8(x + y), A: 255})
		}
	}

	m, err := ToProcessing(src)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, gocv.MatTypeCV8UC3, m.Type())

	// BGR ordering on the processing side.
	mat := m.GetMat()
	assert.Equal(t, uint8(4+1), mat.GetUCharAt(1, 4*3+0))
	assert.Equal(t, uint8(60), mat.GetUCharAt(1, 4*3+1))
	assert.Equal(t, uint8(200), mat.GetUCharAt(1, 4*3+2))

	back, err := FromProcessing(m)
	require.NoError(t, err)
	rgba, ok := back.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, src.Pix, rgba.Pix)
}

func TestToProcessing_TranslucentKeepsAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	src.SetNRGBA(1, 1, color.NRGBA{R: 200, G: 100, B: 50, A: 255})

	m, err := ToProcessing(src)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, gocv.MatTypeCV8UC4, m.Type())

	back, err := FromProcessing(m)
	require.NoError(t, err)
	nrgba, ok := back.(*image.NRGBA)
	require.True(t, ok)
	assert.Equal(t, src.Pix, nrgba.Pix)
}

func TestToProcessing_SubImageHonoursBounds(t *testing.T) {
	full := gradientGray(10, 10)
	sub := full.SubImage(image.Rect(2, 3, 6, 8)).(*image.Gray)

	m, err := ToProcessing(sub)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 4, m.Cols())
	assert.Equal(t, 5, m.Rows())
	mat := m.GetMat()
	assert.Equal(t, full.GrayAt(2, 3).Y, mat.GetUCharAt(0, 0))
	assert.Equal(t, full.GrayAt(5, 7).Y, mat.GetUCharAt(4, 3))
}

func TestToProcessing_Gray16KeepsHighByte(t *testing.T) {
	src := image.NewGray16(image.Rect(0, 0, 1, 1))
	src.SetGray16(0, 0, color.Gray16{Y: 0xAB12})

	m, err := ToProcessing(src)
	require.NoError(t, err)
	defer m.Close()

	mat := m.GetMat()
	assert.Equal(t, uint8(0xAB), mat.GetUCharAt(0, 0))
}

func TestToProcessing_RejectsEmpty(t *testing.T) {
	_, err := ToProcessing(nil)
	assert.Error(t, err)

	_, err = ToProcessing(image.NewGray(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}

func TestFromProcessing_FloatSaturatesAndRounds(t *testing.T) {
	m, err := safe.NewMat(1, 4, gocv.MatTypeCV32FC1, "float")
	require.NoError(t, err)
	defer m.Close()

	mat := m.GetMat()
	mat.SetFloatAt(0, 0, -12.5)
	mat.SetFloatAt(0, 1, 300)
	mat.SetFloatAt(0, 2, 41.6)
	mat.SetFloatAt(0, 3, 99.2)

	img, err := FromProcessing(m)
	require.NoError(t, err)
	gray := img.(*image.Gray)

	assert.Equal(t, []uint8{0, 255, 42, 99}, gray.Pix)
}

func TestRescale_MapsRangeOntoTarget(t *testing.T) {
	m, err := safe.NewMat(1, 3, gocv.MatTypeCV32FC1, "float")
	require.NoError(t, err)
	defer m.Close()

	mat := m.GetMat()
	mat.SetFloatAt(0, 0, -1)
	mat.SetFloatAt(0, 1, 0)
	mat.SetFloatAt(0, 2, 1)

	out, err := Rescale(m, 0, 255)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, gocv.MatTypeCV8UC1, out.Type())
	outMat := out.GetMat()
	assert.Equal(t, uint8(0), outMat.GetUCharAt(0, 0))
	assert.InDelta(t, 128, int(outMat.GetUCharAt(0, 1)), 1)
	assert.Equal(t, uint8(255), outMat.GetUCharAt(0, 2))
}

func TestRescale_ConstantMapsToLower(t *testing.T) {
	m, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC1, "flat")
	require.NoError(t, err)
	defer m.Close()
	mat := m.GetMat()
	mat.SetTo(gocv.NewScalar(77, 0, 0, 0))

	out, err := Rescale(m, 10, 200)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 4, countEqual(out, 10))
}

func TestToGrayAndToBGR(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	m, err := ToProcessing(src)
	require.NoError(t, err)
	defer m.Close()

	gray, err := ToGray(m)
	require.NoError(t, err)
	defer gray.Close()
	assert.Equal(t, 1, gray.Channels())
	assert.Equal(t, 9, countEqual(gray, 255))

	bgr, err := ToBGR(gray)
	require.NoError(t, err)
	defer bgr.Close()
	assert.Equal(t, 3, bgr.Channels())
	assert.Equal(t, 3, bgr.Cols())
}

func TestConvertDepth_SameTypeClones(t *testing.T) {
	m, err := safe.NewMat(2, 2, gocv.MatTypeCV8UC3, "u8")
	require.NoError(t, err)
	defer m.Close()

	out, err := ConvertDepth(m, gocv.MatTypeCV8U)
	require.NoError(t, err)
	defer out.Close()
	assert.NotEqual(t, m.ID(), out.ID())

	f, err := ConvertDepth(m, gocv.MatTypeCV32F)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, gocv.MatTypeCV32FC3, f.Type())
}

func countEqual(m *safe.Mat, v uint8) int {
	mat := m.GetMat()
	n := 0
	for _, b := range mat.ToBytes() {
		if b == v {
			n++
		}
	}
	return n
}
