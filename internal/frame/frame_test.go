package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/InsightSoftwareConsortium/ITK-OpenCV-Bridge-Tutorial/internal/opencv/safe"
)

func TestFormat_Accepts(t *testing.T) {
	assert.True(t, AnyFormat.Accepts(BGR8))
	assert.True(t, Gray8.Accepts(Gray8))
	assert.False(t, Gray8.Accepts(BGR8))
	assert.False(t, Gray8.Accepts(GrayF32))
	assert.True(t, Format{Channels: 1}.Accepts(GrayF32))
	assert.True(t, Format{Depth: DepthU8}.Accepts(BGRA8))
}

func TestFormat_Merge(t *testing.T) {
	assert.Equal(t, BGR8, AnyFormat.Merge(BGR8))
	assert.Equal(t, Format{Channels: 3, Depth: DepthF32}, Format{Depth: DepthF32}.Merge(BGR8))
}

func TestFormat_MatTypeRoundTrip(t *testing.T) {
	for _, f := range []Format{Gray8, GrayF32, BGR8, BGRA8} {
		mt, err := f.MatType()
		require.NoError(t, err)
		back, err := FormatOf(mt)
		require.NoError(t, err)
		assert.Equal(t, f, back)
	}

	_, err := AnyFormat.MatType()
	assert.Error(t, err)
}

func TestParseDepth(t *testing.T) {
	d, err := ParseDepth("float")
	require.NoError(t, err)
	assert.Equal(t, DepthF32, d)

	_, err = ParseDepth("double")
	assert.Error(t, err)
}

func TestFrame_GeometryAndDerive(t *testing.T) {
	m, err := safe.NewMat(3, 5, gocv.MatTypeCV8UC3, "frame")
	require.NoError(t, err)

	f := New(7, m)
	assert.Equal(t, 5, f.Width())
	assert.Equal(t, 3, f.Height())
	assert.Equal(t, BGR8, f.Format())

	m2, err := safe.NewMat(3, 5, gocv.MatTypeCV8UC1, "derived")
	require.NoError(t, err)
	d := f.Derive(m2)
	assert.Equal(t, 7, d.Index)

	f.Close()
	d.Close()
	assert.False(t, m.IsValid())
}
