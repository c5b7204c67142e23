package safe

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type countingTracker struct {
	mu    sync.Mutex
	alloc int
	freed int
}

func (c *countingTracker) TrackAllocation(uint64, int64, string) {
	c.mu.Lock()
	c.alloc++
	c.mu.Unlock()
}

func (c *countingTracker) TrackDeallocation(uint64, string) {
	c.mu.Lock()
	c.freed++
	c.mu.Unlock()
}

func TestMat_CloseIsIdempotent(t *testing.T) {
	tracker := &countingTracker{}
	SetTracker(tracker)
	defer SetTracker(nil)

	m, err := NewMat(4, 6, gocv.MatTypeCV8UC1, "test")
	require.NoError(t, err)
	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 6, m.Cols())

	m.Close()
	m.Close()

	assert.False(t, m.IsValid())
	assert.True(t, m.Empty())
	assert.Equal(t, 1, tracker.alloc)
	assert.Equal(t, 1, tracker.freed)
}

func TestNewMat_RejectsBadDimensions(t *testing.T) {
	_, err := NewMat(0, 3, gocv.MatTypeCV8UC1, "bad")
	assert.Error(t, err)
}

func TestWrap_TakesOwnership(t *testing.T) {
	raw := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8UC3)
	m, err := Wrap(raw, "wrapped")
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 3, m.Channels())
	assert.Equal(t, "wrapped", m.Tag())
}

func TestWrap_EmptyFails(t *testing.T) {
	_, err := Wrap(gocv.NewMat(), "empty")
	assert.Error(t, err)
}

func TestClone_IsIndependent(t *testing.T) {
	m, err := NewMat(2, 2, gocv.MatTypeCV8UC1, "src")
	require.NoError(t, err)
	defer m.Close()
	original := m.GetMat()
	original.SetUCharAt(0, 0, 10)

	c, err := m.Clone("copy")
	require.NoError(t, err)
	defer c.Close()

	copied := c.GetMat()
	copied.SetUCharAt(0, 0, 200)
	assert.Equal(t, uint8(10), original.GetUCharAt(0, 0))
	assert.NotEqual(t, m.ID(), c.ID())
}

func TestValidateMatForOperation(t *testing.T) {
	assert.Error(t, ValidateMatForOperation(nil, "op"))

	m, err := NewMat(2, 2, gocv.MatTypeCV8UC1, "v")
	require.NoError(t, err)
	assert.NoError(t, ValidateMatForOperation(m, "op"))

	m.Close()
	assert.Error(t, ValidateMatForOperation(m, "op"))
}

func TestValidateSameGeometry(t *testing.T) {
	a, err := NewMat(2, 2, gocv.MatTypeCV8UC1, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewMat(2, 3, gocv.MatTypeCV8UC1, "b")
	require.NoError(t, err)
	defer b.Close()

	assert.Error(t, ValidateSameGeometry(a, b, "diff"))
	assert.NoError(t, ValidateSameGeometry(a, a, "diff"))
}
