package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAssignsPositionsInOrder(t *testing.T) {
	assert := assert.New(t)

	idx := New(3)

	pos, err := idx.Add([]float32{1, 0, 0})
	assert.NoError(err)
	assert.Equal(0, pos)

	pos, err = idx.Add([]float32{0, 1, 0})
	assert.NoError(err)
	assert.Equal(1, pos)

	assert.Equal(2, idx.Count())
}

func TestAddRejectsWrongDimension(t *testing.T) {
	assert := assert.New(t)

	idx := New(3)

	_, err := idx.Add([]float32{1, 0})
	assert.ErrorIs(err, ErrDimensionMismatch)
	assert.Equal(0, idx.Count())
}

func TestSearchOrdersByDescendingScore(t *testing.T) {
	assert := assert.New(t)

	idx := New(2)
	idx.Add([]float32{1, 0})
	idx.Add([]float32{0, 1})
	idx.Add([]float32{0.5, 0.5})

	results, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Len(results, 3)
	assert.Equal(0, results[0].Position)
	assert.Equal(float32(1), results[0].Score)
	assert.Equal(2, results[1].Position)
	assert.Equal(1, results[2].Position)
}

func TestSearchCapsAtK(t *testing.T) {
	assert := assert.New(t)

	idx := New(2)
	idx.Add([]float32{1, 0})
	idx.Add([]float32{0, 1})

	results, err := idx.Search([]float32{1, 0}, 1)
	assert.NoError(err)
	assert.Len(results, 1)
}

func TestSearchEmptyIndex(t *testing.T) {
	assert := assert.New(t)

	idx := New(4)

	results, err := idx.Search([]float32{1, 0, 0, 0}, 5)
	assert.NoError(err)
	assert.Empty(results)
}

func TestSearchRejectsWrongDimension(t *testing.T) {
	assert := assert.New(t)

	idx := New(4)

	_, err := idx.Search([]float32{1, 0}, 5)
	assert.ErrorIs(err, ErrDimensionMismatch)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	assert := assert.New(t)

	idx := New(2)
	idx.Add([]float32{1, 0})
	idx.Add([]float32{0.3, 0.7})

	data, err := idx.Snapshot()
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	restored := New(2)
	if err := restored.Restore(data); err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.Equal(2, restored.Count())

	results, err := restored.Search([]float32{0.3, 0.7}, 1)
	assert.NoError(err)
	assert.Equal(1, results[0].Position)
}

func TestRestoreRejectsWrongDimension(t *testing.T) {
	assert := assert.New(t)

	idx := New(2)
	idx.Add([]float32{1, 0})

	data, err := idx.Snapshot()
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	other := New(3)
	err = other.Restore(data)
	assert.ErrorIs(err, ErrDimensionMismatch)
	assert.Equal(0, other.Count(), "failed restore should leave the index unchanged")
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)

	v := Normalize([]float32{3, 4})
	assert.InDelta(0.6, v[0], 0.0001)
	assert.InDelta(0.8, v[1], 0.0001)

	zero := Normalize([]float32{0, 0})
	assert.Equal([]float32{0, 0}, zero)
}

func TestCombine(t *testing.T) {
	assert := assert.New(t)

	combined, err := Combine([]float32{1, 0}, []float32{0, 1}, 0.5)
	if err != nil {
		assert.Fail(err.Error())
		return
	}

	assert.InDelta(1.0, float64(Norm(combined)), 0.0001, "combined vector should be unit length")
	assert.InDelta(combined[0], combined[1], 0.0001)
}

func TestCombineFullUserWeight(t *testing.T) {
	assert := assert.New(t)

	user := []float32{0, 2}

	combined, err := Combine([]float32{1, 0}, user, 1)
	assert.NoError(err)
	assert.InDelta(0, combined[0], 0.0001)
	assert.InDelta(1, combined[1], 0.0001)
}

func TestCombineRejectsMismatchedDimensions(t *testing.T) {
	assert := assert.New(t)

	_, err := Combine([]float32{1, 0}, []float32{1, 0, 0}, 0.5)
	assert.ErrorIs(err, ErrDimensionMismatch)
}

func TestDot(t *testing.T) {
	got := Dot([]float32{1, 2, 3}, []float32{4, 5, 6})
	if math.Abs(float64(got-32)) > 0.0001 {
		t.Errorf("Dot = %v, want 32", got)
	}
}
