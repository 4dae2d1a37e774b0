package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, Landscape, Classify(Box{0, 0, 800, 600}))
	assert.Equal(t, Portrait, Classify(Box{0, 0, 600, 800}))
	// square resolves to landscape
	assert.Equal(t, Landscape, Classify(Box{0, 0, 500, 500}))
}

func TestSplitLandscape(t *testing.T) {
	halves, err := Split(Box{LLX: 0, LLY: 0, URX: 800, URY: 600})
	require.NoError(t, err)

	assert.Equal(t, Left, halves[0].Region)
	assert.Equal(t, Box{0, 0, 400, 600}, halves[0].Box)
	assert.Equal(t, Right, halves[1].Region)
	assert.Equal(t, Box{400, 0, 800, 600}, halves[1].Box)
}

func TestSplitPortrait(t *testing.T) {
	halves, err := Split(Box{LLX: 0, LLY: 0, URX: 600, URY: 800})
	require.NoError(t, err)

	assert.Equal(t, Top, halves[0].Region)
	assert.Equal(t, Box{0, 400, 600, 800}, halves[0].Box)
	assert.Equal(t, Bottom, halves[1].Region)
	assert.Equal(t, Box{0, 0, 600, 400}, halves[1].Box)
}

func TestSplitOffsetOrigin(t *testing.T) {
	// trim boxes do not necessarily start at the origin
	halves, err := Split(Box{LLX: 10, LLY: 20, URX: 850, URY: 620})
	require.NoError(t, err)

	assert.Equal(t, Box{10, 20, 430, 620}, halves[0].Box)
	assert.Equal(t, Box{430, 20, 850, 620}, halves[1].Box)
}

func TestSplitSharesBoundary(t *testing.T) {
	// odd extents: the halving division rounds, but both halves must still
	// share the exact same boundary coordinate and sum to the original.
	boxes := []Box{
		{0, 0, 801.5, 600},
		{0, 0, 600, 801.5},
		{3.25, 7.75, 614.5, 420.25},
	}
	for _, b := range boxes {
		halves, err := Split(b)
		require.NoError(t, err)

		if Classify(b) == Landscape {
			assert.Equal(t, halves[0].Box.URX, halves[1].Box.LLX)
			assert.InDelta(t, b.Width(), halves[0].Box.Width()+halves[1].Box.Width(), 1e-9)
			assert.Equal(t, b.Height(), halves[0].Box.Height())
			assert.Equal(t, b.Height(), halves[1].Box.Height())
		} else {
			assert.Equal(t, halves[1].Box.URY, halves[0].Box.LLY)
			assert.InDelta(t, b.Height(), halves[0].Box.Height()+halves[1].Box.Height(), 1e-9)
			assert.Equal(t, b.Width(), halves[0].Box.Width())
			assert.Equal(t, b.Width(), halves[1].Box.Width())
		}
	}
}

func TestSplitDeterministic(t *testing.T) {
	b := Box{0, 0, 800, 600}
	first, err := Split(b)
	require.NoError(t, err)
	second, err := Split(b)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplitMalformed(t *testing.T) {
	for _, b := range []Box{
		{0, 0, 0, 600},    // zero width
		{0, 0, 600, 0},    // zero height
		{100, 0, 50, 600}, // inverted x
		{0, 200, 600, 50}, // inverted y
	} {
		_, err := Split(b)
		require.Error(t, err)
		var mg *MalformedGeometryError
		assert.ErrorAs(t, err, &mg)
	}
}
