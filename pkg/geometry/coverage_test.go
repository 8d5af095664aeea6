package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvexHullDropsInteriorPoints(t *testing.T) {
	pts := []Point2D{
		{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 2, Y: 1}, {X: 4, Y: 4}, {X: 1, Y: 2}, {X: 0, Y: 4}, {X: 2, Y: 0},
	}
	hull := ConvexHull(pts)
	require.Len(t, hull, 4)
	assert.Equal(t, Point2D{X: 0, Y: 0}, hull[0])
	assert.ElementsMatch(t, []Point2D{{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 4}, {X: 0, Y: 4}}, hull)
}

func TestPointInPolygon(t *testing.T) {
	square := []Point2D{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}
	assert.True(t, PointInPolygon(Point2D{X: 5, Y: 5}, square))
	assert.False(t, PointInPolygon(Point2D{X: 15, Y: 5}, square))
	assert.False(t, PointInPolygon(Point2D{X: 5, Y: 5}, square[:2]))
}

func TestCoverage(t *testing.T) {
	size := NewSize(100, 100)
	leftHalf := []Point2D{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 100}, {X: 0, Y: 100}, {X: 25, Y: 50}}
	topLeft := []Point2D{{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 50}, {X: 0, Y: 50}}
	right := []Point2D{{X: 50, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 100}, {X: 50, Y: 100}}

	assert.InDelta(t, 0.5, Coverage(size, [][]Point2D{leftHalf}, 10), 1e-9)
	assert.InDelta(t, 0.5, Coverage(size, [][]Point2D{leftHalf, topLeft}, 10), 1e-9)
	assert.InDelta(t, 1.0, Coverage(size, [][]Point2D{leftHalf, right}, 10), 1e-9)
	assert.Zero(t, Coverage(size, nil, 10))
	assert.Zero(t, Coverage(Size{}, [][]Point2D{leftHalf}, 10))
}
