package entity

import (
	"image"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectedRegionSize(t *testing.T) {
	r := DetectedRegion{XMin: 10, YMin: 20, XMax: 18, YMax: 26}
	require.Equal(t, 8, r.Width())
	require.Equal(t, 6, r.Height())
	require.Equal(t, 48, r.Area())
	require.Equal(t, image.Rect(10, 20, 18, 26), r.Rect())
}

func TestDetectedRegionClamp_Clips(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)
	r := DetectedRegion{XMin: -5, YMin: 40, XMax: 30, YMax: 70, Class: PlateClass, Confidence: 0.8}

	got, ok := r.Clamp(bounds)
	require.True(t, ok)
	require.Equal(t, 0, got.XMin)
	require.Equal(t, 40, got.YMin)
	require.Equal(t, 30, got.XMax)
	require.Equal(t, 50, got.YMax)
	require.Equal(t, 0.8, got.Confidence)
}

func TestDetectedRegionClamp_DropsDegenerate(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 50)

	_, ok := DetectedRegion{XMin: 100, YMin: 0, XMax: 120, YMax: 10}.Clamp(bounds)
	require.False(t, ok)

	_, ok = DetectedRegion{XMin: 10, YMin: 10, XMax: 10, YMax: 20}.Clamp(bounds)
	require.False(t, ok)
}

func TestDetectedRegionAccepted(t *testing.T) {
	r := DetectedRegion{Class: PlateClass, Confidence: 0.25}
	require.True(t, r.Accepted(0.25))
	require.False(t, r.Accepted(0.3))

	r.Class = "car"
	require.False(t, r.Accepted(0))
}
