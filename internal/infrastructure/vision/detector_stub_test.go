//go:build !gocv

package vision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"plate-mask/internal/domain/entity"
)

func TestONNXDetectorStub_ReportsUnavailable(t *testing.T) {
	d := NewONNXDetector("models/LP-detection.onnx", 640, 0.45)

	require.ErrorIs(t, d.Ready(), entity.ErrDetection)

	regions, err := d.Detect(context.Background(), createPatternImage(10, 10))
	require.ErrorIs(t, err, entity.ErrDetection)
	require.Nil(t, regions)
}
