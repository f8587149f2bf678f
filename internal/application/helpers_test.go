package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"plate-mask/internal/domain/entity"
)

// fakeDetector возвращает заранее заданный ответ
type fakeDetector struct {
	regions  []entity.DetectedRegion
	err      error
	readyErr error
	delay    time.Duration
	panicMsg string
	calls    atomic.Int32
}

func (f *fakeDetector) Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.regions, f.err
}

func (f *fakeDetector) Ready() error {
	return f.readyErr
}

// recordingNotifier запоминает уведомления
type recordingNotifier struct {
	mu      sync.Mutex
	entries []entity.HistoryEntry
}

func (n *recordingNotifier) Notify(entry entity.HistoryEntry) {
	n.mu.Lock()
	n.entries = append(n.entries, entry)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

func createGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 40, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func plateRegion(x0, y0, x1, y1 int, conf float64) entity.DetectedRegion {
	return entity.DetectedRegion{XMin: x0, YMin: y0, XMax: x1, YMax: y1, Class: entity.PlateClass, Confidence: conf}
}
