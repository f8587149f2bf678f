package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "plate-mask/internal/application"
	"plate-mask/internal/domain/entity"
	"plate-mask/internal/domain/port"
	"plate-mask/internal/infrastructure/storage"
	"plate-mask/internal/infrastructure/vision"
)

const testMaxUpload = 1 << 20

func init() {
	gin.SetMode(gin.TestMode)
}

type stubDetector struct {
	regions  []entity.DetectedRegion
	err      error
	readyErr error
}

func (s *stubDetector) Detect(ctx context.Context, img image.Image) ([]entity.DetectedRegion, error) {
	return s.regions, s.err
}

func (s *stubDetector) Ready() error {
	return s.readyErr
}

func newTestRouter(t *testing.T, detector *stubDetector, hub *Hub) *gin.Engine {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFileArtifactStore(filepath.Join(root, "uploads"), filepath.Join(root, "output"), storage.NewMemoryHistory(), nil)
	require.NoError(t, err)
	masker, err := vision.NewRegionMasker(vision.StyleFill, "#FFFFFF", 0)
	require.NoError(t, err)

	var notifier port.ArtifactNotifier
	if hub != nil {
		notifier = hub
	}
	svc := app.NewMaskingService(vision.NewCodec(4_000_000, 90), detector, masker, store, notifier,
		app.MaskingOptions{ConfidenceThreshold: 0.25}, nil)

	return NewRouter(svc, hub, RouterOptions{MaxUploadBytes: testMaxUpload, CORSOrigins: "*"}, nil)
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x / 4), G: uint8(y / 4), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func historyLen(t *testing.T, r *gin.Engine) int {
	t.Helper()
	w := serve(r, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var entries []entity.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	return len(entries)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUpload_MasksPlateAndServesArtifact(t *testing.T) {
	r := newTestRouter(t, &stubDetector{regions: []entity.DetectedRegion{
		{XMin: 10, YMin: 20, XMax: 50, YMax: 30, Class: entity.PlateClass, Confidence: 0.9},
	}}, nil)

	w := serve(r, uploadRequest(t, "file", "car.png", "image/png", testPNG(t, 64, 48)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Success", resp.Message)
	assert.Equal(t, 1, resp.Regions)
	assert.Equal(t, app.OutputURLPrefix+resp.Filename, resp.ImageURL)

	got := serve(r, httptest.NewRequest(http.MethodGet, resp.ImageURL, nil))
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "image/png", got.Header().Get("Content-Type"))

	img, err := png.Decode(bytes.NewReader(got.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 48), img.Bounds().Size())
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, color.NRGBAModel.Convert(img.At(30, 25)))

	alias := serve(r, httptest.NewRequest(http.MethodGet, "/output/"+resp.Filename, nil))
	assert.Equal(t, http.StatusOK, alias.Code)
	assert.Equal(t, got.Body.Bytes(), alias.Body.Bytes())

	assert.Equal(t, 1, historyLen(t, r))
}

func TestUpload_MasksPlateInJPEG(t *testing.T) {
	r := newTestRouter(t, &stubDetector{regions: []entity.DetectedRegion{
		{XMin: 240, YMin: 300, XMax: 400, YMax: 340, Class: entity.PlateClass, Confidence: 0.9},
	}}, nil)
	before := historyLen(t, r)

	w := serve(r, uploadRequest(t, "file", "car.jpg", "image/jpeg", testJPEG(t, 640, 480)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Success", resp.Message)
	assert.Equal(t, 1, resp.Regions)
	assert.Equal(t, ".jpg", filepath.Ext(resp.Filename))

	got := serve(r, httptest.NewRequest(http.MethodGet, resp.ImageURL, nil))
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "image/jpeg", got.Header().Get("Content-Type"))

	img, err := jpeg.Decode(bytes.NewReader(got.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(640, 480), img.Bounds().Size())

	// внутри области сжатие не даёт точного белого, проверяем с допуском
	for _, p := range []image.Point{{260, 310}, {320, 320}, {390, 330}} {
		c := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA)
		assert.GreaterOrEqual(t, c.R, uint8(240), "pixel %v", p)
		assert.GreaterOrEqual(t, c.G, uint8(240), "pixel %v", p)
		assert.GreaterOrEqual(t, c.B, uint8(240), "pixel %v", p)
	}
	// вне области изображение осталось тёмным
	outside := color.NRGBAModel.Convert(img.At(40, 40)).(color.NRGBA)
	assert.Less(t, outside.R, uint8(60))

	assert.Equal(t, before+1, historyLen(t, r))
}

func TestUpload_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		status   int
		category string
	}{
		{
			name: "text renamed as jpg",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "car.jpg", "image/jpeg", []byte("this is not an image"))
			},
			status:   http.StatusUnprocessableEntity,
			category: "decode_error",
		},
		{
			name: "text content type",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "notes.txt", "text/plain", []byte("hello"))
			},
			status:   http.StatusUnsupportedMediaType,
			category: "unsupported_media",
		},
		{
			name: "empty file",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "car.png", "image/png", nil)
			},
			status:   http.StatusBadRequest,
			category: "invalid_input",
		},
		{
			name: "wrong field",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "image", "car.png", "image/png", testPNG(t, 8, 8))
			},
			status:   http.StatusBadRequest,
			category: "invalid_input",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "file", "car.png", "image/png", make([]byte, testMaxUpload+1))
			},
			status:   http.StatusRequestEntityTooLarge,
			category: "too_large",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(t, &stubDetector{}, nil)
			w := serve(r, tc.req(t))
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.category, decodeError(t, w).Error)
			assert.Zero(t, historyLen(t, r))
		})
	}
}

func TestUpload_DetectorFailures(t *testing.T) {
	t.Run("fault", func(t *testing.T) {
		r := newTestRouter(t, &stubDetector{err: fmt.Errorf("%w: model crashed", entity.ErrDetection)}, nil)
		w := serve(r, uploadRequest(t, "file", "car.png", "image/png", testPNG(t, 16, 16)))
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "detection_error", decodeError(t, w).Error)
		assert.Zero(t, historyLen(t, r))

		health := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusServiceUnavailable, health.Code)
	})

	t.Run("timeout", func(t *testing.T) {
		r := newTestRouter(t, &stubDetector{err: fmt.Errorf("%w: no result within 1s", entity.ErrDetectionTimeout)}, nil)
		w := serve(r, uploadRequest(t, "file", "car.png", "image/png", testPNG(t, 16, 16)))
		require.Equal(t, http.StatusGatewayTimeout, w.Code)
		assert.Equal(t, "detection_timeout", decodeError(t, w).Error)
		assert.Zero(t, historyLen(t, r))
	})
}

func TestArtifact_NotFound(t *testing.T) {
	r := newTestRouter(t, &stubDetector{}, nil)
	for _, path := range []string{
		"/static/output/0190f5b6-0000-7000-8000-000000000000.png",
		"/static/output/..%2F..%2Fetc%2Fpasswd",
		"/output/whatever.jpg",
	} {
		w := serve(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestHistory_OrderAndLimit(t *testing.T) {
	r := newTestRouter(t, &stubDetector{}, nil)

	var names []string
	for i := 0; i < 4; i++ {
		w := serve(r, uploadRequest(t, "file", "car.png", "image/png", testPNG(t, 8+i, 8)))
		require.Equal(t, http.StatusOK, w.Code)
		var resp uploadResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		names = append(names, resp.Filename)
	}

	w := serve(r, httptest.NewRequest(http.MethodGet, "/history?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var entries []entity.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Equal(t, []entity.HistoryEntry{{Filename: names[2]}, {Filename: names[3]}}, entries)

	bad := serve(r, httptest.NewRequest(http.MethodGet, "/history?limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHistory_EmptyIsArray(t *testing.T) {
	r := newTestRouter(t, &stubDetector{}, nil)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &stubDetector{}, nil)
	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","detector":"ready","artifacts":0}`, w.Body.String())

	r = newTestRouter(t, &stubDetector{readyErr: fmt.Errorf("%w: model unavailable", entity.ErrDetection)}, nil)
	w = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t, &stubDetector{}, nil)
	req := httptest.NewRequest(http.MethodOptions, "/upload/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(r, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: %w", entity.ErrInvalidInput, entity.ErrUnsupportedMedia), http.StatusUnsupportedMediaType},
		{entity.ErrInvalidInput, http.StatusBadRequest},
		{entity.ErrDecode, http.StatusUnprocessableEntity},
		{entity.ErrDetection, http.StatusServiceUnavailable},
		{entity.ErrDetectionTimeout, http.StatusGatewayTimeout},
		{entity.ErrStorage, http.StatusInternalServerError},
		{entity.ErrNotFound, http.StatusNotFound},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{fmt.Errorf("%w: %w", entity.ErrCanceled, context.Canceled), statusClientClosedRequest},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := statusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}
