package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/stretchr/testify/require"

	"plate-mask/config"
	"plate-mask/internal/domain/entity"
)

type fakeTextAPI struct {
	out   *rekognition.DetectTextOutput
	err   error
	calls int
}

func (f *fakeTextAPI) DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error) {
	f.calls++
	if len(params.Image.Bytes) == 0 {
		return nil, errors.New("empty image bytes")
	}
	return f.out, f.err
}

func textLine(text string, conf, left, top, width, height float32) types.TextDetection {
	return types.TextDetection{
		DetectedText: aws.String(text),
		Type:         types.TextTypesLine,
		Confidence:   aws.Float32(conf),
		Geometry: &types.Geometry{BoundingBox: &types.BoundingBox{
			Left: aws.Float32(left), Top: aws.Float32(top), Width: aws.Float32(width), Height: aws.Float32(height),
		}},
	}
}

func TestRekognitionDetector_PicksPlateLines(t *testing.T) {
	api := &fakeTextAPI{out: &rekognition.DetectTextOutput{TextDetections: []types.TextDetection{
		textLine("AB 123 CD", 95, 0.25, 0.5, 0.25, 0.1),
		textLine("PARKING", 99, 0.1, 0.1, 0.3, 0.1),
		{DetectedText: aws.String("AB"), Type: types.TextTypesWord, Confidence: aws.Float32(90)},
	}}}
	d, err := NewRekognitionDetector(api, config.DefaultPlatePattern)
	require.NoError(t, err)
	require.NoError(t, d.Ready())

	regions, err := d.Detect(context.Background(), createPatternImage(400, 200))
	require.NoError(t, err)
	require.Equal(t, 1, api.calls)
	require.Len(t, regions, 1)

	r := regions[0]
	require.Equal(t, entity.PlateClass, r.Class)
	require.InDelta(t, 0.95, r.Confidence, 1e-6)
	// 100x20 пикселей плюс отступ 12%
	require.Equal(t, 88, r.XMin)
	require.Equal(t, 98, r.YMin)
	require.Equal(t, 212, r.XMax)
	require.Equal(t, 122, r.YMax)
}

func TestRekognitionDetector_ServiceError(t *testing.T) {
	api := &fakeTextAPI{err: errors.New("throttled")}
	d, err := NewRekognitionDetector(api, config.DefaultPlatePattern)
	require.NoError(t, err)

	_, err = d.Detect(context.Background(), createPatternImage(10, 10))
	require.ErrorIs(t, err, entity.ErrDetection)
}

func TestRekognitionDetector_NoClient(t *testing.T) {
	d, err := NewRekognitionDetector(nil, config.DefaultPlatePattern)
	require.NoError(t, err)
	require.ErrorIs(t, d.Ready(), entity.ErrDetection)

	_, err = d.Detect(context.Background(), createPatternImage(10, 10))
	require.ErrorIs(t, err, entity.ErrDetection)
}

func TestRekognitionDetector_BadPattern(t *testing.T) {
	_, err := NewRekognitionDetector(&fakeTextAPI{}, "([")
	require.Error(t, err)
}
