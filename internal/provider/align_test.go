package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

func TestIoU(t *testing.T) {
	tests := []struct {
		name string
		a, b domain.BoundingBox
		want float64
	}{
		{
			name: "identical boxes",
			a:    domain.BoundingBox{Top: 0, Right: 10, Bottom: 10, Left: 0},
			b:    domain.BoundingBox{Top: 0, Right: 10, Bottom: 10, Left: 0},
			want: 1.0,
		},
		{
			name: "disjoint boxes",
			a:    domain.BoundingBox{Top: 0, Right: 10, Bottom: 10, Left: 0},
			b:    domain.BoundingBox{Top: 20, Right: 30, Bottom: 30, Left: 20},
			want: 0,
		},
		{
			name: "half overlap",
			a:    domain.BoundingBox{Top: 0, Right: 10, Bottom: 10, Left: 0},
			b:    domain.BoundingBox{Top: 0, Right: 15, Bottom: 10, Left: 5},
			want: 50.0 / 150.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IoU(tt.a, tt.b), 1e-9)
		})
	}
}

func TestAlign(t *testing.T) {
	left := domain.BoundingBox{Top: 0, Right: 100, Bottom: 100, Left: 0}
	right := domain.BoundingBox{Top: 0, Right: 300, Bottom: 100, Left: 200}
	nowhere := domain.BoundingBox{Top: 500, Right: 600, Bottom: 600, Left: 500}

	found := []domain.BoundingBox{right, left}
	encodings := []domain.Encoding{{2}, {1}}

	aligned := Align([]domain.BoundingBox{left, right, nowhere}, found, encodings)
	require.Len(t, aligned, 3)
	assert.Equal(t, domain.Encoding{1}, aligned[0])
	assert.Equal(t, domain.Encoding{2}, aligned[1])
	assert.Nil(t, aligned[2])
}

func TestAlign_FaceUsedOnce(t *testing.T) {
	box := domain.BoundingBox{Top: 0, Right: 100, Bottom: 100, Left: 0}

	aligned := Align([]domain.BoundingBox{box, box}, []domain.BoundingBox{box}, []domain.Encoding{{1}})
	assert.Equal(t, domain.Encoding{1}, aligned[0])
	assert.Nil(t, aligned[1])
}

func TestNop(t *testing.T) {
	ctx := context.Background()

	boxes, err := Nop{}.DetectFaces(ctx, []byte("frame"))
	require.NoError(t, err)
	assert.Empty(t, boxes)

	encodings, err := Nop{}.EncodeFaces(ctx, []byte("frame"), nil)
	require.NoError(t, err)
	assert.Empty(t, encodings)
}

type stubDetector struct{ boxes []domain.BoundingBox }

func (s stubDetector) DetectFaces(ctx context.Context, image []byte) ([]domain.BoundingBox, error) {
	return s.boxes, nil
}

func TestCombine(t *testing.T) {
	box := domain.BoundingBox{Top: 1, Right: 2, Bottom: 3, Left: 0}
	backend := Combine(stubDetector{boxes: []domain.BoundingBox{box}}, Nop{})

	boxes, err := backend.DetectFaces(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.BoundingBox{box}, boxes)

	encodings, err := backend.EncodeFaces(context.Background(), nil, boxes)
	require.NoError(t, err)
	assert.Len(t, encodings, 1)
	assert.Nil(t, encodings[0])
}
