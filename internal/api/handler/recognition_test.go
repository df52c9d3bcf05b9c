package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/presenca/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
	"github.com/saturnino-fabrica-de-software/presenca/internal/roster"
	"github.com/saturnino-fabrica-de-software/presenca/internal/ws"
)

type mockRecognizer struct {
	mk mock.Mock
}

func (m *mockRecognizer) On(methodName string, arguments ...interface{}) *mock.Call {
	return m.mk.On(methodName, arguments...)
}

func (m *mockRecognizer) AssertExpectations(t mock.TestingT) bool {
	return m.mk.AssertExpectations(t)
}

func (m *mockRecognizer) Identify(ctx context.Context, frame []byte) ([]domain.DetectionResult, error) {
	args := m.mk.Called(ctx, frame)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.DetectionResult), args.Error(1)
}

func (m *mockRecognizer) Reload(ctx context.Context) (int, error) {
	args := m.mk.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockRecognizer) Roster() *roster.Store {
	args := m.mk.Called()
	return args.Get(0).(*roster.Store)
}

func (m *mockRecognizer) Mock() bool {
	return m.mk.Called().Bool(0)
}

type recordingHub struct {
	events []ws.EventType
	data   []interface{}
}

func (h *recordingHub) Broadcast(sessionID string, eventType ws.EventType, data interface{}) {
	h.events = append(h.events, eventType)
	h.data = append(h.data, data)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// Helper to create multipart form data with a custom part Content-Type
func createMultipartRequest(field string, imageContent []byte, contentType string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if imageContent != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="frame.png"`)
		h.Set("Content-Type", contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		_, _ = part.Write(imageContent)
	}

	_ = writer.WriteField("camera", "front")
	_ = writer.Close()
	return body, writer.FormDataContentType(), nil
}

func createTestApp(h *RecognitionHandler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(discardLogger())})
	app.Post("/recognize", h.Recognize)
	app.Post("/roster/reload", h.Reload)
	app.Get("/roster", h.Roster)
	return app
}

func TestRecognitionHandler_Recognize(t *testing.T) {
	frame := pngImage(t)
	box := &domain.BoundingBox{Top: 10, Right: 60, Bottom: 70, Left: 5}

	tests := []struct {
		name           string
		field          string
		imageContent   []byte
		contentType    string
		setupMock      func(*mockRecognizer)
		expectedStatus int
		expectedCode   string
		check          func(t *testing.T, resp RecognizeResponse)
	}{
		{
			name:         "identified students",
			field:        "image",
			imageContent: frame,
			contentType:  "image/png",
			setupMock: func(m *mockRecognizer) {
				m.On("Identify", mock.Anything, frame).Return([]domain.DetectionResult{
					{Identity: "s001", Confidence: 0.82, Box: box},
					{Identity: "s002", Confidence: 0.6},
				}, nil)
			},
			expectedStatus: 200,
			check: func(t *testing.T, resp RecognizeResponse) {
				require.Len(t, resp.Recognized, 2)
				assert.Equal(t, "s001", resp.Recognized[0].StudentID)
				assert.InDelta(t, 0.82, resp.Recognized[0].Confidence, 1e-9)
				require.NotNil(t, resp.Recognized[0].Position)
				assert.Equal(t, "10,60,70,5", *resp.Recognized[0].Position)
				assert.Nil(t, resp.Recognized[1].Position)
			},
		},
		{
			name:         "no faces is an empty list",
			field:        "image",
			imageContent: frame,
			contentType:  "image/png",
			setupMock: func(m *mockRecognizer) {
				m.On("Identify", mock.Anything, frame).Return([]domain.DetectionResult{}, nil)
			},
			expectedStatus: 200,
			check: func(t *testing.T, resp RecognizeResponse) {
				assert.NotNil(t, resp.Recognized)
				assert.Empty(t, resp.Recognized)
			},
		},
		{
			name:           "missing image",
			field:          "photo",
			imageContent:   frame,
			contentType:    "image/png",
			setupMock:      func(m *mockRecognizer) {},
			expectedStatus: 400,
			expectedCode:   "IMAGE_MISSING",
		},
		{
			name:           "unsupported content type",
			field:          "image",
			imageContent:   frame,
			contentType:    "image/gif",
			setupMock:      func(m *mockRecognizer) {},
			expectedStatus: 400,
			expectedCode:   "INVALID_IMAGE",
		},
		{
			name:           "undecodable image",
			field:          "image",
			imageContent:   []byte("definitely not a picture"),
			contentType:    "image/jpeg",
			setupMock:      func(m *mockRecognizer) {},
			expectedStatus: 400,
			expectedCode:   "INVALID_IMAGE",
		},
		{
			name:         "octet stream is sniffed",
			field:        "image",
			imageContent: frame,
			contentType:  "application/octet-stream",
			setupMock: func(m *mockRecognizer) {
				m.On("Identify", mock.Anything, frame).Return([]domain.DetectionResult{}, nil)
			},
			expectedStatus: 200,
		},
		{
			name:         "backend failure",
			field:        "image",
			imageContent: frame,
			contentType:  "image/png",
			setupMock: func(m *mockRecognizer) {
				m.On("Identify", mock.Anything, frame).Return(nil, errors.New("deepface down"))
			},
			expectedStatus: 503,
			expectedCode:   "BACKEND_UNAVAILABLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(mockRecognizer)
			tt.setupMock(rec)
			app := createTestApp(NewRecognitionHandler(rec, nil, discardLogger()))

			body, contentType, err := createMultipartRequest(tt.field, tt.imageContent, tt.contentType)
			require.NoError(t, err)

			req := httptest.NewRequest("POST", "/recognize", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			raw, _ := io.ReadAll(resp.Body)
			if tt.expectedCode != "" {
				var errBody struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				require.NoError(t, json.Unmarshal(raw, &errBody))
				assert.Equal(t, tt.expectedCode, errBody.Error.Code)
			}
			if tt.check != nil {
				var result RecognizeResponse
				require.NoError(t, json.Unmarshal(raw, &result))
				tt.check(t, result)
			}

			rec.AssertExpectations(t)
		})
	}
}

func TestRecognitionHandler_RecognizeWireShape(t *testing.T) {
	frame := pngImage(t)
	rec := new(mockRecognizer)
	rec.On("Identify", mock.Anything, frame).Return([]domain.DetectionResult{
		{Identity: "s009", Confidence: 1},
	}, nil)
	app := createTestApp(NewRecognitionHandler(rec, nil, discardLogger()))

	body, contentType, err := createMultipartRequest("image", frame, "image/png")
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/recognize", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"recognized":[{"student_id":"s009","confidence":1,"position":null}]}`, string(raw))
}

func TestRecognitionHandler_Reload(t *testing.T) {
	t.Run("success broadcasts", func(t *testing.T) {
		rec := new(mockRecognizer)
		rec.On("Reload", mock.Anything).Return(3, nil)
		hub := &recordingHub{}
		app := createTestApp(NewRecognitionHandler(rec, hub, discardLogger()))

		resp, err := app.Test(httptest.NewRequest("POST", "/roster/reload", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result ReloadResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, 3, result.Faces)

		assert.Equal(t, []ws.EventType{ws.EventRosterReloaded}, hub.events)
		assert.Equal(t, ReloadResponse{Faces: 3}, hub.data[0])
	})

	t.Run("failure keeps previous roster", func(t *testing.T) {
		rec := new(mockRecognizer)
		rec.On("Reload", mock.Anything).Return(0, errors.New("roster directory not found"))
		hub := &recordingHub{}
		app := createTestApp(NewRecognitionHandler(rec, hub, discardLogger()))

		resp, err := app.Test(httptest.NewRequest("POST", "/roster/reload", nil))
		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Empty(t, hub.events)
	})

	t.Run("hook runs only after success", func(t *testing.T) {
		calls := 0
		hook := WithReloadHook(func() { calls++ })

		ok := new(mockRecognizer)
		ok.On("Reload", mock.Anything).Return(2, nil)
		resp, err := createTestApp(NewRecognitionHandler(ok, nil, discardLogger(), hook)).
			Test(httptest.NewRequest("POST", "/roster/reload", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, 1, calls)

		failing := new(mockRecognizer)
		failing.On("Reload", mock.Anything).Return(0, errors.New("roster directory not found"))
		resp, err = createTestApp(NewRecognitionHandler(failing, nil, discardLogger(), hook)).
			Test(httptest.NewRequest("POST", "/roster/reload", nil))
		require.NoError(t, err)
		assert.Equal(t, 500, resp.StatusCode)
		assert.Equal(t, 1, calls)
	})
}

func TestRecognitionHandler_Roster(t *testing.T) {
	rec := new(mockRecognizer)
	rec.On("Roster").Return(roster.NewStore([]domain.KnownFace{
		{Identity: "s001", Encoding: domain.Encoding{1, 0}},
		{Identity: "s002", Encoding: domain.Encoding{0, 1}},
		{Identity: "s001", Encoding: domain.Encoding{0.9, 0.1}},
	}))
	rec.On("Mock").Return(false)
	app := createTestApp(NewRecognitionHandler(rec, nil, discardLogger()))

	resp, err := app.Test(httptest.NewRequest("GET", "/roster", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result RosterResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 3, result.Faces)
	assert.Equal(t, []string{"s001", "s002"}, result.Identities)
	assert.False(t, result.Mock)
}
