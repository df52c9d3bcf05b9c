package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// HealthResponse represents the liveness check response
type HealthResponse struct {
	Status    string  `json:"status" example:"ok"`
	Timestamp float64 `json:"timestamp" example:"1700000000.5"`
	Version   string  `json:"version" example:"0.1.0"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status   string `json:"status" example:"ready"`
	Faces    int    `json:"faces" example:"42"`
	Mock     bool   `json:"mock" example:"false"`
	Database string `json:"database" example:"ok"`
}

// RecognizedStudent is one matched face
type RecognizedStudent struct {
	StudentID  string  `json:"student_id" example:"2024001"`
	Confidence float64 `json:"confidence" example:"0.87"`
	Position   string  `json:"position" example:"120,340,260,200"`
}

// RecognizeResponse represents the response for frame recognition
type RecognizeResponse struct {
	Recognized []RecognizedStudent `json:"recognized"`
}

// ReloadResponse represents the response for a roster reload
type ReloadResponse struct {
	Faces int `json:"faces" example:"42"`
}

// RosterResponse represents the loaded roster
type RosterResponse struct {
	Faces      int      `json:"faces" example:"42"`
	Identities []string `json:"identities" example:"2024001,2024002"`
	Mock       bool     `json:"mock" example:"false"`
}

// AttendanceEvent is the message pushed to live-feed subscribers
type AttendanceEvent struct {
	SessionID string `json:"session_id" example:"c0a8012e-7f1d-4a57-9b1e-2f3c4d5e6f70"`
	Type      string `json:"type" example:"attendance.recorded"`
	Timestamp string `json:"timestamp" example:"2024-01-01T08:00:00Z"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

var (
	unauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	rateLimited  = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Rate limit exceeded, please try again later"}, "429", "Too Many Requests")
	internal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
)

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Presenca Attendance API",
		Version:     "v1.0.0",
		Description: "Classroom attendance by face recognition against a roster of student photos",
		Host:        "localhost:5001",
		Path:        "/",
	})

	endpoints := []*endpoint.EndPoint{
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Liveness check"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthResponse{}, "200", "Service is alive"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Health"),
			endpoint.WithSummary("Readiness check"),
			endpoint.WithDescription("Reports the loaded roster size and, when configured, database connectivity"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReadyResponse{}, "200", "Service is ready"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ReadyResponse{Status: "unavailable", Database: "unavailable"}, "503", "Database unreachable"),
			}),
		),

		endpoint.New(
			endpoint.POST,
			"/recognize",
			endpoint.WithTags("Recognition"),
			endpoint.WithSummary("Identify students in a frame"),
			endpoint.WithDescription("Detects every face in the uploaded image and returns the roster students they match. Position is top,right,bottom,left or null."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RecognizeResponse{}, "200", "Frame processed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "IMAGE_MISSING", Message: "image file missing"}, "400", "Bad Request"),
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image payload"}, "400", "Bad Request"),
				unauthorized,
				rateLimited,
				response.New(ErrorResponse{Code: "BACKEND_UNAVAILABLE", Message: "Face recognition backend unavailable"}, "503", "Service Unavailable"),
			}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		endpoint.New(
			endpoint.GET,
			"/roster",
			endpoint.WithTags("Roster"),
			endpoint.WithSummary("List roster identities"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RosterResponse{}, "200", "Current roster snapshot"),
			}),
			endpoint.WithErrors([]response.Response{unauthorized, rateLimited}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		endpoint.New(
			endpoint.POST,
			"/roster/reload",
			endpoint.WithTags("Roster"),
			endpoint.WithSummary("Reload the roster directory"),
			endpoint.WithDescription("Re-encodes the roster photos and swaps the snapshot. On failure the previous roster stays in use. An in-process capture loop reloads its own roster before its next frame."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ReloadResponse{}, "200", "Roster reloaded"),
			}),
			endpoint.WithErrors([]response.Response{
				unauthorized,
				rateLimited,
				response.New(ErrorResponse{Code: "ROSTER_RELOAD_FAILED", Message: "Roster reload failed, previous roster kept"}, "500", "Internal Server Error"),
			}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),

		endpoint.New(
			endpoint.GET,
			"/ws/attendance",
			endpoint.WithTags("Live feed"),
			endpoint.WithSummary("Attendance live feed (websocket)"),
			endpoint.WithDescription("Upgrades to a websocket that receives attendance.recorded, attendance.duplicate, attendance.queued and roster.reloaded events"),
			endpoint.WithParams(
				parameter.StrParam("session_id", parameter.Query, parameter.WithDescription("Only receive events of this session (default: all sessions)")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AttendanceEvent{}, "101", "Switching Protocols"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "HTTP_ERROR", Message: "Upgrade Required"}, "426", "Upgrade Required"),
				unauthorized,
				internal,
			}),
			endpoint.WithSecurity([]map[string][]string{{"ApiKeyAuth": {}}}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
