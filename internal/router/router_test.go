package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/teachlyze/tamanduai-api/internal/config"
	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/handler"
	"github.com/teachlyze/tamanduai-api/internal/middleware"
	"github.com/teachlyze/tamanduai-api/internal/router"
)

const secret = "router-secret"

type stubPlagiarismService struct {
	checks int
}

func (s *stubPlagiarismService) Check(_ context.Context, req dto.PlagiarismCheckRequest) (dto.PlagiarismCheckResponse, error) {
	s.checks++
	return dto.PlagiarismCheckResponse{PlagiarismResultResponse: &dto.PlagiarismResultResponse{
		CheckID:      "chk-1",
		SubmissionID: req.SubmissionID,
		Attempt:      1,
		Severity:     "none",
		Sources:      []dto.PlagiarismSourceResponse{},
	}}, nil
}

func (s *stubPlagiarismService) History(context.Context, string) ([]dto.PlagiarismResultResponse, error) {
	return []dto.PlagiarismResultResponse{}, nil
}

func (s *stubPlagiarismService) Stats(_ context.Context, query dto.PlagiarismStatsQuery) (dto.PlagiarismStatsResponse, error) {
	return dto.PlagiarismStatsResponse{ClassID: query.ClassID, BySeverity: map[string]int64{}}, nil
}

func (s *stubPlagiarismService) ListChecks(_ context.Context, _ dto.PlagiarismCheckListQuery) (dto.PlagiarismCheckListResponse, error) {
	return dto.PlagiarismCheckListResponse{Items: []dto.PlagiarismResultResponse{}, Page: 1, PageSize: 20}, nil
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newApp(svc *stubPlagiarismService) *fiber.App {
	app := fiber.New()
	router.Register(app, config.Config{AppName: "tamanduai-api", AppEnv: "test"}, router.Dependencies{
		PlagiarismHandler: handler.NewPlagiarismHandler(svc, zerolog.Nop()),
		JWTMiddleware:     middleware.JWTProtected(secret),
		CheckRateLimit:    middleware.RateLimit(middleware.RateLimitConfig{Identifier: "plagiarism-check", Max: 2, Window: time.Minute}),
	})
	return app
}

func checkRequest(bearer string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/plagiarism-check", strings.NewReader(`{"submission_id":"sub-1","activity_id":"act-1","text":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestHealthIsPublic(t *testing.T) {
	app := newApp(&stubPlagiarismService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "tamanduai-api", resp.Header.Get("X-Application"))
}

func TestCheckRequiresToken(t *testing.T) {
	svc := &stubPlagiarismService{}
	app := newApp(svc)

	resp, err := app.Test(checkRequest(""))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Zero(t, svc.checks)

	resp, err = app.Test(checkRequest(token(t, "student-1", "student")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.checks)
}

func TestCheckIsRateLimitedPerUser(t *testing.T) {
	svc := &stubPlagiarismService{}
	app := newApp(svc)
	bearer := token(t, "student-1", "student")

	for i := 0; i < 2; i++ {
		resp, err := app.Test(checkRequest(bearer))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(checkRequest(bearer))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, err = app.Test(checkRequest(token(t, "student-2", "student")))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestReportsRequireTeacherRole(t *testing.T) {
	app := newApp(&stubPlagiarismService{})

	cases := []struct {
		role   string
		status int
	}{
		{"student", fiber.StatusForbidden},
		{"teacher", fiber.StatusOK},
		{"admin", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/stats?class_id=class-1", nil)
			req.Header.Set("Authorization", "Bearer "+token(t, "user-1", tc.role))

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newApp(&stubPlagiarismService{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
