package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/teachlyze/tamanduai-api/internal/dto"
	"github.com/teachlyze/tamanduai-api/internal/handler"
	"github.com/teachlyze/tamanduai-api/internal/service"
	"github.com/teachlyze/tamanduai-api/internal/utils"
	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

type mockPlagiarismService struct {
	lastRequest dto.PlagiarismCheckRequest
	lastQuery   dto.PlagiarismStatsQuery
	lastList    dto.PlagiarismCheckListQuery
	page        dto.PlagiarismCheckListResponse
	response    dto.PlagiarismCheckResponse
	history     []dto.PlagiarismResultResponse
	stats       dto.PlagiarismStatsResponse
	err         error
	validate    bool
}

func (m *mockPlagiarismService) Check(_ context.Context, req dto.PlagiarismCheckRequest) (dto.PlagiarismCheckResponse, error) {
	m.lastRequest = req
	if m.validate {
		if err := utils.NewValidator().Struct(req); err != nil {
			return dto.PlagiarismCheckResponse{}, fmt.Errorf("%w: %w", service.ErrInvalidCheckRequest, err)
		}
	}
	if m.err != nil {
		return dto.PlagiarismCheckResponse{}, m.err
	}
	return m.response, nil
}

func (m *mockPlagiarismService) History(_ context.Context, _ string) ([]dto.PlagiarismResultResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.history, nil
}

func (m *mockPlagiarismService) Stats(_ context.Context, query dto.PlagiarismStatsQuery) (dto.PlagiarismStatsResponse, error) {
	m.lastQuery = query
	if m.err != nil {
		return dto.PlagiarismStatsResponse{}, m.err
	}
	return m.stats, nil
}

func (m *mockPlagiarismService) ListChecks(_ context.Context, query dto.PlagiarismCheckListQuery) (dto.PlagiarismCheckListResponse, error) {
	m.lastList = query
	if m.err != nil {
		return dto.PlagiarismCheckListResponse{}, m.err
	}
	return m.page, nil
}

func sampleResult() dto.PlagiarismResultResponse {
	probability := 0.12
	return dto.PlagiarismResultResponse{
		CheckID:         "chk-1",
		SubmissionID:    "sub-1",
		Attempt:         1,
		SimilarityScore: 0.82,
		Severity:        "high",
		IsPlagiarized:   true,
		Sources: []dto.PlagiarismSourceResponse{
			{URL: "https://example.com/essay", Title: "Essay", Similarity: 0.8},
		},
		AIGeneratedProbability: &probability,
		Provider:               "openai",
		CreatedAt:              time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newPlagiarismApp(svc service.PlagiarismService) *fiber.App {
	app := fiber.New()
	h := handler.NewPlagiarismHandler(svc, zerolog.New(io.Discard))
	app.Post("/plagiarism-check", h.Check)
	h.Register(app.Group("/api/v2/plagiarism"))
	return app
}

func postCheck(t *testing.T, app *fiber.App, body []byte) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/plagiarism-check", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func validCheckBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"submission_id": "sub-1",
		"activity_id":   "act-1",
		"text":          "The mitochondria is the powerhouse of the cell.",
	})
	require.NoError(t, err)
	return body
}

func TestPlagiarismHandler_CheckSuccess(t *testing.T) {
	result := sampleResult()
	svc := &mockPlagiarismService{response: dto.PlagiarismCheckResponse{PlagiarismResultResponse: &result}}
	app := newPlagiarismApp(svc)

	resp := postCheck(t, app, validCheckBody(t))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                         `json:"success"`
		Message string                       `json:"message"`
		Data    dto.PlagiarismResultResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)

	require.True(t, body.Success)
	require.Equal(t, "plagiarism check completed", body.Message)
	require.Equal(t, "chk-1", body.Data.CheckID)
	require.Equal(t, "high", body.Data.Severity)
	require.Len(t, body.Data.Sources, 1)
	require.Equal(t, "sub-1", svc.lastRequest.SubmissionID)
	require.Equal(t, "act-1", svc.lastRequest.ActivityID)
}

func TestPlagiarismHandler_CheckSkipped(t *testing.T) {
	svc := &mockPlagiarismService{response: dto.NewSkippedCheckResponse(sampleResult())}
	app := newPlagiarismApp(svc)

	resp := postCheck(t, app, validCheckBody(t))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	decodeResponse(t, resp, &body)

	require.Equal(t, "submission already checked", body.Message)
	require.Equal(t, true, body.Data["skipped"])
	require.Equal(t, dto.SkipReasonAlreadyChecked, body.Data["reason"])
	require.NotContains(t, body.Data, "check_id")
	previous, ok := body.Data["previous"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "chk-1", previous["check_id"])
}

func TestPlagiarismHandler_CheckInvalidPayload(t *testing.T) {
	svc := &mockPlagiarismService{}
	app := newPlagiarismApp(svc)

	resp := postCheck(t, app, []byte("{not-json"))
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Empty(t, svc.lastRequest.SubmissionID)
}

func TestPlagiarismHandler_CheckRejectsInvalidUTF8(t *testing.T) {
	bodies := map[string][]byte{
		"raw bytes":           []byte("{\"submission_id\":\"sub-1\",\"activity_id\":\"act-1\",\"text\":\"essay \xff\xfe body\"}"),
		"lone high surrogate": []byte(`{"submission_id":"sub-1","activity_id":"act-1","text":"essay \ud83d body"}`),
		"lone low surrogate":  []byte(`{"submission_id":"sub-1","activity_id":"act-1","text":"essay \udc00 body"}`),
	}

	for name, raw := range bodies {
		t.Run(name, func(t *testing.T) {
			svc := &mockPlagiarismService{}
			app := newPlagiarismApp(svc)

			resp := postCheck(t, app, raw)
			require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

			var body struct {
				Message string `json:"message"`
			}
			decodeResponse(t, resp, &body)
			require.Contains(t, body.Message, plagiarism.ErrInvalidEncoding.Error())
			require.Empty(t, svc.lastRequest.SubmissionID, "service must not be called")
		})
	}
}

func TestPlagiarismHandler_CheckAcceptsEscapedText(t *testing.T) {
	svc := &mockPlagiarismService{response: dto.NewSkippedCheckResponse(sampleResult())}
	app := newPlagiarismApp(svc)

	raw := []byte(`{"submission_id":"sub-1","activity_id":"act-1","text":"caf\u00e9 \ud83d\ude00 path C:\\udata"}`)
	resp := postCheck(t, app, raw)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "café 😀 path C:\\udata", svc.lastRequest.Text)
}

func TestPlagiarismHandler_CheckValidationDetails(t *testing.T) {
	svc := &mockPlagiarismService{validate: true}
	app := newPlagiarismApp(svc)

	body, err := json.Marshal(map[string]string{"submission_id": "sub-1"})
	require.NoError(t, err)

	resp := postCheck(t, app, body)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var payload struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	decodeResponse(t, resp, &payload)

	require.False(t, payload.Success)
	require.Equal(t, "validation failed", payload.Message)
	require.Equal(t, "required", payload.Details["activity_id"])
	require.Equal(t, "required", payload.Details["text"])
	require.NotContains(t, payload.Details, "submission_id")
}

func TestPlagiarismHandler_CheckErrorMapping(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid encoding", fmt.Errorf("%w: bad utf-8", service.ErrInvalidCheckRequest), fiber.StatusBadRequest, "invalid plagiarism check request: bad utf-8"},
		{"provider", fmt.Errorf("%w: timeout", service.ErrProviderFailed), fiber.StatusInternalServerError, "plagiarism provider failed"},
		{"persistence", fmt.Errorf("%w: disk full", service.ErrCheckPersistence), fiber.StatusInternalServerError, "plagiarism check could not be persisted"},
		{"unexpected", io.ErrUnexpectedEOF, fiber.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newPlagiarismApp(&mockPlagiarismService{err: tc.err})

			resp := postCheck(t, app, validCheckBody(t))
			require.Equal(t, tc.status, resp.StatusCode)

			var body struct {
				Success bool   `json:"success"`
				Message string `json:"message"`
			}
			decodeResponse(t, resp, &body)
			require.False(t, body.Success)
			require.Equal(t, tc.message, body.Message)
		})
	}
}

func TestPlagiarismHandler_HistoryNotFound(t *testing.T) {
	app := newPlagiarismApp(&mockPlagiarismService{err: service.ErrSubmissionNotFound})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/submissions/missing/checks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestPlagiarismHandler_HistoryIncludesCount(t *testing.T) {
	first := sampleResult()
	second := sampleResult()
	second.CheckID = "chk-2"
	second.Attempt = 2
	app := newPlagiarismApp(&mockPlagiarismService{history: []dto.PlagiarismResultResponse{second, first}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/submissions/sub-1/checks", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data []dto.PlagiarismResultResponse `json:"data"`
		Meta map[string]int                 `json:"meta"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 2)
	require.Equal(t, 2, body.Data[0].Attempt)
	require.Equal(t, 2, body.Meta["count"])
}

func TestPlagiarismHandler_StatsRequiresFilter(t *testing.T) {
	svc := &mockPlagiarismService{}
	app := newPlagiarismApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/stats", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	svc.stats = dto.PlagiarismStatsResponse{ClassID: "class-1", TotalChecks: 3, Flagged: 1, BySeverity: map[string]int64{"high": 1, "none": 2}}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/stats?class_id=class-1", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "class-1", svc.lastQuery.ClassID)

	var body struct {
		Data dto.PlagiarismStatsResponse `json:"data"`
	}
	decodeResponse(t, resp, &body)
	require.EqualValues(t, 3, body.Data.TotalChecks)
	require.EqualValues(t, 2, body.Data.BySeverity["none"])
}

func TestPlagiarismHandler_ListChecks(t *testing.T) {
	svc := &mockPlagiarismService{}
	app := newPlagiarismApp(svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/checks?severity=high", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	svc.page = dto.PlagiarismCheckListResponse{Items: []dto.PlagiarismResultResponse{sampleResult()}, Total: 7, Page: 2, PageSize: 5}
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/checks?class_id=class-1&severity=high&page=2&page_size=5", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, dto.PlagiarismCheckListQuery{ClassID: "class-1", Severity: "high", Page: 2, PageSize: 5}, svc.lastList)

	var body struct {
		Data []dto.PlagiarismResultResponse `json:"data"`
		Meta map[string]int                 `json:"meta"`
	}
	decodeResponse(t, resp, &body)
	require.Len(t, body.Data, 1)
	require.Equal(t, 7, body.Meta["total"])
	require.Equal(t, 2, body.Meta["page"])
	require.Equal(t, 5, body.Meta["page_size"])

	svc.err = fmt.Errorf("%w: unknown severity \"severe\"", service.ErrInvalidCheckRequest)
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/plagiarism/checks?activity_id=act-1&severity=severe", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPlagiarismHandler_ResponseContract(t *testing.T) {
	schema, err := jsonschema.Compile("testdata/plagiarism_check_response.schema.json")
	require.NoError(t, err)

	result := sampleResult()
	responses := map[string]dto.PlagiarismCheckResponse{
		"result":  {PlagiarismResultResponse: &result},
		"skipped": dto.NewSkippedCheckResponse(sampleResult()),
	}

	for name, response := range responses {
		t.Run(name, func(t *testing.T) {
			app := newPlagiarismApp(&mockPlagiarismService{response: response})
			resp := postCheck(t, app, validCheckBody(t))
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.NoError(t, resp.Body.Close())

			var document interface{}
			require.NoError(t, json.Unmarshal(raw, &document))
			require.NoError(t, schema.Validate(document))
		})
	}
}
