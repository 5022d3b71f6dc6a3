package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/service"
	"pdfchat/internal/service/mocks"
)

func TestSessionHandler_Get(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockDocumentService(ctrl)
	loaded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockService.EXPECT().Status(gomock.Any(), "bob").Return(&service.SessionStatus{
		SessionID:      "bob",
		DocumentID:     "doc-9",
		Filename:       "facts.pdf",
		Pages:          3,
		ChunkCount:     5,
		EmbeddingModel: "all-minilm",
		Dimension:      384,
		Backend:        "chromem",
		LoadedAt:       loaded,
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req = req.WithContext(contextutil.WithSessionID(req.Context(), "bob"))
	w := httptest.NewRecorder()
	NewSessionHandler(mockService).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Filename != "facts.pdf" || resp.ChunksCount != 5 || resp.LoadedAt != "2026-03-01T12:00:00Z" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSessionHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		mockSetup  func(*mocks.MockDocumentService)
		wantStatus int
	}{
		{
			name:   "no document",
			method: http.MethodGet,
			mockSetup: func(m *mocks.MockDocumentService) {
				m.EXPECT().Status(gomock.Any(), contextutil.DefaultSessionID).Return(nil, service.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "reset",
			method: http.MethodDelete,
			mockSetup: func(m *mocks.MockDocumentService) {
				m.EXPECT().Reset(gomock.Any(), contextutil.DefaultSessionID).Return(nil)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:   "reset failure",
			method: http.MethodDelete,
			mockSetup: func(m *mocks.MockDocumentService) {
				m.EXPECT().Reset(gomock.Any(), gomock.Any()).Return(errors.New("database is locked"))
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "method not allowed",
			method:     http.MethodPut,
			mockSetup:  func(m *mocks.MockDocumentService) {},
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			mockService := mocks.NewMockDocumentService(ctrl)
			tt.mockSetup(mockService)

			req := httptest.NewRequest(tt.method, "/session", nil)
			w := httptest.NewRecorder()
			NewSessionHandler(mockService).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		method     string
		checks     []HealthCheck
		wantStatus int
		wantBody   HealthResponse
	}{
		{
			name:       "all healthy",
			method:     http.MethodGet,
			checks:     []HealthCheck{{Name: "embedder", Check: ok}, {Name: "index", Check: ok}},
			wantStatus: http.StatusOK,
			wantBody:   HealthResponse{Status: "healthy", Checks: map[string]string{"embedder": "ok", "index": "ok"}},
		},
		{
			name:       "storage down",
			method:     http.MethodGet,
			checks:     []HealthCheck{{Name: "embedder", Check: ok}, {Name: "storage", Check: down}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody: HealthResponse{
				Status: "unhealthy",
				Checks: map[string]string{"embedder": "ok", "storage": "error"},
				Issues: []string{"storage_unavailable"},
			},
		},
		{
			name:       "method not allowed",
			method:     http.MethodPost,
			wantStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/health", nil)
			w := httptest.NewRecorder()
			NewHealthHandler(tt.checks...).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusMethodNotAllowed {
				return
			}

			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if resp.Status != tt.wantBody.Status || resp.Timestamp == "" {
				t.Errorf("status = %q, timestamp = %q", resp.Status, resp.Timestamp)
			}
			for name, want := range tt.wantBody.Checks {
				if resp.Checks[name] != want {
					t.Errorf("check %s = %q, want %q", name, resp.Checks[name], want)
				}
			}
			if len(resp.Issues) != len(tt.wantBody.Issues) {
				t.Errorf("issues = %v, want %v", resp.Issues, tt.wantBody.Issues)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	w := httptest.NewRecorder()
	Status(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if w.Code != http.StatusOK || resp.Message != "PDF Interaction API is running." {
		t.Errorf("Status() = %d %+v", w.Code, resp)
	}
}
