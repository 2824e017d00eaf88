package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestSize(t *testing.T) {
	tests := []struct {
		name     string
		maxBytes int64
		bodySize int
		wantErr  bool
	}{
		{name: "under the limit", maxBytes: 1024, bodySize: 512},
		{name: "exactly at the limit", maxBytes: 1024, bodySize: 1024},
		{name: "over the limit", maxBytes: 1024, bodySize: 2048, wantErr: true},
		{name: "default cap", maxBytes: MaxBodyBytes, bodySize: int(MaxBodyBytes) + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			handler := RequestSize(tt.maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))

			body := bytes.Repeat([]byte("x"), tt.bodySize)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewReader(body)))

			if tt.wantErr {
				var maxBytesErr *http.MaxBytesError
				require.True(t, errors.As(readErr, &maxBytesErr))
				return
			}
			require.NoError(t, readErr)
		})
	}
}

func TestRequestSizeNoBody(t *testing.T) {
	handler := RequestSize(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}
