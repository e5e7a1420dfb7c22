package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// readBody распаковывает тело ответа, если оно сжато.
func readBody(t *testing.T, res *http.Response) string {
	t.Helper()

	var r io.Reader = res.Body
	if res.Header.Get("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(res.Body)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer zr.Close()
		r = zr
	}

	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestGzipMiddleware_ResponseByStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantEncoding string
	}{
		{name: "quote ok", status: http.StatusOK, body: `{"total":"27.50"}`, wantEncoding: "gzip"},
		{name: "sale created", status: http.StatusCreated, body: `{"id":"TXN-1"}`, wantEncoding: "gzip"},
		{name: "logout no content", status: http.StatusNoContent},
		{name: "redirect", status: http.StatusFound},
		{name: "validation error", status: http.StatusBadRequest, body: `{"error":"invalid cart"}`},
		{name: "stock conflict", status: http.StatusConflict, body: `{"error":"payment failed","reason":"insufficient_stock"}`},
		{name: "store failure", status: http.StatusInternalServerError, body: `{"error":"Internal Server Error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Length", "999")
				w.WriteHeader(tt.status)
				if tt.body != "" {
					_, _ = w.Write([]byte(tt.body))
				}
			})

			r := httptest.NewRequest(http.MethodPost, "/api/checkout/quote", nil)
			r.Header.Set("Accept-Encoding", "gzip, deflate")

			rec := httptest.NewRecorder()
			GzipMiddleware(next).ServeHTTP(rec, r)
			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.status)
			}
			if got := res.Header.Get("Content-Encoding"); got != tt.wantEncoding {
				t.Fatalf("Content-Encoding = %q, want %q", got, tt.wantEncoding)
			}
			if tt.wantEncoding == "gzip" && res.Header.Get("Content-Length") != "" {
				t.Fatalf("Content-Length must be dropped for compressed body")
			}
			if got := readBody(t, res); got != tt.body {
				t.Fatalf("body = %q, want %q", got, tt.body)
			}
		})
	}
}

func TestGzipMiddleware_NoAcceptEncoding(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	rec := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/products", nil))

	if got := rec.Header().Get("Content-Encoding"); got != "" {
		t.Fatalf("Content-Encoding = %q, want empty", got)
	}
	if rec.Body.String() != `[]` {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestGzipMiddleware_ImplicitOK(t *testing.T) {
	// Обработчик пишет тело без явного WriteHeader.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	r.Header.Set("Accept-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(rec, r)
	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Encoding") != "gzip" {
		t.Fatalf("status = %d, encoding = %q", res.StatusCode, res.Header.Get("Content-Encoding"))
	}
	if got := readBody(t, res); got != `{"ok":true}` {
		t.Fatalf("body = %q", got)
	}
}

func TestGzipMiddleware_CompressedRequestBody(t *testing.T) {
	order := `{"lines":[{"productId":"p1","quantity":2}],"couponCode":"SAVE10"}`

	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read request body: %v", err)
		}
		got = string(body)
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodPost, "/api/checkout/settle", bytes.NewReader(gzipBytes(t, order)))
	r.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got != order {
		t.Fatalf("request body = %q, want %q", got, order)
	}
}

func TestGzipMiddleware_MalformedRequestBody(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next handler should not be called")
	})

	r := httptest.NewRequest(http.MethodPost, "/api/checkout/settle", bytes.NewReader([]byte(`{"lines":[]}`)))
	r.Header.Set("Content-Encoding", "gzip")
	r.Header.Set("Accept-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(next).ServeHTTP(rec, r)
	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if enc := res.Header.Get("Content-Encoding"); enc != "" {
		t.Fatalf("error response must not be compressed, got %q", enc)
	}
	if body := readBody(t, res); body != "invalid gzip body\n" {
		t.Fatalf("body = %q", body)
	}
}
