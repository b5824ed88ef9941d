package api

import (
	"bytes"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/eightball/internal/imageio"
	"github.com/ayusman/eightball/internal/synth"
)

func tablePNG(t *testing.T) []byte {
	t.Helper()

	img, err := synth.Table(synth.DefaultOptions())
	if err != nil {
		t.Fatalf("synth.Table() error = %v", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func postImage(h http.Handler, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDetectHandler_JSON(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv detection test")
	}

	handler := NewDetectHandler(nil, imageio.Options{}, nil)

	rec := postImage(handler, "/api/detect", tablePNG(t), "image/png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp detectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Profile != "green" {
		t.Errorf("Profile = %q, want green", resp.Profile)
	}
	if resp.Width != 640 || resp.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", resp.Width, resp.Height)
	}
	if !resp.Detection.Found {
		t.Fatal("expected a table")
	}
	if len(resp.Detection.Corners) != 4 {
		t.Errorf("corners = %d, want 4", len(resp.Detection.Corners))
	}
	if resp.Detection.Box == nil {
		t.Fatal("expected a bounding box")
	}
	if box := *resp.Detection.Box; box.Min.X < 98 || box.Min.X > 102 || box.Max.X < 539 || box.Max.X > 543 {
		t.Errorf("bbox = %v, want about (100,100)-(541,381)", box)
	}
}

func TestDetectHandler_OtherProfile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv detection test")
	}

	handler := NewDetectHandler(nil, imageio.Options{}, nil)

	rec := postImage(handler, "/api/detect?profile=blue", tablePNG(t), "image/png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp detectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Profile != "blue" {
		t.Errorf("Profile = %q, want blue", resp.Profile)
	}
	if resp.Detection.Found {
		t.Error("blue profile should not find a green table")
	}
}

func TestDetectHandler_StoredProfile(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv detection test")
	}

	s := newTestStore(t)
	createProfile(t, NewProfileHandler(s, nil, nil), `{"name": "huge", "color": "#228B22", "min_area": 500000}`)

	handler := NewDetectHandler(s, imageio.Options{}, nil)
	rec := postImage(handler, "/api/detect?profile=huge", tablePNG(t), "image/png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var resp detectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Detection.Found {
		t.Error("table is smaller than the profile's min area")
	}
}

func TestDetectHandler_Multipart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv detection test")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "table.png")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write(tablePNG(t))
	mw.Close()

	handler := NewDetectHandler(nil, imageio.Options{}, nil)
	rec := postImage(handler, "/api/detect", body.Bytes(), mw.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp detectResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Detection.Found {
		t.Error("expected a table")
	}
}

func TestDetectHandler_ImageFormats(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv detection test")
	}

	handler := NewDetectHandler(nil, imageio.Options{}, nil)

	for _, format := range []string{FormatOverlay, FormatMask, FormatDebug} {
		t.Run(format, func(t *testing.T) {
			rec := postImage(handler, "/api/detect?format="+format, tablePNG(t), "image/png")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %q, want image/jpeg", ct)
			}
			if b := rec.Body.Bytes(); len(b) < 2 || b[0] != 0xFF || b[1] != 0xD8 {
				t.Error("body is not a JPEG")
			}
		})
	}
}

func TestDetectHandler_DebugSideBySide(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv detection test")
	}

	handler := NewDetectHandler(nil, imageio.Options{}, nil)

	rec := postImage(handler, "/api/detect?format="+FormatDebug, tablePNG(t), "image/png")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("jpeg.DecodeConfig() error = %v", err)
	}
	if cfg.Width != 1280 || cfg.Height != 480 {
		t.Errorf("debug image = %dx%d, want 1280x480", cfg.Width, cfg.Height)
	}
}

func TestDetectHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       []byte
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "/api/detect", nil, http.StatusMethodNotAllowed},
		{"undecodable body", http.MethodPost, "/api/detect", []byte("not an image"), http.StatusBadRequest},
		{"empty body", http.MethodPost, "/api/detect", nil, http.StatusBadRequest},
		{"unknown format", http.MethodPost, "/api/detect?format=gif", []byte("x"), http.StatusBadRequest},
		{"unknown profile", http.MethodPost, "/api/detect?profile=purple", []byte("x"), http.StatusBadRequest},
	}

	handler := NewDetectHandler(nil, imageio.Options{}, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDetectHandler_TooLarge(t *testing.T) {
	handler := NewDetectHandler(nil, imageio.Options{}, nil)
	handler.maxBytes = 16

	rec := postImage(handler, "/api/detect", tablePNG(t), "image/png")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rec.Code)
	}
}

func TestDetectHandler_MissingMultipartField(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("note", "no image here")
	mw.Close()

	handler := NewDetectHandler(nil, imageio.Options{}, nil)
	rec := postImage(handler, "/api/detect", body.Bytes(), mw.FormDataContentType())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
