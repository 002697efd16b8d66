package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/qdrk/bf-blackbox-parser/internal/samples"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	s, err := New(Options{StorageDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, NewRouter(s)
}

func uploadSample(t *testing.T, handler http.Handler) string {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("log", "sample.bbl")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(samples.Build()); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Files []UploadedLog `json:"files"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("upload response: %v", err)
	}
	if len(resp.Files) != 1 || resp.Files[0].ID == "" {
		t.Fatalf("upload response = %+v", resp)
	}
	if resp.Files[0].Logs != 2 {
		t.Fatalf("uploaded log count = %d, want 2", resp.Files[0].Logs)
	}
	return resp.Files[0].ID
}

func TestUploadAndListLogs(t *testing.T) {
	_, handler := newTestServer(t)
	id := uploadSample(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs?id="+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("logs status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Logs []struct {
			Index   int    `json:"index"`
			Error   string `json:"error"`
			MinTime int64  `json:"minTimeUs"`
			Chunks  int    `json:"chunks"`
		} `json:"logs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("logs response: %v", err)
	}
	if len(resp.Logs) != 2 {
		t.Fatalf("sub-logs = %d, want 2", len(resp.Logs))
	}
	if resp.Logs[0].MinTime != samples.BaseTimeUs || resp.Logs[0].Chunks != 2 {
		t.Errorf("sub-log 0 = %+v", resp.Logs[0])
	}
}

func TestFieldsEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	id := uploadSample(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fields?id="+id+"&log=0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("fields status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{`"gyroADC[0]"`, `"deg/s"`, `"motorLegacy[3]"`} {
		if !strings.Contains(body, want) {
			t.Errorf("fields response missing %s", want)
		}
	}
}

func TestFramesEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	id := uploadSample(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/frames?id="+id+"&log=0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("frames status = %d: %s", rec.Code, rec.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != samples.FramesPerLog {
		t.Fatalf("streamed %d frames, want %d", len(lines), samples.FramesPerLog)
	}
	var first map[string]int64
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if first["time"] != samples.BaseTimeUs {
		t.Errorf("first frame time = %d", first["time"])
	}
}

func TestExportEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	id := uploadSample(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/export?id=%s&log=1&format=csv", id), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d: %s", rec.Code, rec.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != samples.FramesPerLog+1 {
		t.Fatalf("csv lines = %d, want %d", len(lines), samples.FramesPerLog+1)
	}
	if !strings.HasPrefix(lines[0], "loopIteration,time,") {
		t.Errorf("csv header = %q", lines[0])
	}
}

func TestChartEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	id := uploadSample(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chart?id="+id+"&log=0", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("chart status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "gyroADC[0]") {
		t.Error("chart response missing series name")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, handler := newTestServer(t)
	id := uploadSample(t, handler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?id="+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d: %s", rec.Code, rec.Body.String())
	}
	var report struct {
		Summary struct {
			Pass bool `json:"pass"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("health response: %v", err)
	}
	if !report.Summary.Pass {
		t.Errorf("clean sample should pass health checks: %s", rec.Body.String())
	}
}

func TestUnknownUpload(t *testing.T) {
	_, handler := newTestServer(t)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fields?id=nope&log=0", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id status = %d", rec.Code)
	}
}
