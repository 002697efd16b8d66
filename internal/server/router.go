package server

import "net/http"

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/fields", s.handleFields)
	mux.HandleFunc("/frames", s.handleFrames)
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/chart", s.handleChart)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleIndex)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(`bbxd - blackbox log server

POST /upload                      multipart log upload
GET  /logs[?id=]                  uploads, or one upload's sub-logs
GET  /fields?id=&log=             merged field list with display metadata
GET  /frames?id=&log=[&start=&end=]  NDJSON frame stream
GET  /export?id=&log=&format=     csv | json | ndjson
GET  /chart?id=&log=[&fields=]    quick-look HTML chart
GET  /health?id=                  decode-quality report
`))
}
