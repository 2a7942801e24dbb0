package sandbox

import "net/http"

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /token", s.handleToken)
	mux.HandleFunc("GET /me", s.requireUser(s.handleMe))
	mux.HandleFunc("GET /balance", s.requireUser(s.handleBalance))

	mux.HandleFunc("GET /ads", s.handleListAds)
	mux.HandleFunc("POST /ads/view", s.requireUser(s.handleViewAd))

	mux.HandleFunc("POST /upload", s.requireUser(s.handleUpload))
	mux.HandleFunc("GET /uploads/{name}", s.handleServeUpload)

	mux.HandleFunc("GET /applications/cost", s.handleApplicationCost)
	mux.HandleFunc("POST /applications", s.requireUser(s.handleCreateApplication))
	mux.HandleFunc("GET /applications", s.requireUser(s.handleListApplications))

	mux.HandleFunc("GET /admin/applications", s.requireAdmin(s.handleListAllApplications))
	mux.HandleFunc("PUT /admin/applications/{id}", s.requireAdmin(s.handleSetStatus))

	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("sandbox request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", r.Header.Get("X-Request-ID"),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
