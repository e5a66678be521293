package web

import (
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

//go:embed static
var staticFiles embed.FS

// NewRouter configures the API routes and the single-page UI
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/conversion", h.StartConversion).Methods("POST")
	r.HandleFunc("/api/conversion", h.Status).Methods("GET")
	r.HandleFunc("/api/conversion/cancel", h.CancelConversion).Methods("POST")
	r.HandleFunc("/api/conversion/result", h.Result).Methods("GET", "HEAD")
	r.HandleFunc("/api/conversion/events", h.Events).Methods("GET")

	static, _ := fs.Sub(staticFiles, "static")
	r.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods("GET", "HEAD")
	return r
}

// NewServer wraps the router with CORS and returns a server for addr.
// Empty allowedOrigins disables cross-origin requests.
func NewServer(addr string, h *Handler, allowedOrigins []string) *http.Server {
	opts := cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
	}
	if len(allowedOrigins) == 0 {
		// cors treats an empty list as "*"
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	c := cors.New(opts)

	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(NewRouter(h)),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
