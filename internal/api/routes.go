package api

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// RegisterRoutes sets up all routes for the application.
func RegisterRoutes(router *mux.Router, tasks *TaskController, sync *SyncController, family *FamilyController) {
	router.HandleFunc("/tasks", tasks.ListTasks).Methods(http.MethodGet)
	router.HandleFunc("/tasks", tasks.CreateTask).Methods(http.MethodPost)
	router.HandleFunc("/tasks/{taskID}", tasks.GetTask).Methods(http.MethodGet)
	router.HandleFunc("/tasks/{taskID}", tasks.UpdateTask).Methods(http.MethodPatch)
	router.HandleFunc("/tasks/{taskID}", tasks.DeleteTask).Methods(http.MethodDelete)
	router.HandleFunc("/tasks/{taskID}/toggle", tasks.ToggleTask).Methods(http.MethodPost)
	router.HandleFunc("/plan", tasks.ImportPlan).Methods(http.MethodPost)

	router.HandleFunc("/sync/status", sync.Status).Methods(http.MethodGet)
	router.HandleFunc("/sync/drain", sync.Drain).Methods(http.MethodPost)
	router.HandleFunc("/sync/queue", sync.Items).Methods(http.MethodGet)
	router.HandleFunc("/sync/deadletters", sync.DeadLetters).Methods(http.MethodGet)
	router.HandleFunc("/sync/deadletters", sync.PurgeDeadLetters).Methods(http.MethodDelete)
	router.HandleFunc("/sync/deadletters/{itemID}/retry", sync.RetryDeadLetter).Methods(http.MethodPost)
	router.HandleFunc("/sync/ws", sync.StatusStream).Methods(http.MethodGet)

	if family != nil {
		router.HandleFunc("/family", family.Current).Methods(http.MethodGet)
		router.HandleFunc("/family", family.Create).Methods(http.MethodPost)
		router.HandleFunc("/family", family.Leave).Methods(http.MethodDelete)
		router.HandleFunc("/family/join", family.Join).Methods(http.MethodPost)
		router.HandleFunc("/family/members", family.Members).Methods(http.MethodGet)
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection over for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
