package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/http-heartbeat/internal/command"
	"github.com/angeloszaimis/http-heartbeat/internal/registry"
)

// Lister is the read side of the registry.
type Lister interface {
	List() []registry.Entry
}

type API struct {
	logger   *slog.Logger
	console  *command.Console
	registry Lister
}

type endpointRequest struct {
	Name            string `json:"name"`
	IntervalSeconds int    `json:"interval_seconds"`
	Method          string `json:"method"`
	URL             string `json:"url"`
}

type retriesRequest struct {
	NumRetries      int `json:"num_retries"`
	SecondsPerRetry int `json:"seconds_per_retry"`
}

type commandRequest struct {
	Command string `json:"command"`
}

type retryView struct {
	NumRetries      int `json:"num_retries"`
	SecondsPerRetry int `json:"seconds_per_retry"`
}

type endpointView struct {
	Name            string     `json:"name"`
	IntervalSeconds int        `json:"interval_seconds"`
	Method          string     `json:"method"`
	URL             string     `json:"url"`
	State           string     `json:"state"`
	Retries         *retryView `json:"retries,omitempty"`
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func New(logger *slog.Logger, console *command.Console, reg Lister) *API {
	return &API{
		logger:   logger,
		console:  console,
		registry: reg,
	}
}

// Routes builds the router for the admin API.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/endpoints", func(r chi.Router) {
		r.Get("/", a.listEndpoints)
		r.Post("/", a.addEndpoint)
		r.Delete("/{name}", a.deleteEndpoint)
		r.Put("/{name}/retries", a.setRetries)
	})

	r.Post("/commands", a.runCommand)

	return r
}

func (a *API) listEndpoints(w http.ResponseWriter, _ *http.Request) {
	entries := a.registry.List()

	views := make([]endpointView, 0, len(entries))
	for _, e := range entries {
		view := endpointView{
			Name:            e.Config.Name,
			IntervalSeconds: e.Config.Interval,
			Method:          e.Config.Method,
			URL:             e.Config.URL.String(),
			State:           e.State,
		}
		if e.Policy != nil {
			view.Retries = &retryView{
				NumRetries:      e.Policy.MaxRetries,
				SecondsPerRetry: e.Policy.SecondsPerRetry,
			}
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, views)
}

func (a *API) addEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := a.console.Add(r.Context(), req.Name, strconv.Itoa(req.IntervalSeconds), req.Method, req.URL)
	if reply.Outcome == command.Success {
		writeJSON(w, http.StatusCreated, reply)
		return
	}
	writeJSON(w, statusFor(reply.Outcome), reply)
}

func (a *API) deleteEndpoint(w http.ResponseWriter, r *http.Request) {
	reply := a.console.Delete(r.Context(), chi.URLParam(r, "name"))

	switch reply.Outcome {
	case command.Success:
		writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
	case command.AlreadyCancelled:
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_canceled"})
	default:
		writeJSON(w, statusFor(reply.Outcome), reply)
	}
}

func (a *API) setRetries(w http.ResponseWriter, r *http.Request) {
	var req retriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := a.console.SetRetries(r.Context(),
		chi.URLParam(r, "name"),
		strconv.Itoa(req.NumRetries),
		strconv.Itoa(req.SecondsPerRetry))

	writeJSON(w, statusFor(reply.Outcome), reply)
}

func (a *API) runCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// text commands always answer 200; the outcome is in the body
	writeJSON(w, http.StatusOK, a.console.Execute(r.Context(), req.Command))
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		a.logger.Info("Handled request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func statusFor(outcome command.Outcome) int {
	switch outcome {
	case command.Success, command.Help, command.AlreadyCancelled:
		return http.StatusOK
	case command.AlreadyExists:
		return http.StatusConflict
	case command.NotFound:
		return http.StatusNotFound
	case command.InvalidPolicy:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
