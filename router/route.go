package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/gorilla/mux"
	"github.com/metrico/tierflow/flow"
	"github.com/metrico/tierflow/modules"
)

// StatusOf maps loader errors to HTTP statuses.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, flow.ErrConfiguration), errors.Is(err, flow.ErrNotImplementedInput):
		return http.StatusBadRequest
	case errors.Is(err, flow.ErrAmbiguity):
		return http.StatusConflict
	case errors.Is(err, flow.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrUnsupportedOperation):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func WithErrorHandle(logger *slog.Logger, hndl func(w http.ResponseWriter, r *http.Request) error,
) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		err := hndl(w, r)
		if err == nil {
			return
		}
		status := StatusOf(err)
		if status == http.StatusInternalServerError {
			logger.Error("request failed", "path", r.URL.Path, "error", err)
		} else {
			logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
		}
		e := &jx.Encoder{}
		e.Obj(func(e *jx.Encoder) {
			e.Field("error", func(e *jx.Encoder) { e.Str(err.Error()) })
		})
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write(e.Bytes())
	}
}

// API is the mux router modules register their routes on.
type API struct {
	router *mux.Router
	logger *slog.Logger
}

var _ modules.Api = &API{}

func NewRouter(logger *slog.Logger) *API {
	return &API{router: mux.NewRouter(), logger: logger}
}

func (a *API) RegisterRoute(r *modules.Route) {
	a.router.HandleFunc(r.Path, WithErrorHandle(a.logger, r.Handler)).Methods(r.Methods...)
}

func (a *API) GetPathParams(r *http.Request) map[string]string {
	return mux.Vars(r)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
