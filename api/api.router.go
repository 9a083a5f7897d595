// FilePath: api/api.router.go
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sensegrid/hub/api/resources"
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/query"
)

type Router struct {
	router    *mux.Router
	resources *resources.Resources
}

func NewRouter(pipeline *ingest.Pipeline, engine *query.Engine) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		resources: resources.NewResources(pipeline, engine),
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.router.HandleFunc("/health", r.resources.Health.Check).Methods(http.MethodGet)

	api := r.router.PathPrefix("/api").Subrouter()

	// Readings. Literal paths are registered before the numeric
	// {sensor_id} patterns so /stats and /time-bucket never match as
	// sensor ids.
	sensors := api.PathPrefix("/sensors").Subrouter()
	sensors.HandleFunc("/stats", r.resources.Readings.GetStats).Methods(http.MethodGet)
	sensors.HandleFunc("/time-bucket", r.resources.Readings.GetTimeBuckets).Methods(http.MethodGet)
	sensors.HandleFunc("/bulk", r.resources.Readings.CreateBulk).Methods(http.MethodPost)
	sensors.HandleFunc("", r.resources.Readings.List).Methods(http.MethodGet)
	sensors.HandleFunc("", r.resources.Readings.Create).Methods(http.MethodPost)
	sensors.HandleFunc("", r.resources.Readings.Update).Methods(http.MethodPut)
	sensors.HandleFunc("", r.resources.Readings.DeleteOne).Methods(http.MethodDelete)
	sensors.HandleFunc("/{sensor_id:[0-9]+}", r.resources.Readings.ListBySensor).Methods(http.MethodGet)
	sensors.HandleFunc("/{sensor_id:[0-9]+}", r.resources.Readings.DeleteBySensor).Methods(http.MethodDelete)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
