// FilePath: api/resources/resources.go
package resources

import (
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/query"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Readings *ReadingHandlers
	Health   *HealthHandlers
}

// NewResources creates a new Resources instance
func NewResources(pipeline *ingest.Pipeline, engine *query.Engine) *Resources {
	return &Resources{
		Readings: &ReadingHandlers{pipeline: pipeline, engine: engine},
		Health:   &HealthHandlers{engine: engine},
	}
}
