// Package sdlc tracks AI development lifecycle bookkeeping: projects,
// datasets, experiments and deployments. The registry is process-lifetime
// state; experiment metrics are simulated figures recorded for governance
// reporting, not real training output.
package sdlc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yairfalse/valvo/telemetry"
	"github.com/yairfalse/valvo/types"
)

// Project is a governed AI initiative.
type Project struct {
	ProjectID            string   `json:"project_id"`
	Name                 string   `json:"name"`
	Description          string   `json:"description"`
	Owner                string   `json:"owner"`
	ComplianceFrameworks []string `json:"compliance_frameworks"`
	CreatedDate          string   `json:"created_date"`
}

// Dataset registers data used by a project, with its declared sensitivity.
type Dataset struct {
	DatasetID   string `json:"dataset_id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Sensitivity string `json:"sensitivity"` // public, internal, confidential, restricted
	RecordCount int    `json:"record_count"`
	CreatedDate string `json:"created_date"`
}

// Experiment records one training run and its reported metrics.
type Experiment struct {
	ExperimentID    string             `json:"experiment_id"`
	ProjectID       string             `json:"project_id"`
	Name            string             `json:"name"`
	Metrics         map[string]float64 `json:"metrics"`
	DeploymentReady bool               `json:"deployment_ready"`
	CreatedDate     string             `json:"created_date"`
}

// Deployment records a model promoted to an environment.
type Deployment struct {
	DeploymentID string `json:"deployment_id"`
	ExperimentID string `json:"experiment_id"`
	Environment  string `json:"environment"`
	Status       string `json:"status"`
	CreatedDate  string `json:"created_date"`
}

// Stats summarizes the registry for dashboard reporting.
type Stats struct {
	TotalProjects         int     `json:"total_projects"`
	TotalDatasets         int     `json:"total_datasets"`
	TotalExperiments      int     `json:"total_experiments"`
	TotalDeployments      int     `json:"total_deployments"`
	ExperimentSuccessRate float64 `json:"experiment_success_rate"`
}

// Registry holds SDLC state behind a read-write lock. Reads dominate;
// writes happen on registration only.
type Registry struct {
	mu          sync.RWMutex
	projects    map[string]Project
	datasets    map[string]Dataset
	experiments map[string]Experiment
	deployments map[string]Deployment
	logger      *telemetry.Logger
}

// NewRegistry creates an empty SDLC registry.
func NewRegistry() *Registry {
	return &Registry{
		projects:    make(map[string]Project),
		datasets:    make(map[string]Dataset),
		experiments: make(map[string]Experiment),
		deployments: make(map[string]Deployment),
		logger:      telemetry.NewLogger("sdlc-registry"),
	}
}

// CreateProject registers a project and assigns its id.
func (r *Registry) CreateProject(ctx context.Context, p Project) (string, error) {
	if p.Name == "" {
		return "", fmt.Errorf("project name cannot be empty")
	}
	p.ProjectID = uuid.NewString()
	p.CreatedDate = types.Timestamp(time.Now())

	r.mu.Lock()
	r.projects[p.ProjectID] = p
	r.mu.Unlock()

	r.logger.WithContext(ctx).Info().
		Str("project_id", p.ProjectID).
		Str("name", p.Name).
		Msg("project registered")
	return p.ProjectID, nil
}

// RegisterDataset attaches a dataset to an existing project.
func (r *Registry) RegisterDataset(ctx context.Context, d Dataset) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[d.ProjectID]; !ok {
		return "", fmt.Errorf("unknown project %s", d.ProjectID)
	}
	d.DatasetID = uuid.NewString()
	d.CreatedDate = types.Timestamp(time.Now())
	r.datasets[d.DatasetID] = d
	return d.DatasetID, nil
}

// RecordExperiment stores a training run's reported metrics.
func (r *Registry) RecordExperiment(ctx context.Context, e Experiment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[e.ProjectID]; !ok {
		return "", fmt.Errorf("unknown project %s", e.ProjectID)
	}
	e.ExperimentID = uuid.NewString()
	e.CreatedDate = types.Timestamp(time.Now())
	if e.Metrics == nil {
		e.Metrics = map[string]float64{}
	}
	r.experiments[e.ExperimentID] = e
	return e.ExperimentID, nil
}

// RecordDeployment stores a deployment of an existing experiment.
func (r *Registry) RecordDeployment(ctx context.Context, d Deployment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.experiments[d.ExperimentID]; !ok {
		return "", fmt.Errorf("unknown experiment %s", d.ExperimentID)
	}
	d.DeploymentID = uuid.NewString()
	d.CreatedDate = types.Timestamp(time.Now())
	if d.Status == "" {
		d.Status = "active"
	}
	r.deployments[d.DeploymentID] = d
	return d.DeploymentID, nil
}

// Project returns a registered project.
func (r *Registry) Project(id string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[id]
	return p, ok
}

// Stats derives registry totals and the experiment success rate.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		TotalProjects:    len(r.projects),
		TotalDatasets:    len(r.datasets),
		TotalExperiments: len(r.experiments),
		TotalDeployments: len(r.deployments),
	}

	ready := 0
	for _, e := range r.experiments {
		if e.DeploymentReady {
			ready++
		}
	}
	if s.TotalExperiments > 0 {
		s.ExperimentSuccessRate = float64(ready) / float64(s.TotalExperiments) * 100
	}
	return s
}
