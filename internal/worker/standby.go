package worker

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/msageha/dropzone/internal/model"
)

// WorkerStatus is the status summary of a single worker goroutine.
type WorkerStatus struct {
	WorkerID  string `json:"worker_id"`
	Operation string `json:"operation,omitempty"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Status    string `json:"status"` // "idle" or "busy"
}

type workerState struct {
	id string

	mu        sync.Mutex
	current   *model.Operation
	processed int
	failed    int
}

func (w *workerState) start(op *model.Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = op
}

func (w *workerState) finish(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = nil
	w.processed++
	if err != nil {
		w.failed++
	}
}

func (w *workerState) status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := WorkerStatus{WorkerID: w.id, Processed: w.processed, Failed: w.failed, Status: "idle"}
	if w.current != nil {
		s.Operation = w.current.ID
		s.Status = "busy"
	}
	return s
}

// Standby returns the status of every worker, sorted by id.
func (p *Pool) Standby() []WorkerStatus {
	results := make([]WorkerStatus, 0, len(p.workers))
	for _, w := range p.workers {
		results = append(results, w.status())
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].WorkerID < results[j].WorkerID
	})
	return results
}

// StandbyJSON returns Standby as indented JSON.
func (p *Pool) StandbyJSON() (string, error) {
	data, err := json.MarshalIndent(p.Standby(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(data), nil
}
