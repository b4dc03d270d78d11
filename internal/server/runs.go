package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iwvelando/airframe-optimizer/internal/optimizer"
	"github.com/iwvelando/airframe-optimizer/pkg/optimization"
	"go.uber.org/zap"
)

// run is one optimization submitted through the API.
type run struct {
	id       string
	created  time.Time
	opt      *optimizer.Optimizer
	events   *hub
	warnings []string

	// ctx governs the optimization; cancelling it before execute starts
	// makes the run finish as cancelled without simulating.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	progress optimization.Progress
	summary  *optimization.Summary
	err      string
	finished time.Time
	done     chan struct{}
}

// runView is the JSON representation of a run.
type runView struct {
	ID       string                   `json:"id"`
	State    string                   `json:"state"`
	Created  time.Time                `json:"created"`
	Finished *time.Time               `json:"finished,omitempty"`
	Progress optimization.Progress    `json:"progress"`
	Best     *optimization.BestResult `json:"best,omitempty"`
	Summary  *optimization.Summary    `json:"summary,omitempty"`
	Warnings []string                 `json:"warnings,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

func newRun(parent context.Context, buffer int, warnings []string) *run {
	ctx, cancel := context.WithCancel(parent)
	return &run{
		id:       uuid.NewString(),
		created:  time.Now().UTC(),
		events:   newHub(buffer),
		warnings: warnings,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// stop cancels the run whether or not the optimizer has started yet. An
// active optimization is reverted before stop returns.
func (r *run) stop() {
	r.opt.Cancel()
	r.cancel()
}

// hooks adapts optimizer callbacks onto the run's event stream.
func (r *run) hooks() optimizer.Hooks {
	return optimizer.Hooks{
		OnLog: func(line string) {
			r.events.publish(Event{Type: EventLog, Line: line})
		},
		OnStatus: func(line string) {
			r.events.publish(Event{Type: EventStatus, Line: line})
		},
		OnProgress: func(p optimization.Progress) {
			r.mu.Lock()
			r.progress = p
			r.mu.Unlock()
			r.events.publish(Event{Type: EventProgress, Progress: &p})
		},
	}
}

func (r *run) execute(logger *zap.Logger) {
	defer close(r.done)
	defer r.events.close()
	defer r.cancel()

	summary, err := r.opt.Run(r.ctx)

	r.mu.Lock()
	r.finished = time.Now().UTC()
	if err != nil {
		r.err = err.Error()
	} else {
		r.summary = &summary
	}
	r.mu.Unlock()

	logger.Info("run finished",
		zap.String("op", "server.run.execute"),
		zap.String("run", r.id),
		zap.String("state", string(r.opt.State())),
		zap.Int("droppedEvents", r.events.droppedEvents()),
		zap.Error(err),
	)
}

func (r *run) view() runView {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := runView{
		ID:       r.id,
		State:    string(r.opt.State()),
		Created:  r.created,
		Progress: r.progress,
		Best:     r.opt.Best(),
		Summary:  r.summary,
		Warnings: r.warnings,
		Error:    r.err,
	}
	if !r.finished.IsZero() {
		finished := r.finished
		v.Finished = &finished
	}
	return v
}

// runStore keeps every run of the process in memory.
type runStore struct {
	mu   sync.RWMutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func newRunStore() *runStore {
	return &runStore{runs: make(map[string]*run)}
}

func (s *runStore) add(r *run) {
	s.mu.Lock()
	s.runs[r.id] = r
	s.mu.Unlock()
}

func (s *runStore) get(id string) (*run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// list returns every run, oldest first.
func (s *runStore) list() []*run {
	s.mu.RLock()
	out := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].id < out[j].id
		}
		return out[i].created.Before(out[j].created)
	})
	return out
}

func (s *runStore) start(logger *zap.Logger, r *run) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.execute(logger)
	}()
}

// wait blocks until every started run has finished.
func (s *runStore) wait() {
	s.wg.Wait()
}
