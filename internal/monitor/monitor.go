// Package monitor waits for registered units to finish and reports how the run went.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sourceplane/flowline/internal/engine"
	"github.com/sourceplane/flowline/internal/logging"
	"github.com/sourceplane/flowline/internal/model"
	"github.com/sourceplane/flowline/internal/registry"
	"github.com/sourceplane/flowline/internal/schedule"
)

// DefaultPollInterval is how often the observer samples handle state.
const DefaultPollInterval = 10 * time.Millisecond

const markerTimeLayout = "2006-01-02 15:04:05.000000"

// Config controls a monitored run.
type Config struct {
	Pipeline        string
	RunID           uuid.UUID
	PollInterval    time.Duration
	DeleteTemporary bool
	// StreamLogger receives captured unit output. Captures are skipped when nil.
	StreamLogger *slog.Logger
	Metrics      *Metrics
	Now          func() time.Time
}

// Monitor observes a run from registration to completion.
type Monitor struct {
	cfg Config
}

// New creates a monitor, filling defaults for unset fields.
func New(cfg Config) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RunID == uuid.Nil {
		cfg.RunID = uuid.New()
	}
	return &Monitor{cfg: cfg}
}

type unitState struct {
	unit  schedule.Registered
	state model.RunState
	err   error
}

type runState struct {
	mu    sync.Mutex
	units []*unitState
}

func (s *runState) set(i int, state model.RunState, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[i].state = state
	s.units[i].err = err
}

func (s *runState) promote(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units[i].state == model.StatePending {
		s.units[i].state = model.StateRunning
	}
}

// Watch blocks until every unit resolves or ctx is cancelled, then stops the
// observer, removes temporary files when configured, and logs the run summary.
func (m *Monitor) Watch(ctx context.Context, units []schedule.Registered, temps []string, captures []registry.Capture) *model.RunReport {
	logger := logging.FromContext(ctx)

	rs := &runState{units: make([]*unitState, len(units))}
	for i, u := range units {
		rs.units[i] = &unitState{unit: u, state: model.StatePending}
	}

	start := m.cfg.Now()
	logger.Info("Started pipeline run\n@operon_start " + start.Format(markerTimeLayout))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.observe(logger, rs, stop)
	}()

	interrupted := false
	next := 0
	for ; next < len(units); next++ {
		u := units[next]
		_, err := u.Handle.Result(ctx)
		if err != nil && ctx.Err() != nil {
			if !u.Handle.Finished() {
				logger.Info("User aborted run")
				interrupted = true
				break
			}
			// resolved before the interrupt; read the real outcome
			_, err = u.Handle.Result(context.Background())
		}
		m.classify(logger, rs, next, err)
	}

	close(stop)
	wg.Wait()

	for i := next; i < len(units); i++ {
		h := units[i].Handle
		switch {
		case h.Finished():
			_, err := h.Result(context.Background())
			m.classify(logger, rs, i, err)
		case h.Started():
			rs.set(i, model.StateFailed, fmt.Errorf("interrupted before completion: %w", context.Canceled))
		default:
			rs.set(i, model.StatePending, nil)
		}
	}

	deleted := false
	if len(temps) > 0 && m.cfg.DeleteTemporary {
		deleted = true
		for _, path := range temps {
			if err := os.Remove(path); err == nil && m.cfg.Metrics != nil {
				m.cfg.Metrics.TemporaryRemove.Inc()
			}
		}
	}

	end := m.cfg.Now()
	elapsed := end.Sub(start)
	logger.Info(fmt.Sprintf("Finished pipeline run\n@operon_end %s\n@operon_elapsed %s\n@operon_elapsed_seconds %d",
		end.Format(markerTimeLayout), FormatElapsed(elapsed), elapsedSeconds(elapsed)))

	report := &model.RunReport{
		RunID:            m.cfg.RunID,
		Pipeline:         m.cfg.Pipeline,
		Start:            start,
		End:              end,
		Elapsed:          elapsed,
		Interrupted:      interrupted,
		Failed:           []string{},
		NeverRan:         []string{},
		Temporary:        temps,
		TemporaryDeleted: deleted,
	}
	for _, us := range rs.units {
		status := model.UnitStatus{
			ID:       us.unit.ID,
			Name:     us.unit.Name,
			Executor: us.unit.Executor,
			State:    us.state,
			Started:  us.unit.Handle.Started(),
		}
		if us.err != nil {
			status.Error = us.err.Error()
		}
		switch {
		case us.state == model.StateFailed:
			report.Failed = append(report.Failed, us.unit.ID)
		case !us.state.Terminal():
			report.NeverRan = append(report.NeverRan, us.unit.ID)
		}
		m.cfg.Metrics.observeState(us.state)
		report.Units = append(report.Units, status)
	}
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RunDuration.Set(elapsed.Seconds())
		m.cfg.Metrics.setActive(0)
	}

	logger.Info("Failed apps: " + joinOrNone(report.Failed))
	logger.Info("Apps never ran: " + joinOrNone(report.NeverRan))

	report.Captured = m.collectCaptures(captures)
	return report
}

func (m *Monitor) classify(logger *slog.Logger, rs *runState, i int, err error) {
	name := rs.units[i].unit.Name
	if err == nil {
		rs.set(i, model.StateCompleted, nil)
		return
	}
	rs.set(i, model.StateFailed, err)

	// A dependency failure wraps the upstream error, so it is matched first.
	switch {
	case errors.Is(err, engine.ErrDependencyFailed):
		logger.Info(name + " had a dependency fail")
		logger.Debug(err.Error())
	case errors.Is(err, engine.ErrExecutionFailed):
		logger.Info(name + " failed during execution")
		logger.Debug(err.Error())
		logger.Info("Check run log for output from failed " + name)
	case errors.Is(err, engine.ErrMissingOutputs):
		logger.Info(fmt.Sprintf("%s did not produce expected outputs\n%v", name, err))
	case errors.Is(err, engine.ErrBackend):
		logger.Info(fmt.Sprintf("%s produced a general backend error\n%v", name, err))
	default:
		logger.Info(fmt.Sprintf("%s produced a general error\n%v", name, err))
	}
}

// observe samples handles until stop is closed, logging staged and finished units.
func (m *Monitor) observe(logger *slog.Logger, rs *runState, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	n := len(rs.units)
	staged := make([]bool, n)
	finished := make([]bool, n)
	lastActive := ""

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		var active []string
		for i, us := range rs.units {
			h := us.unit.Handle
			if !staged[i] && h.Started() {
				staged[i] = true
				rs.promote(i)
				logger.Info(us.unit.Name + " staged to run")
			}
			if staged[i] && !finished[i] && h.Finished() {
				finished[i] = true
				logger.Info(us.unit.Name + " finished running")
			}
			if staged[i] && !finished[i] {
				active = append(active, us.unit.Name)
			}
		}

		current := strings.Join(active, "  ")
		if current != lastActive {
			m.cfg.Metrics.setActive(len(active))
			if len(active) > 0 {
				logger.Info("Staged or running: " + current)
			}
			lastActive = current
		}
	}
}

// collectCaptures logs captured unit output to the stream logger and returns it.
func (m *Monitor) collectCaptures(captures []registry.Capture) []model.CapturedStream {
	var out []model.CapturedStream
	for _, c := range captures {
		cs := model.CapturedStream{Unit: c.ID, Stream: c.Stream, Path: c.Path}
		data, err := os.ReadFile(c.Path)
		if err != nil {
			cs.Missing = true
			if m.cfg.StreamLogger != nil {
				m.cfg.StreamLogger.Debug(fmt.Sprintf("Output from %s of %s could not be retrieved", c.Stream, c.ID))
			}
			out = append(out, cs)
			continue
		}
		if len(data) == 0 {
			continue
		}
		cs.Content = string(data)
		if m.cfg.StreamLogger != nil {
			m.cfg.StreamLogger.Debug(fmt.Sprintf("Output from %s stream of %s:\n%s", c.Stream, c.ID, cs.Content))
		}
		out = append(out, cs)
	}
	return out
}

func joinOrNone(names []string) string {
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, " ")
}

// FormatElapsed renders a duration as H:MM:SS with microseconds when non-zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	s := d / time.Second
	d -= s * time.Second
	us := d / time.Microsecond

	prefix := ""
	if days == 1 {
		prefix = "1 day, "
	} else if days > 1 {
		prefix = fmt.Sprintf("%d days, ", days)
	}
	if us == 0 {
		return fmt.Sprintf("%s%d:%02d:%02d", prefix, h, mins, s)
	}
	return fmt.Sprintf("%s%d:%02d:%02d.%06d", prefix, h, mins, s, us)
}

// elapsedSeconds is the seconds component excluding whole days.
func elapsedSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64((d % (24 * time.Hour)) / time.Second)
}
