package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
)

// Dispatcher owns the set of registered hooks and runs them per event.
type Dispatcher struct {
	dir string
	mu  sync.RWMutex
	regs map[string]*Registration // by name

	voidGroup   errgroup.Group
	runTimeout  time.Duration
}

// New returns a Dispatcher backed by dir (one JSON file per registration).
// Existing registrations under dir are loaded immediately.
func New(dir string) (*Dispatcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, bashclawerr.Wrap(bashclawerr.Internal, "create hooks dir", err)
	}
	d := &Dispatcher{dir: dir, regs: make(map[string]*Registration), runTimeout: 30 * time.Second}
	if err := d.loadRegistrations(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dispatcher) regPath(name string) string {
	return filepath.Join(d.dir, util.SafeFilename(name)+".json")
}

func (d *Dispatcher) loadRegistrations() error {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "read hooks dir", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(d.dir, f.Name()))
		if err != nil {
			continue
		}
		var r Registration
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		d.regs[r.Name] = &r
	}
	return nil
}

func (d *Dispatcher) persistLocked(r *Registration) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return bashclawerr.Wrap(bashclawerr.Internal, "encode hook registration", err)
	}
	return os.WriteFile(d.regPath(r.Name), data, 0644)
}

// Register validates event against the closed taxonomy, requires script to
// exist and be executable, and persists the registration. strategy, when
// empty, defaults per event per spec text.
func (d *Dispatcher) Register(name string, event Event, script string, enabled bool, priority int, strategy Strategy) (*Registration, error) {
	if name == "" {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "hook name must not be empty")
	}
	if !IsValidEvent(event) {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "unknown hook event: "+string(event))
	}
	info, err := os.Stat(script)
	if err != nil || info.IsDir() || info.Mode()&0111 == 0 {
		return nil, bashclawerr.New(bashclawerr.ValidationError, "hook script does not exist or is not executable: "+script)
	}
	if strategy == "" {
		strategy = defaultStrategy(event)
	}

	r := &Registration{
		Name:     name,
		Event:    event,
		Script:   script,
		Enabled:  enabled,
		Priority: priority,
		Strategy: strategy,
		Created:  time.Now(),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.persistLocked(r); err != nil {
		return nil, err
	}
	d.regs[name] = r
	return r, nil
}

// List returns every registration, sorted by (event, priority, name).
func (d *Dispatcher) List() []*Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Registration, 0, len(d.regs))
	for _, r := range d.regs {
		out = append(out, r)
	}
	sortRegs(out)
	return out
}

// ListByEvent returns enabled-or-not registrations for one event, sorted
// by ascending priority then name.
func (d *Dispatcher) ListByEvent(event Event) []*Registration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Registration
	for _, r := range d.regs {
		if r.Event == event {
			out = append(out, r)
		}
	}
	sortRegs(out)
	return out
}

func sortRegs(regs []*Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].Event != regs[j].Event {
			return regs[i].Event < regs[j].Event
		}
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority < regs[j].Priority
		}
		return regs[i].Name < regs[j].Name
	})
}

// Count returns the number of registrations bound to event.
func (d *Dispatcher) Count(event Event) int {
	return len(d.ListByEvent(event))
}

// Enable/Disable toggle a registration's enabled flag and persist it.
func (d *Dispatcher) Enable(name string) error  { return d.setEnabled(name, true) }
func (d *Dispatcher) Disable(name string) error { return d.setEnabled(name, false) }

func (d *Dispatcher) setEnabled(name string, enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regs[name]
	if !ok {
		return bashclawerr.New(bashclawerr.NotFound, "hook not found: "+name)
	}
	r.Enabled = enabled
	return d.persistLocked(r)
}

// Remove deletes a registration, by name, from memory and disk.
func (d *Dispatcher) Remove(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.regs[name]; !ok {
		return bashclawerr.New(bashclawerr.NotFound, "hook not found: "+name)
	}
	delete(d.regs, name)
	if err := os.Remove(d.regPath(name)); err != nil && !os.IsNotExist(err) {
		return bashclawerr.Wrap(bashclawerr.Internal, "remove hook file", err)
	}
	return nil
}

// Run executes every enabled hook bound to event, in ascending priority
// order, per the strategy recorded on each registration. input is the
// initial JSON document; the returned value is the chain's final
// modifying-strategy output (or input, unmodified, if the chain contained
// no modifying hooks).
func (d *Dispatcher) Run(ctx context.Context, event Event, input json.RawMessage) (json.RawMessage, error) {
	regs := d.ListByEvent(event)
	current := input

	var voidWG sync.WaitGroup
	for _, r := range regs {
		if !r.Enabled {
			continue
		}
		switch r.Strategy {
		case StrategyModifying:
			out, err := d.runOnce(ctx, r.Script, current)
			if err != nil {
				slog.Warn("hooks: modifying hook failed, discarding output", "hook", r.Name, "error", err)
				continue
			}
			current = out
		case StrategyBlocking:
			if _, err := d.runOnce(ctx, r.Script, current); err != nil {
				return current, bashclawerr.Wrap(bashclawerr.Internal, "blocking hook failed: "+r.Name, err)
			}
		case StrategyVoid:
			script := r.Script
			payload := current
			voidWG.Add(1)
			d.voidGroup.Go(func() error {
				defer voidWG.Done()
				ctx, cancel := context.WithTimeout(context.Background(), d.runTimeout)
				defer cancel()
				if _, err := d.runOnce(ctx, script, payload); err != nil {
					slog.Warn("hooks: void hook failed", "script", script, "error", err)
				}
				return nil
			})
		}
	}
	return current, nil
}

// Wait blocks until every void hook fired so far has completed, or ctx is
// done first — used at shutdown to give background hooks a grace period.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.voidGroup.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) runOnce(ctx context.Context, script string, input json.RawMessage) (json.RawMessage, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if d.runTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, script)
	cmd.Stdin = bytes.NewReader(input)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
