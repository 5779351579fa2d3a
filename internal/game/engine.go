package game

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/territories/internal/geometry"
)

// ErrNoState is returned by a Store that has nothing persisted yet.
var ErrNoState = errors.New("no saved state")

// Store persists whole states. Save must be atomic: after a failed Save the
// previously saved state is still readable.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}

// GeometrySource reads and replaces named GeoJSON documents.
type GeometrySource interface {
	ReadGeometry(name string) ([]byte, error)
	WriteGeometry(name string, raw []byte) error
}

// Publisher receives every committed state.
type Publisher interface {
	Publish(st *State)
}

// Archiver keeps a copy of a state that is about to be wiped.
type Archiver interface {
	Archive(ctx context.Context, st *State) error
}

type Options struct {
	Rules     Rules
	Seed      Seed
	Geometry  GeometrySource
	Publisher Publisher
	Archiver  Archiver
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine owns the authoritative State. Every mutation runs in one critical
// section: clone, change, persist, swap, publish.
type Engine struct {
	mu    sync.Mutex
	state *State
	// undo reverts side effects outside the state when a commit fails.
	// Only touched under mu.
	undo []func() error

	store     Store
	rules     Rules
	seed      Seed
	geo       GeometrySource
	publisher Publisher
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time
}

func NewEngine(store Store, opts Options) *Engine {
	e := &Engine{
		store:     store,
		rules:     opts.Rules,
		seed:      opts.Seed,
		geo:       opts.Geometry,
		publisher: opts.Publisher,
		archiver:  opts.Archiver,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.rules == (Rules{}) {
		e.rules = DefaultRules()
	}
	return e
}

func (e *Engine) nowMs() int64 { return e.now().UnixMilli() }

// Load reads the persisted state, or builds one from the seed, repairs it,
// ingests geometry and saves the result.
func (e *Engine) Load(ctx context.Context) error {
	now := e.nowMs()
	st, err := e.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNoState):
		e.logger.Info("no saved state, starting from seed")
		st = NewState(e.seed, now)
	case err != nil:
		return fmt.Errorf("loading state: %w", err)
	default:
		if st.Heal(e.seed, now) {
			e.logger.Info("repaired loaded state")
		}
	}
	e.applyGeometry(st)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.Save(ctx, st); err != nil {
		return fmt.Errorf("saving state: %w", err)
	}
	e.state = st
	e.logger.Info("state loaded",
		"teams", len(st.Teams),
		"territories", len(st.Territories),
		"locked", st.Config.GameLocked,
	)
	return nil
}

// applyGeometry merges computed polygons and neighbors into st. A missing
// or malformed source leaves st untouched.
func (e *Engine) applyGeometry(st *State) {
	name := st.Config.TerritoriesGeojson
	if e.geo == nil || name == "" {
		return
	}
	raw, err := e.geo.ReadGeometry(name)
	if err != nil {
		e.logger.Warn("reading geometry", "file", name, "error", err)
		return
	}
	regions, err := geometry.Compute(raw, st.Config.geometryOptions())
	if err != nil {
		e.logger.Warn("computing geometry", "file", name, "error", err)
		return
	}
	st.Territories = mergeRegions(st.Territories, regions)
	e.logger.Debug("geometry applied", "file", name, "regions", len(regions))
}

// mergeRegions overwrites polygon and neighbors of known territories and
// appends regions with no matching territory.
func mergeRegions(territories []Territory, regions []geometry.Region) []Territory {
	idx := make(map[string]int, len(territories))
	for i, t := range territories {
		idx[t.ID] = i
	}
	for _, r := range regions {
		if i, ok := idx[r.ID]; ok {
			territories[i].Polygon = r.Polygon
			territories[i].Neighbors = r.Neighbors
			continue
		}
		territories = append(territories, Territory{
			ID:        r.ID,
			Name:      r.ID,
			Polygon:   r.Polygon,
			Neighbors: r.Neighbors,
		})
	}
	return territories
}

// commitThen is returned from an update func when the change must be
// committed but the caller still sees err.
type commitThen struct{ err error }

func (c commitThen) Error() string { return c.err.Error() }

// update runs fn on a clone of the current state and commits the clone.
// When fn or Save fails the current state is left as it was, and any
// undo registered by fn is run.
func (e *Engine) update(ctx context.Context, fn func(st *State, now int64) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return errors.New("state not loaded")
	}
	e.undo = nil
	committed := false
	defer func() {
		if !committed {
			e.rollback()
		}
		e.undo = nil
	}()

	next := e.state.Clone()
	var after error
	if err := fn(next, e.nowMs()); err != nil {
		var ct commitThen
		switch {
		case errors.Is(err, errUnchanged):
			return nil
		case errors.As(err, &ct):
			after = ct.err
		default:
			return err
		}
	}
	next.Revision = e.state.Revision + 1
	// Admin actions run to completion even if the caller goes away.
	if err := e.store.Save(context.WithoutCancel(ctx), next); err != nil {
		e.logger.Error("saving state", "error", err)
		return fmt.Errorf("saving state: %w", err)
	}
	committed = true
	e.state = next
	e.publishLocked()
	return after
}

// onAbort registers f to run if the update in progress does not commit.
// It must only be called from inside an update func.
func (e *Engine) onAbort(f func() error) {
	e.undo = append(e.undo, f)
}

func (e *Engine) rollback() {
	for i := len(e.undo) - 1; i >= 0; i-- {
		if err := e.undo[i](); err != nil {
			e.logger.Error("undoing side effect", "error", err)
		}
	}
}

func (e *Engine) publishLocked() {
	if e.publisher != nil {
		e.publisher.Publish(e.state)
	}
}

// Broadcast republishes the current state to every subscriber.
func (e *Engine) Broadcast() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != nil {
		e.publishLocked()
	}
}

// RunResync broadcasts the current state every interval until ctx is done.
func (e *Engine) RunResync(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			e.Broadcast()
		}
	}
}

// current returns the committed state. It must not be mutated.
func (e *Engine) current() (*State, int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.nowMs()
}

// Snapshot renders the current state for viewer.
func (e *Engine) Snapshot(viewer Viewer, compact bool) View {
	st, now := e.current()
	return Sanitize(st, viewer, compact, now)
}

// Teams lists teams without their pins, for the login screen.
func (e *Engine) Teams() []TeamView {
	st, _ := e.current()
	return teamViews(st.Teams)
}

// Login checks a team pin.
func (e *Engine) Login(teamID, pin string) (TeamView, error) {
	st, _ := e.current()
	t := st.team(teamID)
	if t == nil {
		return TeamView{}, ErrNoTeam
	}
	if !pinEqual(t.Pin, pin) {
		return TeamView{}, ErrBadPin
	}
	return TeamView{ID: t.ID, Name: t.Name, Color: t.Color}, nil
}

// AdminLogin checks the admin pin.
func (e *Engine) AdminLogin(pin string) error {
	st, _ := e.current()
	if !pinEqual(st.Config.AdminPin, pin) {
		return ErrBadPin
	}
	return nil
}

func pinEqual(want, got string) bool {
	got = strings.TrimSpace(got)
	return want != "" && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
