package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var start = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type memStore struct {
	st    *State
	saves int
	fail  error
}

func (m *memStore) Load(context.Context) (*State, error) {
	if m.st == nil {
		return nil, ErrNoState
	}
	return m.st.Clone(), nil
}

func (m *memStore) Save(_ context.Context, st *State) error {
	if m.fail != nil {
		return m.fail
	}
	m.st = st.Clone()
	m.saves++
	return nil
}

type recorder struct {
	n    int
	last *State
}

func (r *recorder) Publish(st *State) {
	r.n++
	r.last = st
}

type archiveRecorder struct{ states []*State }

func (a *archiveRecorder) Archive(_ context.Context, st *State) error {
	a.states = append(a.states, st)
	return nil
}

func testSeed() Seed {
	return Seed{
		Teams: []Team{
			{ID: "t1", Name: "Red", Color: "#f00", Pin: "pin-red"},
			{ID: "t2", Name: "Blue", Color: "#00f", Pin: "pin-blue"},
		},
		AdminPin: "pin-admin",
	}
}

type fixture struct {
	e     *Engine
	store *memStore
	clock *clock
	pub   *recorder
	arch  *archiveRecorder
}

// newFixture loads an engine over a chain z1-z2-z3 plus an isolated z4.
func newFixture(t *testing.T, edit func(st *State)) *fixture {
	t.Helper()
	st := NewState(testSeed(), start.UnixMilli())
	st.Territories = []Territory{
		{ID: "z1", Name: "North", Neighbors: []string{"z2"}, Tasks: &TerritoryTasks{Claim: "Count the benches"}},
		{ID: "z2", Name: "Middle", Neighbors: []string{"z1", "z3"}},
		{ID: "z3", Name: "South", Neighbors: []string{"z2"}},
		{ID: "z4", Name: "Island"},
	}
	if edit != nil {
		edit(st)
	}
	f := &fixture{
		store: &memStore{st: st},
		clock: &clock{t: start},
		pub:   &recorder{},
		arch:  &archiveRecorder{},
	}
	f.e = NewEngine(f.store, Options{
		Rules:     DefaultRules(),
		Seed:      testSeed(),
		Publisher: f.pub,
		Archiver:  f.arch,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:       f.clock.Now,
	})
	if err := f.e.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return f
}

func (f *fixture) state() *State {
	st, _ := f.e.current()
	return st
}

// withTask opens a verification and assigns a task to it.
func (f *fixture) withTask(t *testing.T, teamID, territoryID string) VerifyRequest {
	t.Helper()
	ctx := context.Background()
	v, err := f.e.RequestVerification(ctx, teamID, territoryID, nil)
	if err != nil {
		t.Fatalf("request verification %s/%s: %v", teamID, territoryID, err)
	}
	v, err = f.e.AssignTask(ctx, v.ID, "Photograph the fountain")
	if err != nil {
		t.Fatalf("assign task: %v", err)
	}
	return v
}

func (f *fixture) submit(t *testing.T, teamID, territoryID string) ClaimRequest {
	t.Helper()
	f.withTask(t, teamID, territoryID)
	c, err := f.e.SubmitClaim(context.Background(), teamID, territoryID, "42 benches")
	if err != nil {
		t.Fatalf("submit claim %s/%s: %v", teamID, territoryID, err)
	}
	return c
}

func (f *fixture) capture(t *testing.T, teamID, territoryID string) {
	t.Helper()
	c := f.submit(t, teamID, territoryID)
	if _, err := f.e.ResolveClaim(context.Background(), c.ID, true); err != nil {
		t.Fatalf("resolve claim: %v", err)
	}
}

func TestClaimWorkflow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	v, err := f.e.RequestVerification(ctx, "t1", "z1", &Location{Lat: 50.08, Lng: 14.42})
	if err != nil {
		t.Fatalf("request verification: %v", err)
	}
	if v.Status != VerifyPending || v.Lat == nil || *v.Lat != 50.08 {
		t.Fatalf("unexpected verification: %+v", v)
	}

	again, err := f.e.RequestVerification(ctx, "t1", "z1", nil)
	if err != nil {
		t.Fatalf("repeat request: %v", err)
	}
	if again.ID != v.ID {
		t.Errorf("expected existing request %s, got %s", v.ID, again.ID)
	}

	if _, err := f.e.SubmitClaim(ctx, "t1", "z1", "early"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified before task, got %v", err)
	}

	v, err = f.e.ResolveVerification(ctx, v.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if want := start.Add(10 * time.Minute).UnixMilli(); v.ExpiresAtMs != want {
		t.Errorf("expected expiry %d, got %d", want, v.ExpiresAtMs)
	}

	f.clock.advance(time.Minute)
	v, err = f.e.AssignTask(ctx, v.ID, "  Count the lamps  ")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if v.AssignedTask != "Count the lamps" || v.Status != VerifyTaskAssigned {
		t.Fatalf("unexpected assignment: %+v", v)
	}

	claim, err := f.e.SubmitClaim(ctx, "t1", "z1", "seven")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if claim.Question != "Count the lamps" {
		t.Errorf("expected question from assigned task, got %q", claim.Question)
	}
	if got := f.state().verifyRequest(v.ID).ClaimRequestID; got != claim.ID {
		t.Errorf("expected verification consumed by %s, got %q", claim.ID, got)
	}

	f.clock.advance(time.Minute)
	claim, err = f.e.ResolveClaim(ctx, claim.ID, true)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if claim.Status != ClaimApproved {
		t.Fatalf("expected approved, got %s", claim.Status)
	}

	st := f.state()
	now := f.clock.Now().UnixMilli()
	z1 := st.territory("z1")
	if z1.OwnerTeamID != "t1" || z1.CapturedAtMs != now {
		t.Errorf("unexpected territory: %+v", z1)
	}
	if got := st.TerritoryLocks["z1"]; got != now+(30*time.Minute).Milliseconds() {
		t.Errorf("unexpected territory lock %d", got)
	}
	if st.TeamStats["t1"].Captures != 1 || !st.TeamEverOwned["t1"] {
		t.Errorf("unexpected stats %+v everOwned=%v", st.TeamStats["t1"], st.TeamEverOwned["t1"])
	}
	if n := len(st.EventLog); n != 1 || st.EventLog[0].Kind != "claim" {
		t.Fatalf("expected one claim event, got %+v", st.EventLog)
	}
	if f.store.st.territory("z1").OwnerTeamID != "t1" {
		t.Error("expected ownership persisted")
	}
	if f.pub.last != st {
		t.Error("expected committed state published")
	}
}

func TestRequestVerificationChecks(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		setup   func(t *testing.T, f *fixture)
		team    string
		target  string
		want    error
		kind    Kind
		minutes int
	}{
		{
			name: "game locked",
			setup: func(t *testing.T, f *fixture) {
				if err := f.e.SetGameLocked(ctx, true); err != nil {
					t.Fatal(err)
				}
			},
			team: "t1", target: "z1", want: ErrGameLocked,
		},
		{
			name: "missing territory",
			team: "t1", target: "z9", want: ErrNoTerritory,
		},
		{
			name:  "already owned",
			setup: func(t *testing.T, f *fixture) { f.capture(t, "t2", "z1") },
			team:  "t1", target: "z1", want: ErrAlreadyOwned,
		},
		{
			name:  "not adjacent",
			setup: func(t *testing.T, f *fixture) { f.capture(t, "t1", "z1") },
			team:  "t1", target: "z3", want: ErrNotAdjacent,
		},
		{
			name: "team cooldown",
			setup: func(t *testing.T, f *fixture) {
				if err := f.e.SetTeamCooldown(ctx, "t1", 90*time.Second, "penalty"); err != nil {
					t.Fatal(err)
				}
			},
			team: "t1", target: "z1", kind: KindRateLimited, minutes: 2,
		},
		{
			name: "wrong answer lock",
			setup: func(t *testing.T, f *fixture) {
				c := f.submit(t, "t1", "z1")
				if _, err := f.e.ResolveClaim(ctx, c.ID, false); err != nil {
					t.Fatal(err)
				}
				f.clock.advance(29*time.Minute + 30*time.Second)
			},
			team: "t1", target: "z1", kind: KindLocked, minutes: 1,
		},
		{
			name:  "claim pending",
			setup: func(t *testing.T, f *fixture) { f.submit(t, "t1", "z1") },
			team:  "t1", target: "z1", want: ErrClaimPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			_, err := f.e.RequestVerification(ctx, tt.team, tt.target, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.kind != KindInternal {
				var ge *Error
				if !errors.As(err, &ge) || ge.Kind != tt.kind {
					t.Fatalf("expected kind %d, got %v", tt.kind, err)
				}
				if ge.RetryMinutes() != tt.minutes {
					t.Errorf("expected %d min, got %d (%s)", tt.minutes, ge.RetryMinutes(), ge.Msg)
				}
			}
		})
	}
}

func TestRequestVerificationAllowed(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		edit   func(st *State)
		setup  func(t *testing.T, f *fixture)
		target string
	}{
		{
			name:   "first territory anywhere",
			target: "z4",
		},
		{
			name:   "bordering an owned territory",
			setup:  func(t *testing.T, f *fixture) { f.capture(t, "t1", "z1") },
			target: "z2",
		},
		{
			name: "only the target lists the owned territory",
			edit: func(st *State) {
				st.Territories[0].OwnerTeamID = "t1"
				st.Territories[3].Neighbors = []string{"z1"}
			},
			target: "z4",
		},
		{
			name: "only the owned territory lists the target",
			edit: func(st *State) {
				st.Territories[0].OwnerTeamID = "t1"
				st.Territories[0].Neighbors = []string{"z2", "z4"}
			},
			target: "z4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.edit)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			v, err := f.e.RequestVerification(ctx, "t1", tt.target, nil)
			if err != nil {
				t.Fatalf("expected request accepted, got %v", err)
			}
			if v.TerritoryID != tt.target || v.Status != VerifyPending {
				t.Fatalf("unexpected request %+v", v)
			}
		})
	}
}

func TestEventLogCap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	owners := []string{"t1", "t2"}
	for i := range 260 {
		if err := f.e.SetOwner(ctx, "z4", owners[i%2]); err != nil {
			t.Fatalf("set owner %d: %v", i, err)
		}
	}
	st := f.state()
	if len(st.EventLog) != 250 {
		t.Fatalf("expected 250 events kept, got %d", len(st.EventLog))
	}
	if last := st.EventLog[len(st.EventLog)-1]; last.ToTeamID != "t2" || last.FromTeamID != "t1" {
		t.Errorf("expected newest event last, got %+v", last)
	}

	view := f.e.Snapshot(Viewer{Role: RoleAdmin}, true)
	if len(view.EventLog) != 200 {
		t.Fatalf("expected 200 events in view, got %d", len(view.EventLog))
	}
	if view.EventLog[199].ID != st.EventLog[249].ID {
		t.Error("expected view to keep the newest events")
	}
}

func TestStatsConservation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	lock := func(locked bool) {
		t.Helper()
		if err := f.e.SetGameLocked(ctx, locked); err != nil {
			t.Fatalf("set locked %v: %v", locked, err)
		}
	}

	f.capture(t, "t1", "z1")
	f.clock.advance(10 * time.Minute)
	f.capture(t, "t1", "z2")
	f.capture(t, "t2", "z4")
	f.clock.advance(20 * time.Minute)
	lock(true)
	f.clock.advance(15 * time.Minute)
	lock(false)
	f.clock.advance(5 * time.Minute)
	lock(true)
	f.clock.advance(10 * time.Minute)
	lock(false)
	f.clock.advance(3 * time.Minute)
	if err := f.e.SetOwner(ctx, "z4", "t1"); err != nil {
		t.Fatal(err)
	}
	f.clock.advance(2 * time.Minute)
	lock(true)

	// Unlocked play was 30+5+5 minutes: z1 held all of it, z2 and z4 from
	// minute 10, and z4 changed hands 3 minutes into the last stretch.
	st := f.state()
	want := map[string]time.Duration{"t1": 72 * time.Minute, "t2": 28 * time.Minute}
	var total int64
	for team, d := range want {
		if got := st.TeamStats[team].TotalTimeMs; got != d.Milliseconds() {
			t.Errorf("%s: expected %v held, got %v", team, d, time.Duration(got)*time.Millisecond)
		}
		total += st.TeamStats[team].TotalTimeMs
	}
	if total != (100 * time.Minute).Milliseconds() {
		t.Errorf("expected 100 territory-minutes in total, got %d ms", total)
	}
	if st.TeamStats["t1"].Captures != 3 || st.TeamStats["t2"].Captures != 1 {
		t.Errorf("unexpected captures %+v", st.TeamStats)
	}
	for _, terr := range st.Territories {
		if terr.CapturedAtMs != 0 {
			t.Errorf("expected clocks stopped while locked, %s has %d", terr.ID, terr.CapturedAtMs)
		}
	}
}

func TestRevisionOrdersCommits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	rev := f.state().Revision
	f.withTask(t, "t1", "z1")
	if got := f.state().Revision; got != rev+2 {
		t.Fatalf("expected two commits after revision %d, got %d", rev, got)
	}
	rev = f.state().Revision
	if _, err := f.e.RequestVerification(ctx, "t1", "z9", nil); err == nil {
		t.Fatal("expected error")
	}
	if err := f.e.SetGameLocked(ctx, false); err != nil {
		t.Fatal(err)
	}
	if got := f.state().Revision; got != rev {
		t.Fatalf("expected revision unchanged without a commit, got %d after %d", got, rev)
	}
	if err := f.e.SetGameLocked(ctx, true); err != nil {
		t.Fatal(err)
	}
	if f.pub.last.Revision != rev+1 || f.store.st.Revision != rev+1 {
		t.Fatalf("expected published and saved revision %d, got %d/%d", rev+1, f.pub.last.Revision, f.store.st.Revision)
	}
}

func TestTerritoryLockAfterCapture(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.capture(t, "t1", "z1")
	if err := f.e.SetOwner(ctx, "z1", ""); err != nil {
		t.Fatalf("clear owner: %v", err)
	}

	_, err := f.e.RequestVerification(ctx, "t2", "z1", nil)
	if KindOf(err) != KindLocked {
		t.Fatalf("expected locked, got %v", err)
	}
	f.clock.advance(30 * time.Minute)
	if _, err := f.e.RequestVerification(ctx, "t2", "z1", nil); err != nil {
		t.Fatalf("expected lock expired, got %v", err)
	}
}

func TestSubmitClaimTaskWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.withTask(t, "t1", "z2")

	f.clock.advance(60 * time.Minute)
	if _, err := f.e.SubmitClaim(ctx, "t1", "z2", "late"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified after task window, got %v", err)
	}
	// An expired verification no longer blocks a new one.
	v, err := f.e.RequestVerification(ctx, "t1", "z2", nil)
	if err != nil {
		t.Fatalf("request after expiry: %v", err)
	}
	if v.Status != VerifyPending {
		t.Errorf("expected new pending request, got %s", v.Status)
	}
}

func TestSubmitClaimValidation(t *testing.T) {
	f := newFixture(t, func(*State) {})
	f.e.rules.MaxAnswerLen = 5
	ctx := context.Background()

	if _, err := f.e.SubmitClaim(ctx, "t1", "z1", "   "); !errors.Is(err, ErrAnswerRequired) {
		t.Errorf("expected ErrAnswerRequired, got %v", err)
	}
	if _, err := f.e.SubmitClaim(ctx, "t1", "z1", "žluťoučký"); KindOf(err) != KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRaceResolution(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a := f.submit(t, "t1", "z2")
	b := f.submit(t, "t2", "z2")

	if _, err := f.e.ResolveClaim(ctx, a.ID, true); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	st := f.state()
	if got := st.claimRequest(b.ID); got.Status != ClaimRejected || got.RejectReason != ReasonTerritoryCapturedByOther {
		t.Fatalf("expected rival rejected as captured by other, got %+v", got)
	}
	if _, err := f.e.ResolveClaim(ctx, b.ID, true); !errors.Is(err, ErrResolved) {
		t.Fatalf("expected ErrResolved, got %v", err)
	}
	if owner := f.state().territory("z2").OwnerTeamID; owner != "t1" {
		t.Errorf("expected t1 to keep z2, got %s", owner)
	}
}

func TestResolveClaimTerritoryTaken(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	c := f.submit(t, "t1", "z4")
	if err := f.e.SetOwner(ctx, "z4", "t2"); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	got, err := f.e.ResolveClaim(ctx, c.ID, true)
	if !errors.Is(err, ErrAlreadyOwned) {
		t.Fatalf("expected ErrAlreadyOwned, got %v", err)
	}
	if got.RejectReason != ReasonTerritoryAlreadyOwned {
		t.Errorf("expected reason %s, got %s", ReasonTerritoryAlreadyOwned, got.RejectReason)
	}
	if saved := f.store.st.claimRequest(c.ID); saved.Status != ClaimRejected {
		t.Errorf("expected rejection persisted, got %s", saved.Status)
	}
}

func TestWrongAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.e.rules.WrongAnswerCooldown = 5 * time.Minute
	ctx := context.Background()

	c := f.submit(t, "t1", "z1")
	got, err := f.e.ResolveClaim(ctx, c.ID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	now := f.clock.Now().UnixMilli()
	if got.RejectReason != ReasonWrongAnswer || got.CooldownUntilMs != now+(30*time.Minute).Milliseconds() {
		t.Fatalf("unexpected rejection: %+v", got)
	}
	st := f.state()
	if l := st.AttackLocks["t1"]["z1"]; l.UntilMs != got.CooldownUntilMs {
		t.Errorf("expected team lock until %d, got %+v", got.CooldownUntilMs, l)
	}
	if cd := st.TeamCooldowns["t1"]; cd.UntilMs != now+(5*time.Minute).Milliseconds() {
		t.Errorf("unexpected cooldown %+v", cd)
	}

	f.clock.advance(5 * time.Minute)
	if _, err := f.e.RequestVerification(ctx, "t1", "z2", nil); err != nil {
		t.Errorf("expected other territory open after cooldown, got %v", err)
	}
	if _, err := f.e.RequestVerification(ctx, "t1", "z1", nil); KindOf(err) != KindLocked {
		t.Errorf("expected z1 still locked for t1, got %v", err)
	}
}

func TestStartDelay(t *testing.T) {
	f := newFixture(t, func(st *State) {
		st.Config.ClaimStartDelayMs = (10 * time.Minute).Milliseconds()
	})
	ctx := context.Background()

	_, err := f.e.RequestVerification(ctx, "t1", "z1", nil)
	var ge *Error
	if !errors.As(err, &ge) || ge.Kind != KindRateLimited || ge.RetryMinutes() != 10 {
		t.Fatalf("expected start delay for 10 min, got %v", err)
	}

	// A team that ever owned a territory skips the delay.
	if err := f.e.SetOwner(ctx, "z1", "t2"); err != nil {
		t.Fatal(err)
	}
	if err := f.e.SetOwner(ctx, "z1", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.e.RequestVerification(ctx, "t2", "z4", nil); err != nil {
		t.Fatalf("expected ever-owned team to bypass delay, got %v", err)
	}

	f.clock.advance(10 * time.Minute)
	if _, err := f.e.RequestVerification(ctx, "t1", "z1", nil); err != nil {
		t.Fatalf("expected delay over, got %v", err)
	}
}

func TestGameLockBanksHoldingTime(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.capture(t, "t1", "z1")

	f.clock.advance(10 * time.Minute)
	if err := f.e.SetGameLocked(ctx, true); err != nil {
		t.Fatalf("lock: %v", err)
	}
	st := f.state()
	if got := st.TeamStats["t1"].TotalTimeMs; got != (10 * time.Minute).Milliseconds() {
		t.Errorf("expected 10 min banked, got %d", got)
	}
	if st.territory("z1").CapturedAtMs != 0 {
		t.Error("expected clock stopped while locked")
	}
	if _, err := f.e.ResolveVerification(ctx, "cv_x", true); !errors.Is(err, ErrGameLocked) {
		t.Errorf("expected ErrGameLocked, got %v", err)
	}
	if err := f.e.SetOwner(ctx, "z1", "t2"); !errors.Is(err, ErrGameLocked) {
		t.Errorf("expected ErrGameLocked from set owner, got %v", err)
	}
	if st := f.state(); st.territory("z1").OwnerTeamID != "t1" || st.TeamStats["t2"].Captures != 0 {
		t.Errorf("expected owner untouched while locked, got %+v", st.territory("z1"))
	}

	f.clock.advance(5 * time.Minute)
	if err := f.e.SetGameLocked(ctx, false); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	f.clock.advance(2 * time.Minute)
	if err := f.e.SetOwner(ctx, "z1", "t2"); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	st = f.state()
	if got := st.TeamStats["t1"].TotalTimeMs; got != (12 * time.Minute).Milliseconds() {
		t.Errorf("expected 12 min total, got %d", got)
	}
	if st.TeamStats["t2"].Captures != 1 {
		t.Errorf("expected owner_set to count as capture, got %+v", st.TeamStats["t2"])
	}
	if last := st.EventLog[len(st.EventLog)-1]; last.Kind != "owner_set" || last.FromTeamID != "t1" || last.ToTeamID != "t2" {
		t.Errorf("unexpected event %+v", last)
	}
}

func TestResetTerritories(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.capture(t, "t1", "z1")
	f.withTask(t, "t2", "z4")
	f.clock.advance(time.Hour)

	if err := f.e.ResetTerritories(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	st := f.state()
	for _, tr := range st.Territories {
		if tr.OwnerTeamID != "" {
			t.Errorf("expected %s unowned", tr.ID)
		}
	}
	if len(st.ClaimRequests)+len(st.ClaimVerifyRequests)+len(st.EventLog) != 0 {
		t.Error("expected requests and events cleared")
	}
	if st.TeamStats["t1"] != (TeamStats{}) {
		t.Errorf("expected stats cleared, got %+v", st.TeamStats["t1"])
	}
	if st.Config.GameStartMs != f.clock.Now().UnixMilli() {
		t.Error("expected game clock restarted")
	}
	if len(f.arch.states) != 1 || f.arch.states[0].territory("z1").OwnerTeamID != "t1" {
		t.Error("expected pre-reset state archived")
	}
	if len(st.Territories[0].Neighbors) == 0 {
		t.Error("expected geometry kept")
	}
}

func TestResetTeams(t *testing.T) {
	f := newFixture(t, func(st *State) {
		st.Teams = []Team{{ID: "x", Name: "Extra", Pin: "0"}}
		st.Config.AdminPin = "changed"
	})
	if err := f.e.ResetTeams(context.Background()); err != nil {
		t.Fatalf("reset teams: %v", err)
	}
	st := f.state()
	if len(st.Teams) != 2 || st.Config.AdminPin != "pin-admin" {
		t.Errorf("expected seeded teams, got %+v pin %q", st.Teams, st.Config.AdminPin)
	}
	if _, ok := st.TeamStats["t2"]; !ok {
		t.Error("expected stats entry for seeded team")
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	before := f.state()
	published := f.pub.n

	f.store.fail = errors.New("disk full")
	if _, err := f.e.RequestVerification(ctx, "t1", "z1", nil); err == nil {
		t.Fatal("expected save error")
	}
	if f.state() != before {
		t.Error("expected state untouched after failed save")
	}
	if len(f.state().ClaimVerifyRequests) != 0 {
		t.Error("expected no request recorded")
	}
	if f.pub.n != published {
		t.Error("expected nothing published")
	}

	f.store.fail = nil
	if _, err := f.e.RequestVerification(ctx, "t1", "z1", nil); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestRuleErrorsDoNotCommit(t *testing.T) {
	f := newFixture(t, nil)
	saves := f.store.saves
	if _, err := f.e.RequestVerification(context.Background(), "t1", "nope", nil); err == nil {
		t.Fatal("expected error")
	}
	if f.store.saves != saves {
		t.Error("expected no save on rule violation")
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)

	team, err := f.e.Login("t1", " pin-red ")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if team.Name != "Red" {
		t.Errorf("unexpected team %+v", team)
	}
	if _, err := f.e.Login("t1", "pin-blue"); !errors.Is(err, ErrBadPin) {
		t.Errorf("expected ErrBadPin, got %v", err)
	}
	if _, err := f.e.Login("t9", "pin-red"); !errors.Is(err, ErrNoTeam) {
		t.Errorf("expected ErrNoTeam, got %v", err)
	}
	if err := f.e.AdminLogin("pin-admin"); err != nil {
		t.Errorf("admin login: %v", err)
	}
	if err := f.e.AdminLogin(""); !errors.Is(err, ErrBadPin) {
		t.Errorf("expected ErrBadPin, got %v", err)
	}
}

func TestLoadFromSeed(t *testing.T) {
	store := &memStore{}
	e := NewEngine(store, Options{
		Seed:   testSeed(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return start },
	})
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if store.st == nil || len(store.st.Teams) != 2 {
		t.Fatal("expected seeded state saved")
	}
	if store.st.Config.GameStartMs != start.UnixMilli() {
		t.Errorf("unexpected game start %d", store.st.Config.GameStartMs)
	}
}

func TestLoadHealsEverOwned(t *testing.T) {
	f := newFixture(t, func(st *State) {
		st.Territories[3].OwnerTeamID = "t2"
		st.TeamEverOwned = nil
		st.TeamStats = nil
	})
	st := f.state()
	if !st.TeamEverOwned["t2"] {
		t.Error("expected ever-owned derived from ownership")
	}
	if _, ok := st.TeamStats["t1"]; !ok {
		t.Error("expected stats entry created")
	}
}
