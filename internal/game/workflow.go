package game

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/playperu/territories/internal/geometry"
)

// Location is an optional position reported with a verification request.
type Location struct {
	Lat float64
	Lng float64
}

// RequestVerification opens a presence check for teamID at territoryID.
// An existing pending or live request is returned instead of a new one.
func (e *Engine) RequestVerification(ctx context.Context, teamID, territoryID string, loc *Location) (VerifyRequest, error) {
	var out VerifyRequest
	err := e.update(ctx, func(st *State, now int64) error {
		if _, err := st.checkEligible(teamID, territoryID, now); err != nil {
			return err
		}
		if r := st.openVerification(teamID, territoryID, now); r != nil {
			out = *r
			return errUnchanged
		}
		out = VerifyRequest{
			ID:          newID("cv"),
			TerritoryID: territoryID,
			TeamID:      teamID,
			Status:      VerifyPending,
			CreatedAtMs: now,
		}
		if loc != nil {
			lat, lng := loc.Lat, loc.Lng
			out.Lat, out.Lng = &lat, &lng
		}
		st.ClaimVerifyRequests = append(st.ClaimVerifyRequests, out)
		return nil
	})
	return out, err
}

// ResolveVerification approves or rejects a pending verification.
func (e *Engine) ResolveVerification(ctx context.Context, id string, ok bool) (VerifyRequest, error) {
	var out VerifyRequest
	err := e.update(ctx, func(st *State, now int64) error {
		if st.Config.GameLocked {
			return ErrGameLocked
		}
		r := st.verifyRequest(id)
		if r == nil {
			return ErrNoRequest
		}
		if r.Status != VerifyPending {
			return ErrResolved
		}
		r.ResolvedAtMs = now
		if ok {
			r.Status = VerifyApproved
			r.ExpiresAtMs = now + e.rules.VerifyWindow.Milliseconds()
		} else {
			r.Status = VerifyRejected
		}
		out = *r
		return nil
	})
	return out, err
}

// AssignTask attaches the task text to a pending or approved verification
// and restarts its window.
func (e *Engine) AssignTask(ctx context.Context, id, task string) (VerifyRequest, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return VerifyRequest{}, ErrTaskRequired
	}
	var out VerifyRequest
	err := e.update(ctx, func(st *State, now int64) error {
		if st.Config.GameLocked {
			return ErrGameLocked
		}
		r := st.verifyRequest(id)
		if r == nil {
			return ErrNoRequest
		}
		if r.Status == VerifyRejected {
			return ErrResolved
		}
		if r.ClaimRequestID != "" {
			return ErrAnswered
		}
		r.Status = VerifyTaskAssigned
		r.AssignedTask = task
		r.ResolvedAtMs = now
		r.ExpiresAtMs = now + e.rules.TaskWindow.Milliseconds()
		out = *r
		return nil
	})
	return out, err
}

// SubmitClaim records the team's answer to its assigned task. The
// verification that carried the task is consumed.
func (e *Engine) SubmitClaim(ctx context.Context, teamID, territoryID, answer string) (ClaimRequest, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return ClaimRequest{}, ErrAnswerRequired
	}
	if n := utf8.RuneCountInString(answer); n > e.rules.MaxAnswerLen {
		return ClaimRequest{}, validationf("answer is too long (%d > %d characters)", n, e.rules.MaxAnswerLen)
	}
	var out ClaimRequest
	err := e.update(ctx, func(st *State, now int64) error {
		t, err := st.checkEligible(teamID, territoryID, now)
		if err != nil {
			return err
		}
		v := st.openVerification(teamID, territoryID, now)
		if v == nil || v.Status != VerifyTaskAssigned || !v.Live(now) {
			return ErrNotVerified
		}
		question := v.AssignedTask
		if question == "" && t.Tasks != nil {
			question = t.Tasks.Claim
		}
		out = ClaimRequest{
			ID:          newID("cr"),
			TerritoryID: territoryID,
			TeamID:      teamID,
			Question:    question,
			Answer:      answer,
			Status:      ClaimPending,
			CreatedAtMs: now,
		}
		v.ClaimRequestID = out.ID
		st.ClaimRequests = append(st.ClaimRequests, out)
		return nil
	})
	return out, err
}

// ResolveClaim judges a pending claim. A correct answer for a territory that
// vanished or was taken meanwhile is rejected with a reason, and that
// rejection is committed before the error is returned.
func (e *Engine) ResolveClaim(ctx context.Context, id string, correct bool) (ClaimRequest, error) {
	var out ClaimRequest
	err := e.update(ctx, func(st *State, now int64) error {
		if st.Config.GameLocked {
			return ErrGameLocked
		}
		r := st.claimRequest(id)
		if r == nil {
			return ErrNoRequest
		}
		if r.Status != ClaimPending {
			return ErrResolved
		}
		r.ResolvedAtMs = now

		if !correct {
			e.rejectWrongAnswer(st, r, now)
			out = *r
			return nil
		}
		t := st.territory(r.TerritoryID)
		switch {
		case t == nil:
			r.Status, r.RejectReason = ClaimRejected, ReasonTerritoryMissing
			out = *r
			return commitThen{ErrNoTerritory}
		case t.OwnerTeamID != "":
			r.Status, r.RejectReason = ClaimRejected, ReasonTerritoryAlreadyOwned
			out = *r
			return commitThen{ErrAlreadyOwned}
		}

		r.Status = ClaimApproved
		out = *r
		st.transfer(t, r.TeamID, now)
		st.TerritoryLocks[t.ID] = now + e.rules.CaptureLock.Milliseconds()
		st.closeRivals(t.ID, r.ID, now)
		st.addEvent(Event{
			ID:          newID("ev"),
			TsMs:        now,
			Kind:        "claim",
			TerritoryID: t.ID,
			TeamIDs:     []string{r.TeamID},
			TeamID:      r.TeamID,
			Result:      string(ClaimApproved),
		}, e.rules.EventLogCap)
		return nil
	})
	return out, err
}

func (e *Engine) rejectWrongAnswer(st *State, r *ClaimRequest, now int64) {
	until := now + e.rules.WrongAnswerLock.Milliseconds()
	r.Status = ClaimRejected
	r.RejectReason = ReasonWrongAnswer
	r.CooldownUntilMs = until
	if st.AttackLocks[r.TeamID] == nil {
		st.AttackLocks[r.TeamID] = map[string]TeamLock{}
	}
	st.AttackLocks[r.TeamID][r.TerritoryID] = TeamLock{UntilMs: until}
	if e.rules.WrongAnswerCooldown > 0 {
		st.TeamCooldowns[r.TeamID] = Cooldown{
			UntilMs: now + e.rules.WrongAnswerCooldown.Milliseconds(),
			Reason:  string(ReasonWrongAnswer),
		}
	}
	st.addEvent(Event{
		ID:          newID("ev"),
		TsMs:        now,
		Kind:        "claim",
		TerritoryID: r.TerritoryID,
		TeamIDs:     []string{r.TeamID},
		TeamID:      r.TeamID,
		Result:      string(ClaimRejected),
		Reason:      string(ReasonWrongAnswer),
	}, e.rules.EventLogCap)
}

// transfer credits the previous owner's holding time and hands t to teamID.
// An empty teamID clears ownership.
func (s *State) transfer(t *Territory, teamID string, now int64) {
	s.creditHolding(t, now)
	t.OwnerTeamID = teamID
	if teamID == "" {
		return
	}
	if !s.Config.GameLocked {
		t.CapturedAtMs = now
	}
	stats := s.TeamStats[teamID]
	stats.Captures++
	s.TeamStats[teamID] = stats
	s.TeamEverOwned[teamID] = true
}

// creditHolding adds the time t was held since capture to its owner's stats
// and stops the clock.
func (s *State) creditHolding(t *Territory, now int64) {
	if t.OwnerTeamID != "" && t.CapturedAtMs > 0 && now > t.CapturedAtMs {
		stats := s.TeamStats[t.OwnerTeamID]
		stats.TotalTimeMs += now - t.CapturedAtMs
		s.TeamStats[t.OwnerTeamID] = stats
	}
	t.CapturedAtMs = 0
}

// closeRivals rejects every other pending claim and closes every open
// verification for a territory that was just captured.
func (s *State) closeRivals(territoryID, winnerID string, now int64) {
	for i := range s.ClaimRequests {
		r := &s.ClaimRequests[i]
		if r.TerritoryID != territoryID || r.ID == winnerID || r.Status != ClaimPending {
			continue
		}
		r.Status = ClaimRejected
		r.RejectReason = ReasonTerritoryCapturedByOther
		r.ResolvedAtMs = now
	}
	for i := range s.ClaimVerifyRequests {
		r := &s.ClaimVerifyRequests[i]
		if r.TerritoryID != territoryID || r.Status == VerifyRejected || r.ClaimRequestID != "" {
			continue
		}
		r.Status = VerifyRejected
		r.ResolvedAtMs = now
	}
}

func (s *State) addEvent(ev Event, limit int) {
	s.EventLog = append(s.EventLog, ev)
	if limit > 0 && len(s.EventLog) > limit {
		s.EventLog = append([]Event(nil), s.EventLog[len(s.EventLog)-limit:]...)
	}
}

// SetOwner assigns a territory directly, or clears it when teamID is empty.
func (e *Engine) SetOwner(ctx context.Context, territoryID, teamID string) error {
	return e.update(ctx, func(st *State, now int64) error {
		if st.Config.GameLocked {
			return ErrGameLocked
		}
		t := st.territory(territoryID)
		if t == nil {
			return ErrNoTerritory
		}
		if teamID != "" && st.team(teamID) == nil {
			return ErrNoTeam
		}
		prev := t.OwnerTeamID
		if prev == teamID {
			return errUnchanged
		}
		st.transfer(t, teamID, now)
		st.addEvent(Event{
			ID:          newID("ev"),
			TsMs:        now,
			Kind:        "owner_set",
			TerritoryID: t.ID,
			TeamIDs:     nonEmpty(prev, teamID),
			FromTeamID:  prev,
			ToTeamID:    teamID,
		}, e.rules.EventLogCap)
		return nil
	})
}

func nonEmpty(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// SetGameLocked freezes or resumes the game. Locking banks holding time;
// unlocking restarts every owned territory's clock.
func (e *Engine) SetGameLocked(ctx context.Context, locked bool) error {
	return e.update(ctx, func(st *State, now int64) error {
		if st.Config.GameLocked == locked {
			return errUnchanged
		}
		for i := range st.Territories {
			t := &st.Territories[i]
			if t.OwnerTeamID == "" {
				continue
			}
			if locked {
				st.creditHolding(t, now)
			} else {
				t.CapturedAtMs = now
			}
		}
		st.Config.GameLocked = locked
		return nil
	})
}

// ResetTerritories wipes ownership, requests, locks, cooldowns, stats and
// events, and restarts the game clock. Teams and geometry are kept.
func (e *Engine) ResetTerritories(ctx context.Context) error {
	return e.update(ctx, func(st *State, now int64) error {
		e.archive(ctx, e.state)
		for i := range st.Territories {
			st.Territories[i].OwnerTeamID = ""
			st.Territories[i].CapturedAtMs = 0
		}
		st.ClaimRequests = nil
		st.ClaimVerifyRequests = nil
		st.TerritoryLocks = map[string]int64{}
		st.AttackLocks = map[string]map[string]TeamLock{}
		st.TeamCooldowns = map[string]Cooldown{}
		st.TeamEverOwned = map[string]bool{}
		st.TeamStats = map[string]TeamStats{}
		st.ensureStats()
		st.EventLog = nil
		st.Config.GameLocked = false
		st.Config.GameStartMs = now
		return nil
	})
}

// ResetTeams restores the seeded teams and admin pin.
func (e *Engine) ResetTeams(ctx context.Context) error {
	return e.update(ctx, func(st *State, now int64) error {
		e.archive(ctx, e.state)
		st.Teams = append([]Team(nil), e.seed.Teams...)
		st.Config.AdminPin = e.seed.AdminPin
		st.ensureStats()
		e.applyGeometry(st)
		return nil
	})
}

func (e *Engine) archive(ctx context.Context, st *State) {
	if e.archiver == nil {
		return
	}
	if err := e.archiver.Archive(context.WithoutCancel(ctx), st); err != nil {
		e.logger.Warn("archiving state before reset", "error", err)
	}
}

// ReplaceGeometry validates and stores a new GeoJSON document, then merges
// it into the territories.
func (e *Engine) ReplaceGeometry(ctx context.Context, raw []byte) (int, error) {
	if err := geometry.Validate(raw); err != nil {
		return 0, validationf("invalid geometry: %v", err)
	}
	var n int
	err := e.update(ctx, func(st *State, now int64) error {
		if e.geo == nil {
			return &Error{Kind: KindInternal, Msg: "no geometry source configured"}
		}
		regions, err := geometry.Compute(raw, st.Config.geometryOptions())
		if err != nil {
			return validationf("invalid geometry: %v", err)
		}
		name := st.Config.TerritoriesGeojson
		if name == "" {
			name = e.seed.Geometry
			if name == "" {
				name = "map.geojson"
			}
			st.Config.TerritoriesGeojson = name
		}
		prev, readErr := e.geo.ReadGeometry(name)
		if err := e.geo.WriteGeometry(name, raw); err != nil {
			return err
		}
		if readErr == nil {
			e.onAbort(func() error { return e.geo.WriteGeometry(name, prev) })
		}
		st.Territories = mergeRegions(st.Territories, regions)
		n = len(regions)
		return nil
	})
	return n, err
}

// SetTeamCooldown blocks a team from claiming for d. A non-positive d
// clears the cooldown.
func (e *Engine) SetTeamCooldown(ctx context.Context, teamID string, d time.Duration, reason string) error {
	return e.update(ctx, func(st *State, now int64) error {
		if st.team(teamID) == nil {
			return ErrNoTeam
		}
		if d <= 0 {
			if _, ok := st.TeamCooldowns[teamID]; !ok {
				return errUnchanged
			}
			delete(st.TeamCooldowns, teamID)
			return nil
		}
		st.TeamCooldowns[teamID] = Cooldown{UntilMs: now + d.Milliseconds(), Reason: reason}
		st.addEvent(Event{
			ID:      newID("ev"),
			TsMs:    now,
			Kind:    "cooldown",
			TeamIDs: []string{teamID},
			TeamID:  teamID,
			Reason:  reason,
		}, e.rules.EventLogCap)
		return nil
	})
}
