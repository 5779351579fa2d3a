package game

import (
	"slices"
	"time"
)

// Rules are the tunable timings and limits of the workflow.
type Rules struct {
	VerifyWindow        time.Duration
	TaskWindow          time.Duration
	CaptureLock         time.Duration
	WrongAnswerLock     time.Duration
	WrongAnswerCooldown time.Duration
	MaxAnswerLen        int
	EventLogCap         int
}

func DefaultRules() Rules {
	return Rules{
		VerifyWindow:    10 * time.Minute,
		TaskWindow:      60 * time.Minute,
		CaptureLock:     30 * time.Minute,
		WrongAnswerLock: 30 * time.Minute,
		MaxAnswerLen:    2000,
		EventLogCap:     250,
	}
}

func (s *State) territory(id string) *Territory {
	for i := range s.Territories {
		if s.Territories[i].ID == id {
			return &s.Territories[i]
		}
	}
	return nil
}

func (s *State) team(id string) *Team {
	for i := range s.Teams {
		if s.Teams[i].ID == id {
			return &s.Teams[i]
		}
	}
	return nil
}

func (s *State) ownsAny(teamID string) bool {
	for _, t := range s.Territories {
		if t.OwnerTeamID == teamID {
			return true
		}
	}
	return false
}

// adjacentToOwned checks adjacency in either direction so a one-sided
// neighbor list still counts.
func (s *State) adjacentToOwned(teamID string, target *Territory) bool {
	for _, t := range s.Territories {
		if t.OwnerTeamID != teamID {
			continue
		}
		if slices.Contains(t.Neighbors, target.ID) || slices.Contains(target.Neighbors, t.ID) {
			return true
		}
	}
	return false
}

func (s *State) activeCooldown(teamID string, now int64) (Cooldown, bool) {
	cd, ok := s.TeamCooldowns[teamID]
	return cd, ok && now < cd.UntilMs
}

func (s *State) activeTeamLock(teamID, territoryID string, now int64) (TeamLock, bool) {
	l, ok := s.AttackLocks[teamID][territoryID]
	return l, ok && l.Active(now)
}

func (s *State) activeTerritoryLock(territoryID string, now int64) (int64, bool) {
	until, ok := s.TerritoryLocks[territoryID]
	return until, ok && now < until
}

// startBlockedUntil reports the end of the start-of-game grace period for a
// team that never owned anything.
func (s *State) startBlockedUntil(teamID string, now int64) (int64, bool) {
	if s.Config.ClaimStartDelayMs <= 0 || s.TeamEverOwned[teamID] {
		return 0, false
	}
	until := s.Config.GameStartMs + s.Config.ClaimStartDelayMs
	return until, now < until
}

func (s *State) pendingClaim(teamID, territoryID string) *ClaimRequest {
	for i := range s.ClaimRequests {
		r := &s.ClaimRequests[i]
		if r.TeamID == teamID && r.TerritoryID == territoryID && r.Status == ClaimPending {
			return r
		}
	}
	return nil
}

// openVerification returns the team's pending or live verification for the
// territory.
func (s *State) openVerification(teamID, territoryID string, now int64) *VerifyRequest {
	for i := range s.ClaimVerifyRequests {
		r := &s.ClaimVerifyRequests[i]
		if r.TeamID != teamID || r.TerritoryID != territoryID {
			continue
		}
		if r.Status == VerifyPending || r.Live(now) {
			return r
		}
	}
	return nil
}

func (s *State) claimRequest(id string) *ClaimRequest {
	for i := range s.ClaimRequests {
		if s.ClaimRequests[i].ID == id {
			return &s.ClaimRequests[i]
		}
	}
	return nil
}

func (s *State) verifyRequest(id string) *VerifyRequest {
	for i := range s.ClaimVerifyRequests {
		if s.ClaimVerifyRequests[i].ID == id {
			return &s.ClaimVerifyRequests[i]
		}
	}
	return nil
}

// checkEligible runs the ordered gate shared by verification requests and
// claim submissions.
func (s *State) checkEligible(teamID, territoryID string, now int64) (*Territory, error) {
	if s.Config.GameLocked {
		return nil, ErrGameLocked
	}
	if cd, ok := s.activeCooldown(teamID, now); ok {
		return nil, rateLimited("your team is cooling down", cd.UntilMs-now)
	}
	t := s.territory(territoryID)
	if t == nil {
		return nil, ErrNoTerritory
	}
	if t.OwnerTeamID != "" {
		return nil, ErrAlreadyOwned
	}
	if l, ok := s.activeTeamLock(teamID, territoryID, now); ok {
		if l.Indefinite {
			return nil, &Error{Kind: KindLocked, Msg: "territory is locked for your team"}
		}
		return nil, lockedFor("territory is locked for your team", l.UntilMs-now)
	}
	if until, ok := s.activeTerritoryLock(territoryID, now); ok {
		return nil, lockedFor("territory is locked", until-now)
	}
	if s.ownsAny(teamID) && !s.adjacentToOwned(teamID, t) {
		return nil, ErrNotAdjacent
	}
	if until, ok := s.startBlockedUntil(teamID, now); ok {
		return nil, rateLimited("claiming has not opened yet", until-now)
	}
	if s.pendingClaim(teamID, territoryID) != nil {
		return nil, ErrClaimPending
	}
	return t, nil
}

// CanClaim reports whether the team may start the claim workflow for the
// territory right now.
func CanClaim(s *State, teamID, territoryID string, now int64) bool {
	_, err := s.checkEligible(teamID, territoryID, now)
	return err == nil
}
