package game

// TerritoryInfo describes what the viewer can do with one territory.
type TerritoryInfo struct {
	Territory TerritoryView `json:"territory"`

	CanClaim                    bool `json:"canClaim"`
	CanRequestClaimVerification bool `json:"canRequestClaimVerification"`
	// CanAttack is always false: owned territories cannot be taken.
	CanAttack bool `json:"canAttack"`

	// Locked is the viewer team's own lock on this territory, set by a wrong
	// answer. LockUntilMs is zero when the lock has no end.
	Locked      bool  `json:"locked"`
	LockUntilMs int64 `json:"lockUntilMs,omitempty"`

	// TerritoryLocked is the capture lock that applies to every team.
	TerritoryLocked      bool  `json:"territoryLocked"`
	TerritoryLockUntilMs int64 `json:"territoryLockUntilMs,omitempty"`

	ClaimTask           string `json:"claimTask,omitempty"`
	ClaimRequestPending bool   `json:"claimRequestPending"`
	ClaimRequestID      string `json:"claimRequestId,omitempty"`

	ClaimVerificationPending      bool   `json:"claimVerificationPending"`
	ClaimVerificationApproved     bool   `json:"claimVerificationApproved"`
	ClaimVerificationTaskAssigned bool   `json:"claimVerificationTaskAssigned"`
	ClaimVerificationID           string `json:"claimVerificationId,omitempty"`
	ClaimVerificationExpiresAtMs  int64  `json:"claimVerificationExpiresAtMs,omitempty"`

	ClaimStartBlockedUntilMs int64  `json:"claimStartBlockedUntilMs,omitempty"`
	CooldownUntilMs          int64  `json:"cooldownUntilMs,omitempty"`
	CooldownReason           string `json:"cooldownReason,omitempty"`
}

// TerritoryInfo reports the territory and, for a team viewer, its claim
// options and open requests.
func (e *Engine) TerritoryInfo(viewer Viewer, territoryID string) (TerritoryInfo, error) {
	st, now := e.current()
	t := st.territory(territoryID)
	if t == nil {
		return TerritoryInfo{}, ErrNoTerritory
	}
	info := TerritoryInfo{
		Territory: TerritoryView{
			ID:           t.ID,
			Name:         t.Name,
			OwnerTeamID:  t.OwnerTeamID,
			CapturedAtMs: t.CapturedAtMs,
			Polygon:      t.Polygon,
			Neighbors:    t.Neighbors,
		},
	}
	if info.Territory.Name == "" {
		info.Territory.Name = t.ID
	}
	if until, ok := st.activeTerritoryLock(t.ID, now); ok {
		info.TerritoryLocked = true
		info.TerritoryLockUntilMs = until
	}
	if viewer.IsAdmin() {
		return info, nil
	}

	teamID := viewer.TeamID
	if l, ok := st.activeTeamLock(teamID, t.ID, now); ok {
		info.Locked = true
		info.LockUntilMs = l.UntilMs
	}
	if cd, ok := st.activeCooldown(teamID, now); ok {
		info.CooldownUntilMs = cd.UntilMs
		info.CooldownReason = cd.Reason
	}
	if until, ok := st.startBlockedUntil(teamID, now); ok {
		info.ClaimStartBlockedUntilMs = until
	}
	if r := st.pendingClaim(teamID, t.ID); r != nil {
		info.ClaimRequestPending = true
		info.ClaimRequestID = r.ID
		info.ClaimTask = r.Question
	}
	if v := st.openVerification(teamID, t.ID, now); v != nil {
		info.ClaimVerificationID = v.ID
		info.ClaimVerificationExpiresAtMs = v.ExpiresAtMs
		switch v.Status {
		case VerifyPending:
			info.ClaimVerificationPending = true
		case VerifyApproved:
			info.ClaimVerificationApproved = true
		case VerifyTaskAssigned:
			info.ClaimVerificationTaskAssigned = true
			info.ClaimTask = v.AssignedTask
		}
	}

	eligible := CanClaim(st, teamID, t.ID, now)
	open := info.ClaimVerificationPending || info.ClaimVerificationApproved || info.ClaimVerificationTaskAssigned
	info.CanRequestClaimVerification = eligible && !open
	info.CanClaim = eligible && info.ClaimVerificationTaskAssigned
	return info, nil
}
