package game

import (
	"github.com/playperu/territories/internal/geometry"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleTeam  Role = "team"
	// RoleGuest sees the map and scores but no requests, locks or events.
	RoleGuest Role = "guest"
)

// Viewer is who a view is rendered for.
type Viewer struct {
	Role   Role
	TeamID string
}

func (v Viewer) IsAdmin() bool { return v.Role == RoleAdmin }

// Key identifies viewers that see identical views.
func (v Viewer) Key() string {
	switch {
	case v.IsAdmin():
		return "admin"
	case v.Role == RoleTeam:
		return "team:" + v.TeamID
	}
	return "guest"
}

type ConfigView struct {
	GameStartMs       int64      `json:"gameStartMs"`
	GameLocked        bool       `json:"gameLocked"`
	ClaimStartDelayMs int64      `json:"claimStartDelayMs"`
	MapMode           string     `json:"mapMode,omitempty"`
	SimpleMap         *SimpleMap `json:"simpleMap,omitempty"`
}

type TeamView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type TerritoryView struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	OwnerTeamID  string           `json:"ownerTeamId,omitempty"`
	CapturedAtMs int64            `json:"capturedAtMs,omitempty"`
	Polygon      []geometry.Point `json:"polygon,omitempty"`
	Neighbors    []string         `json:"neighbors,omitempty"`
}

// View is the redacted state sent to clients. Pins never appear in it.
type View struct {
	Version             int                            `json:"version"`
	Revision            int64                          `json:"revision"`
	Viewer              ViewerInfo                     `json:"viewer"`
	Config              ConfigView                     `json:"config"`
	Teams               []TeamView                     `json:"teams"`
	Territories         []TerritoryView                `json:"territories"`
	TerritoryLocks      map[string]int64               `json:"territoryLocks"`
	AttackLocks         map[string]map[string]TeamLock `json:"attackLocks"`
	ClaimVerifyRequests []VerifyRequest                `json:"claimVerifyRequests"`
	ClaimRequests       []ClaimRequest                 `json:"claimRequests"`
	Cooldown            *Cooldown                      `json:"cooldown,omitempty"`
	TeamCooldowns       map[string]Cooldown            `json:"teamCooldowns,omitempty"`
	TeamStats           map[string]TeamStats           `json:"teamStats"`
	EventLog            []Event                        `json:"eventLog"`
	ServerTimeMs        int64                          `json:"serverTimeMs"`
}

type ViewerInfo struct {
	Role   Role   `json:"role"`
	TeamID string `json:"teamId,omitempty"`
}

// viewEventLimit is how many of the newest events a view carries.
const viewEventLimit = 200

// Sanitize renders st for viewer. Teams see only their own requests, locks,
// cooldown and the events naming them; admins see everything. Compact
// views leave out polygons and neighbor lists.
func Sanitize(st *State, viewer Viewer, compact bool, now int64) View {
	v := View{
		Version:  st.Version,
		Revision: st.Revision,
		Viewer:   ViewerInfo{Role: viewer.Role, TeamID: viewer.TeamID},
		Config: ConfigView{
			GameStartMs:       st.Config.GameStartMs,
			GameLocked:        st.Config.GameLocked,
			ClaimStartDelayMs: st.Config.ClaimStartDelayMs,
			MapMode:           st.Config.MapMode,
			SimpleMap:         st.Config.SimpleMap,
		},
		Teams:               teamViews(st.Teams),
		Territories:         make([]TerritoryView, 0, len(st.Territories)),
		TerritoryLocks:      map[string]int64{},
		AttackLocks:         map[string]map[string]TeamLock{},
		ClaimVerifyRequests: []VerifyRequest{},
		ClaimRequests:       []ClaimRequest{},
		TeamStats:           map[string]TeamStats{},
		EventLog:            []Event{},
		ServerTimeMs:        now,
	}
	for _, t := range st.Territories {
		tv := TerritoryView{
			ID:           t.ID,
			Name:         t.Name,
			OwnerTeamID:  t.OwnerTeamID,
			CapturedAtMs: t.CapturedAtMs,
		}
		if tv.Name == "" {
			tv.Name = t.ID
		}
		if !compact {
			tv.Polygon = t.Polygon
			tv.Neighbors = t.Neighbors
		}
		v.Territories = append(v.Territories, tv)
	}
	for id, until := range st.TerritoryLocks {
		if now < until {
			v.TerritoryLocks[id] = until
		}
	}
	for teamID, locks := range st.AttackLocks {
		if !viewer.IsAdmin() && (viewer.Role != RoleTeam || teamID != viewer.TeamID) {
			continue
		}
		for territoryID, l := range locks {
			if !l.Active(now) {
				continue
			}
			if v.AttackLocks[teamID] == nil {
				v.AttackLocks[teamID] = map[string]TeamLock{}
			}
			v.AttackLocks[teamID][territoryID] = l
		}
	}
	for _, r := range st.ClaimVerifyRequests {
		if viewer.IsAdmin() || r.TeamID == viewer.TeamID {
			v.ClaimVerifyRequests = append(v.ClaimVerifyRequests, r)
		}
	}
	for _, r := range st.ClaimRequests {
		if viewer.IsAdmin() || r.TeamID == viewer.TeamID {
			v.ClaimRequests = append(v.ClaimRequests, r)
		}
	}
	for _, ev := range st.EventLog {
		if viewer.IsAdmin() || ev.involves(viewer.TeamID) {
			v.EventLog = append(v.EventLog, ev)
		}
	}
	if n := len(v.EventLog); n > viewEventLimit {
		v.EventLog = v.EventLog[n-viewEventLimit:]
	}
	for id, s := range st.TeamStats {
		v.TeamStats[id] = s
	}
	if viewer.IsAdmin() {
		v.TeamCooldowns = map[string]Cooldown{}
		for id, cd := range st.TeamCooldowns {
			if now < cd.UntilMs {
				v.TeamCooldowns[id] = cd
			}
		}
	} else if cd, ok := st.activeCooldown(viewer.TeamID, now); ok {
		v.Cooldown = &cd
	}
	return v
}

func teamViews(teams []Team) []TeamView {
	out := make([]TeamView, 0, len(teams))
	for _, t := range teams {
		out = append(out, TeamView{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	return out
}
