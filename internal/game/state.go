// Package game holds the authoritative territory game state and every rule
// that mutates it: verification and claim workflows, locks, cooldowns,
// ownership stats and role-scoped views.
package game

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/playperu/territories/internal/geometry"
)

const stateVersion = 1

// State is the whole persisted game. Committed states are never mutated;
// the Engine clones before every change.
type State struct {
	Version             int                            `json:"version"`
	// Revision counts commits; every committed state has a larger one.
	Revision            int64                          `json:"revision"`
	Config              GameConfig                     `json:"config"`
	Teams               []Team                         `json:"teams"`
	Territories         []Territory                    `json:"territories"`
	ClaimRequests       []ClaimRequest                 `json:"claimRequests"`
	ClaimVerifyRequests []VerifyRequest                `json:"claimVerifyRequests"`
	TerritoryLocks      map[string]int64               `json:"territoryLocks"`
	AttackLocks         map[string]map[string]TeamLock `json:"attackLocks"`
	TeamCooldowns       map[string]Cooldown            `json:"teamCooldowns"`
	TeamEverOwned       map[string]bool                `json:"teamEverOwned"`
	TeamStats           map[string]TeamStats           `json:"teamStats"`
	EventLog            []Event                        `json:"eventLog"`
}

type GameConfig struct {
	GameStartMs       int64  `json:"gameStartMs"`
	GameLocked        bool   `json:"gameLocked"`
	ClaimStartDelayMs int64  `json:"claimStartDelayMs,omitempty"`
	AdminPin          string `json:"adminPin"`

	// Geometry source, relative to the data directory.
	TerritoriesGeojson         string     `json:"territoriesGeojson,omitempty"`
	TerritoriesGeojsonIDPrefix string     `json:"territoriesGeojsonIdPrefix,omitempty"`
	MapMode                    string     `json:"mapMode,omitempty"`
	SimpleMap                  *SimpleMap `json:"simpleMap,omitempty"`
}

type SimpleMap struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Team struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Pin   string `json:"pin"`
}

type Territory struct {
	ID           string           `json:"id"`
	Name         string           `json:"name,omitempty"`
	Polygon      []geometry.Point `json:"polygon,omitempty"`
	Neighbors    []string         `json:"neighbors,omitempty"`
	OwnerTeamID  string           `json:"ownerTeamId,omitempty"`
	CapturedAtMs int64            `json:"capturedAtMs,omitempty"`
	Tasks        *TerritoryTasks  `json:"tasks,omitempty"`
}

type TerritoryTasks struct {
	Claim string `json:"claim,omitempty"`
}

type VerifyStatus string

const (
	VerifyPending      VerifyStatus = "pending"
	VerifyApproved     VerifyStatus = "approved"
	VerifyTaskAssigned VerifyStatus = "task_assigned"
	VerifyRejected     VerifyStatus = "rejected"
)

// VerifyRequest is a team's claim of physical presence at a territory.
type VerifyRequest struct {
	ID           string       `json:"id"`
	TerritoryID  string       `json:"territoryId"`
	TeamID       string       `json:"teamId"`
	Status       VerifyStatus `json:"status"`
	CreatedAtMs  int64        `json:"createdAtMs"`
	ResolvedAtMs int64        `json:"resolvedAtMs,omitempty"`
	ExpiresAtMs  int64        `json:"expiresAtMs,omitempty"`
	Lat          *float64     `json:"lat,omitempty"`
	Lng          *float64     `json:"lng,omitempty"`
	AssignedTask string       `json:"assignedTask,omitempty"`
	// ClaimRequestID is set once a claim answered the assigned task.
	ClaimRequestID string `json:"claimRequestId,omitempty"`
}

// Live reports whether the request still authorizes the team: approved or
// task_assigned, unexpired and not yet consumed by a claim.
func (r VerifyRequest) Live(now int64) bool {
	if r.Status != VerifyApproved && r.Status != VerifyTaskAssigned {
		return false
	}
	return r.ClaimRequestID == "" && now < r.ExpiresAtMs
}

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

type RejectReason string

const (
	ReasonWrongAnswer              RejectReason = "wrongAnswer"
	ReasonTerritoryAlreadyOwned    RejectReason = "territoryAlreadyOwned"
	ReasonTerritoryMissing         RejectReason = "territoryMissing"
	ReasonTerritoryCapturedByOther RejectReason = "territoryCapturedByOther"
)

// ClaimRequest is a team's answer to an assigned task.
type ClaimRequest struct {
	ID              string       `json:"id"`
	TerritoryID     string       `json:"territoryId"`
	TeamID          string       `json:"teamId"`
	Question        string       `json:"question"`
	Answer          string       `json:"answer"`
	Status          ClaimStatus  `json:"status"`
	RejectReason    RejectReason `json:"rejectReason,omitempty"`
	CooldownUntilMs int64        `json:"cooldownUntilMs,omitempty"`
	CreatedAtMs     int64        `json:"createdAtMs"`
	ResolvedAtMs    int64        `json:"resolvedAtMs,omitempty"`
}

// TeamLock blocks one team from one territory, either until UntilMs or
// indefinitely. On the wire it is a millisecond timestamp or true.
type TeamLock struct {
	UntilMs    int64
	Indefinite bool
}

func (l TeamLock) Active(now int64) bool {
	return l.Indefinite || now < l.UntilMs
}

func (l TeamLock) MarshalJSON() ([]byte, error) {
	if l.Indefinite {
		return []byte("true"), nil
	}
	return json.Marshal(l.UntilMs)
}

func (l *TeamLock) UnmarshalJSON(b []byte) error {
	*l = TeamLock{}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case bool:
		l.Indefinite = v
	case float64:
		l.UntilMs = int64(v)
	}
	return nil
}

type Cooldown struct {
	UntilMs int64  `json:"untilMs"`
	Reason  string `json:"reason,omitempty"`
}

type TeamStats struct {
	Captures    int   `json:"captures"`
	TotalTimeMs int64 `json:"totalTimeMs"`
}

// Event is one entry of the capped game log.
type Event struct {
	ID          string   `json:"id"`
	TsMs        int64    `json:"tsMs"`
	Kind        string   `json:"kind"`
	TerritoryID string   `json:"territoryId,omitempty"`
	TeamIDs     []string `json:"teamIds,omitempty"`
	TeamID      string   `json:"teamId,omitempty"`
	FromTeamID  string   `json:"fromTeamId,omitempty"`
	ToTeamID    string   `json:"toTeamId,omitempty"`
	Result      string   `json:"result,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

func (e Event) involves(teamID string) bool {
	return slices.Contains(e.TeamIDs, teamID)
}

// Clone returns a copy that can be mutated without affecting s. Polygon,
// neighbor and event team slices are shared: they are only ever replaced.
func (s *State) Clone() *State {
	c := *s
	if s.Config.SimpleMap != nil {
		sm := *s.Config.SimpleMap
		c.Config.SimpleMap = &sm
	}
	c.Teams = slices.Clone(s.Teams)
	c.Territories = slices.Clone(s.Territories)
	c.ClaimRequests = slices.Clone(s.ClaimRequests)
	c.ClaimVerifyRequests = slices.Clone(s.ClaimVerifyRequests)
	c.TerritoryLocks = maps.Clone(s.TerritoryLocks)
	c.TeamCooldowns = maps.Clone(s.TeamCooldowns)
	c.TeamEverOwned = maps.Clone(s.TeamEverOwned)
	c.TeamStats = maps.Clone(s.TeamStats)
	c.EventLog = slices.Clone(s.EventLog)
	if s.AttackLocks != nil {
		c.AttackLocks = make(map[string]map[string]TeamLock, len(s.AttackLocks))
		for team, locks := range s.AttackLocks {
			c.AttackLocks[team] = maps.Clone(locks)
		}
	}
	return &c
}

// WithoutGeometry returns a copy with polygons and neighbor lists dropped
// when they can be recomputed from a geometry source.
func (s *State) WithoutGeometry() *State {
	if s.Config.TerritoriesGeojson == "" {
		return s
	}
	c := *s
	c.Territories = make([]Territory, len(s.Territories))
	for i, t := range s.Territories {
		t.Polygon = nil
		t.Neighbors = nil
		c.Territories[i] = t
	}
	return &c
}

// Seed holds the defaults used to synthesize or repair a state.
type Seed struct {
	Teams             []Team
	AdminPin          string
	Geometry          string
	MapMode           string
	IDPrefix          string
	SimpleMap         SimpleMap
	ClaimStartDelayMs int64
}

// NewState builds a fresh game from seed.
func NewState(seed Seed, now int64) *State {
	s := &State{
		Config: GameConfig{
			GameStartMs:       now,
			ClaimStartDelayMs: seed.ClaimStartDelayMs,
		},
	}
	s.Heal(seed, now)
	return s
}

// Heal repairs a loaded state in place: missing teams, admin pin, geometry
// source, clock start, nil maps, stats entries and ever-owned memory.
// It reports whether anything had to change.
func (s *State) Heal(seed Seed, now int64) bool {
	changed := false
	if s.Version == 0 {
		s.Version = stateVersion
		changed = true
	}
	if len(s.Teams) == 0 {
		s.Teams = slices.Clone(seed.Teams)
		s.Config.AdminPin = seed.AdminPin
		changed = true
	}
	if s.Config.AdminPin == "" {
		s.Config.AdminPin = seed.AdminPin
		changed = true
	}
	if s.Config.TerritoriesGeojson == "" && seed.Geometry != "" {
		s.Config.TerritoriesGeojson = seed.Geometry
		s.Config.MapMode = seed.MapMode
		changed = true
	}
	if s.Config.TerritoriesGeojsonIDPrefix == "" && seed.IDPrefix != "" {
		s.Config.TerritoriesGeojsonIDPrefix = seed.IDPrefix
		changed = true
	}
	if s.Config.SimpleMap == nil && seed.SimpleMap.Width > 0 && seed.SimpleMap.Height > 0 {
		sm := seed.SimpleMap
		s.Config.SimpleMap = &sm
		changed = true
	}
	if s.Config.GameStartMs <= 0 {
		s.Config.GameStartMs = now
		changed = true
	}
	if s.TerritoryLocks == nil {
		s.TerritoryLocks = map[string]int64{}
	}
	if s.AttackLocks == nil {
		s.AttackLocks = map[string]map[string]TeamLock{}
	}
	if s.TeamCooldowns == nil {
		s.TeamCooldowns = map[string]Cooldown{}
	}
	if s.TeamStats == nil {
		s.TeamStats = map[string]TeamStats{}
	}
	if s.TeamEverOwned == nil {
		s.TeamEverOwned = map[string]bool{}
	}
	s.ensureStats()
	for _, t := range s.Territories {
		if t.OwnerTeamID != "" && !s.TeamEverOwned[t.OwnerTeamID] {
			s.TeamEverOwned[t.OwnerTeamID] = true
			changed = true
		}
	}
	for _, r := range s.ClaimRequests {
		if r.Status == ClaimApproved && !s.TeamEverOwned[r.TeamID] {
			s.TeamEverOwned[r.TeamID] = true
			changed = true
		}
	}
	return changed
}

func (s *State) ensureStats() {
	for _, t := range s.Teams {
		if _, ok := s.TeamStats[t.ID]; !ok {
			s.TeamStats[t.ID] = TeamStats{}
		}
	}
}

// geometryOptions derives ingestion options from the game config.
// Anything but the simple mode is treated as geographic.
func (c GameConfig) geometryOptions() geometry.Options {
	opts := geometry.Options{
		Geographic: c.MapMode != "simple",
		Width:      1000,
		Height:     1000,
		IDPrefix:   c.TerritoriesGeojsonIDPrefix,
	}
	if opts.IDPrefix == "" {
		opts.IDPrefix = "z"
	}
	if c.SimpleMap != nil {
		opts.Width, opts.Height = c.SimpleMap.Width, c.SimpleMap.Height
	}
	return opts
}
