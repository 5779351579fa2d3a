package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/territories/internal/game"
)

// ErrorResponse is returned for all error responses. RetryAfterMinutes is
// set on 423 and 429 responses.
type ErrorResponse struct {
	Error             string `json:"error"`
	RetryAfterMinutes int    `json:"retryAfterMinutes,omitempty"`
}

// HealthReport documents GET /healthz.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
	Gauges map[string]int    `json:"gauges,omitempty"`
}

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	errors                             []int
}

var operations = []operation{
	{http.MethodGet, "/healthz", "Health check", "Reports state store health and stream counts.", nil, HealthReport{}, []int{http.StatusServiceUnavailable}},
	{http.MethodGet, "/api/teams", "List teams", "Teams for the login screen, without pins.", nil, []game.TeamView{}, nil},
	{http.MethodPost, "/api/login", "Team login", "Exchanges a team pin for a session token.", LoginRequest{}, LoginResponse{}, []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound}},
	{http.MethodPost, "/api/admin/login", "Admin login", "Exchanges the admin pin for a session token.", AdminLoginRequest{}, LoginResponse{}, []int{http.StatusUnauthorized}},
	{http.MethodPost, "/api/logout", "Logout", "Drops the session token.", nil, OKResponse{}, []int{http.StatusUnauthorized}},
	{http.MethodGet, "/api/state", "Game state", "The state as the caller may see it. Pass compact=1 to leave out polygons. Without a token the guest view is returned.", nil, game.View{}, nil},
	{http.MethodGet, "/api/stream", "State stream", "Server-sent events: a full `state` event, then one compact `state` event (no polygons) per change, `: ping` comments when idle. Token via query parameter.", nil, nil, []int{http.StatusUnauthorized}},
	{http.MethodGet, "/api/ws", "State stream (WebSocket)", "Same payloads as /api/stream over a WebSocket. Token via query parameter.", nil, nil, []int{http.StatusUnauthorized}},
	{http.MethodPost, "/api/territory/info", "Territory info", "Claim options and open requests for one territory.", TerritoryRequest{}, game.TerritoryInfo{}, []int{http.StatusNotFound, http.StatusUnauthorized}},
	{http.MethodPost, "/api/territory/claimVerifyRequest", "Request verification", "Asks the admin to confirm the team is on site. Returns an open request if there is one.", VerifyRequestBody{}, VerifyResponse{}, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusLocked, http.StatusTooManyRequests}},
	{http.MethodPost, "/api/territory/claimRequest", "Submit claim", "Answers the assigned task. Image is an optional data URI.", ClaimRequestBody{}, ClaimResponse{}, []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict, http.StatusLocked, http.StatusTooManyRequests}},
	{http.MethodPost, "/api/admin/claimVerifyRequest/resolve", "Resolve verification", "Approves or rejects a pending verification.", ResolveVerifyBody{}, OKResponse{}, []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden}},
	{http.MethodPost, "/api/admin/claimVerifyRequest/assignTask", "Assign task", "Sends the task the team must answer.", AssignTaskBody{}, OKResponse{}, []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict, http.StatusForbidden}},
	{http.MethodPost, "/api/admin/claimRequest/resolve", "Resolve claim", "Judges an answer. A correct answer captures the territory.", ResolveClaimBody{}, OKResponse{}, []int{http.StatusNotFound, http.StatusConflict, http.StatusForbidden}},
	{http.MethodPost, "/api/admin/territory/setOwner", "Set owner", "Assigns or clears a territory owner.", SetOwnerBody{}, OKResponse{}, []int{http.StatusNotFound, http.StatusForbidden}},
	{http.MethodPost, "/api/admin/team/cooldown", "Team cooldown", "Blocks a team from claiming for some minutes. Zero clears it.", CooldownBody{}, OKResponse{}, []int{http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden}},
	{http.MethodPost, "/api/admin/game/setLocked", "Lock game", "Freezes or resumes the game.", SetLockedBody{}, SetLockedResponse{}, []int{http.StatusForbidden}},
	{http.MethodPost, "/api/admin/territories/reset", "Reset territories", "Clears ownership, requests, locks, stats and events.", nil, OKResponse{}, []int{http.StatusForbidden}},
	{http.MethodPost, "/api/admin/teams/reset", "Reset teams", "Restores the seeded teams and admin pin.", nil, OKResponse{}, []int{http.StatusForbidden}},
	{http.MethodPost, "/api/admin/geometry", "Replace geometry", "Body is a GeoJSON FeatureCollection of territory outlines.", nil, GeometryResponse{}, []int{http.StatusBadRequest, http.StatusForbidden}},
	{http.MethodGet, "/api/admin/archives", "List archives", "Archived states written before resets.", nil, ArchivesResponse{}, []int{http.StatusForbidden}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Territories API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Live territory capture game. Authenticated calls take `Authorization: Bearer <token>`.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		switch op.path {
		case "/api/stream":
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
				openapi.WithContentType("text/event-stream"))
		case "/api/ws":
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
				openapi.WithContentType("text/plain"))
		default:
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(http.StatusOK))
		}
		for _, code := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(code))
		}
		_ = r.AddOperation(oc)
	}
	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
