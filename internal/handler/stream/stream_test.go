package stream_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/geometry"
	"github.com/playperu/territories/internal/handler/stream"
	"github.com/playperu/territories/internal/live"
)

type fixedState struct{ st *game.State }

func (f fixedState) Snapshot(v game.Viewer, compact bool) game.View {
	return game.Sanitize(f.st, v, compact, 0)
}

func TestStream(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seed := game.Seed{Teams: []game.Team{{ID: "t1", Name: "Red", Pin: "p"}}, AdminPin: "a"}
	st := game.NewState(seed, 1)
	st.Territories = []game.Territory{{ID: "z1", Polygon: []geometry.Point{{0, 0}, {0, 1}, {1, 1}, {0, 0}}}}

	sessions := live.NewSessions(time.Hour)
	broker := live.NewBroker(5, logger)
	h := stream.NewHandler(logger, sessions, fixedState{st}, broker, time.Minute)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := http.Get(srv.URL + "/?token=bogus")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", res.StatusCode)
	}

	sess, _ := sessions.Create(game.Viewer{Role: game.RoleTeam, TeamID: "t1"})
	wsURL := "ws" + srv.URL[len("http"):] + "/?token=" + sess.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	read := func() game.View {
		t.Helper()
		_, msg, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var v game.View
		if err := json.Unmarshal(msg, &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return v
	}

	if v := read(); v.Viewer.TeamID != "t1" || len(v.Teams) != 1 || len(v.Territories[0].Polygon) != 4 {
		t.Fatalf("unexpected initial view %+v", v)
	}

	// Wait for the subscription to land before publishing.
	for broker.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	next := st.Clone()
	next.Config.GameLocked = true
	broker.Publish(next)
	if v := read(); !v.Config.GameLocked {
		t.Error("expected published state")
	} else if len(v.Territories) != 1 || len(v.Territories[0].Polygon) != 0 {
		t.Errorf("expected compact published state, got %+v", v.Territories)
	}

	conn.Close(websocket.StatusNormalClosure, "done")
}
