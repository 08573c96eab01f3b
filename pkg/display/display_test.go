package display

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/itohio/gopulse/pkg/hrv"
	"github.com/itohio/gopulse/pkg/menu"
	"github.com/itohio/gopulse/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer(t *testing.T) {
	d := &Debouncer{Interval: 500 * time.Millisecond}
	t0 := time.Unix(100, 0)

	assert.True(t, d.Allow(t0))
	assert.False(t, d.Allow(t0.Add(100*time.Millisecond)))
	assert.False(t, d.Allow(t0.Add(499*time.Millisecond)))
	assert.True(t, d.Allow(t0.Add(500*time.Millisecond)))
	assert.False(t, d.Allow(t0.Add(700*time.Millisecond)))
	assert.True(t, d.Allow(t0.Add(2*time.Second)))
}

func TestLines(t *testing.T) {
	result := hrv.Snapshot{MeanHR: 75, MeanPPI: 800, RMSSD: 12, SDNN: 9}.Fields()

	tests := []struct {
		name string
		view menu.View
		want []string // substrings, one per line
	}{
		{
			name: "main",
			view: menu.View{Page: menu.Main, Options: menu.Options, Selection: 1},
			want: []string{"Measure HR", "[HRV analysis]", "History"},
		},
		{
			name: "measuring",
			view: menu.View{Page: menu.HeartRate, Measuring: true},
			want: []string{"MEASURING", "", "Lightly hold the", "sensor"},
		},
		{
			name: "heart rate",
			view: menu.View{Page: menu.HeartRate, HeartRate: 72},
			want: []string{"72 BPM", "Press the button", "to stop"},
		},
		{
			name: "intro",
			view: menu.View{Page: menu.HRVIntro},
			want: []string{"Start", "HRV analysis", "by pressing", "the button ->"},
		},
		{
			name: "collecting",
			view: menu.View{Page: menu.HRVResult, Session: "collecting", Remaining: 12300 * time.Millisecond},
			want: []string{"Collecting data,", "please wait...", "13s remaining"},
		},
		{
			name: "result",
			view: menu.View{Page: menu.HRVResult, Session: "complete", Result: result},
			want: []string{"MEAN HR: ", "MEAN PPI: ", "RMSSD: ", "SDNN: "},
		},
		{
			name: "no result",
			view: menu.View{Page: menu.HRVResult, Session: "complete", NoResult: true},
			want: []string{"Not enough beats", "Press the button", "to return"},
		},
		{
			name: "no history",
			view: menu.View{Page: menu.History, NoData: true},
			want: []string{"no data yet"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := Lines(tt.view)
			require.Len(t, lines, len(tt.want))
			for i, want := range tt.want {
				assert.Contains(t, lines[i], want)
			}
		})
	}
}

func TestTerminal_String(t *testing.T) {
	term := NewTerminal()
	term.SetWidth(60)
	require.NoError(t, term.Render(menu.View{
		Page:      menu.HeartRate,
		HeartRate: 64,
		Trace:     []uint16{1, 5, 9, 5, 1},
	}))

	out := term.String()
	assert.Contains(t, out, "GOPULSE")
	assert.Contains(t, out, "64 BPM")
	assert.Contains(t, out, "▁")
	assert.Contains(t, out, "█")
}

func TestSparkline_Flat(t *testing.T) {
	out := sparkline([]uint16{7, 7, 7}, 10)
	assert.Contains(t, out, "▁▁▁")
}

type failing struct{ err error }

func (f failing) Render(menu.View) error { return f.err }

func TestMulti(t *testing.T) {
	a, b := NewTerminal(), NewTerminal()
	boom := errors.New("boom")
	m := Multi{a, failing{boom}, b}

	err := m.Render(menu.View{Page: menu.History, NoData: true})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, menu.History, a.view.Page)
	assert.Equal(t, menu.History, b.view.Page, "later displays still render")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readView(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(func() monitor.Stats {
		return monitor.Stats{Processed: 100, Beats: 3, Dropped: 1}
	})
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	require.NoError(t, hub.Render(menu.View{Page: menu.Main, Options: menu.Options}))

	conn := dial(t, srv)
	// The current frame is sent on connect.
	v := readView(t, conn)
	assert.Equal(t, "main", v["page"])

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	// Unchanged views are not re-sent.
	require.NoError(t, hub.Render(menu.View{Page: menu.Main, Options: menu.Options}))
	assert.Equal(t, uint64(1), hub.Frames())

	require.NoError(t, hub.Render(menu.View{Page: menu.HeartRate, HeartRate: 70}))
	v = readView(t, conn)
	assert.Equal(t, "heart_rate", v["page"])
	assert.EqualValues(t, 70, v["heart_rate"])
	assert.Equal(t, uint64(2), hub.Frames())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "frames 2\n")
	assert.Contains(t, string(body), "clients 1\n")
	assert.Contains(t, string(body), "samples 100\n")
	assert.Contains(t, string(body), "dropped 1\n")
}

func TestHub_RenderSkipsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	// No writer drains this client, as if its socket had stalled.
	stuck := &client{send: make(chan []byte, 2), done: make(chan struct{})}
	hub.add(stuck)

	start := time.Now()
	for i := range 50 {
		require.NoError(t, hub.Render(menu.View{Page: menu.HeartRate, HeartRate: i}))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, uint64(50), hub.Frames())

	// Only the newest frames are kept.
	require.Len(t, stuck.send, 2)
	<-stuck.send
	var v map[string]any
	require.NoError(t, json.Unmarshal(<-stuck.send, &v))
	assert.EqualValues(t, 49, v["heart_rate"])
}

func TestHub_ServeShutdown(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type fakeEngine struct {
	steps    int
	rotates  []int
	confirms int
}

func (e *fakeEngine) Step(context.Context) menu.View {
	e.steps++
	return menu.View{Page: menu.HeartRate, HeartRate: 60 + e.steps}
}

func (e *fakeEngine) Rotate(delta int)        { e.rotates = append(e.rotates, delta) }
func (e *fakeEngine) Confirm(context.Context) { e.confirms++ }

func TestModel_Update(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	term := NewTerminal()
	hub := NewHub(nil)

	clock := time.Unix(0, 0)
	m := NewModel(ctx, eng, term, hub, 20*time.Millisecond, 500*time.Millisecond)
	m.now = func() time.Time { return clock }

	require.NotNil(t, m.Init())

	next, cmd := m.Update(tickMsg(clock))
	require.NotNil(t, cmd)
	m = next.(Model)
	assert.Equal(t, 1, eng.steps)
	assert.Contains(t, m.View(), "61 BPM")
	assert.Equal(t, uint64(1), hub.Frames())

	m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, []int{-1, 1}, eng.rotates)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	clock = clock.Add(100 * time.Millisecond)
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 1, eng.confirms, "second press inside the debounce window is dropped")

	clock = clock.Add(time.Second)
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, 2, eng.confirms)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_QuitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eng := &fakeEngine{}
	m := NewModel(ctx, eng, NewTerminal(), nil, time.Millisecond, 0)

	cancel()
	_, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 0, eng.steps)
}
