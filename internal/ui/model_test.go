// ABOUTME: Tests for the monitor model
// ABOUTME: Tests refresh, key handling and rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/hound/pkg/audio"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

func testGraph() hound.Graph {
	stereo := audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingS16LE}
	return hound.Graph{
		Sources: []hound.EndpointInfo{{Name: "tone", Format: stereo, Connections: 1}},
		Sinks:   []hound.EndpointInfo{{Name: "speakers", Format: stereo, Connections: 1}},
		Connections: []hound.ConnectionInfo{
			{Source: "tone", Sink: "speakers", BufferedFrames: 480},
		},
		Contexts: []hound.ContextInfo{{Name: "music", Kind: "playback", Streams: 2}},
	}
}

func TestNewModelTakesSnapshot(t *testing.T) {
	calls := 0
	model := NewModel("hound", ":8927", func() hound.Graph {
		calls++
		return testGraph()
	})

	if calls != 1 {
		t.Fatalf("expected one snapshot, got %d", calls)
	}
	if len(model.graph.Sources) != 1 {
		t.Errorf("expected 1 source, got %d", len(model.graph.Sources))
	}
}

func TestTickRefreshes(t *testing.T) {
	graph := hound.Graph{}
	model := NewModel("hound", ":8927", func() hound.Graph { return graph })

	graph = testGraph()
	updated, cmd := model.Update(tickMsg{})
	if cmd == nil {
		t.Error("expected tick to schedule the next refresh")
	}
	m := updated.(Model)
	if len(m.graph.Connections) != 1 {
		t.Errorf("expected refreshed graph, got %d connections", len(m.graph.Connections))
	}
}

func TestQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
	} {
		model := NewModel("hound", ":8927", nil)
		updated, cmd := model.Update(key)
		if cmd == nil {
			t.Errorf("%s: expected quit command", key)
		}
		if !updated.(Model).quitting {
			t.Errorf("%s: expected quitting", key)
		}
		if !strings.Contains(updated.(Model).View(), "Shutting down") {
			t.Errorf("%s: expected shutdown view", key)
		}
	}
}

func TestOtherKeysIgnored(t *testing.T) {
	model := NewModel("hound", ":8927", nil)
	updated, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if cmd != nil {
		t.Error("expected no command")
	}
	if updated.(Model).quitting {
		t.Error("expected model to keep running")
	}
}

func TestViewListsGraph(t *testing.T) {
	model := NewModel("living-room", "0.0.0.0:8927", testGraph)
	view := model.View()

	for _, want := range []string{
		"living-room",
		"0.0.0.0:8927",
		"Sources (1)",
		"tone",
		"2ch/48000Hz/s16le",
		"1 connection",
		"tone -> speakers",
		"480 frames queued",
		"Contexts (1)",
		"music",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewEmptyGraph(t *testing.T) {
	view := NewModel("hound", ":8927", nil).View()
	if !strings.Contains(view, "Connections (0)") || !strings.Contains(view, "none") {
		t.Errorf("unexpected empty view:\n%s", view)
	}
	if strings.Contains(view, "Contexts") {
		t.Error("contexts section should be hidden when empty")
	}
}
