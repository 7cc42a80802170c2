package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/cache"
	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/record"
	"github.com/matzehuels/fractal/pkg/sim"
	"github.com/matzehuels/fractal/pkg/sink"
)

func execute(t *testing.T, args ...string) (*CLI, error) {
	t.Helper()
	c := New(io.Discard, LogInfo)
	root := c.RootCommand()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return c, root.ExecuteContext(context.Background())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSimulateBinaryAndRecord(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "frames.bin")
	db := filepath.Join(dir, "runs.db")

	_, err := execute(t, "simulate", "--ticks", "3", "--depth", "2", "--variant", "directional",
		"-o", out, "--format", "binary", "--record", db)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	for tick := uint64(1); tick <= 3; tick++ {
		frame, err := sink.ReadBinary(f)
		if err != nil {
			t.Fatalf("frame %d: %v", tick, err)
		}
		if frame.Tick != tick || len(frame.Levels) != 2 || len(frame.Levels[1]) != 5 {
			t.Errorf("frame %d: tick %d, %d levels", tick, frame.Tick, len(frame.Levels))
		}
	}

	rec, err := record.Open(db)
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	runs, err := rec.Runs(context.Background())
	if err != nil || len(runs) != 1 {
		t.Fatalf("runs = %v, %v", runs, err)
	}
	ticks, err := rec.Ticks(context.Background(), runs[0].ID)
	if err != nil || len(ticks) != 3 {
		t.Fatalf("ticks = %d, %v", len(ticks), err)
	}

	if _, err := execute(t, "runs", db, "--run", runs[0].ID); err != nil {
		t.Errorf("runs: %v", err)
	}
}

func TestSimulateRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"format", []string{"simulate", "--format", "xml"}, errors.ErrCodeInvalidInput},
		{"ticks", []string{"simulate", "--ticks", "0"}, errors.ErrCodeInvalidInput},
		{"depth", []string{"simulate", "--depth", "9"}, errors.ErrCodeInvalidDepth},
		{"variant", []string{"simulate", "--variant", "spiky"}, errors.ErrCodeInvalidVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestSimulateCache(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if _, err := execute(t, "simulate", "--ticks", "2", "--depth", "2", "--cache"); err != nil {
		t.Fatalf("simulate: %v", err)
	}

	cfg := config.Default()
	cfg.Tree.Depth = 2
	fc, err := newFileCache()
	if err != nil {
		t.Fatal(err)
	}
	f, hit, err := sink.LoadLatest(context.Background(), fc, nil, cfg.Hash())
	if err != nil || !hit {
		t.Fatalf("LoadLatest = (%v, %v)", hit, err)
	}
	if f.Tick != 2 || f.NodeCount() != 6 {
		t.Errorf("cached frame = tick %d, %d nodes", f.Tick, f.NodeCount())
	}

	if _, err := execute(t, "cache", "clear"); err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if _, hit, _ := fc.Get(context.Background(), cache.NewDefaultKeyer().LatestKey(cfg.Hash())); hit {
		t.Error("cache clear should remove the frame")
	}
}

func TestTreeFlagsOverrideConfig(t *testing.T) {
	c := New(io.Discard, LogInfo)
	c.configPath = writeFile(t, "fractal.toml", "[tree]\ndepth = 3\nvariant = \"directional\"\nseed = 7\n")

	cmd := &cobra.Command{Use: "test"}
	var f treeFlags
	f.register(cmd)
	if err := cmd.ParseFlags([]string{"--depth", "4"}); err != nil {
		t.Fatal(err)
	}
	got, err := c.resolve(cmd, &f)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tree.Depth != 4 {
		t.Errorf("depth = %d, want the flag value 4", got.Tree.Depth)
	}
	if got.Tree.Variant != "directional" || got.Tree.Seed != 7 {
		t.Errorf("tree = %+v, want file values for unset flags", got.Tree)
	}
}

func TestHostFlagsPose(t *testing.T) {
	spin := (&hostFlags{spin: 90}).pose(1)
	if p, ok := spin.(sim.SpinningPose); !ok || p.Scale != 1 {
		t.Errorf("spin pose = %#v", spin)
	}
	wander := (&hostFlags{spin: 90, wander: 2, scale: 0.5}).pose(1)
	w, ok := wander.(*sim.WanderingPose)
	if !ok {
		t.Fatalf("wander pose = %T, want *sim.WanderingPose", wander)
	}
	if w.Amplitude != 2 || w.Scale != 0.5 {
		t.Errorf("wander pose = %+v", w)
	}
}

func TestConfigValidate(t *testing.T) {
	good := writeFile(t, "good.toml", "[tree]\ndepth = 2\n")
	bad := writeFile(t, "bad.toml", "[tree]\ndepth = 12\n")

	if _, err := execute(t, "config", "validate", good); err != nil {
		t.Errorf("validate good: %v", err)
	}
	_, err := execute(t, "config", "validate", good, bad)
	if !errors.Is(err, errors.ErrCodeInvalidDepth) {
		t.Errorf("validate bad: err = %v, want INVALID_DEPTH", err)
	}
}

func TestTreeWritesDOT(t *testing.T) {
	dot := filepath.Join(t.TempDir(), "tree.dot")
	if _, err := execute(t, "tree", "--depth", "3", "--dot", dot, "--max-level", "1"); err != nil {
		t.Fatalf("tree: %v", err)
	}
	data, err := os.ReadFile(dot)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), " -> "); got != 5 {
		t.Errorf("DOT has %d edges, want 5", got)
	}
}

func TestWatchModel(t *testing.T) {
	cfg := config.Default()
	cfg.Tree.Depth = 2
	s, err := sim.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	var m tea.Model = newWatchModel(s, 30)
	t0 := time.Now()
	m, _ = m.Update(tickMsg(t0))
	m, cmd := m.Update(tickMsg(t0.Add(100 * time.Millisecond)))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
	if s.Tick() != 2 {
		t.Errorf("Tick = %d, want 2", s.Tick())
	}
	if view := m.View(); !strings.Contains(view, "Level") || !strings.Contains(view, "tick") {
		t.Errorf("view missing level table:\n%s", view)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'+'}})
	if s.Tree().Depth() != 3 {
		t.Errorf("depth = %d after +, want 3", s.Tree().Depth())
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{' '}})
	m, _ = m.Update(tickMsg(t0.Add(200 * time.Millisecond)))
	if s.Tick() != 0 {
		t.Errorf("paused model stepped to tick %d", s.Tick())
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestCompletion(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"bash script", []string{"completion", "bash"}, []string{"bash completion V2 for fractal"}},
		{"fish script", []string{"completion", "fish"}, []string{"complete -c fractal"}},
		{"variant values", []string{"__complete", "simulate", "--variant", ""}, []string{"directional", "organic"}},
		{"depth values", []string{"__complete", "tree", "--depth", ""}, []string{"1\t1 nodes", "8\t97656 nodes"}},
		{"format values", []string{"__complete", "simulate", "--format", ""}, []string{"json", "binary"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			root := New(io.Discard, LogInfo).RootCommand()
			root.SetArgs(tt.args)
			root.SetOut(&out)
			root.SetErr(io.Discard)
			if err := root.ExecuteContext(context.Background()); err != nil {
				t.Fatal(err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
		})
	}
}

func TestCompletionRejectsUnknownShell(t *testing.T) {
	if _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("completion tcsh succeeded")
	}
}
