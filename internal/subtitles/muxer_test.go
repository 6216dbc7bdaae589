package subtitles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autosub/internal/services"
)

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mkv")
	if err := os.WriteFile(path, []byte("container bytes"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestMuxBuildsExpectedCommand(t *testing.T) {
	source := writeSource(t)

	var gotName string
	var gotArgs []string
	muxer := NewMuxer("mkvmerge", nil)
	muxer.WithCommandRunner(func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		// Simulate mkvmerge writing its output file.
		return os.WriteFile(args[1], []byte("muxed"), 0o644)
	})

	output, err := muxer.Mux(context.Background(), source, []byte("payload"), TrackOptions{Language: "ro", SetDefault: true})
	if err != nil {
		t.Fatalf("Mux failed: %v", err)
	}

	if gotName != "mkvmerge" {
		t.Errorf("command = %q, want mkvmerge", gotName)
	}
	wantOutput := strings.TrimSuffix(source, ".mkv") + "_w_sub.mkv"
	if output != wantOutput {
		t.Errorf("output = %q, want %q", output, wantOutput)
	}
	if output == source {
		t.Fatal("output path must not equal source path")
	}

	if len(gotArgs) < 9 {
		t.Fatalf("unexpected arg count: %v", gotArgs)
	}
	if gotArgs[0] != "-o" || gotArgs[1] != wantOutput || gotArgs[2] != source {
		t.Errorf("unexpected leading args: %v", gotArgs[:3])
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "--language 0:ron") {
		t.Errorf("missing language flag in %v", gotArgs)
	}
	if !strings.Contains(joined, "--track-name 0:Romanian") {
		t.Errorf("missing track name in %v", gotArgs)
	}
	if !strings.Contains(joined, "--default-track 0:yes") {
		t.Errorf("missing default-track flag in %v", gotArgs)
	}

	// Source must be untouched.
	data, err := os.ReadFile(source)
	if err != nil || string(data) != "container bytes" {
		t.Errorf("source was modified: %q, %v", data, err)
	}

	// Staged SRT must be cleaned up.
	entries, err := os.ReadDir(filepath.Dir(source))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".srt") {
			t.Errorf("staged subtitle left behind: %s", entry.Name())
		}
	}
}

func TestMuxNonDefaultTrack(t *testing.T) {
	source := writeSource(t)

	var gotArgs []string
	muxer := NewMuxer("", nil)
	muxer.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		gotArgs = args
		return os.WriteFile(args[1], []byte("muxed"), 0o644)
	})

	if _, err := muxer.Mux(context.Background(), source, []byte("payload"), TrackOptions{Language: "en"}); err != nil {
		t.Fatalf("Mux failed: %v", err)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "--default-track 0:no") {
		t.Errorf("expected non-default track flag in %v", gotArgs)
	}
}

func TestMuxRefusesExistingOutput(t *testing.T) {
	source := writeSource(t)
	existing := OutputPath(source)
	if err := os.WriteFile(existing, []byte("earlier run"), 0o644); err != nil {
		t.Fatalf("write existing output: %v", err)
	}

	muxer := NewMuxer("mkvmerge", nil)
	muxer.WithCommandRunner(func(context.Context, string, ...string) error {
		t.Fatal("mkvmerge must not run when output exists")
		return nil
	})

	_, err := muxer.Mux(context.Background(), source, []byte("payload"), TrackOptions{Language: "en"})
	if !errors.Is(err, services.ErrMux) {
		t.Fatalf("expected mux error, got %v", err)
	}

	data, _ := os.ReadFile(existing)
	if string(data) != "earlier run" {
		t.Error("existing output was overwritten")
	}
}

func TestMuxCommandFailure(t *testing.T) {
	source := writeSource(t)

	muxer := NewMuxer("mkvmerge", nil)
	muxer.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		_ = os.WriteFile(args[1], []byte("partial"), 0o644)
		return errors.New("exit status 2: no space left")
	})

	_, err := muxer.Mux(context.Background(), source, []byte("payload"), TrackOptions{Language: "en"})
	if !errors.Is(err, services.ErrMux) {
		t.Fatalf("expected mux error, got %v", err)
	}
	if _, statErr := os.Stat(OutputPath(source)); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("partial output was not removed")
	}

	// The staged subtitle survives the failure and the error names it.
	var kept string
	entries, readErr := os.ReadDir(filepath.Dir(source))
	if readErr != nil {
		t.Fatalf("read dir: %v", readErr)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".srt") {
			kept = filepath.Join(filepath.Dir(source), entry.Name())
		}
	}
	if kept == "" {
		t.Fatal("staged subtitle was removed on failure")
	}
	if !strings.Contains(err.Error(), kept) {
		t.Errorf("error %q does not name kept subtitle %q", err, kept)
	}
	data, readErr := os.ReadFile(kept)
	if readErr != nil || string(data) != "payload" {
		t.Errorf("kept subtitle content = %q, %v", data, readErr)
	}
}

func TestMuxRequiresPayload(t *testing.T) {
	source := writeSource(t)
	muxer := NewMuxer("mkvmerge", nil)

	if _, err := muxer.Mux(context.Background(), source, nil, TrackOptions{Language: "en"}); !errors.Is(err, services.ErrMux) {
		t.Fatalf("expected mux error for empty payload, got %v", err)
	}
}
