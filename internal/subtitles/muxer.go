package subtitles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	langpkg "autosub/internal/language"
	"autosub/internal/logging"
	"autosub/internal/services"
)

// commandRunner executes an external command. Overridable in tests.
type commandRunner func(ctx context.Context, name string, args ...string) error

// Muxer writes a fetched subtitle into a new container next to the source
// file using mkvmerge. The source file is never modified or replaced.
type Muxer struct {
	binary string
	logger *slog.Logger
	run    commandRunner
}

// NewMuxer constructs a subtitle muxer for the given mkvmerge binary.
func NewMuxer(binary string, logger *slog.Logger) *Muxer {
	if binary == "" {
		binary = "mkvmerge"
	}
	return &Muxer{
		binary: binary,
		logger: logging.NewComponentLogger(logger, "muxer"),
		run:    defaultMuxerCommandRunner,
	}
}

// WithCommandRunner injects a custom command runner for tests.
func (m *Muxer) WithCommandRunner(r commandRunner) {
	if m != nil && r != nil {
		m.run = r
	}
}

// Mux writes payload as an SRT track into a new container beside sourcePath
// and returns the output path. It refuses to run when the output already
// exists, and cleans up partial output on failure.
func (m *Muxer) Mux(ctx context.Context, sourcePath string, payload []byte, opts TrackOptions) (string, error) {
	if m == nil {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", "muxer not initialized", nil)
	}
	if strings.TrimSpace(sourcePath) == "" {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", "source path is required", nil)
	}
	if len(payload) == 0 {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", "subtitle payload is empty", nil)
	}

	if _, err := os.Stat(sourcePath); err != nil {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", "source file not found", err)
	}

	outputPath := OutputPath(sourcePath)
	if outputPath == sourcePath {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", "output path equals source path", nil)
	}
	if _, err := os.Stat(outputPath); err == nil {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", fmt.Sprintf("output already exists: %s", outputPath), nil)
	}

	srtPath, cleanup, err := writeSubtitleFile(filepath.Dir(sourcePath), payload)
	if err != nil {
		return "", services.Wrap(services.ErrMux, "muxer", "stage subtitle", "", err)
	}
	keepStaged := false
	defer func() {
		if !keepStaged {
			cleanup()
		}
	}()

	args := buildMkvmergeArgs(sourcePath, srtPath, outputPath, opts)

	m.logger.Debug("executing mkvmerge",
		append(jobAttrs(ctx),
			logging.String(logging.FieldPath, sourcePath),
			logging.String("output", outputPath),
			logging.String("language", opts.Language),
			logging.Bool("set_default", opts.SetDefault))...)

	if err := m.run(ctx, m.binary, args...); err != nil {
		_ = os.Remove(outputPath)
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrCancelled, "muxer", "mux", sourcePath, ctx.Err())
		}
		// Keep the staged subtitle so the download is not lost; the error
		// names it for a manual retry.
		keepStaged = true
		return "", services.Wrap(services.ErrMux, "muxer", "mux",
			fmt.Sprintf("%s (subtitle kept at %s)", sourcePath, srtPath), err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", services.Wrap(services.ErrMux, "muxer", "mux", "mkvmerge produced no output", err)
	}

	m.logger.Info("subtitle muxed",
		append(jobAttrs(ctx),
			logging.String(logging.FieldEventType, "mux_complete"),
			logging.String(logging.FieldPath, sourcePath),
			logging.String("output", outputPath))...)

	return outputPath, nil
}

// buildMkvmergeArgs constructs the mkvmerge invocation: the new container
// keeps every source track and appends the subtitle as a tagged SRT track.
func buildMkvmergeArgs(sourcePath, srtPath, outputPath string, opts TrackOptions) []string {
	args := []string{"-o", outputPath, sourcePath}

	lang3 := langpkg.ToISO3(opts.Language)
	args = append(args, "--language", "0:"+lang3)
	args = append(args, "--track-name", "0:"+langpkg.DisplayName(opts.Language))
	if opts.SetDefault {
		args = append(args, "--default-track", "0:yes")
	} else {
		args = append(args, "--default-track", "0:no")
	}
	args = append(args, srtPath)

	return args
}

func writeSubtitleFile(dir string, payload []byte) (string, func(), error) {
	file, err := os.CreateTemp(dir, ".autosub-*.srt")
	if err != nil {
		return "", nil, fmt.Errorf("create subtitle file: %w", err)
	}
	path := file.Name()
	cleanup := func() { _ = os.Remove(path) }

	if _, err := file.Write(payload); err != nil {
		file.Close()
		cleanup()
		return "", nil, fmt.Errorf("write subtitle file: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close subtitle file: %w", err)
	}
	return path, cleanup, nil
}

// defaultMuxerCommandRunner executes mkvmerge, folding its output into the
// returned error for diagnosis.
func defaultMuxerCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
