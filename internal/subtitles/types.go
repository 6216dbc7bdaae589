// Package subtitles implements subtitle discovery, download, and muxing for
// container files: an OpenSubtitles-backed fetcher and an mkvmerge muxer.
package subtitles

import (
	"context"
	"path/filepath"

	"autosub/internal/logging"
	"autosub/internal/services"
)

// FileIdentity identifies a container file for subtitle lookup.
type FileIdentity struct {
	Path        string
	DisplayName string
	Size        int64
	Hash        string
}

// SubtitleResult is the outcome of a subtitle search. Present is false when
// the provider has no candidate for the file, which is not an error.
type SubtitleResult struct {
	Present  bool
	Payload  []byte
	FileName string
	Language string
	// Source records which query produced the match ("moviehash" or "name").
	Source string
}

// TrackOptions controls how a fetched subtitle is written into the container.
type TrackOptions struct {
	Language   string
	SetDefault bool
}

// OutputMarker tags muxed output files so the watcher can tell them apart
// from freshly arrived sources.
const OutputMarker = "_w_sub"

// OutputPath returns the path the muxer writes for a given source file. The
// source itself is never modified.
func OutputPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	stem := sourcePath[:len(sourcePath)-len(ext)]
	return stem + OutputMarker + ".mkv"
}

// IsOutputPath reports whether path looks like a muxed output file.
func IsOutputPath(path string) bool {
	ext := filepath.Ext(path)
	stem := path[:len(path)-len(ext)]
	return len(stem) >= len(OutputMarker) && stem[len(stem)-len(OutputMarker):] == OutputMarker
}

// jobAttrs seeds log attributes with the owning job id when the context
// carries one.
func jobAttrs(ctx context.Context) []any {
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		return []any{logging.String(logging.FieldJobID, jobID)}
	}
	return nil
}
