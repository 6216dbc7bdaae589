// Package ffprobe inspects container files with the ffprobe CLI and condenses
// the raw stream listing into the profile the pipeline decides on.
package ffprobe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"autosub/internal/language"
	"autosub/internal/services"
)

// Stream is a single stream entry from ffprobe's JSON output.
type Stream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Profile     string            `json:"profile"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
	Disposition map[string]int    `json:"disposition"`
}

// Format is the container-level entry from ffprobe's JSON output.
type Format struct {
	Filename   string            `json:"filename"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	Tags       map[string]string `json:"tags"`
}

// Result is the decoded ffprobe document.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// AudioTrack describes one audio stream in a profile.
type AudioTrack struct {
	StreamIndex int
	Codec       string
	Channels    int
	Language    string
	Title       string
}

// SubtitleTrack describes one subtitle stream in a profile.
type SubtitleTrack struct {
	StreamIndex int
	Codec       string
	Language    string
	Forced      bool
}

// Profile is the condensed stream inventory the pipeline decides on.
type Profile struct {
	Path             string
	Container        string
	HasVideo         bool
	VideoStreamIndex int
	AudioTracks      []AudioTrack
	SubtitleTracks   []SubtitleTrack
	DTSTrackCount    int
}

// HasDTS reports whether any audio track carries a DTS family codec.
func (p *Profile) HasDTS() bool {
	return p.DTSTrackCount > 0
}

// SubtitleLanguages lists the normalized languages of embedded subtitle tracks.
func (p *Profile) SubtitleLanguages() []string {
	langs := make([]string, 0, len(p.SubtitleTracks))
	for _, track := range p.SubtitleTracks {
		if track.Language != "" {
			langs = append(langs, track.Language)
		}
	}
	return langs
}

// HasSubtitleLanguage reports whether an embedded subtitle track already covers
// the target language, tolerating 639-1/639-2 code mixes in stream tags.
func (p *Profile) HasSubtitleLanguage(target string) bool {
	for _, track := range p.SubtitleTracks {
		if language.Matches(track.Language, target) {
			return true
		}
	}
	return false
}

// commandRunner executes an external command and returns its stdout.
// Overridable in tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func defaultRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%w: %s", err, detail)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Inspector probes container files.
type Inspector struct {
	binary string
	runner commandRunner
}

// NewInspector builds an Inspector for the given ffprobe binary.
func NewInspector(binary string) *Inspector {
	if binary == "" {
		binary = "ffprobe"
	}
	return &Inspector{binary: binary, runner: defaultRunner}
}

// Inspect probes path and returns its condensed stream profile.
func (i *Inspector) Inspect(ctx context.Context, path string) (*Profile, error) {
	result, err := i.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return buildProfile(path, result), nil
}

// Probe returns the raw decoded ffprobe document for path.
func (i *Inspector) Probe(ctx context.Context, path string) (*Result, error) {
	args := []string{
		"-v", "error",
		"-hide_banner",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	}
	output, err := i.runner(ctx, i.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, services.Wrap(services.ErrCancelled, "ffprobe", "probe", path, ctx.Err())
		}
		return nil, services.Wrap(services.ErrInspection, "ffprobe", "probe", path, err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, services.Wrap(services.ErrInspection, "ffprobe", "decode", path, err)
	}
	if len(result.Streams) == 0 {
		return nil, services.Wrap(services.ErrInspection, "ffprobe", "probe", fmt.Sprintf("no streams found in %s", path), nil)
	}
	return &result, nil
}

func buildProfile(path string, result *Result) *Profile {
	profile := &Profile{
		Path:      path,
		Container: result.Format.FormatName,
	}
	for _, stream := range result.Streams {
		switch stream.CodecType {
		case "video":
			if !profile.HasVideo {
				profile.VideoStreamIndex = stream.Index
			}
			profile.HasVideo = true
		case "audio":
			track := AudioTrack{
				StreamIndex: stream.Index,
				Codec:       strings.ToLower(stream.CodecName),
				Channels:    stream.Channels,
				Language:    language.ExtractFromTags(stream.Tags),
				Title:       stream.Tags["title"],
			}
			if isDTSCodec(track.Codec, stream.Profile) {
				profile.DTSTrackCount++
			}
			profile.AudioTracks = append(profile.AudioTracks, track)
		case "subtitle":
			profile.SubtitleTracks = append(profile.SubtitleTracks, SubtitleTrack{
				StreamIndex: stream.Index,
				Codec:       strings.ToLower(stream.CodecName),
				Language:    language.ExtractFromTags(stream.Tags),
				Forced:      stream.Disposition["forced"] == 1,
			})
		}
	}
	return profile
}

func isDTSCodec(codec, profile string) bool {
	if codec == "dts" || strings.HasPrefix(codec, "dts-") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(profile), "dts")
}
