package subtitles

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"

	"autosub/internal/logging"
	"autosub/internal/services"
	"autosub/internal/subtitles/opensubtitles"
)

// provider is the slice of the OpenSubtitles client the fetcher needs.
// Narrowed to an interface so tests can stub the API.
type provider interface {
	Search(ctx context.Context, req opensubtitles.SearchRequest) (opensubtitles.SearchResponse, error)
	Download(ctx context.Context, fileID int64) (opensubtitles.DownloadResult, error)
}

// FetcherConfig tunes the subtitle fetcher.
type FetcherConfig struct {
	// Language is the target subtitle language (ISO 639-1).
	Language string
	// RequestsPerMinute caps API calls across all concurrent pipelines.
	RequestsPerMinute int
}

// Fetcher locates and downloads subtitles from OpenSubtitles. The rate
// limiter is shared by every caller, so the configured requests-per-minute
// cap holds globally regardless of worker count.
type Fetcher struct {
	client   provider
	limiter  *rate.Limiter
	language string
	logger   *slog.Logger
}

// NewFetcher constructs a Fetcher around an OpenSubtitles client.
func NewFetcher(client *opensubtitles.Client, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	return newFetcher(client, cfg, logger)
}

func newFetcher(client provider, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 40
	}
	return &Fetcher{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		language: cfg.Language,
		logger:   logging.NewComponentLogger(logger, "fetcher"),
	}
}

// Fetch searches for a subtitle matching the file, trying the moviehash first
// and falling back to a release-name query, then downloads the best
// candidate. A miss on both queries returns Present=false with no error.
func (f *Fetcher) Fetch(ctx context.Context, identity FileIdentity) (SubtitleResult, error) {
	candidate, source, err := f.search(ctx, identity)
	if err != nil {
		return SubtitleResult{}, err
	}
	if candidate == nil {
		f.logger.Info("no subtitle available",
			append(jobAttrs(ctx),
				logging.String(logging.FieldEventType, "subtitle_miss"),
				logging.String(logging.FieldPath, identity.Path),
				logging.String("language", f.language))...)
		return SubtitleResult{}, nil
	}

	if err := f.wait(ctx); err != nil {
		return SubtitleResult{}, err
	}
	download, err := f.client.Download(ctx, candidate.FileID)
	if err != nil {
		return SubtitleResult{}, f.classify("download", identity.Path, err)
	}

	payload, err := decompressIfGzip(download.Data)
	if err != nil {
		return SubtitleResult{}, services.Wrap(services.ErrPermanentFetch, "fetcher", "decompress", identity.Path, err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return SubtitleResult{}, services.Wrap(services.ErrPermanentFetch, "fetcher", "download", "empty subtitle payload", nil)
	}

	f.logger.Info("subtitle downloaded",
		append(jobAttrs(ctx),
			logging.String(logging.FieldEventType, "subtitle_hit"),
			logging.String(logging.FieldPath, identity.Path),
			logging.String("source", source),
			logging.String("release", candidate.Release),
			logging.Int("downloads", candidate.Downloads))...)

	return SubtitleResult{
		Present:  true,
		Payload:  payload,
		FileName: download.FileName,
		Language: download.Language,
		Source:   source,
	}, nil
}

func (f *Fetcher) search(ctx context.Context, identity FileIdentity) (*opensubtitles.Subtitle, string, error) {
	if identity.Hash != "" {
		if err := f.wait(ctx); err != nil {
			return nil, "", err
		}
		resp, err := f.client.Search(ctx, opensubtitles.SearchRequest{
			MovieHash: identity.Hash,
			Languages: []string{f.language},
		})
		if err != nil {
			return nil, "", f.classify("search", identity.Path, err)
		}
		if len(resp.Subtitles) > 0 {
			return &resp.Subtitles[0], "moviehash", nil
		}
	}

	query := strings.TrimSpace(identity.DisplayName)
	if query == "" {
		return nil, "", nil
	}
	if err := f.wait(ctx); err != nil {
		return nil, "", err
	}
	resp, err := f.client.Search(ctx, opensubtitles.SearchRequest{
		Query:     query,
		Languages: []string{f.language},
	})
	if err != nil {
		return nil, "", f.classify("search", identity.Path, err)
	}
	if len(resp.Subtitles) > 0 {
		return &resp.Subtitles[0], "name", nil
	}
	return nil, "", nil
}

func (f *Fetcher) wait(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return services.Wrap(services.ErrCancelled, "fetcher", "throttle", "", err)
	}
	return nil
}

// classify maps a provider error onto the retry taxonomy: rate limits,
// server errors, and network timeouts are transient, everything else is
// permanent, and context cancellation stays cancellation.
func (f *Fetcher) classify(operation, path string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return services.Wrap(services.ErrCancelled, "fetcher", operation, path, err)
	case opensubtitles.IsRetriable(err):
		return services.Wrap(services.ErrTransientFetch, "fetcher", operation, path, err)
	default:
		return services.Wrap(services.ErrPermanentFetch, "fetcher", operation, path, err)
	}
}

// decompressIfGzip transparently unwraps gzip payloads. Some mirrors serve
// subtitle bodies gzipped regardless of request headers.
func decompressIfGzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return io.ReadAll(reader)
}
