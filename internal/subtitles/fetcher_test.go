package subtitles

import (
	"bytes"
	"compress/gzip"
	"context"
	"testing"

	"autosub/internal/services"
	"autosub/internal/subtitles/opensubtitles"
)

type stubProvider struct {
	searches  []opensubtitles.SearchRequest
	responses []opensubtitles.SearchResponse
	searchErr error

	downloads   []int64
	downloadRes opensubtitles.DownloadResult
	downloadErr error
}

func (s *stubProvider) Search(_ context.Context, req opensubtitles.SearchRequest) (opensubtitles.SearchResponse, error) {
	s.searches = append(s.searches, req)
	if s.searchErr != nil {
		return opensubtitles.SearchResponse{}, s.searchErr
	}
	if len(s.responses) == 0 {
		return opensubtitles.SearchResponse{}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

func (s *stubProvider) Download(_ context.Context, fileID int64) (opensubtitles.DownloadResult, error) {
	s.downloads = append(s.downloads, fileID)
	if s.downloadErr != nil {
		return opensubtitles.DownloadResult{}, s.downloadErr
	}
	return s.downloadRes, nil
}

func testIdentity() FileIdentity {
	return FileIdentity{
		Path:        "/media/show.mkv",
		DisplayName: "show.mkv",
		Size:        1 << 20,
		Hash:        "00000000deadbeef",
	}
}

func testFetcher(stub *stubProvider) *Fetcher {
	return newFetcher(stub, FetcherConfig{Language: "ro", RequestsPerMinute: 6000}, nil)
}

func TestFetchHashHit(t *testing.T) {
	stub := &stubProvider{
		responses: []opensubtitles.SearchResponse{{
			Subtitles: []opensubtitles.Subtitle{{FileID: 42, Language: "ro", Release: "Show.720p"}},
		}},
		downloadRes: opensubtitles.DownloadResult{Data: []byte("1\n00:00:01,000 --> 00:00:02,000\nhi\n"), FileName: "show.srt", Language: "ro"},
	}
	fetcher := testFetcher(stub)

	result, err := fetcher.Fetch(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !result.Present || result.Source != "moviehash" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(stub.searches) != 1 {
		t.Fatalf("expected a single hash search, got %d searches", len(stub.searches))
	}
	if stub.searches[0].MovieHash != "00000000deadbeef" {
		t.Errorf("search moviehash = %q", stub.searches[0].MovieHash)
	}
	if len(stub.downloads) != 1 || stub.downloads[0] != 42 {
		t.Errorf("downloads = %v, want [42]", stub.downloads)
	}
}

func TestFetchFallsBackToNameQuery(t *testing.T) {
	stub := &stubProvider{
		responses: []opensubtitles.SearchResponse{
			{},
			{Subtitles: []opensubtitles.Subtitle{{FileID: 7, Language: "ro"}}},
		},
		downloadRes: opensubtitles.DownloadResult{Data: []byte("payload")},
	}
	fetcher := testFetcher(stub)

	result, err := fetcher.Fetch(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if !result.Present || result.Source != "name" {
		t.Errorf("unexpected result: %+v", result)
	}
	if len(stub.searches) != 2 {
		t.Fatalf("expected 2 searches, got %d", len(stub.searches))
	}
	if stub.searches[1].Query != "show.mkv" || stub.searches[1].MovieHash != "" {
		t.Errorf("unexpected fallback search: %+v", stub.searches[1])
	}
}

func TestFetchMissIsNotAnError(t *testing.T) {
	stub := &stubProvider{}
	fetcher := testFetcher(stub)

	result, err := fetcher.Fetch(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if result.Present {
		t.Error("expected Present=false for a miss")
	}
	if len(stub.downloads) != 0 {
		t.Errorf("download should not run on a miss, got %v", stub.downloads)
	}
}

func TestFetchClassifiesTransientErrors(t *testing.T) {
	stub := &stubProvider{searchErr: &opensubtitles.StatusError{Status: 503, Operation: "search"}}
	fetcher := testFetcher(stub)

	_, err := fetcher.Fetch(context.Background(), testIdentity())
	if !services.IsRetryable(err) {
		t.Fatalf("expected transient fetch error, got %v", err)
	}
}

func TestFetchClassifiesPermanentErrors(t *testing.T) {
	stub := &stubProvider{searchErr: &opensubtitles.StatusError{Status: 401, Operation: "search"}}
	fetcher := testFetcher(stub)

	_, err := fetcher.Fetch(context.Background(), testIdentity())
	if err == nil || services.IsRetryable(err) {
		t.Fatalf("expected permanent fetch error, got %v", err)
	}
	if services.Kind(err) != "permanent_fetch" {
		t.Errorf("Kind = %q, want permanent_fetch", services.Kind(err))
	}
}

func TestFetchDecompressesGzipPayload(t *testing.T) {
	var compressed bytes.Buffer
	writer := gzip.NewWriter(&compressed)
	if _, err := writer.Write([]byte("subtitle body")); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	stub := &stubProvider{
		responses: []opensubtitles.SearchResponse{{
			Subtitles: []opensubtitles.Subtitle{{FileID: 1, Language: "ro"}},
		}},
		downloadRes: opensubtitles.DownloadResult{Data: compressed.Bytes()},
	}
	fetcher := testFetcher(stub)

	result, err := fetcher.Fetch(context.Background(), testIdentity())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(result.Payload) != "subtitle body" {
		t.Errorf("payload = %q, want decompressed body", result.Payload)
	}
}
