// Package opensubtitles wraps the OpenSubtitles REST API (v1) for subtitle
// discovery by moviehash or release name, and two-step payload downloads.
package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL     = "https://api.opensubtitles.com/api/v1"
	defaultUserAgent   = "Autosub/dev"
	defaultHTTPTimeout = 45 * time.Second
)

// Config describes the OpenSubtitles client configuration.
type Config struct {
	APIKey     string
	UserAgent  string
	UserToken  string
	BaseURL    string
	HTTPClient *http.Client
}

// Client wraps the OpenSubtitles REST API.
type Client struct {
	apiKey    string
	userAgent string
	userToken string
	baseURL   *url.URL
	http      *http.Client
}

// New creates a Client from the supplied configuration.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("opensubtitles: api key is required")
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("opensubtitles: parse base url: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{
		apiKey:    apiKey,
		userAgent: userAgent,
		userToken: strings.TrimSpace(cfg.UserToken),
		baseURL:   baseURL,
		http:      client,
	}, nil
}

// SearchRequest describes subtitle discovery filters. MovieHash takes
// precedence over Query when both are set; the API still honors both.
type SearchRequest struct {
	MovieHash string
	Query     string
	Languages []string
}

// Subtitle represents a subtitle candidate returned by OpenSubtitles.
type Subtitle struct {
	ID           string
	FileID       int64
	Language     string
	Release      string
	FeatureTitle string
	Downloads    int
	MovieHash    bool
	AITranslated bool
}

// SearchResponse bundles the subtitles returned by a query.
type SearchResponse struct {
	Subtitles []Subtitle
	Total     int
}

// DownloadResult captures the downloaded subtitle payload.
type DownloadResult struct {
	Data        []byte
	FileName    string
	Language    string
	DownloadURL string
}

// StatusError reports an API response with a non-success HTTP status. The
// caller classifies retryability from Status.
type StatusError struct {
	Status    int
	Operation string
	Body      string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("opensubtitles: %s failed (%d): %s", e.Operation, e.Status, e.Body)
	}
	return fmt.Sprintf("opensubtitles: %s failed (%d)", e.Operation, e.Status)
}

// StatusCode extracts the HTTP status from an API error, or 0 when the error
// is not a StatusError.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}

// Search queries the OpenSubtitles API for matching subtitles, ordered by
// download count so the first candidate is the most proven one.
func (c *Client) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if c == nil {
		return SearchResponse{}, errors.New("opensubtitles: client is nil")
	}
	endpoint := c.baseURL.JoinPath("subtitles")
	params := url.Values{}
	if hash := strings.ToLower(strings.TrimSpace(req.MovieHash)); hash != "" {
		params.Set("moviehash", hash)
	}
	if query := strings.TrimSpace(req.Query); query != "" {
		params.Set("query", query)
	}
	if len(req.Languages) > 0 {
		params.Set("languages", strings.Join(req.Languages, ","))
	}
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")
	endpoint.RawQuery = params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("opensubtitles: build search request: %w", err)
	}
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("opensubtitles: search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return SearchResponse{}, readStatusError(resp, "search")
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SearchResponse{}, fmt.Errorf("opensubtitles: decode search response: %w", err)
	}

	subtitles := make([]Subtitle, 0, len(payload.Data))
	for _, entry := range payload.Data {
		if entry.Attributes.Language == "" {
			continue
		}
		fileID := entry.Attributes.PrimaryFileID()
		if fileID == 0 {
			continue
		}
		subtitles = append(subtitles, Subtitle{
			ID:           entry.ID,
			FileID:       fileID,
			Language:     entry.Attributes.Language,
			Release:      entry.Attributes.Release,
			FeatureTitle: entry.Attributes.FeatureDetails.Title,
			Downloads:    entry.Attributes.DownloadCount,
			MovieHash:    entry.Attributes.MovieHashMatch,
			AITranslated: entry.Attributes.AITranslated || entry.Attributes.MachineTranslated,
		})
	}

	return SearchResponse{
		Subtitles: subtitles,
		Total:     payload.Meta.Total,
	}, nil
}

// Download retrieves the subtitle contents for the specified subtitle file.
// The API hands back a one-time link which is fetched in a second request.
func (c *Client) Download(ctx context.Context, fileID int64) (DownloadResult, error) {
	if c == nil {
		return DownloadResult{}, errors.New("opensubtitles: client is nil")
	}
	if fileID <= 0 {
		return DownloadResult{}, errors.New("opensubtitles: invalid file id")
	}
	payload, err := json.Marshal(map[string]any{
		"file_id":    fileID,
		"sub_format": "srt",
	})
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: encode download request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("download")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: build download request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return DownloadResult{}, readStatusError(resp, "download negotiation")
	}

	var info downloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: decode download response: %w", err)
	}
	if info.Link == "" {
		return DownloadResult{}, errors.New("opensubtitles: download response missing link")
	}

	downloadURL, err := endpoint.Parse(info.Link)
	if err != nil {
		downloadURL, err = url.Parse(info.Link)
		if err != nil {
			return DownloadResult{}, fmt.Errorf("opensubtitles: parse download url: %w", err)
		}
	}

	dataReq, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL.String(), nil)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: build link request: %w", err)
	}
	dataReq.Header.Set("User-Agent", c.userAgent)
	dataResp, err := c.http.Do(dataReq)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: fetch subtitle payload: %w", err)
	}
	defer dataResp.Body.Close()

	if dataResp.StatusCode >= 400 {
		return DownloadResult{}, readStatusError(dataResp, "subtitle download")
	}
	data, err := io.ReadAll(dataResp.Body)
	if err != nil {
		return DownloadResult{}, fmt.Errorf("opensubtitles: read subtitle data: %w", err)
	}

	return DownloadResult{
		Data:        data,
		FileName:    info.FileName,
		Language:    info.Language,
		DownloadURL: downloadURL.String(),
	}, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.userToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.userToken)
	}
}

func readStatusError(resp *http.Response, operation string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{
		Status:    resp.StatusCode,
		Operation: operation,
		Body:      strings.TrimSpace(string(body)),
	}
}

type searchResponse struct {
	Data []struct {
		ID         string           `json:"id"`
		Attributes searchAttributes `json:"attributes"`
	} `json:"data"`
	Meta struct {
		Total int `json:"total_count"`
	} `json:"meta"`
}

type searchAttributes struct {
	Language          string         `json:"language"`
	Release           string         `json:"release"`
	DownloadCount     int            `json:"download_count"`
	MovieHashMatch    bool           `json:"moviehash_match"`
	AITranslated      bool           `json:"ai_translated"`
	MachineTranslated bool           `json:"machine_translated"`
	FeatureDetails    featureDetails `json:"feature_details"`
	Files             []searchFile   `json:"files"`
}

func (a searchAttributes) PrimaryFileID() int64 {
	if len(a.Files) == 0 {
		return 0
	}
	return a.Files[0].FileID
}

type featureDetails struct {
	Title string `json:"title"`
}

type searchFile struct {
	FileID int64 `json:"file_id"`
}

type downloadResponse struct {
	Link     string `json:"link"`
	FileName string `json:"file_name"`
	Language string `json:"language"`
}
