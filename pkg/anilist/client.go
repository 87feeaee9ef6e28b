// Package anilist provides the client for the AniList GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"anisync/pkg/catalog"
)

// DefaultURL is the public AniList GraphQL endpoint.
const DefaultURL = "https://graphql.anilist.co"

// DefaultFormats is the media format filter used when none is configured.
var DefaultFormats = []string{"TV", "TV_SHORT", "MOVIE", "OVA", "ONA", "SPECIAL", "MUSIC"}

const fetchQuery = `
query ($page: Int, $perPage: Int, $formats: [MediaFormat]) {
  Page(page: $page, perPage: $perPage) {
    pageInfo {
      lastPage
    }
    media(format_in: $formats) {
      id
      idMal
      format
      status
      title {
        romaji
      }
      seasonYear
      coverImage {
        large
      }
      genres
      averageScore
    }
  }
}
`

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anilist_requests_total",
		Help: "Total AniList requests by result status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anilist_request_duration_seconds",
		Help:    "AniList request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anilist_retries_total",
		Help: "Total AniList retry attempts by error class",
	}, []string{"error_class"})
)

// Config holds client configuration.
type Config struct {
	URL       string
	PerPage   int
	Formats   []string
	UserAgent string
	Timeout   time.Duration

	// Retry behavior for server, rate limit and network errors.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		URL:            DefaultURL,
		PerPage:        50,
		Formats:        DefaultFormats,
		UserAgent:      "anisync",
		Timeout:        30 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Client fetches catalog pages from AniList.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

// New creates a new AniList client.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = def.PerPage
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = def.Formats
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.With().Str("component", "anilist-client").Logger(),
	}
}

// Media is one anime entry as returned by the AniList API.
type Media struct {
	ID         int    `json:"id"`
	IDMal      *int   `json:"idMal"`
	Format     string `json:"format"`
	Status     string `json:"status"`
	SeasonYear *int   `json:"seasonYear"`
	Title      struct {
		Romaji string `json:"romaji"`
	} `json:"title"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	Genres       []string `json:"genres"`
	AverageScore *int     `json:"averageScore"`
}

// Item converts the API entry to the catalog model. AniList scores
// are 0-100; the catalog stores them normalized to [0,1].
func (m *Media) Item() catalog.Item {
	var score float64
	if m.AverageScore != nil {
		score = float64(*m.AverageScore) / 100
	}
	return catalog.Item{
		AniListID:   m.ID,
		MALID:       m.IDMal,
		Title:       m.Title.Romaji,
		CoverURL:    m.CoverImage.Large,
		Format:      m.Format,
		Status:      m.Status,
		Genres:      m.Genres,
		ReleaseYear: m.SeasonYear,
		Score:       score,
	}
}

// Page is one slice of the paginated catalog listing.
type Page struct {
	Media    []Media
	LastPage int
}

type pageEnvelope struct {
	Data struct {
		Page struct {
			PageInfo struct {
				LastPage int `json:"lastPage"`
			} `json:"pageInfo"`
			Media []Media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchPage fetches one catalog page. Server, rate limit and network
// failures are retried with exponential backoff and jitter; client
// errors are returned immediately.
func (c *Client) FetchPage(ctx context.Context, page int) (*Page, error) {
	var lastErr error
	backoff := c.cfg.InitialBackoff

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		result, err := c.fetchOnce(ctx, page)
		if err == nil {
			if attempt > 1 {
				c.logger.Info().Int("page", page).Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		class := ErrorClassNetwork
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			class = apiErr.Class
		}
		if !shouldRetry(class) {
			return nil, err
		}
		if attempt >= c.cfg.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()

		// Jitter the backoff by +-20% to avoid synchronized retries.
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		c.logger.Warn().Err(err).Int("page", page).Int("attempt", attempt).
			Dur("backoff", wait).Msg("Retrying page fetch")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * 2)
		if backoff > c.cfg.MaxBackoff {
			backoff = c.cfg.MaxBackoff
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, page int) (*Page, error) {
	body, err := json.Marshal(map[string]any{
		"query": fetchQuery,
		"variables": map[string]any{
			"page":    page,
			"perPage": c.cfg.PerPage,
			"formats": c.cfg.Formats,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &APIError{Class: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Message:    resp.Status,
		}
	}

	var envelope pageEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	if len(envelope.Errors) > 0 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassClient,
			Message:    envelope.Errors[0].Message,
		}
	}

	return &Page{
		Media:    envelope.Data.Page.Media,
		LastPage: envelope.Data.Page.PageInfo.LastPage,
	}, nil
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
