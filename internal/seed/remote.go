package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/leaderboard/internal/domain/model"
	"github.com/okian/leaderboard/internal/domain/pagination"
	"github.com/okian/leaderboard/internal/domain/ranking"
	"github.com/okian/leaderboard/pkg/logger"
)

const (
	fetchPageSize    = 100
	maxSubmitRetries = 5
	maxErrorBody     = 512
)

// ErrUnhealthy is returned when the server's health check fails.
var ErrUnhealthy = errors.New("service unhealthy")

// ErrStatus is returned for unexpected HTTP responses.
var ErrStatus = errors.New("unexpected status")

// Client talks to a running leaderboard server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// Clear deletes every score on the server and returns how many were removed.
func (c *Client) Clear(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/leaderboard/clear", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return 0, statusError(resp)
	}
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out.Deleted, err
}

// Submit posts one submission. 429 and 503 responses are retried with
// exponential backoff; any other non-200 response fails immediately.
func (c *Client) Submit(ctx context.Context, sub model.Submission) (model.ScoreRecord, error) {
	var rec model.ScoreRecord
	body, err := json.Marshal(sub)
	if err != nil {
		return rec, err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/leaderboard", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer drain(resp)
		switch resp.StatusCode {
		case http.StatusOK:
			return json.NewDecoder(resp.Body).Decode(&rec)
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return statusError(resp)
		default:
			return backoff.Permanent(statusError(resp))
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxSubmitRetries), ctx))
	return rec, err
}

// Page fetches one page of the leaderboard at level.
func (c *Client) Page(ctx context.Context, level, page, pageSize int) (pagination.Result, error) {
	var res pagination.Result
	q := url.Values{}
	q.Set("level", strconv.Itoa(level))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/leaderboard?"+q.Encode(), nil)
	if err != nil {
		return res, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return res, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return res, statusError(resp)
	}
	err = json.NewDecoder(resp.Body).Decode(&res)
	return res, err
}

// Leaderboard fetches every page of the leaderboard at level.
func (c *Client) Leaderboard(ctx context.Context, level int) ([]ranking.Entry, error) {
	var all []ranking.Entry
	for page := 1; ; page++ {
		res, err := c.Page(ctx, level, page, fetchPageSize)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, res.Results...)
		if page >= res.TotalPages {
			return all, nil
		}
	}
}

// RemoteConfig controls a remote seeding run.
type RemoteConfig struct {
	Players int
	Workers int
	// Rate caps submissions per second; zero means unlimited.
	Rate float64
	Seed int64
	// Clear empties the server first so the result can be verified exactly.
	Clear bool
}

// Report describes a finished remote run.
type Report struct {
	Summary
	Seed     int64         `json:"seed"`
	Entries  int           `json:"entries"`
	Duration time.Duration `json:"duration"`
}

// RunRemote generates submissions, posts them to the server concurrently and
// verifies the resulting overall leaderboard.
func RunRemote(ctx context.Context, c *Client, cfg RemoteConfig) (Report, error) {
	log := logger.Named("seed")
	start := time.Now()

	gen := NewGenerator(cfg.Seed)
	report := Report{Seed: gen.Seed()}
	report.Players = cfg.Players

	if err := c.Health(ctx); err != nil {
		return report, err
	}
	if cfg.Clear {
		n, err := c.Clear(ctx)
		if err != nil {
			return report, fmt.Errorf("clear: %w", err)
		}
		log.Info(ctx, "cleared", logger.Int64("deleted", n))
	}
	subs, err := gen.Submissions(cfg.Players)
	if err != nil {
		return report, err
	}
	report.Submissions = len(subs)
	log.Info(ctx, "submitting",
		logger.Int("players", cfg.Players),
		logger.Int("submissions", len(subs)),
		logger.Int64("seed", gen.Seed()))

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, max(1, cfg.Workers))

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Workers))
	for _, sub := range subs {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			if _, err := c.Submit(gctx, sub); err != nil {
				failed.Add(1)
				log.Warn(gctx, "submission failed",
					logger.String("player", sub.PlayerName),
					logger.Int("level", sub.Level),
					logger.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	report.Failed = int(failed.Load())
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Failed > 0 {
		return report, fmt.Errorf("%d of %d submissions failed", report.Failed, len(subs))
	}

	entries, err := c.Leaderboard(ctx, model.AggregateLevel)
	if err != nil {
		return report, err
	}
	report.Entries = len(entries)
	report.Duration = time.Since(start)
	if err := Verify(entries, Expected(subs)); err != nil {
		return report, err
	}
	log.Info(ctx, "verified",
		logger.Int("entries", len(entries)),
		logger.Duration("duration", report.Duration))
	return report, nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
