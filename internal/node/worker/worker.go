// Package worker implements the crawler's leaf-tier process: a loop
// that idles on a non-blocking probe of its farmer channel, and on
// receipt of a URL fetches, analyses, and replies with PageStats.
//
// The stateless goroutine shape, exactly-one-result-per-item discipline,
// and non-fatal handling of a bad fetch follow the same probe/fetch/
// analyse/reply state machine used throughout this codebase, retargeted
// from an in-process channel pair onto a transport.Endpoint.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cametumbling/sitecrawler/internal/pageanalysis"
	"github.com/cametumbling/sitecrawler/internal/siteurl"
	"github.com/cametumbling/sitecrawler/internal/transport"
	"github.com/cametumbling/sitecrawler/internal/wire"
)

// DefaultPollInterval is the idle-loop sleep between probes.
const DefaultPollInterval = 10 * time.Millisecond

// Fetcher retrieves the body at url. It is the worker's out-of-core
// collaborator (internal/platform/httpclient.Client satisfies it).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Worker is one leaf-tier process bound to its farmer's private channel.
type Worker struct {
	Rank         int
	Endpoint     transport.Endpoint
	Fetcher      Fetcher
	Logger       *zap.SugaredLogger
	PollInterval time.Duration
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return w.PollInterval
}

// Run drives the Idle/Processing state machine until a TERMINATE message
// arrives or ctx is cancelled. Any in-flight Processing round completes
// before the worker exits.
func (w *Worker) Run(ctx context.Context) error {
	for {
		terminate, err := w.waitForWork(ctx)
		if err != nil {
			return err
		}
		if terminate {
			w.Logger.Infow("worker terminating", "rank", w.Rank)
			return nil
		}

		env, err := w.Endpoint.Recv(ctx, transport.URL)
		if err != nil {
			w.sendError(ctx, err.Error())
			continue
		}
		w.Logger.Debugw("worker received url", "rank", w.Rank, "correlation_id", env.CorrelationID)

		stats := w.process(ctx, string(env.Payload))

		encoded, err := wire.EncodePageStats(stats)
		if err != nil {
			w.sendError(ctx, err.Error())
			continue
		}

		if err := w.Endpoint.Send(ctx, transport.Stats, 0, encoded); err != nil {
			// A worker's failed send is treated as fatal for that worker.
			return err
		}
	}
}

// waitForWork blocks (polling, per the Idle state) until either a URL or
// a TERMINATE message is ready, reporting which.
func (w *Worker) waitForWork(ctx context.Context) (terminate bool, err error) {
	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()

	for {
		if w.Endpoint.Probe(transport.Terminate) {
			return true, nil
		}
		if w.Endpoint.Probe(transport.URL) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) process(ctx context.Context, rawURL string) wire.PageStats {
	pageURL, err := siteurl.Parse(rawURL)
	if err != nil {
		w.Logger.Warnw("worker received unparseable url", "rank", w.Rank, "url", rawURL, "error", err)
		return wire.PageStats{Path: rawURL}
	}

	body, err := w.Fetcher.Fetch(ctx, pageURL.String())
	if err != nil {
		// A failed fetch is not retried; it becomes a zero-valued PageStats
		// so the farmer's BFS terminates for that branch.
		w.Logger.Warnw("worker fetch failed", "rank", w.Rank, "url", pageURL.String(), "error", err)
		return wire.PageStats{Path: pageURL.Path, Scheme: pageURL.Scheme, Domain: pageURL.Domain}
	}

	return pageanalysis.Analyse(body, pageURL)
}

func (w *Worker) sendError(ctx context.Context, message string) {
	if err := w.Endpoint.Send(ctx, transport.Error, 0, []byte(message)); err != nil {
		w.Logger.Errorw("worker failed to report error to farmer", "rank", w.Rank, "error", err)
	}
}
