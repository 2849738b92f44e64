// Package master implements the crawler's top-tier process: driven by
// HTTP form submissions, it cleans and dispatches one URL per farmer on
// a round-robin basis, collects each farmer's SiteGraph or error, and
// writes the per-submission result bundle to disk via
// internal/submission.
//
// Grounded on original_source/sem02/src/main.cpp's process() (strip,
// filter, folder allocation, round-robin farmer dispatch, log.txt
// writes) and terminate_all() (broadcast TERMINATE on shutdown).
package master

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cametumbling/sitecrawler/internal/platform/clock"
	"github.com/cametumbling/sitecrawler/internal/siteurl"
	"github.com/cametumbling/sitecrawler/internal/submission"
	"github.com/cametumbling/sitecrawler/internal/transport"
	"github.com/cametumbling/sitecrawler/internal/wire"
)

// DefaultPollInterval mirrors the other tiers' idle-probe cadence.
const DefaultPollInterval = 10 * time.Millisecond

// Master is the top-tier process. Endpoint talks to every farmer on the
// shared master<->farmers channel; Farmers is the farmer count, used to
// round-robin dispatch.
//
// net/http runs every POST /submit on its own goroutine, so Submit must
// tolerate concurrent callers: submitMu serialises the whole dispatch-
// then-collect cycle of one submission against another, which both
// guards nextFarmer and stops one submission's collect loop from
// stealing a reply meant for a different, concurrently in-flight
// submission on the shared Endpoint.
type Master struct {
	Endpoint     transport.Endpoint
	Farmers      int
	Sink         *submission.Sink
	Logger       *zap.SugaredLogger
	PollInterval time.Duration

	submitMu   sync.Mutex
	nextFarmer int
}

func (m *Master) pollInterval() time.Duration {
	if m.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return m.PollInterval
}

func (m *Master) sink() *submission.Sink {
	if m.Sink == nil {
		m.Sink = &submission.Sink{Clock: clock.System{}}
	}
	return m.Sink
}

// CleanURLs strips whitespace from each line of a raw "vstup" form value
// and drops empty lines.
func CleanURLs(raw string) []string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	return cleaned
}

// Submit drives one HTTP form submission end to end: clean the URL list,
// dispatch each URL round-robin to a farmer, then block collecting every
// farmer's reply before returning. The caller (the HTTP layer) renders
// the echoed URL list independently of this call succeeding.
//
// Only one Submit runs at a time per Master: see the Master doc comment.
func (m *Master) Submit(ctx context.Context, rawURLs string) []string {
	m.submitMu.Lock()
	defer m.submitMu.Unlock()

	cleanURLs := CleanURLs(rawURLs)

	type dispatched struct {
		url string
		sub *submission.Submission
	}

	pending := make([]dispatched, 0, len(cleanURLs))

	for _, url := range cleanURLs {
		folder := m.sink().FolderFor(domainOf(url), pathOf(url))
		sub, err := m.sink().Begin(folder)
		if err != nil {
			m.Logger.Errorw("master failed to start submission folder", "url", url, "error", err)
			continue
		}

		farmer := m.nextFarmerRank()
		m.Logger.Infow("master dispatching url", "url", url, "farmer", farmer)

		if err := m.Endpoint.Send(ctx, transport.URL, farmer, []byte(url)); err != nil {
			m.Logger.Errorw("master failed to send url to farmer", "url", url, "farmer", farmer, "error", err)
			if failErr := sub.Fail(fmt.Sprintf("failed to dispatch to farmer: %v", err)); failErr != nil {
				m.Logger.Errorw("master failed to record dispatch failure", "error", failErr)
			}
			continue
		}

		pending = append(pending, dispatched{url: url, sub: sub})
	}

	for _, d := range pending {
		m.collectOne(ctx, d.url, d.sub)
	}

	return cleanURLs
}

func (m *Master) collectOne(ctx context.Context, url string, sub *submission.Submission) {
	env, tag, err := m.recvReply(ctx)
	if err != nil {
		m.Logger.Errorw("master failed to receive farmer reply", "url", url, "error", err)
		if failErr := sub.Fail(fmt.Sprintf("failed to receive farmer reply: %v", err)); failErr != nil {
			m.Logger.Errorw("master failed to record receive failure", "error", failErr)
		}
		return
	}

	if tag == transport.Error {
		m.Logger.Warnw("master received error from farmer", "url", url, "error", string(env.Payload))
		if failErr := sub.Fail(string(env.Payload)); failErr != nil {
			m.Logger.Errorw("master failed to record farmer error", "error", failErr)
		}
		return
	}

	graph, err := wire.DecodeSiteGraph(env.Payload)
	if err != nil {
		m.Logger.Errorw("master failed to decode site graph", "url", url, "error", err)
		if failErr := sub.Fail(fmt.Sprintf("failed to decode site graph: %v", err)); failErr != nil {
			m.Logger.Errorw("master failed to record decode failure", "error", failErr)
		}
		return
	}

	if err := sub.Complete(graph); err != nil {
		m.Logger.Errorw("master failed to write result bundle", "url", url, "error", err)
	}
}

func (m *Master) recvReply(ctx context.Context) (transport.Envelope, transport.Tag, error) {
	ticker := time.NewTicker(m.pollInterval())
	defer ticker.Stop()

	for {
		if m.Endpoint.Probe(transport.Error) {
			env, err := m.Endpoint.Recv(ctx, transport.Error)
			return env, transport.Error, err
		}
		if m.Endpoint.Probe(transport.Summary) {
			env, err := m.Endpoint.Recv(ctx, transport.Summary)
			return env, transport.Summary, err
		}

		select {
		case <-ctx.Done():
			return transport.Envelope{}, 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Master) nextFarmerRank() int {
	if m.nextFarmer < 1 || m.nextFarmer > m.Farmers {
		m.nextFarmer = 1
	}
	rank := m.nextFarmer
	m.nextFarmer++
	if m.nextFarmer > m.Farmers {
		m.nextFarmer = 1
	}
	return rank
}

// Shutdown broadcasts TERMINATE to every farmer; each farmer cascades
// its own TERMINATE down to its workers.
func (m *Master) Shutdown(ctx context.Context) {
	for rank := 1; rank <= m.Farmers; rank++ {
		if err := m.Endpoint.Send(ctx, transport.Terminate, rank, nil); err != nil {
			m.Logger.Errorw("master failed to send terminate to farmer", "farmer", rank, "error", err)
		}
	}
}

func domainOf(rawURL string) string {
	parsed, err := siteurl.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Domain
}

func pathOf(rawURL string) string {
	parsed, err := siteurl.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Path
}
