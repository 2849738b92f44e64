// Package farmer implements the crawler's mid-tier process (C6): on
// receipt of a seed URL from the master, it runs a breadth-first
// traversal of that site by dispatching page-fetch work to its private
// pool of workers, normalising and filtering every discovered link, and
// replying to the master with the finished SiteGraph.
//
// This is the most intricate tier in the system. The visited map,
// dispatch/collect loop, and active-count bookkeeping follow the same
// shape as a single-process BFS-over-channels coordinator, re-targeted
// onto the master/farmer/worker split, with the round-robin cursor,
// relative-path normalisation, and edge-set determinism grounded on
// original_source/sem02/src/main.cpp's map_site.
package farmer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cametumbling/sitecrawler/internal/siteurl"
	"github.com/cametumbling/sitecrawler/internal/transport"
	"github.com/cametumbling/sitecrawler/internal/wire"
)

// DefaultPollInterval mirrors worker.DefaultPollInterval for the farmer's
// own idle-probe loop against its master channel.
const DefaultPollInterval = 10 * time.Millisecond

// CrawlError reports that a site crawl could not complete: a malformed
// seed URL, or a worker reply that failed to decode. Either aborts the
// crawl with no partial graph emitted.
type CrawlError struct {
	Reason string
	Err    error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("farmer: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("farmer: %s", e.Reason)
}

func (e *CrawlError) Unwrap() error { return e.Err }

// Farmer is one mid-tier process: its MasterEndpoint talks to the master
// on the shared master<->farmers channel, and its WorkerEndpoint is rank
// 0 of its own private farmer<->workers channel.
type Farmer struct {
	MasterEndpoint transport.Endpoint
	WorkerEndpoint transport.Endpoint
	Workers        int
	Logger         *zap.SugaredLogger
	PollInterval   time.Duration
}

func (f *Farmer) pollInterval() time.Duration {
	if f.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return f.PollInterval
}

// Run drives the farmer until a TERMINATE arrives from the master, at
// which point it forwards TERMINATE to every one of its workers and
// returns.
func (f *Farmer) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.pollInterval())
	defer ticker.Stop()

	for {
		switch {
		case f.MasterEndpoint.Probe(transport.Terminate):
			if _, err := f.MasterEndpoint.Recv(ctx, transport.Terminate); err != nil {
				return err
			}
			f.terminateWorkers(ctx)
			f.Logger.Info("farmer terminating")
			return nil

		case f.MasterEndpoint.Probe(transport.URL):
			env, err := f.MasterEndpoint.Recv(ctx, transport.URL)
			if err != nil {
				return err
			}
			f.handleSeed(ctx, string(env.Payload))

		default:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

func (f *Farmer) terminateWorkers(ctx context.Context) {
	for rank := 1; rank <= f.Workers; rank++ {
		if err := f.WorkerEndpoint.Send(ctx, transport.Terminate, rank, nil); err != nil {
			f.Logger.Errorw("farmer failed to forward terminate", "worker", rank, "error", err)
		}
	}
}

func (f *Farmer) handleSeed(ctx context.Context, seedText string) {
	graph, err := f.crawlSite(ctx, seedText)
	if err != nil {
		f.Logger.Warnw("farmer crawl failed", "seed", seedText, "error", err)
		if sendErr := f.MasterEndpoint.Send(ctx, transport.Error, 0, []byte(err.Error())); sendErr != nil {
			f.Logger.Errorw("farmer failed to report error to master", "error", sendErr)
		}
		return
	}

	encoded, err := wire.EncodeSiteGraph(graph)
	if err != nil {
		f.Logger.Errorw("farmer failed to encode site graph", "error", err)
		_ = f.MasterEndpoint.Send(ctx, transport.Error, 0, []byte(err.Error()))
		return
	}

	if err := f.MasterEndpoint.Send(ctx, transport.Summary, 0, encoded); err != nil {
		f.Logger.Errorw("farmer failed to send summary to master", "error", err)
	}
}

// crawlState is the per-crawl BFS bookkeeping: visited, queue, active,
// cursor, plus the edge and stats accumulators.
type crawlState struct {
	seed     siteurl.URL
	visited  map[string]bool
	queue    []string
	edges    map[[2]string]bool
	stats    map[string]wire.PageStats
	active   int
	cursor   int
	workers  int
}

func newCrawlState(seed siteurl.URL, workers int) *crawlState {
	return &crawlState{
		seed:    seed,
		visited: make(map[string]bool),
		queue:   []string{seed.Path},
		edges:   make(map[[2]string]bool),
		stats:   make(map[string]wire.PageStats),
		cursor:  1,
		workers: workers,
	}
}

func (s *crawlState) nextCursor() int {
	c := s.cursor
	s.cursor++
	if s.cursor > s.workers {
		s.cursor = 1
	}
	return c
}

// crawlSite runs the full dispatch/collect BFS loop for one seed URL and
// returns the finished, deterministically sorted SiteGraph.
func (f *Farmer) crawlSite(ctx context.Context, seedText string) (wire.SiteGraph, error) {
	seed, err := siteurl.Parse(seedText)
	if err != nil {
		return wire.SiteGraph{}, &CrawlError{Reason: "malformed seed URL", Err: err}
	}

	state := newCrawlState(seed, f.Workers)

	for {
		dispatchedAny, err := f.dispatch(ctx, state)
		if err != nil {
			return wire.SiteGraph{}, err
		}

		if state.active > 0 {
			if err := f.collect(ctx, state); err != nil {
				return wire.SiteGraph{}, err
			}
		}

		if !dispatchedAny && state.active == 0 {
			break
		}
	}

	return buildSiteGraph(state), nil
}

// dispatch pops the head of the queue repeatedly, skipping already-
// visited paths, until active workers reach the pool size or the queue
// drains.
func (f *Farmer) dispatch(ctx context.Context, s *crawlState) (bool, error) {
	dispatchedAny := false

	for s.active < s.workers && len(s.queue) > 0 {
		path := s.queue[0]
		s.queue = s.queue[1:]

		if s.visited[path] {
			continue
		}
		s.visited[path] = true

		url := siteurl.URL{Scheme: s.seed.Scheme, Domain: s.seed.Domain, Path: path}
		rank := s.nextCursor()
		if err := f.WorkerEndpoint.Send(ctx, transport.URL, rank, []byte(url.String())); err != nil {
			return false, err
		}

		s.active++
		dispatchedAny = true
	}

	return dispatchedAny, nil
}

// collect blocks for exactly one worker reply, decodes it, normalises
// its links against the seed's subtree, and folds it into the crawl
// state.
func (f *Farmer) collect(ctx context.Context, s *crawlState) error {
	env, tag, err := f.recvReply(ctx)
	if err != nil {
		return err
	}

	if tag == transport.Error {
		return &CrawlError{Reason: fmt.Sprintf("worker %d reported an error", env.From), Err: fmt.Errorf("%s", env.Payload)}
	}

	pageStats, err := wire.DecodePageStats(env.Payload)
	if err != nil {
		return &CrawlError{Reason: "failed to decode worker reply", Err: err}
	}

	f.Logger.Debugw("farmer collected worker reply", "worker", env.From, "path", pageStats.Path, "correlation_id", env.CorrelationID)

	for _, link := range pageStats.Links {
		normalised := siteurl.NormalizeRelative(pageStats.Path, link)

		if !siteurl.IsInside(normalised, s.seed.Path) {
			continue
		}
		if normalised == pageStats.Path {
			continue
		}

		s.queue = append(s.queue, normalised)
		s.edges[[2]string{pageStats.Path, normalised}] = true
	}

	s.stats[pageStats.Path] = pageStats
	s.active--

	return nil
}

func (f *Farmer) recvReply(ctx context.Context) (transport.Envelope, transport.Tag, error) {
	ticker := time.NewTicker(f.pollInterval())
	defer ticker.Stop()

	for {
		if f.WorkerEndpoint.Probe(transport.Error) {
			env, err := f.WorkerEndpoint.Recv(ctx, transport.Error)
			return env, transport.Error, err
		}
		if f.WorkerEndpoint.Probe(transport.Stats) {
			env, err := f.WorkerEndpoint.Recv(ctx, transport.Stats)
			return env, transport.Stats, err
		}

		select {
		case <-ctx.Done():
			return transport.Envelope{}, 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func buildSiteGraph(s *crawlState) wire.SiteGraph {
	nodes := make([]string, 0, len(s.visited))
	for path := range s.visited {
		nodes = append(nodes, path)
	}
	sort.Strings(nodes)

	edges := make([]wire.Edge, 0, len(s.edges))
	for pair := range s.edges {
		edges = append(edges, wire.Edge{From: pair[0], To: pair[1]})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})

	stats := make([]wire.PageStats, 0, len(s.stats))
	for _, pageStats := range s.stats {
		stats = append(stats, pageStats)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Path < stats[j].Path })

	return wire.SiteGraph{Nodes: nodes, Edges: edges, Stats: stats}
}
