package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cametumbling/sitecrawler/internal/transport"
	"github.com/cametumbling/sitecrawler/internal/wire"
)

type stubFetcher struct {
	bodies map[string]string
	errs   map[string]error
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	return f.bodies[url], nil
}

func newTestWorker(t *testing.T, fetcher Fetcher) (*Worker, transport.Endpoint) {
	t.Helper()
	hub := transport.NewHub()
	logger := zap.NewNop().Sugar()

	w := &Worker{
		Rank:         1,
		Endpoint:     hub.Endpoint(1),
		Fetcher:      fetcher,
		Logger:       logger,
		PollInterval: time.Millisecond,
	}

	return w, hub.Endpoint(0)
}

func TestWorkerRepliesWithStats(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{
		"http://ex.com/a": `<a href="/b">x</a><img src="1"><h1>Hi</h1>`,
	}}
	w, farmer := newTestWorker(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := farmer.Send(ctx, transport.URL, 1, []byte("http://ex.com/a")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	env, err := farmer.Recv(ctx, transport.Stats)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}

	stats, err := wire.DecodePageStats(env.Payload)
	if err != nil {
		t.Fatalf("DecodePageStats() error = %v", err)
	}
	if stats.Path != "/a" {
		t.Errorf("stats.Path = %q, want /a", stats.Path)
	}
	if stats.Images != 1 {
		t.Errorf("stats.Images = %d, want 1", stats.Images)
	}
	if len(stats.Links) != 1 || stats.Links[0] != "/b" {
		t.Errorf("stats.Links = %v, want [/b]", stats.Links)
	}

	if err := farmer.Send(ctx, transport.Terminate, 1, nil); err != nil {
		t.Fatalf("Send(Terminate) error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not exit after TERMINATE")
	}
	cancel()
}

func TestWorkerFetchFailureReturnsZeroStats(t *testing.T) {
	fetcher := &stubFetcher{errs: map[string]error{
		"http://ex.com/bad": errors.New("connection refused"),
	}}
	w, farmer := newTestWorker(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := farmer.Send(ctx, transport.URL, 1, []byte("http://ex.com/bad")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	env, err := farmer.Recv(ctx, transport.Stats)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}

	stats, err := wire.DecodePageStats(env.Payload)
	if err != nil {
		t.Fatalf("DecodePageStats() error = %v", err)
	}
	if stats.Images != 0 || stats.Forms != 0 || len(stats.Links) != 0 {
		t.Errorf("stats = %+v, want zero-valued counts and no links", stats)
	}
}

func TestWorkerExitsOnImmediateTerminate(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{}}
	w, farmer := newTestWorker(t, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := farmer.Send(ctx, transport.Terminate, 1, nil); err != nil {
		t.Fatalf("Send(Terminate) error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not exit after immediate TERMINATE")
	}
}
