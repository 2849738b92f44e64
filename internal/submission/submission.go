// Package submission renders a finished crawl into the per-submission
// on-disk bundle: a timestamped result folder holding log.txt, map.txt,
// and contents.txt.
//
// Grounded on original_source/sem02/src/main.cpp's process() (the
// ofstream writes against folder+"/log.txt" etc.) and data.h/html.cpp's
// operator<< overloads for SiteGraph and Stats, which fix the exact text
// layout ported here.
package submission

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cametumbling/sitecrawler/internal/platform/clock"
	"github.com/cametumbling/sitecrawler/internal/wire"
)

// timestampLayout matches the source's "{:%Y-%m-%d %H:%M:%S}" rendering
// for log.txt's timestamp lines.
const timestampLayout = "2006-01-02 15:04:05"

// folderLayout matches "./results/{:%Y_%m_%d_%H_%M}_{safe-url}".
const folderLayout = "2006_01_02_15_04"

// SafeName derives the folder-safe slug for a cleaned URL: domain plus
// path, with every character outside [A-Za-z0-9_-] collapsed to '_' and
// trailing underscores stripped, matching original_source's safeURL.
func SafeName(domain, path string) string {
	raw := domain + path
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// Sink writes per-submission result bundles under a configurable
// results root. The zero value writes under "./results".
type Sink struct {
	ResultsRoot string
	Clock       clock.Clock
}

func (s *Sink) root() string {
	if s.ResultsRoot == "" {
		return "./results"
	}
	return s.ResultsRoot
}

func (s *Sink) clock() clock.Clock {
	if s.Clock == nil {
		return clock.System{}
	}
	return s.Clock
}

// FolderFor allocates the result-folder path for one cleaned URL, named
// by the dispatch timestamp and the URL's safe-name slug.
func (s *Sink) FolderFor(domain, path string) string {
	name := fmt.Sprintf("%s_%s", s.clock().Now().Format(folderLayout), SafeName(domain, path))
	return filepath.Join(s.root(), name)
}

// Begin creates folder and writes the single initial timestamp line to
// its log.txt, returning an open handle for the rest of the submission's
// lifecycle.
func (s *Sink) Begin(folder string) (*Submission, error) {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("submission: create folder: %w", err)
	}

	logPath := filepath.Join(folder, "log.txt")
	f, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("submission: create log.txt: %w", err)
	}
	if _, err := fmt.Fprintln(f, s.clock().Now().Format(timestampLayout)); err != nil {
		f.Close()
		return nil, fmt.Errorf("submission: write initial timestamp: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("submission: close log.txt: %w", err)
	}

	return &Submission{folder: folder, clock: s.clock()}, nil
}

// Submission is one in-progress result folder: log.txt already carries
// its initial timestamp, waiting on exactly one of Complete or Fail.
type Submission struct {
	folder string
	clock  clock.Clock
}

// Complete writes map.txt and contents.txt for a successful crawl, then
// appends the completion timestamp and "OK" to log.txt.
func (s *Submission) Complete(graph wire.SiteGraph) error {
	if err := writeMapFile(filepath.Join(s.folder, "map.txt"), graph); err != nil {
		return err
	}
	if err := writeContentsFile(filepath.Join(s.folder, "contents.txt"), graph); err != nil {
		return err
	}
	return s.appendLog(func(f *os.File) error {
		_, err := fmt.Fprintln(f, "OK")
		return err
	})
}

// Fail records a crawl failure: an "ERROR: <message>" line in log.txt,
// with no map.txt or contents.txt written.
func (s *Submission) Fail(message string) error {
	return s.appendLog(func(f *os.File) error {
		_, err := fmt.Fprintf(f, "ERROR: %s\n", message)
		return err
	})
}

func (s *Submission) appendLog(write func(*os.File) error) error {
	f, err := os.OpenFile(filepath.Join(s.folder, "log.txt"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("submission: open log.txt: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, s.clock.Now().Format(timestampLayout)); err != nil {
		return fmt.Errorf("submission: write completion timestamp: %w", err)
	}
	if err := write(f); err != nil {
		return fmt.Errorf("submission: write log status: %w", err)
	}
	return nil
}

// writeMapFile renders the node/edge list text form: one quoted node per
// line, then one quoted "from" "to" pair per line.
func writeMapFile(path string, graph wire.SiteGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("submission: create map.txt: %w", err)
	}
	defer f.Close()

	for _, node := range graph.Nodes {
		if _, err := fmt.Fprintf(f, "%q\n", node); err != nil {
			return err
		}
	}
	for _, edge := range graph.Edges {
		if _, err := fmt.Fprintf(f, "%q %q\n", edge.From, edge.To); err != nil {
			return err
		}
	}
	return nil
}

// writeContentsFile renders one PageStats block per page, in path order
// (graph.Stats already arrives sorted by path), separated by a blank
// line the way the source's "stats_file << stats << std::endl" leaves
// between blocks.
func writeContentsFile(path string, graph wire.SiteGraph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("submission: create contents.txt: %w", err)
	}
	defer f.Close()

	for i, stats := range graph.Stats {
		if i > 0 {
			if _, err := fmt.Fprintln(f); err != nil {
				return err
			}
		}
		if err := writeStatsBlock(f, stats); err != nil {
			return err
		}
	}
	return nil
}

func writeStatsBlock(f *os.File, stats wire.PageStats) error {
	if _, err := fmt.Fprintln(f, stats.Path); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "IMAGES %d\n", stats.Images); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "LINKS %d\n", len(stats.Links)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "FORMS %d\n", stats.Forms); err != nil {
		return err
	}
	for _, heading := range stats.Headings {
		if _, err := fmt.Fprintf(f, "%s %s\n", strings.Repeat("-", int(heading.Level)), heading.Text); err != nil {
			return err
		}
	}
	return nil
}
