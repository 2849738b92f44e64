// Package wire implements the crawler's binary message format: the exact
// byte layout used to move a PageStats or SiteGraph value between worker,
// farmer and master processes.
//
// The layout is hand-rolled rather than built on a general serialization
// library because it must match a fixed, size-prefixed contract bit for
// bit: every string is a little-endian uint64 length followed by its raw
// bytes, and a SiteGraph's edges are encoded as index pairs into its nodes
// list rather than repeating node text. Grounded on
// original_source/sem02/src/serialization.cpp (serializeHtmlStats,
// serializeSiteGraph and their inverses).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cametumbling/sitecrawler/internal/siteurl"
)

// CodecError reports a buffer that does not match the wire format, or a
// SiteGraph edge that names a node missing from its node list.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("wire: %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// Heading is one <hN>...</hN> capture: its level (1-6) and inner text.
type Heading struct {
	Level uint8
	Text  string
}

// PageStats is the per-page analysis result that a worker sends back to
// its farmer. Links carry only their path; Scheme and Domain below are
// hoisted so the wire form need not repeat them per link.
type PageStats struct {
	Path     string
	Images   uint64
	Forms    uint64
	Scheme   string
	Domain   string
	Links    []string
	Headings []Heading
}

// Edge is a directed reference from one page path to another, within the
// same site.
type Edge struct {
	From string
	To   string
}

// SiteGraph is the farmer's finished crawl of one site: every page path
// visited, the links discovered between them, and each page's PageStats.
type SiteGraph struct {
	Nodes []string
	Edges []Edge
	Stats []PageStats
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBytes [8]byte
	binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(s)))
	buf.Write(lenBytes[:])
	buf.WriteString(s)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// EncodePageStats serializes stats into the wire format: path, image and
// form counts, scheme, domain, link paths, then headings with their
// levels.
func EncodePageStats(stats PageStats) ([]byte, error) {
	var buf bytes.Buffer

	writeString(&buf, stats.Path)
	writeUint64(&buf, stats.Images)
	writeUint64(&buf, stats.Forms)
	writeString(&buf, stats.Scheme)
	writeString(&buf, stats.Domain)

	writeUint64(&buf, uint64(len(stats.Links)))
	for _, link := range stats.Links {
		writeString(&buf, link)
	}

	writeUint64(&buf, uint64(len(stats.Headings)))
	for _, h := range stats.Headings {
		writeUint64(&buf, uint64(len(h.Text)))
		buf.WriteByte(h.Level)
		buf.WriteString(h.Text)
	}

	return buf.Bytes(), nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) uint64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) byte() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) string() (string, error) {
	n, err := r.uint64()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// DecodePageStats is the inverse of EncodePageStats.
func DecodePageStats(data []byte) (PageStats, error) {
	r := &reader{data: data}
	var stats PageStats

	path, err := r.string()
	if err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats path", Err: err}
	}
	stats.Path = path

	if stats.Images, err = r.uint64(); err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats images", Err: err}
	}
	if stats.Forms, err = r.uint64(); err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats forms", Err: err}
	}
	if stats.Scheme, err = r.string(); err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats scheme", Err: err}
	}
	if stats.Domain, err = r.string(); err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats domain", Err: err}
	}

	linkCount, err := r.uint64()
	if err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats link count", Err: err}
	}
	if linkCount > 0 {
		stats.Links = make([]string, 0, linkCount)
	}
	for i := uint64(0); i < linkCount; i++ {
		link, err := r.string()
		if err != nil {
			return PageStats{}, &CodecError{Op: "decode page stats link", Err: err}
		}
		stats.Links = append(stats.Links, link)
	}

	headingCount, err := r.uint64()
	if err != nil {
		return PageStats{}, &CodecError{Op: "decode page stats heading count", Err: err}
	}
	if headingCount > 0 {
		stats.Headings = make([]Heading, 0, headingCount)
	}
	for i := uint64(0); i < headingCount; i++ {
		length, err := r.uint64()
		if err != nil {
			return PageStats{}, &CodecError{Op: "decode page stats heading length", Err: err}
		}
		level, err := r.byte()
		if err != nil {
			return PageStats{}, &CodecError{Op: "decode page stats heading level", Err: err}
		}
		if r.pos+int(length) > len(r.data) {
			return PageStats{}, &CodecError{Op: "decode page stats heading text", Err: io.ErrUnexpectedEOF}
		}
		text := string(r.data[r.pos : r.pos+int(length)])
		r.pos += int(length)
		stats.Headings = append(stats.Headings, Heading{Level: level, Text: text})
	}

	return stats, nil
}

// LinkURLs reconstructs the absolute URL of each link, reattaching the
// page's hoisted scheme and domain to every path.
func (p PageStats) LinkURLs() []siteurl.URL {
	urls := make([]siteurl.URL, len(p.Links))
	for i, link := range p.Links {
		urls[i] = siteurl.URL{Scheme: p.Scheme, Domain: p.Domain, Path: link}
	}
	return urls
}

// EncodeSiteGraph serializes graph: its node list, its edges as index
// pairs into that list, then every page's stats.
func EncodeSiteGraph(graph SiteGraph) ([]byte, error) {
	index := make(map[string]uint64, len(graph.Nodes))
	for i, node := range graph.Nodes {
		if _, ok := index[node]; !ok {
			index[node] = uint64(i)
		}
	}

	var buf bytes.Buffer

	writeUint64(&buf, uint64(len(graph.Nodes)))
	for _, node := range graph.Nodes {
		writeString(&buf, node)
	}

	writeUint64(&buf, uint64(len(graph.Edges)))
	for _, edge := range graph.Edges {
		from, ok := index[edge.From]
		if !ok {
			return nil, &CodecError{Op: "encode site graph edge", Err: fmt.Errorf("unknown node %q", edge.From)}
		}
		to, ok := index[edge.To]
		if !ok {
			return nil, &CodecError{Op: "encode site graph edge", Err: fmt.Errorf("unknown node %q", edge.To)}
		}
		writeUint64(&buf, from)
		writeUint64(&buf, to)
	}

	writeUint64(&buf, uint64(len(graph.Stats)))
	for _, stats := range graph.Stats {
		encoded, err := EncodePageStats(stats)
		if err != nil {
			return nil, err
		}
		writeUint64(&buf, uint64(len(encoded)))
		buf.Write(encoded)
	}

	return buf.Bytes(), nil
}

// DecodeSiteGraph is the inverse of EncodeSiteGraph.
func DecodeSiteGraph(data []byte) (SiteGraph, error) {
	r := &reader{data: data}
	var graph SiteGraph

	nodeCount, err := r.uint64()
	if err != nil {
		return SiteGraph{}, &CodecError{Op: "decode site graph node count", Err: err}
	}
	if nodeCount > 0 {
		graph.Nodes = make([]string, 0, nodeCount)
	}
	for i := uint64(0); i < nodeCount; i++ {
		node, err := r.string()
		if err != nil {
			return SiteGraph{}, &CodecError{Op: "decode site graph node", Err: err}
		}
		graph.Nodes = append(graph.Nodes, node)
	}

	edgeCount, err := r.uint64()
	if err != nil {
		return SiteGraph{}, &CodecError{Op: "decode site graph edge count", Err: err}
	}
	if edgeCount > 0 {
		graph.Edges = make([]Edge, 0, edgeCount)
	}
	for i := uint64(0); i < edgeCount; i++ {
		fromIdx, err := r.uint64()
		if err != nil {
			return SiteGraph{}, &CodecError{Op: "decode site graph edge from", Err: err}
		}
		toIdx, err := r.uint64()
		if err != nil {
			return SiteGraph{}, &CodecError{Op: "decode site graph edge to", Err: err}
		}
		if fromIdx >= uint64(len(graph.Nodes)) || toIdx >= uint64(len(graph.Nodes)) {
			return SiteGraph{}, &CodecError{Op: "decode site graph edge", Err: fmt.Errorf("index out of range")}
		}
		graph.Edges = append(graph.Edges, Edge{From: graph.Nodes[fromIdx], To: graph.Nodes[toIdx]})
	}

	statsCount, err := r.uint64()
	if err != nil {
		return SiteGraph{}, &CodecError{Op: "decode site graph stats count", Err: err}
	}
	if statsCount > 0 {
		graph.Stats = make([]PageStats, 0, statsCount)
	}
	for i := uint64(0); i < statsCount; i++ {
		length, err := r.uint64()
		if err != nil {
			return SiteGraph{}, &CodecError{Op: "decode site graph stats length", Err: err}
		}
		if r.pos+int(length) > len(r.data) {
			return SiteGraph{}, &CodecError{Op: "decode site graph stats", Err: io.ErrUnexpectedEOF}
		}
		stats, err := DecodePageStats(r.data[r.pos : r.pos+int(length)])
		if err != nil {
			return SiteGraph{}, err
		}
		r.pos += int(length)
		graph.Stats = append(graph.Stats, stats)
	}

	return graph, nil
}
