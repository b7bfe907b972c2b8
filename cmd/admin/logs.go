package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// logsCmd replays the durable JSONL journal segments, oldest first. The
// sqlite index is faster for ad-hoc queries; this reads the source of
// truth directly.
func logsCmd(args []string) {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gridID := fs.String("grid", "", "grid id (required)")
	stream := fs.String("stream", "events", "events or audit")
	since := fs.Uint64("since", 0, "events: minimum seq (exclusive)")
	evType := fs.String("type", "", "events: type filter")
	_ = fs.Parse(args)

	if strings.TrimSpace(*gridID) == "" {
		fmt.Fprintln(os.Stderr, "missing -grid")
		os.Exit(2)
	}
	if *stream != "events" && *stream != "audit" {
		fmt.Fprintln(os.Stderr, "bad -stream:", *stream)
		os.Exit(2)
	}

	dir := filepath.Join(*dataDir, "grids", *gridID, *stream)
	ents, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var segments []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			segments = append(segments, filepath.Join(dir, e.Name()))
		}
	}
	// Segment names embed the UTC hour, so lexical order is time order.
	sort.Strings(segments)

	for _, seg := range segments {
		if err := dumpSegment(seg, *since, strings.TrimSpace(*evType)); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(seg), err)
			os.Exit(1)
		}
	}
}

func dumpSegment(path string, since uint64, evType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if since > 0 || evType != "" {
			var probe struct {
				Seq  uint64 `json:"seq"`
				Type string `json:"type"`
			}
			if err := json.Unmarshal(line, &probe); err != nil {
				continue
			}
			if probe.Seq <= since && since > 0 {
				continue
			}
			if evType != "" && probe.Type != evType {
				continue
			}
		}
		fmt.Println(string(line))
	}
	return sc.Err()
}
