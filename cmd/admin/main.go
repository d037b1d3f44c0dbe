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

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// logStreams maps a stream name to its directory and file prefix under the data dir.
var logStreams = map[string][2]string{
	"events":  {"events", "teleport-"},
	"commits": {"audit", "commits-"},
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	for _, name := range []string{"events", "commits"} {
		s := logStreams[name]
		files, err := logFiles(filepath.Join(*dataDir, s[0]), s[1])
		if err != nil && !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, f := range files {
			fmt.Printf("%s\t%s\n", name, f)
		}
	}
}

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	stream := fs.String("stream", "events", "events|commits")
	group := fs.String("group", "", "group id filter (optional)")
	kind := fs.String("kind", "", "event kind filter, e.g. COMMIT (events stream only)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, optional)")
	_ = fs.Parse(args)

	s, ok := logStreams[*stream]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -stream:", *stream)
		os.Exit(2)
	}
	f := logFilter{
		Group: strings.TrimSpace(*group),
		Kind:  strings.ToUpper(strings.TrimSpace(*kind)),
		Since: *sinceTick,
		To:    *toTick,
	}
	recs, err := readLog(filepath.Join(*dataDir, s[0]), s[1], f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read log:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		fmt.Println(string(r))
	}
}

type logFilter struct {
	Group string
	Kind  string
	Since uint64
	To    uint64
}

// logHead holds the fields shared by event and commit records.
type logHead struct {
	Kind  string `json:"kind"`
	Tick  uint64 `json:"tick"`
	Group string `json:"group"`
}

func (f logFilter) match(h logHead) bool {
	if f.Group != "" && h.Group != f.Group {
		return false
	}
	if f.Kind != "" && h.Kind != f.Kind {
		return false
	}
	if h.Tick < f.Since {
		return false
	}
	return f.To == 0 || h.Tick <= f.To
}

func logFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	// Hour stamps sort lexically.
	sort.Strings(names)
	return names, nil
}

// readLog decodes every hourly file of a stream in order and returns the matching raw lines.
func readLog(dir, prefix string, f logFilter) ([]json.RawMessage, error) {
	names, err := logFiles(dir, prefix)
	if err != nil {
		return nil, err
	}
	var out []json.RawMessage
	for _, name := range names {
		recs, err := readLogFile(filepath.Join(dir, name), f)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readLogFile(path string, f logFilter) ([]json.RawMessage, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	dec, err := zstd.NewReader(fh)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []json.RawMessage
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var h logHead
		if err := json.Unmarshal(sc.Bytes(), &h); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if !f.match(h) {
			continue
		}
		out = append(out, append(json.RawMessage(nil), sc.Bytes()...))
	}
	return out, sc.Err()
}
