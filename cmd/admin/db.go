package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 50, "result limit (events)")
	group := fs.String("group", "", "group id filter (events)")
	kind := fs.String("kind", "", "marker kind filter (markers) or event kind filter (events)")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "teleport.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, os.Stdout, q, queryOpts{Limit: *limit, Group: *group, Kind: *kind}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-kind K] [-group G] [-limit N] summary|markers|forces|events")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type queryOpts struct {
	Limit int
	Group string
	Kind  string
}

func runQuery(db *sql.DB, w io.Writer, q string, o queryOpts) error {
	switch q {
	case "summary":
		var r struct {
			Sources     int            `json:"sources"`
			LandingPads int            `json:"landing_pads"`
			Forces      int            `json:"forced_regions"`
			Events      map[string]int `json:"events"`
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM markers WHERE kind='source'`).Scan(&r.Sources); err != nil {
			return fmt.Errorf("query: %w", err)
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM markers WHERE kind='landing_pad'`).Scan(&r.LandingPads); err != nil {
			return fmt.Errorf("query: %w", err)
		}
		if err := db.QueryRow(`SELECT COUNT(*) FROM region_forces`).Scan(&r.Forces); err != nil {
			return fmt.Errorf("query: %w", err)
		}
		rows, err := db.Query(`SELECT kind, COUNT(*) FROM events GROUP BY kind ORDER BY kind`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		r.Events = map[string]int{}
		for rows.Next() {
			var k string
			var n int
			if err := rows.Scan(&k, &n); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Events[k] = n
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows: %w", err)
		}
		return printJSON(w, r)

	case "markers":
		sqlq := `SELECT seq,kind,dim,x,y,z FROM markers ORDER BY seq`
		var args []any
		if k := strings.TrimSpace(o.Kind); k != "" {
			sqlq = `SELECT seq,kind,dim,x,y,z FROM markers WHERE kind=? ORDER BY seq`
			args = append(args, k)
		}
		rows, err := db.Query(sqlq, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq  int64  `json:"seq"`
				Kind string `json:"kind"`
				Dim  string `json:"dim"`
				X    int    `json:"x"`
				Y    int    `json:"y"`
				Z    int    `json:"z"`
			}
			if err := rows.Scan(&r.Seq, &r.Kind, &r.Dim, &r.X, &r.Y, &r.Z); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if err := printJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "forces":
		rows, err := db.Query(`SELECT dim,rx,rz,count FROM region_forces ORDER BY dim,rx,rz`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Dim   string `json:"dim"`
				RX    int    `json:"rx"`
				RZ    int    `json:"rz"`
				Count int    `json:"count"`
			}
			if err := rows.Scan(&r.Dim, &r.RX, &r.RZ, &r.Count); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if err := printJSON(w, r); err != nil {
				return err
			}
		}
		return rows.Err()

	case "events":
		if o.Limit <= 0 {
			o.Limit = 50
		}
		where := []string{"1=1"}
		var args []any
		if g := strings.TrimSpace(o.Group); g != "" {
			where = append(where, "grp=?")
			args = append(args, g)
		}
		if k := strings.TrimSpace(o.Kind); k != "" {
			where = append(where, "kind=?")
			args = append(args, strings.ToUpper(k))
		}
		args = append(args, o.Limit)
		rows, err := db.Query(`SELECT raw_json FROM events WHERE `+strings.Join(where, " AND ")+` ORDER BY id DESC LIMIT ?`, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			if _, err := fmt.Fprintln(w, raw); err != nil {
				return err
			}
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
