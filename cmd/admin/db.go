package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	gridID := fs.String("grid", "", "grid id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	since := fs.Uint64("since", 0, "events: minimum seq (exclusive)")
	evType := fs.String("type", "", "events: type filter")
	source := fs.String("source", "", "events: source handle filter")
	actor := fs.String("actor", "", "audits: actor filter")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "events"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*gridID) == "" {
			fmt.Fprintln(os.Stderr, "missing -grid or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "grids", *gridID, "index", "grid.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "events":
		query := `SELECT seq,ms,type,source,consumer,raw_json FROM events WHERE seq>?`
		qargs := []any{*since}
		if strings.TrimSpace(*evType) != "" {
			query += ` AND type=?`
			qargs = append(qargs, strings.TrimSpace(*evType))
		}
		if strings.TrimSpace(*source) != "" {
			query += ` AND source=?`
			qargs = append(qargs, strings.TrimSpace(*source))
		}
		query += ` ORDER BY seq DESC LIMIT ?`
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq      int64  `json:"seq"`
				Ms       int64  `json:"ms"`
				Type     string `json:"type"`
				Source   string `json:"source,omitempty"`
				Consumer string `json:"consumer,omitempty"`
				RawJSON  string `json:"raw_json"`
			}
			var src, con sql.NullString
			if err := rows.Scan(&r.Seq, &r.Ms, &r.Type, &src, &con, &r.RawJSON); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Source = src.String
			r.Consumer = con.String
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "audits":
		query := `SELECT ms,actor,action,target,reason,raw_json FROM audits`
		var qargs []any
		if strings.TrimSpace(*actor) != "" {
			query += ` WHERE actor=?`
			qargs = append(qargs, strings.TrimSpace(*actor))
		}
		query += ` ORDER BY id DESC LIMIT ?`
		qargs = append(qargs, *limit)

		rows, err := db.Query(query, qargs...)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Ms      int64  `json:"ms"`
				Actor   string `json:"actor"`
				Action  string `json:"action"`
				Target  string `json:"target,omitempty"`
				Reason  string `json:"reason,omitempty"`
				RawJSON string `json:"raw_json"`
			}
			var target, reason sql.NullString
			if err := rows.Scan(&r.Ms, &r.Actor, &r.Action, &target, &reason, &r.RawJSON); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Target = target.String
			r.Reason = reason.String
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "snapshots":
		rows, err := db.Query(`SELECT seq,recorded_at,sources,assemblies FROM snapshots ORDER BY seq DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq        int64  `json:"seq"`
				RecordedAt string `json:"recorded_at"`
				Sources    int    `json:"sources"`
				Assemblies int    `json:"assemblies"`
			}
			if err := rows.Scan(&r.Seq, &r.RecordedAt, &r.Sources, &r.Assemblies); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-grid GRID|-db PATH] events|audits|snapshots|catalogs")
		os.Exit(2)
	}
}
