package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func gridQuery(gridID string) string {
	if strings.TrimSpace(gridID) == "" {
		return ""
	}
	return "?grid=" + url.QueryEscape(gridID)
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	gridID := fs.String("grid", "", "grid id (default grid when empty)")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state" + gridQuery(*gridID)
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	gridID := fs.String("grid", "", "grid id (default grid when empty)")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot" + gridQuery(*gridID)
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// opCmd posts a raw op envelope, either from -json or stdin.
func opCmd(args []string) {
	fs := flag.NewFlagSet("op", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	body := fs.String("json", "", "op request json (default: read stdin)")
	_ = fs.Parse(args)

	payload := strings.TrimSpace(*body)
	if payload == "" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, "stdin:", err)
			os.Exit(1)
		}
		payload = strings.TrimSpace(string(b))
	}
	if payload == "" {
		fmt.Fprintln(os.Stderr, "empty op request")
		os.Exit(2)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/op"
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Post(u, "application/json", strings.NewReader(payload))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
