// Command healthcheck probes the commentbot health endpoint from inside the
// container. It exits 0 when every component reports ok.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const defaultAddr = "127.0.0.1:8080"

// healthBody mirrors the fields of the health response this probe reads.
type healthBody struct {
	Status     string `json:"status"`
	Components []struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"components"`
}

func main() {
	os.Exit(check(os.Stderr))
}

func check(out io.Writer) int {
	addr := normalizeAddr(os.Getenv("COMMENTBOT_LISTEN_ADDR"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return probe(ctx, &http.Client{Timeout: 2 * time.Second}, "http://"+addr+"/api/v1/health", out)
}

// probe requests url and reports unhealthy components to out. The body is
// read even on 503 so the failing component can be named.
func probe(ctx context.Context, client *http.Client, url string, out io.Writer) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintf(out, "healthcheck: %v\n", err)
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(out, "healthcheck: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	var body healthBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil && resp.StatusCode == http.StatusOK {
		fmt.Fprintf(out, "healthcheck: decode response: %v\n", err)
		return 1
	}

	for _, c := range body.Components {
		if c.Status != "ok" {
			fmt.Fprintf(out, "healthcheck: %s %s: %s\n", c.Name, c.Status, c.Error)
		}
	}

	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		fmt.Fprintf(out, "healthcheck: status %d (%s)\n", resp.StatusCode, body.Status)
		return 1
	}

	return 0
}

// normalizeAddr points the probe at loopback when the server binds all
// interfaces, since the probe runs inside the same container.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
