package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meow-stack/meowctl/internal/config"
)

// apiClient is a thin REST client for the running "meowctl serve"
// instance, used by every subcommand other than serve/cleanup itself:
// the CLI talks to the daemon's HTTP surface rather than touching its
// files directly, keeping the daemon the single writer.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// envelope mirrors httpapi's "{success, data}" / "{success:false,
// error}" response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newClient() (*apiClient, error) {
	addr := serverAddr
	if addr == "" {
		dir, err := getWorkDir()
		if err != nil {
			return nil, err
		}
		cfg, err := config.LoadFromDir(dir)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		addr = cfg.HTTP.Addr
	}

	base := addr
	if !strings.Contains(base, "://") {
		host := strings.TrimPrefix(base, ":")
		if host == base {
			base = "http://" + base
		} else {
			base = "http://localhost:" + host
		}
	}

	return &apiClient{baseURL: base, http: &http.Client{Timeout: 30 * time.Second}}, nil
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling meowctl serve at %s: %w (is it running?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !env.Success {
		return fmt.Errorf("%s", env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}
	return nil
}

func (c *apiClient) get(path string, out any) error        { return c.do(http.MethodGet, path, nil, out) }
func (c *apiClient) post(path string, body, out any) error { return c.do(http.MethodPost, path, body, out) }
func (c *apiClient) delete(path string, out any) error     { return c.do(http.MethodDelete, path, nil, out) }
