package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

type client struct {
	base string
	key  string
	http *http.Client
}

func newClient(base, key string) *client {
	if base == "" {
		base = "http://localhost:8080"
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned %d", e.Status)
	}
	return fmt.Sprintf("api returned %d: %s", e.Status, e.Message)
}

type siteReport struct {
	Site  domain.Site  `json:"site"`
	Stats domain.Stats `json:"stats"`
}

type addResult struct {
	Site    domain.Site `json:"site"`
	Created bool        `json:"created"`
}

func (c *client) addSite(raw string, interval int) (addResult, error) {
	var out addResult
	err := c.do(http.MethodPost, "/api/sites", map[string]any{"url": raw, "interval": interval}, &out)
	return out, err
}

func (c *client) sites() ([]domain.Site, error) {
	var out []domain.Site
	err := c.do(http.MethodGet, "/api/sites", nil, &out)
	return out, err
}

func (c *client) checks(id int64, limit int) ([]domain.Check, error) {
	var out []domain.Check
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	err := c.do(http.MethodGet, sitePath(id, "/checks?"+q.Encode()), nil, &out)
	return out, err
}

func (c *client) stats(id int64) (domain.Stats, error) {
	var out domain.Stats
	err := c.do(http.MethodGet, sitePath(id, "/stats"), nil, &out)
	return out, err
}

func (c *client) report() ([]siteReport, error) {
	var out []siteReport
	err := c.do(http.MethodGet, "/api/report", nil, &out)
	return out, err
}

func (c *client) checkNow(id int64) (domain.Check, error) {
	var out domain.Check
	err := c.do(http.MethodPost, sitePath(id, "/check"), nil, &out)
	return out, err
}

func (c *client) removeSite(id int64) error {
	return c.do(http.MethodDelete, sitePath(id, ""), nil, nil)
}

func sitePath(id int64, suffix string) string {
	return "/api/sites/" + strconv.FormatInt(id, 10) + suffix
}

func (c *client) do(method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
