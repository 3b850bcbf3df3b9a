// Package proxy keeps a rotating set of egress proxies for outbound API calls
// and benches the ones that keep failing.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	ErrNilURL   = errors.New("proxy: url cannot be nil")
	ErrNotFound = errors.New("proxy: not in pool")
)

// Proxy is one egress endpoint and its health counters.
type Proxy struct {
	URL        *url.URL
	Failures   int
	Successes  int
	LastUsed   time.Time
	BenchUntil time.Time
}

func (p *Proxy) benched(now time.Time) bool {
	return now.Before(p.BenchUntil)
}

// Pool hands out proxies round-robin, skipping benched ones.
type Pool struct {
	mu          sync.Mutex
	proxies     []*Proxy
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// Config tunes the benching policy. Zero values pick the defaults.
type Config struct {
	// MaxFailures is the consecutive failure count that benches a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         cfg.Now,
	}
}

// LoadFile adds one proxy per line of path. Blank lines and lines starting
// with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read %s: %w", path, err)
	}
	return p.Add(lines...)
}

// Add parses and appends proxies. A missing scheme means http.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*Proxy, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("proxy: %w", err)
		}
		if u.Host == "" {
			return fmt.Errorf("proxy: %q has no host", raw)
		}
		parsed = append(parsed, &Proxy{URL: u})
	}

	p.mu.Lock()
	p.proxies = append(p.proxies, parsed...)
	p.mu.Unlock()
	return nil
}

// Len is the number of proxies in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Healthy is the number of proxies Next may currently return.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for _, prx := range p.proxies {
		if !prx.benched(now) {
			n++
		}
	}
	return n
}

// Next returns the next proxy that is not benched, or nil when the pool is
// empty or everything is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.proxies {
		prx := p.proxies[p.next]
		p.next = (p.next + 1) % len(p.proxies)

		if prx.benched(now) {
			continue
		}
		if !prx.BenchUntil.IsZero() {
			prx.BenchUntil = time.Time{}
			prx.Failures = 0
		}
		prx.LastUsed = now
		return prx.URL
	}
	return nil
}

// MarkSuccess credits a proxy and forgives one earlier failure.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	if proxyURL == nil {
		return ErrNilURL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx := p.find(proxyURL)
	if prx == nil {
		return ErrNotFound
	}
	prx.Successes++
	if prx.Failures > 0 {
		prx.Failures--
	}
	return nil
}

// MarkFailure counts a failure and benches the proxy for the cooldown once
// it reaches MaxFailures.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	if proxyURL == nil {
		return ErrNilURL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prx := p.find(proxyURL)
	if prx == nil {
		return ErrNotFound
	}
	prx.Failures++
	if prx.Failures >= p.maxFailures {
		prx.BenchUntil = p.now().Add(p.cooldown)
	}
	return nil
}

// Label renders u for logs and metric labels with any password removed.
func Label(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

// find must be called with the lock held.
func (p *Pool) find(u *url.URL) *Proxy {
	target := u.String()
	for _, prx := range p.proxies {
		if prx.URL.String() == target {
			return prx
		}
	}
	return nil
}
