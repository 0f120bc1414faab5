package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/jonesrussell/towncrier/internal/logger"
)

const (
	robotsCacheTTL    = 24 * time.Hour
	maxRobotsBodySize = 512 * 1024
	robotsSuccessLow  = 200
	robotsSuccessHigh = 300
)

// hostRules holds the parsed rule group for a single host. A nil group
// means every path on the host is allowed.
type hostRules struct {
	group     *robotstxt.Group
	fetchedAt time.Time
}

// RobotsGate answers whether a URL may be fetched under the host's
// robots.txt. Rules are cached per host; a missing, errored, or non-2xx
// robots.txt allows everything, which is standard crawling practice.
type RobotsGate struct {
	client *http.Client
	log    logger.Interface
	agent  string

	mu    sync.Mutex
	hosts map[string]*hostRules
}

func NewRobotsGate(client *http.Client, agent string, log logger.Interface) *RobotsGate {
	return &RobotsGate{
		client: client,
		log:    log.WithComponent("robots"),
		agent:  agent,
		hosts:  make(map[string]*hostRules),
	}
}

// Allowed reports whether rawURL may be fetched. Unparseable URLs and
// robots.txt retrieval problems resolve to allowed so a flaky robots
// endpoint never blocks a scrape run.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return true
	}

	host := strings.ToLower(parsed.Host)

	rules := g.rulesFor(ctx, host, parsed.Scheme)
	if rules.group == nil {
		return true
	}

	return rules.group.Test(parsed.Path)
}

func (g *RobotsGate) rulesFor(ctx context.Context, host, scheme string) *hostRules {
	g.mu.Lock()
	cached, ok := g.hosts[host]
	g.mu.Unlock()

	if ok && time.Since(cached.fetchedAt) < robotsCacheTTL {
		return cached
	}

	rules := g.fetchRules(ctx, host, scheme)

	g.mu.Lock()
	g.hosts[host] = rules
	g.mu.Unlock()

	return rules
}

func (g *RobotsGate) fetchRules(ctx context.Context, host, scheme string) *hostRules {
	if scheme == "" {
		scheme = "https"
	}

	robotsURL := scheme + "://" + host + "/robots.txt"
	allowAll := &hostRules{fetchedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, http.NoBody)
	if err != nil {
		return allowAll
	}
	req.Header.Set("User-Agent", g.agent)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Debug("robots.txt unreachable, allowing all", "host", host, "error", err.Error())
		return allowAll
	}
	defer resp.Body.Close()

	if resp.StatusCode < robotsSuccessLow || resp.StatusCode >= robotsSuccessHigh {
		return allowAll
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBodySize))
	if err != nil {
		return allowAll
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return allowAll
	}

	return &hostRules{group: data.FindGroup(g.agent), fetchedAt: time.Now()}
}
