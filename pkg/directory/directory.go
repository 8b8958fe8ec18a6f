// Package directory enumerates the peers subscribed to this host and answers
// liveness questions about them.
package directory

import (
	"context"
	"sync"

	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"

	"github.com/vctt94/pokerhost/pkg/registry"
)

// Peer is a candidate participant discovered through the registry.
type Peer struct {
	Identity string
	Name     string
	Endpoint string
	Status   string
}

// Active reports whether the peer's subscription is active.
func (p Peer) Active() bool {
	return p.Status == registry.StatusActive
}

// Source lists the raw subscriber records of a provider. It may return
// duplicates.
type Source interface {
	SubscribersFor(ctx context.Context, provider string) ([]registry.Subscriber, error)
}

// Pinger sends a liveness probe. A nil error means alive.
type Pinger interface {
	Ping(ctx context.Context, endpoint string) error
}

// Config configures a Directory.
type Config struct {
	Provider string
	Source   Source
	Pinger   Pinger
	// ProbeLimit bounds concurrent liveness probes. Zero means unbounded.
	ProbeLimit int
	Log        slog.Logger
}

// Directory answers "who could play" questions. Nothing is cached: every call
// asks the registry and every liveness answer comes from a fresh probe.
type Directory struct {
	provider string
	source   Source
	pinger   Pinger
	limit    int
	log      slog.Logger
}

// New returns a Directory.
func New(cfg Config) *Directory {
	log := cfg.Log
	if log == nil {
		log = slog.Disabled
	}
	return &Directory{
		provider: cfg.Provider,
		source:   cfg.Source,
		pinger:   cfg.Pinger,
		limit:    cfg.ProbeLimit,
		log:      log,
	}
}

// Peers returns the known peers with an endpoint, one per identity, in
// registry order. When an identity appears more than once the first record is
// kept unless a later one is active and the first is not.
func (d *Directory) Peers(ctx context.Context) ([]Peer, error) {
	subs, err := d.source.SubscribersFor(ctx, d.provider)
	if err != nil {
		return nil, err
	}
	return dedupe(subs), nil
}

func dedupe(subs []registry.Subscriber) []Peer {
	index := make(map[string]int, len(subs))
	peers := make([]Peer, 0, len(subs))
	for _, s := range subs {
		if s.Identity == "" || s.Endpoint == "" {
			continue
		}
		p := Peer{Identity: s.Identity, Name: s.Name, Endpoint: s.Endpoint, Status: s.Status}
		if i, ok := index[s.Identity]; ok {
			if !peers[i].Active() && p.Active() {
				peers[i] = p
			}
			continue
		}
		index[s.Identity] = len(peers)
		peers = append(peers, p)
	}
	return peers
}

// ActivePeers returns the peers whose subscription is active.
func (d *Directory) ActivePeers(ctx context.Context) ([]Peer, error) {
	peers, err := d.Peers(ctx)
	if err != nil {
		return nil, err
	}
	active := peers[:0]
	for _, p := range peers {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active, nil
}

// LivePeers probes every active peer concurrently and returns those that
// answered, preserving registry order.
func (d *Directory) LivePeers(ctx context.Context) ([]Peer, error) {
	peers, err := d.ActivePeers(ctx)
	if err != nil {
		return nil, err
	}
	alive := d.Probe(ctx, peers)
	live := make([]Peer, 0, len(peers))
	for i, p := range peers {
		if alive[i] {
			live = append(live, p)
		}
	}
	d.log.Debugf("%d of %d active peers are live", len(live), len(peers))
	return live, nil
}

// Probe pings every peer concurrently and reports liveness by index.
func (d *Directory) Probe(ctx context.Context, peers []Peer) []bool {
	alive := make([]bool, len(peers))
	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}
	for i, p := range peers {
		g.Go(func() error {
			alive[i] = d.Alive(ctx, p.Endpoint)
			if !alive[i] {
				d.log.Debugf("Peer %s at %s is not responding", p.Identity, p.Endpoint)
			}
			return nil
		})
	}
	g.Wait()
	return alive
}

// Alive sends a single fresh probe to endpoint.
func (d *Directory) Alive(ctx context.Context, endpoint string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("Liveness probe to %s panicked: %v", endpoint, r)
			ok = false
		}
	}()
	return d.pinger.Ping(ctx, endpoint) == nil
}

// StaticSource is a fixed Source, used when no registry is configured and in
// tests.
type StaticSource struct {
	mu   sync.Mutex
	subs []registry.Subscriber
}

// NewStaticSource returns a source listing subs for every provider.
func NewStaticSource(subs ...registry.Subscriber) *StaticSource {
	return &StaticSource{subs: subs}
}

// Set replaces the listed subscribers.
func (s *StaticSource) Set(subs ...registry.Subscriber) {
	s.mu.Lock()
	s.subs = append([]registry.Subscriber(nil), subs...)
	s.mu.Unlock()
}

// SubscribersFor implements Source.
func (s *StaticSource) SubscribersFor(context.Context, string) ([]registry.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]registry.Subscriber(nil), s.subs...), nil
}
