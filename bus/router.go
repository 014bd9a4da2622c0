// Package bus is the daemon's message bus: named services that take and
// return JSON. A service is served in-process by default and can be routed
// to a remote HTTP endpoint from configuration without the caller noticing.
//
//	r := bus.New()
//	r.RegisterTransport("http", bus.HTTPFactory(netguard.Policy{}))
//	r.RegisterLocal(bus.ServicePing, pingHandler)
//	_ = r.Load(cfg.Routes)
//
//	resp, err := r.Call(ctx, bus.ServicePing, nil)
package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Handler is a service function: JSON in, JSON out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory builds a Handler for a remote endpoint. The returned close
// function runs when the route is replaced or removed; it may be nil.
type TransportFactory func(endpoint string, timeout time.Duration) (handler Handler, close func(), err error)

// Route sends one service somewhere other than its local handler.
type Route struct {
	Service string `yaml:"service" json:"service"`
	// Strategy is "local", "noop" or a registered transport name ("http").
	Strategy string `yaml:"strategy" json:"strategy"`
	Endpoint string `yaml:"endpoint" json:"endpoint,omitempty"`
	// TimeoutMs bounds each remote call. 0 uses the transport default.
	TimeoutMs int64 `yaml:"timeout_ms" json:"timeout_ms,omitempty"`
}

func (rt Route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + time.Duration(rt.TimeoutMs).String()
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls. Safe for concurrent use.
type Router struct {
	mu        sync.RWMutex
	local     map[string]Handler
	remote    map[string]remoteEntry
	routes    map[string]Route
	factories map[string]TransportFactory
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		routes:    make(map[string]Route),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal serves service in-process.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.local[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory under a strategy name.
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// Call dispatches to, in order: a noop route (returns nil, nil), a remote
// route, the local handler. Anything else is ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remote[service]
	h := r.local[service]
	rt, hasRoute := r.routes[service]
	r.mu.RUnlock()

	if hasRoute && rt.Strategy == "noop" {
		r.logger.DebugContext(ctx, "bus: noop", "service", service)
		return nil, nil
	}
	if hasRemote {
		r.logger.DebugContext(ctx, "bus: remote", "service", service, "endpoint", rt.Endpoint)
		return entry.handler(ctx, payload)
	}
	if h != nil {
		return h(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Load replaces the route table. Unchanged remote routes keep their
// handler; replaced or removed ones are closed. Routes whose transport is
// unknown or whose factory fails are skipped and reported in the returned
// error, the rest still apply.
func (r *Router) Load(routes []Route) error {
	next := make(map[string]Route, len(routes))
	for _, rt := range routes {
		next[rt.Service] = rt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	entries := make(map[string]remoteEntry, len(next))
	for name, rt := range next {
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routes[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, ok := r.remote[name]; ok {
				entries[name] = existing
				continue
			}
		}
		factory, ok := r.factories[rt.Strategy]
		if !ok {
			errs = append(errs, &ErrNoTransport{Service: name, Strategy: rt.Strategy})
			continue
		}
		h, closeFn, err := factory(rt.Endpoint, time.Duration(rt.TimeoutMs)*time.Millisecond)
		if err != nil {
			errs = append(errs, &ErrFactoryFailed{Service: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err})
			continue
		}
		entries[name] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("bus: route built", "service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remote {
		if old.close == nil {
			continue
		}
		if _, kept := next[name]; !kept || r.routes[name].fingerprint() != next[name].fingerprint() {
			old.close()
		}
	}

	r.remote = entries
	r.routes = next
	r.logger.Info("bus: routes loaded", "total", len(next), "remote", len(entries))
	return joinErrors(errs)
}

// Services lists the names served locally.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.local))
	for name := range r.local {
		out = append(out, name)
	}
	return out
}

// Close shuts down every remote handler.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.remote {
		if e.close != nil {
			e.close()
		}
	}
	r.remote = make(map[string]remoteEntry)
	r.routes = make(map[string]Route)
	return nil
}

// callJSON marshals in, calls service and decodes the reply into out.
func callJSON(ctx context.Context, r *Router, service string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return err
		}
	}
	resp, err := r.Call(ctx, service, payload)
	if err != nil {
		return err
	}
	if out == nil || len(resp) == 0 {
		return nil
	}
	return json.Unmarshal(resp, out)
}
