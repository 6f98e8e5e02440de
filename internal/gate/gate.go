// Package gate is the router-facing entry point of the loader. A route is
// mapped to a module key, the key is checked against the registry, and the
// caller waits on the loader's shared future.
package gate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/conneroisu/modloader/internal/errors"
	"github.com/conneroisu/modloader/internal/loader"
	"github.com/conneroisu/modloader/internal/logging"
	"github.com/conneroisu/modloader/internal/types"
)

// Requester starts module loads. *loader.ModuleLoader satisfies it.
type Requester interface {
	Request(key string) *loader.Future
}

// NavigationGate resolves routes to loaded modules. It keeps no cache of its
// own; the loader's record table is the only cache.
type NavigationGate struct {
	lookup    loader.Lookup
	requester Requester
	routes    map[string]string
	logger    logging.Logger
}

// NewNavigationGate creates a gate. routes maps route paths to module keys
// and may be nil, in which case every route names its module directly.
func NewNavigationGate(lookup loader.Lookup, requester Requester, routes map[string]string, logger logging.Logger) *NavigationGate {
	table := make(map[string]string, len(routes))
	for route, key := range routes {
		table[normalizePath(route)] = key
	}
	return &NavigationGate{
		lookup:    lookup,
		requester: requester,
		routes:    table,
		logger:    logging.OrNop(logger).WithComponent("gate"),
	}
}

// ModuleKey returns the module key a route maps to. Routes missing from the
// table fall back to the route itself without its slashes.
func (g *NavigationGate) ModuleKey(route string) string {
	path := normalizePath(route)
	if key, ok := g.routes[path]; ok {
		return key
	}
	return strings.TrimPrefix(path, "/")
}

// Resolve waits for the module behind route. Cancelling ctx abandons the
// wait but not the load. Load failures are returned unmodified.
func (g *NavigationGate) Resolve(ctx context.Context, route string) (types.ModuleHandle, error) {
	key := g.ModuleKey(route)
	if _, ok := g.lookup.Get(key); !ok {
		return nil, errors.NewRouteMisconfiguredError(route, key)
	}

	start := time.Now()
	handle, err := g.requester.Request(key).Wait(ctx)
	if err != nil {
		g.logger.Debug(ctx, "Navigation failed",
			"route", route,
			"module", key,
			"error", err.Error())
		return nil, err
	}

	g.logger.Debug(ctx, "Navigation resolved",
		"route", route,
		"module", key,
		"duration_ms", time.Since(start).Milliseconds())
	return handle, nil
}

// Route is a single route table entry
type Route struct {
	Path   string `json:"path" yaml:"path"`
	Module string `json:"module" yaml:"module"`
}

// Routes returns the route table sorted by path
func (g *NavigationGate) Routes() []Route {
	routes := make([]Route, 0, len(g.routes))
	for path, key := range g.routes {
		routes = append(routes, Route{Path: path, Module: key})
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Path < routes[j].Path
	})
	return routes
}

// Validate reports the first route, in path order, whose module is not
// registered
func (g *NavigationGate) Validate() error {
	for _, route := range g.Routes() {
		if _, ok := g.lookup.Get(route.Module); !ok {
			return errors.NewRouteMisconfiguredError(route.Path, route.Module)
		}
	}
	return nil
}

// normalizePath gives every route a leading slash and no trailing slash
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
		if path == "" {
			return "/"
		}
	}
	return path
}
