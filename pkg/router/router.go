// Package router holds the console's fixed route table.
package router

import (
	"errors"
	"strings"
)

// ErrRouteNotFound is returned when no route matches a path.
var ErrRouteNotFound = errors.New("route not found")

// Screen identifies a console screen.
type Screen string

const (
	MainConfig    Screen = "MainConfig"
	ServerConfig  Screen = "ServerConfig"
	LoggingConfig Screen = "LoggingConfig"
	Copyright     Screen = "Copyright"
)

// Route binds a path to a screen.
type Route struct {
	Path   string `json:"path"`
	Screen Screen `json:"name"`
	Title  string `json:"title"`
	// Section is the configuration section the screen edits, if any.
	Section string `json:"section,omitempty"`
	// RedirectedFrom is set by Resolve when a redirect rule applied.
	RedirectedFrom string `json:"redirectedFrom,omitempty"`
}

type redirect struct {
	from string
	to   string
}

var redirects = []redirect{
	{from: "/", to: "/main"},
}

var routes = []Route{
	{Path: "/main", Screen: MainConfig, Title: "Main configuration", Section: "monica"},
	{Path: "/server", Screen: ServerConfig, Title: "Server configuration", Section: "server"},
	{Path: "/logging", Screen: LoggingConfig, Title: "Logging configuration", Section: "logging"},
	{Path: "/copyright", Screen: Copyright, Title: "Copyright"},
}

// Routes returns the route table in declaration order.
func Routes() []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	return out
}

// Lookup returns the route bound to a screen.
func Lookup(screen Screen) (Route, bool) {
	for _, r := range routes {
		if r.Screen == screen {
			return r, true
		}
	}
	return Route{}, false
}

// Resolve maps a path to its route. Query strings and fragments are
// ignored; matching is case-insensitive and tolerates one trailing slash.
// An empty path is treated as the root.
func Resolve(path string) (Route, error) {
	normalized := normalize(path)

	from := ""
	for _, rd := range redirects {
		if normalized == rd.from {
			from = rd.from
			normalized = rd.to
			break
		}
	}

	for _, r := range routes {
		if normalized == r.Path {
			r.RedirectedFrom = from
			return r, nil
		}
	}

	return Route{}, ErrRouteNotFound
}

// normalize strips the query and fragment and folds case. The path is not
// parsed as a URL, so "//main" stays a path instead of naming a host.
func normalize(path string) string {
	p, _, _ := strings.Cut(path, "#")
	p, _, _ = strings.Cut(p, "?")

	p = strings.ToLower(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
