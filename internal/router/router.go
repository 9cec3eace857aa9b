// Package router resolves navigation paths against the application's route table.
package router

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Guard restricts who may activate a route
type Guard int

const (
	// GuardNone lets everyone through
	GuardNone Guard = iota
	// GuardAuth requires a signed-in user
	GuardAuth
	// GuardNoAuth only admits guests
	GuardNoAuth
)

func (g Guard) String() string {
	switch g {
	case GuardAuth:
		return "auth"
	case GuardNoAuth:
		return "no-auth"
	default:
		return "none"
	}
}

// Well-known paths
const (
	PathSignIn           = "sign-in"
	PathSignUp           = "sign-up"
	PathSignOut          = "sign-out"
	PathSignedInRedirect = "signed-in-redirect"
	PathHome             = "home"
	PathTasks            = "apps/tasks"
	PathTask             = "apps/tasks/:id"
)

// maxRedirects bounds redirect chains
const maxRedirects = 8

// ErrNoRoute is returned when no route matches a path
var ErrNoRoute = errors.New("no route matches path")

// Route is one entry of the route table
type Route struct {
	Path       string
	RedirectTo string
	Guard      Guard
	// Layout is informational: "empty" for full-screen pages, "" for the main layout
	Layout string
}

// Match is the outcome of resolving a path
type Match struct {
	Route  Route
	Path   string
	Params map[string]string
	// Redirects lists every path passed through on the way, in order
	Redirects []string
	// ReturnTo is the originally requested path when a guard bounced the user
	ReturnTo string
}

// Param returns a path parameter
func (m Match) Param(name string) (string, bool) {
	v, ok := m.Params[name]
	return v, ok
}

// IntParam returns a path parameter parsed as an integer
func (m Match) IntParam(name string) (int, error) {
	v, ok := m.Param(name)
	if !ok {
		return 0, fmt.Errorf("route %s has no %q parameter", m.Route.Path, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parameter %q is not a number: %s", name, v)
	}
	return n, nil
}

// Routes returns the application's route table
func Routes() []Route {
	return []Route{
		{Path: "", RedirectTo: PathTasks},
		{Path: PathSignedInRedirect, RedirectTo: PathTasks},

		// guests
		{Path: PathSignIn, Guard: GuardNoAuth, Layout: "empty"},
		{Path: PathSignUp, Guard: GuardNoAuth, Layout: "empty"},

		// signed-in users
		{Path: PathSignOut, Guard: GuardAuth, Layout: "empty"},

		// landing
		{Path: PathHome, Layout: "empty"},

		// admin
		{Path: PathTasks, Guard: GuardAuth},
		{Path: PathTask, Guard: GuardAuth},
	}
}

// Router matches paths against a route table
type Router struct {
	routes        []Route
	authenticated func() bool
}

// New creates a router over the default table. authenticated reports whether a
// user is signed in; nil means never.
func New(authenticated func() bool) *Router {
	return NewWithRoutes(Routes(), authenticated)
}

// NewWithRoutes creates a router over routes
func NewWithRoutes(routes []Route, authenticated func() bool) *Router {
	if authenticated == nil {
		authenticated = func() bool { return false }
	}
	return &Router{routes: routes, authenticated: authenticated}
}

// Resolve follows redirects and guards until it lands on a page route
func (r *Router) Resolve(p string) (Match, error) {
	current := Clean(p)
	var redirects []string
	returnTo := ""

	for i := 0; i <= maxRedirects; i++ {
		route, params, ok := r.match(current)
		if !ok {
			return Match{}, fmt.Errorf("%w: /%s", ErrNoRoute, current)
		}

		next := ""
		switch {
		case route.RedirectTo != "":
			next = route.RedirectTo
		case route.Guard == GuardAuth && !r.authenticated():
			next = PathSignIn
			if returnTo == "" {
				returnTo = current
			}
		case route.Guard == GuardNoAuth && r.authenticated():
			next = PathSignedInRedirect
		}

		if next == "" {
			return Match{
				Route:     route,
				Path:      current,
				Params:    params,
				Redirects: redirects,
				ReturnTo:  returnTo,
			}, nil
		}

		redirects = append(redirects, current)
		current = Clean(next)
	}

	return Match{}, fmt.Errorf("too many redirects resolving /%s", Clean(p))
}

func (r *Router) match(p string) (Route, map[string]string, bool) {
	segments := split(p)
	for _, route := range r.routes {
		pattern := split(route.Path)
		if len(pattern) != len(segments) {
			continue
		}
		params := map[string]string{}
		matched := true
		for i, seg := range pattern {
			if strings.HasPrefix(seg, ":") {
				params[seg[1:]] = segments[i]
				continue
			}
			if seg != segments[i] {
				matched = false
				break
			}
		}
		if matched {
			return route, params, true
		}
	}
	return Route{}, nil, false
}

func split(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Clean normalizes a path to the form used in the route table: no leading or
// trailing slash, no query string.
func Clean(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	p = path.Clean("/" + p)
	return strings.Trim(p, "/")
}

// Relative resolves segments against from, the way "../3" navigates from a detail page
func Relative(from string, segments ...string) string {
	parts := append([]string{"/" + Clean(from)}, segments...)
	return Clean(path.Join(parts...))
}

// TaskPath returns the detail path for a task id
func TaskPath(id int) string {
	return PathTasks + "/" + strconv.Itoa(id)
}
