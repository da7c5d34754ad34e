// SPDX-License-Identifier: MIT

// Package resolver routes a room URL to the StreamResolver registered for
// its host and applies proxy selection policy before the call. It replaces
// the large per-platform switch statement pattern with a predicate table,
// the same "strategy behind one entry point" shape the teacher repo uses
// for its mediamtx client's request builders.
package resolver

import (
	"context"
	"net/url"
	"time"

	"github.com/roomrec/roomrec/internal/roomerrors"
)

// Quality is the requested recording quality tier for a room.
type Quality int

const (
	QualityOriginal Quality = iota
	QualityBluray
	QualityUHD
	QualityHD
	QualitySD
	QualityLD
)

// Room is the minimal view of a monitored room the resolver needs.
type Room struct {
	URL      string
	Quality  Quality
	Platform string
}

// Resolution is the ephemeral result of a single probe.
type Resolution struct {
	IsLive              bool
	MediaURL            string
	AnchorName          string
	Title               string
	PreferredContainer  string
	UpdatedCredentials  map[string]string
}

// StreamResolver is implemented once per platform; the core never knows how
// any individual site works.
type StreamResolver interface {
	Resolve(ctx context.Context, room Room, proxyURL string) (Resolution, error)
}

// ProxyPolicy decides whether a proxy URL should be passed to a resolver
// call for a given host. ProxyURL is the single configured proxy; whether it
// applies to a given host is governed by the host allow-lists, or
// unconditionally when GlobalDetected is set (an environment-wide proxy was
// auto-detected).
type ProxyPolicy struct {
	ProxyURL       string
	PrimaryHosts   []string
	ExtraHosts     []string
	GlobalDetected bool
}

// Select returns the proxy URL to use for host, or "" if none applies.
func (p ProxyPolicy) Select(host string) string {
	if p.ProxyURL == "" {
		return ""
	}
	if p.GlobalDetected {
		return p.ProxyURL
	}
	for _, h := range p.PrimaryHosts {
		if h == host {
			return p.ProxyURL
		}
	}
	for _, h := range p.ExtraHosts {
		if h == host {
			return p.ProxyURL
		}
	}
	return ""
}

type route struct {
	match    func(*url.URL) bool
	resolver StreamResolver
}

// Router holds host-predicate -> StreamResolver routes and the proxy policy
// applied before dispatch.
type Router struct {
	routes        []route
	proxy         ProxyPolicy
	domesticHosts map[string]bool
	domestic      time.Duration
	overseas      time.Duration
}

// NewRouter returns an empty Router. Resolve's per-call timeout is 15s for
// hosts in domesticHosts and 50s for every other host.
func NewRouter(proxy ProxyPolicy, domesticHosts []string) *Router {
	set := make(map[string]bool, len(domesticHosts))
	for _, h := range domesticHosts {
		set[h] = true
	}
	return &Router{
		proxy:         proxy,
		domesticHosts: set,
		domestic:      15 * time.Second,
		overseas:      50 * time.Second,
	}
}

// Register adds a route. Routes are tried in registration order; the first
// matching predicate wins.
func (r *Router) Register(match func(*url.URL) bool, resolver StreamResolver) {
	r.routes = append(r.routes, route{match: match, resolver: resolver})
}

// HostMatch returns a predicate that matches a URL whose host equals any of hosts.
func HostMatch(hosts ...string) func(*url.URL) bool {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[h] = true
	}
	return func(u *url.URL) bool { return set[u.Hostname()] }
}

// Resolve finds the registered resolver for room's host, applies proxy
// selection, and bounds the call by the host's timeout class.
func (r *Router) Resolve(ctx context.Context, room Room) (Resolution, error) {
	u, err := url.Parse(room.URL)
	if err != nil {
		return Resolution{}, roomerrors.New(roomerrors.KindParseFailure, err)
	}

	for _, rt := range r.routes {
		if !rt.match(u) {
			continue
		}
		timeout := r.overseas
		if r.domesticHosts[u.Hostname()] {
			timeout = r.domestic
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		proxyURL := r.proxy.Select(u.Hostname())
		return rt.resolver.Resolve(callCtx, room, proxyURL)
	}

	return Resolution{}, roomerrors.New(roomerrors.KindUnknownHost, errUnknownHost(u.Hostname()))
}

type unknownHostError string

func (e unknownHostError) Error() string { return "resolver: no route for host " + string(e) }

func errUnknownHost(host string) error { return unknownHostError(host) }
