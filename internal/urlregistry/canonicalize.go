// SPDX-License-Identifier: MIT

package urlregistry

import (
	"net/url"
	"sort"
	"strings"
)

// QueryStripHosts is the fixed allow-list of hosts whose query string is
// dropped during canonicalization (tracking parameters, session tokens).
var QueryStripHosts = map[string]bool{
	"live.example":      true,
	"watch.example":     true,
	"stream.example.tv": true,
}

// HostIDHost keeps only the host_id query parameter; every other query key
// is discarded.
const HostIDHost = "www.xiaohongshu.com"

// ShopeeFamily collapses any host in this set to the family's canonical host,
// since they are regional mirrors of the same live endpoint.
var ShopeeFamily = map[string]bool{
	"shopee.live":    true,
	"shopee.tw":      true,
	"shopee.sg":      true,
	"live.shopee.co": true,
}

const shopeeCanonicalHost = "shopee.live"

// Canonicalize rewrites rawURL into the stable, deduplication key form for
// its host. It is a pure function: Canonicalize(Canonicalize(u)) ==
// Canonicalize(u) for every host covered by a rule below; hosts outside the
// allow-lists pass through unchanged, which is trivially idempotent.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}

	host := strings.ToLower(u.Hostname())

	switch {
	case host == HostIDHost:
		hostID := u.Query().Get("host_id")
		u.RawQuery = ""
		if hostID != "" {
			q := url.Values{}
			q.Set("host_id", hostID)
			u.RawQuery = q.Encode()
		}
	case ShopeeFamily[host]:
		u.Host = shopeeCanonicalHost
		u.RawQuery = ""
	case QueryStripHosts[host]:
		u.RawQuery = ""
	default:
		// No rule for this host: canonical form is the URL as given,
		// with query parameters sorted so equivalent-but-reordered
		// query strings still dedupe.
		if u.RawQuery != "" {
			u.RawQuery = sortedQuery(u.RawQuery)
		}
	}

	u.Fragment = ""
	return u.String(), nil
}

func sortedQuery(raw string) string {
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := url.Values{}
	for _, k := range keys {
		for _, v := range vals[k] {
			out.Add(k, v)
		}
	}
	return out.Encode()
}

// Host returns the lowercase hostname of rawURL, or "" if it does not parse.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
