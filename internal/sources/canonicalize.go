package sources

import "strings"

// canonicalizeURL normalizes article URLs so identical articles surfaced by
// different sources collapse to the same dedup key.
//
// Normalization rules:
//  1. Scheme + host lowercased; http/https default ports stripped.
//  2. Fragment dropped (never part of resource identity for articles).
//  3. Known tracking query parameters (utm_*, fbclid, gclid, msclkid) dropped; the
//     rest are kept since some sites key distinct articles off a query
//     string (e.g. ?id=).
//  4. Trailing slash on the path dropped, except for the bare root "/".
//
// The URL is parsed manually, not with net/url.Parse()+String(), to avoid
// auto-escaping reordering query parameters or re-encoding characters the
// source already delivered canonically.
func canonicalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.Contains(s, "://") {
		return s
	}

	parts := strings.SplitN(s, "://", 2)
	if len(parts) != 2 {
		return s
	}

	scheme := strings.ToLower(parts[0])
	rest := parts[1]

	if idx := strings.Index(rest, "#"); idx >= 0 {
		rest = rest[:idx]
	}

	host := rest
	tail := ""

	if idx := strings.IndexAny(rest, "/?"); idx >= 0 {
		host = rest[:idx]
		tail = rest[idx:]
	}

	host = strings.ToLower(host)
	host = stripDefaultPort(scheme, host)

	path := tail
	query := ""

	if idx := strings.Index(tail, "?"); idx >= 0 {
		path = tail[:idx]
		query = tail[idx+1:]
	}

	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}

	query = stripTrackingParams(query)

	canon := scheme + "://" + host + path
	if query != "" {
		canon += "?" + query
	}

	return canon
}

func stripDefaultPort(scheme, host string) string {
	switch scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	default:
		return host
	}
}

func stripTrackingParams(query string) string {
	if query == "" {
		return ""
	}

	params := strings.Split(query, "&")
	kept := make([]string, 0, len(params))

	for _, p := range params {
		key := p
		if idx := strings.Index(p, "="); idx >= 0 {
			key = p[:idx]
		}

		if isTrackingParam(key) {
			continue
		}

		kept = append(kept, p)
	}

	return strings.Join(kept, "&")
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}

	switch key {
	case "fbclid", "gclid", "msclkid":
		return true
	default:
		return false
	}
}
