package shareusage

import (
	"strings"
)

// Evidence keys the filter treats specially.
const (
	KeyClientIP  = "server.client-ip"
	KeyHostIP    = "server.host-ip"
	KeyUsageFrom = "header.usage-from"
)

// sharedPrefixes lists the evidence prefixes that may leave the process.
var sharedPrefixes = map[string]bool{
	"header": true,
	"cookie": true,
	"query":  true,
	"server": true,
}

// EvidenceFilter removes evidence that must not be shared.
//
// By default only keys with a header, cookie, query or server prefix pass:
//   - header.*: unless the header is in Config.BlockedHTTPHeaders
//   - cookie.*: unless "cookie" is in Config.BlockedHTTPHeaders
//   - query.*: only parameters in Config.IncludedQueryParams
//   - server.*: only server.client-ip and server.host-ip
//
// With Config.ShareAllEvidence set, keys with any other prefix, or none, are kept
// as they are. The rules for the four prefixes above still apply.
type EvidenceFilter struct {
	blockedHeaders map[string]bool
	includedQuery  map[string]bool
	usageFrom      string
	shareAll       bool
}

// NewEvidenceFilter builds a filter from the sharing configuration.
// Header and query parameter names are compared case-insensitively.
func NewEvidenceFilter(cfg Config) *EvidenceFilter {
	f := &EvidenceFilter{
		blockedHeaders: make(map[string]bool, len(cfg.BlockedHTTPHeaders)),
		includedQuery:  make(map[string]bool, len(cfg.IncludedQueryParams)),
		usageFrom:      cfg.UsageFrom,
		shareAll:       cfg.ShareAllEvidence,
	}
	for _, h := range cfg.BlockedHTTPHeaders {
		if h = strings.TrimSpace(h); h != "" {
			f.blockedHeaders[strings.ToLower(h)] = true
		}
	}
	for _, q := range cfg.IncludedQueryParams {
		if q = strings.TrimSpace(q); q != "" {
			f.includedQuery[strings.ToLower(q)] = true
		}
	}
	return f
}

// Apply returns r without disallowed evidence. The usage-from marker is only added to
// records that still carry evidence, so an empty result means nothing worth sharing.
func (f *EvidenceFilter) Apply(r Record) Record {
	out := r.filter(f.allowed)
	if out.Len() == 0 || f.usageFrom == "" {
		return out
	}
	return out.with(KeyUsageFrom, f.usageFrom)
}

func (f *EvidenceFilter) allowed(e Evidence) bool {
	prefix := strings.ToLower(e.Prefix())
	if !sharedPrefixes[prefix] {
		return f.shareAll
	}

	name := strings.ToLower(e.Name())
	switch prefix {
	case "header":
		return !f.blockedHeaders[name]
	case "cookie":
		return !f.blockedHeaders["cookie"]
	case "query":
		return f.includedQuery[name]
	case "server":
		key := strings.ToLower(e.Key)
		return key == KeyClientIP || key == KeyHostIP
	}
	return false
}
