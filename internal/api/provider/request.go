package provider

import (
	"net/url"
	"sort"
	"strings"
)

// Request is a provider call described independently of its wire format.
type Request struct {
	Method string
	Params map[string]string
}

// NewRequest builds a Request from alternating key/value pairs.
func NewRequest(method string, kv ...string) Request {
	params := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		params[kv[i]] = kv[i+1]
	}
	return Request{Method: method, Params: params}
}

// Key returns the canonical cache key: the method followed by the non-empty
// parameters sorted by name, with whitespace in values collapsed.
func (r Request) Key() string {
	names := make([]string, 0, len(r.Params))
	for k, v := range r.Params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(strings.ToLower(r.Method))
	for i, k := range names {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(strings.Join(strings.Fields(r.Params[k]), " ")))
	}
	return b.String()
}
