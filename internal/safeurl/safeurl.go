// Package safeurl validates and redacts URLs that come from outside:
// feed-supplied stream and cover URLs are handed to a subprocess and
// the shared HTTP client, so anything that is not plain http(s) is
// rejected before it gets that far.
package safeurl

import "net/url"

// IsHTTPOrHTTPS reports whether u parses and uses scheme http or
// https. Rejects file://, ftp:// and friends.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// Redact returns u with any userinfo password replaced, for log
// lines. Unparsable input is returned as-is.
func Redact(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.User == nil {
		return u
	}
	if _, has := parsed.User.Password(); has {
		parsed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
	}
	return parsed.String()
}
