// Package urlnorm turns URLs into the comparable keys used for visited
// tracking and same-site checks.
package urlnorm

import (
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// Parser is the lenient WHATWG parser shared by link resolution and
// normalization. A lone '%' is percent-encoded instead of rejected.
var Parser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// Normalize returns the lowercase userinfo@host+path of raw with scheme,
// query, fragment and trailing slashes removed. Input without a scheme is
// read as an http URL. Input with no host, such as mailto: links, yields "".
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return pathOnly(raw)
	}

	u, err := Parser.Parse(raw)
	if err != nil || (u.Host() == "" && startsWithDigit(u.Pathname())) {
		// "host/path" has no scheme and "host:port/path" parses as scheme "host".
		u, err = Parser.Parse("http://" + raw)
		if err != nil {
			return ""
		}
	}
	if u.Host() == "" {
		return ""
	}

	netloc := u.Host()
	if user := u.Username(); user != "" {
		if pw := u.Password(); pw != "" {
			user += ":" + pw
		}
		netloc = user + "@" + netloc
	}
	return strings.ToLower(strings.TrimRight(netloc+u.Pathname(), "/"))
}

// pathOnly keys a host-relative reference by its path.
func pathOnly(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.ToLower(strings.TrimRight(raw, "/"))
}

// Absolute reports whether raw parses as a URL with a host.
func Absolute(raw string) bool {
	u, err := Parser.Parse(strings.TrimSpace(raw))
	return err == nil && u.Hostname() != ""
}

// Resolve resolves ref against base the way a browser would. ok is false
// only when neither base nor ref yields a URL.
func Resolve(base, ref string) (abs string, ok bool) {
	ref = strings.TrimSpace(ref)
	u, err := Parser.ParseRef(base, ref)
	if err != nil {
		if u, err = Parser.Parse(ref); err != nil {
			return "", false
		}
	}
	return u.Href(false), true
}

// SameSite reports whether raw belongs to the site whose normalized start
// key is baseKey.
func SameSite(baseKey, raw string) bool {
	return strings.HasPrefix(Normalize(raw), baseKey)
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
