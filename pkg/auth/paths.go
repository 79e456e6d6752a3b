package auth

import "strings"

// Rules describes which API paths are publicly accessible and which
// navigation locations count as auth entry points.
type Rules struct {
	// Exact are public paths matched verbatim.
	Exact []string

	// Prefixes are public path prefixes.
	Prefixes []string

	// PrivateExceptions are path prefixes that stay private even when they
	// fall under a public prefix (e.g., order detail under the public
	// order-lookup prefix).
	PrivateExceptions []string

	// AuthEntryPoints are navigation locations where missing credentials are
	// tolerated while the session bootstraps.
	AuthEntryPoints []string
}

// DefaultRules returns the storefront's public surface: product browsing,
// search, category listings, recommendations and guest order lookup. Order
// detail by id stays private.
func DefaultRules() Rules {
	return Rules{
		Exact: []string{
			"/csrf-cookie",
		},
		Prefixes: []string{
			"/products",
			"/categories",
			"/search",
			"/recommendations",
			"/orders/lookup",
		},
		PrivateExceptions: []string{
			"/orders/lookup/detail",
		},
		AuthEntryPoints: []string{
			"/login",
			"/callback",
		},
	}
}

// Classifier decides, per path, whether credentials are required.
type Classifier struct {
	exact       map[string]struct{}
	prefixes    []string
	exceptions  []string
	entryPoints map[string]struct{}
}

// NewClassifier builds a classifier from rules.
func NewClassifier(rules Rules) *Classifier {
	c := &Classifier{
		exact:       make(map[string]struct{}, len(rules.Exact)),
		prefixes:    make([]string, 0, len(rules.Prefixes)),
		exceptions:  make([]string, 0, len(rules.PrivateExceptions)),
		entryPoints: make(map[string]struct{}, len(rules.AuthEntryPoints)),
	}
	for _, p := range rules.Exact {
		c.exact[normalize(p)] = struct{}{}
	}
	for _, p := range rules.Prefixes {
		c.prefixes = append(c.prefixes, normalize(p))
	}
	for _, p := range rules.PrivateExceptions {
		c.exceptions = append(c.exceptions, normalize(p))
	}
	for _, p := range rules.AuthEntryPoints {
		c.entryPoints[normalize(p)] = struct{}{}
	}
	return c
}

// IsPublic reports whether path may be requested without credentials.
// Private exceptions win over public prefixes.
func (c *Classifier) IsPublic(path string) bool {
	path = normalize(path)

	for _, ex := range c.exceptions {
		if matchPrefix(path, ex) {
			return false
		}
	}

	if _, ok := c.exact[path]; ok {
		return true
	}
	for _, prefix := range c.prefixes {
		if matchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsAuthEntryPoint reports whether location is one of the recognized auth
// bootstrap pages (login/callback).
func (c *Classifier) IsAuthEntryPoint(location string) bool {
	_, ok := c.entryPoints[normalize(location)]
	return ok
}

// matchPrefix matches prefix as a whole path segment boundary: "/products"
// covers "/products" and "/products/p1" but not "/productsearch".
func matchPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
