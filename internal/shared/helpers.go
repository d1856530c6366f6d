package shared

import (
	"fmt"
	"net/url"
	"strings"
)

// GetDomain returns the lower-cased host (with port) of link. Rate limits and
// robots.txt caches are keyed by it.
func GetDomain(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", link)
	}
	return strings.ToLower(u.Host), nil
}

// SameDomain reports whether both links point at the same host.
func SameDomain(a, b string) (bool, error) {
	domainA, err := GetDomain(a)
	if err != nil {
		return false, err
	}
	domainB, err := GetDomain(b)
	if err != nil {
		return false, err
	}
	return domainA == domainB, nil
}

// ResolveURL resolves link against parent and strips the fragment.
func ResolveURL(parent, link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", err
	}

	base, err := url.Parse(parent)
	if err != nil {
		return "", err
	}

	urlObj := base.ResolveReference(u)
	urlObj.Fragment = ""

	return urlObj.String(), nil
}

// IsCrawlable reports whether the link uses a scheme the fetcher can download.
func IsCrawlable(link string) bool {
	return strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://")
}
