// Package waf recognizes responses served by a bot-protection layer instead
// of the API, which happens when an egress proxy gets flagged.
package waf

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of an HTTP response the detectors inspect. Body may
// be an excerpt.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Detector reports whether r came from a specific protection vendor.
type Detector func(r Response) (detected bool, source string)

// DefaultDetectors covers the vendors commonly seen in front of proxies and
// APIs.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs the default detectors and returns the first matching vendor.
func Detect(r Response) (source string, blocked bool) {
	return DetectWith(r, DefaultDetectors())
}

func DetectWith(r Response, detectors []Detector) (string, bool) {
	for _, d := range detectors {
		if ok, src := d(r); ok {
			return src, true
		}
	}
	return "", false
}

func server(r Response) string {
	return strings.ToLower(r.Header.Get("Server"))
}

func bodyHas(r Response, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(r.Body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(r Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden && r.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(server(r), "cloudflare") ||
		bodyHas(r, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(r Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(r), "akamai") {
		return true, "Akamai"
	}
	// Akamai's generic block page.
	if bodyHas(r, "Reference #") && bodyHas(r, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(r Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(server(r), "datadome") ||
		r.Header.Get("X-DataDome") != "" || r.Header.Get("X-DataDome-Response") != "" ||
		bodyHas(r, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(r Response) (bool, string) {
	if r.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if r.Header.Get("X-Px-Captcha") != "" ||
		bodyHas(r, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}
