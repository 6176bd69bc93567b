// Package share builds public links and QR codes for published forms.
package share

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/Showmax/go-fqdn"
	"github.com/skip2/go-qrcode"
)

// ErrEmptySlug is returned when a link is requested for a form without a slug.
var ErrEmptySlug = errors.New("form has no slug")

// Linker turns form slugs into public URLs.
type Linker struct {
	base   string
	qrSize int
}

// NewLinker creates a Linker. When publicBaseURL is empty the base is
// http://<fqdn>:<port>, falling back to the OS hostname.
func NewLinker(publicBaseURL string, port, qrSize int) *Linker {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		host, err := fqdn.FqdnHostname()
		if err != nil || host == "" {
			host, _ = os.Hostname()
		}
		if host == "" {
			host = "localhost"
		}
		base = "http://" + host + ":" + strconv.Itoa(port)
	}
	if qrSize <= 0 {
		qrSize = 256
	}
	return &Linker{base: base, qrSize: qrSize}
}

// BaseURL returns the base all links are built on.
func (l *Linker) BaseURL() string { return l.base }

// URL returns the public link of a form slug.
func (l *Linker) URL(slug string) (string, error) {
	if slug == "" {
		return "", ErrEmptySlug
	}
	return l.base + "/f/" + url.PathEscape(slug), nil
}

// QRCode renders link as a PNG. size <= 0 uses the configured size.
func (l *Linker) QRCode(link string, size int) ([]byte, error) {
	if size <= 0 {
		size = l.qrSize
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}
