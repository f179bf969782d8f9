package mediaproxy

import (
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized: no device identifier")

const deviceIDHeader = "X-Device-Id"

// RequestDescriber turns an inbound request into per-request resolution
// options.
type RequestDescriber interface {
	Describe(r *http.Request) (HostURLOptions, error)
}

// cookieDescriber reads the device id from a cookie, falling back to the
// X-Device-Id header.
type cookieDescriber struct {
	basePath     string
	deviceCookie string
}

func (d cookieDescriber) Describe(r *http.Request) (HostURLOptions, error) {
	device := ""
	if c, err := r.Cookie(d.deviceCookie); err == nil {
		device = strings.TrimSpace(c.Value)
	}
	if device == "" {
		device = strings.TrimSpace(r.Header.Get(deviceIDHeader))
	}
	if device == "" {
		return HostURLOptions{}, ErrUnauthorized
	}

	opts := HostURLOptions{
		BasePath:    d.basePath,
		DeviceID:    device,
		Cookie:      r.Header.Get("Cookie"),
		RequestPath: strings.TrimPrefix(r.URL.EscapedPath(), d.basePath+"/media"),
	}
	if user, pass, ok := r.BasicAuth(); ok {
		opts.Auth = &Credentials{Username: user, Password: pass}
	}
	return opts, nil
}
