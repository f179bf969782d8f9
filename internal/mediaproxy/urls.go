package mediaproxy

import (
	"net/url"
	"regexp"
	"strings"
)

const upperhex = "0123456789ABCDEF"

var mediaPathRe = regexp.MustCompile(`^/get/([01])/([^/]+)/(.+)$`)

var markupReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// BuildLocalPath returns {basePath}/media/get/{type}/{id}/{fileName}, escaped
// for use as a URL path. The same inputs always yield the same path, which is
// what makes it usable as a cache key.
func BuildLocalPath(basePath string, resourceType ResourceType, resourceID, fileName string) string {
	return escapeURLPath(joinURLPath(basePath, "media", "get", resourceType.String(), resourceID, fileName))
}

// ParseLocalPath matches /get/{0|1}/{id}/{file...} relative to the media
// mount. Anything else is not a media path.
func ParseLocalPath(requestPath string) (MediaURLSegments, bool) {
	m := mediaPathRe.FindStringSubmatch(requestPath)
	if m == nil {
		return MediaURLSegments{}, false
	}
	id, err := url.PathUnescape(m[2])
	if err != nil {
		return MediaURLSegments{}, false
	}
	file, err := url.PathUnescape(m[3])
	if err != nil {
		return MediaURLSegments{}, false
	}
	rt := ResourceManifest
	if m[1] == "1" {
		rt = ResourceInstance
	}
	return MediaURLSegments{ResourceType: rt, ResourceID: id, FileName: file}, true
}

// EscapeFilenameForMarkup produces the key under which a file appears in
// transformed form markup: path-escaped, with "/" kept inside the segment,
// then entity-escaped.
func EscapeFilenameForMarkup(fileName string) string {
	s := escapeLenient(fileName)
	s = strings.ReplaceAll(s, "/", "%2F")
	return markupReplacer.Replace(s)
}

func joinURLPath(parts ...string) string {
	var b strings.Builder
	for i, p := range parts {
		last := i == len(parts)-1
		p = strings.TrimLeft(p, "/")
		if !last {
			p = strings.TrimRight(p, "/")
		}
		if p == "" {
			continue
		}
		b.WriteByte('/')
		b.WriteString(p)
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// escapeURLPath percent-encodes every byte outside RFC 3986 unreserved and "/".
func escapeURLPath(p string) string {
	return escapeBytes(p, func(c byte) bool {
		return !isUnreserved(c) && c != '/'
	})
}

// escapeLenient only encodes bytes that cannot appear raw in a path token.
// Markup-significant characters are left for the entity pass.
func escapeLenient(s string) string {
	return escapeBytes(s, func(c byte) bool {
		return c <= ' ' || c >= 0x7f || c == '%' || c == '#' || c == '?'
	})
}

func escapeBytes(s string, shouldEscape func(byte) bool) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldEscape(c) {
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&15])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
