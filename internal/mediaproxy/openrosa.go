package mediaproxy

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ErrOrigin marks failures reported by the origin server itself.
var ErrOrigin = errors.New("origin error")

// OriginStatusError is a non-2xx origin answer.
type OriginStatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *OriginStatusError) Error() string {
	return fmt.Sprintf("origin %s: unexpected status %d: %s", e.URL, e.Status, e.Body)
}

func (e *OriginStatusError) Unwrap() error { return ErrOrigin }

type xformsList struct {
	XForms []xformEntry `xml:"xform"`
}

type xformEntry struct {
	FormID      string `xml:"formID"`
	Name        string `xml:"name"`
	Hash        string `xml:"hash"`
	DownloadURL string `xml:"downloadUrl"`
	ManifestURL string `xml:"manifestUrl"`
}

type xformsManifest struct {
	MediaFiles []struct {
		Filename    string `xml:"filename"`
		Hash        string `xml:"hash"`
		DownloadURL string `xml:"downloadUrl"`
	} `xml:"mediaFile"`
}

// openRosaClient talks to an OpenRosa form server. It implements
// FormInfoProvider and ManifestProvider.
type openRosaClient struct {
	httpClient *http.Client
	maxBody    int64
}

func newOpenRosaClient(httpClient *http.Client, maxBody int64) *openRosaClient {
	return &openRosaClient{httpClient: httpClient, maxBody: maxBody}
}

// ExtendedInfo looks the form up in the server's formList to learn its
// manifest URL. Forms without media have no manifestUrl.
func (c *openRosaClient) ExtendedInfo(ctx context.Context, s Survey) (Survey, error) {
	listURL, err := formListURL(s.OpenRosaServer, s.OpenRosaID)
	if err != nil {
		return Survey{}, err
	}
	body, err := c.fetch(ctx, listURL, s)
	if err != nil {
		return Survey{}, err
	}
	var list xformsList
	if err := xml.Unmarshal(body, &list); err != nil {
		return Survey{}, fmt.Errorf("parse formList: %w", err)
	}
	for _, xf := range list.XForms {
		if strings.TrimSpace(xf.FormID) != s.OpenRosaID {
			continue
		}
		out := s
		out.ManifestURL = resolveRef(listURL, strings.TrimSpace(xf.ManifestURL))
		return out, nil
	}
	return Survey{}, fmt.Errorf("form %q not listed by %s: %w", s.OpenRosaID, s.OpenRosaServer, ErrSurveyNotFound)
}

func (c *openRosaClient) Manifest(ctx context.Context, s Survey) ([]ManifestEntry, error) {
	if s.ManifestURL == "" {
		return nil, nil
	}
	body, err := c.fetch(ctx, s.ManifestURL, s)
	if err != nil {
		return nil, err
	}
	var doc xformsManifest
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	out := make([]ManifestEntry, 0, len(doc.MediaFiles))
	for _, mf := range doc.MediaFiles {
		out = append(out, ManifestEntry{
			Filename:    strings.TrimSpace(mf.Filename),
			DownloadURL: resolveRef(s.ManifestURL, strings.TrimSpace(mf.DownloadURL)),
			Hash:        strings.TrimSpace(mf.Hash),
		})
	}
	return out, nil
}

func (c *openRosaClient) fetch(ctx context.Context, target string, s Survey) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-OpenRosa-Version", "1.0")
	if s.Auth != nil {
		req.SetBasicAuth(s.Auth.Username, s.Auth.Password)
	}
	if s.Cookie != "" {
		req.Header.Set("Cookie", s.Cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &OriginStatusError{URL: target, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxBody {
		return nil, c.errTooLarge(target)
	}

	// Some servers gzip the document without Content-Encoding.
	if len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("origin %s: gunzip: %w", target, err)
		}
		defer gz.Close()
		unzipped, err := io.ReadAll(io.LimitReader(gz, c.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("origin %s: gunzip: %w", target, err)
		}
		if int64(len(unzipped)) > c.maxBody {
			return nil, c.errTooLarge(target)
		}
		body = unzipped
	}
	return body, nil
}

func (c *openRosaClient) errTooLarge(target string) error {
	return fmt.Errorf("origin %s: body exceeds %s", target, formatBytes(uint64(c.maxBody)))
}

func formListURL(server, formID string) (string, error) {
	server = strings.TrimSpace(server)
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		return "", fmt.Errorf("invalid openRosaServer %q", server)
	}
	return strings.TrimRight(server, "/") + "/formList?formID=" + url.QueryEscape(formID), nil
}

// resolveRef resolves ref against base; absolute refs pass through.
func resolveRef(base, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
