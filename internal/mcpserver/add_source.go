package mcpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/notebook"
	"github.com/starford/quire/internal/textproj"
)

const maxSourceSize = 10 << 20 // 10 MB

// fetched is a downloaded or decoded text document.
type fetched struct {
	data      []byte
	mediaType string
}

func (s *Server) addSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := ""
	if v, nErr := req.RequireString("name"); nErr == nil {
		name = v
	}

	var doc fetched
	kind := models.SourceURL
	if strings.HasPrefix(rawURL, "data:") {
		kind = models.SourceText
		doc, err = decodeDataURI(rawURL)
	} else {
		doc, err = fetchHTTP(ctx, rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := toText(doc)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if name == "" {
		name = nameFromURL(rawURL)
	}
	in := notebook.SourceInput{Kind: kind, Name: name, Content: text}
	if kind == models.SourceURL {
		in.URL = rawURL
	}
	src, err := s.nb.AddSource(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s %s (%d chars)", src.ID, src.Name, utf8.RuneCountInString(text))), nil
}

// toText accepts UTF-8 text documents only; HTML is reduced to plain text.
func toText(doc fetched) (string, error) {
	mt := doc.mediaType
	if mt == "" {
		mt, _, _ = mime.ParseMediaType(http.DetectContentType(doc.data))
	}
	if !strings.HasPrefix(mt, "text/") {
		return "", fmt.Errorf("unsupported content type: %s (text only)", mt)
	}
	if !utf8.Valid(doc.data) {
		return "", fmt.Errorf("content is not valid UTF-8")
	}
	if mt == "text/html" {
		return textproj.PlainText(string(doc.data)), nil
	}
	return textproj.ParseDocument(doc.data).Body, nil
}

// decodeDataURI parses a data:[<mediatype>][;base64],<data> URI.
func decodeDataURI(uri string) (fetched, error) {
	rest := strings.TrimPrefix(uri, "data:")
	commaIdx := strings.Index(rest, ",")
	if commaIdx < 0 {
		return fetched{}, fmt.Errorf("invalid data URI: missing comma separator")
	}

	meta := rest[:commaIdx]
	encoded := rest[commaIdx+1:]

	if !strings.Contains(meta, ";base64") {
		return fetched{}, fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return fetched{}, fmt.Errorf("invalid base64 data: %w", err)
		}
	}
	if len(data) > maxSourceSize {
		return fetched{}, fmt.Errorf("file too large: %d bytes (max %d)", len(data), maxSourceSize)
	}

	mt := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	return fetched{data: data, mediaType: mt}, nil
}

// fetchHTTP downloads a document from an HTTP/HTTPS URL with security checks.
func fetchHTTP(ctx context.Context, rawURL string) (fetched, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fetched{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fetched{}, fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}

	if err := checkBlockedHost(parsed.Hostname()); err != nil {
		return fetched{}, err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return checkBlockedHost(req.URL.Hostname())
		},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fetched{}, fmt.Errorf("invalid URL: %w", err)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return fetched{}, fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fetched{}, fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize+1))
	if err != nil {
		return fetched{}, fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxSourceSize {
		return fetched{}, fmt.Errorf("file too large: exceeds %d bytes", maxSourceSize)
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return fetched{data: data, mediaType: mt}, nil
}

// checkBlockedHost rejects loopback and cloud metadata addresses.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
		ip = ips[0]
	}

	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	// AWS/GCP/Azure metadata endpoint.
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// nameFromURL uses the last path element, then the host, as a display name.
func nameFromURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "data:") {
		return "Pasted text"
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
		return base
	}
	if parsed.Host != "" {
		return parsed.Host
	}
	return rawURL
}
