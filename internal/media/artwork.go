package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Artwork is a resolved artwork asset: a fetchable URL, raw image bytes,
// or both when the bytes were decoded locally.
type Artwork struct {
	URL  string
	Data []byte
	MIME string
}

// ArtworkResolver turns an artwork reference (direct image URL, base64
// payload, or a recognized source page URL) into a concrete asset.
type ArtworkResolver interface {
	Resolve(ctx context.Context, input string) (*Artwork, error)
	FetchImage(ctx context.Context, imageURL string) ([]byte, string, error)
}

// HTTPArtworkResolver resolves artwork over plain HTTP.
type HTTPArtworkResolver struct {
	httpClient *http.Client
}

// NewHTTPArtworkResolver creates a resolver with a bounded request timeout.
func NewHTTPArtworkResolver(timeout time.Duration) *HTTPArtworkResolver {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPArtworkResolver{
		httpClient: &http.Client{Timeout: timeout},
	}
}

var sndcdnArtworkRe = regexp.MustCompile(`https://i1\.sndcdn\.com/artworks-[^"'\s\\]+?\.jpg`)
var sndcdnSizeRe = regexp.MustCompile(`-[a-z0-9]+\.jpg$`)

// Resolve maps an artwork reference to a fetchable asset. An unsupported
// host or a page with no discoverable artwork yields ErrArtworkUnresolved.
func (r *HTTPArtworkResolver) Resolve(ctx context.Context, input string) (*Artwork, error) {
	if data, mime, ok := decodeBase64Image(input); ok {
		return &Artwork{Data: data, MIME: mime}, nil
	}

	u, err := url.Parse(input)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrArtworkUnresolved
	}

	if strings.HasSuffix(u.Hostname(), "soundcloud.com") {
		return r.resolveSoundCloud(ctx, input)
	}

	return r.resolveDirect(ctx, input)
}

// resolveDirect verifies the URL serves an image and uses it as-is.
func (r *HTTPArtworkResolver) resolveDirect(ctx context.Context, imageURL string) (*Artwork, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid artwork url: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artwork url unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artwork url returned status %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return nil, fmt.Errorf("artwork url is not an image (content-type %q)", resp.Header.Get("Content-Type"))
	}

	return &Artwork{URL: imageURL}, nil
}

// resolveSoundCloud scrapes a track page for its canonical artwork asset
// (https://i1.sndcdn.com/artworks-<id>-0-t500x500.jpg).
func (r *HTTPArtworkResolver) resolveSoundCloud(ctx context.Context, pageURL string) (*Artwork, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, ErrArtworkUnresolved
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, ErrArtworkUnresolved
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrArtworkUnresolved
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, ErrArtworkUnresolved
	}

	match := sndcdnArtworkRe.Find(body)
	if match == nil {
		return nil, ErrArtworkUnresolved
	}

	artworkURL := sndcdnSizeRe.ReplaceAllString(string(match), "-t500x500.jpg")
	return &Artwork{URL: artworkURL}, nil
}

// FetchImage downloads image bytes for embedding.
func (r *HTTPArtworkResolver) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", err
	}

	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// decodeBase64Image accepts either a data URI or a bare base64 string and
// returns the decoded bytes when they look like an image.
func decodeBase64Image(input string) ([]byte, string, bool) {
	payload := input
	if strings.HasPrefix(input, "data:") {
		idx := strings.Index(input, ",")
		if idx < 0 {
			return nil, "", false
		}
		payload = input[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", false
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", false
	}
	return data, mime, true
}
