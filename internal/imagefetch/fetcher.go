// Package imagefetch downloads caller-supplied image URLs.
package imagefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/example/scenecheck/internal/apperrors"
)

// DefaultContentType is used when the image host does not declare one.
const DefaultContentType = "application/octet-stream"

// MaxRedirects caps how many redirects a download may follow.
const MaxRedirects = 5

var (
	ErrUnsupportedScheme = errors.New("image url must use http or https")
	ErrTooLarge          = errors.New("image exceeds size limit")
	ErrTooManyRedirects  = errors.New("image url redirected too many times")
	ErrForbiddenAddress  = errors.New("image host resolves to a non-public address")
)

// Image is a downloaded image and the content type reported by its host.
type Image struct {
	Data        []byte
	ContentType string
}

// Fetcher performs unauthenticated GET requests with a per-call timeout and a
// size cap.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewFetcher creates a fetcher. A nil client uses DefaultClient.
func NewFetcher(client *http.Client, timeout time.Duration, maxBytes int64) *Fetcher {
	if client == nil {
		client = DefaultClient()
	}
	return &Fetcher{client: client, timeout: timeout, maxBytes: maxBytes}
}

// DefaultClient only dials public unicast addresses and follows at most
// MaxRedirects http(s) redirects. The address is checked after DNS
// resolution, so a public name pointing at a private address is refused too.
func DefaultClient() *http.Client {
	return newClient(rejectNonPublic)
}

func newClient(control func(network, address string, c syscall.RawConn) error) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   control,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// A proxy would be dialled instead of the image host and bypass the check.
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Transport: transport, CheckRedirect: limitRedirects}
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return ErrTooManyRedirects
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return ErrUnsupportedScheme
	}
	return nil
}

func rejectNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublic(ip) {
		return fmt.Errorf("%w: %s", ErrForbiddenAddress, host)
	}
	return nil
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// Fetch downloads rawURL. Every failure is an UpstreamFetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.UpstreamFetch(err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, apperrors.UpstreamFetch(ErrUnsupportedScheme)
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, apperrors.UpstreamFetch(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.UpstreamFetch(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.UpstreamFetch(fmt.Errorf("image host responded with status %d", resp.StatusCode))
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, apperrors.UpstreamFetch(ErrTooLarge)
	}

	reader := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.UpstreamFetch(err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, apperrors.UpstreamFetch(ErrTooLarge)
	}

	return &Image{Data: data, ContentType: contentType(resp.Header.Get("Content-Type"))}, nil
}

func contentType(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return DefaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return DefaultContentType
	}
	return mediaType
}
