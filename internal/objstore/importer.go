package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// ErrUntrustedHost is returned for a source URL whose host is not on the
// trusted list.
var ErrUntrustedHost = errors.New("untrusted image host")

const (
	keyPrefix   = "images"
	jpegQuality = 90
	maxFetch    = 32 << 20
)

// Importer copies images produced by the generation gateway into a Store
// under a key derived from the source URL, so repeated imports are no-ops.
type Importer struct {
	store   Store
	client  *http.Client
	trusted []string
	logger  *zap.Logger
}

// ImporterOption configures an Importer.
type ImporterOption func(*Importer)

// WithHTTPClient sets the client used to download source images.
func WithHTTPClient(c *http.Client) ImporterOption {
	return func(i *Importer) { i.client = c }
}

// WithTrustedHosts restricts downloads to hosts matching one of the glob
// patterns, e.g. "*.livepeer.cloud". No patterns means every host is trusted.
func WithTrustedHosts(patterns ...string) ImporterOption {
	return func(i *Importer) { i.trusted = append(i.trusted, patterns...) }
}

// NewImporter creates an importer writing into store.
func NewImporter(store Store, logger *zap.Logger, opts ...ImporterOption) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	i := &Importer{store: store, client: http.DefaultClient, logger: logger}
	for _, o := range opts {
		o(i)
	}
	return i
}

// KeyFor derives the object key for a source image: the last two path
// segments under the user's prefix, with .png renamed to .jpg.
func KeyFor(userID, sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing image url: %w", err)
	}
	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(segs) < 2 {
		return "", fmt.Errorf("image url %q has fewer than two path segments", sourceURL)
	}
	name := segs[len(segs)-1]
	if ext := path.Ext(name); strings.EqualFold(ext, ".png") {
		name = strings.TrimSuffix(name, ext) + ".jpg"
	}
	return path.Join(keyPrefix, userID, segs[len(segs)-2], name), nil
}

func (i *Importer) trustedHost(host string) bool {
	if len(i.trusted) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, p := range i.trusted {
		if ok, _ := doublestar.Match(strings.ToLower(p), host); ok {
			return true
		}
	}
	return false
}

// Import stores one image and returns its store URL. URLs already inside
// the store are returned unchanged.
func (i *Importer) Import(ctx context.Context, userID, sourceURL string) (string, error) {
	if _, ok := i.store.KeyFor(sourceURL); ok {
		return sourceURL, nil
	}
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("parsing image url: %w", err)
	}
	if !i.trustedHost(u.Hostname()) {
		return "", fmt.Errorf("%s: %w", u.Hostname(), ErrUntrustedHost)
	}
	key, err := KeyFor(userID, sourceURL)
	if err != nil {
		return "", err
	}

	exists, err := i.store.Head(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		i.logger.Debug("image already imported", zap.String("key", key))
		return i.store.URL(key), nil
	}

	raw, err := i.fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}
	data, err := toJPEG(raw)
	if err != nil {
		return "", fmt.Errorf("converting %s: %w", sourceURL, err)
	}
	stored, err := i.store.Put(ctx, key, data, "image/jpeg")
	if err != nil {
		return "", err
	}
	i.logger.Info("image imported", zap.String("source", sourceURL), zap.String("key", key), zap.Int("bytes", len(data)))
	return stored, nil
}

// ImportAll imports each URL in order and stops at the first failure.
func (i *Importer) ImportAll(ctx context.Context, userID string, sourceURLs []string) ([]string, error) {
	out := make([]string, 0, len(sourceURLs))
	for _, src := range sourceURLs {
		u, err := i.Import(ctx, userID, src)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (i *Importer) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating image request: %w", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: status %d", sourceURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetch))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", sourceURL, err)
	}
	return data, nil
}

func toJPEG(raw []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if format == "jpeg" {
		return raw, nil
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
