// ABOUTME: Asset provisioner that keeps both stamp size partitions filled on local disk
// ABOUTME: Fetches the catalog page once per run and downloads only the missing images

package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/2389/limimin/internal/stamp"
	"github.com/2389/limimin/internal/store"
)

// DefaultCatalogURL is the wiki page listing every stamp.
const DefaultCatalogURL = "http://unisonleague.wikia.com/wiki/Stamps"

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUserAgent      = "limimin/1.0"

	// maxPageBytes bounds the catalog page read
	maxPageBytes = 8 << 20
	// maxImageBytes bounds a single stamp image download
	maxImageBytes = 4 << 20
)

// Options configures a Provisioner.
type Options struct {
	// BaseDir holds one subdirectory per size variant.
	BaseDir    string
	CatalogURL string
	// RequestTimeout bounds each HTTP request (page or image).
	RequestTimeout time.Duration
	UserAgent      string
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Provisioner ensures stamp images exist under BaseDir/<size>/.
// Runs for different sizes touch disjoint directories and may execute concurrently.
type Provisioner struct {
	baseDir    string
	catalogURL string
	timeout    time.Duration
	userAgent  string
	client     *http.Client
	logger     *slog.Logger

	// inflight collapses concurrent Ensure calls for the same asset
	inflight singleflight.Group
}

// New creates a Provisioner, filling unset options with defaults.
func New(opts Options) *Provisioner {
	p := &Provisioner{
		baseDir:    opts.BaseDir,
		catalogURL: opts.CatalogURL,
		timeout:    opts.RequestTimeout,
		userAgent:  opts.UserAgent,
		client:     opts.HTTPClient,
		logger:     opts.Logger,
	}
	if p.catalogURL == "" {
		p.catalogURL = DefaultCatalogURL
	}
	if p.timeout <= 0 {
		p.timeout = defaultRequestTimeout
	}
	if p.userAgent == "" {
		p.userAgent = defaultUserAgent
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "provision")
	return p
}

// Failure records why a single stamp could not be provisioned.
type Failure struct {
	ID  int
	Err error
}

// Report summarizes one provisioning run.
type Report struct {
	RunID      string
	Size       stamp.Size
	Downloaded []int
	Skipped    []int
	Failures   []Failure
	StartedAt  time.Time
	FinishedAt time.Time
}

// Complete reports whether every stamp of the size is now on disk.
func (r *Report) Complete() bool {
	return len(r.Failures) == 0 && len(r.Downloaded)+len(r.Skipped) == len(stamp.IDs())
}

// Dir returns the partition directory for size.
func (p *Provisioner) Dir(size stamp.Size) string {
	return filepath.Join(p.baseDir, size.String())
}

// PathFor returns the local path of a stamp file name in the given size.
func (p *Provisioner) PathFor(size stamp.Size, name string) string {
	return filepath.Join(p.Dir(size), name)
}

// Path returns the local path of stamp id in the given size.
func (p *Provisioner) Path(size stamp.Size, id int) string {
	return p.PathFor(size, stamp.FileName(id))
}

// EnsureDirectories creates every size partition that does not exist yet.
func (p *Provisioner) EnsureDirectories() error {
	for _, size := range stamp.Sizes {
		dir := p.Dir(size)
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		p.logger.Info("creating stamp folder", "path", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// EnsureRegistryFile creates an empty term registry document at path if absent.
func (p *Provisioner) EnsureRegistryFile(path string) error {
	created, err := store.EnsureDocument(path)
	if err != nil {
		return err
	}
	if created {
		p.logger.Info("created default terms file", "path", path)
	}
	return nil
}

// Provision downloads every missing stamp image of size. Existing files are
// never re-downloaded or verified. Per-stamp failures are logged and recorded
// in the report without stopping the run; the returned error is non-nil only
// when the catalog page cannot be fetched or ctx is cancelled.
func (p *Provisioner) Provision(ctx context.Context, size stamp.Size) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		Size:      size,
		StartedAt: time.Now(),
	}
	defer func() { report.FinishedAt = time.Now() }()

	logger := p.logger.With("run_id", report.RunID, "size", size.String())

	var missing []int
	for _, id := range stamp.IDs() {
		exists, err := fileExists(p.Path(size, id))
		if err != nil {
			report.Failures = append(report.Failures, Failure{ID: id, Err: err})
			continue
		}
		if exists {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		logger.Debug("all stamps present", "skipped", len(report.Skipped))
		return report, nil
	}

	logger.Info("provisioning stamps", "missing", len(missing))

	cat, err := p.fetchCatalog(ctx)
	if err != nil {
		return report, err
	}

	for _, id := range missing {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := p.download(ctx, cat, size, id); err != nil {
			logger.Warn("failed to provision stamp", "id", id, "error", err)
			report.Failures = append(report.Failures, Failure{ID: id, Err: err})
			continue
		}
		report.Downloaded = append(report.Downloaded, id)
	}

	logger.Info("provisioning finished",
		"downloaded", len(report.Downloaded),
		"skipped", len(report.Skipped),
		"failed", len(report.Failures),
	)
	return report, nil
}

// Ensure returns the local path of stamp id in size, downloading it first if
// it is missing. Concurrent calls for the same file share one download.
func (p *Provisioner) Ensure(ctx context.Context, size stamp.Size, id int) (string, error) {
	if !stamp.ValidID(id) {
		return "", fmt.Errorf("stamp id %d out of range", id)
	}
	path := p.Path(size, id)

	exists, err := fileExists(path)
	if err != nil {
		return "", err
	}
	if exists {
		return path, nil
	}

	_, err, _ = p.inflight.Do(path, func() (any, error) {
		// Another caller may have finished between the check and Do
		if ok, _ := fileExists(path); ok {
			return nil, nil
		}
		p.logger.Info("fetching missing stamp on demand", "id", id, "size", size.String())
		cat, err := p.fetchCatalog(ctx)
		if err != nil {
			return nil, err
		}
		return nil, p.download(ctx, cat, size, id)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// fetchCatalog downloads and parses the catalog page.
func (p *Provisioner) fetchCatalog(ctx context.Context) (Catalog, error) {
	base, err := url.Parse(p.catalogURL)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog url: %w", err)
	}

	body, err := p.get(ctx, p.catalogURL, maxPageBytes)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog page: %w", err)
	}

	cat, err := ParseCatalog(bytes.NewReader(body), base)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("catalog page parsed", "images", len(cat))
	return cat, nil
}

// download fetches one stamp image and writes it atomically to its partition.
func (p *Provisioner) download(ctx context.Context, cat Catalog, size stamp.Size, id int) error {
	name := stamp.FileName(id)
	imageURL, err := cat.ImageURL(name, size)
	if err != nil {
		return err
	}

	p.logger.Info("downloading stamp", "url", imageURL, "size", size.String())
	data, err := p.get(ctx, imageURL, maxImageBytes)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", name, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("downloading %s: empty response", name)
	}

	if err := store.WriteFileAtomic(p.PathFor(size, name), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// get performs a bounded GET and returns at most limit bytes of the body.
func (p *Provisioner) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response exceeds %d bytes", limit)
	}
	return body, nil
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}
