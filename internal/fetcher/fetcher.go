// Package fetcher implements pipeline.Fetcher: turning a job's URL or
// uploaded file into raw text and a display title. Real HTML/PDF
// extraction is named out of scope (spec.md §1); this package does the
// minimum needed to hand the chunker something to split — a plain HTTP
// GET for URL jobs, a blob-storage read for file jobs — rather than
// reaching for a parser the spec explicitly excludes.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/semaj-rag/ingest-pipeline/internal/apperr"
	"github.com/semaj-rag/ingest-pipeline/internal/model"
)

// MaxFetchBytes caps how much of a response body is read, mirroring the
// upload cap named for file jobs in spec.md §6.
const MaxFetchBytes = 100 << 20

var titleTag = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// BlobReader opens the object a file job's FilePayload.BytesRef points
// at. Satisfied by *blobstore.Store.
type BlobReader interface {
	Get(ctx context.Context, bytesRef string) (io.ReadCloser, error)
}

// Fetcher resolves a job's content from either the open web or blob
// storage, depending on job type.
type Fetcher struct {
	client *http.Client
	blobs  BlobReader
}

// New builds a Fetcher. blobs may be nil in a deployment that only
// handles URL jobs.
func New(blobs BlobReader) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		blobs:  blobs,
	}
}

// Fetch implements pipeline.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, job *model.Job) (string, string, error) {
	switch job.Type {
	case model.JobURL:
		return f.fetchURL(ctx, job.URL)
	case model.JobFile:
		return f.fetchFile(ctx, job.File)
	default:
		return "", "", apperr.New(apperr.InvalidInput, "unknown job type")
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", apperr.Wrap(apperr.InvalidInput, "build fetch request", err)
	}
	req.Header.Set("User-Agent", "ingest-pipeline/1.0 (+content fetcher)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", apperr.Wrap(apperr.UpstreamUnavailable, "fetch url", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", "", apperr.New(apperr.UpstreamUnavailable, "source returned an error status").WithHint(resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFetchBytes))
	if err != nil {
		return "", "", apperr.Wrap(apperr.UpstreamUnavailable, "read fetch response", err)
	}

	text := string(body)
	title := extractTitle(text)
	if title == "" {
		title = rawURL
	}
	return text, title, nil
}

func (f *Fetcher) fetchFile(ctx context.Context, file *model.FilePayload) (string, string, error) {
	if file == nil {
		return "", "", apperr.New(apperr.InvalidInput, "file job missing payload")
	}
	if f.blobs == nil {
		return "", "", apperr.New(apperr.UpstreamUnavailable, "blob storage is not configured on this deployment")
	}

	obj, err := f.blobs.Get(ctx, file.BytesRef)
	if err != nil {
		return "", "", err
	}
	defer obj.Close()

	body, err := io.ReadAll(io.LimitReader(obj, MaxFetchBytes))
	if err != nil {
		return "", "", apperr.Wrap(apperr.UpstreamUnavailable, "read uploaded file", err)
	}
	return string(body), file.Filename, nil
}

// extractTitle pulls the content of an HTML <title> tag, if present.
// Anything else (plain text, markdown, PDFs) has no title to extract
// and the caller falls back to the source identifier.
func extractTitle(body string) string {
	m := titleTag.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
