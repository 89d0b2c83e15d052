package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxTextSize = 10 * 1024 * 1024 // 10MB text limit
	defaultWorkers     = 4
	pageSeparator      = "\n"
)

var pdfMagic = []byte("%PDF-")

// DocumentInfo describes the structure of a report as seen by pdfcpu
type DocumentInfo struct {
	Pages     int
	Version   string
	Encrypted bool
}

// Extractor decodes PDF bytes into a single text stream in page order
type Extractor struct {
	maxTextSize int
	workers     int
	logger      *slog.Logger
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithWorkers bounds how many pages are decoded concurrently
func WithWorkers(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithMaxTextSize caps the size of the extracted text
func WithMaxTextSize(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTextSize = n
		}
	}
}

// WithLogger configures structured logging
func WithLogger(l *slog.Logger) ExtractorOption {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExtractor creates an extractor
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		maxTextSize: defaultMaxTextSize,
		workers:     defaultWorkers,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Inspect checks the header and reads the document structure with pdfcpu
func (e *Extractor) Inspect(data []byte) (*DocumentInfo, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, newExtractionError(KindInvalidHeader, 0, errors.New("missing %PDF- header"))
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, newExtractionError(KindMalformedDocument, 0, fmt.Errorf("failed to read PDF context: %w", err))
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, newExtractionError(KindMalformedDocument, 0, fmt.Errorf("failed to ensure page count: %w", err))
	}

	return &DocumentInfo{
		Pages:     ctx.PageCount,
		Version:   ctx.HeaderVersion.String(),
		Encrypted: ctx.Encrypt != nil,
	}, nil
}

// Extract returns the text of every page, joined in page-index order. Within a
// page, text follows the order of the content stream, which is not always the
// visual reading order.
func (e *Extractor) Extract(ctx context.Context, data []byte) (string, error) {
	info, err := e.Inspect(data)
	if err != nil {
		return "", err
	}

	numPages, err := countPages(data)
	if err != nil {
		return "", err
	}

	e.logger.DebugContext(ctx, "extracting text",
		"pages", numPages, "version", info.Version, "encrypted", info.Encrypted)

	pages, err := e.decodePages(ctx, data, numPages)
	if err != nil {
		return "", err
	}

	text := e.join(pages)
	if strings.TrimSpace(text) == "" {
		e.logger.WarnContext(ctx, "no text content could be extracted", "pages", numPages)
	}

	return text, nil
}

// decodePages decodes all pages with a bounded pool of workers. Each worker owns its
// own reader over the shared, read-only byte slice, and writes into its page slot.
func (e *Extractor) decodePages(ctx context.Context, data []byte, numPages int) ([]string, error) {
	pages := make([]string, numPages)
	if numPages == 0 {
		return pages, nil
	}

	workers := e.workers
	if workers > numPages {
		workers = numPages
	}

	jobs := make(chan int)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for pageNum := 1; pageNum <= numPages; pageNum++ {
			select {
			case jobs <- pageNum:
			case <-gCtx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			reader, err := openReader(data)
			if err != nil {
				return err
			}
			for pageNum := range jobs {
				if err := gCtx.Err(); err != nil {
					return err
				}
				text, err := decodePage(reader, pageNum)
				if err != nil {
					return err
				}
				pages[pageNum-1] = text
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, newExtractionError(KindCanceled, 0, err)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, newExtractionError(KindCanceled, 0, err)
	}

	return pages, nil
}

// join concatenates page texts, truncating at maxTextSize
func (e *Extractor) join(pages []string) string {
	var builder strings.Builder
	totalLength := 0

	for i, content := range pages {
		if i > 0 {
			content = pageSeparator + content
		}

		if totalLength+len(content) > e.maxTextSize {
			remaining := e.maxTextSize - totalLength
			if remaining > 0 {
				builder.WriteString(strings.ToValidUTF8(content[:remaining], ""))
			}
			break
		}

		builder.WriteString(content)
		totalLength += len(content)
	}

	return builder.String()
}

func openReader(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newExtractionError(KindMalformedDocument, 0, fmt.Errorf("decoder panic: %v", r))
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, newExtractionError(KindMalformedDocument, 0, fmt.Errorf("failed to open PDF: %w", err))
	}
	return reader, nil
}

func countPages(data []byte) (int, error) {
	reader, err := openReader(data)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

// decodePage extracts the text items of one page. The decoder panics on some
// malformed streams; that is reported as a page failure.
func decodePage(reader *pdf.Reader, pageNum int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = newExtractionError(KindMalformedPage, pageNum, fmt.Errorf("decoder panic: %v", r))
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", newExtractionError(KindMalformedPage, pageNum, errors.New("page object is missing"))
	}

	return pageText(page), nil
}
