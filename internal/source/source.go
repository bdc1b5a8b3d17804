// Package source resolves a dataset reference (local path, http(s) or ftp
// URL) into a table. CSV, gzip-compressed CSV, ZIP archives holding CSV
// members, and XLSX workbooks are supported.
package source

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/table"
)

var (
	// ErrSourceNotFound is returned when the referenced file or URL does not exist.
	ErrSourceNotFound = eris.New("source: not found")

	// ErrParse is returned when the data is not well-formed tabular data.
	ErrParse = eris.New("source: malformed tabular data")
)

// Format identifies how a source is decoded.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatCSVGz  Format = "csv.gz"
	FormatZIP    Format = "zip"
	FormatXLSX   Format = "xlsx"
	FormatDetect Format = ""
)

// Options configures a Loader.
type Options struct {
	Format      Format        // empty: detect from extension
	Delimiter   rune          // default ','
	Encoding    string        // charset label, e.g. "latin1"; empty means UTF-8
	NAValues    []string      // cell texts read as missing; default [""]
	Member      string        // ZIP member to read; default first CSV
	Sheet       string        // XLSX sheet name; default first sheet
	HTTPTimeout time.Duration // default 60s
	FTPTimeout  time.Duration // default 30s
	RateLimit   float64       // HTTP requests per second per host; default 5
	UserAgent   string
}

// Loader reads tables from local or remote references.
type Loader struct {
	opts Options
	http *HTTPSource
	ftp  *FTPSource
	log  *zap.Logger
}

// NewLoader creates a Loader with opts, filling defaults.
func NewLoader(opts Options) *Loader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.NAValues == nil {
		opts.NAValues = []string{""}
	}
	return &Loader{
		opts: opts,
		http: NewHTTPSource(HTTPOptions{
			Timeout:   opts.HTTPTimeout,
			RateLimit: opts.RateLimit,
			UserAgent: opts.UserAgent,
		}),
		ftp: NewFTPSource(FTPOptions{Timeout: opts.FTPTimeout}),
		log: zap.L().With(zap.String("component", "source")),
	}
}

// Load reads ref into a table.
func (l *Loader) Load(ctx context.Context, ref string) (*table.Table, error) {
	local, cleanup, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	format := l.opts.Format
	if format == FormatDetect {
		format = DetectFormat(ref)
	}
	l.log.Debug("loading source", zap.String("ref", ref), zap.String("format", string(format)))

	var header []string
	var records [][]string
	switch format {
	case FormatXLSX:
		header, records, err = readXLSXRecords(local, l.opts.Sheet)
	default:
		var rc io.ReadCloser
		rc, err = l.openCSV(local, format, l.opts.Member)
		if err != nil {
			return nil, err
		}
		header, records, err = ReadCSV(ctx, rc, CSVOptions{Delimiter: l.opts.Delimiter})
		_ = rc.Close()
	}
	if err != nil {
		return nil, err
	}

	tbl, err := table.FromRecords(header, records, naSet(l.opts.NAValues))
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "%s: %v", ref, err)
	}
	l.log.Info("source loaded",
		zap.String("ref", ref),
		zap.Int("rows", tbl.NumRows()),
		zap.Int("columns", tbl.NumCols()),
	)
	return tbl, nil
}

// Open returns the decoded CSV byte stream for ref. For ZIP sources,
// member selects the archive entry; empty selects the loader default.
// The caller must close the returned reader.
func (l *Loader) Open(ctx context.Context, ref, member string) (io.ReadCloser, error) {
	local, cleanup, err := l.fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	format := l.opts.Format
	if format == FormatDetect {
		format = DetectFormat(ref)
	}
	if format == FormatXLSX {
		cleanup()
		return nil, eris.Wrapf(ErrParse, "%s: xlsx has no csv stream", ref)
	}
	if member == "" {
		member = l.opts.Member
	}
	rc, err := l.openCSV(local, format, member)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &cleanupReader{ReadCloser: rc, cleanup: cleanup}, nil
}

// fetch resolves ref to a local file path. Remote sources are downloaded
// to a temporary file that cleanup removes.
func (l *Loader) fetch(ctx context.Context, ref string) (string, func(), error) {
	noop := func() {}
	u, err := url.Parse(ref)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			p, err := downloadTemp(ctx, ref, l.http.Download)
			if err != nil {
				return "", noop, err
			}
			return p, func() { _ = os.Remove(p) }, nil
		case "ftp":
			p, err := downloadTemp(ctx, ref, l.ftp.Download)
			if err != nil {
				return "", noop, err
			}
			return p, func() { _ = os.Remove(p) }, nil
		case "file":
			ref = u.Path
		}
	}

	info, err := os.Stat(ref)
	if errors.Is(err, fs.ErrNotExist) {
		return "", noop, eris.Wrapf(ErrSourceNotFound, "%s", ref)
	}
	if err != nil {
		return "", noop, eris.Wrapf(err, "source: stat %s", ref)
	}
	if info.IsDir() {
		return "", noop, eris.Wrapf(ErrParse, "%s is a directory", ref)
	}
	return ref, noop, nil
}

func (l *Loader) openCSV(local string, format Format, member string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	var err error
	switch format {
	case FormatZIP:
		rc, err = openZIPMember(local, member)
	case FormatCSVGz:
		rc, err = openGzip(local)
	default:
		rc, err = os.Open(local)
		if err != nil {
			err = eris.Wrapf(err, "source: open %s", local)
		}
	}
	if err != nil {
		return nil, err
	}
	return decodeCharset(rc, l.opts.Encoding)
}

// DetectFormat infers the format from the reference's file extension.
func DetectFormat(ref string) Format {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		p = u.Path
	}
	name := strings.ToLower(path.Base(p))
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZIP
	case strings.HasSuffix(name, ".xlsx"):
		return FormatXLSX
	case strings.HasSuffix(name, ".gz"):
		return FormatCSVGz
	default:
		return FormatCSV
	}
}

func downloadTemp(ctx context.Context, ref string, download func(context.Context, string) (io.ReadCloser, error)) (string, error) {
	body, err := download(ctx, ref)
	if err != nil {
		return "", err
	}
	defer body.Close() //nolint:errcheck

	f, err := os.CreateTemp("", "readmit-dqi-*"+path.Ext(ref))
	if err != nil {
		return "", eris.Wrap(err, "source: create temp file")
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", eris.Wrapf(err, "source: download %s", ref)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", eris.Wrap(err, "source: close temp file")
	}
	return f.Name(), nil
}

func naSet(values []string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

type cleanupReader struct {
	io.ReadCloser
	cleanup func()
}

func (r *cleanupReader) Close() error {
	err := r.ReadCloser.Close()
	r.cleanup()
	return err
}
