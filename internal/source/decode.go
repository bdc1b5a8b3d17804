package source

import (
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// openGzip opens a gzip-compressed file for reading.
func openGzip(p string) (io.ReadCloser, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, eris.Wrapf(err, "gzip: open %s", p)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(ErrParse, "gzip: %v", err)
	}
	return &gzipFileReader{Reader: zr, file: f}, nil
}

type gzipFileReader struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFileReader) Close() error {
	err := g.Reader.Close()
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// decodeCharset wraps rc so that it yields UTF-8. An empty or UTF-8 label
// returns rc unchanged.
func decodeCharset(rc io.ReadCloser, label string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return rc, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		_ = rc.Close()
		return nil, eris.Wrapf(err, "source: unsupported charset %q", label)
	}
	return &decodedReader{Reader: enc.NewDecoder().Reader(rc), closer: rc}, nil
}

type decodedReader struct {
	io.Reader
	closer io.Closer
}

func (d *decodedReader) Close() error { return d.closer.Close() }
