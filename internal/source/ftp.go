package source

import (
	"context"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ftpFileUnavailable is the reply code for a missing file.
const ftpFileUnavailable = 550

// FTPOptions configures the FTP source.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPSource downloads datasets over anonymous or credentialed FTP.
type FTPSource struct {
	opts FTPOptions
}

// NewFTPSource creates an FTPSource with opts, filling defaults.
func NewFTPSource(opts FTPOptions) *FTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPSource{opts: opts}
}

type ftpTarget struct {
	host string
	path string
	user string
	pass string
}

// parseFTPURL splits an ftp:// URL into host:port, path and credentials.
func parseFTPURL(rawURL string) (ftpTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ftpTarget{}, eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return ftpTarget{}, eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return ftpTarget{}, eris.New("ftp: empty path in url")
	}

	t := ftpTarget{host: u.Host, path: u.Path, user: "anonymous", pass: "anonymous@"}
	if _, _, splitErr := net.SplitHostPort(t.host); splitErr != nil {
		t.host = net.JoinHostPort(t.host, "21")
	}
	if u.User != nil {
		t.user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			t.pass = p
		}
	}
	return t, nil
}

// ftpConnReader closes the transfer and the control connection together.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) {
	return r.resp.Read(p)
}

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close response")
	}
	return eris.Wrap(quitErr, "ftp: quit")
}

// Download retrieves the file at ftpURL. A 550 reply yields
// ErrSourceNotFound. The caller must close the returned reader.
func (s *FTPSource) Download(ctx context.Context, ftpURL string) (io.ReadCloser, error) {
	target, err := parseFTPURL(ftpURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", target.host), zap.String("path", target.path))

	conn, err := ftp.Dial(target.host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp: dial")
	}
	if err := conn.Login(target.user, target.pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}

	resp, err := conn.Retr(target.path)
	if err != nil {
		_ = conn.Quit()
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code == ftpFileUnavailable {
			return nil, eris.Wrapf(ErrSourceNotFound, "ftp %s", ftpURL)
		}
		return nil, eris.Wrap(err, "ftp: retrieve")
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}
