package source

import (
	"archive/zip"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// idsMappingMember is the code table file shipped alongside the data in
// the published archive; it is never picked as the default data member.
const idsMappingMember = "ids_mapping.csv"

// openZIPMember opens one member of the archive for reading. An empty
// member selects the first CSV entry that is not a code mapping table.
// A non-empty member matches either the full entry name or its base name.
func openZIPMember(zipPath, member string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "zip: open archive: %v", err)
	}

	f := selectZIPMember(r.File, member)
	if f == nil {
		_ = r.Close()
		if member != "" {
			return nil, eris.Wrapf(ErrParse, "zip: member %q not found in archive", member)
		}
		return nil, eris.Wrap(ErrParse, "zip: archive has no csv member")
	}

	rc, err := f.Open()
	if err != nil {
		_ = r.Close()
		return nil, eris.Wrapf(ErrParse, "zip: open member %s: %v", f.Name, err)
	}
	return &zipMemberReader{ReadCloser: rc, archive: r}, nil
}

func selectZIPMember(files []*zip.File, member string) *zip.File {
	for _, f := range files {
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		if member != "" {
			if f.Name == member || path.Base(f.Name) == member {
				return f
			}
			continue
		}
		base := strings.ToLower(path.Base(f.Name))
		if strings.HasSuffix(base, ".csv") && base != idsMappingMember {
			return f
		}
	}
	return nil
}

// zipMemberReader closes the member and its archive together.
type zipMemberReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (z *zipMemberReader) Close() error {
	err := z.ReadCloser.Close()
	if cerr := z.archive.Close(); err == nil {
		err = cerr
	}
	return eris.Wrap(err, "zip: close member")
}
