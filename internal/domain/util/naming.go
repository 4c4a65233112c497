package util

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
)

var entityPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// LocalFilename returns the file name a remote path is saved under.
// Catalog paths that proxy the archive through a "url" query parameter
// (".../get_tape_file?blocking=true&url=/PhytozomeV10/.../x.cds.fa.gz")
// resolve to that parameter's base name.
func LocalFilename(remotePath string) string {
	p := remotePath
	if i := strings.IndexByte(p, '#'); i >= 0 {
		p = p[:i]
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		if q, err := url.ParseQuery(p[i+1:]); err == nil && q.Get("url") != "" {
			p = q.Get("url")
		} else {
			p = p[:i]
		}
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// EntityIdentifier derives the species identifier from a local file name:
// the text before the first '.', then the token before the first '_'.
// "Athaliana_167_TAIR10.cds.fa.gz" yields "Athaliana".
func EntityIdentifier(localFilename string) (string, error) {
	stem := localFilename
	if i := strings.IndexByte(stem, '.'); i >= 0 {
		stem = stem[:i]
	}
	token := stem
	if i := strings.IndexByte(token, '_'); i >= 0 {
		token = token[:i]
	}

	if !entityPattern.MatchString(token) {
		return "", domain.NewDomainError(
			domain.ErrMalformedName.Code,
			fmt.Sprintf("cannot derive an entity identifier from %q", localFilename),
			nil,
			false,
		)
	}
	return token, nil
}

