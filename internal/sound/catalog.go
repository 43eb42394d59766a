// Package sound builds the clip catalog from the sound directory.
//
// A [Catalog] is an immutable snapshot of one directory scan. It is rebuilt
// on every request through [Scanner.Scan] and shared read-only afterwards.
package sound

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// AllowedExtensions lists the file extensions recognised as clips, without
// the leading dot.
var AllowedExtensions = []string{"m4a", "wav", "mp3"}

// Descriptor is one playable clip on disk.
type Descriptor struct {
	// Name is the catalog key: the file name without its extension.
	Name      string
	Extension string
	Path      string
}

// IOError reports a sound directory that exists but could not be read.
type IOError struct {
	Dir string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sound: read directory %q: %v", e.Dir, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Catalog maps clip names to descriptors. The zero value is an empty catalog.
type Catalog struct {
	names  []string
	byName map[string]Descriptor
}

// Names returns every clip name in scan order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Lookup returns the descriptor registered under name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	if c == nil {
		return Descriptor{}, false
	}
	d, ok := c.byName[name]
	return d, ok
}

// Len returns the number of clips.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// NewCatalog builds a catalog from descriptors in the given order, with the
// same duplicate handling as [Scan].
func NewCatalog(descs ...Descriptor) *Catalog {
	c := &Catalog{}
	for _, d := range descs {
		c.add(d)
	}
	return c
}

// add inserts d. A later descriptor with the same name replaces the earlier
// one but keeps its position.
func (c *Catalog) add(d Descriptor) {
	if c.byName == nil {
		c.byName = make(map[string]Descriptor)
	}
	if _, exists := c.byName[d.Name]; !exists {
		c.names = append(c.names, d.Name)
	}
	c.byName[d.Name] = d
}

// Option configures [Scan] and [NewScanner].
type Option func(*options)

type options struct {
	caseInsensitive bool
}

// WithCaseInsensitiveExtensions accepts allowed extensions in any case,
// e.g. "AIRHORN.MP3". The catalog key is still the name without extension.
func WithCaseInsensitiveExtensions() Option {
	return func(o *options) { o.caseInsensitive = true }
}

// Scan lists the direct entries of dir and returns a catalog of the files
// whose extension is allowed. A missing directory yields an empty catalog;
// any other read failure returns an [*IOError].
func Scan(dir string, opts ...Option) (*Catalog, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Catalog{}, nil
		}
		return nil, &IOError{Dir: dir, Err: err}
	}

	cat := &Catalog{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext, ok := clipExtension(e.Name(), o.caseInsensitive)
		if !ok {
			continue
		}
		cat.add(Descriptor{
			Name:      strings.TrimSuffix(e.Name(), "."+ext),
			Extension: ext,
			Path:      filepath.Join(dir, e.Name()),
		})
	}
	return cat, nil
}

// clipExtension returns the extension of name as written on disk when it is
// an allowed clip extension.
func clipExtension(name string, caseInsensitive bool) (string, bool) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" || ext == strings.TrimPrefix(name, ".") {
		return "", false
	}
	for _, allowed := range AllowedExtensions {
		if ext == allowed || (caseInsensitive && strings.EqualFold(ext, allowed)) {
			return ext, true
		}
	}
	return "", false
}
