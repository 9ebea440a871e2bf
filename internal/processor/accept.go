package processor

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/msageha/dropzone/internal/model"
)

// Pattern is a regular expression that can be read from YAML.
type Pattern struct {
	*regexp.Regexp
}

// MustPattern compiles expr or panics.
func MustPattern(expr string) Pattern {
	return Pattern{regexp.MustCompile(expr)}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Pattern) UnmarshalYAML(node *yaml.Node) error {
	re, err := regexp.Compile(node.Value)
	if err != nil {
		return fmt.Errorf("pattern %q (line %d): %w", node.Value, node.Line, err)
	}
	p.Regexp = re
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (p Pattern) MarshalYAML() (any, error) {
	if p.Regexp == nil {
		return "", nil
	}
	return p.String(), nil
}

// ItemPredicate is processor code deciding whether to accept an item.
type ItemPredicate func(model.Item) bool

// FileRule accepts files by extension, basename, path pattern or predicate.
// A rule without extensions, basenames or patterns accepts every file that
// passes the predicate.
type FileRule struct {
	Extensions []string      `yaml:"extensions,omitempty"`
	Basenames  []string      `yaml:"basenames,omitempty"`
	Patterns   []Pattern     `yaml:"patterns,omitempty"`
	Predicate  ItemPredicate `yaml:"-"`
}

func (r *FileRule) accepts(it model.Item) (bool, error) {
	if len(r.Extensions)+len(r.Basenames)+len(r.Patterns) > 0 {
		ext := it.Extension()
		hit := lo.ContainsBy(r.Extensions, func(e string) bool {
			return strings.EqualFold(strings.TrimPrefix(e, "."), ext)
		}) || lo.Contains(r.Basenames, it.Basename()) || matchAny(r.Patterns, it.Path)
		if !hit {
			return false, nil
		}
	}
	return runPredicate(r.Predicate, it)
}

// DirectoryRule accepts directories by basename, path pattern or predicate.
type DirectoryRule struct {
	Basenames []string      `yaml:"basenames,omitempty"`
	Patterns  []Pattern     `yaml:"patterns,omitempty"`
	Predicate ItemPredicate `yaml:"-"`
}

func (r *DirectoryRule) accepts(it model.Item) (bool, error) {
	if len(r.Basenames)+len(r.Patterns) > 0 {
		if !lo.Contains(r.Basenames, it.Basename()) && !matchAny(r.Patterns, it.Path) {
			return false, nil
		}
	}
	return runPredicate(r.Predicate, it)
}

// BlobRule accepts blobs by MIME type ("image/*" wildcards allowed) or
// predicate.
type BlobRule struct {
	MIMEs     []string      `yaml:"mimes,omitempty"`
	Predicate ItemPredicate `yaml:"-"`
}

func (r *BlobRule) accepts(it model.Item) (bool, error) {
	if len(r.MIMEs) > 0 && !lo.ContainsBy(r.MIMEs, func(m string) bool { return mimeMatches(m, it.MIME) }) {
		return false, nil
	}
	return runPredicate(r.Predicate, it)
}

// StringRule accepts strings by type, text pattern or predicate.
type StringRule struct {
	Types     []string      `yaml:"types,omitempty"`
	Patterns  []Pattern     `yaml:"patterns,omitempty"`
	Predicate ItemPredicate `yaml:"-"`
}

func (r *StringRule) accepts(it model.Item) (bool, error) {
	if len(r.Types) > 0 && !lo.ContainsBy(r.Types, func(t string) bool { return mimeMatches(t, it.Type) }) {
		return false, nil
	}
	if len(r.Patterns) > 0 && !matchAny(r.Patterns, it.Text) {
		return false, nil
	}
	return runPredicate(r.Predicate, it)
}

// URLRule accepts urls by "host/path-prefix" entries, url pattern or
// predicate.
type URLRule struct {
	Prefixes  []string      `yaml:"prefixes,omitempty"`
	Patterns  []Pattern     `yaml:"patterns,omitempty"`
	Predicate ItemPredicate `yaml:"-"`
}

func (r *URLRule) accepts(it model.Item) (bool, error) {
	if len(r.Prefixes)+len(r.Patterns) > 0 {
		if !r.prefixMatch(it) && !matchAny(r.Patterns, it.URL) {
			return false, nil
		}
	}
	return runPredicate(r.Predicate, it)
}

func (r *URLRule) prefixMatch(it model.Item) bool {
	if len(r.Prefixes) == 0 {
		return false
	}
	u, err := it.ParsedURL()
	if err != nil || u.Host == "" {
		return false
	}
	target := strings.ToLower(u.Host) + path.Clean("/"+u.Path)
	return lo.ContainsBy(r.Prefixes, func(p string) bool {
		p = strings.ToLower(strings.TrimSuffix(p, "/"))
		return target == p || strings.HasPrefix(target, p+"/")
	})
}

// Accept is the declarative set of inputs a processor is interested in.
// A nil rule means the kind is rejected.
type Accept struct {
	Files       *FileRule      `yaml:"files,omitempty"`
	Directories *DirectoryRule `yaml:"directories,omitempty"`
	Blobs       *BlobRule      `yaml:"blobs,omitempty"`
	Strings     *StringRule    `yaml:"strings,omitempty"`
	URLs        *URLRule       `yaml:"urls,omitempty"`
}

// WantsFiles reports whether plain files are accepted, which is what makes
// directory expansion meaningful.
func (a Accept) WantsFiles() bool {
	return a.Files != nil
}

// Accepts tests it against the rule of its kind. A failing predicate
// rejects the item.
func (a Accept) Accepts(it model.Item) bool {
	ok, err := a.Check(it)
	return ok && err == nil
}

// Check is Accepts that also reports a predicate that panicked.
func (a Accept) Check(it model.Item) (bool, error) {
	switch it.Kind {
	case model.KindFile:
		if a.Files != nil {
			return a.Files.accepts(it)
		}
	case model.KindDirectory:
		if a.Directories != nil {
			return a.Directories.accepts(it)
		}
	case model.KindBlob:
		if a.Blobs != nil {
			return a.Blobs.accepts(it)
		}
	case model.KindString:
		if a.Strings != nil {
			return a.Strings.accepts(it)
		}
	case model.KindURL:
		if a.URLs != nil {
			return a.URLs.accepts(it)
		}
	}
	return false, nil
}

// Kinds lists the accepted kinds, for display.
func (a Accept) Kinds() []model.ItemKind {
	var out []model.ItemKind
	if a.Files != nil {
		out = append(out, model.KindFile)
	}
	if a.Directories != nil {
		out = append(out, model.KindDirectory)
	}
	if a.Blobs != nil {
		out = append(out, model.KindBlob)
	}
	if a.Strings != nil {
		out = append(out, model.KindString)
	}
	if a.URLs != nil {
		out = append(out, model.KindURL)
	}
	return out
}

func matchAny(patterns []Pattern, s string) bool {
	return lo.ContainsBy(patterns, func(p Pattern) bool {
		return p.Regexp != nil && p.MatchString(s)
	})
}

func mimeMatches(pattern, mime string) bool {
	pattern, mime = strings.ToLower(pattern), strings.ToLower(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(mime, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == mime
}

func runPredicate(fn ItemPredicate, it model.Item) (ok bool, err error) {
	if fn == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("accept predicate panicked on %s: %v", it, r)
		}
	}()
	return fn(it), nil
}
