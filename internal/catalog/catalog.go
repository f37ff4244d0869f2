package catalog

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/linux-setup/internal/system"
)

// FallbackDescription is shown when an action has no metadata header.
const FallbackDescription = "No description"

// maxHeaderLines bounds how far into a file the description tag is searched.
const maxHeaderLines = 200

// Options describes the file naming convention of action units.
type Options struct {
	Prefix         string
	Suffixes       []string
	DescriptionTag string
	// Reserved names are hidden from Discover but reachable through
	// LookupReserved.
	Reserved []string
}

// DefaultOptions matches installers/setup_<name>.sh with a "# Description:" header.
func DefaultOptions() Options {
	return Options{
		Prefix:         "setup_",
		Suffixes:       []string{".sh"},
		DescriptionTag: "# Description:",
		Reserved:       []string{"gum", "new_installer"},
	}
}

// ExecutableRef is the invokable half of a descriptor.
type ExecutableRef struct {
	Path        string
	Interpreter string
}

// Command builds the subprocess that runs the action with args forwarded verbatim.
func (ref ExecutableRef) Command(args ...string) system.Command {
	if ref.Interpreter == "" {
		return system.Command{Name: ref.Path, Args: append([]string(nil), args...), Dir: filepath.Dir(ref.Path)}
	}
	full := append([]string{ref.Path}, args...)
	return system.Command{Name: ref.Interpreter, Args: full, Dir: filepath.Dir(ref.Path)}
}

// Descriptor is one discovered action. Values are immutable after Discover.
type Descriptor struct {
	Name        string
	Description string
	File        string
	Ref         ExecutableRef
}

// FilterValue is the text searched by Filter and the menu.
func (d Descriptor) FilterValue() string {
	return d.Name + " " + d.Description
}

// DuplicateError reports two files that normalize to the same action name.
type DuplicateError struct {
	Name   string
	First  string
	Second string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("catalog: duplicate action %s (%s and %s)", e.Name, e.First, e.Second)
}

// Discover scans dir for action units and returns them sorted by file name.
// A missing directory is an empty catalog. Name collisions fail the whole
// scan; no partial catalog is returned.
func Discover(dir string, opts Options) ([]Descriptor, error) {
	all, err := scan(dir, opts)
	if err != nil {
		return nil, err
	}
	reserved := make(map[string]struct{}, len(opts.Reserved))
	for _, name := range opts.Reserved {
		reserved[normalizeName(name)] = struct{}{}
	}
	out := make([]Descriptor, 0, len(all))
	for _, desc := range all {
		if _, skip := reserved[desc.Name]; skip {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

// LookupReserved returns a reserved action (for instance the presentation
// tool's own installer) without exposing it as an ordinary menu entry.
func LookupReserved(dir string, opts Options, name string) (Descriptor, bool, error) {
	all, err := scan(dir, opts)
	if err != nil {
		return Descriptor{}, false, err
	}
	target := normalizeName(name)
	for _, desc := range all {
		if desc.Name == target {
			return desc, true, nil
		}
	}
	return Descriptor{}, false, nil
}

// Lookup finds name in a discovered list.
func Lookup(list []Descriptor, name string) (Descriptor, bool) {
	target := normalizeName(name)
	for _, desc := range list {
		if desc.Name == target {
			return desc, true
		}
	}
	return Descriptor{}, false
}

// Filter keeps descriptors whose name or description contains term,
// case-insensitively. An empty term keeps everything.
func Filter(list []Descriptor, term string) []Descriptor {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return list
	}
	var out []Descriptor
	for _, desc := range list {
		if strings.Contains(strings.ToLower(desc.Name), needle) ||
			strings.Contains(strings.ToLower(desc.Description), needle) {
			out = append(out, desc)
		}
	}
	return out
}

func scan(dir string, opts Options) ([]Descriptor, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(trimmed)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", trimmed, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	seen := make(map[string]string, len(names))
	var descs []Descriptor
	for _, fileName := range names {
		name, suffix, ok := opts.match(fileName)
		if !ok {
			continue
		}
		path := filepath.Join(trimmed, fileName)
		if existing, dup := seen[name]; dup {
			return nil, &DuplicateError{Name: name, First: existing, Second: path}
		}
		seen[name] = path
		desc, err := describe(path, opts.DescriptionTag)
		if err != nil {
			return nil, err
		}
		descs = append(descs, Descriptor{
			Name:        name,
			Description: desc,
			File:        fileName,
			Ref:         refFor(path, suffix),
		})
	}
	return descs, nil
}

func (opts Options) match(fileName string) (string, string, bool) {
	if opts.Prefix != "" && !strings.HasPrefix(fileName, opts.Prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fileName, opts.Prefix)
	if len(opts.Suffixes) == 0 {
		name := normalizeName(rest)
		return name, "", name != ""
	}
	for _, suffix := range opts.Suffixes {
		if suffix == "" || !strings.HasSuffix(rest, suffix) {
			continue
		}
		name := normalizeName(strings.TrimSuffix(rest, suffix))
		if name == "" {
			return "", "", false
		}
		return name, suffix, true
	}
	return "", "", false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func describe(path, tag string) (string, error) {
	if tag == "" {
		return FallbackDescription, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	for line := 0; line < maxHeaderLines && scanner.Scan(); line++ {
		text := scanner.Text()
		if strings.HasPrefix(text, tag) {
			if desc := strings.TrimSpace(strings.TrimPrefix(text, tag)); desc != "" {
				return desc, nil
			}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return FallbackDescription, nil
}

func refFor(path, suffix string) ExecutableRef {
	switch suffix {
	case ".sh", ".bash":
		return ExecutableRef{Path: path, Interpreter: "bash"}
	}
	return ExecutableRef{Path: path}
}
