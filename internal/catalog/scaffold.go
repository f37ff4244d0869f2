package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

// ErrMissingTemplate is returned when the catalog-generator template is
// absent or empty.
var ErrMissingTemplate = errors.New("catalog: missing action template")

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// TemplateData is what the action template can reference.
type TemplateData struct {
	Name        string
	Description string
	File        string
}

// Scaffold renders tmpl into dir/<prefix><name><suffix> and returns the
// descriptor of the new action. Existing files are never overwritten.
func Scaffold(tmpl []byte, dir string, opts Options, name, description string) (Descriptor, error) {
	if len(bytes.TrimSpace(tmpl)) == 0 {
		return Descriptor{}, ErrMissingTemplate
	}
	name = normalizeName(name)
	if !validName.MatchString(name) {
		return Descriptor{}, fmt.Errorf("catalog: invalid action name %q (use lower-case letters, digits, - and _)", name)
	}
	for _, reserved := range opts.Reserved {
		if normalizeName(reserved) == name {
			return Descriptor{}, fmt.Errorf("catalog: %s is a reserved name", name)
		}
	}
	suffix := ""
	if len(opts.Suffixes) > 0 {
		suffix = opts.Suffixes[0]
	}
	description = strings.TrimSpace(description)
	if description == "" {
		description = FallbackDescription
	}
	fileName := opts.Prefix + name + suffix
	path := filepath.Join(dir, fileName)

	parsed, err := template.New(fileName).Option("missingkey=error").Parse(string(tmpl))
	if err != nil {
		return Descriptor{}, fmt.Errorf("catalog: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := parsed.Execute(&buf, TemplateData{Name: name, Description: description, File: fileName}); err != nil {
		return Descriptor{}, fmt.Errorf("catalog: render template: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Descriptor{}, fmt.Errorf("catalog: ensure %s: %w", dir, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o755)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Descriptor{}, fmt.Errorf("catalog: %s already exists", path)
		}
		return Descriptor{}, fmt.Errorf("catalog: create %s: %w", path, err)
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		return Descriptor{}, fmt.Errorf("catalog: write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return Descriptor{}, fmt.Errorf("catalog: close %s: %w", path, err)
	}
	desc, err := describe(path, opts.DescriptionTag)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Name: name, Description: desc, File: fileName, Ref: refFor(path, suffix)}, nil
}
