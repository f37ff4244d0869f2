package locator

import (
	"context"
	"fmt"
	"path"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"gopkg.in/yaml.v3"
)

// capabilityFunc is the function a .go capability must define.
const capabilityFunc = "Capability"

// evalTimeout bounds a single .go capability evaluation.
const evalTimeout = 2 * time.Second

// Capability is the data a shared capability file declares.
type Capability struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Requires    []string `yaml:"requires,omitempty"`
	// Packages maps a command to its package name per backend id, for
	// commands whose package is named differently.
	Packages map[string]map[string]string `yaml:"packages,omitempty"`

	// Source is the capability name it was loaded from.
	Source string `yaml:"-"`
}

// Load resolves name and decodes it as a capability. YAML files are
// decoded directly. Go files are interpreted without any standard library
// symbols, so they can compute values but cannot touch files, the network
// or processes.
func (l *Locator) Load(ctx context.Context, name string) (Capability, error) {
	data, err := l.Resolve(ctx, name)
	if err != nil {
		return Capability{}, err
	}
	return ParseCapability(ctx, name, data)
}

// ParseCapability decodes data according to the extension of name.
func ParseCapability(ctx context.Context, name string, data []byte) (Capability, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Capability{}, fmt.Errorf("locator: capability %s is empty", name)
	}
	var (
		capability Capability
		err        error
	)
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".yaml", ".yml":
		capability, err = decodeCapabilityYAML(data)
	case ".go":
		capability, err = evalCapabilityGo(ctx, data)
	default:
		return Capability{}, fmt.Errorf("locator: capability %s: unsupported format %q", name, ext)
	}
	if err != nil {
		return Capability{}, fmt.Errorf("locator: capability %s: %w", name, err)
	}
	capability.Source = name
	if capability.Name == "" {
		capability.Name = strings.TrimSuffix(path.Base(name), path.Ext(name))
	}
	return capability, nil
}

func decodeCapabilityYAML(data []byte) (Capability, error) {
	var capability Capability
	if err := yaml.Unmarshal(data, &capability); err != nil {
		return Capability{}, fmt.Errorf("parse: %w", err)
	}
	capability.normalize()
	if err := capability.validate(); err != nil {
		return Capability{}, err
	}
	return capability, nil
}

func evalCapabilityGo(ctx context.Context, code []byte) (capability Capability, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("interpret: panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	// No i.Use(stdlib.Symbols): imports of any package fail to resolve.
	i := interp.New(interp.Options{})
	if _, err := i.EvalWithContext(ctx, string(code)); err != nil {
		return Capability{}, fmt.Errorf("interpret: %w", err)
	}
	result, err := i.EvalWithContext(ctx, capabilityFunc+"()")
	if err != nil {
		return Capability{}, fmt.Errorf("must define %s() map[string]any: %w", capabilityFunc, err)
	}
	raw, err := capabilityMap(result)
	if err != nil {
		return Capability{}, err
	}
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return Capability{}, fmt.Errorf("encode: %w", err)
	}
	return decodeCapabilityYAML(payload)
}

func capabilityMap(value reflect.Value) (map[string]any, error) {
	if !value.IsValid() {
		return nil, fmt.Errorf("%s() returned nothing", capabilityFunc)
	}
	if m, ok := value.Interface().(map[string]any); ok {
		return m, nil
	}
	if value.Kind() != reflect.Map || value.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("%s() must return map[string]any, got %s", capabilityFunc, value.Type())
	}
	out := make(map[string]any, value.Len())
	iter := value.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}

func (c *Capability) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	seen := make(map[string]struct{}, len(c.Requires))
	requires := make([]string, 0, len(c.Requires))
	for _, name := range c.Requires {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		requires = append(requires, name)
	}
	sort.Strings(requires)
	c.Requires = requires
}

func (c *Capability) validate() error {
	for _, name := range c.Requires {
		if strings.ContainsAny(name, " \t/") {
			return fmt.Errorf("requires entry %q is not a command name", name)
		}
	}
	for command, byBackend := range c.Packages {
		if strings.TrimSpace(command) == "" {
			return fmt.Errorf("packages has an empty command key")
		}
		for backend, pkg := range byBackend {
			if strings.TrimSpace(backend) == "" || strings.TrimSpace(pkg) == "" {
				return fmt.Errorf("packages.%s has an empty backend or package", command)
			}
		}
	}
	return nil
}
