// Package locator loads locator catalogues and resolves their entries into
// backend-specific queries.
package locator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Format is the document format of a catalogue source.
type Format int

const (
	FormatJSON Format = iota + 1
	FormatYAML
)

// FormatFor picks the format from a file extension. Unknown extensions are JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Entry is one named locator.
type Entry struct {
	Name  string
	Kind  core.QueryKind
	Value string
}

// rawEntry is the on-disk shape of an entry.
type rawEntry struct {
	LocatorType *string `json:"locator_type" yaml:"locator_type"`
	Locator     *string `json:"locator" yaml:"locator"`
}

// Catalogue is an immutable name to entry mapping.
type Catalogue struct {
	source  string
	entries map[string]Entry
}

// Load reads a whole catalogue file. JSON and YAML are accepted.
func Load(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided locator file
	if err != nil {
		return nil, core.ErrConfig.WithMessagef("reading locator file %s", path).WithCause(err)
	}
	return Parse(data, FormatFor(path), path)
}

// LoadFor loads a catalogue and validates every entry against the backend.
func LoadFor(path string, backend core.BackendKind) (*Catalogue, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(backend); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse builds a catalogue from an in-memory document. source names it in errors.
func Parse(data []byte, format Format, source string) (*Catalogue, error) {
	raw, err := decode(data, format)
	if err != nil {
		return nil, core.ErrConfig.WithMessagef("%s: malformed locator document", source).WithCause(err)
	}

	c := &Catalogue{source: source, entries: make(map[string]Entry, len(raw))}
	var problems []entryProblem
	for name, r := range raw {
		entry, err := convert(name, r)
		if err != nil {
			problems = append(problems, entryProblem{name: name, err: err})
			continue
		}
		c.entries[name] = entry
	}
	if len(problems) > 0 {
		return nil, problemsError(source, problems)
	}
	return c, nil
}

func decode(data []byte, format Format) (map[string]rawEntry, error) {
	raw := map[string]rawEntry{}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		if dec.More() {
			return nil, errors.New("trailing data after locator object")
		}
	}
	return raw, nil
}

func convert(name string, r rawEntry) (Entry, error) {
	if strings.TrimSpace(name) == "" {
		return Entry{}, errors.New("empty entry name")
	}
	if r.LocatorType == nil {
		return Entry{}, errors.New("missing locator_type")
	}
	if r.Locator == nil {
		return Entry{}, errors.New("missing locator")
	}
	kind, err := core.ParseQueryKind(*r.LocatorType)
	if err != nil {
		return Entry{}, err
	}
	if strings.TrimSpace(*r.Locator) == "" {
		return Entry{}, errors.New("empty locator")
	}
	return Entry{Name: name, Kind: kind, Value: *r.Locator}, nil
}

type entryProblem struct {
	name string
	err  error
}

func problemsError(source string, problems []entryProblem) error {
	sort.Slice(problems, func(i, j int) bool { return problems[i].name < problems[j].name })

	names := make([]string, len(problems))
	var causes error
	for i, p := range problems {
		names[i] = p.name
		causes = multierr.Append(causes, fmt.Errorf("entry %q: %w", p.name, p.err))
	}

	e := core.ErrConfig.
		WithMessagef("%s: invalid locator entries", source).
		WithDetails(map[string]interface{}{"entries": names}).
		WithCause(causes)
	if len(problems) == 1 {
		e = e.WithLocator(problems[0].name)
	}
	return e
}

// Get returns the entry for name.
func (c *Catalogue) Get(name string) (Entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, core.ErrNotFound.WithLocator(name).
			WithDetails(map[string]interface{}{"source": c.source})
	}
	return e, nil
}

// Resolve looks up name and resolves it for backend.
func (c *Catalogue) Resolve(name string, backend core.BackendKind) (core.Query, error) {
	e, err := c.Get(name)
	if err != nil {
		return core.Query{}, err
	}
	return Resolve(e, backend)
}

// Names returns all entry names, sorted.
func (c *Catalogue) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of entries.
func (c *Catalogue) Len() int {
	return len(c.entries)
}

// Source returns the path or label the catalogue was loaded from.
func (c *Catalogue) Source() string {
	return c.source
}

// Validate checks that every entry resolves on backend.
func (c *Catalogue) Validate(backend core.BackendKind) error {
	var problems []entryProblem
	for _, name := range c.Names() {
		if _, err := Resolve(c.entries[name], backend); err != nil {
			problems = append(problems, entryProblem{name: name, err: err})
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return problemsError(c.source, problems)
}
