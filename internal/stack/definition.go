// Package stack loads and saves stack definition files.
//
// A definition is a JSON object with a "members" array. Only each member's
// name and version_locator are interpreted; every other field, and the key
// order of the whole document, is carried through untouched on save.
package stack

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	membersKey        = "members"
	nameKey           = "name"
	versionLocatorKey = "version_locator"
	schemaID          = "https://github.com/nholik/stack-updater/stack.schema.json"
)

//go:embed stack.schema.json
var schemaJSON []byte

var (
	// ErrMissingLocator marks a member without a version_locator field.
	ErrMissingLocator = errors.New("field is missing")
	// ErrLocatorNotString marks a version_locator holding a non-string value.
	ErrLocatorNotString = errors.New("value is not a string")
)

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// Member is one entry of a stack definition.
type Member struct {
	Index          int
	Name           string
	VersionLocator string

	original   string
	hasLocator bool
	locatorErr error
}

// Changed reports whether the locator differs from the loaded value.
func (m *Member) Changed() bool {
	return m.VersionLocator != m.original
}

// OriginalLocator returns the locator as loaded from disk.
func (m *Member) OriginalLocator() string {
	return m.original
}

// HasLocator reports whether the member carried a string version_locator.
func (m *Member) HasLocator() bool {
	return m.hasLocator
}

// LocatorError explains why HasLocator is false: the field is missing or
// holds something other than a string.
func (m *Member) LocatorError() error {
	if m.hasLocator {
		return nil
	}
	if m.locatorErr != nil {
		return m.locatorErr
	}
	return ErrMissingLocator
}

// Definition is a parsed stack definition backed by its raw JSON document.
type Definition struct {
	Members []*Member

	raw []byte
}

// Parse validates data against the stack schema and extracts its members.
func Parse(data []byte) (*Definition, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	def := &Definition{raw: bytes.Clone(data)}
	var parseErr error
	index := 0
	_, err := jsonparser.ArrayEach(def.raw, func(value []byte, _ jsonparser.ValueType, _ int, err error) {
		if parseErr != nil {
			return
		}
		if err != nil {
			parseErr = err
			return
		}
		member, err := parseMember(index, value)
		if err != nil {
			parseErr = err
			return
		}
		def.Members = append(def.Members, member)
		index++
	}, membersKey)
	if err != nil {
		return nil, fmt.Errorf("read members: %w", err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("read members: %w", parseErr)
	}
	return def, nil
}

func parseMember(index int, value []byte) (*Member, error) {
	name, err := jsonparser.GetString(value, nameKey)
	if err != nil {
		return nil, fmt.Errorf("member %d: %s: %w", index, nameKey, err)
	}
	member := &Member{Index: index, Name: name}

	raw, dataType, _, err := jsonparser.Get(value, versionLocatorKey)
	switch {
	case errors.Is(err, jsonparser.KeyPathNotFoundError):
		return member, nil
	case err != nil:
		return nil, fmt.Errorf("member %q: %s: %w", name, versionLocatorKey, err)
	case dataType != jsonparser.String:
		member.locatorErr = fmt.Errorf("%w: got %s", ErrLocatorNotString, dataType)
		return member, nil
	}

	locator, err := jsonparser.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("member %q: %s: %w", name, versionLocatorKey, err)
	}
	member.VersionLocator = locator
	member.original = locator
	member.hasLocator = true
	return member, nil
}

// Changed reports whether any member locator was modified.
func (d *Definition) Changed() bool {
	for _, member := range d.Members {
		if member.Changed() {
			return true
		}
	}
	return false
}

// Encode renders the document with changed locators applied, indented with
// two spaces and terminated by a newline.
func (d *Definition) Encode() ([]byte, error) {
	doc := bytes.Clone(d.raw)
	for _, member := range d.Members {
		if !member.Changed() {
			continue
		}
		value, err := encodeString(member.VersionLocator)
		if err != nil {
			return nil, err
		}
		doc, err = jsonparser.Set(doc, value, membersKey, "["+strconv.Itoa(member.Index)+"]", versionLocatorKey)
		if err != nil {
			return nil, fmt.Errorf("set locator for %q: %w", member.Name, err)
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return nil, fmt.Errorf("compact stack definition: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", "  "); err != nil {
		return nil, fmt.Errorf("indent stack definition: %w", err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// encodeString quotes s as a JSON string without HTML escaping, so an edited
// locator reads the same as one left untouched.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func validate(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode stack definition: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("invalid stack definition: %w", err)
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode stack schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaID, doc); err != nil {
			schemaErr = fmt.Errorf("add stack schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaID)
	})
	return compiledSchema, schemaErr
}
