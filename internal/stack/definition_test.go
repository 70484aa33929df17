package stack

import (
	"errors"
	"strings"
	"testing"
)

const sampleDefinition = `{"zeta": 1, "members": [
  {"version_locator": "cat.v1", "name": "alpha", "inputs": [{"name": "region", "value": "us-south"}]},
  {"name": "beta", "version_locator": "cat.v2"}
], "alpha": {"nested": true}}`

func TestParse_ExtractsMembers(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(def.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(def.Members))
	}
	if def.Members[0].Name != "alpha" || def.Members[0].VersionLocator != "cat.v1" {
		t.Fatalf("unexpected first member: %+v", def.Members[0])
	}
	if def.Members[1].Index != 1 {
		t.Fatalf("unexpected index: %d", def.Members[1].Index)
	}
	if def.Changed() {
		t.Fatalf("fresh definition should not be changed")
	}
}

func TestParse_MissingLocatorIsNotFatal(t *testing.T) {
	def, err := Parse([]byte(`{"members": [{"name": "alpha"}]}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if def.Members[0].HasLocator() {
		t.Fatalf("expected member without locator")
	}
}

func TestParse_NonStringLocatorIsNotFatal(t *testing.T) {
	def, err := Parse([]byte(`{"members": [
  {"name": "a", "version_locator": null},
  {"name": "b", "version_locator": 123},
  {"name": "", "version_locator": "cat.v1"}
]}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(def.Members) != 3 {
		t.Fatalf("expected 3 members, got %d", len(def.Members))
	}
	for _, member := range def.Members[:2] {
		if member.HasLocator() {
			t.Fatalf("member %q: expected no usable locator", member.Name)
		}
		if !errors.Is(member.LocatorError(), ErrLocatorNotString) {
			t.Fatalf("member %q: expected ErrLocatorNotString, got %v", member.Name, member.LocatorError())
		}
	}
	if !def.Members[2].HasLocator() || def.Members[2].VersionLocator != "cat.v1" {
		t.Fatalf("expected third member locator to be read, got %+v", def.Members[2])
	}

	out, err := def.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !strings.Contains(string(out), `"version_locator": null`) || !strings.Contains(string(out), `"version_locator": 123`) {
		t.Fatalf("expected malformed locators to be kept as-is, got:\n%s", out)
	}
}

func TestParse_MissingLocatorError(t *testing.T) {
	def, err := Parse([]byte(`{"members": [{"name": "alpha"}]}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if !errors.Is(def.Members[0].LocatorError(), ErrMissingLocator) {
		t.Fatalf("expected ErrMissingLocator, got %v", def.Members[0].LocatorError())
	}
}

func TestEncode_DoesNotEscapeHTML(t *testing.T) {
	def, err := Parse([]byte(`{"members":[{"name":"a","version_locator":"c.v"}]}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	def.Members[0].VersionLocator = "cat<&>.v2"

	out, err := def.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !strings.Contains(string(out), `"version_locator": "cat<&>.v2"`) {
		t.Fatalf("expected locator without HTML escapes, got:\n%s", out)
	}

	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("re-Parse error: %v", err)
	}
	if got := reparsed.Members[0].VersionLocator; got != "cat<&>.v2" {
		t.Fatalf("round trip changed locator: %q", got)
	}
}

func TestParse_RejectsInvalidDocuments(t *testing.T) {
	tests := map[string]string{
		"not json":        `{nope`,
		"missing members": `{"stack": []}`,
		"members object":  `{"members": {}}`,
		"member no name":  `{"members": [{"version_locator": "a.b"}]}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestEncode_PreservesOrderAndUnknownFields(t *testing.T) {
	def, err := Parse([]byte(sampleDefinition))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	def.Members[1].VersionLocator = "cat.v3"

	if !def.Changed() {
		t.Fatalf("expected definition to be changed")
	}

	out, err := def.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	want := `{
  "zeta": 1,
  "members": [
    {
      "version_locator": "cat.v1",
      "name": "alpha",
      "inputs": [
        {
          "name": "region",
          "value": "us-south"
        }
      ]
    },
    {
      "name": "beta",
      "version_locator": "cat.v3"
    }
  ],
  "alpha": {
    "nested": true
  }
}
`
	if string(out) != want {
		t.Fatalf("unexpected encoding:\n%s\nwant:\n%s", out, want)
	}
}

func TestEncode_UnchangedIsReindented(t *testing.T) {
	def, err := Parse([]byte(`{"members":[{"name":"a","version_locator":"c.v"}]}`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	out, err := def.Encode()
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !strings.HasSuffix(string(out), "}\n") {
		t.Fatalf("expected trailing newline, got %q", out)
	}
	if !strings.Contains(string(out), "\n  \"members\": [") {
		t.Fatalf("expected two-space indentation, got %q", out)
	}
}
