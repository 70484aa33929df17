package stack

import (
	"errors"
	"fmt"
	"strings"
)

// LocatorSeparator joins the catalog id and version id of a version locator.
const LocatorSeparator = "."

// ErrMalformedLocator is returned for locators that do not split into exactly
// two non-empty parts.
var ErrMalformedLocator = errors.New("malformed version locator")

// Locator is a parsed "<catalogID>.<versionID>" reference.
type Locator struct {
	CatalogID string
	VersionID string
}

func (l Locator) String() string {
	return l.CatalogID + LocatorSeparator + l.VersionID
}

// ParseLocator splits a version locator into its catalog and version ids.
func ParseLocator(value string) (Locator, error) {
	parts := strings.Split(value, LocatorSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Locator{}, fmt.Errorf("%w: %q", ErrMalformedLocator, value)
	}
	return Locator{CatalogID: parts[0], VersionID: parts[1]}, nil
}
