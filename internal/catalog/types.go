package catalog

// Offering is the catalog's description of a published version, as returned by
// the get-version call. Only the fields used for update resolution are decoded.
type Offering struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CatalogID string `json:"catalog_id,omitempty"`
	Kinds     []Kind `json:"kinds"`
}

// Kind groups versions of an offering by content format.
type Kind struct {
	ID         string    `json:"id,omitempty"`
	FormatKind string    `json:"format_kind"`
	TargetKind string    `json:"target_kind,omitempty"`
	Versions   []Version `json:"versions"`
}

// Version is a single published version inside a Kind.
type Version struct {
	ID             string  `json:"id,omitempty"`
	Version        string  `json:"version"`
	VersionLocator string  `json:"version_locator"`
	Flavor         *Flavor `json:"flavor,omitempty"`
}

// Flavor is a named packaging variant of an offering.
type Flavor struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
}

// VersionUpdate is a candidate upgrade target reported by the catalog.
type VersionUpdate struct {
	VersionLocator string            `json:"version_locator"`
	Version        string            `json:"version"`
	Flavor         *Flavor           `json:"flavor,omitempty"`
	State          *UpdateState      `json:"state,omitempty"`
	CanUpdate      bool              `json:"can_update"`
	Messages       map[string]string `json:"messages,omitempty"`
}

// UpdateState is the lifecycle state of a candidate version.
type UpdateState struct {
	Current          string `json:"current"`
	CurrentEntered   string `json:"current_entered"`
	Pending          string `json:"pending,omitempty"`
	PendingRequested string `json:"pending_requested,omitempty"`
	Previous         string `json:"previous,omitempty"`
}

// Lifecycle states reported in UpdateState.Current.
const (
	StateConsumable = "consumable"
	StateDeprecated = "deprecated"
	StateWorking    = "working"
)

// FlavorName returns the flavor name or "" when the flavor is absent.
func (u VersionUpdate) FlavorName() string {
	if u.Flavor == nil {
		return ""
	}
	return u.Flavor.Name
}
