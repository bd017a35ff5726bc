// Package tilesink collects composed tile-workspace outputs into a single
// sqlite-backed archive, keyed by workspace name, instead of loose files per
// workspace directory.
package tilesink

// Metadata describes the archive as a whole.
type Metadata struct {
	Name        string // Human-readable archive identifier
	Format      string // Entry data type (png, jpg, webp)
	Attribution string // Attribution text
	Description string // Human-readable description
	Type        string // "baselayer" or "overlay"
	Version     string // Version string
}

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := make(map[string]string)

	if m.Name != "" {
		result["name"] = m.Name
	}
	if m.Format != "" {
		result["format"] = m.Format
	}
	if m.Attribution != "" {
		result["attribution"] = m.Attribution
	}
	if m.Description != "" {
		result["description"] = m.Description
	}
	if m.Type != "" {
		result["type"] = m.Type
	}
	if m.Version != "" {
		result["version"] = m.Version
	}

	return result
}
