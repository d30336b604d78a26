package core

import (
	"encoding/json"
	"strings"
)

// Ledger entries arrive with an opaque key/value metadata bag. Rather
// than probing raw keys all over the grouping pass, the bag is decoded
// exactly once into one of these variants and classification switches
// over the result.
type (
	EntryMetadata interface {
		metadataVariant()
	}

	// ContributionMetadata identifies a structured contribution entry.
	ContributionMetadata struct {
		ContributionID string
		Deadline       *Date // absent when unset or unparseable
	}

	// ManualInflowMetadata flags a hand-recorded inflow of funds.
	ManualInflowMetadata struct{}

	// LegacyImportMetadata marks a row pulled in from an external
	// historical import. These rows are excluded from contribution
	// grouping; they only appear in raw totals.
	LegacyImportMetadata struct {
		ImportSource string
	}

	// UnknownMetadata is everything else, including bags that failed to
	// parse. Entries carrying it still group through the fallback key.
	UnknownMetadata struct{}
)

func (ContributionMetadata) metadataVariant() {}
func (ManualInflowMetadata) metadataVariant() {}
func (LegacyImportMetadata) metadataVariant() {}
func (UnknownMetadata) metadataVariant()      {}

// Sources that mass-imported historical rows without contribution ids.
var legacyImportPrefixes = []string{"gdrive_", "gsheet_", "legacy_"}

func isLegacyImportSource(source string) bool {
	for _, p := range legacyImportPrefixes {
		if strings.HasPrefix(source, p) {
			return true
		}
	}
	return false
}

// DecodeEntryMetadata resolves a raw metadata JSON document into its
// typed variant. Malformed input degrades to UnknownMetadata; one bad
// row must never abort the whole stream.
func DecodeEntryMetadata(raw []byte) EntryMetadata {
	if len(raw) == 0 {
		return UnknownMetadata{}
	}
	var bag struct {
		ManualInflow   bool   `json:"manual_inflow"`
		ContributionID string `json:"contribution_id"`
		Deadline       string `json:"deadline"`
		ImportSource   string `json:"import_source"`
	}
	if err := json.Unmarshal(raw, &bag); err != nil {
		return UnknownMetadata{}
	}
	if bag.ManualInflow {
		return ManualInflowMetadata{}
	}
	if id := strings.TrimSpace(bag.ContributionID); id != "" {
		md := ContributionMetadata{ContributionID: id}
		if bag.Deadline != "" {
			if d, err := ParseDate(bag.Deadline); err == nil {
				md.Deadline = &d
			}
		}
		return md
	}
	if isLegacyImportSource(bag.ImportSource) {
		return LegacyImportMetadata{ImportSource: bag.ImportSource}
	}
	return UnknownMetadata{}
}
