package core

import "testing"

func metadataKind(md EntryMetadata) string {
	switch md.(type) {
	case ContributionMetadata:
		return "contribution"
	case ManualInflowMetadata:
		return "manual_inflow"
	case LegacyImportMetadata:
		return "legacy_import"
	default:
		return "unknown"
	}
}

func TestDecodeEntryMetadata(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"manual inflow", `{"manual_inflow": true}`, "manual_inflow"},
		{"manual inflow wins over id", `{"manual_inflow": true, "contribution_id": "c-1"}`, "manual_inflow"},
		{"contribution", `{"contribution_id": "c-1"}`, "contribution"},
		{"legacy import", `{"import_source": "gdrive_2022"}`, "legacy_import"},
		{"contribution id beats import source", `{"contribution_id": "c-2", "import_source": "gdrive_2022"}`, "contribution"},
		{"unrecognized import source", `{"import_source": "typed_by_hand"}`, "unknown"},
		{"empty bag", `{}`, "unknown"},
		{"empty document", ``, "unknown"},
		{"malformed json degrades", `{"contribution_id": `, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeEntryMetadata([]byte(tc.raw))
			if kind := metadataKind(got); kind != tc.want {
				t.Fatalf("got %s (%#v), want %s", kind, got, tc.want)
			}
		})
	}
}

func TestDecodeEntryMetadataContributionID(t *testing.T) {
	md, ok := DecodeEntryMetadata([]byte(`{"contribution_id": " c-7 "}`)).(ContributionMetadata)
	if !ok {
		t.Fatal("expected ContributionMetadata")
	}
	if md.ContributionID != "c-7" {
		t.Fatalf("id should be trimmed, got %q", md.ContributionID)
	}
}

func TestDecodeEntryMetadataDeadline(t *testing.T) {
	md, ok := DecodeEntryMetadata([]byte(`{"contribution_id": "c-1", "deadline": "2025-10-15"}`)).(ContributionMetadata)
	if !ok {
		t.Fatal("expected ContributionMetadata")
	}
	if md.Deadline == nil || md.Deadline.String() != "2025-10-15" {
		t.Fatalf("deadline: got %v", md.Deadline)
	}

	// An unparseable deadline is treated as absent, not an error.
	md, ok = DecodeEntryMetadata([]byte(`{"contribution_id": "c-1", "deadline": "soonish"}`)).(ContributionMetadata)
	if !ok {
		t.Fatal("expected ContributionMetadata")
	}
	if md.Deadline != nil {
		t.Fatalf("malformed deadline should be dropped, got %v", md.Deadline)
	}
}
