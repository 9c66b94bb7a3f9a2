package gdrive

import "strings"

// workspacePrefix marks Google Workspace document types, which have no
// binary representation on Drive and must be exported to a standard format.
const workspacePrefix = "application/vnd.google-apps"

// ExportRule maps a Workspace document subtype to its fixed export target.
type ExportRule struct {
	MimeType string // content type requested from the export endpoint
	Suffix   string // filename suffix appended to the display name
}

// exportRules is the complete set of supported Workspace subtypes.  Extend
// only by adding rows; subtypes not listed here are rejected before any
// bytes are transferred.
var exportRules = map[string]ExportRule{
	"application/vnd.google-apps.document": {
		MimeType: "application/pdf",
		Suffix:   ".pdf",
	},
	"application/vnd.google-apps.spreadsheet": {
		MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Suffix:   ".xlsx",
	},
	"application/vnd.google-apps.presentation": {
		MimeType: "application/pdf",
		Suffix:   ".pdf",
	},
}

// IsWorkspaceDoc reports whether the mime type denotes a Google Workspace
// document (native Drive format requiring export).
func IsWorkspaceDoc(mimeType string) bool {
	return strings.HasPrefix(mimeType, workspacePrefix)
}

// ExportRuleFor returns the export rule for a Workspace subtype.  The
// second return value is false for unsupported subtypes (e.g. forms).
func ExportRuleFor(mimeType string) (ExportRule, bool) {
	rule, ok := exportRules[mimeType]
	return rule, ok
}
