// Package classify maps Drive content types to display categories and formats
// byte sizes for the file table.
package classify

import (
	"strings"
)

// FolderMimeType is the content type Drive uses for folders.
const FolderMimeType = "application/vnd.google-apps.folder"

// Category is the icon family a file is drawn with.
type Category string

// Categories, in the order their rules are checked.
const (
	CategoryImage        Category = "image"
	CategoryDocument     Category = "document"
	CategorySpreadsheet  Category = "spreadsheet"
	CategoryPresentation Category = "presentation"
	CategoryVideo        Category = "video"
	CategoryAudio        Category = "audio"
	CategoryCode         Category = "code"
	CategoryArchive      Category = "archive"
	CategoryFolder       Category = "folder"
	CategoryGeneric      Category = "generic"
)

// Info is the classification result for one content type.
type Info struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
}

type rule struct {
	match    func(mimeType string) bool
	category Category
	// label is used when labelFn is nil
	label   string
	labelFn func(mimeType string) string
}

// rules are checked in order and the first match wins. A type such as
// "application/vnd.google-apps.document+json" is a Document, not Code.
var rules = []rule{
	{match: hasPrefix("image/"), category: CategoryImage, labelFn: upperSubtype},
	{match: equals("application/pdf"), category: CategoryDocument, label: "PDF"},
	{match: containsAny("document", "msword"), category: CategoryDocument, label: "Document"},
	{match: containsAny("spreadsheet", "excel"), category: CategorySpreadsheet, label: "Spreadsheet"},
	{match: containsAny("presentation", "powerpoint"), category: CategoryPresentation, label: "Presentation"},
	{match: hasPrefix("video/"), category: CategoryVideo, label: "Video"},
	{match: hasPrefix("audio/"), category: CategoryAudio, label: "Audio"},
	{match: containsAny("javascript", "typescript", "json", "html", "css", "xml"), category: CategoryCode, label: "Code"},
	{match: containsAny("zip", "rar", "tar", "7z"), category: CategoryArchive, label: "Archive"},
	{match: equals(FolderMimeType), category: CategoryFolder, label: "Folder"},
}

// Classify returns the display category and label for mimeType. Empty or
// malformed input falls through to the generic category.
func Classify(mimeType string) Info {
	for _, r := range rules {
		if !r.match(mimeType) {
			continue
		}
		label := r.label
		if r.labelFn != nil {
			label = r.labelFn(mimeType)
		}
		return Info{Category: r.category, Label: label}
	}

	label := upperSubtype(mimeType)
	if label == "" {
		label = "File"
	}
	return Info{Category: CategoryGeneric, Label: label}
}

// upperSubtype returns the segment after the first "/" (up to the next "/")
// in upper case, or "" when there is none.
func upperSubtype(mimeType string) string {
	parts := strings.Split(mimeType, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.ToUpper(parts[1])
}

func hasPrefix(prefix string) func(string) bool {
	return func(s string) bool { return strings.HasPrefix(s, prefix) }
}

func equals(want string) func(string) bool {
	return func(s string) bool { return s == want }
}

func containsAny(needles ...string) func(string) bool {
	return func(s string) bool {
		for _, n := range needles {
			if strings.Contains(s, n) {
				return true
			}
		}
		return false
	}
}
