package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		expected Info
	}{
		{"png image", "image/png", Info{CategoryImage, "PNG"}},
		{"svg image keeps suffix", "image/svg+xml", Info{CategoryImage, "SVG+XML"}},
		{"bare image prefix", "image/", Info{CategoryImage, ""}},
		{"pdf", "application/pdf", Info{CategoryDocument, "PDF"}},
		{"google doc", "application/vnd.google-apps.document", Info{CategoryDocument, "Document"}},
		{"word", "application/msword", Info{CategoryDocument, "Document"}},
		{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Info{CategoryDocument, "Document"}},
		{"google sheet", "application/vnd.google-apps.spreadsheet", Info{CategorySpreadsheet, "Spreadsheet"}},
		{"excel", "application/vnd.ms-excel", Info{CategorySpreadsheet, "Spreadsheet"}},
		{"google slides", "application/vnd.google-apps.presentation", Info{CategoryPresentation, "Presentation"}},
		{"powerpoint", "application/vnd.ms-powerpoint", Info{CategoryPresentation, "Presentation"}},
		{"video", "video/mp4", Info{CategoryVideo, "Video"}},
		{"audio", "audio/mpeg", Info{CategoryAudio, "Audio"}},
		{"javascript", "text/javascript", Info{CategoryCode, "Code"}},
		{"typescript", "application/typescript", Info{CategoryCode, "Code"}},
		{"json", "application/json", Info{CategoryCode, "Code"}},
		{"html", "text/html", Info{CategoryCode, "Code"}},
		{"css", "text/css", Info{CategoryCode, "Code"}},
		{"xml", "application/xml", Info{CategoryCode, "Code"}},
		{"zip", "application/zip", Info{CategoryArchive, "Archive"}},
		{"rar", "application/vnd.rar", Info{CategoryArchive, "Archive"}},
		{"tar", "application/x-tar", Info{CategoryArchive, "Archive"}},
		{"7z", "application/x-7z-compressed", Info{CategoryArchive, "Archive"}},
		{"folder", FolderMimeType, Info{CategoryFolder, "Folder"}},
		{"plain text", "text/plain", Info{CategoryGeneric, "PLAIN"}},
		{"octet stream", "application/octet-stream", Info{CategoryGeneric, "OCTET-STREAM"}},
		{"empty", "", Info{CategoryGeneric, "File"}},
		{"no slash", "garbage", Info{CategoryGeneric, "File"}},
		{"trailing slash", "text/", Info{CategoryGeneric, "File"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.mimeType))
		})
	}
}

func TestClassify_FirstMatchWins(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		expected Category
	}{
		// document (rule 3) precedes json (rule 8)
		{"document over code", "application/vnd.google-apps.document+json", CategoryDocument},
		// image prefix (rule 1) precedes xml (rule 8)
		{"image over code", "image/svg+xml", CategoryImage},
		// spreadsheet (rule 4) precedes xml (rule 8)
		{"spreadsheet over code", "application/x-spreadsheet+xml", CategorySpreadsheet},
		// presentation (rule 5) precedes zip (rule 9)
		{"presentation over archive", "application/presentation+zip", CategoryPresentation},
		// video prefix (rule 6) precedes tar (rule 9)
		{"video over archive", "video/x-tar-stream", CategoryVideo},
		// code (rule 8) precedes archive (rule 9)
		{"code over archive", "application/json+zip", CategoryCode},
		// folder sentinel is only reached when nothing earlier matches
		{"folder", "application/vnd.google-apps.folder", CategoryFolder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.mimeType).Category)
		})
	}
}

func TestCategoryIcon(t *testing.T) {
	assert.Equal(t, "folder", CategoryFolder.Icon())
	assert.Equal(t, "image", CategoryImage.Icon())
	assert.Equal(t, "file", CategoryGeneric.Icon())
	assert.Equal(t, "file", Category("unknown").Icon())
}

func TestInfoTone(t *testing.T) {
	assert.Equal(t, "tone-red", Classify("application/pdf").Tone())
	assert.Equal(t, "tone-indigo", Classify("application/msword").Tone())
	assert.Equal(t, "tone-muted", Classify("text/plain").Tone())
}
