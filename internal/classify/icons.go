package classify

// Icon returns the glyph name the views draw for c.
func (c Category) Icon() string {
	switch c {
	case CategoryImage:
		return "image"
	case CategoryDocument:
		return "file-text"
	case CategorySpreadsheet:
		return "file-spreadsheet"
	case CategoryPresentation:
		return "presentation"
	case CategoryVideo:
		return "file-video"
	case CategoryAudio:
		return "file-audio"
	case CategoryCode:
		return "file-code"
	case CategoryArchive:
		return "file-archive"
	case CategoryFolder:
		return "folder"
	default:
		return "file"
	}
}

// Tone returns the colour class for the icon.
func (i Info) Tone() string {
	switch i.Category {
	case CategoryImage:
		return "tone-blue"
	case CategoryDocument:
		if i.Label == "PDF" {
			return "tone-red"
		}
		return "tone-indigo"
	case CategorySpreadsheet:
		return "tone-green"
	case CategoryPresentation:
		return "tone-orange"
	case CategoryVideo:
		return "tone-purple"
	case CategoryAudio:
		return "tone-pink"
	case CategoryCode:
		return "tone-gray"
	case CategoryArchive:
		return "tone-yellow"
	case CategoryFolder:
		return "tone-indigo"
	default:
		return "tone-muted"
	}
}
