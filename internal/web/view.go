package web

import (
	"github.com/teemow/drivemanager/internal/classify"
	"github.com/teemow/drivemanager/internal/drive"
	"github.com/teemow/drivemanager/internal/session"
)

// ModifiedLayout formats modification dates in the listing.
const ModifiedLayout = "Jan 2, 2006"

// FileView is one listing row as the views render it.
type FileView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	MimeType     string            `json:"mimeType"`
	Category     classify.Category `json:"category"`
	Label        string            `json:"label"`
	Icon         string            `json:"icon"`
	Tone         string            `json:"tone"`
	Modified     string            `json:"modified"`
	ModifiedTime string            `json:"modifiedTime"`
	Size         string            `json:"size"`
	Pending      bool              `json:"pending"`
}

// NoticeView is the message banner.
type NoticeView struct {
	Text string `json:"text"`
	Seq  uint64 `json:"seq"`
}

// PageData is everything the page template needs.
type PageData struct {
	State     string
	Session   session.Session
	Notice    *NoticeView
	Files     []FileView
	Uploading bool
}

func newFileView(r drive.FileRecord, pending bool) FileView {
	info := classify.Classify(r.MimeType)
	v := FileView{
		ID:       r.ID,
		Name:     r.Name,
		MimeType: r.MimeType,
		Category: info.Category,
		Label:    info.Label,
		Icon:     info.Category.Icon(),
		Tone:     info.Tone(),
		Size:     classify.FormatSize(r.Size),
		Pending:  pending,
	}
	if !r.ModifiedTime.IsZero() {
		v.Modified = r.ModifiedTime.Local().Format(ModifiedLayout)
		v.ModifiedTime = r.ModifiedTime.UTC().Format("2006-01-02T15:04:05Z")
	}
	return v
}

func (s *Server) fileViews() []FileView {
	records := s.files.Files()
	views := make([]FileView, 0, len(records))
	for _, r := range records {
		views = append(views, newFileView(r, s.files.Pending(r.ID)))
	}
	return views
}

func (s *Server) noticeView() *NoticeView {
	n, ok := s.notices.Current()
	if !ok {
		return nil
	}
	return &NoticeView{Text: n.Text, Seq: n.Seq}
}

func (s *Server) pageData() PageData {
	data := PageData{
		State:   s.session.State().String(),
		Session: s.session.Session(),
		Notice:  s.noticeView(),
	}
	if data.Session.SignedIn {
		data.Files = s.fileViews()
		data.Uploading = s.files.Uploading()
	}
	return data
}
