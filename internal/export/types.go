// Package export renders a client's progress report as HTML, PDF or DOCX.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

func ParseFormat(raw string) (Format, error) {
	switch Format(raw) {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatDOCX:
		return FormatDOCX, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Report is everything the progress templates show about one client.
type Report struct {
	ClientID       string
	Name           string
	Company        string
	Description    string
	Completed      bool
	StartDate      time.Time
	CompletionDate time.Time
	NewUpdates     []ReportUpdate
	PastUpdates    []ReportUpdate
	GeneratedAt    time.Time
	// Interactive adds the mark-as-seen and comment forms of the public page.
	Interactive bool
}

func (r Report) Status() string {
	if r.Completed {
		return "Completed"
	}
	return "In progress"
}

type ReportUpdate struct {
	ID          string
	Index       int
	Title       string
	Description string
	Date        time.Time
	ImageURL    string
	Seen        bool
	Comments    []string
}

type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat     = errors.New("unsupported export format")
	ErrPDFDependencyMissing  = errors.New("export pdf dependency missing")
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
