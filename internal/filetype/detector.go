// Package filetype sniffs document bytes so that only PDFs reach the renderer.
package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

const pdfMIME = "application/pdf"

// Info describes detected content.
type Info struct {
	MIMEType    string
	Extension   string
	PDF         bool
	Description string
}

// Detector identifies content by magic bytes, not by name.
type Detector struct{}

func New() *Detector {
	return &Detector{}
}

// DetectBytes inspects the leading bytes of b. name is only used to name the
// content in messages.
func (d *Detector) DetectBytes(name string, b []byte) *Info {
	mtype := mimetype.Detect(b)
	info := &Info{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		PDF:       mtype.Is(pdfMIME),
	}
	info.Description = describe(info.MIMEType, name)
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("name", name).Msg("detected file type")
	return info
}

// DetectFile inspects a file on disk.
func (d *Detector) DetectFile(path string) (*Info, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := &Info{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
		PDF:       mtype.Is(pdfMIME),
	}
	info.Description = describe(info.MIMEType, path)
	return info, nil
}

func describe(mimeType, name string) string {
	switch {
	case mimeType == pdfMIME:
		return "PDF document"
	case strings.HasPrefix(mimeType, "image/"):
		return "Image file"
	case strings.HasPrefix(mimeType, "text/html"):
		return "HTML document"
	case strings.HasPrefix(mimeType, "text/"):
		return "Plain text file"
	case mimeType == "application/zip":
		// Office formats are zip containers; the name is the best hint left
		switch strings.ToLower(filepath.Ext(name)) {
		case ".docx", ".xlsx", ".pptx", ".odt", ".ods", ".odp":
			return "Office document"
		}
		return "ZIP archive"
	case strings.Contains(mimeType, "officedocument"), strings.Contains(mimeType, "opendocument"),
		mimeType == "application/msword", mimeType == "application/x-ole-storage":
		return "Office document"
	}
	return fmt.Sprintf("Unsupported file type: %s", mimeType)
}
