package export

import (
	"bytes"
	"fmt"
	stdimage "image"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"aina-notebook/internal/model"
	"aina-notebook/pkg/logger"

	"github.com/gabriel-vasile/mimetype"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/image"
	"github.com/johnfercher/maroto/v2/pkg/components/page"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/extension"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontfamily"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const (
	maxFilenameLength = 50
	defaultFilename   = "presentacio"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-z0-9_\-\s]`)
	whitespaceRun       = regexp.MustCompile(`\s+`)

	titleColor   = &props.Color{Red: 25, Green: 42, Blue: 65}
	contentColor = &props.Color{Red: 60, Green: 72, Blue: 90}
)

// SanitizeFilename turns a topic into a file name stem. Accented letters are
// dropped along with every other character outside [a-z0-9_- ].
func SanitizeFilename(name string) string {
	s := unsafeFilenameChars.ReplaceAllString(strings.ToLower(name), "")
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	if len(s) > maxFilenameLength {
		s = s[:maxFilenameLength]
	}
	if s == "" {
		return defaultFilename
	}
	return s
}

// Filename is the download name for p.
func Filename(p *model.Presentation) string {
	return SanitizeFilename(p.Topic) + ".pdf"
}

// PDFExporter renders a presentation as a landscape A4 document, one page per slide.
type PDFExporter struct{}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

func (e *PDFExporter) Export(p *model.Presentation) ([]byte, error) {
	if p == nil || len(p.Slides) == 0 {
		return nil, fmt.Errorf("presentation has no slides")
	}

	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithOrientation(orientation.Horizontal).
		WithLeftMargin(12).
		WithTopMargin(10).
		WithRightMargin(12).
		WithDefaultFont(&props.Font{
			Family: fontfamily.Helvetica,
			Size:   12,
		}).
		WithTitle(p.Topic, true).
		Build()

	m := maroto.New(cfg)
	for i, slide := range p.Slides {
		m.AddPages(e.slidePage(slide, i))
	}

	document, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return document.GetBytes(), nil
}

func (e *PDFExporter) slidePage(slide model.Slide, index int) core.Page {
	pg := page.New()

	if slide.HasImage() {
		if img, ok := slideImage(slide, index); ok {
			pg.Add(row.New(130).Add(col.New(12).Add(img)))
		}
	}

	pg.Add(
		row.New(14).Add(
			col.New(12).Add(
				text.New(slide.Title, props.Text{
					Size:  20,
					Style: fontstyle.Bold,
					Align: align.Center,
					Top:   4,
					Color: titleColor,
				}),
			),
		),
		row.New(30).Add(
			col.New(12).Add(
				text.New(slide.Content, props.Text{
					Size:  12,
					Align: align.Center,
					Top:   2,
					Color: contentColor,
				}),
			),
		),
	)
	return pg
}

// slideImage decodes the slide's data URL. Undecodable images are skipped so
// the page still carries its text.
func slideImage(slide model.Slide, index int) (core.Component, bool) {
	data, _, err := slide.ImageBytes()
	if err != nil {
		logger.Warnf("Skipping image of slide %d: %v", index, err)
		return nil, false
	}

	ext, ok := imageExtension(data)
	if !ok {
		logger.Warnf("Skipping image of slide %d: unsupported type %s", index, mimetype.Detect(data).String())
		return nil, false
	}
	if _, _, err := stdimage.DecodeConfig(bytes.NewReader(data)); err != nil {
		logger.Warnf("Skipping image of slide %d: %v", index, err)
		return nil, false
	}

	return image.NewFromBytes(data, ext, props.Rect{
		Center:  true,
		Percent: 100,
	}), true
}

func imageExtension(data []byte) (extension.Type, bool) {
	switch mimetype.Detect(data).Extension() {
	case ".png":
		return extension.Png, true
	case ".jpg", ".jpeg":
		return extension.Jpg, true
	default:
		return "", false
	}
}
