package render

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/gomutex/godocx/docx"

	"github.com/yungbote/lecturelens-backend/internal/domain"
	"github.com/yungbote/lecturelens-backend/internal/platform/logger"
)

const (
	fontName    = "Calibri"
	bodySize    = 11
	headingSize = 14
	titleSize   = 18
	captionSize = 9
)

// Renderer serializes merged timeline sections into the downloadable notes
// document. Pure transformation of its input; failures are environment
// problems and therefore fatal, never retried.
type Renderer interface {
	Render(ctx context.Context, title string, sections []domain.TimelineSection, workDir string) (string, error)
}

type Options struct {
	PageUnitBudget   int
	TextWrapColumns  int
	ImageWidthInches float64
}

type docxRenderer struct {
	log  *logger.Logger
	opts Options
}

func NewDocxRenderer(log *logger.Logger, opts Options) Renderer {
	if opts.ImageWidthInches <= 0 {
		opts.ImageWidthInches = 5.5
	}
	return &docxRenderer{log: log.With("service", "DocumentRenderer"), opts: opts}
}

func (r *docxRenderer) Render(ctx context.Context, title string, sections []domain.TimelineSection, workDir string) (string, error) {
	if ctx.Err() != nil {
		return "", domain.NewCancelledError(ctx.Err())
	}

	plan := BuildPlan(title, sections, PlanOptions{
		PageUnitBudget:  r.opts.PageUnitBudget,
		TextWrapColumns: r.opts.TextWrapColumns,
	})

	doc, err := godocx.NewDocument()
	if err != nil {
		return "", domain.NewRenderError(fmt.Errorf("new document: %w", err))
	}

	addStyledRun(doc.AddParagraph(""), plan.Title, true, titleSize)

	coverPath, err := RenderCover(plan.Title, filepath.Join(workDir, "cover.png"))
	if err != nil {
		// The cover is decoration; a bad font must not sink the document.
		r.log.Warn("Cover render failed, continuing without it", "error", err)
	} else if coverPath != "" {
		if _, err := doc.AddPicture(coverPath, units.Inch(6.0), units.Inch(3.4)); err != nil {
			r.log.Warn("Cover embed failed, continuing without it", "error", err)
		}
	}

	for pageIdx, page := range plan.Pages {
		if pageIdx > 0 {
			doc.AddPageBreak()
		}
		for _, b := range page.Blocks {
			switch b.Kind {
			case BlockHeading:
				addStyledRun(doc.AddParagraph(""), b.Text, true, headingSize)
			case BlockText:
				addStyledRun(doc.AddParagraph(""), b.Text, false, bodySize)
			case BlockImage:
				w := units.Inch(r.opts.ImageWidthInches)
				h := units.Inch(r.opts.ImageWidthInches * 9.0 / 16.0)
				if _, err := doc.AddPicture(b.ImagePath, w, h); err != nil {
					return "", domain.NewRenderError(fmt.Errorf("embed image %s: %w", b.ImagePath, err))
				}
				if b.Caption != "" {
					addStyledRun(doc.AddParagraph(""), b.Caption, false, captionSize)
				}
			}
		}
	}

	outPath := filepath.Join(workDir, "notes.docx")
	if err := doc.SaveTo(outPath); err != nil {
		return "", domain.NewRenderError(fmt.Errorf("save document: %w", err))
	}
	r.log.Info("Document rendered", "pages", len(plan.Pages), "path", outPath)
	return outPath, nil
}

func addStyledRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(text).Font(fontName).Size(size).Color("000000")
	if bold {
		run.Bold(true)
	}
}
