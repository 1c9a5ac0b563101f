package render

import (
	"strings"

	"github.com/yungbote/lecturelens-backend/internal/domain"
)

type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockText
	BlockImage
)

type Block struct {
	Kind      BlockKind
	Text      string // heading or paragraph text
	ImagePath string
	Caption   string
	units     int
}

type Page struct {
	Blocks []Block
}

type Plan struct {
	Title string
	Pages []Page
}

type PlanOptions struct {
	// PageUnitBudget caps layout units per page; pagination follows content
	// volume, not a fixed sections-per-page rule.
	PageUnitBudget  int
	TextWrapColumns int
}

const (
	headingUnits = 3
	imageUnits   = 12
)

func (o PlanOptions) withDefaults() PlanOptions {
	if o.PageUnitBudget <= 0 {
		o.PageUnitBudget = 36
	}
	if o.TextWrapColumns <= 0 {
		o.TextWrapColumns = 90
	}
	return o
}

// BuildPlan lays sections out into pages. Pure and deterministic: the same
// sections always paginate identically. Heading text is carried through
// verbatim so the document reproduces section headings exactly.
func BuildPlan(title string, sections []domain.TimelineSection, opts PlanOptions) Plan {
	opts = opts.withDefaults()
	plan := Plan{Title: title}

	blocks := make([]Block, 0, len(sections)*3)
	for _, sec := range sections {
		blocks = append(blocks, Block{Kind: BlockHeading, Text: sec.Heading, units: headingUnits})

		var para strings.Builder
		for _, tb := range sec.TextBlocks {
			if para.Len() > 0 {
				para.WriteString(" ")
			}
			para.WriteString(strings.TrimSpace(tb.Text))
		}
		if para.Len() > 0 {
			txt := para.String()
			blocks = append(blocks, Block{
				Kind:  BlockText,
				Text:  txt,
				units: len(wrapText(txt, opts.TextWrapColumns)),
			})
		}
		for _, kf := range sec.Images {
			blocks = append(blocks, Block{
				Kind:      BlockImage,
				ImagePath: kf.ImagePath,
				Caption:   kf.Description,
				units:     imageUnits + len(wrapText(kf.Description, opts.TextWrapColumns)),
			})
		}
	}

	var cur Page
	used := 0
	flush := func() {
		if len(cur.Blocks) > 0 {
			plan.Pages = append(plan.Pages, cur)
			cur = Page{}
			used = 0
		}
	}
	for i := 0; i < len(blocks); i++ {
		b := blocks[i]
		need := b.units
		// Keep a heading attached to the block that follows it.
		if b.Kind == BlockHeading && i+1 < len(blocks) {
			need += blocks[i+1].units
		}
		if used > 0 && used+need > opts.PageUnitBudget {
			flush()
		}
		cur.Blocks = append(cur.Blocks, b)
		used += b.units
	}
	flush()
	return plan
}

// Headings returns every heading in page order; the document round-trips
// these strings unchanged.
func (p Plan) Headings() []string {
	out := []string{}
	for _, pg := range p.Pages {
		for _, b := range pg.Blocks {
			if b.Kind == BlockHeading {
				out = append(out, b.Text)
			}
		}
	}
	return out
}

func wrapText(s string, cols int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	words := strings.Fields(s)
	lines := []string{}
	var line strings.Builder
	for _, w := range words {
		if line.Len() > 0 && line.Len()+1+len(w) > cols {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteString(" ")
		}
		line.WriteString(w)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
