package timeline

import (
	"sort"
	"strings"
	"unicode"

	"github.com/yungbote/lecturelens-backend/internal/domain"
)

// Options tune the section-boundary heuristics. Both gaps are measured
// between the anchor timestamps of consecutive timeline items.
type Options struct {
	// MaxSectionGapSeconds starts a new section when consecutive items are
	// further apart than this.
	MaxSectionGapSeconds float64
	// PauseBoundarySeconds starts a new section on a long speech pause: the
	// silence between one segment's end and the next segment's start.
	PauseBoundarySeconds float64
	// HeadingMaxChars truncates derived headings at a word boundary.
	HeadingMaxChars int
}

func (o Options) withDefaults() Options {
	if o.MaxSectionGapSeconds <= 0 {
		o.MaxSectionGapSeconds = 30.0
	}
	if o.PauseBoundarySeconds <= 0 {
		o.PauseBoundarySeconds = 4.0
	}
	if o.HeadingMaxChars <= 0 {
		o.HeadingMaxChars = 64
	}
	return o
}

type item struct {
	anchor  float64
	segment *domain.TranscriptSegment
	frame   *domain.Keyframe
}

// Merge interleaves transcript segments and annotated keyframes into ordered
// sections. Pure function of its inputs: no I/O, no model calls, identical
// output on re-run. Every input item lands in exactly one section.
func Merge(segments []domain.TranscriptSegment, keyframes []domain.Keyframe, opts Options) []domain.TimelineSection {
	opts = opts.withDefaults()

	items := make([]item, 0, len(segments)+len(keyframes))
	for i := range segments {
		items = append(items, item{anchor: segments[i].StartSeconds, segment: &segments[i]})
	}
	for i := range keyframes {
		items = append(items, item{anchor: keyframes[i].TimestampSeconds, frame: &keyframes[i]})
	}
	if len(items) == 0 {
		return []domain.TimelineSection{}
	}

	// Merge-join over both sequences: a single sort by anchor, stable so a
	// segment and a keyframe at the same instant keep input order.
	sort.SliceStable(items, func(i, j int) bool { return items[i].anchor < items[j].anchor })

	sections := []domain.TimelineSection{}
	var cur *domain.TimelineSection
	var prev *item

	for i := range items {
		it := &items[i]
		if cur == nil || boundaryBetween(prev, it, opts) {
			sections = append(sections, domain.TimelineSection{
				AnchorTimestamp: it.anchor,
				TextBlocks:      []domain.TranscriptSegment{},
				Images:          []domain.Keyframe{},
			})
			cur = &sections[len(sections)-1]
		}
		if it.segment != nil {
			cur.TextBlocks = append(cur.TextBlocks, *it.segment)
		} else {
			cur.Images = append(cur.Images, *it.frame)
		}
		prev = it
	}

	for i := range sections {
		sections[i].Heading = deriveHeading(sections[i], i, opts.HeadingMaxChars)
	}
	return sections
}

func boundaryBetween(prev, next *item, opts Options) bool {
	if prev == nil {
		return false
	}
	if next.anchor-prev.anchor > opts.MaxSectionGapSeconds {
		return true
	}
	// Topic-boundary heuristic: a long pause after recognized speech.
	if prev.segment != nil && next.segment != nil &&
		next.segment.StartSeconds-prev.segment.EndSeconds > opts.PauseBoundarySeconds {
		return true
	}
	return false
}

// deriveHeading truncates the section's first non-empty transcript text at a
// word boundary. Deterministic: never a model call. Sections with no speech
// fall back to a positional heading.
func deriveHeading(sec domain.TimelineSection, index int, maxChars int) string {
	for _, tb := range sec.TextBlocks {
		txt := strings.TrimSpace(tb.Text)
		if txt == "" {
			continue
		}
		return truncateAtWord(txt, maxChars)
	}
	return positionalHeading(index)
}

func truncateAtWord(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	cut := maxChars
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = maxChars
	}
	return strings.TrimRight(string(runes[:cut]), " ,.;:") + "…"
}

func positionalHeading(index int) string {
	switch index {
	case 0:
		return "Introduction"
	default:
		return "Untitled segment"
	}
}
