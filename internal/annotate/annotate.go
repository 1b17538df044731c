// Package annotate overlays detection evidence onto analyzed text. Given the
// original text and the categorized flagged substrings from the analysis API,
// it produces markup where every whole-word occurrence of a flagged substring
// is wrapped in a category-tagged, tooltip-bearing span.
package annotate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/detective-ai/gateway/internal/models"
)

// Category describes one class of flagged substring. Tag becomes part of the
// wrapper's CSS class, Tooltip is the hover message shown for every match.
type Category struct {
	Tag     string
	Tooltip string
}

// Categories in fixed matching order. Earlier categories win when spans from
// different categories overlap.
var categories = []Category{
	{Tag: "keyword", Tooltip: "Common AI keyword"},
	{Tag: "pattern", Tooltip: "Suspicious AI pattern"},
	{Tag: "transition", Tooltip: "Overused transition word"},
	{Tag: "jargon", Tooltip: "Corporate jargon"},
	{Tag: "buzzword", Tooltip: "Marketing buzzword"},
	{Tag: "human", Tooltip: "Human writing indicator"},
}

// span is one accepted match against the original text.
type span struct {
	start, end int
	category   Category
}

// Annotate wraps every whole-word, case-insensitive occurrence of a flagged
// substring in a tooltip-bearing span. Matching runs against the original
// text only: overlapping matches are resolved up front (first category in
// fixed order wins, then input order within a category) and rendering happens
// in a single pass, so inserted markup can never be re-matched. The matched
// text keeps its original casing. With nil details the text is returned
// unchanged.
func Annotate(text string, details *models.AnalysisDetails) string {
	if text == "" || details.Empty() {
		return text
	}

	lists := [][]string{
		details.FoundKeywords,
		details.FoundPatterns,
		details.FoundTransitions,
		details.FoundJargon,
		details.FoundBuzzwords,
		details.FoundHumanIndicators,
	}

	var accepted []span
	for i, list := range lists {
		for _, flagged := range list {
			if strings.TrimSpace(flagged) == "" {
				continue
			}
			re, err := wordPattern(flagged)
			if err != nil {
				continue
			}
			for _, loc := range re.FindAllStringIndex(text, -1) {
				candidate := span{start: loc[0], end: loc[1], category: categories[i]}
				if !overlapsAny(candidate, accepted) {
					accepted = append(accepted, candidate)
				}
			}
		}
	}

	if len(accepted) == 0 {
		return text
	}

	sort.Slice(accepted, func(i, j int) bool {
		return accepted[i].start < accepted[j].start
	})

	var b strings.Builder
	b.Grow(len(text) + len(accepted)*64)
	cursor := 0
	for _, s := range accepted {
		b.WriteString(text[cursor:s.start])
		b.WriteString(fmt.Sprintf(`<span class="hl hl-%s" data-tooltip="%s">%s</span>`,
			s.category.Tag, s.category.Tooltip, text[s.start:s.end]))
		cursor = s.end
	}
	b.WriteString(text[cursor:])

	return b.String()
}

// Highlighted reports whether markup already carries annotation wrappers.
// History items persisted before annotation ran lack them and get
// re-annotated lazily on first view.
func Highlighted(markup string) bool {
	return strings.Contains(markup, `<span class="hl hl-`)
}

// StripEllipsis removes the trailing ellipsis a truncated history preview
// carries, so re-annotation sees only original text.
func StripEllipsis(preview string) string {
	preview = strings.TrimSuffix(preview, "...")
	return strings.TrimSuffix(preview, "…")
}

// wordPattern builds a case-insensitive whole-word matcher for a literal
// flagged substring. Regex metacharacters in the substring are escaped so
// phrases like "state-of-the-art" match literally instead of erroring.
func wordPattern(flagged string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(flagged) + `\b`)
}

// overlapsAny reports whether the candidate span intersects an already
// accepted one. Accepted spans were claimed by an earlier category or an
// earlier list entry, so they keep the territory.
func overlapsAny(c span, accepted []span) bool {
	for _, s := range accepted {
		if c.start < s.end && s.start < c.end {
			return true
		}
	}
	return false
}
