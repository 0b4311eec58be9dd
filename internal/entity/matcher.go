package entity

import (
	"regexp"
	"sort"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/models"
)

// Segment is one piece of the reconstructed text: literal text when Entity is
// nil, a mention span otherwise. Mentions are ephemeral, recomputed per
// render, never persisted.
type Segment struct {
	Text   string
	Entity *models.EntityRef
}

type match struct {
	start, end int
	entity     models.EntityRef
}

// Highlight finds non-overlapping mentions of the given entities in text and
// returns a left-to-right reconstruction of literal spans interleaved with
// mention spans. Matching is whole-word and case-insensitive. Entities are
// searched longest name first so a longer name wins over a shorter one that
// is a substring of it; overlapping matches keep the earliest-starting,
// already-accepted one. Pure function of its inputs.
func Highlight(text string, entities []models.EntityRef) []Segment {
	if text == "" {
		return nil
	}

	pool := make([]models.EntityRef, 0, len(entities))
	for _, e := range entities {
		if e.Name != "" {
			pool = append(pool, e)
		}
	}
	if len(pool) == 0 {
		return []Segment{{Text: text}}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		return len(pool[i].Name) > len(pool[j].Name)
	})

	var matches []match
	for _, e := range pool {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(e.Name) + `\b`)
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			matches = append(matches, match{start: loc[0], end: loc[1], entity: e})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].start != matches[j].start {
			return matches[i].start < matches[j].start
		}
		// Longer-name entities were collected first; keep their priority on
		// identical starts.
		return matches[i].end > matches[j].end
	})

	var segments []Segment
	cursor := 0
	lastEnd := 0
	for _, m := range matches {
		if m.start < lastEnd {
			continue // overlaps an accepted match
		}
		if m.start > cursor {
			segments = append(segments, Segment{Text: text[cursor:m.start]})
		}
		entity := m.entity
		segments = append(segments, Segment{Text: text[m.start:m.end], Entity: &entity})
		cursor = m.end
		lastEnd = m.end
	}
	if cursor < len(text) {
		segments = append(segments, Segment{Text: text[cursor:]})
	}
	return segments
}
