// Package aggregate tabulates sentiment labels over a classified run.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// Summary holds the count of posts per label. Every label is present.
type Summary struct {
	Counts map[posts.Label]int `json:"counts"`
}

// Aggregate counts labels over the classified posts.
func Aggregate(classified []posts.ClassifiedPost) Summary {
	counts := make(map[posts.Label]int, 3)
	for _, l := range posts.Labels() {
		counts[l] = 0
	}
	for _, p := range classified {
		counts[p.Label]++
	}
	return Summary{Counts: counts}
}

// Total returns the number of posts counted.
func (s Summary) Total() int {
	total := 0
	for _, n := range s.Counts {
		total += n
	}
	return total
}

// Share returns the percentage of posts carrying the label, 0 for an empty
// summary.
func (s Summary) Share(l posts.Label) float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.Counts[l]) * 100 / float64(total)
}

// Dominant returns the label with the highest count, preferring the display
// order on ties. It is empty for an empty summary.
func (s Summary) Dominant() posts.Label {
	var best posts.Label
	top := 0
	for _, l := range posts.Labels() {
		if s.Counts[l] > top {
			best, top = l, s.Counts[l]
		}
	}
	return best
}

// Report is what the display layer receives: the post table and its summary.
type Report struct {
	Posts   []posts.ClassifiedPost `json:"posts"`
	Summary Summary                `json:"summary"`
}

// NewReport builds a report over the classified posts, leaving them as given.
func NewReport(classified []posts.ClassifiedPost) Report {
	return Report{Posts: classified, Summary: Aggregate(classified)}
}

// Markdown renders the summary as a Markdown table.
func (r Report) Markdown(query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Sentiment for \"%s\"\n\n", query)
	b.WriteString("| Sentiment | Posts | Share |\n")
	b.WriteString("|---|---:|---:|\n")
	for _, l := range posts.Labels() {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", l, r.Summary.Counts[l], r.Summary.Share(l))
	}
	fmt.Fprintf(&b, "\n%d posts classified", r.Summary.Total())
	if d := r.Summary.Dominant(); d != "" {
		fmt.Fprintf(&b, ", mostly **%s**", d)
	}
	b.WriteString(".\n")
	return b.String()
}
