package database

import (
	"time"

	"github.com/TobiSchelling/SentimentCrawler/internal/aggregate"
	"github.com/TobiSchelling/SentimentCrawler/internal/posts"
)

// RunMeta describes a pipeline run being saved.
type RunMeta struct {
	Query     string
	Language  string
	Source    string
	Scorer    string
	StartedAt time.Time
	Duration  time.Duration
}

// Run is one stored pipeline run with its label counts.
type Run struct {
	ID         int64   `json:"id"`
	Query      string  `json:"query"`
	Language   string  `json:"language"`
	Source     string  `json:"source"`
	Scorer     string  `json:"scorer"`
	Positive   int     `json:"positive"`
	Neutral    int     `json:"neutral"`
	Negative   int     `json:"negative"`
	Dropped    int     `json:"dropped"`
	DurationMS int64   `json:"duration_ms"`
	StartedAt  string  `json:"started_at"`
	CreatedAt  *string `json:"created_at,omitempty"`
}

// Summary rebuilds the label counts of the run.
func (r Run) Summary() aggregate.Summary {
	return aggregate.Summary{Counts: map[posts.Label]int{
		posts.Positive: r.Positive,
		posts.Neutral:  r.Neutral,
		posts.Negative: r.Negative,
	}}
}

// RunPost is one classified post of a stored run.
type RunPost struct {
	Position       int         `json:"position"`
	RawText        string      `json:"raw_text"`
	NormalizedText string      `json:"normalized_text"`
	Label          posts.Label `json:"label"`
}

// DroppedPost is a post the scorer could not handle. Position is its index
// in the fetched order.
type DroppedPost struct {
	Position int    `json:"position"`
	RawText  string `json:"raw_text"`
	Reason   string `json:"reason"`
}

// RunDetail is a run with its post table.
type RunDetail struct {
	Run
	Posts   []RunPost     `json:"posts"`
	Dropped []DroppedPost `json:"dropped"`
}

// Report rebuilds the aggregate report shown for this run.
func (d RunDetail) Report() aggregate.Report {
	classified := make([]posts.ClassifiedPost, len(d.Posts))
	for i, p := range d.Posts {
		classified[i] = posts.ClassifiedPost{RawText: p.RawText, NormalizedText: p.NormalizedText, Label: p.Label}
	}
	return aggregate.NewReport(classified)
}

// Stats contains aggregate database statistics.
type Stats struct {
	TotalRuns       int
	DistinctQueries int
	TotalPosts      int
	Positive        int
	Neutral         int
	Negative        int
	DroppedPosts    int
	LastRunAt       *string
}
