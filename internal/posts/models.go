package posts

// Post is one search result as returned by the remote API.
type Post struct {
	RawText string `json:"raw_text"`
}

// CleanedPost pairs a post with its normalized text.
type CleanedPost struct {
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
}

// ClassifiedPost is a cleaned post with its sentiment label.
type ClassifiedPost struct {
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
	Label          Label  `json:"label"`
}

// Label is a sentiment polarity class.
type Label string

const (
	Positive Label = "positive"
	Neutral  Label = "neutral"
	Negative Label = "negative"
)

// Labels returns the three labels in display order.
func Labels() []Label {
	return []Label{Positive, Neutral, Negative}
}

// Valid reports whether l is one of the three known labels.
func (l Label) Valid() bool {
	switch l {
	case Positive, Neutral, Negative:
		return true
	}
	return false
}

// WithLabel attaches a label to a cleaned post.
func (c CleanedPost) WithLabel(l Label) ClassifiedPost {
	return ClassifiedPost{RawText: c.RawText, NormalizedText: c.NormalizedText, Label: l}
}
