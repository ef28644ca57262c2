package usecase

import (
	"recall/internal/domain"
)

// categoryPhrases are the representative phrases whose embeddings anchor each
// category in the same vector space as the corpus. Detection compares the
// query embedding against these, so phrases favor concrete, high-signal
// vocabulary over prose.
var categoryPhrases = map[domain.Category]string{
	domain.CategoryWork:          "work projects tasks deadlines office business reports",
	domain.CategoryPersonal:      "personal life family diary feelings hobbies",
	domain.CategoryGeneralInfo:   "general information reference facts knowledge articles",
	domain.CategoryContactsInfo:  "contact details phone number address email people",
	domain.CategoryConversations: "conversation chat dialogue messages correspondence",
	domain.CategoryMeetings:      "meeting agenda minutes attendees schedule sessions",
	domain.CategoryNotes:         "notes reminders ideas lists thoughts drafts",
}

type categoryVector struct {
	category domain.Category
	vector   []float32
}

// DetectCategory picks the category whose representative phrase embedding is
// most similar to the query vector. Its output is a ranking bias, never a
// hard filter. Ties resolve to the earliest category in the fixed order.
func (e *Engine) DetectCategory(queryVector []float32) (domain.Category, error) {
	vectors, err := e.categoryVectors()
	if err != nil {
		return "", err
	}

	best := vectors[0].category
	bestScore := dot32(queryVector, vectors[0].vector)
	for _, cv := range vectors[1:] {
		if score := dot32(queryVector, cv.vector); score > bestScore {
			best = cv.category
			bestScore = score
		}
	}
	return best, nil
}

// categoryVectors lazily embeds the phrase list once per engine. A failed
// attempt is retried on the next call rather than cached.
func (e *Engine) categoryVectors() ([]categoryVector, error) {
	e.catMu.Lock()
	defer e.catMu.Unlock()

	if e.catVecs != nil {
		return e.catVecs, nil
	}

	categories := domain.Categories()
	texts := make([]string, len(categories))
	for i, c := range categories {
		texts[i] = categoryPhrases[c]
	}

	vectors, err := e.embedder.Embed(texts)
	if err != nil {
		return nil, err
	}

	vecs := make([]categoryVector, len(categories))
	for i, c := range categories {
		vecs[i] = categoryVector{category: c, vector: vectors[i]}
	}
	e.catVecs = vecs
	return vecs, nil
}

func dot32(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
