package models

import "time"

// FAQAnswer is a curated answer. It owns its question variants.
type FAQAnswer struct {
	ID                int64                `json:"id"`
	CanonicalQuestion string               `json:"canonical_question"`
	Answer            string               `json:"answer"`
	Questions         []FAQQuestionVariant `json:"questions,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// FAQQuestionVariant is one phrasing of an FAQ question with its own embedding.
type FAQQuestionVariant struct {
	ID           int64     `json:"id"`
	FAQID        int64     `json:"faq_id"`
	QuestionText string    `json:"question_text"`
	Embedding    []float32 `json:"-"`
}

// FAQMatch is an FAQ index hit: the matched variant joined to its answer.
type FAQMatch struct {
	FAQID             int64   `json:"faq_id"`
	VariantID         int64   `json:"variant_id"`
	CanonicalQuestion string  `json:"canonical_question"`
	MatchedQuestion   string  `json:"matched_question"`
	Answer            string  `json:"answer"`
	Distance          float64 `json:"distance"`
}
