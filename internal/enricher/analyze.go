package enricher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/semaj-rag/ingest-pipeline/internal/model"
	"github.com/semaj-rag/ingest-pipeline/internal/retry"
)

const analysisSystemPrompt = `You are a document analysis assistant. Given a chunk of text, respond with
a single JSON object matching this schema exactly, with no surrounding prose:
{
  "title": string,
  "summary": string,
  "category": string,
  "content_type": "article"|"blog"|"academic"|"news"|"reference"|"other",
  "technical_level": "beginner"|"intermediate"|"advanced",
  "sentiment": "positive"|"negative"|"neutral"|"mixed",
  "emotions": [string],
  "tags": [string],
  "key_concepts": [string],
  "main_topics": [string],
  "key_entities": {"people": [string], "organizations": [string], "locations": [string]}
}`

// rawAnalysis mirrors the LLM's JSON output before normalization; fields
// are left loosely typed so normalize can coerce and clamp them.
type rawAnalysis struct {
	Title          string      `json:"title"`
	Summary        string      `json:"summary"`
	Category       string      `json:"category"`
	ContentType    string      `json:"content_type"`
	TechnicalLevel string      `json:"technical_level"`
	Sentiment      string      `json:"sentiment"`
	Emotions       []string    `json:"emotions"`
	Tags           []string    `json:"tags"`
	KeyConcepts    []string    `json:"key_concepts"`
	MainTopics     []string    `json:"main_topics"`
	KeyEntities    *rawEntities `json:"key_entities"`
}

type rawEntities struct {
	People        []string `json:"people"`
	Organizations []string `json:"organizations"`
	Locations     []string `json:"locations"`
}

// analyze calls the LLM with the analysis schema prompt and normalizes
// the result, retrying up to cfg.AnalysisMaxAttempts times with
// exponential backoff on retriable upstream errors (spec.md §4.2
// "Analyze").
func (e *Enricher) analyze(ctx context.Context, text string) (*model.Analysis, error) {
	var result *model.Analysis

	err := retry.Do(ctx, e.cfg.AnalysisMaxAttempts, analyzeBackoffBase, analyzeBackoffMax, shouldRetryUpstream, func(ctx context.Context) error {
		if err := e.waitForToken(ctx); err != nil {
			return err
		}
		raw, err := e.client.Chat(ctx, analysisSystemPrompt, text, 0)
		if err != nil {
			return err
		}
		parsed, err := parseAnalysisJSON(raw)
		if err != nil {
			return err
		}
		result = normalizeAnalysis(parsed)
		return nil
	})
	if err != nil {
		return nil, errAnalysisFailed(err)
	}
	return result, nil
}

// parseAnalysisJSON extracts the first JSON object in raw, tolerating
// LLMs that wrap the object in prose or a fenced code block.
func parseAnalysisJSON(raw string) (*rawAnalysis, error) {
	s := raw
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	var out rawAnalysis
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("parse analysis JSON: %w", err)
	}
	return &out, nil
}

var validContentTypes = map[model.ContentType]bool{
	model.ContentArticle: true, model.ContentBlog: true, model.ContentAcademic: true,
	model.ContentNews: true, model.ContentRef: true, model.ContentOther: true,
}

var validTechnicalLevels = map[model.TechnicalLevel]bool{
	model.LevelBeginner: true, model.LevelIntermediate: true, model.LevelAdvanced: true,
}

var validSentiments = map[model.Sentiment]bool{
	model.SentimentPositive: true, model.SentimentNegative: true,
	model.SentimentNeutral: true, model.SentimentMixed: true,
}

// normalizeAnalysis coerces array fields to non-nil arrays, defaults
// key_entities, and clamps enum fields to their valid set, defaulting to
// "other"/"intermediate"/"neutral" respectively (spec.md §4.2 "Analyze").
func normalizeAnalysis(raw *rawAnalysis) *model.Analysis {
	out := &model.Analysis{
		Title:    raw.Title,
		Summary:  raw.Summary,
		Category: raw.Category,
	}

	out.ContentType = model.ContentType(raw.ContentType)
	if !validContentTypes[out.ContentType] {
		out.ContentType = model.ContentOther
	}

	out.TechnicalLevel = model.TechnicalLevel(raw.TechnicalLevel)
	if !validTechnicalLevels[out.TechnicalLevel] {
		out.TechnicalLevel = model.LevelIntermediate
	}

	out.Sentiment = model.Sentiment(raw.Sentiment)
	if !validSentiments[out.Sentiment] {
		out.Sentiment = model.SentimentNeutral
	}

	out.Emotions = coerceArray(raw.Emotions)
	out.Tags = coerceArray(raw.Tags)
	out.KeyConcepts = coerceArray(raw.KeyConcepts)
	out.MainTopics = coerceArray(raw.MainTopics)

	if raw.KeyEntities != nil {
		out.KeyEntities = model.KeyEntities{
			People:        coerceArray(raw.KeyEntities.People),
			Organizations: coerceArray(raw.KeyEntities.Organizations),
			Locations:     coerceArray(raw.KeyEntities.Locations),
		}
	} else {
		out.KeyEntities = model.KeyEntities{People: []string{}, Organizations: []string{}, Locations: []string{}}
	}

	return out
}

func coerceArray(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
