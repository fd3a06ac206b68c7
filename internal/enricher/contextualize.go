package enricher

import (
	"context"

	"go.uber.org/zap"
)

const contextualizeSystemPrompt = `Given a document preview and one chunk drawn from it, write a single
1-2 sentence statement that situates the chunk within the document, so
it can be understood out of context. Respond with the statement only.`

// contextualize asks the LLM for a short situating statement. This is a
// soft failure: any error (including rate limiting) is swallowed and an
// empty string is returned so the caller proceeds without context
// (spec.md §4.2 "Contextualize").
func (e *Enricher) contextualize(ctx context.Context, documentPreview, chunkText string) string {
	preview := documentPreview
	if len(preview) > e.cfg.ContextPreviewChars {
		preview = preview[:e.cfg.ContextPreviewChars]
	}

	if err := e.waitForToken(ctx); err != nil {
		return ""
	}

	user := "Document preview:\n" + preview + "\n\nChunk:\n" + chunkText
	summary, err := e.client.Chat(ctx, contextualizeSystemPrompt, user, e.cfg.MaxContextTokens)
	if err != nil {
		e.logger.Debug("contextualize failed, proceeding without context", zap.Error(err))
		return ""
	}
	return summary
}
