package outline

import (
	"strconv"

	"github.com/abhisek/alain/internal/prompts"
)

// Difficulty levels.
const (
	Beginner     = "beginner"
	Intermediate = "intermediate"
	Advanced     = "advanced"
)

const readingTime = "15-30 minutes"

const defaultSystemPrompt = "You are ALAIN-Teacher, an assistant that replies with strict JSON objects matching the OutlineJSON schema. " +
	"Never include natural language commentary, markdown, or code fences."

const retryInstruction = "\n\nYour previous reply was not valid JSON. Reply again with ONLY the OutlineJSON object (start with {, end with }). No commentary."

const repairInstruction = "Return ONLY the repaired OutlineJSON object. Start with { and end with }."

// AudienceDescription returns the prompt wording for a difficulty level.
// Unknown levels are treated as beginner.
func AudienceDescription(difficulty string) string {
	switch difficulty {
	case Intermediate:
		return "Practitioners with some machine learning experience (focus on applied explanations and practical context)."
	case Advanced:
		return "Advanced practitioners and researchers (include deeper rationale, trade-offs, and expert context)."
	default:
		return "Absolute beginners (ELI5, non-developers). Use analogies, avoid jargon, and highlight common pitfalls."
	}
}

func (g *Generator) buildPrompt(subject, difficulty, source string) (string, error) {
	var contextBlock string
	if source != "" {
		contextBlock = "SOURCE CONTEXT (use to shape sections, do not copy verbatim):\n" + source + "\n"
	}
	return g.prompts.Render(prompts.OutlineTemplate, map[string]string{
		"STEP_MIN":                strconv.Itoa(MinSteps),
		"STEP_MAX":                strconv.Itoa(MaxSteps),
		"TOTAL_TOKEN_MIN":         strconv.Itoa(MinTotalTokens),
		"TOTAL_TOKEN_MAX":         strconv.Itoa(MaxTotalTokens),
		"READING_TIME":            readingTime,
		"SUBJECT":                 subject,
		"MODEL_REFERENCE_OR_TEXT": subject,
		"AUDIENCE_DESCRIPTION":    AudienceDescription(difficulty),
		"CONTEXT_BLOCK":           contextBlock,
	})
}
