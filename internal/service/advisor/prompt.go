package advisor

import (
	"encoding/json"
	"fmt"

	"github.com/finwell/finwell-backend/internal/domain"
)

// adviceLanguageName maps a language code to the name used in the prompt.
var adviceLanguageName = map[domain.Language]string{
	domain.LanguageTR: "Turkish",
	domain.LanguageEN: "English",
	domain.LanguageRU: "Russian",
}

// buildSystemPrompt instructs the model to act as a personal finance advisor
// and to answer with the AdviceBody JSON schema only.
func buildSystemPrompt(language domain.Language) string {
	return fmt.Sprintf(`You are a careful personal finance advisor.

You receive one month of a user's financial data as JSON and produce practical advice.

Output ONLY a valid JSON object matching this exact schema, with every text written in %s:
{
  "summary": "<2-3 sentence overview of the month>",
  "topFindings": ["<notable pattern>", "..."],
  "suggestedActions": ["<concrete next step>", "..."],
  "warnings": ["<risk worth flagging, may be empty>"],
  "savings": {"assessment": "<one sentence>", "targetRate": "<e.g. 20%%>", "suggestions": ["..."]},
  "investment": {"readiness": "<one sentence>", "suggestions": ["..."]},
  "expenseOptimization": {"focusCategories": ["<category>"], "suggestions": ["..."]},
  "tips": ["<short habit tip>", "..."]
}

Rules:
- Base every statement on the provided numbers, never invent figures
- Keep amounts in the user's currency, formatted plainly
- 2-4 items per list, short sentences
- Output ONLY the JSON, no markdown, no explanations`, adviceLanguageName[language])
}

// buildUserPrompt serializes the snapshot for the model. variantNonce, set
// only on regenerate, nudges the model away from repeating its previous
// answer verbatim.
func buildUserPrompt(snapshot domain.MonthSnapshot, variantNonce string) (string, error) {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	prompt := fmt.Sprintf("Financial data for %s:\n%s", snapshot.Month, data)
	if variantNonce != "" {
		prompt += fmt.Sprintf("\n\nThe user asked for a fresh take (variant %s). Offer a different angle than a previous answer might have taken.", variantNonce)
	}
	return prompt, nil
}
