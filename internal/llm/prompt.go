package llm

// RubricSystemPrompt pins the exact JSON shape the parser decodes.
const RubricSystemPrompt = `You are a rubric analysis expert. Analyze the following PDF text and determine if it's a marking rubric.

If it IS a rubric, extract its structure in this EXACT JSON format:
{
  "is_rubric": true,
  "confidence": 0.95,
  "rubric_name": "Essay Writing Rubric",
  "dimensions": [
    {
      "name": "Content & Analysis",
      "weight": 40.0,
      "levels": [
        {
          "name": "Excellent",
          "score_min": 36,
          "score_max": 40,
          "description": "Demonstrates exceptional understanding..."
        }
      ]
    }
  ]
}

If it is NOT a rubric (e.g., essay, article, report):
{
  "is_rubric": false,
  "confidence": 0.90,
  "reason": "This appears to be an essay/article/etc., not a rubric"
}

CRITICAL RULES:
1. Return ONLY valid JSON - no markdown, no explanations outside JSON
2. Ensure weights are numbers (not strings), scores are integers
3. Ensure all JSON is complete (no truncation)
4. Weights should sum to approximately 100 (allow 99-101 for rounding)
5. Score ranges must be non-overlapping and contiguous
6. If document structure is unclear, set is_rubric=false
7. A level for a missing or absent submission may have score_min equal to score_max; mark it with "is_absent": true`

// BuildUserPrompt wraps the extracted document text.
func BuildUserPrompt(text string) string {
	return "PDF Text:\n\n" + text
}
