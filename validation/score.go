package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const scoringInstructions = `You review another agent's answer.
Reply with JSON only, using this shape:
{"issues": ["..."], "relevance": 0.0, "completeness": 0.0, "clarity": 0.0}
Scores range from 0 to 1. List concrete problems in "issues"; use an empty list when there are none.`

func scoringPrompt(req Response, domain string) string {
	var b strings.Builder
	if req.Request != "" {
		fmt.Fprintf(&b, "Request:\n%s\n\n", req.Request)
	}
	fmt.Fprintf(&b, "Answer:\n%s\n\nDomain: %s", req.Content, domain)
	return b.String()
}

// ParseScores reads a validator reply. The JSON object may be wrapped in a
// ```json fence or surrounded by prose. Scores above 1 are read as a 0-10 scale.
func ParseScores(reply string) (Scores, error) {
	body := extractJSON(reply)
	if body == "" {
		return Scores{}, errors.New("validator reply contains no JSON object")
	}

	var raw struct {
		Issues       []string `json:"issues"`
		Relevance    *float64 `json:"relevance"`
		Completeness *float64 `json:"completeness"`
		Clarity      *float64 `json:"clarity"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Scores{}, fmt.Errorf("decode validator scores: %w", err)
	}
	if raw.Relevance == nil || raw.Completeness == nil || raw.Clarity == nil {
		return Scores{}, errors.New("validator scores missing relevance, completeness or clarity")
	}

	s := Scores{
		Issues:       raw.Issues,
		Relevance:    *raw.Relevance,
		Completeness: *raw.Completeness,
		Clarity:      *raw.Clarity,
	}
	if s.Relevance > 1 || s.Completeness > 1 || s.Clarity > 1 {
		s.Relevance /= 10
		s.Completeness /= 10
		s.Clarity /= 10
	}
	s.Relevance = clamp01(s.Relevance)
	s.Completeness = clamp01(s.Completeness)
	s.Clarity = clamp01(s.Clarity)
	return s, nil
}

func extractJSON(reply string) string {
	if i := strings.Index(reply, "```"); i >= 0 {
		rest := reply[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			reply = rest[:j]
		}
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return ""
	}
	return reply[start : end+1]
}

// agreement 返回总体方差与一致度 1 - min(4*variance, 1)
func agreement(scores []float64) (variance, agree float64) {
	if len(scores) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))
	return variance, 1 - min(4*variance, 1)
}
