package consensus

import (
	"strings"
	"unicode"
)

// ConfidenceScorer 根据模型回复计算单票置信度，返回值应在 [0,1]。
type ConfidenceScorer interface {
	Score(response string) float64
}

// ScorerFunc adapts a function to ConfidenceScorer.
type ScorerFunc func(response string) float64

func (f ScorerFunc) Score(response string) float64 { return clamp01(f(response)) }

var (
	defaultHedgeWords = []string{
		"maybe", "perhaps", "might", "possibly", "probably", "not sure",
		"unsure", "uncertain", "could be", "i think", "i guess", "either",
	}
	defaultDecisiveWords = []string{
		"definitely", "clearly", "certainly", "absolutely", "best choice", "without doubt",
	}
)

// HeuristicScorer rates decisiveness: short unhedged answers score high.
type HeuristicScorer struct {
	HedgeWords    []string
	DecisiveWords []string
}

// NewHeuristicScorer 创建使用默认词表的启发式评分器
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{
		HedgeWords:    defaultHedgeWords,
		DecisiveWords: defaultDecisiveWords,
	}
}

// Score 评分规则：
//   - 基础分 0.8
//   - 不超过 5 个词 +0.15，超过 50 个词 -0.1
//   - 每个犹豫词 -0.1，最多 -0.4
//   - 出现果断用词 +0.05
func (s *HeuristicScorer) Score(response string) float64 {
	words := strings.FieldsFunc(strings.ToLower(response), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '_' && r != '-'
	})
	if len(words) == 0 {
		return 0
	}
	text := " " + strings.Join(words, " ") + " "

	score := 0.8
	switch {
	case len(words) <= 5:
		score += 0.15
	case len(words) > 50:
		score -= 0.1
	}

	penalty := 0.0
	for _, h := range s.HedgeWords {
		penalty += 0.1 * float64(strings.Count(text, " "+h+" "))
	}
	score -= min(penalty, 0.4)

	for _, d := range s.DecisiveWords {
		if strings.Contains(text, " "+d+" ") {
			score += 0.05
			break
		}
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
