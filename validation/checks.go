package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// basicChecks 返回基础检查的得分：空回复得 0 分，否则每个问题扣 0.25。
func (v *Validator) basicChecks(content string, res *ValidationResult) float64 {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		res.addIssue(LevelBasic, CodeEmptyResponse, "high", "response is empty")
		return 0
	}

	issues := 0
	n := utf8.RuneCountInString(trimmed)
	if v.cfg.MinLength > 0 && n < v.cfg.MinLength {
		res.addIssue(LevelBasic, CodeTooShort, "medium", fmt.Sprintf("response has %d characters, minimum is %d", n, v.cfg.MinLength))
		issues++
	}
	if v.cfg.MaxLength > 0 && n > v.cfg.MaxLength {
		res.addIssue(LevelBasic, CodeTooLong, "medium", fmt.Sprintf("response has %d characters, maximum is %d", n, v.cfg.MaxLength))
		issues++
	}
	for _, kw := range v.keywordHits(trimmed) {
		res.addIssue(LevelBasic, CodeErrorKeyword, "low", fmt.Sprintf("response contains %q", kw))
		issues++
	}
	return clamp01(1 - 0.25*float64(issues))
}

// keywordHits returns the distinct keywords found, in keyword order.
func (v *Validator) keywordHits(content string) []string {
	if v.keywords == nil {
		return nil
	}
	found := make(map[string]bool)
	for _, m := range v.keywords.FindAllString(content, -1) {
		found[strings.ToLower(m)] = true
	}
	var out []string
	for _, kw := range v.cfg.ErrorKeywords {
		if found[strings.ToLower(kw)] {
			out = append(out, strings.ToLower(kw))
		}
	}
	return out
}

func compileKeywords(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// ============================================================
// 领域检查
// ============================================================

const (
	DomainCoding    = "coding"
	DomainKnowledge = "knowledge"
	DomainGeneral   = "general"
)

var (
	codeLinePattern = regexp.MustCompile(`(?m)^\s*(func |def |class |import |package |#include|public |private |const |let |var |return\b).*|^.*[;{]\s*$`)
	citationPattern = regexp.MustCompile(`(?i)\[\d+\]|https?://|\bsources?:|\breferences?:|\baccording to\b|\(\w[^()]*,\s*\d{4}\)`)
)

// domainChecks 返回领域检查得分，每个问题扣 0.25。
func domainChecks(domain, content string, res *ValidationResult) float64 {
	issues := 0
	switch domain {
	case DomainCoding:
		fences := strings.Count(content, "```")
		if fences%2 != 0 {
			res.addIssue(LevelComprehensive, CodeUnbalancedCodeFence, "medium", "code fence is not closed")
			issues++
		}
		if fences == 0 && codeLinePattern.MatchString(content) {
			res.addIssue(LevelComprehensive, CodeUnfencedCode, "low", "code is not wrapped in a fenced block")
			issues++
		}
	case DomainKnowledge:
		if !citationPattern.MatchString(content) {
			res.addIssue(LevelComprehensive, CodeMissingCitation, "medium", "no source citation found")
			issues++
		}
	}
	return clamp01(1 - 0.25*float64(issues))
}
