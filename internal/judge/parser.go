package judge

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/wallofshame/gitranker/internal/types"
)

// Layered extraction of grade/verdict/badge from the bot's markdown. Each
// strategy is strictly more lenient than the one before; the parser never
// fails, it only degrades fields to their Pending placeholders.
var (
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n\\s*```")

	boldGradeRe   = regexp.MustCompile(`\*\*(?:GRADE|Grade|grade)\*\*[:\s]*([A-F][+-]?)`)
	boldVerdictRe = regexp.MustCompile(`\*\*(?:VERDICT|Verdict|verdict)\*\*[:\s]*"?([^"\n]+)"?`)
	boldBadgeRe   = regexp.MustCompile(`\*\*(?:BADGE|Badge|badge)\*\*[:\s]*"?([^"\n]+)"?`)

	looseGradeRe   = regexp.MustCompile(`(?:grade|Grade)[:\s]+([A-F][+-]?)`)
	looseVerdictRe = regexp.MustCompile(`(?:verdict|Verdict)[:\s]+"([^"]+)"`)
	looseBadgeRe   = regexp.MustCompile(`(?:badge|Badge)[:\s]+"?([A-Za-z][^"\n]{2,40})"?`)

	sentenceSplitRe = regexp.MustCompile(`[.!]\s`)
)

// fillerOpeners begin sentences that are framing, not roast content.
var fillerOpeners = []string{"I", "The PR", "This pull", "Here"}

// ParseResponse extracts a JudgeResult from a review-bot comment body.
//
// Strategy 1 looks for a fenced JSON block with grade/verdict/badge keys.
// Strategy 2 looks for bold-labelled fields (**Grade**: C-). Strategy 3 is a
// loose label search, and the verdict finally falls back to the first
// sentence that reads like a roast.
func ParseResponse(body string) types.JudgeResult {
	if m := jsonBlockRe.FindStringSubmatch(body); m != nil {
		var data struct {
			Grade   *string `json:"grade"`
			Verdict *string `json:"verdict"`
			Badge   *string `json:"badge"`
		}
		if err := json.Unmarshal([]byte(m[1]), &data); err == nil {
			result := types.PendingResult()
			if data.Grade != nil {
				result.QualityGrade = *data.Grade
			}
			if data.Verdict != nil {
				result.Verdict = *data.Verdict
			}
			if data.Badge != nil {
				result.CodeRabbitBadge = *data.Badge
			}
			return result
		}
	}

	grade := boldGradeRe.FindStringSubmatch(body)
	verdict := boldVerdictRe.FindStringSubmatch(body)
	badge := boldBadgeRe.FindStringSubmatch(body)

	if grade == nil {
		grade = looseGradeRe.FindStringSubmatch(body)
	}
	if verdict == nil {
		verdict = looseVerdictRe.FindStringSubmatch(body)
	}
	if badge == nil {
		badge = looseBadgeRe.FindStringSubmatch(body)
	}

	result := types.PendingResult()
	if grade != nil {
		result.QualityGrade = grade[1]
	}
	if verdict != nil {
		result.Verdict = strings.TrimSpace(verdict[1])
	} else {
		result.Verdict = extractFirstRoast(body)
	}
	if badge != nil {
		result.CodeRabbitBadge = strings.TrimSpace(badge[1])
	}
	return result
}

// extractFirstRoast returns the first sentence long enough to carry content
// and not opening with conversational filler, truncated to 200 characters.
func extractFirstRoast(body string) string {
	for _, s := range sentenceSplitRe.Split(body, -1) {
		s = strings.TrimSpace(s)
		if len(s) <= 30 {
			continue
		}
		filler := false
		for _, opener := range fillerOpeners {
			if strings.HasPrefix(s, opener) {
				filler = true
				break
			}
		}
		if filler {
			continue
		}
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	return "Pending review…"
}

// skipPhrases mark auto-generated status comments from the bot that must not
// be parsed as verdicts.
var skipPhrases = []string{
	"auto-generated comment",
	"Review skipped",
	"Actions performed",
	"Review triggered",
	"finishing_touch_checkbox",
}

// IsSubstantiveResponse reports whether a comment is a real review from the
// bot: posted by a coderabbit login, not an auto-generated status note, and
// long enough to contain an actual verdict.
func IsSubstantiveResponse(login, body string) bool {
	if !strings.Contains(strings.ToLower(login), "coderabbit") {
		return false
	}
	for _, phrase := range skipPhrases {
		if strings.Contains(body, phrase) {
			return false
		}
	}
	return len(body) >= 200
}
