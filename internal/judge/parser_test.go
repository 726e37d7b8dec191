package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResponseJSONBlock(t *testing.T) {
	body := "Some preamble from the bot.\n\n```json\n{\n" +
		`  "grade": "D-",` + "\n" +
		`  "verdict": "A package.json with 214 dependencies for a static site.",` + "\n" +
		`  "badge": "Dependency Hoarder"` + "\n}\n```\nSome trailer."

	result := ParseResponse(body)
	assert.Equal(t, "D-", result.QualityGrade)
	assert.Equal(t, "A package.json with 214 dependencies for a static site.", result.Verdict)
	assert.Equal(t, "Dependency Hoarder", result.CodeRabbitBadge)
}

func TestParseResponseJSONBlockMissingFields(t *testing.T) {
	body := "```json\n{\"grade\": \"B\"}\n```"

	result := ParseResponse(body)
	assert.Equal(t, "B", result.QualityGrade)
	assert.Equal(t, "Pending review…", result.Verdict)
	assert.Equal(t, "Unknown", result.CodeRabbitBadge)
}

func TestParseResponseBoldLabels(t *testing.T) {
	body := "After reviewing the repository:\n\n" +
		"**Grade**: C-\n" +
		"**Verdict**: \"Global mutable state everywhere, like it is 1999.\"\n" +
		"**Badge**: Copy-Paste Artisan\n"

	result := ParseResponse(body)
	assert.Equal(t, "C-", result.QualityGrade)
	assert.Equal(t, "Global mutable state everywhere, like it is 1999.", result.Verdict)
	assert.Equal(t, "Copy-Paste Artisan", result.CodeRabbitBadge)
}

func TestParseResponseLooseLabels(t *testing.T) {
	body := "My grade: B+ overall.\n" +
		"verdict: \"Works, but the 900-line main function is doing a lot of heavy lifting.\"\n" +
		"badge: Monolith Enjoyer\n"

	result := ParseResponse(body)
	assert.Equal(t, "B+", result.QualityGrade)
	assert.Equal(t, "Works, but the 900-line main function is doing a lot of heavy lifting.", result.Verdict)
	assert.Equal(t, "Monolith Enjoyer", result.CodeRabbitBadge)
}

func TestParseResponseRoastFallback(t *testing.T) {
	body := "I reviewed the repository. The PR is large. " +
		"Nested callbacks six levels deep with no error handling in sight! Moving on."

	result := ParseResponse(body)
	assert.Equal(t, "Pending", result.QualityGrade)
	assert.Equal(t, "Nested callbacks six levels deep with no error handling in sight", result.Verdict)
	assert.Equal(t, "Unknown", result.CodeRabbitBadge)
}

func TestParseResponseNothingUsable(t *testing.T) {
	result := ParseResponse("I see. Here. Ok.")
	assert.Equal(t, "Pending", result.QualityGrade)
	assert.Equal(t, "Pending review…", result.Verdict)
	assert.Equal(t, "Unknown", result.CodeRabbitBadge)
}

func TestExtractFirstRoastTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	roast := extractFirstRoast(long)
	assert.Len(t, roast, 200)
}

func TestIsSubstantiveResponse(t *testing.T) {
	longBody := strings.Repeat("this code is remarkable in all the wrong ways ", 10)

	tests := []struct {
		name  string
		login string
		body  string
		want  bool
	}{
		{"real review", "coderabbitai[bot]", longBody, true},
		{"mixed-case login", "CodeRabbitAI", longBody, true},
		{"wrong author", "alice", longBody, false},
		{"too short", "coderabbitai[bot]", "LGTM", false},
		{"review skipped notice", "coderabbitai[bot]", longBody + "Review skipped", false},
		{"auto-generated", "coderabbitai[bot]", longBody + "auto-generated comment", false},
		{"actions performed", "coderabbitai[bot]", longBody + "Actions performed", false},
		{"finishing touches", "coderabbitai[bot]", longBody + "finishing_touch_checkbox", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSubstantiveResponse(tt.login, tt.body))
		})
	}
}
