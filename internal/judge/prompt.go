package judge

// ReviewTrigger is posted first so the review bot actually reviews the PR; it
// skips PRs whose base is not the default branch unless explicitly triggered.
const ReviewTrigger = "@coderabbitai review"

// JudgePrompt is the judging comment posted on each PR. The bot is asked for
// a fenced JSON block so the response parser's primary strategy can find a
// structured verdict.
const JudgePrompt = `@coderabbitai

Act as Linus Torvalds reviewing this entire repository. Be brutally honest and technically specific.

Analyze ALL the code visible in this pull request diff and provide your evaluation in **exactly** this JSON format inside a fenced code block:

` + "```json" + `
{
  "grade": "<letter grade from F- to A+>",
  "verdict": "<A savage, technical one-liner roast. Reference specific code patterns or files you see. No emojis. Max 200 chars.>",
  "badge": "<One humorous badge they deserve, e.g. Over-Engineered, Copy-Paste Artisan, Dependency Hoarder>"
}
` + "```" + `

**Grading rubric:**
- **A range**: Genuinely impressive — clean architecture, good tests, thoughtful error handling
- **B range**: Competent but unremarkable — works fine, nothing exciting
- **C range**: Mediocre — works but has obvious issues (no tests, messy structure, etc.)
- **D range**: Barely functional — poor organization, no docs, questionable decisions
- **F range**: Actively harmful to anyone who reads it

**What to evaluate:**
1. Code organization and architecture
2. Error handling (try-catch? or YOLO?)
3. Documentation quality (README, comments)
4. Dependency hygiene (200 deps for a todo app?)
5. Naming conventions (meaningful or ` + "`x`, `temp`, `asdf`" + `?)
6. Testing (any tests at all?)
7. Overall engineering taste

Be harsh but fair. Every roast MUST reference something real in the code. Do not be generic.`

// PRTitle and PRBody describe the full-codebase review pull request.
const PRTitle = "Wall of Shame: Full Repository Code Review"

const PRBody = "Automated full-codebase review for the **Wall of Shame** hackathon project.\n\n" +
	"This PR diffs the entire repository against an empty baseline so CodeRabbit " +
	"can analyze all the code at once."
