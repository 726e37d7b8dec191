package scrape

import "regexp"

// emojiRe matches runs of unicode emoji: emoticons, symbols and pictographs,
// transport, flags, plus the dingbat and enclosed-character ranges. A
// contiguous run counts as one match.
var emojiRe = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}]+`)

// shortcodeRe matches GitHub-style :emoji: shortcodes.
var shortcodeRe = regexp.MustCompile(`:[a-z0-9_+-]+:`)

// CountEmojis sums unicode-emoji runs and shortcode matches across all texts.
func CountEmojis(texts []string) int {
	total := 0
	for _, t := range texts {
		total += len(emojiRe.FindAllString(t, -1))
		total += len(shortcodeRe.FindAllString(t, -1))
	}
	return total
}
