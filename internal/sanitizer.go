package internal

import (
	"regexp"
	"strings"
)

// Native transcripts interleave harness-injected markup into message text.
// These spans must not be persisted as visible content or fed into
// summarization.
var injectedSpanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<caveat>.*?</caveat>`),
	regexp.MustCompile(`(?is)<system-reminder>.*?</system-reminder>`),
	regexp.MustCompile(`(?is)<local-command-stdout>.*?</local-command-stdout>`),
}

// SanitizeText removes harness-injected spans from raw transcript text and
// trims surrounding whitespace. Content outside matched spans is left intact;
// fully-tagged input yields the empty string.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	for _, re := range injectedSpanPatterns {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CollapseWhitespace sanitizes text and collapses internal whitespace runs to
// single spaces. Used when deriving titles and summaries.
func CollapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(SanitizeText(text), " "))
}
