package agent

import (
	"regexp"
	"strings"
)

// mentionDetector finds references to the bot inside message text, covering
// both the bare name and the @name form WhatsApp produces for mentions.
type mentionDetector struct {
	pattern *regexp.Regexp
}

func newMentionDetector(botName string, extraTriggers []string) *mentionDetector {
	names := []string{strings.ToLower(strings.TrimSpace(botName))}
	for _, t := range extraTriggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			names = append(names, t)
		}
	}

	escaped := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		escaped = append(escaped, regexp.QuoteMeta(n))
	}
	if len(escaped) == 0 {
		return &mentionDetector{}
	}
	expr := `(?i)(^|\W)@?(` + strings.Join(escaped, "|") + `)($|\W)`
	return &mentionDetector{pattern: regexp.MustCompile(expr)}
}

func (d *mentionDetector) isMentioned(text string) bool {
	if d.pattern == nil || text == "" {
		return false
	}
	return d.pattern.MatchString(text)
}
