package slack

import (
	"regexp"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

var (
	htmlBlock   = regexp.MustCompile(`(?i)<(p|br|div|table|ul|ol|li|h[1-6]|strong|em|b|i|a\s[^>]*)\s*/?>`)
	codeSpan    = regexp.MustCompile("(?s)```.*?```|`[^`\n]+`")
	slackToken  = regexp.MustCompile(`<(?:[@#!][^<>\s]+|https?://[^<>\s]+)>`)
	mdLink      = regexp.MustCompile(`\[([^\]\n]+)\]\((https?://[^)\s]+)\)`)
	mdBold      = regexp.MustCompile(`\*\*([^*\n]+)\*\*|__([^_\n]+)__`)
	mdStrike    = regexp.MustCompile(`~~([^~\n]+)~~`)
	mdHeading   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.+?)[ \t#]*$`)
	entityEsc   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	fenceLangRe = regexp.MustCompile("^```[A-Za-z0-9_+-]+\n")
)

// ToMrkdwn converts agent output into Slack mrkdwn. HTML replies are first
// turned into Markdown; Markdown bold, strikethrough, headings and links are
// rewritten to their mrkdwn forms. Code spans are escaped but otherwise left
// alone.
func ToMrkdwn(s string) string {
	if htmlBlock.MatchString(s) {
		if md, err := htmltomarkdown.ConvertString(s); err == nil {
			s = strings.TrimSpace(md)
		}
	}

	var b strings.Builder
	last := 0
	for _, loc := range codeSpan.FindAllStringIndex(s, -1) {
		b.WriteString(convertProse(s[last:loc[0]]))
		b.WriteString(convertCode(s[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(convertProse(s[last:]))
	return b.String()
}

func convertCode(code string) string {
	code = fenceLangRe.ReplaceAllString(code, "```\n")
	return entityEsc.Replace(code)
}

func convertProse(s string) string {
	if s == "" {
		return s
	}
	s = escapeText(s)
	s = mdLink.ReplaceAllString(s, "<$2|$1>")
	s = mdBold.ReplaceAllStringFunc(s, func(m string) string {
		return "*" + m[2:len(m)-2] + "*"
	})
	s = mdStrike.ReplaceAllString(s, "~$1~")
	s = mdHeading.ReplaceAllString(s, "*$1*")
	return s
}

// escapeText escapes the three control characters, leaving existing Slack
// mentions and links untouched.
func escapeText(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range slackToken.FindAllStringIndex(s, -1) {
		b.WriteString(entityEsc.Replace(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(entityEsc.Replace(s[last:]))
	return b.String()
}
