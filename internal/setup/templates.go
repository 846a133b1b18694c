package setup

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pritzvi/linked-out/internal/faults"
)

// TemplateLimit is the maximum length of a connection note, in characters.
const TemplateLimit = 300

// ValidateTemplates checks every template against TemplateLimit and rejects
// blank templates. The first offending index is reported.
func ValidateTemplates(templates []string) error {
	if len(templates) == 0 {
		return faults.ErrEmptyTemplate
	}
	for i, t := range templates {
		if strings.TrimSpace(t) == "" {
			return &faults.Error{Kind: faults.KindValidation, Code: faults.ErrEmptyTemplate.Code,
				Msg: "template " + strconv.Itoa(i) + " is empty"}
		}
		if n := utf8.RuneCountInString(t); n > TemplateLimit {
			return &faults.TemplateTooLongError{Index: i, Length: n, Limit: TemplateLimit}
		}
	}
	return nil
}

// FormatTemplates renders templates as the numbered block handed to the
// worker's message generator.
func FormatTemplates(templates []string) string {
	var sb strings.Builder
	sb.WriteString("<MESSAGE TEMPLATES>\n")
	n := 0
	for _, t := range templates {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		n++
		sb.WriteString(strconv.Itoa(n))
		sb.WriteString(". ")
		sb.WriteString(t)
		sb.WriteString("\n")
	}
	sb.WriteString("</MESSAGE TEMPLATES>")
	return sb.String()
}

// FormatSummary frames the resume summary for the note generator. The
// summary speaks for the sender only.
func FormatSummary(summary string) string {
	return "<CV SUMMARY>\n" + strings.TrimSpace(summary) + "\n</CV SUMMARY>"
}

// SplitList splits comma separated form input, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
