package logging

import (
	"regexp"
	"unicode/utf8"
)

var (
	bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`)

	// GitHub classic/fine-grained and GitLab personal access tokens
	githubTokenPattern = regexp.MustCompile(`\b(gh[pousr]_|github_pat_)[A-Za-z0-9_]{10,}`)
	gitlabTokenPattern = regexp.MustCompile(`\bglpat-[A-Za-z0-9\-_]{10,}`)

	apiKeyParamPattern = regexp.MustCompile(`(?i)([?&](?:api_key|access_token|token)=)[^&\s"]+`)

	dbPasswordPattern = regexp.MustCompile(`://([^:/@\s]+):([^@\s]+)@`)
)

// SanitizeError returns err's message with credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error())
}

// SanitizeString masks credentials in an arbitrary message.
func SanitizeString(msg string) string {
	msg = bearerPattern.ReplaceAllString(msg, "${1}****")
	msg = githubTokenPattern.ReplaceAllString(msg, "${1}****")
	msg = gitlabTokenPattern.ReplaceAllString(msg, "glpat-****")
	msg = apiKeyParamPattern.ReplaceAllString(msg, "${1}****")
	msg = dbPasswordPattern.ReplaceAllString(msg, "://$1:****@")
	return msg
}

// Truncate shortens msg to at most max bytes without splitting a rune.
func Truncate(msg string, max int) string {
	if max <= 0 || len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
