package collab

import "regexp"

var (
	secretPattern        = regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)\s*(?::=|[:=])\s*["'][A-Za-z0-9/+=_-]{8,}["']`)
	pathTraversalPattern = regexp.MustCompile(`\.\./`)
	shellPattern         = regexp.MustCompile(`(?i)exec\.Command\(\s*"(sh|bash|/bin/sh)"`)
)

func containsSecretPattern(s string) bool { return secretPattern.MatchString(s) }
func containsPathTraversal(s string) bool { return pathTraversalPattern.MatchString(s) }
func containsUncheckedShell(s string) bool { return shellPattern.MatchString(s) }
