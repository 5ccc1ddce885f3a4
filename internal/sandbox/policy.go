package sandbox

import "regexp"

// denyRule pairs a command pattern with a human-readable rejection reason.
type denyRule struct {
	pattern *regexp.Regexp
	reason  string
}

// denyList blocks command shapes that are destructive regardless of intent.
// Checked before execution; a match never spawns a subprocess.
var denyList = []denyRule{
	{regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:`), "fork bomb"},
	{regexp.MustCompile(`(?i)(^|;|&&|\|\|)\s*rm\s+-rf\s+/(\s|$)`), "recursive root deletion"},
	{regexp.MustCompile(`(?i)rm\s+-rf\s+/\s*\*`), "wildcard root deletion"},
	{regexp.MustCompile(`(?i)>\s*/dev/null.*rm.*-rf`), "masked deletion"},
	{regexp.MustCompile(`(?i)sudo\s+rm\s+-rf`), "sudo recursive deletion"},
	{regexp.MustCompile(`(?i)dd\s+if=\S+\s+of=/dev/[sh]d`), "disk destruction"},
	{regexp.MustCompile(`(?i)mkfs\.\w+\s+/dev/[sh]d`), "filesystem destruction"},
	{regexp.MustCompile(`(?i)>\s*/dev/[sh]d[a-z]?\b`), "direct disk write"},
	{regexp.MustCompile(`(?i)curl\s+.*\|\s*(ba|z|da)?sh`), "pipe to shell"},
	{regexp.MustCompile(`(?i)wget\s+.*\|\s*(ba|z|da)?sh`), "pipe to shell"},
	{regexp.MustCompile(`(?i)bash\s+-c\s+.*\$\(`), "command substitution"},
	{regexp.MustCompile(`(?i)eval\s*\$`), "eval with variable"},
}

// checkDenyList returns the rejection reason for a blocked command.
func checkDenyList(cmd string) (string, bool) {
	for _, rule := range denyList {
		if rule.pattern.MatchString(cmd) {
			return rule.reason, true
		}
	}
	return "", false
}
