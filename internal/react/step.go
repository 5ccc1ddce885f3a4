package react

import (
	"regexp"
	"strings"
)

// Tool names accepted in ACTION markers.
const (
	ToolRunCommand = "run-command"
	ToolReadFile   = "read-file"
	ToolWriteFile  = "write-file"
	ToolSearch     = "search"
)

// Action is a validated tool invocation requested by the model.
type Action struct {
	Tool string            `json:"tool"`
	Args map[string]string `json:"args"`
}

// Step is a single unit of the reason→act→observe loop. A step with an
// Answer is terminal for its loop.
type Step struct {
	Thought     string  `json:"thought"`
	Action      *Action `json:"action,omitempty"`
	Observation string  `json:"observation,omitempty"`
	Answer      string  `json:"answer,omitempty"`
}

var (
	thoughtRe = regexp.MustCompile(`(?s)THOUGHT:\s*(.+?)\s*(?:ACTION:|ANSWER:|$)`)
	actionRe  = regexp.MustCompile(`(?s)ACTION:\s*([\w-]+)\((.+?)\)`)
	answerRe  = regexp.MustCompile(`(?s)ANSWER:\s*(.+)$`)

	writeArgsDouble = regexp.MustCompile(`(?s)^"([^"]+)"\s*,\s*"(.*)"$`)
	writeArgsSingle = regexp.MustCompile(`(?s)^'([^']+)'\s*,\s*'(.*)'$`)
)

// ParseStep scans a raw model response for the THOUGHT / ACTION / ANSWER
// markers. Parsing is tolerant: a response without any recognizable marker
// yields an empty step, never an error. Malformed actions are dropped rather
// than coerced, so the loop sees a step with no action.
func ParseStep(text string) Step {
	step := Step{}

	if m := thoughtRe.FindStringSubmatch(text); m != nil {
		step.Thought = strings.TrimSpace(m[1])
	}

	if m := actionRe.FindStringSubmatch(text); m != nil {
		tool := m[1]
		if args, ok := parseActionArgs(tool, strings.TrimSpace(m[2])); ok {
			step.Action = &Action{Tool: tool, Args: args}
		}
	}

	if m := answerRe.FindStringSubmatch(text); m != nil {
		step.Answer = strings.TrimSpace(m[1])
	}

	return step
}

// parseActionArgs splits the raw argument text per tool. It reports false
// for unknown tools or argument shapes that do not fit the tool.
func parseActionArgs(tool, raw string) (map[string]string, bool) {
	args := make(map[string]string)

	switch tool {
	case ToolRunCommand:
		cmd := strings.Trim(raw, `"'`)
		if cmd == "" {
			return nil, false
		}
		args["cmd"] = cmd

	case ToolReadFile:
		path := strings.Trim(raw, `"'`)
		if path == "" {
			return nil, false
		}
		args["path"] = path

	case ToolWriteFile:
		m := writeArgsDouble.FindStringSubmatch(raw)
		if m == nil {
			m = writeArgsSingle.FindStringSubmatch(raw)
		}
		if m == nil {
			return nil, false
		}
		args["path"] = m[1]
		args["content"] = m[2]

	case ToolSearch:
		parts := strings.SplitN(raw, ",", 2)
		pattern := strings.Trim(strings.TrimSpace(parts[0]), `"'`)
		if pattern == "" {
			return nil, false
		}
		args["pattern"] = pattern
		if len(parts) > 1 {
			args["path"] = strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		} else {
			args["path"] = "."
		}

	default:
		return nil, false
	}

	return args, true
}
