package strategy

import (
	"regexp"
	"strings"
)

var (
	thinkingBlockRe = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
	tasksBlockRe    = regexp.MustCompile(`(?s)<tasks>(.*?)</tasks>`)
	taskLineRe      = regexp.MustCompile(`^-\s*\[( |x|X)\]\s*(.+)$`)
	trailingParenRe = regexp.MustCompile(`\s*[(（][^()（）]*[)）]\s*$`)
)

// parsedTask is one checklist line from a <tasks> block.
type parsedTask struct {
	Name string
	Done bool
}

// parsedTurn is the structured view of one autonomous reply.
type parsedTurn struct {
	Thinking string
	Tasks    []parsedTask
	// HasTasks distinguishes an empty block from a missing one.
	HasTasks bool
	// Body is the reply with the tagged blocks and the completion
	// sentinel removed.
	Body     string
	Complete bool
}

// parseTurn extracts the <thinking> and <tasks> blocks from an
// autonomous reply. Malformed blocks are ignored rather than failing the
// turn: the reply still counts as text.
func parseTurn(content string) parsedTurn {
	turn := parsedTurn{}

	body := content
	if m := thinkingBlockRe.FindStringSubmatch(body); m != nil {
		turn.Thinking = strings.TrimSpace(m[1])
		body = thinkingBlockRe.ReplaceAllString(body, "")
	}
	if m := tasksBlockRe.FindStringSubmatch(body); m != nil {
		turn.HasTasks = true
		turn.Tasks = parseTaskLines(m[1])
		body = tasksBlockRe.ReplaceAllString(body, "")
	}

	if strings.Contains(body, sentinelAnalysisComplete) {
		turn.Complete = true
		body = strings.ReplaceAll(body, sentinelAnalysisComplete, "")
	}
	turn.Body = strings.TrimSpace(body)
	return turn
}

// parseTaskLines reads checklist lines, skipping anything that is not one.
func parseTaskLines(block string) []parsedTask {
	var tasks []parsedTask
	for _, line := range strings.Split(block, "\n") {
		m := taskLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		name := strings.TrimSpace(trailingParenRe.ReplaceAllString(m[2], ""))
		if name == "" {
			continue
		}
		tasks = append(tasks, parsedTask{
			Name: name,
			Done: m[1] == "x" || m[1] == "X",
		})
	}
	return tasks
}
