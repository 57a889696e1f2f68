package participant

import (
	"github.com/hupe1980/taskmesh/core"
)

// BuildContext renders the transcript as seen by participant self. The task
// comes first as a user message. Text from other participants is attributed
// by a "speaker: " prefix; the participant's own text is replayed as
// assistant turns. Tool results are private: only the participant that ran
// the tool sees them. window > 0 keeps only that many trailing messages.
func BuildContext(self, task string, log core.LogView, window int) []core.Content {
	var msgs []core.Message
	if log != nil {
		if window > 0 {
			msgs = log.Tail(window)
		} else {
			msgs = log.Messages()
		}
	}

	contents := make([]core.Content, 0, len(msgs)+1)
	contents = append(contents, core.NewTextContent(core.RoleUser, task))

	for _, m := range msgs {
		switch {
		case m.Kind == core.KindToolResult && m.Speaker != self:
			continue
		case m.Kind == core.KindToolResult:
			contents = append(contents, core.NewTextContent(core.RoleUser, "[tool result] "+m.Content))
		case m.Speaker == self:
			contents = append(contents, core.NewTextContent(core.RoleAssistant, m.Content))
		default:
			contents = append(contents, core.NewTextContent(core.RoleUser, m.Speaker+": "+m.Content))
		}
	}

	return contents
}
