package agent

import (
	"github.com/bashclaw/bashclaw/internal/providers"
)

// BuildMessages loads sessionFile's history projected to {role,
// content} (dropping the header), takes the last maxHistory entries,
// and appends the new user turn (§4.F).
func (e *Engine) BuildMessages(sessionFile, newUserMessage string, maxHistory int) ([]providers.Message, error) {
	history, err := e.Sessions.LoadAsMessages(sessionFile, maxHistory)
	if err != nil {
		return nil, err
	}
	msgs := make([]providers.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, providers.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, providers.Message{Role: "user", Content: newUserMessage})
	return msgs, nil
}
