package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
)

const guardedTask = "Explain the information above to the user using ONLY the data."

// BuildGuarded builds the prompt pair for a guarded completion. The user's words are not
// part of it; the model only sees the selected intent and its data.
func (pb *PromptBuilder) BuildGuarded(intentID string, data any, _ string) (domain.Prompt, error) {
	dataJSON, err := encodeData(data)
	if err != nil {
		return domain.Prompt{}, fmt.Errorf("encode prompt data for %s: %w", intentID, err)
	}

	systemData := GuardedSystemData{RefusalPhrase: constants.GuardConfig.RefusalPhrase}
	system, err := pb.Render(TemplateGuardedSystem, systemData)
	if err != nil {
		system = FallbackGuardedSystem(systemData)
	}

	userData := GuardedUserData{IntentID: intentID, DataJSON: dataJSON, Task: guardedTask}
	user, err := pb.Render(TemplateGuardedUser, userData)
	if err != nil {
		user = FallbackGuardedUser(userData)
	}

	return domain.Prompt{System: system, User: user}, nil
}

// encodeData renders data as two-space indented JSON. Map keys come out sorted, so the
// same data always yields the same prompt.
func encodeData(data any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
