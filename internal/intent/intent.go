// Package intent defines the structured intent model and the Ollama client
// that produces intents from natural-language input.
package intent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Intent is the structured inference of what the user wants.
type Intent struct {
	Name        Action         `json:"action"`
	Parameters  map[string]any `json:"parameters"`
	Confidence  float64        `json:"confidence"`
	Description string         `json:"intent"`
}

// Chat builds a conversational intent carrying a canned response.
func Chat(response string, confidence float64) Intent {
	return Intent{
		Name:        ActionChat,
		Parameters:  map[string]any{"response": response},
		Confidence:  confidence,
		Description: "conversation",
	}
}

// modelResponse is the wire shape the model is prompted to emit.
type modelResponse struct {
	Intent     string         `json:"intent"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
	Confidence float64        `json:"confidence"`
}

// ParseModelResponse turns a raw model reply into a validated Intent.
// Malformed JSON falls back to a low-confidence chat intent echoing the raw
// text. Unknown actions are demoted to chat with an explanatory response.
func ParseModelResponse(raw string) Intent {
	trimmed := strings.TrimSpace(raw)

	var mr modelResponse
	if err := json.Unmarshal([]byte(trimmed), &mr); err != nil {
		response := trimmed
		if response == "" {
			response = "I couldn't understand that."
		}
		return Chat(response, 0.3)
	}

	out := Intent{
		Name:        Action(mr.Action),
		Parameters:  mr.Parameters,
		Confidence:  clampConfidence(mr.Confidence),
		Description: mr.Intent,
	}
	if out.Name == "" {
		out.Name = ActionChat
	}
	if out.Parameters == nil {
		out.Parameters = map[string]any{}
	}
	if out.Description == "" {
		out.Description = "unknown"
	}

	if !Known(string(out.Name)) {
		return Intent{
			Name: ActionChat,
			Parameters: map[string]any{
				"response": fmt.Sprintf("I understood your intent (%s) but couldn't map it to a valid action.", out.Description),
			},
			Confidence:  out.Confidence,
			Description: out.Description,
		}
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
