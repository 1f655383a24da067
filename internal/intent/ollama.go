package intent

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const systemPrompt = `You are Valet, a secure personal assistant running on the user's machine.
You interpret natural language commands and respond with ONLY a valid JSON object:
{
    "intent": "brief description of what the user wants",
    "action": "one of the allowed actions listed below",
    "parameters": { ... action-specific parameters ... },
    "confidence": 0.0 to 1.0
}

ALLOWED ACTIONS and their parameters:
 1. "read_file"     {"file_path": "..."}
 2. "write_file"    {"file_path": "...", "content": "..."}
 3. "delete_file"   {"file_path": "..."}
 4. "list_files"    {"directory": "..."}
 5. "search_files"  {"query": "...", "directory": "..."}
 6. "send_file"     {"file_path": "..."}
 7. "screenshot"    {}
 8. "open_app"      {"app_name": "..."}
 9. "run_command"   {"command": "..."}
10. "run_script"    {"script_name": "..."}
11. "kill_process"  {"process_name": "..."}
12. "lock"          {}
13. "volume"        {"level": "0-100"}
14. "power"         {"mode": "shutdown|reboot|suspend"}
15. "system_info"   {}
16. "send_message"  {"recipient": "...", "message": "..."}
17. "save_note"     {"title": "...", "content": "..."}
18. "get_notes"     {}
19. "clear_history" {}
20. "status"        {}
21. "help"          {}
22. "chat"          {"response": "your conversational reply"}

RULES:
- Respond with ONLY the JSON object, no extra text.
- Use "chat" for general conversation.
- If you are unsure what the user wants, set confidence below 0.5 and use "chat".
- Requests outside the allowed actions become "chat" with low confidence.`

// Turn is one prior exchange fed back to the model as context.
type Turn struct {
	Role    string
	Content string
}

// OllamaClient queries a local Ollama instance for structured intents.
type OllamaClient struct {
	BaseURL string
	Model   string
	client  *http.Client
}

// NewOllamaClient creates a client for the given Ollama endpoint.
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
	Images  []string       `json:"images,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Query sends a user message (plus optional history and image) to Ollama and
// returns the parsed intent. Transport failures degrade to a zero-confidence
// chat intent rather than an error so the router can still respond.
func (c *OllamaClient) Query(ctx context.Context, message string, history []Turn, image []byte) Intent {
	prompt := buildPrompt(message, history)

	req := generateRequest{
		Model:  c.Model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: false,
		Format: "json",
		Options: map[string]any{
			// Low temperature for consistent structured output.
			"temperature": 0.1,
		},
	}
	if len(image) > 0 {
		req.Images = []string{base64.StdEncoding.EncodeToString(image)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Chat(fmt.Sprintf("model request error: %v", err), 0)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Chat(fmt.Sprintf("model request error: %v", err), 0)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Chat("Cannot reach the model service. Is Ollama running? Start it with: ollama serve", 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return Chat(fmt.Sprintf("model service status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))), 0)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Chat(fmt.Sprintf("model read error: %v", err), 0)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return Chat(fmt.Sprintf("model decode error: %v", err), 0)
	}
	return ParseModelResponse(gr.Response)
}

// Status reports whether Ollama is reachable.
func (c *OllamaClient) Status(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	probe := &http.Client{Timeout: 5 * time.Second}
	resp, err := probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func buildPrompt(message string, history []Turn) string {
	if len(history) == 0 {
		return message
	}
	// Only the most recent turns carry useful context.
	const maxTurns = 6
	if len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	var b strings.Builder
	b.WriteString("Recent conversation context:\n")
	for _, t := range history {
		role := "User"
		if t.Role == "assistant" {
			role = "Valet"
		}
		content := t.Content
		if len(content) > 300 {
			cut := 300
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut]
		}
		fmt.Fprintf(&b, "%s: %s\n", role, content)
	}
	b.WriteString("\nCurrent request:\n")
	b.WriteString(message)
	return b.String()
}
