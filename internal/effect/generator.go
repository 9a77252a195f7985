package effect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Generator is a model provider.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Response, error)
	Provider() string
	DefaultModel() string
}

// OpenAI speaks the OpenAI-compatible chat completions protocol. Most local
// and hosted providers accept it.
type OpenAI struct {
	URL    string
	APIKey string
	Model  string
	Client *http.Client
}

// DefaultOpenAIURL is used when URL is empty.
const DefaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

func (o *OpenAI) Provider() string     { return "openai" }
func (o *OpenAI) DefaultModel() string { return o.Model }

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Generator.
func (o *OpenAI) Generate(ctx context.Context, req GenerateRequest) (Response, error) {
	body, err := json.Marshal(buildChatRequest(req))
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	url := o.URL
	if url == "" {
		url = DefaultOpenAIURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.APIKey)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read generation response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Response{}, fmt.Errorf("provider returned %d: invalid JSON: %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return Response{}, fmt.Errorf("provider error (%d): %s", resp.StatusCode, parsed.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return Response{}, fmt.Errorf("provider returned no choices")
	}

	msg := parsed.Choices[0].Message
	out := Response{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		call := ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &call.Arguments); err != nil {
				return Response{}, fmt.Errorf("tool call %s: arguments are not a JSON object: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out, nil
}

func buildChatRequest(req GenerateRequest) chatRequest {
	cr := chatRequest{Model: req.Model}
	if req.System != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.History {
		msg := chatMessage{
			Role:       m.Role,
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var call chatToolCall
			call.ID = tc.ID
			call.Type = "function"
			call.Function.Name = tc.Name
			args, _ := json.Marshal(tc.Arguments)
			call.Function.Arguments = string(args)
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		cr.Messages = append(cr.Messages, msg)
	}
	if req.Prompt != "" {
		cr.Messages = append(cr.Messages, chatMessage{Role: "user", Content: req.Prompt})
	}
	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return cr
}
