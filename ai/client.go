// Package ai drives the report-writing assistant: an Anthropic Messages
// client with a tool loop bound to the active connection.
package ai

import (
	"errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/go-logr/logr"
)

const DefaultModel = "claude-sonnet-4-5-20250929"

type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

type Client struct {
	client anthropic.Client
	model  string
	log    logr.Logger
}

// New creates a Client reading the API key from the ANTHROPIC_API_KEY env var.
// An empty model selects DefaultModel.
func New(model string, log logr.Logger) (*Client, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable is not set")
	}
	return NewWithKey(key, model, log), nil
}

// NewWithKey creates a Client with the given API key. Extra request options
// follow the key, which lets tests point the client at a local server.
func NewWithKey(apiKey, model string, log logr.Logger, opts ...option.RequestOption) *Client {
	if model == "" || model == "default" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Client{
		client: anthropic.NewClient(opts...),
		model:  model,
		log:    log,
	}
}

func (c *Client) Model() string {
	return c.model
}

func convertMessages(msgs []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case "assistant":
			params[i] = anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content))
		default:
			params[i] = anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content))
		}
	}
	return params
}
