package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/farbodahm/sqldash/placeholder"
	"github.com/farbodahm/sqldash/warehouse"
)

const maxToolIterations = 20

// ToolExecutor holds callbacks bound to the active connection.
// Injected from the app so the ai package never opens connections itself.
type ToolExecutor struct {
	Schema func(ctx context.Context) (*placeholder.SchemaIndex, error)
	RunSQL func(ctx context.Context, sql string) (*warehouse.Result, error)
}

// StatusFunc is called to update the UI status label.
type StatusFunc func(text string)

// ToolCallInfo describes a tool invocation for the UI.
type ToolCallInfo struct {
	Name    string
	Input   string // human-readable summary
	FullSQL string // full SQL text for run_sql_query calls (empty for other tools)
}

// ToolCallNotifyFunc is called after each tool execution to update the UI.
type ToolCallNotifyFunc func(info ToolCallInfo, result string, isError bool)

// ChatWithToolsResult holds the return values from ChatWithTools.
type ChatWithToolsResult struct {
	Response string // final text response
	LastSQL  string // last SQL executed via run_sql_query (empty if none)
}

func toolDefinitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{OfTool: &anthropic.ToolParam{
			Name:        "get_schema",
			Description: anthropic.String("Get every table of the active connection with its columns, one table per line as 'table: col1, col2'."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "list_tables",
			Description: anthropic.String("List the table names of the active connection."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "get_table_columns",
			Description: anthropic.String("List the columns of one table in the active connection."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"table": map[string]any{"type": "string", "description": "Table name"},
				},
				Required: []string{"table"},
			},
		}},
		{OfTool: &anthropic.ToolParam{
			Name:        "run_sql_query",
			Description: anthropic.String("Run a SQL query against the active connection and return the rows as tab-separated text. ${table} and ${table.column} placeholders are resolved first, and the result is limited to a few rows."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]any{
					"sql": map[string]any{"type": "string", "description": "The SQL query to execute"},
				},
				Required: []string{"sql"},
			},
		}},
	}
}

// ChatWithTools sends the conversation with tool use enabled and runs the
// tool loop until a final text response arrives.
func (c *Client) ChatWithTools(
	ctx context.Context,
	systemPrompt string,
	history []Message,
	executor ToolExecutor,
	onStatus StatusFunc,
	onToolCall ToolCallNotifyFunc,
) (*ChatWithToolsResult, error) {
	log := c.log.WithValues("model", c.model)
	if onStatus == nil {
		onStatus = func(string) {}
	}

	messages := convertMessages(history)
	tools := toolDefinitions()
	var lastSQL string

	for i := range maxToolIterations {
		onStatus(fmt.Sprintf("Sending to Claude (turn %d)...", i+1))

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: 4096,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    tools,
		}

		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("claude API error: %w", err)
		}

		log.V(1).Info("response", "stop_reason", resp.StopReason, "blocks", len(resp.Content))

		if resp.StopReason != anthropic.StopReasonToolUse {
			var text string
			for _, block := range resp.Content {
				if block.Type == "text" {
					text += block.Text
				}
			}
			return &ChatWithToolsResult{Response: text, LastSQL: lastSQL}, nil
		}

		var assistantBlocks []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(block.Text))
			case "tool_use":
				assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(block.ID, block.Input, block.Name))
			}
		}
		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))

		var toolResults []anthropic.ContentBlockParamUnion
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}

			var fullSQL string
			if block.Name == "run_sql_query" {
				var input struct {
					SQL string `json:"sql"`
				}
				if err := json.Unmarshal(block.Input, &input); err == nil {
					fullSQL = input.SQL
					lastSQL = input.SQL
				}
			}

			log.Info("executing tool", "tool", block.Name, "id", block.ID)
			onStatus(fmt.Sprintf("Running tool: %s...", block.Name))

			result, isError := executeTool(ctx, block.Name, block.Input, executor)
			if isError {
				log.Info("tool failed", "tool", block.Name, "result", truncateResult(result, 200))
			}

			if onToolCall != nil {
				info := ToolCallInfo{
					Name:    block.Name,
					Input:   summarizeInput(block.Name, block.Input),
					FullSQL: fullSQL,
				}
				onToolCall(info, truncateResult(result, 200), isError)
			}

			toolResults = append(toolResults, anthropic.NewToolResultBlock(block.ID, result, isError))
		}

		messages = append(messages, anthropic.NewUserMessage(toolResults...))
	}

	return nil, fmt.Errorf("tool use loop exceeded %d iterations", maxToolIterations)
}

var errNoConnection = errors.New("no active connection")

// executeTool dispatches a tool call to the matching executor callback.
func executeTool(ctx context.Context, name string, rawInput json.RawMessage, executor ToolExecutor) (result string, isError bool) {
	switch name {
	case "get_schema", "list_tables", "get_table_columns":
		var input struct {
			Table string `json:"table"`
		}
		if err := json.Unmarshal(rawInput, &input); err != nil {
			return fmt.Sprintf("invalid input: %v", err), true
		}
		if executor.Schema == nil {
			return fmt.Sprintf("error: %v", errNoConnection), true
		}
		idx, err := executor.Schema(ctx)
		if err != nil {
			return fmt.Sprintf("error: %v", err), true
		}
		switch name {
		case "get_schema":
			return formatSchema(idx), false
		case "list_tables":
			return strings.Join(idx.TableNames(), "\n"), false
		}
		if !slices.Contains(idx.TableNames(), input.Table) {
			return fmt.Sprintf("unknown table: %s", input.Table), true
		}
		return strings.Join(idx.Columns(input.Table), "\n"), false

	case "run_sql_query":
		var input struct {
			SQL string `json:"sql"`
		}
		if err := json.Unmarshal(rawInput, &input); err != nil {
			return fmt.Sprintf("invalid input: %v", err), true
		}
		if executor.RunSQL == nil {
			return fmt.Sprintf("error: %v", errNoConnection), true
		}
		res, err := executor.RunSQL(ctx, input.SQL)
		if err != nil {
			return fmt.Sprintf("error: %v", err), true
		}
		return formatResult(res), false

	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}

// summarizeInput returns a short human-readable summary of tool input.
func summarizeInput(name string, rawInput json.RawMessage) string {
	var m map[string]string
	if err := json.Unmarshal(rawInput, &m); err != nil {
		return "(invalid input)"
	}
	switch name {
	case "get_table_columns":
		return m["table"]
	case "run_sql_query":
		sql := m["sql"]
		if len(sql) > 80 {
			sql = sql[:80] + "..."
		}
		return sql
	case "get_schema", "list_tables":
		return "all tables"
	default:
		return name
	}
}

// truncateResult shortens a string for UI display.
func truncateResult(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
