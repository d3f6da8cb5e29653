// Package mcpserver exposes the human-in-the-loop tool set over MCP stdio.
// Each tool handler builds a request envelope, asks the human through the
// dispatcher, and reports the outcome as a JSON payload.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"parley/internal/envelope"
)

// toolNames lists every interactive tool the server registers, in
// registration order. health_check reports this set.
var toolNames = []string{
	"get_user_input",
	"get_user_choice",
	"get_multiline_input",
	"show_confirmation_dialog",
	"show_info_message",
}

// promptName is the MCP prompt that teaches a model when and how to use the
// interactive tools.
const promptName = "get_human_loop_prompt"

// Asker is the call boundary tool handlers use to reach the human.
type Asker interface {
	Ask(ctx context.Context, req envelope.Request) (envelope.Result, error)
}

// Server wires the tool set onto an MCP stdio server.
type Server struct {
	asker    Asker
	strategy string
	logger   *slog.Logger
	mcp      *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithStrategy records which presentation strategy is active, for
// health_check reporting.
func WithStrategy(strategy string) Option {
	return func(s *Server) { s.strategy = strategy }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server backed by the given Asker.
func New(asker Asker, version string, opts ...Option) *Server {
	s := &Server{
		asker:    asker,
		strategy: "thread",
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"parley",
		version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
	)
	s.registerTools()
	s.registerPrompts()
	return s
}

// Serve runs the MCP server on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("get_user_input",
		mcp.WithDescription("Ask the user to enter text, an integer, or a float in an interactive prompt"),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt/question to show to the user"),
		),
		mcp.WithString("title",
			mcp.Description("Title of the input prompt"),
		),
		mcp.WithString("default_value",
			mcp.Description("Default value to pre-fill in the input field"),
		),
		mcp.WithString("input_type",
			mcp.Description("Type of input expected: text, integer, or float"),
		),
	), s.handleGetUserInput)

	s.mcp.AddTool(mcp.NewTool("get_user_choice",
		mcp.WithDescription("Ask the user to select from a list of choices"),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt/question to show to the user"),
		),
		mcp.WithArray("choices",
			mcp.Required(),
			mcp.Description("List of choices to present to the user"),
		),
		mcp.WithString("title",
			mcp.Description("Title of the choice prompt"),
		),
		mcp.WithBoolean("allow_multiple",
			mcp.Description("Whether the user can select multiple choices"),
		),
	), s.handleGetUserChoice)

	s.mcp.AddTool(mcp.NewTool("get_multiline_input",
		mcp.WithDescription("Ask the user for longer, multi-line text content"),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The prompt/question to show to the user"),
		),
		mcp.WithString("title",
			mcp.Description("Title of the input prompt"),
		),
		mcp.WithString("default_value",
			mcp.Description("Default text to pre-fill in the text area"),
		),
	), s.handleGetMultilineInput)

	s.mcp.AddTool(mcp.NewTool("show_confirmation_dialog",
		mcp.WithDescription("Ask the user to confirm an action with Yes/No"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The message to show to the user"),
		),
		mcp.WithString("title",
			mcp.Description("Title of the confirmation prompt"),
		),
	), s.handleShowConfirmation)

	s.mcp.AddTool(mcp.NewTool("show_info_message",
		mcp.WithDescription("Show an informational message the user acknowledges with OK"),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The information message to show to the user"),
		),
		mcp.WithString("title",
			mcp.Description("Title of the information prompt"),
		),
	), s.handleShowInfo)

	s.mcp.AddTool(mcp.NewTool("health_check",
		mcp.WithDescription("Check whether the server is running and which presentation strategy is active"),
	), s.handleHealthCheck)
}

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt(promptName,
		mcp.WithPromptDescription("Guidance on when and how to use the human-in-the-loop tools"),
	), s.handleHumanLoopPrompt)
}

const humanLoopGuidance = `# Working with a human in the loop

These tools pause you and ask the person at the terminal. Use them when you
are missing information only the human has, when a decision is theirs to
make, or before an action that is hard to undo.

## Tools

- get_user_input: one line of text, an integer, or a float. Set input_type
  to "integer" or "float" when you need a number.
- get_user_choice: pick from options you provide. Set allow_multiple when
  more than one answer is valid.
- get_multiline_input: longer free-form text such as descriptions or code.
- show_confirmation_dialog: a Yes/No question. Ask before destructive or
  irreversible actions.
- show_info_message: tell the human something important and wait for an
  acknowledgement.

## Deciding

Prefer asking over guessing when requirements are ambiguous, when multiple
reasonable interpretations exist, or when the cost of a wrong assumption is
high. Do not ask for things you can determine yourself.

## Handling answers

Every response reports whether it succeeded and whether the human cancelled.
A cancellation means the human declined to answer; respect it rather than
immediately re-asking. Humans take time, so a slow answer is normal.`

func (s *Server) handleHumanLoopPrompt(_ context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return mcp.NewGetPromptResult(
		"How to use the human-in-the-loop tools",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleAssistant, mcp.NewTextContent(humanLoopGuidance)),
		},
	), nil
}

// inputArgs covers get_user_input and get_multiline_input.
type inputArgs struct {
	Title        string `json:"title"`
	Prompt       string `json:"prompt"`
	DefaultValue string `json:"default_value"`
	InputType    string `json:"input_type"`
}

type choiceArgs struct {
	Title         string   `json:"title"`
	Prompt        string   `json:"prompt"`
	Choices       []string `json:"choices"`
	AllowMultiple bool     `json:"allow_multiple"`
}

type messageArgs struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (s *Server) handleGetUserInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args inputArgs
	if err := parseArgs(req, &args); err != nil {
		return nil, err
	}

	params := map[string]any{"prompt": args.Prompt}
	if args.Title != "" {
		params["title"] = args.Title
	}
	if args.DefaultValue != "" {
		params["default_value"] = args.DefaultValue
	}
	if args.InputType != "" {
		params["input_type"] = args.InputType
	}

	env, err := envelope.New(envelope.KindInput, params)
	if err != nil {
		return errorResult(err)
	}
	inputType := env.InputType()

	res, err := s.asker.Ask(ctx, env)
	if err != nil {
		return errorResult(err)
	}
	switch {
	case res.Failure != nil:
		return failureResult(res.Failure)
	case res.Cancelled:
		return textResult(map[string]any{
			"success":    false,
			"user_input": nil,
			"input_type": inputType,
			"cancelled":  true,
		})
	default:
		return textResult(map[string]any{
			"success":    true,
			"user_input": res.Value,
			"input_type": inputType,
			"cancelled":  false,
		})
	}
}

func (s *Server) handleGetUserChoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args choiceArgs
	if err := parseArgs(req, &args); err != nil {
		return nil, err
	}

	params := map[string]any{"prompt": args.Prompt}
	if args.Choices != nil {
		params["choices"] = args.Choices
	}
	if args.Title != "" {
		params["title"] = args.Title
	}
	if args.AllowMultiple {
		params["allow_multiple"] = true
	}

	env, err := envelope.New(envelope.KindChoice, params)
	if err != nil {
		return errorResult(err)
	}

	res, err := s.asker.Ask(ctx, env)
	if err != nil {
		return errorResult(err)
	}
	switch {
	case res.Failure != nil:
		return failureResult(res.Failure)
	case res.Cancelled:
		return textResult(map[string]any{
			"success":          false,
			"selected_choice":  nil,
			"selected_choices": []string{},
			"allow_multiple":   args.AllowMultiple,
			"cancelled":        true,
		})
	default:
		selected := []string{}
		switch v := res.Value.(type) {
		case string:
			selected = []string{v}
		case []string:
			selected = v
		}
		return textResult(map[string]any{
			"success":          true,
			"selected_choice":  res.Value,
			"selected_choices": selected,
			"allow_multiple":   args.AllowMultiple,
			"cancelled":        false,
		})
	}
}

func (s *Server) handleGetMultilineInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args inputArgs
	if err := parseArgs(req, &args); err != nil {
		return nil, err
	}

	params := map[string]any{"prompt": args.Prompt}
	if args.Title != "" {
		params["title"] = args.Title
	}
	if args.DefaultValue != "" {
		params["default_value"] = args.DefaultValue
	}

	env, err := envelope.New(envelope.KindMultiline, params)
	if err != nil {
		return errorResult(err)
	}

	res, err := s.asker.Ask(ctx, env)
	if err != nil {
		return errorResult(err)
	}
	switch {
	case res.Failure != nil:
		return failureResult(res.Failure)
	case res.Cancelled:
		return textResult(map[string]any{
			"success":    false,
			"user_input": nil,
			"cancelled":  true,
		})
	default:
		text, _ := res.Value.(string)
		return textResult(map[string]any{
			"success":         true,
			"user_input":      text,
			"character_count": len(text),
			"line_count":      len(strings.Split(text, "\n")),
			"cancelled":       false,
		})
	}
}

func (s *Server) handleShowConfirmation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args messageArgs
	if err := parseArgs(req, &args); err != nil {
		return nil, err
	}

	params := map[string]any{"message": args.Message}
	if args.Title != "" {
		params["title"] = args.Title
	}

	env, err := envelope.New(envelope.KindConfirmation, params)
	if err != nil {
		return errorResult(err)
	}

	res, err := s.asker.Ask(ctx, env)
	if err != nil {
		return errorResult(err)
	}
	switch {
	case res.Failure != nil:
		return failureResult(res.Failure)
	case res.Cancelled:
		// Dismissing the prompt is neither yes nor no.
		return textResult(map[string]any{
			"success":   false,
			"confirmed": false,
			"cancelled": true,
		})
	default:
		confirmed, _ := res.Value.(bool)
		response := "no"
		if confirmed {
			response = "yes"
		}
		return textResult(map[string]any{
			"success":   true,
			"confirmed": confirmed,
			"response":  response,
			"cancelled": false,
		})
	}
}

func (s *Server) handleShowInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args messageArgs
	if err := parseArgs(req, &args); err != nil {
		return nil, err
	}

	params := map[string]any{"message": args.Message}
	if args.Title != "" {
		params["title"] = args.Title
	}

	env, err := envelope.New(envelope.KindInfo, params)
	if err != nil {
		return errorResult(err)
	}

	res, err := s.asker.Ask(ctx, env)
	if err != nil {
		return errorResult(err)
	}
	switch {
	case res.Failure != nil:
		return failureResult(res.Failure)
	case res.Cancelled:
		return textResult(map[string]any{
			"success":      false,
			"acknowledged": false,
			"cancelled":    true,
		})
	default:
		return textResult(map[string]any{
			"success":      true,
			"acknowledged": true,
			"cancelled":    false,
		})
	}
}

func (s *Server) handleHealthCheck(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	available := make([]string, 0, len(toolNames)+1)
	available = append(available, toolNames...)
	available = append(available, promptName)
	return textResult(map[string]any{
		"status":          "healthy",
		"server_name":     "parley",
		"strategy":        s.strategy,
		"tools_available": available,
	})
}

// parseArgs unmarshals the tool call arguments into a typed struct.
func parseArgs(req mcp.CallToolRequest, out any) error {
	data, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse arguments: %w", err)
	}
	return nil
}

func textResult(payload map[string]any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal output: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports a failure to produce any outcome, such as a malformed
// request or a cancelled caller context.
func errorResult(err error) (*mcp.CallToolResult, error) {
	return textResult(map[string]any{
		"success":   false,
		"error":     err.Error(),
		"cancelled": false,
	})
}

// failureResult reports a structured presentation, transport, startup, or
// timeout failure. These are never cancellations.
func failureResult(f *envelope.Failure) (*mcp.CallToolResult, error) {
	return textResult(map[string]any{
		"success":      false,
		"error":        f.Message,
		"failure_kind": string(f.Kind),
		"cancelled":    false,
	})
}
