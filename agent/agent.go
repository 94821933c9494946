// Native tool-calling loop implementation.
//
// The model is offered the agent's tools as function definitions. Each
// reply either requests tool calls, which are executed and fed back, or
// is the final answer.
//
// Information Hiding:
// - Loop internals hidden
// - LLM communication hidden
// - Tool execution coordination hidden

package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/richinex/ghscout/llm"
	"github.com/richinex/ghscout/model"
	"github.com/richinex/ghscout/tools"
)

// emptyAnswer is reported when the model ends the run without text.
const emptyAnswer = "model returned an empty response"

// Agent executes tasks with native tool calling.
type Agent struct {
	config       Config
	llmClient    *llm.Client
	toolRegistry *tools.Registry
	toolExecutor *tools.Executor
}

// New creates a new agent with the given configuration and provider.
// Tools whose names repeat an earlier tool are ignored.
func New(config Config, provider llm.Provider) *Agent {
	registry := tools.NewRegistry()
	for _, tool := range config.Tools {
		_ = registry.Register(tool)
	}

	return &Agent{
		config:       config,
		llmClient:    llm.NewClient(provider),
		toolRegistry: registry,
		toolExecutor: tools.NewDefaultExecutor(),
	}
}

// WithToolConfig overrides the tool execution configuration.
func (a *Agent) WithToolConfig(config tools.ToolConfig) *Agent {
	a.toolExecutor = tools.NewExecutor(config)
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string {
	return a.config.Name
}

// Description returns the agent's description.
func (a *Agent) Description() string {
	return a.config.Description
}

// Execute runs a task with the given maximum iterations.
func (a *Agent) Execute(ctx context.Context, task string, maxIterations int) Response {
	return a.ExecuteWithHistory(ctx, task, nil, maxIterations)
}

// ExecuteWithHistory runs a task after earlier conversation turns.
// history must not contain a system message.
func (a *Agent) ExecuteWithHistory(ctx context.Context, task string, history []llm.ChatMessage, maxIterations int) Response {
	log := clog.FromContext(ctx).With("agent", a.config.Name)
	startTime := time.Now()
	elapsed := func() uint64 { return uint64(time.Since(startTime).Milliseconds()) }

	var steps []model.Step
	var toolCalls []model.ToolCall
	var totalUsage llm.TokenUsage
	var llmCalls int

	conversation := make([]llm.ChatMessage, 0, len(history)+2)
	conversation = append(conversation, llm.SystemMessage(a.config.SystemPrompt))
	conversation = append(conversation, history...)
	conversation = append(conversation, llm.UserMessage(task))

	definitions := a.toolDefinitions()

	for iteration := 0; iteration < maxIterations; iteration++ {
		if ctx.Err() != nil {
			return NewFailureResponse(fmt.Sprintf("execution cancelled: %v", ctx.Err()), steps, toolCalls, elapsed(), &totalUsage, llmCalls)
		}

		log.Debugf("iteration %d: calling %s", iteration+1, a.llmClient.Provider().Model())
		resp, err := a.llmClient.ChatWithTools(ctx, conversation, definitions)
		if err != nil {
			return NewFailureResponse(fmt.Sprintf("Failed to reason: %v", err), steps, toolCalls, elapsed(), &totalUsage, llmCalls)
		}
		llmCalls++
		totalUsage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			answer := strings.TrimSpace(resp.Content)
			if answer == "" {
				return NewFailureResponse(emptyAnswer, steps, toolCalls, elapsed(), &totalUsage, llmCalls)
			}
			steps = append(steps, model.Step{
				Iteration:   iteration,
				Thought:     resp.Content,
				Observation: &answer,
			})
			log.Infof("completed after %d model calls and %d tool calls", llmCalls, len(toolCalls))
			return NewSuccessResponse(answer, steps, toolCalls, elapsed(), a.config.Name, &totalUsage, llmCalls)
		}

		conversation = append(conversation, llm.AssistantMessage(resp.Content, resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			result, metrics, err := a.executeTool(ctx, call)
			if err != nil {
				return NewFailureResponse(fmt.Sprintf("execution cancelled: %v", err), steps, toolCalls, elapsed(), &totalUsage, llmCalls)
			}
			toolCalls = append(toolCalls, metrics)

			observation := result.Text()
			conversation = append(conversation, llm.ToolResultMessage(call, observation, !result.Success()))

			action := call.Name
			steps = append(steps, model.Step{
				Iteration:   iteration,
				Thought:     resp.Content,
				Action:      &action,
				Observation: &observation,
			})
		}
	}

	log.Warnf("max iterations (%d) reached", maxIterations)
	return NewTimeoutResponse(steps, toolCalls, elapsed(), &totalUsage, llmCalls)
}

// toolDefinitions converts the registered tools to function definitions.
func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	metas := a.toolRegistry.List()
	defs := make([]llm.ToolDefinition, 0, len(metas))
	for _, m := range metas {
		defs = append(defs, llm.ToolDefinition{
			Name:        m.Name,
			Description: m.Description,
			Parameters:  m.JSONSchema(),
		})
	}
	return defs
}

// executeTool runs one requested call. Unknown tools and tool failures are
// reported back to the model as failed results; only a done ctx is an error.
func (a *Agent) executeTool(ctx context.Context, call llm.ToolCall) (tools.ToolResult, model.ToolCall, error) {
	log := clog.FromContext(ctx).With("agent", a.config.Name, "tool", call.Name)
	startTime := time.Now()
	metrics := model.ToolCall{Name: call.Name, InputSize: len(call.Arguments)}

	tool, exists := a.toolRegistry.Get(call.Name)
	if !exists {
		log.Warn("model requested an unknown tool")
		result := tools.FailureResultf("tool '%s' not found; available tools: %s", call.Name, strings.Join(a.toolRegistry.Names(), ", "))
		return result, metrics, nil
	}

	log.Debugf("calling tool with %d bytes of arguments", len(call.Arguments))
	result, err := a.toolExecutor.Execute(ctx, tool, call.Arguments)
	if err != nil {
		return tools.ToolResult{}, metrics, fmt.Errorf("tool %q: %w", call.Name, err)
	}

	metrics.OutputSize = len(result.Output)
	metrics.DurationMs = uint64(time.Since(startTime).Milliseconds())
	metrics.Success = result.Success()
	if !result.Success() {
		log.Warnf("tool failed: %v", result.Error)
	}
	return result, metrics, nil
}
