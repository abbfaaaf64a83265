// Package engine drives turn-by-turn script execution: instructions,
// message resolution, AI placeholder completion, retries, and chaining.
// Tool permissions, observability, and condition evaluation are owned by
// external collaborators reached through narrow interfaces.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-script/pkg/cache"
	"github.com/mattsolo1/grove-script/pkg/provider"
	"github.com/mattsolo1/grove-script/pkg/script"
	"github.com/mattsolo1/grove-script/pkg/value"
)

// State is the lifecycle phase of one script invocation.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateChaining  State = "chaining"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ToolDecision is the permission collaborator's answer for a gated tool.
type ToolDecision string

const (
	DecisionAllowed       ToolDecision = "ALLOWED"
	DecisionDenied        ToolDecision = "DENIED"
	DecisionSkipped       ToolDecision = "SKIPPED"
	DecisionNeedsApproval ToolDecision = "NEEDS_APPROVAL"
)

// ToolGate is the allowlist collaborator. IsAllowed answers from the
// persisted allowlist; RequestPermission escalates a denial to the user
// and is expected to persist ALLOWED answers for future calls.
type ToolGate interface {
	IsAllowed(toolName string, args value.Map) bool
	RequestPermission(toolName string, args value.Map) ToolDecision
}

// ToolRunner executes a tool that passed the gate.
type ToolRunner interface {
	Run(ctx context.Context, toolName string, args value.Map) (string, error)
}

// Observer receives execution telemetry. Implementations must never
// block or fail the core flow.
type Observer interface {
	RecordAPICall(operationID string, tokensUsed int, costUSD float64)
	RecordToolCall(toolName string, decision ToolDecision)
	RecordError(category string, err error)
}

// ConditionEvaluator resolves the opaque condition strings used by
// control-flow instructions. Expression syntax is the collaborator's
// business, not the engine's. Match arms arrive as one condition per
// case, in the form "value == pattern" with both sides passed through
// verbatim from the script.
type ConditionEvaluator interface {
	Evaluate(condition string, vars value.Map) (bool, error)
}

// ExecutionContext is the mutable state of one script invocation:
// variables plus the accumulating chat history. Chained invocations
// receive the same context with merged variables.
type ExecutionContext struct {
	Variables value.Map
	History   []provider.Message

	emitted []string
	depth   int
}

// NewExecutionContext creates a context seeded with the given variables
// and prior history. Both are copied; the caller's maps stay untouched.
func NewExecutionContext(vars value.Map, history []provider.Message) *ExecutionContext {
	ec := &ExecutionContext{
		Variables: value.Clone(vars),
		History:   make([]provider.Message, len(history)),
	}
	copy(ec.History, history)
	if ec.Variables == nil {
		ec.Variables = value.Map{}
	}
	return ec
}

// Result is the outcome of one invocation, including any chained hops.
type Result struct {
	State       State
	Text        string
	History     []provider.Message
	Variables   value.Map
	OperationID string

	TotalTokens int
	TotalCost   float64

	// Set when State is StateFailed.
	Err            error
	Classification *provider.Classification
}

// Config wires an Engine. Provider and Loader are required; nil
// collaborators fall back to permissive no-op defaults.
type Config struct {
	Loader     *script.Loader
	Provider   provider.Provider
	Tools      ToolGate
	ToolRunner ToolRunner
	Observer   Observer
	Conditions ConditionEvaluator
	Cache      cache.Store

	DefaultModel  string
	MaxChainDepth int
}

const (
	defaultMaxChainDepth = 16
	maxLoopIterations    = 1000
)

// Engine executes parsed scripts. Safe for concurrent use; all mutable
// state lives in per-invocation ExecutionContexts.
type Engine struct {
	loader     *script.Loader
	provider   provider.Provider
	tools      ToolGate
	toolRunner ToolRunner
	observer   Observer
	conditions ConditionEvaluator
	cache      cache.Store

	defaultModel  string
	maxChainDepth int
	log           *logrus.Entry
}

// New creates an Engine from the config.
func New(cfg Config) *Engine {
	e := &Engine{
		loader:        cfg.Loader,
		provider:      cfg.Provider,
		tools:         cfg.Tools,
		toolRunner:    cfg.ToolRunner,
		observer:      cfg.Observer,
		conditions:    cfg.Conditions,
		cache:         cfg.Cache,
		defaultModel:  cfg.DefaultModel,
		maxChainDepth: cfg.MaxChainDepth,
		log:           logrus.WithField("component", "engine"),
	}
	if e.loader == nil {
		e.loader = script.NewLoader()
	}
	if e.tools == nil {
		e.tools = allowAllGate{}
	}
	if e.observer == nil {
		e.observer = noopObserver{}
	}
	if e.conditions == nil {
		e.conditions = TruthyEvaluator{}
	}
	if e.maxChainDepth <= 0 {
		e.maxChainDepth = defaultMaxChainDepth
	}
	return e
}

// Execute runs a script to completion. Chaining is an explicit loop
// rather than recursion, so deep chains cannot grow the stack and
// cancellation is checked between hops.
func (e *Engine) Execute(ctx context.Context, scr *script.Script, vars value.Map) (*Result, error) {
	return e.execute(ctx, scr, NewExecutionContext(value.Merge(scr.Parameters, vars), nil))
}

// ExecuteWith runs a script inside an existing context. Used for chained
// hops and sub-script replacements, which inherit history and variables
// from their caller.
func (e *Engine) ExecuteWith(ctx context.Context, scr *script.Script, ec *ExecutionContext) (*Result, error) {
	return e.execute(ctx, scr, ec)
}

func (e *Engine) execute(ctx context.Context, scr *script.Script, ec *ExecutionContext) (*Result, error) {
	result := &Result{
		State:       StatePending,
		OperationID: uuid.New().String(),
	}
	log := e.log.WithField("operation_id", result.OperationID)

	current := scr
	for hop := 0; ; hop++ {
		if hop > e.maxChainDepth {
			return e.fail(result, ec, fmt.Errorf("chain depth exceeded %d hops", e.maxChainDepth))
		}
		if err := ctx.Err(); err != nil {
			return e.fail(result, ec, err)
		}

		// Front-matter input declarations bind before the first turn;
		// a chained script's declarations are checked against the
		// merged variables of the hop.
		for _, name := range current.Input {
			if _, ok := value.Lookup(ec.Variables, name); !ok {
				return e.fail(result, ec, fmt.Errorf("required input %q was not provided", name))
			}
		}

		result.State = StateRunning
		log.WithFields(logrus.Fields{
			"script": current.SourcePath,
			"turns":  len(current.Turns),
			"hop":    hop,
		}).Debug("Executing script")

		chain, err := e.runTurns(ctx, current, ec, result)
		if err != nil {
			return e.fail(result, ec, err)
		}
		if chain == nil {
			break
		}

		result.State = StateChaining
		next, err := e.loader.LoadRelative(chain.Target, current.SourcePath)
		if err != nil {
			return e.fail(result, ec, fmt.Errorf("chain to %q: %w", chain.Target, err))
		}
		ec.Variables = value.Merge(ec.Variables, chain.Params)
		current = next
	}

	result.State = StateCompleted
	result.History = ec.History
	result.Variables = ec.Variables
	if result.Text == "" && len(ec.emitted) > 0 {
		result.Text = strings.Join(ec.emitted, "\n")
	}
	return result, nil
}

// chainTarget is the terminal hand-off recorded by a turn.
type chainTarget struct {
	Target string
	Params value.Map
}

// runTurns executes every turn of one script in source order. Variables
// are snapshotted per turn so a failed or cancelled turn leaves no
// partial mutation behind.
func (e *Engine) runTurns(ctx context.Context, scr *script.Script, ec *ExecutionContext, result *Result) (*chainTarget, error) {
	for i, turn := range scr.Turns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snapshot := value.Clone(ec.Variables)
		if err := e.runTurn(ctx, scr, turn, ec, result); err != nil {
			ec.Variables = snapshot
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}

		if turn.ChainTo != "" {
			return &chainTarget{Target: turn.ChainTo, Params: turn.ChainParams}, nil
		}
	}
	return nil, nil
}

func (e *Engine) runTurn(ctx context.Context, scr *script.Script, turn *script.Turn, ec *ExecutionContext, result *Result) error {
	for _, in := range turn.Instructions {
		if _, err := e.runInstruction(ctx, scr, in, ec, result); err != nil {
			return fmt.Errorf("instruction $%s: %w", in.Name, err)
		}
	}

	for _, msg := range turn.Messages {
		content := e.processMessage(ctx, scr, msg, ec, result)

		if msg.AIPlaceholder != nil {
			resolved, err := e.resolvePlaceholder(ctx, scr, msg, content, ec, result)
			if err != nil {
				return err
			}
			content = resolved
		}

		ec.History = append(ec.History, provider.Message{Role: msg.Role, Content: content})
	}
	return nil
}

// resolvePlaceholder flushes the resolved history to the provider,
// splices the completion into the placeholder position, and stores it
// under the placeholder's variable name.
func (e *Engine) resolvePlaceholder(ctx context.Context, scr *script.Script, msg *script.Message, content string, ec *ExecutionContext, result *Result) (string, error) {
	if e.provider == nil {
		return "", fmt.Errorf("script requires a model completion but no provider is configured")
	}

	req := e.buildRequest(scr, msg.AIPlaceholder.Params, ec)
	resp, err := e.completeWithRetry(ctx, req, result)
	if err != nil {
		return "", err
	}

	result.Text = resp.Text
	ec.Variables[msg.AIPlaceholder.Var] = value.String(resp.Text)
	return strings.Replace(content, msg.AIPlaceholder.Placeholder, resp.Text, 1), nil
}

// buildRequest assembles the normalized request from the history plus
// per-placeholder parameter overrides.
func (e *Engine) buildRequest(scr *script.Script, params value.Map, ec *ExecutionContext) *provider.ChatRequest {
	req := &provider.ChatRequest{
		Model:    e.defaultModel,
		Messages: make([]provider.Message, len(ec.History)),
	}
	copy(req.Messages, ec.History)

	if v, ok := value.Lookup(scr.Metadata, "model"); ok {
		req.Model = v.String()
	}
	if scr.ResponseFormat != nil {
		if v, ok := value.Lookup(scr.ResponseFormat, "type"); ok {
			req.ResponseFormat = v.String()
		}
	}

	for name, v := range params {
		switch name {
		case "model":
			req.Model = v.String()
		case "temperature":
			t := v.Num()
			req.Temperature = &t
		case "top_p":
			p := v.Num()
			req.TopP = &p
		case "top_k":
			k := int(v.Num())
			req.TopK = &k
		case "max_tokens":
			req.MaxTokens = int(v.Num())
		case "format":
			req.ResponseFormat = v.String()
		}
	}
	return req
}

// completeWithRetry sends one completion through the classifier-driven
// retry loop. Each classified failure is reported to the observer; the
// delay grows exponentially from the classification's base, bounded by
// maxRetryDelay. Credential exhaustion is terminal and surfaces to the
// caller rather than being retried here.
func (e *Engine) completeWithRetry(ctx context.Context, req *provider.ChatRequest, result *Result) (*provider.ChatResponse, error) {
	cctx := provider.ClassifyContext{Provider: e.provider.Name(), Model: req.Model}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := provider.Complete(ctx, e.provider, req)
		if err == nil {
			tokens := resp.Usage.InputTokens + resp.Usage.OutputTokens
			result.TotalTokens += tokens
			result.TotalCost += resp.CostUSD
			e.observer.RecordAPICall(result.OperationID, tokens, resp.CostUSD)
			return resp, nil
		}

		cls := provider.Classify(err, cctx)
		e.observer.RecordError(string(cls.Category), err)
		result.Classification = &cls

		if !cls.Retryable || attempt >= cls.MaxRetries {
			return nil, fmt.Errorf("%s: %s: %w", cls.Category, cls.RecoverySuggestion, err)
		}

		delay := backoffDelay(cls.RetryDelay, attempt)
		e.log.WithFields(logrus.Fields{
			"category": cls.Category,
			"attempt":  attempt + 1,
			"delay":    delay,
		}).Warn("Provider call failed, retrying")

		if err := sleepCtx(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (e *Engine) fail(result *Result, ec *ExecutionContext, err error) (*Result, error) {
	result.State = StateFailed
	result.Err = err
	result.History = ec.History
	result.Variables = ec.Variables
	return result, err
}

type allowAllGate struct{}

func (allowAllGate) IsAllowed(string, value.Map) bool { return true }
func (allowAllGate) RequestPermission(string, value.Map) ToolDecision {
	return DecisionAllowed
}

type noopObserver struct{}

func (noopObserver) RecordAPICall(string, int, float64)  {}
func (noopObserver) RecordToolCall(string, ToolDecision) {}
func (noopObserver) RecordError(string, error)           {}

// TruthyEvaluator is the fallback condition evaluator. An "a == b"
// condition renders both sides and compares them for exact equality;
// anything else is rendered as a template against the variables and is
// truthy unless empty, "false", or "0".
type TruthyEvaluator struct{}

func (TruthyEvaluator) Evaluate(condition string, vars value.Map) (bool, error) {
	if lhs, rhs, found := strings.Cut(condition, "=="); found {
		left := strings.TrimSpace(renderCondition(strings.TrimSpace(lhs), vars))
		right := strings.TrimSpace(renderCondition(strings.TrimSpace(rhs), vars))
		return left == right, nil
	}
	rendered := strings.TrimSpace(renderCondition(condition, vars))
	switch strings.ToLower(rendered) {
	case "", "false", "0", "no":
		return false, nil
	}
	return true, nil
}
