package tools

import (
	"context"
	"fmt"
	"sync"

	"maestro/pkg/knowledge"
	"maestro/pkg/store"
)

// EngineSwitcher is implemented by the conversation so the
// switch_engine tool can change providers mid-conversation.
type EngineSwitcher interface {
	SwitchEngine(name string) (string, error)
}

// HighlightSpawner is implemented by the vision worker so the
// highlight_on_page tool can queue jobs.
type HighlightSpawner interface {
	SpawnHighlights(ctx context.Context, workspace string, pages []string, mission string) (map[string]any, error)
}

// IdentityEditor is implemented by the identity manager so the learning
// tools can patch the identity files.
type IdentityEditor interface {
	ApplyAction(file, field, action, value string) (string, error)
	UpdateToolTip(toolName, tip string) (string, error)
}

// ToolContext carries the dependencies tools are constructed with.
// Fields a given tool does not need may be nil; its factory checks.
type ToolContext struct {
	Store     *store.Store
	Knowledge *knowledge.Knowledge
	Identity  IdentityEditor
	Engine    EngineSwitcher
	Vision    HighlightSpawner
}

// ToolFactory creates a tool instance configured for a context.
type ToolFactory func(ctx ToolContext) (Tool, error)

// ToolMeta contains metadata about a tool for listing and discovery.
type ToolMeta struct {
	Name        string
	Description string
	InputSchema InputSchema
}

type toolDescriptor struct {
	meta    ToolMeta
	factory ToolFactory
}

// immutableRegistry is the global, read-only tool registry.
type immutableRegistry struct {
	mu     sync.RWMutex
	sealed bool
	tools  map[string]toolDescriptor
}

//nolint:gochecknoglobals // Factory pattern requires global registry
var globalRegistry = &immutableRegistry{
	tools: make(map[string]toolDescriptor),
}

// Register adds a tool factory to the global registry.
// Panics if called after the registry is sealed.
func Register(name string, factory ToolFactory, meta *ToolMeta) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()

	if globalRegistry.sealed {
		panic(fmt.Sprintf("tool registry sealed - cannot register tool '%s'", name))
	}

	globalRegistry.tools[name] = toolDescriptor{
		meta:    *meta,
		factory: factory,
	}
}

// Seal prevents further tool registrations.
// Called automatically when the first Provider is created.
func Seal() {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.sealed = true
}

// ListTools returns metadata for all registered tools.
func ListTools() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(globalRegistry.tools))
	for _, desc := range globalRegistry.tools {
		result = append(result, desc.meta)
	}
	return result
}

// Provider creates and caches tool instances for one context.
type Provider struct {
	ctx      ToolContext
	tools    map[string]Tool
	allowSet map[string]struct{}
	mu       sync.Mutex
}

// NewProvider creates a Provider for the given context and allowed
// tools. A nil allowedTools permits every registered tool.
// Automatically seals the global registry on first use.
func NewProvider(ctx ToolContext, allowedTools []string) *Provider {
	Seal()

	if allowedTools == nil {
		for _, meta := range ListTools() {
			allowedTools = append(allowedTools, meta.Name)
		}
	}

	allowSet := make(map[string]struct{}, len(allowedTools))
	for _, name := range allowedTools {
		allowSet[name] = struct{}{}
	}

	return &Provider{
		ctx:      ctx,
		tools:    make(map[string]Tool),
		allowSet: allowSet,
	}
}

// Get retrieves a tool instance, creating it lazily if needed.
func (p *Provider) Get(name string) (Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.allowSet[name]; !ok {
		return nil, fmt.Errorf("tool '%s' not allowed in this context", name)
	}

	if tool, ok := p.tools[name]; ok {
		return tool, nil
	}

	globalRegistry.mu.RLock()
	desc, exists := globalRegistry.tools[name]
	globalRegistry.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("tool '%s' not registered", name)
	}

	tool, err := desc.factory(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool '%s': %w", name, err)
	}

	p.tools[name] = tool
	return tool, nil
}

// Must is like Get but panics on error. Use for tools that must exist.
func (p *Provider) Must(name string) Tool {
	tool, err := p.Get(name)
	if err != nil {
		panic(err)
	}
	return tool
}

// List returns metadata for all allowed tools.
func (p *Provider) List() []ToolMeta {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	result := make([]ToolMeta, 0, len(p.allowSet))
	for name := range p.allowSet {
		if desc, ok := globalRegistry.tools[name]; ok {
			result = append(result, desc.meta)
		}
	}
	return result
}
