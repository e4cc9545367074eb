package main

import (
	"fmt"
	"os"
	"path/filepath"

	"maestro/pkg/config"
	"maestro/pkg/conversation"
	"maestro/pkg/identity"
	"maestro/pkg/knowledge"
	"maestro/pkg/sender"
	"maestro/pkg/store"
	"maestro/pkg/vision"
)

// runtime holds the wired core: storage, knowledge, identity, vision,
// and the conversation on top of them.
type runtime struct {
	cfg       *config.Config
	store     *store.Store
	knowledge *knowledge.Knowledge
	identity  *identity.Manager
	vision    *vision.Worker
	conv      *conversation.Conversation
	outbound  *sender.Sender
}

// buildRuntime loads the knowledge store, opens the database, and wires
// the conversation. Both serve and chat start from here.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	k, err := knowledge.Load(cfg.KnowledgeDir, cfg.ProjectName)
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge store: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := store.Initialize(filepath.Join(cfg.DataDir, "maestro.db"), cfg.ProjectName); err != nil {
		return nil, err
	}
	st := store.Ops()
	if err := st.EnsureProject(k.Name, k.SourcePath, k.TotalPages); err != nil {
		return nil, err
	}

	ident := identity.New(cfg.IdentityDir)
	vis := vision.NewWorker(st, k, os.Getenv("GEMINI_API_KEY"))

	deps := conversation.Deps{
		Store:     st,
		Knowledge: k,
		Identity:  ident,
		Vision:    vis,
	}
	// The persisted engine choice survives restarts; the configured
	// engine only seeds a fresh conversation.
	if state, err := st.GetConversationState(); err == nil && state.Engine == "" {
		deps.Engine = cfg.Engine
	}

	conv, err := conversation.New(deps)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:       cfg,
		store:     st,
		knowledge: k,
		identity:  ident,
		vision:    vis,
		conv:      conv,
		outbound:  sender.New(cfg.SMSGatewayURL, cfg.SuperPhone, cfg.MaestroPhone),
	}, nil
}

// close drains in-flight highlight agents and closes the database.
func (rt *runtime) close() {
	rt.vision.Wait()
	_ = store.Close()
}
