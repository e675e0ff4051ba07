package cli

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/costguard-framework/costguard/internal/config"
	"github.com/costguard-framework/costguard/internal/connections"
	"github.com/costguard-framework/costguard/internal/core"
	"github.com/costguard-framework/costguard/internal/credentials"
	"github.com/costguard-framework/costguard/internal/gcp"
	"github.com/costguard-framework/costguard/internal/guardrail"
	"github.com/costguard-framework/costguard/internal/jobs"
	"github.com/costguard-framework/costguard/internal/notify"
	"github.com/costguard-framework/costguard/internal/remediation"
	"github.com/costguard-framework/costguard/internal/saas"
	"github.com/costguard-framework/costguard/internal/strategy"

	awsadapter "github.com/costguard-framework/costguard/internal/aws"
	"github.com/costguard-framework/costguard/internal/azure"
)

// loadActiveEngine opens the currently active workspace engine.
// Prompts for the vault passphrase.
func loadActiveEngine() (*core.Engine, error) {
	cfg, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if cfg.ActiveWorkspace == "" {
		return nil, fmt.Errorf("no active workspace; use 'costguard workspace new' or 'costguard workspace use <name>'")
	}

	wsPath := ""
	entries, err := os.ReadDir(cfg.WorkspacesDir)
	if err != nil {
		return nil, fmt.Errorf("reading workspaces directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() && entry.Name() == cfg.ActiveWorkspace {
			wsPath = cfg.WorkspacesDir + "/" + entry.Name()
			break
		}
	}
	if wsPath == "" {
		return nil, fmt.Errorf("workspace directory not found for: %s", cfg.ActiveWorkspace)
	}

	passphrase, err := promptPassphrase("Vault passphrase: ")
	if err != nil {
		return nil, err
	}

	engine, err := core.OpenWorkspace(wsPath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}
	return engine, nil
}

func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	passBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	fmt.Fprintln(os.Stderr)
	return string(passBytes), nil
}

// services bundles everything built on top of an open engine.
type services struct {
	Engine      *core.Engine
	Connections *connections.Manager
	Requests    *remediation.Service
	Jobs        *jobs.Queue
	Notifier    *notify.Notifier
	Registry    *strategy.Registry
}

// buildServices composes the full remediation stack for the workspace.
func buildServices(engine *core.Engine) *services {
	wsUUID := engine.Workspace.UUID

	awsFactory := awsadapter.NewClientFactory(engine.Logger)
	if cfg, err := config.LoadGlobalConfig(); err == nil && cfg.AWSAPIRatePerSec > 0 {
		awsFactory = awsadapter.NewClientFactoryWithRate(engine.Logger, cfg.AWSAPIRatePerSec)
	}
	azureFactory := azure.NewClientFactory()
	gcpFactory := gcp.NewClientFactory()
	saasFactory := saas.NewClientFactory()

	builder := strategy.NewBuilder()
	strategy.RegisterBuiltinStrategies(builder, awsFactory, azureFactory, gcpFactory, saasFactory)
	registry := builder.Build()

	resolver := credentials.NewResolver(engine.Vault, engine.Logger)
	connMgr := connections.NewManager(engine.MetadataDB, engine.AuditLogger, resolver, awsFactory, wsUUID)
	queue := jobs.NewQueue(engine.MetadataDB, wsUUID)
	notifier := notify.NewNotifier(engine.MetadataDB, engine.AuditLogger, engine.Logger, wsUUID)

	svc := remediation.NewService(remediation.Config{
		Store:         remediation.NewStore(engine.MetadataDB, wsUUID),
		Registry:      registry,
		Resolver:      resolver,
		Connections:   connMgr,
		Guards:        guardrail.NewChecker(),
		Queue:         queue,
		Notifier:      notifier,
		Audit:         engine.AuditLogger,
		Settings:      engine,
		Logger:        engine.Logger,
		WorkspaceUUID: wsUUID,
	})

	return &services{
		Engine:      engine,
		Connections: connMgr,
		Requests:    svc,
		Jobs:        queue,
		Notifier:    notifier,
		Registry:    registry,
	}
}

// loadServices opens the active workspace and builds the stack on it.
// The caller must Close the returned engine.
func loadServices() (*services, error) {
	engine, err := loadActiveEngine()
	if err != nil {
		return nil, err
	}
	return buildServices(engine), nil
}

func shortUUID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
