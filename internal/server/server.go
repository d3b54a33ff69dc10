// Package server wires all components and creates the MCP server
// instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools that depend on abstractions. No business
// logic lives here — only wiring.
package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"snowgate/internal/artifacts"
	"snowgate/internal/instance"
	"snowgate/internal/ops"
	"snowgate/internal/session"
	"snowgate/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// configPath returns the instance configuration file location:
// $SNOWGATE_CONFIG when set, else ~/.snowgate/instances.yaml.
func configPath() string {
	if p := os.Getenv("SNOWGATE_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".snowgate", "instances.yaml")
}

// newLogger builds the process logger. Everything goes to stderr:
// stdout belongs to the MCP stdio transport.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if os.Getenv("SNOWGATE_DEBUG") != "" {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function flushes the logger and closes the
// artifact store; it is always non-nil and safe to call even when
// artifact init failed.
func New() (*server.MCPServer, func(), error) {
	logger, err := newLogger()
	if err != nil {
		return nil, noop, fmt.Errorf("creating logger: %w", err)
	}

	// --- Credential store and router ---

	store, err := instance.Load(configPath())
	if err != nil {
		_ = logger.Sync()
		return nil, noop, fmt.Errorf("loading instances: %w", err)
	}
	router := instance.NewRouter(store)
	logger.Info("instances loaded",
		zap.Int("count", len(store.List())),
		zap.String("default", store.Default().Name))

	// --- Executor stack ---

	sessions := session.NewManager(logger.Named("session"))
	verifier := ops.NewVerifier(ops.NewPreferenceReader(logger.Named("verify")), logger.Named("verify"))
	executor := ops.NewExecutor(
		ops.DefaultStrategies(logger.Named("ops")),
		sessions,
		verifier,
		ops.DefaultConfig(),
		logger.Named("ops"),
	)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"snowgate",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Artifact store ---
	//
	// Artifacts are an independent subsystem: if the store fails to
	// initialize, operation tools still work — fallback descriptors are
	// returned in responses, just not persisted. Log and continue.

	cleanup := func() { _ = logger.Sync() }
	var saver tools.ArtifactSaver
	artifactStore, artErr := artifacts.New(artifacts.DefaultConfig())
	if artErr != nil {
		logger.Warn("artifact persistence disabled", zap.Error(artErr))
	} else {
		saver = artifactStore
		cleanup = func() {
			if err := artifactStore.Close(); err != nil {
				logger.Warn("artifact store close", zap.Error(err))
			}
			_ = logger.Sync()
		}
		artifactsTool := tools.NewArtifactsTool(artifactStore)
		s.AddTool(artifactsTool.Definition(), artifactsTool.Handle)
	}

	// --- Register operation tools ---

	setWorkspace := tools.NewSetWorkspaceTool(router, executor, saver)
	s.AddTool(setWorkspace.Definition(), setWorkspace.Handle)

	setUpdateSet := tools.NewSetUpdateSetTool(router, executor, saver)
	s.AddTool(setUpdateSet.Definition(), setUpdateSet.Handle)

	runScript := tools.NewRunScriptTool(router, executor, saver)
	s.AddTool(runScript.Definition(), runScript.Handle)

	// --- Register record passthrough tools ---

	recordTools := tools.NewRecordTools(router, logger.Named("records"))
	s.AddTool(recordTools.GetDefinition(), recordTools.HandleGet)
	s.AddTool(recordTools.CreateDefinition(), recordTools.HandleCreate)
	s.AddTool(recordTools.UpdateDefinition(), recordTools.HandleUpdate)
	s.AddTool(recordTools.DeleteDefinition(), recordTools.HandleDelete)
	s.AddTool(recordTools.QueryDefinition(), recordTools.HandleQuery)

	// --- Register instance tools ---

	instanceTools := tools.NewInstanceTools(store, router)
	s.AddTool(instanceTools.ListDefinition(), instanceTools.HandleList)
	s.AddTool(instanceTools.SelectDefinition(), instanceTools.HandleSelect)

	return s, cleanup, nil
}

// noop is a no-op cleanup function used when initialization fails early.
func noop() {}

// serverInstructions returns the system instructions that tell the AI
// how to use snowgate effectively.
func serverInstructions() string {
	return `You have access to snowgate, a ServiceNow MCP server.

## Instances
Multiple instances may be configured (dev, test, prod). Tools accept an
optional "instance" argument; without it they use the selected instance.
Use snow_list_instances to see what is configured and snow_select_instance
to change the session default. Never assume an instance — when the user
names an environment, pass it explicitly.

## Context-switching operations
snow_set_workspace and snow_set_update_set mutate instance state through a
tiered mechanism (UI endpoint → scheduled-job side channel → manual
artifact). Read the result carefully:
- "succeeded (verified)": the switch is confirmed — safe to proceed.
- "applied but NOT verified": the switch was accepted but the confirmation
  read did not see it yet. Wait briefly or re-check before creating
  dependent records.
- "Manual action required": automation failed. Relay the artifact's
  procedure to the user; the artifact is saved and listable later via
  snow_list_artifacts.

ALWAYS complete a context switch (including its verification) before
creating or updating records that depend on it.

## Scripts
snow_run_script executes server-side scripts. Output is captured when the
UI runner works; the scheduled-job fallback is fire-and-forget and returns
no output. Treat scripts as admin-level actions: show the user the script
before running anything destructive.

## Records
snow_query_records accepts encoded sysparm_query syntax or simple phrases
("active, assigned to me, created this week"). Prefer explicit encoded
queries when precision matters.`
}
