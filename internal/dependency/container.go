// Package dependency wires core tidewire services using go.uber.org/dig.
package dependency

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/dig"

	"github.com/crystaldolphin/tidewire/internal/agent"
	"github.com/crystaldolphin/tidewire/internal/config"
	"github.com/crystaldolphin/tidewire/internal/cron"
	"github.com/crystaldolphin/tidewire/internal/dispatch"
	"github.com/crystaldolphin/tidewire/internal/keystore"
	"github.com/crystaldolphin/tidewire/internal/observers"
	"github.com/crystaldolphin/tidewire/internal/providers"
	"github.com/crystaldolphin/tidewire/internal/session"
	"github.com/crystaldolphin/tidewire/internal/store"
	"github.com/crystaldolphin/tidewire/internal/terminal"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

// Options are process-level settings that do not live in the config file.
type Options struct {
	Version string
	// DataDir holds stores and the profile overlay; empty uses config.DataDir().
	DataDir string
	// Desktop overrides the OS integration used by the os family.
	Desktop tools.Desktop
}

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	dig *dig.Container

	cfg        *config.Config
	catalog    *providers.Catalog
	keys       *keystore.Store
	stores     *store.Stores
	cronSvc    *cron.Service
	terminals  *terminal.Manager
	sessions   *session.Manager
	workflows  *tools.Workflows
	dispatcher *dispatch.Dispatcher
	emitter    *dispatch.Emitter
	recent     *observers.RecentFiles
	metrics    *observers.Metrics
	hub        *observers.Hub
	invoker    *subagentBinding

	loopOnce sync.Once
	loop     *agent.AgentLoop
	loopErr  error
}

func (c *Container) Config() *config.Config              { return c.cfg }
func (c *Container) Catalog() *providers.Catalog         { return c.catalog }
func (c *Container) Keys() *keystore.Store               { return c.keys }
func (c *Container) Stores() *store.Stores               { return c.stores }
func (c *Container) CronService() *cron.Service          { return c.cronSvc }
func (c *Container) Terminals() *terminal.Manager        { return c.terminals }
func (c *Container) Sessions() *session.Manager          { return c.sessions }
func (c *Container) Workflows() *tools.Workflows         { return c.workflows }
func (c *Container) Dispatcher() *dispatch.Dispatcher    { return c.dispatcher }
func (c *Container) Emitter() *dispatch.Emitter          { return c.emitter }
func (c *Container) RecentFiles() *observers.RecentFiles { return c.recent }
func (c *Container) Metrics() *observers.Metrics         { return c.metrics }
func (c *Container) Hub() *observers.Hub                 { return c.hub }

// dataDir is a named string type so dig can distinguish it from plain strings.
type dataDir string

// version is the build version reported by get_system_info.
type version string

// New builds and wires all core services from cfg. The model provider is
// resolved lazily by AgentLoop so commands that never talk to a model work
// without credentials.
func New(cfg *config.Config, opts Options) (*Container, error) {
	d := dig.New()

	if opts.DataDir == "" {
		opts.DataDir = config.DataDir()
	}
	if opts.Desktop == nil {
		opts.Desktop = tools.ExecDesktop{}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	ctors := []any{
		func() *config.Config { return cfg },
		func() dataDir { return dataDir(opts.DataDir) },
		func() version { return version(opts.Version) },
		func() tools.Desktop { return opts.Desktop },
		newHTTPClient,
		newCatalog,
		newKeystore,
		newRouter,
		newStores,
		newCronService,
		newTerminalManager,
		newSessionManager,
		newWorkflows,
		newRecentFiles,
		newMetrics,
		observers.NewHub,
		newEmitter,
		newSubagentBinding,
		newDispatcher,
		newPromptBuilder,
		newResolved,
		newRunner,
		newSubagentRunner,
		newAgentLoop,
	}
	for _, ctor := range ctors {
		if err := d.Provide(ctor); err != nil {
			return nil, err
		}
	}

	c := &Container{dig: d, cfg: cfg}
	err := d.Invoke(func(
		catalog *providers.Catalog,
		keys *keystore.Store,
		stores *store.Stores,
		cronSvc *cron.Service,
		terminals *terminal.Manager,
		sessions *session.Manager,
		workflows *tools.Workflows,
		dispatcher *dispatch.Dispatcher,
		emitter *dispatch.Emitter,
		recent *observers.RecentFiles,
		metrics *observers.Metrics,
		hub *observers.Hub,
		invoker *subagentBinding,
	) error {
		c.catalog, c.keys, c.stores, c.cronSvc = catalog, keys, stores, cronSvc
		c.terminals, c.sessions, c.workflows = terminals, sessions, workflows
		c.dispatcher, c.emitter = dispatcher, emitter
		c.recent, c.metrics, c.hub, c.invoker = recent, metrics, hub, invoker

		workflows.BindRunner(dispatcher)
		workflows.RestoreSchedules()
		every := time.Duration(cfg.Terminal.ReapInterval) * time.Second
		if every <= 0 {
			every = time.Minute
		}
		return terminals.ScheduleReaper(cronSvc, every, time.Duration(cfg.Terminal.IdleTimeout)*time.Second)
	})
	if err != nil {
		return nil, fmt.Errorf("wire services: %w", dig.RootCause(err))
	}
	return c, nil
}

// AgentLoop resolves the model provider and returns the conversation loop.
// It also binds invoke_agent to a sub-agent runner on the same provider.
func (c *Container) AgentLoop() (*agent.AgentLoop, error) {
	c.loopOnce.Do(func() {
		c.loopErr = c.dig.Invoke(func(loop *agent.AgentLoop, sub *agent.SubagentRunner) {
			c.loop = loop
			c.invoker.bind(sub)
		})
		if c.loopErr != nil {
			c.loopErr = dig.RootCause(c.loopErr)
		}
	})
	return c.loop, c.loopErr
}

// Close releases process resources: terminal sessions and the key database.
func (c *Container) Close() error {
	c.terminals.Shutdown()
	if c.hub != nil {
		c.hub.Close()
	}
	return c.keys.Close()
}

// ---------------------------------------------------------------------------
// Constructors

func newHTTPClient() *http.Client {
	return providers.NewHTTPClient(0)
}

func newCatalog(dir dataDir) (*providers.Catalog, error) {
	return config.BuildCatalog(filepath.Join(string(dir), "profiles.yaml"))
}

func newKeystore(cfg *config.Config, catalog *providers.Catalog, client *http.Client) (*keystore.Store, error) {
	return keystore.Open(cfg.KeystorePath(), catalog, client)
}

func newRouter(client *http.Client) *providers.Router {
	return providers.NewRouter(client)
}

func newStores(dir dataDir) (*store.Stores, error) {
	return store.Open(filepath.Join(string(dir), "data"))
}

func newCronService() *cron.Service {
	return cron.NewService()
}

func newTerminalManager(cfg *config.Config) *terminal.Manager {
	return terminal.NewManager(terminal.Options{
		Host:      terminal.NewShellHost(cfg.Terminal.Shell, nil),
		Workspace: cfg.WorkspacePath(),
		Guard:     terminal.Guard{Confine: cfg.Tools.RestrictToWorkspace},
	})
}

func newSessionManager(cfg *config.Config) (*session.Manager, error) {
	return session.NewManager(filepath.Join(cfg.WorkspacePath(), "sessions"))
}

func newWorkflows(stores *store.Stores, cronSvc *cron.Service) *tools.Workflows {
	return tools.NewWorkflows(stores.Workflows, cronSvc)
}

func newRecentFiles() *observers.RecentFiles {
	return observers.NewRecentFiles(100)
}

func newMetrics() *observers.Metrics {
	return observers.NewMetrics("tidewire")
}

func newEmitter(cfg *config.Config, recent *observers.RecentFiles, metrics *observers.Metrics, hub *observers.Hub) *dispatch.Emitter {
	return dispatch.NewEmitter(cfg.Server.EventBuffer, recent, metrics, hub)
}

// newDispatcher builds the dispatch table: the handler families in
// dispatch.FamilyOrder, then the core tools.
func newDispatcher(
	cfg *config.Config,
	v version,
	desktop tools.Desktop,
	stores *store.Stores,
	workflows *tools.Workflows,
	terminals *terminal.Manager,
	sessions *session.Manager,
	emitter *dispatch.Emitter,
	invoker *subagentBinding,
) (*dispatch.Dispatcher, error) {
	workspace := cfg.WorkspacePath()
	restrict := cfg.Tools.RestrictToWorkspace

	sets := map[string]*tools.Set{
		"workflow": workflows.Set(),
		"backup":   tools.BackupSet(stores.Backups, workspace, restrict),
		"system":   tools.SystemSet(string(v), time.Now),
		"memory":   tools.MemorySet(stores.Memories),
		"bookmark": tools.BookmarkSet(stores.Bookmarks),
		"os":       tools.OSSet(desktop, workspace, restrict),
	}
	families := make([]dispatch.Family, 0, len(dispatch.FamilyOrder))
	for _, name := range dispatch.FamilyOrder {
		set, ok := sets[name]
		if !ok {
			return nil, fmt.Errorf("no handler family %q", name)
		}
		families = append(families, dispatch.FamilyFromSet(set))
	}

	web := cfg.Tools.Web
	core := append(terminal.Tools(terminals).Tools(),
		tools.NewReadFileTool(workspace, restrict),
		tools.NewWriteFileTool(workspace, restrict),
		tools.NewEditFileTool(workspace, restrict),
		tools.NewListDirectoryTool(workspace, restrict),
		tools.NewSearchFilesTool(workspace, restrict),
		tools.NewWebSearchTool(tools.WebSearchOptions{
			APIKey:     web.Search.APIKey,
			MaxResults: web.Search.MaxResults,
			PerSecond:  web.Search.PerSecond,
		}),
		tools.NewFetchPageTool(web.Fetch.MaxChars),
		tools.NewInvokeAgentTool(invoker),
		tools.NewSearchMessagesTool(sessions),
		tools.SearchMemoryTool(stores.Memories),
	)

	return dispatch.New(dispatch.Config{Families: families, Core: core, Emitter: emitter})
}

func newPromptBuilder(cfg *config.Config) *agent.PromptBuilder {
	return agent.NewPromptBuilder(cfg.WorkspacePath(), cfg.Agents.Defaults.SystemPrompt)
}

func newResolved(cfg *config.Config, catalog *providers.Catalog, keys *keystore.Store) (config.Resolved, error) {
	r, err := cfg.Resolve("", catalog, func(id string) (string, error) {
		return keys.LoadKey(context.Background(), id)
	})
	if err != nil {
		return config.Resolved{}, err
	}
	if r.APIKey == "" && r.Profile.ID() != "vllm" {
		return config.Resolved{}, fmt.Errorf("no API key for provider %s: run `tidewire keys set %s` or edit %s",
			r.Profile.ID(), r.Profile.ID(), config.ConfigPath())
	}
	return r, nil
}

func newRunner(cfg *config.Config, resolved config.Resolved, router *providers.Router, d *dispatch.Dispatcher) *agent.Runner {
	defaults := cfg.Agents.Defaults
	temp := defaults.Temperature
	return agent.NewRunner(router, d, agent.Settings{
		Profile:           resolved.Profile,
		APIKey:            resolved.APIKey,
		Model:             resolved.Model,
		MaxTokens:         defaults.MaxTokens,
		Temperature:       &temp,
		MaxIter:           defaults.MaxToolIter,
		MaxRetries:        defaults.MaxRetries,
		Workspace:         cfg.WorkspacePath(),
		AllowTools:        cfg.Tools.AllowTools,
		AllowUserSessions: cfg.Terminal.AllowUserSessions,
		Parallelism:       cfg.Tools.Parallelism,
		CallTimeout:       time.Duration(cfg.Tools.Exec.Timeout) * time.Second,
	})
}

func newSubagentRunner(runner *agent.Runner, prompts *agent.PromptBuilder, terminals *terminal.Manager) *agent.SubagentRunner {
	return agent.NewSubagentRunner(runner, prompts, terminals, nil)
}

func newAgentLoop(cfg *config.Config, runner *agent.Runner, sessions *session.Manager, prompts *agent.PromptBuilder, terminals *terminal.Manager) *agent.AgentLoop {
	return agent.NewAgentLoop(runner, sessions, prompts, terminals, cfg.Agents.Defaults.HistoryWindow)
}

// ---------------------------------------------------------------------------

// subagentBinding lets invoke_agent be registered before the provider is
// resolved. Until bound it reports the tool as unavailable.
type subagentBinding struct {
	mu  sync.RWMutex
	sub tools.AgentInvoker
}

func newSubagentBinding() *subagentBinding { return &subagentBinding{} }

func (b *subagentBinding) bind(sub tools.AgentInvoker) {
	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()
}

func (b *subagentBinding) Invoke(ctx context.Context, req tools.AgentRequest) (string, error) {
	b.mu.RLock()
	sub := b.sub
	b.mu.RUnlock()
	if sub == nil {
		return "", tools.NewError(tools.KindUnavailable, false, "sub-agents need a configured model provider")
	}
	return sub.Invoke(ctx, req)
}

var _ tools.AgentInvoker = (*subagentBinding)(nil)
