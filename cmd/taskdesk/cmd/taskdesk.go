package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"taskdesk/backend"
	"taskdesk/backend/rest"
	"taskdesk/internal/cache"
	"taskdesk/internal/config"
	"taskdesk/internal/credentials"
	"taskdesk/internal/detail"
	"taskdesk/internal/router"
	"taskdesk/internal/store"
	"taskdesk/internal/tui"
	"taskdesk/internal/utils"
	"taskdesk/internal/watcher"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt     bool
	Verbose      bool
	OutputFormat string
	ConfigPath   string              // Path to config file (for testing)
	CachePath    string              // Path to snapshot database (for testing)
	BaseURL      string              // Overrides api.base_url (for testing)
	Keyring      credentials.Keyring // Overrides the system keyring (for testing)
	Stdin        io.Reader           // Input for prompts (for testing)
	Now          func() time.Time    // Clock (for testing)
}

func (c *Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Config) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	return ExecuteContext(context.Background(), args, stdout, stderr, cfg)
}

// ExecuteContext is Execute with a context that cancels in-flight requests
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer, cfg *Config) int {
	if cfg == nil {
		cfg = &Config{}
	}
	rootCmd := NewTaskDesk(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	utils.GetLogger().SetOutput(stderr)
	defer utils.GetLogger().SetOutput(os.Stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		err = utils.Explain(err)
		// Check if --json flag was passed to output error as JSON
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			// Emit ERROR result code in no-prompt mode
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTaskDesk creates the root command with injectable IO
func NewTaskDesk(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "taskdesk",
		Short:   "A client for the tasks API",
		Long:    "taskdesk lists, searches and edits the tasks held by a tasks REST API, from the command line or a terminal UI.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			utils.SetVerboseMode(verbose || cfg.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Config file (default $XDG_CONFIG_HOME/taskdesk/config.yaml)")

	cmd.AddCommand(newListCmd(stdout, cfg))
	cmd.AddCommand(newSearchCmd(stdout, cfg))
	cmd.AddCommand(newShowCmd(stdout, cfg))
	cmd.AddCommand(newCreateCmd(stdout, cfg))
	cmd.AddCommand(newUpdateCmd(stdout, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, cfg))
	cmd.AddCommand(newReorderCmd(stdout, cfg))
	cmd.AddCommand(newEditCmd(stdout, stderr, cfg))
	cmd.AddCommand(newOpenCmd(stdout, cfg))
	cmd.AddCommand(newCacheCmd(stdout, cfg))
	cmd.AddCommand(newLoginCmd(stdout, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, cfg))
	cmd.AddCommand(newWhoAmICmd(stdout, cfg))

	return cmd
}

// =============================================================================
// Wiring
// =============================================================================

// loadConfig reads the config file and applies command-line overrides
func loadConfig(cmd *cobra.Command, cfg *Config) (*config.Config, error) {
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	if noPrompt {
		cfg.NoPrompt = true
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = cfg.ConfigPath
	}
	appCfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	format := cfg.OutputFormat
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		format = "json"
	}
	appCfg.ApplyFlags(cfg.NoPrompt, format)
	cfg.NoPrompt = appCfg.NoPrompt

	if cfg.BaseURL != "" {
		appCfg.API.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.CachePath != "" {
		appCfg.Cache.Path = cfg.CachePath
	}
	return appCfg, nil
}

func newManager(cfg *Config) *credentials.Manager {
	opts := []credentials.ManagerOption{credentials.WithClock(cfg.now)}
	if cfg.Keyring != nil {
		opts = append(opts, credentials.WithKeyring(cfg.Keyring))
	}
	return credentials.NewManager(opts...)
}

// app bundles what a task command needs
type app struct {
	cfg     *config.Config
	client  *rest.Client
	store   *store.Store
	cache   *cache.Cache // nil when disabled or unavailable
	manager *credentials.Manager
}

// openApp authenticates and connects the store to the API and the snapshot cache
func openApp(ctx context.Context, cmd *cobra.Command, cfg *Config) (*app, error) {
	appCfg, err := loadConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}

	manager := newManager(cfg)
	info, err := manager.Get(ctx, appCfg.API.Username)
	if err != nil {
		return nil, err
	}
	if !info.Found {
		return nil, utils.ErrNotLoggedIn()
	}
	if info.Expired(cfg.now()) {
		return nil, utils.ErrTokenExpired()
	}

	client, err := rest.New(rest.Config{
		BaseURL: appCfg.API.BaseURL,
		Token:   info.Token,
		Timeout: appCfg.GetTimeout(),
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: appCfg, client: client, manager: manager}
	opts := []store.Option{store.WithClock(cfg.now)}
	if appCfg.IsCacheEnabled() {
		c, err := cache.Open(appCfg.GetCachePath())
		if err != nil {
			utils.Warnf("Snapshot cache unavailable: %v", err)
		} else {
			a.cache = c
			opts = append(opts, store.WithPersister(c))
		}
	}
	a.store = store.New(client, opts...)
	utils.Debugf("Using tasks API at %s as %s (token from %s)", client.BaseURL(), info.Username, info.Source)
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.client.Close()
}

func (a *app) jsonOutput() bool {
	return a.cfg.OutputFormat == "json"
}

// restore loads the snapshot into the store. A broken snapshot is ignored.
func (a *app) restore(ctx context.Context) bool {
	restored, err := a.store.Restore(ctx)
	if err != nil {
		utils.Warnf("Ignoring unreadable snapshot: %v", err)
		return false
	}
	return restored
}

// ensureLoaded fills the store from the snapshot, or the API when there is none
func (a *app) ensureLoaded(ctx context.Context) error {
	if a.restore(ctx) {
		return nil
	}
	_, err := a.store.ListTasks(ctx)
	return err
}

// lookup finds a task cache-first. A task missing from a restored snapshot
// triggers one refetch before giving up.
func (a *app) lookup(ctx context.Context, id int) (*backend.Task, error) {
	restored := a.restore(ctx)
	task, err := a.store.GetTaskByID(ctx, id)
	if restored && errors.Is(err, backend.ErrNotFound) {
		utils.Debugf("Task %d not in snapshot, refetching", id)
		if _, err := a.store.ListTasks(ctx); err != nil {
			return nil, err
		}
		task, err = a.store.GetTaskByID(ctx, id)
	}
	return task, err
}

// printResult emits a result code in no-prompt mode
func printResult(stdout io.Writer, cfg *Config, code string) {
	if cfg.NoPrompt {
		_, _ = fmt.Fprintln(stdout, code)
	}
}

// =============================================================================
// Task commands
// =============================================================================

func newListCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all tasks",
		Long:    "Fetch every task from the API and refresh the local snapshot.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return doList(ctx, a, cfg, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doList(ctx context.Context, a *app, cfg *Config, stdout io.Writer) error {
	tasks, err := a.store.ListTasks(ctx)
	if err != nil {
		return err
	}
	if a.jsonOutput() {
		return outputTaskListJSON(tasks, "", cfg.now(), stdout)
	}
	printTasks(stdout, tasks, cfg.now(), "No tasks")
	printResult(stdout, cfg, ResultInfoOnly)
	return nil
}

func newSearchCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search tasks on the server",
		Long:  "Ask the API for tasks matching the query. Results are not cached.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			tasks, err := a.store.SearchTasks(ctx, query)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return outputTaskListJSON(tasks, query, cfg.now(), stdout)
			}
			printTasks(stdout, tasks, cfg.now(), fmt.Sprintf("No tasks match %q", query))
			printResult(stdout, cfg, ResultInfoOnly)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newShowCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task",
		Long:  "Show a task from the local snapshot, fetching the list only when the snapshot is missing or lacks the task.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return doShow(ctx, a, cfg, id, stdout)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func doShow(ctx context.Context, a *app, cfg *Config, id int, stdout io.Writer) error {
	task, err := a.lookup(ctx, id)
	if err != nil {
		return err
	}
	if a.jsonOutput() {
		return outputTaskJSON(task, cfg.now(), stdout)
	}
	printTaskDetail(stdout, task, cfg.now())
	printResult(stdout, cfg, ResultInfoOnly)
	return nil
}

// taskFlags registers the field flags shared by create and update
func taskFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Task title")
	cmd.Flags().String("description", "", "Task description")
	cmd.Flags().Bool("checked", false, "Mark the task completed (--checked=false to reopen)")
	cmd.Flags().String("expiry", "", "Expiry date: ISO date/time, or relative like +3d, +1w, -1m (use \"\" to clear)")
}

// applyTaskFlags copies the flags that were set onto task
func applyTaskFlags(cmd *cobra.Command, task *backend.Task, now time.Time) (bool, error) {
	changed := false
	if cmd.Flags().Changed("title") {
		task.Title, _ = cmd.Flags().GetString("title")
		changed = true
	}
	if cmd.Flags().Changed("description") {
		task.Description, _ = cmd.Flags().GetString("description")
		changed = true
	}
	if cmd.Flags().Changed("checked") {
		task.IsChecked, _ = cmd.Flags().GetBool("checked")
		changed = true
	}
	if cmd.Flags().Changed("expiry") {
		input, _ := cmd.Flags().GetString("expiry")
		expiry, err := utils.ParseExpiryInput(input, now)
		if err != nil {
			return false, err
		}
		task.ExpiryDate = expiry
		changed = true
	}
	return changed, nil
}

func newCreateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Long:  "Create a placeholder task. Field flags are applied with a follow-up update.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// The new task is prepended to the cached list, so load it first
			if err := a.ensureLoaded(ctx); err != nil {
				return err
			}

			task, err := a.store.CreateTask(ctx)
			if err != nil {
				return err
			}

			edited := *task
			changed, err := applyTaskFlags(cmd, &edited, cfg.now())
			if err != nil {
				return fmt.Errorf("task %d created but not updated: %w", task.ID, err)
			}
			if changed {
				if task, err = a.store.UpdateTask(ctx, task.ID, edited); err != nil {
					return fmt.Errorf("task %d created but not updated: %w", edited.ID, err)
				}
			}

			if a.jsonOutput() {
				return outputActionJSON("create", task, nil, cfg.now(), stdout)
			}
			_, _ = fmt.Fprintf(stdout, "Created task %d: %s\n", task.ID, task.Title)
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	taskFlags(cmd)
	return cmd
}

func newUpdateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long:  "Change the fields given as flags and send the whole task to the API.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.lookup(ctx, id)
			if err != nil {
				return err
			}
			if task.ExpiryDate, err = backend.NormalizeExpiry(task.ExpiryDate); err != nil {
				return err
			}
			changed, err := applyTaskFlags(cmd, task, cfg.now())
			if err != nil {
				return err
			}
			if !changed {
				return fmt.Errorf("nothing to update: pass --title, --description, --checked or --expiry")
			}

			updated, err := a.store.UpdateTask(ctx, id, *task)
			if err != nil {
				return err
			}

			if a.jsonOutput() {
				return outputActionJSON("update", updated, nil, cfg.now(), stdout)
			}
			_, _ = fmt.Fprintf(stdout, "Updated task %d: %s\n", updated.ID, updated.Title)
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	taskFlags(cmd)
	return cmd
}

func newDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Long:    "Delete a task after confirmation. Use -y to skip the prompt.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := utils.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			task, err := a.lookup(ctx, id)
			if err != nil {
				return err
			}

			if !cfg.NoPrompt {
				prompt := fmt.Sprintf("Delete task %d %q?", task.ID, task.Title)
				if !utils.PromptYesNoWithReader(prompt, cfg.stdin(), stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			next := detail.NextTarget(a.store.Tasks(), id)
			deleted, err := a.store.DeleteTask(ctx, id)
			if err != nil {
				return err
			}
			if !deleted {
				return utils.WrapWithSuggestion(
					fmt.Errorf("the server did not delete task %d", id),
					"Run 'taskdesk show "+args[0]+"' to check whether it still exists")
			}

			if a.jsonOutput() {
				return outputActionJSON("delete", task, next, cfg.now(), stdout)
			}
			_, _ = fmt.Fprintf(stdout, "Deleted task %d: %s\n", task.ID, task.Title)
			if next != nil {
				_, _ = fmt.Fprintf(stdout, "Next task: %d\n", *next)
			}
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newReorderCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id>...",
		Short: "Reorder tasks",
		Long:  "Move the given tasks to the top, in the given order, and send the full ordering to the API. Other tasks keep their relative order.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			seen := make(map[int]bool)
			for _, arg := range args {
				id, err := utils.ParseTaskID(arg)
				if err != nil {
					return err
				}
				if seen[id] {
					return fmt.Errorf("task %d listed twice", id)
				}
				seen[id] = true
				ids = append(ids, id)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			current, err := a.store.ListTasks(ctx)
			if err != nil {
				return err
			}
			ordered, err := reorder(current, ids)
			if err != nil {
				return err
			}

			result, err := a.store.UpdateTasksOrders(ctx, ordered)
			if err != nil {
				return err
			}
			if result == nil {
				result = ordered
			}

			if a.jsonOutput() {
				return outputTaskListJSON(result, "", cfg.now(), stdout)
			}
			_, _ = fmt.Fprintln(stdout, "New order:")
			printTasks(stdout, result, cfg.now(), "No tasks")
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// reorder puts the tasks named by ids first, followed by the rest in their current order
func reorder(tasks []backend.Task, ids []int) ([]backend.Task, error) {
	out := make([]backend.Task, 0, len(tasks))
	picked := make(map[int]bool)
	for _, id := range ids {
		idx := backend.IndexOf(tasks, id)
		if idx < 0 {
			return nil, &backend.NotFoundError{ID: id}
		}
		out = append(out, tasks[idx])
		picked[id] = true
	}
	for _, t := range tasks {
		if !picked[t.ID] {
			out = append(out, t)
		}
	}
	return out, nil
}

// =============================================================================
// Terminal UI
// =============================================================================

func newEditCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [id]",
		Short: "Open the terminal UI",
		Long:  "Browse tasks in a terminal UI. With an id, the task opens in the detail drawer, where edits are saved as you type.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			startPath := router.PathTasks
			if len(args) == 1 {
				id, err := utils.ParseTaskID(args[0])
				if err != nil {
					return err
				}
				startPath = router.TaskPath(id)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// The UI owns the terminal; logs go to ui.log_file or nowhere
			if a.cfg.UI.LogFile != "" {
				restore, err := utils.GetLogger().RedirectToFile(a.cfg.UI.LogFile)
				if err != nil {
					return err
				}
				defer restore()
			} else {
				utils.GetLogger().SetOutput(io.Discard)
				defer utils.GetLogger().SetOutput(stderr)
			}

			username := a.cfg.API.Username
			opts := []tui.Option{
				tui.WithDebounce(a.cfg.GetDebounce()),
				tui.WithStartPath(startPath),
				tui.WithRouter(router.New(func() bool {
					return a.manager.Authenticated(ctx, username)
				})),
			}
			if reload, stop := watchSnapshot(ctx, a); reload != nil {
				defer stop()
				opts = append(opts, tui.WithReload(reload))
			}

			model := tui.New(ctx, a.store, opts...)
			defer model.Close()

			p := tea.NewProgram(model,
				tea.WithContext(ctx),
				tea.WithInput(cfg.stdin()),
				tea.WithOutput(stdout),
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(),
			)
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal UI failed: %w", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// watchSnapshot signals on the returned channel when another process rewrites
// the snapshot. Both results are nil when watching is off or fails to start.
func watchSnapshot(ctx context.Context, a *app) (<-chan struct{}, func()) {
	if a.cache == nil || !a.cfg.IsCacheWatchEnabled() {
		return nil, nil
	}

	reload := make(chan struct{}, 1)
	w, err := watcher.New(watcher.Config{
		Path: a.cache.Path(),
		OnChange: func() {
			other, err := a.cache.WrittenByOther(ctx)
			if err != nil {
				utils.Debugf("Snapshot check failed: %v", err)
				return
			}
			if !other {
				return
			}
			select {
			case reload <- struct{}{}:
			default:
			}
		},
	})
	if err != nil {
		utils.Warnf("Not watching snapshot: %v", err)
		return nil, nil
	}
	if err := w.Start(); err != nil {
		utils.Warnf("Not watching snapshot: %v", err)
		w.Stop()
		return nil, nil
	}
	return reload, w.Stop
}

// =============================================================================
// Navigation
// =============================================================================

func newOpenCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "open <path>",
		Short: "Resolve an application path",
		Long: `Resolve a path such as apps/tasks or apps/tasks/3 the way the UI does,
following redirects and the sign-in guard, then show what lives there.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			appCfg, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			manager := newManager(cfg)
			username := appCfg.API.Username
			rtr := router.New(func() bool {
				return manager.Authenticated(ctx, username)
			})

			match, err := rtr.Resolve(args[0])
			if err != nil {
				return utils.WrapWithSuggestion(err, "Known paths: apps/tasks, apps/tasks/<id>, sign-in")
			}

			if appCfg.OutputFormat == "json" {
				return outputOpenJSON(ctx, cmd, cfg, match, stdout)
			}

			for _, p := range match.Redirects {
				_, _ = fmt.Fprintf(stdout, "/%s -> ", p)
			}
			_, _ = fmt.Fprintf(stdout, "/%s\n", match.Path)

			switch match.Route.Path {
			case router.PathTasks, router.PathTask:
				a, err := openApp(ctx, cmd, cfg)
				if err != nil {
					return err
				}
				defer a.Close()
				if match.Route.Path == router.PathTasks {
					return doList(ctx, a, cfg, stdout)
				}
				id, err := match.IntParam("id")
				if err != nil {
					return err
				}
				return doShow(ctx, a, cfg, id, stdout)
			case router.PathSignIn:
				_, _ = fmt.Fprintln(stdout, "Sign in with 'taskdesk login'")
				if match.ReturnTo != "" {
					_, _ = fmt.Fprintf(stdout, "then run 'taskdesk open %s'\n", match.ReturnTo)
				}
			default:
				_, _ = fmt.Fprintf(stdout, "Nothing to show at /%s\n", match.Path)
			}
			printResult(stdout, cfg, ResultInfoOnly)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// Cache
// =============================================================================

func newCacheCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local task snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the snapshot database path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, appCfg.GetCachePath())
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop the snapshot; the next command refetches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			if !appCfg.IsCacheEnabled() {
				_, _ = fmt.Fprintln(stdout, "Snapshot cache is disabled")
				printResult(stdout, cfg, ResultInfoOnly)
				return nil
			}

			c, err := cache.Open(appCfg.GetCachePath())
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			if err := c.Clear(cmd.Context()); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(stdout, "Snapshot cleared")
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return cacheCmd
}

// =============================================================================
// Credentials
// =============================================================================

// usernameArg returns the optional username argument, falling back to api.username
func usernameArg(args []string, appCfg *config.Config) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return appCfg.API.Username
}

func newLoginCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Store an API token in the system keyring",
		Long:  "Store the bearer token sent to the tasks API. Without --token the token is read from the terminal.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			token, _ := cmd.Flags().GetString("token")

			handler := credentials.NewCLIHandler(newManager(cfg), cfg.stdin(), stdout)
			if err := handler.Login(cmd.Context(), usernameArg(args, appCfg), token); err != nil {
				return err
			}
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("token", "", "API token (read from the terminal when omitted)")
	return cmd
}

func newLogoutCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout [username]",
		Short: "Remove the stored API token",
		Long:  "Remove the token from the system keyring. The " + credentials.EnvToken + " environment variable is not affected.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			handler := credentials.NewCLIHandler(newManager(cfg), nil, stdout)
			if err := handler.Logout(cmd.Context(), usernameArg(args, appCfg)); err != nil {
				return err
			}
			printResult(stdout, cfg, ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func newWhoAmICmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami [username]",
		Short: "Show where the API token comes from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, err := loadConfig(cmd, cfg)
			if err != nil {
				return err
			}
			handler := credentials.NewCLIHandler(newManager(cfg), nil, stdout)
			return handler.WhoAmI(cmd.Context(), usernameArg(args, appCfg), appCfg.OutputFormat == "json")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// =============================================================================
// Output
// =============================================================================

// taskJSON is a task as printed by --json
type taskJSON struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	IsChecked   bool   `json:"isChecked"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
	Overdue     bool   `json:"overdue"`
}

// listTasksResponse is the JSON response for list, search and reorder
type listTasksResponse struct {
	Tasks  []taskJSON `json:"tasks"`
	Query  string     `json:"query,omitempty"`
	Count  int        `json:"count"`
	Result string     `json:"result"`
}

// taskResponse is the JSON response for show
type taskResponse struct {
	Task   taskJSON `json:"task"`
	Result string   `json:"result"`
}

// actionResponse is the JSON response for create, update and delete
type actionResponse struct {
	Action string   `json:"action"`
	Task   taskJSON `json:"task"`
	Next   *int     `json:"next,omitempty"`
	Result string   `json:"result"`
}

// openResponse is the JSON response for open
type openResponse struct {
	Path      string     `json:"path"`
	Route     string     `json:"route"`
	Redirects []string   `json:"redirects,omitempty"`
	ReturnTo  string     `json:"return_to,omitempty"`
	Tasks     []taskJSON `json:"tasks,omitempty"`
	Task      *taskJSON  `json:"task,omitempty"`
	Result    string     `json:"result"`
}

// errorResponse is the JSON response for errors
type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func taskToJSON(t *backend.Task, now time.Time) taskJSON {
	return taskJSON{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		IsChecked:   t.IsChecked,
		ExpiryDate:  t.ExpiryDate,
		Overdue:     t.IsOverdue(now),
	}
}

func tasksToJSON(tasks []backend.Task, now time.Time) []taskJSON {
	out := make([]taskJSON, 0, len(tasks))
	for i := range tasks {
		out = append(out, taskToJSON(&tasks[i], now))
	}
	return out
}

func writeJSON(stdout io.Writer, v interface{}) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// outputTaskListJSON outputs tasks in JSON format
func outputTaskListJSON(tasks []backend.Task, query string, now time.Time, stdout io.Writer) error {
	jsonTasks := tasksToJSON(tasks, now)
	return writeJSON(stdout, listTasksResponse{
		Tasks:  jsonTasks,
		Query:  query,
		Count:  len(jsonTasks),
		Result: ResultInfoOnly,
	})
}

func outputTaskJSON(task *backend.Task, now time.Time, stdout io.Writer) error {
	return writeJSON(stdout, taskResponse{Task: taskToJSON(task, now), Result: ResultInfoOnly})
}

// outputActionJSON outputs action result in JSON format
func outputActionJSON(action string, task *backend.Task, next *int, now time.Time, stdout io.Writer) error {
	return writeJSON(stdout, actionResponse{
		Action: action,
		Task:   taskToJSON(task, now),
		Next:   next,
		Result: ResultActionCompleted,
	})
}

func outputOpenJSON(ctx context.Context, cmd *cobra.Command, cfg *Config, match router.Match, stdout io.Writer) error {
	response := openResponse{
		Path:      match.Path,
		Route:     match.Route.Path,
		Redirects: match.Redirects,
		ReturnTo:  match.ReturnTo,
		Result:    ResultInfoOnly,
	}

	switch match.Route.Path {
	case router.PathTasks, router.PathTask:
		a, err := openApp(ctx, cmd, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if match.Route.Path == router.PathTasks {
			tasks, err := a.store.ListTasks(ctx)
			if err != nil {
				return err
			}
			response.Tasks = tasksToJSON(tasks, cfg.now())
			break
		}
		id, err := match.IntParam("id")
		if err != nil {
			return err
		}
		task, err := a.lookup(ctx, id)
		if err != nil {
			return err
		}
		tj := taskToJSON(task, cfg.now())
		response.Task = &tj
	}
	return writeJSON(stdout, response)
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}

// printTasks prints one line per task
func printTasks(stdout io.Writer, tasks []backend.Task, now time.Time, empty string) {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(stdout, empty)
		return
	}
	for _, t := range tasks {
		_, _ = fmt.Fprintln(stdout, formatTaskLine(t, now))
	}
}

// formatTaskLine renders "   3  [✓] Title  (due 2026-01-15 09:30, overdue)"
func formatTaskLine(t backend.Task, now time.Time) string {
	status := "[ ]"
	if t.IsChecked {
		status = "[✓]"
	}
	line := fmt.Sprintf("%4d  %s %s", t.ID, status, t.Title)

	due := utils.FormatExpiry(t.ExpiryDate)
	switch {
	case due != "" && t.IsOverdue(now):
		line += fmt.Sprintf("  (due %s, overdue)", due)
	case due != "":
		line += fmt.Sprintf("  (due %s)", due)
	}
	return line
}

func printTaskDetail(stdout io.Writer, t *backend.Task, now time.Time) {
	completed := "no"
	if t.IsChecked {
		completed = "yes"
	}
	expiry := utils.FormatExpiry(t.ExpiryDate)
	if expiry == "" {
		expiry = "none"
	} else if t.IsOverdue(now) {
		expiry += " (overdue)"
	}

	_, _ = fmt.Fprintf(stdout, "Task %d\n", t.ID)
	_, _ = fmt.Fprintf(stdout, "Title:       %s\n", t.Title)
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", t.Description)
	_, _ = fmt.Fprintf(stdout, "Completed:   %s\n", completed)
	_, _ = fmt.Fprintf(stdout, "Expiry:      %s\n", expiry)
}
