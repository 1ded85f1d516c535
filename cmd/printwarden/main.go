package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/printwarden/printwarden/internal/alert"
	"github.com/printwarden/printwarden/internal/api"
	"github.com/printwarden/printwarden/internal/budget"
	"github.com/printwarden/printwarden/internal/config"
	"github.com/printwarden/printwarden/internal/event"
	"github.com/printwarden/printwarden/internal/killswitch"
	"github.com/printwarden/printwarden/internal/monitor"
	"github.com/printwarden/printwarden/internal/policy"
	"github.com/printwarden/printwarden/internal/pricing"
	"github.com/printwarden/printwarden/internal/recovery"
	"github.com/printwarden/printwarden/internal/session"
	"github.com/printwarden/printwarden/internal/spooler"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "printwarden",
		Short: "Print budget enforcement for kiosk sessions",
		Long:  "PrintWarden pauses every new print job before paper moves, prices it,\nand releases it only after the user's budget has been charged.",
	}

	var configFile string
	var port int
	var userID string
	var devMode bool

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the PrintWarden daemon and local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(configFile, port, userID, devMode)
		},
	}
	startCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: printwarden.yaml)")
	startCmd.Flags().IntVarP(&port, "port", "p", 0, "Override API port (default: 6878)")
	startCmd.Flags().StringVarP(&userID, "user", "u", "", "User whose budget this kiosk session charges")
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Dev mode: verbose logs, CORS *")
	_ = startCmd.MarkFlagRequired("user")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status, session, and last known budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(port)
		},
	}
	statusCmd.Flags().IntVarP(&port, "port", "p", 0, "API port (default: 6878)")

	resumeCmd := &cobra.Command{
		Use:   "resume-printers",
		Short: "Resume printers left paused by a crash",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResumePrinters(port, configFile)
		},
	}
	resumeCmd.Flags().IntVarP(&port, "port", "p", 0, "API port (default: 6878)")
	resumeCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config and compile print rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(configFile)
		},
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("PrintWarden %s\n", version)
			fmt.Printf("  Commit:  %s\n", commit)
			fmt.Printf("  Built:   %s\n", buildDate)
		},
	}

	rootCmd.AddCommand(startCmd, initCmd, statusCmd, resumeCmd, validateCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runStart(configFile string, portOverride int, userID string, devMode bool) error {
	cfgLoader := config.NewLoader()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfgLoader.Load(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg := cfgLoader.Get()

	if portOverride > 0 {
		cfg.Server.Port = portOverride
	}
	if devMode {
		cfg.Server.CORS = true
		cfg.Server.LogLevel = "debug"
	}

	logger := newLogger(cfg.Server.LogLevel)

	// Budget store
	store, closeStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Spooler adapter
	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}

	// Crash-recovery journal and registry
	var journal recovery.Journal
	if cfg.Recovery.JournalPath != "" {
		j, err := recovery.NewSQLiteJournal(cfg.Recovery.JournalPath)
		if err != nil {
			return fmt.Errorf("failed to open recovery journal: %w", err)
		}
		defer func() { _ = j.Close() }()
		journal = j
	}
	registry := recovery.NewRegistry(journal, logger)

	// Resume anything a previous run left paused before accepting work.
	registry.SweepJournal(context.Background(), adapter)

	// Events and alerts
	bus := event.NewBus(logger)
	alertMgr := alert.NewManager(cfg.Alerts, logger)

	// Print rules
	var ruleEngine *policy.Engine
	if len(cfg.PrintRules) > 0 {
		celEval, err := policy.NewCELEvaluator(logger)
		if err != nil {
			return fmt.Errorf("failed to create rule evaluator: %w", err)
		}
		ruleEngine = policy.NewEngine(celEval, logger)
		if err := ruleEngine.LoadRules(cfg.PrintRules); err != nil {
			logger.Warn("some print rules failed to load", "error", err)
		}
	}

	// Monitor and session countdown
	defaults := pricing.Snapshot{
		BlackWhitePerPage: cfg.Pricing.DefaultBlackWhite,
		ColorPerPage:      cfg.Pricing.DefaultColor,
	}
	mon := monitor.New(monitor.Config{
		PollInterval: cfg.Monitor.PollInterval.Std(),
		UserID:       userID,
		PrinterPause: cfg.Monitor.PrinterPause,
	}, adapter, store, ruleEngine, registry, bus, alertMgr, defaults, logger)

	countdown := session.New(session.Config{
		UserID:         userID,
		SyncInterval:   cfg.Session.SyncInterval.Std(),
		WarnThresholds: cfg.Session.WarnThresholds,
	}, store, bus, logger)

	countdown.OnExpire(func() {
		mon.Stop()
		registry.ResumeAll(context.Background(), adapter)
	})

	// Operator kill switch
	var ks *killswitch.KillSwitch
	if cfg.KillSwitch.SentinelPath != "" {
		ks, err = killswitch.New(cfg.KillSwitch.SentinelPath, logger)
		if err != nil {
			return fmt.Errorf("failed to create kill switch: %w", err)
		}
		ks.OnTrigger(func(reason string) {
			logger.Warn("kill switch triggered, forcing logout", "reason", reason)
			countdown.End(context.Background(), session.StatusTerminated)
			mon.Stop()
			registry.ResumeAll(context.Background(), adapter)
			alertMgr.Send(alert.Alert{
				Type:     alert.TypeForcedLogout,
				Severity: "warning",
				Title:    "Session terminated by operator",
				Message:  reason,
				UserID:   userID,
			})
		})
		if err := ks.Start(); err != nil {
			return fmt.Errorf("failed to start kill switch: %w", err)
		}
		defer ks.Stop()
	}

	apiServer := api.NewServer(cfg.Server, mon, countdown, registry, adapter, ruleEngine, ks, bus, logger)

	fmt.Println()
	fmt.Printf("  PrintWarden %s\n", version)
	fmt.Printf("  → API:     http://localhost:%d/api\n", cfg.Server.Port)
	fmt.Printf("  → Events:  ws://localhost:%d/api/ws\n", cfg.Server.Port)
	fmt.Printf("  → Store:   %s\n", cfg.Store.Driver)
	fmt.Printf("  → User:    %s\n", userID)
	if ruleEngine != nil {
		fmt.Printf("  → Rules:   %d loaded\n", ruleEngine.RuleCount())
	}
	fmt.Println()

	// Graceful shutdown: end the session, stop admitting jobs, and leave no
	// printer paused behind us.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down")
		countdown.End(context.Background(), session.StatusEnded)
		mon.Stop()
		registry.ResumeAll(context.Background(), adapter)
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()
		_ = apiServer.Shutdown(shutCtx)
	}()

	if err := apiServer.Start(api.APIAddr(cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func buildStore(cfg *config.Config, logger *slog.Logger) (budget.Store, func(), error) {
	switch cfg.Store.Driver {
	case "rest":
		s := budget.NewRESTStore(cfg.Store.URL, cfg.Store.AuthToken, cfg.Store.Timeout.Std(), logger)
		return s, func() {}, nil
	case "sqlite":
		s, err := budget.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open budget store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func buildAdapter(cfg *config.Config, logger *slog.Logger) (spooler.Adapter, error) {
	switch cfg.Spooler.Driver {
	case "cups":
		return spooler.NewCUPSAdapter(cfg.Spooler.CommandTimeout.Std(), logger), nil
	default:
		return nil, fmt.Errorf("unknown spooler driver %q", cfg.Spooler.Driver)
	}
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func runInit() error {
	configPath := "printwarden.yaml"
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("  ⚠ %s already exists (skipping)\n", configPath)
		return nil
	}
	if err := config.GenerateDefault(configPath); err != nil {
		return err
	}
	fmt.Printf("  ✓ Generated %s\n", configPath)
	fmt.Println()
	fmt.Println("  Next steps:")
	fmt.Println("    edit printwarden.yaml                 # Point at your budget store")
	fmt.Println("    printwarden start --user <user-id>    # Start a kiosk session daemon")
	return nil
}

func runStatus(port int) error {
	p := resolvePort(port)
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d/api/status", p))
	if err != nil {
		fmt.Printf("PrintWarden is not running on port %d\n", p)
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return err
	}

	fmt.Println("PrintWarden Status")
	fmt.Println("─────────────────")
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-20s %v\n", k+":", status[k])
	}
	return nil
}

// runResumePrinters asks a running daemon to resume journaled printers, and
// falls back to sweeping the journal directly when no daemon is up. The
// fallback is the path that matters after a hard crash.
func runResumePrinters(port int, configFile string) error {
	p := resolvePort(port)
	resp, err := http.Post(fmt.Sprintf("http://localhost:%d/api/recovery/resume-printers", p), "application/json", nil)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()
		var result map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&result)
		fmt.Printf("  ✓ Resume requested. Attempted: %v\n", result["attempted"])
		return nil
	}

	fmt.Printf("  Daemon not running on port %d, sweeping journal directly\n", p)

	cfgLoader := config.NewLoader()
	if configFile == "" {
		configFile = findConfigFile()
	}
	if configFile != "" {
		if err := cfgLoader.Load(configFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := cfgLoader.Get()
	if cfg.Recovery.JournalPath == "" {
		return fmt.Errorf("no recovery journal configured")
	}

	logger := newLogger(cfg.Server.LogLevel)
	journal, err := recovery.NewSQLiteJournal(cfg.Recovery.JournalPath)
	if err != nil {
		return fmt.Errorf("failed to open recovery journal: %w", err)
	}
	defer func() { _ = journal.Close() }()

	adapter, err := buildAdapter(cfg, logger)
	if err != nil {
		return err
	}

	registry := recovery.NewRegistry(journal, logger)
	registry.SweepJournal(context.Background(), adapter)
	fmt.Println("  ✓ Journal sweep complete")
	return nil
}

func runValidate(configFile string) error {
	path := configFile
	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return fmt.Errorf("no config file found, run 'printwarden init' to create one")
	}

	loader := config.NewLoader()
	if err := loader.Load(path); err != nil {
		fmt.Printf("✗ Invalid config: %s\n", err)
		return err
	}

	cfg := loader.Get()
	fmt.Printf("✓ Config file valid: %s\n", path)
	fmt.Printf("  Store:  %s\n", cfg.Store.Driver)
	fmt.Printf("  Port:   %d\n", cfg.Server.Port)
	fmt.Printf("  Rules:  %d\n", len(cfg.PrintRules))

	if len(cfg.PrintRules) == 0 {
		return nil
	}
	evaluator, err := policy.NewCELEvaluator(nil)
	if err != nil {
		return fmt.Errorf("failed to create rule evaluator: %w", err)
	}
	for _, r := range cfg.PrintRules {
		if _, err := evaluator.CompileExpression(r.Condition); err != nil {
			fmt.Printf("  ✗ Rule %q: invalid condition: %s\n", r.Name, err)
		} else {
			fmt.Printf("  ✓ Rule %q: condition valid\n", r.Name)
		}
	}
	return nil
}

func findConfigFile() string {
	candidates := []string{
		"printwarden.yaml",
		"printwarden.yml",
	}
	if home := os.Getenv("HOME"); home != "" {
		candidates = append(candidates, home+"/.config/printwarden/config.yaml")
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func resolvePort(port int) int {
	if port == 0 {
		return 6878
	}
	return port
}
