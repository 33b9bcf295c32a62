// Command ensemble runs the chat orchestration engine from the terminal:
// it reads a message, routes it, executes the selected strategy, and
// streams the answer to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/openmake/ensemble/internal/adapter/decisionlog"
	"github.com/openmake/ensemble/internal/adapter/llm"
	"github.com/openmake/ensemble/internal/adapter/tool"
	"github.com/openmake/ensemble/internal/catalog"
	"github.com/openmake/ensemble/internal/domain"
	"github.com/openmake/ensemble/internal/infra/config"
	"github.com/openmake/ensemble/internal/infra/logger"
	"github.com/openmake/ensemble/internal/infra/tracer"
	"github.com/openmake/ensemble/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to config.yaml (optional)")
		mode       = flag.String("mode", "chat", "execution mode: chat, discussion, deep_research")
		tier       = flag.String("tier", "free", "caller tier for tool permissions")
		profile    = flag.String("profile", "", "execution profile override: standard, fast, quality")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *profile != "" {
		cfg.Orchestrator.Profile = *profile
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	cat, err := catalog.Load(cfg.Orchestrator.CatalogOverlay)
	if err != nil {
		return err
	}

	provider, err := llm.Build(ctx, cfg.LLM, log)
	if err != nil {
		return err
	}

	tools := tool.NewRegistry()
	var search domain.SearchProvider
	var fetcher usecase.PageFetcher
	if cfg.Tools.SearchURL != "" {
		ws := tool.NewWebSearch(cfg.Tools.SearchURL, log)
		search = ws
		if err := tools.Register(ws); err != nil {
			return err
		}
		pf := tool.NewPageFetch(cfg.Tools.FetchMaxBytes, log)
		fetcher = pf
		if err := tools.Register(pf); err != nil {
			return err
		}
	}
	if len(cfg.Tools.MCPServers) > 0 {
		bridge, err := tool.NewMCPBridge(ctx, cfg.Tools.MCPServers, log)
		if err != nil {
			return err
		}
		defer bridge.Close()
		for _, t := range bridge.Tools() {
			if err := tools.Register(t); err != nil {
				return err
			}
		}
	}

	var sink domain.DecisionSink
	if cfg.DecisionLog.Path != "" {
		sqliteSink, err := decisionlog.Open(cfg.DecisionLog.Path, log)
		if err != nil {
			return err
		}
		defer sqliteSink.Close()
		sink = sqliteSink
	}

	prof := usecase.ProfileByName(cfg.Orchestrator.Profile)
	maxTurns := cfg.Orchestrator.MaxTurns
	if maxTurns <= 0 {
		maxTurns = prof.MaxTurns
	}

	var semantic usecase.SemanticRouter
	if cfg.Orchestrator.SemanticRouting {
		semantic = usecase.NewLLMSemanticRouter(provider, cfg.LLM.Model)
	}
	router := usecase.NewRouter(cat, semantic, cfg.Orchestrator.SemanticTimeout, log)

	models := usecase.DefaultModelTable()
	vision := usecase.NewVisionDescriber(provider, models.Resolve(usecase.QueryVision).Primary)

	discussion := usecase.NewDiscussionEngine(usecase.DiscussionDeps{
		Catalog: cat,
		Router:  router,
		LLM:     provider,
		Search:  search,
		Vision:  vision,
		Logger:  log,
	}, usecase.DiscussionConfig{
		MaxRounds:   cfg.Orchestrator.Discussion.MaxRounds,
		MaxExperts:  cfg.Orchestrator.Discussion.MaxExperts,
		CrossReview: cfg.Orchestrator.Discussion.CrossReview,
		FactCheck:   cfg.Orchestrator.Discussion.FactCheck,
		Model:       cfg.LLM.Model,
	})

	var research *usecase.ResearchEngine
	if search != nil {
		research = usecase.NewResearchEngine(usecase.ResearchDeps{
			LLM:     provider,
			Search:  search,
			Fetcher: fetcher,
			Logger:  log,
			Model:   cfg.LLM.Model,
		})
	}

	dispatcher := usecase.NewDispatcher(usecase.DispatcherDeps{
		Catalog: cat,
		Router:  router,
		Guard:   usecase.NewSecurityGuard(log),
		Models:  models,
		Direct:  usecase.NewDirectStrategy(provider, log),
		Parallel: usecase.NewA2AStrategy(provider, log),
		Loop: usecase.NewAgentLoop(usecase.LoopDeps{
			LLM:        provider,
			Tools:      tools,
			Authorizer: tool.NewTierTable(cfg.Tools.Tiers),
			Classifier: usecase.NewErrorClassifier(),
			Logger:     log,
			MaxTurns:   maxTurns,
		}),
		Discussion:      discussion,
		Research:        research,
		Monitor:         usecase.NewMonitor(),
		Sink:            sink,
		Logger:          log,
		Profile:         prof,
		SemanticRouting: cfg.Orchestrator.SemanticRouting,
		ContextBudget:   cfg.Orchestrator.ContextBudget,
	})

	message, err := readMessage(flag.Args())
	if err != nil {
		return err
	}

	req := &domain.Request{
		Message: message,
		Tier:    *tier,
		Mode:    domain.Mode(*mode),
		OnToken: func(token string) {
			fmt.Print(token)
		},
	}

	result, err := dispatcher.Dispatch(ctx, req)
	if err != nil {
		if domain.IsCancellation(err) {
			fmt.Fprintln(os.Stderr, "\naborted")
			return nil
		}
		return err
	}

	fmt.Println()
	log.Info("done",
		"agent", result.AgentID,
		"strategy", result.Strategy,
		"model", result.Model,
		"elapsed", result.Elapsed,
	)
	return nil
}

// loadConfig reads the config file when given, otherwise uses defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// readMessage takes the message from the remaining args, or stdin when
// piped.
func readMessage(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice == 0 {
		var sb strings.Builder
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			sb.WriteString(scanner.Text())
			sb.WriteString("\n")
		}
		if err := scanner.Err(); err != nil {
			return "", err
		}
		msg := strings.TrimSpace(sb.String())
		if msg != "" {
			return msg, nil
		}
	}

	return "", fmt.Errorf("no message: pass it as arguments or pipe it on stdin")
}
