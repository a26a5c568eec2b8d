// Command colloquy is an interactive REPL over a flow specification.
//
// It loads a YAML flow spec, wires a checkpoint store and the rule-based
// NLU, and converses on stdin/stdout. Each turn is checkpointed, so
// quitting and restarting with the same session ID resumes mid-flow.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	colloquy "github.com/colloquy-dev/colloquy"
	"github.com/colloquy-dev/colloquy/internal/config"
	"github.com/colloquy-dev/colloquy/observer"
	"github.com/colloquy-dev/colloquy/store/postgres"
	"github.com/colloquy-dev/colloquy/store/sqlite"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[colloquy] ")

	var (
		configPath  = flag.String("config", os.Getenv("COLLOQUY_CONFIG"), "path to TOML config file")
		specPath    = flag.String("spec", "", "path to YAML flow spec (overrides config)")
		sessionID   = flag.String("session", "", "session ID to resume (overrides config)")
		checkTarget = flag.Bool("check", false, "validate the spec and exit")
	)
	flag.Parse()

	// 1. Load config
	cfg := config.Load(*configPath)
	if *specPath != "" {
		cfg.Spec.Path = *specPath
	}
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}

	// 2. Parse the flow spec
	data, err := os.ReadFile(cfg.Spec.Path)
	if err != nil {
		log.Fatalf("read spec: %v", err)
	}
	spec, err := colloquy.ParseSpec(data)
	if err != nil {
		log.Fatalf("parse spec: %v", err)
	}
	if *checkTarget {
		if _, err := colloquy.CompileSpec(spec, slog.Default()); err != nil {
			log.Fatalf("spec check failed: %v", err)
		}
		log.Printf("spec ok: %d flows", len(spec.Flows))
		return
	}

	logger := newLogger(cfg.Log.Level)

	// 3. Observer (opt-in via config)
	var inst *observer.Instruments
	engineOpts := []colloquy.Option{colloquy.WithLogger(logger)}
	if cfg.Observer.Enabled {
		var shutdown func(context.Context) error
		inst, shutdown, err = observer.Init(context.Background(), cfg.Observer.ServiceName)
		if err != nil {
			log.Fatalf("observer init failed: %v", err)
		}
		defer shutdown(context.Background())
		engineOpts = append(engineOpts, colloquy.WithTracer(observer.NewTracer()))
		log.Println("OTEL observability enabled")
	}

	// 4. Checkpoint store
	checkpointer, cleanup, err := openCheckpointer(cfg)
	if err != nil {
		log.Fatalf("open checkpoint store: %v", err)
	}
	defer cleanup()
	engineOpts = append(engineOpts, colloquy.WithCheckpointer(checkpointer))

	// 5. NLU + demo actions
	var nlu colloquy.NLU = colloquy.NewRuleNLU(spec)
	if inst != nil {
		nlu = observer.WrapNLU(nlu, inst)
	}
	engineOpts = append(engineOpts,
		colloquy.WithNLU(nlu),
		colloquy.WithActions(demoActions(spec, inst)),
	)

	engine, err := colloquy.New(spec, engineOpts...)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	defer engine.Close(context.Background())

	session := cfg.Session.ID
	if session == "" {
		session = colloquy.NewID()
	}

	// 6. REPL
	fmt.Printf("session %s — flows: %s (ctrl-d to quit)\n", session, strings.Join(spec.FlowNames(), ", "))
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		result, err := handleTurn(engine, cfg, session, line)
		if err != nil {
			log.Printf("turn failed: %v", err)
			continue
		}
		if inst != nil {
			inst.Turns.Add(context.Background(), 1)
		}
		fmt.Println(result.Response)
	}
	fmt.Println()
}

// handleTurn runs one turn, bounded by the configured turn timeout.
func handleTurn(engine *colloquy.Engine, cfg config.Config, session, line string) (*colloquy.TurnResult, error) {
	ctx := context.Background()
	if cfg.Session.TurnTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Session.TurnTimeoutSeconds)*time.Second)
		defer cancel()
	}
	return engine.HandleTurn(ctx, session, line)
}

// newLogger builds a text slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openCheckpointer selects the checkpoint backend from config.
func openCheckpointer(cfg config.Config) (colloquy.Checkpointer, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		return colloquy.NewMemoryCheckpointer(), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), cfg.Database.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.Init(context.Background()); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		store := sqlite.New(cfg.Database.Path)
		if err := store.Init(context.Background()); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}
