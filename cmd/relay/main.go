package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/auth"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/config"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/model"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/internal/relay"
	"github.com/JarrarHaider26/Jerry-AI-Assistant/templates"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "run":
		runRelay(os.Args[2:])
	case "send":
		runSend(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "version":
		fmt.Printf("relay %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: relay <command> [options]

commands:
  init        write default relay.yaml and workflows.yaml to a directory
  run         start the relay daemon
  send        dispatch a single command through a short-lived relay
  validate    screen a command against the block and danger lists
  version     print the version

options for run/send:
  -config <path>   config file (default relay.yaml)`)
}

func runInit(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	for _, name := range []string{"relay.yaml", "workflows.yaml"} {
		dst := filepath.Join(dir, name)
		if _, err := os.Stat(dst); err == nil {
			fmt.Printf("skip %s (exists)\n", dst)
			continue
		}
		data, err := fs.ReadFile(templates.FS, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "init: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(dst, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "init: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", dst)
	}
}

func buildRelay(configPath string) (*relay.Relay, model.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, cfg, err
	}
	logger := log.New(os.Stderr, "", 0)
	r, err := relay.New(cfg, logger)
	if err != nil {
		return nil, cfg, err
	}
	return r, cfg, nil
}

func runRelay(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "relay.yaml", "config file path")
	fs.Parse(args)

	r, _, err := buildRelay(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := r.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

func runSend(args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("config", "relay.yaml", "config file path")
	action := fs.String("action", "", "command action (required)")
	target := fs.String("target", "", "command target")
	payload := fs.String("payload", "", "command payload")
	wait := fs.Duration("wait", 5*time.Second, "how long to wait for the bridge connection")
	fs.Parse(args)

	if *action == "" {
		fmt.Fprintln(os.Stderr, "usage: relay send -action <action> [-target t] [-payload p]")
		os.Exit(1)
	}

	r, _, err := buildRelay(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "send: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	deadline := time.Now().Add(*wait)
	for !r.Connected() && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	cmd := model.Command{Action: *action, Target: *target, Payload: *payload}
	outcome := r.Dispatch(ctx, cmd, model.SourceManual)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(map[string]interface{}{
		"accepted":  outcome.Accepted,
		"dangerous": outcome.Dangerous,
		"queued":    outcome.Queued,
		"message":   outcome.Message,
		"reply":     outcome.Reply,
	})

	cancel()
	<-done
	if !outcome.Accepted {
		os.Exit(1)
	}
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	action := fs.String("action", "", "command action (required)")
	target := fs.String("target", "", "command target")
	payload := fs.String("payload", "", "command payload")
	fs.Parse(args)

	if *action == "" {
		fmt.Fprintln(os.Stderr, "usage: relay validate -action <action> [-target t] [-payload p]")
		os.Exit(1)
	}

	// Validation needs no live token; any non-empty secret satisfies the gate.
	gate, err := auth.NewGate("validate-only", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "validate: %v\n", err)
		os.Exit(1)
	}
	v := gate.Validate(model.Command{Action: *action, Target: *target, Payload: *payload})
	switch {
	case !v.Valid:
		fmt.Printf("blocked: %s\n", v.Message)
		os.Exit(1)
	case v.Dangerous:
		fmt.Printf("dangerous: %s\n", v.Message)
	default:
		fmt.Println("ok")
	}
}
