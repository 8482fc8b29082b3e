package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"walletbridge/go-backend/internal/bootstrap/walletconfig"
	"walletbridge/go-backend/internal/composition/walletd"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to walletd.yaml (optional)")
	dataRoot := flag.String("data-root", "", "Wallet data root override (optional)")
	listen := flag.String("listen", "", "RPC listen multiaddr or host:port override (optional)")
	promptToken := flag.Bool("prompt-token", false, "Read the RPC token from the terminal without echo")
	flag.Parse()
	if *showVersion {
		fmt.Printf("walletd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	cfg, err := walletconfig.LoadFromPath(*configPath)
	if err != nil {
		log.Fatalf("walletd config: %v", err)
	}
	if *dataRoot != "" {
		cfg.DataRoot = *dataRoot
	}
	if *listen != "" {
		cfg.RPC.Listen = *listen
	}
	if *promptToken {
		token, err := readToken()
		if err != nil {
			log.Fatalf("walletd token: %v", err)
		}
		cfg.RPC.Token = token
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := walletd.Build(walletd.Options{Config: cfg, Version: version})
	if err != nil {
		log.Fatalf("walletd failed to initialize: %v", err)
	}
	if err := d.Run(ctx); err != nil {
		log.Fatalf("walletd failed: %v", err)
	}
}

func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "RPC token: ")
	defer fmt.Fprintln(os.Stderr)
	raw, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if len(raw) == 0 {
		return "", errors.New("token cannot be empty")
	}
	token := string(raw)
	clear(raw)
	return token, nil
}
