package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/ipcq/internal/config"
	"github.com/zeusync/ipcq/internal/core/observability/log"
	"github.com/zeusync/ipcq/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	transport := flag.String("transport", "", "override transport.kind (pipe, websocket, quic)")
	count := flag.Int("count", 1000, "numbers to stream through the queue")
	flag.Parse()

	cfg, err := injector.ProvideConfig(*configPath)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}
	if *transport != "" {
		cfg.Transport.Kind = config.TransportKind(*transport)
		if err = cfg.Validate(); err != nil {
			fmt.Println("Invalid config:", err)
			os.Exit(1)
		}
	}

	runner, err := injector.InitializeRunner(cfg)
	if err != nil {
		fmt.Println("Error building runner:", err)
		os.Exit(1)
	}
	logger := log.Provide()
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := runner.Run(ctx, *count)
	if err != nil {
		logger.Error("Demo failed", log.Error(err))
		return
	}
	if !res.Consistent() {
		logger.Error("Peers disagree",
			log.Int("received", res.Received),
			log.Int("sum_of_squares", res.SumOfSquares),
			log.Int("reported", res.Reported))
		return
	}
	fmt.Printf("%s: %d squares, sum %d, %s\n", res.Transport, res.Received, res.SumOfSquares, res.Elapsed)
}
