package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/paperrag"

	mcpE "github.com/flarexio/paperrag/mcp"
	natsT "github.com/flarexio/paperrag/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "paperrag_mcp_server",
		Usage: "PaperRAG MCP Server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL",
				Value:   "wss://nats.flarex.io",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.StringFlag{
				Name:    "nats-creds",
				Usage:   "NATS user credentials file",
				Sources: cli.EnvVars("NATS_CREDS"),
			},
			&cli.StringFlag{
				Name:     "edge-id",
				Usage:    "Edge ID of the paperrag service",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "index",
				Usage: "Index to search, defaults to the active one",
			},
			&cli.IntFlag{
				Name:  "k",
				Usage: "Default number of pages per search",
				Value: 2,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Request timeout, index builds can take minutes",
				Value: 10 * time.Minute,
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// stdout carries the protocol, logs go to stderr.
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	edgeID := cmd.String("edge-id")
	natsURL := cmd.String("nats")

	opts := []nats.Option{
		nats.Name("PaperRAG MCP Server - " + edgeID),
	}

	if creds := cmd.String("nats-creds"); creds != "" {
		opts = append(opts, nats.UserCredentials(creds))
	}

	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return err
	}
	defer nc.Drain()

	topic := fmt.Sprintf("edges.%s.paperrag", edgeID)
	endpoints := natsT.MakeEndpoints(nc, topic, cmd.Duration("timeout"))

	var svc paperrag.Service
	svc = paperrag.ProxyMiddleware(endpoints)(svc)

	if index := cmd.String("index"); index != "" {
		ctx = context.WithValue(ctx, paperrag.IndexName, index)
	}

	s := mcpE.NewStdioServer(os.Stdin, os.Stdout)
	s.AddEndpoint(mcp.MethodInitialize, mcpE.InitializeEndpoint(svc))
	s.AddEndpoint(mcp.MethodPing, mcpE.PingEndpoint(svc))
	s.AddEndpoint(mcp.MethodToolsList, mcpE.ListToolsEndpoint(svc))
	s.AddEndpoint(mcp.MethodToolsCall, mcpE.CallToolEndpoint(svc, int(cmd.Int("k"))))

	done := make(chan error, 1)
	go func() {
		done <- s.Listen(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sign := <-quit:
		log.Info("graceful shutdown", zap.String("signal", sign.String()))
		cancel()
		return nil

	case err := <-done:
		return err
	}
}
