package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Miguel3074/servidor-reconstrucao-ultrassom/internal/server"
	"github.com/urfave/cli/v2"
)

// serveCommand starts the reconstruction HTTP service and blocks until
// an interrupt or termination signal requests a graceful shutdown.
func serveCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	srv := server.New(cfg)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf("Reconstruction service listening on %s\n", srv.Addr())
	fmt.Printf("Worker pool capacity: %d\n", cfg.Server.MaxConcurrentJobs)
	fmt.Println("POST /reconstruir, GET /saude, GET /metricas")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %v, shutting down...\n", sig)
	case <-func() chan struct{} {
		ch := make(chan struct{})
		go func() {
			srv.Wait()
			close(ch)
		}()
		return ch
	}():
		fmt.Println("Server shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	fmt.Println("Server shut down cleanly")
	return nil
}
