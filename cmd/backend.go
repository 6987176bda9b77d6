package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/takutakahashi/agentapi-push/pkg/devbackend"
)

var (
	backendListen string
	backendTokens []string
)

var DevBackendCmd = &cobra.Command{
	Use:   "dev-backend",
	Short: "Run an in-memory relay backend for development",
	Long: `Run a development relay backend serving the push status, subscribe and
unsubscribe endpoints. Subscriptions are kept in memory per bearer token and
are lost on exit.`,
	RunE: runDevBackend,
}

func init() {
	DevBackendCmd.Flags().StringVarP(&backendListen, "listen", "l", ":8080", "Address to listen on")
	DevBackendCmd.Flags().StringSliceVar(&backendTokens, "accept-token", nil, "Accepted bearer tokens (default: any)")
}

func runDevBackend(cmd *cobra.Command, args []string) error {
	server := devbackend.NewServer(devbackend.Options{
		Tokens:  backendTokens,
		Verbose: viper.GetBool("verbose"),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(backendListen)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Println("Shutdown signal received, shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
		return err
	}
	log.Printf("Server shutdown complete")
	return nil
}
