package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whispr-service/internal/config"
	"whispr-service/internal/factory"
	"whispr-service/internal/handler"
	"whispr-service/internal/util"
)

func main() {
	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory()
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	router := setupRouter(f, cfg)

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	f.Run(context.Background())
	startServer(f, server, cfg)
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory, cfg *config.Config) http.Handler {
	serviceFactory := f.ServiceFactory()
	userHandler := handler.NewUserHandler(serviceFactory.UserService(), util.Named("http"))
	messageHandler := handler.NewMessageHandler(f.Dispatcher(), f.Config().Server.WebhookSecret, util.Named("http"))
	return handler.NewRouter(userHandler, messageHandler, cfg.Server.AllowOrigins, util.Named("http"))
}

func startServer(f *factory.Factory, server *http.Server, cfg *config.Config) {
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Fatal("Server failed to start", util.ErrorField(err))
		}
	}()

	util.Info("Server started successfully",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
		util.String("bot_number", cfg.Bot.Number),
	)

	waitForShutdown(f, server)
}

func waitForShutdown(f *factory.Factory, servers ...*http.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	sig := <-signalChan
	util.Info("Received shutdown signal", util.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			util.Error("Failed to shutdown server gracefully", util.ErrorField(err))
		} else {
			util.Info("Server shutdown completed")
		}
	}
	f.Close()
}
