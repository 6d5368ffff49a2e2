package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"chat-client/internal/conn"
	"chat-client/internal/handlers"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/rest"
	"chat-client/internal/session"
	"chat-client/internal/telemetry"
	"chat-client/internal/unread"
)

func main() {
	userID, err := strconv.ParseInt(getEnv("CHAT_USER_ID", ""), 10, 64)
	if err != nil || userID <= 0 {
		log.Fatalf("CHAT_USER_ID must be a positive integer")
	}
	username := getEnv("CHAT_USERNAME", "")
	if username == "" {
		log.Fatalf("CHAT_USERNAME must be set")
	}

	wsURL := getEnv("WS_URL", "ws://localhost:8080/ws")
	apiBaseURL := getEnv("API_BASE_URL", "http://localhost:8080")
	amqpURL := getEnv("AMQP_URL", "")
	amqpExchange := getEnv("AMQP_EXCHANGE", "chat_client_events")
	otlpEndpoint := getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	environment := getEnv("ENVIRONMENT", "dev")
	debugAddr := getEnv("DEBUG_ADDR", "127.0.0.1:8090")
	auditRoutes := getEnv("DEBUG_AUDIT_ROUTES", "false") == "true"

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "chat-client", otlpEndpoint)
	if err != nil {
		log.Printf("failed to set up tracing: %v", err)
		return
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	auditPublisher := rabbitmq.NewPublisher(amqpURL, amqpExchange)
	defer auditPublisher.Close()
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit.chat_client", "chat-client", environment)
	observability.SetPublisher(auditPublisher)

	restClient := rest.NewHTTPClient(apiBaseURL, nil)

	manager := conn.NewManager(conn.Config{
		URL:      wsURL,
		Username: username,
	})

	sess := session.New(session.Config{
		UserID:   userID,
		Username: username,
	}, manager, restClient, unread.LogNotifier{}, emitter)
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		log.Printf("failed to start session: %v", err)
		return
	}

	router := handlers.NewDebugRouter("chat-client", sess, emitter, auditRoutes)
	go func() {
		if err := router.Run(debugAddr); err != nil {
			log.Printf("debug server stopped: %v", err)
		}
	}()

	log.Printf("chat client running as %s (user %d), debug on %s", username, userID, debugAddr)
	<-ctx.Done()
	log.Printf("shutting down")
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
