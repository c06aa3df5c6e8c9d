package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classattend/internal/audit"
	"classattend/internal/config"
	"classattend/internal/queue"
	"classattend/internal/store"
)

// Worker consumes security alerts published by the API and surfaces them
// in the process log for monitoring.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("worker shutting down")
		cancel()
	}()

	redisClient := store.NewRedis(cfg)
	q := queue.NewRedisQueue(redisClient.Client, "classattend:alerts")

	msgs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("consume failed: %v", err)
	}

	log.Println("alert worker started")
	for msg := range msgs {
		if msg.Type != "security_event" {
			continue
		}
		var e audit.Event
		if err := json.Unmarshal(msg.Body, &e); err != nil {
			log.Printf("bad alert payload: %v", err)
			continue
		}
		log.Printf("security event: kind=%s session=%s student=%s detail=%q",
			e.Kind, e.SessionID, e.StudentID, e.Detail)
	}
}
