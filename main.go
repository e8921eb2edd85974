package main

import (
	"context"
	"net/http"
	"os"

	"rinkserver/clubauth"
	log "rinkserver/cloudlog"
	"rinkserver/delivery"
	"rinkserver/storage"
	"rinkserver/triggers"

	"github.com/joho/godotenv"
)

func main() {
	// .env is only used for local development; missing is fine.
	_ = godotenv.Load()

	ctx := context.Background()
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" {
		log.Fatal("GOOGLE_CLOUD_PROJECT is not set")
	}

	db, app, err := storage.OpenFirestore(ctx, projectID)
	if err != nil {
		log.Fatalf("firestore init failed: %v", err)
	}

	var publisher delivery.Publisher
	if topic := os.Getenv("DELIVERY_TOPIC"); topic != "" {
		publisher, err = delivery.NewPubSubPublisher(ctx, projectID, topic)
		if err != nil {
			// The delivery worker polls its queues, so running without
			// wake-up notes only adds latency.
			log.Printf("pubsub init failed, delivery notes disabled: %v", err)
			publisher = nil
		}
	}

	registry := triggers.NewRegistry()
	triggers.RegisterAll(registry, db)

	srv := &server{
		db:       db,
		registry: registry,
		verifier: clubauth.NewVerifier(app),
		queue:    delivery.NewQueue(db, publisher),
	}

	addr := os.Getenv("RINKSERVER_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Println("Starting server at: http://" + addr)
	log.Fatal(http.ListenAndServe(addr, srv.router()))
}
