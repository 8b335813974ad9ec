package main

import (
	"context"
	"flag"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "interview-speech-service/internal/api/grpc"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "gRPC server address")
	listen := flag.Duration("listen", 5*time.Second, "How long to listen before taking the answer")
	mic := flag.Bool("mic", true, "Report the microphone as enabled")
	flag.Parse()

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpcapi.NewClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), *listen+10*time.Second)
	defer cancel()

	if err := client.StartListening(ctx, *mic); err != nil {
		log.Fatalf("failed to start listening: %v", err)
	}
	log.Printf("Listening for %v", *listen)

	deadline := time.After(*listen)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-deadline:
			done = true
		case <-ticker.C:
			st, err := client.GetStatus(ctx)
			if err != nil {
				log.Fatalf("failed to get status: %v", err)
			}
			log.Printf("state=%v interim=%q answer=%q", st["state"], st["interim"], st["currentAnswer"])
		}
	}

	if err := client.StopListening(ctx); err != nil {
		log.Fatalf("failed to stop listening: %v", err)
	}
	answer, err := client.TakeCurrentAnswerAndClear(ctx)
	if err != nil {
		log.Fatalf("failed to take answer: %v", err)
	}
	log.Printf("Answer: %s", answer)
}
