package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/app"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/config"
)

func main() {
	cfg := config.GetConfig()

	a := app.New(cfg)
	if err := a.Start(); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c

	fmt.Println("Received termination signal. Shutting down...")
	a.Stop()
	fmt.Println("done")
}
