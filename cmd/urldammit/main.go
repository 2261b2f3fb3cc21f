package main

import (
	"log"

	"github.com/MrSnakeDoc/urldammit/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ urldammit failed to start: %v", err)
	}
}
