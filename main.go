package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/plateful/plateful/cmd"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cmd.Execute()
}
