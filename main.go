package main

import (
	"attendance-scanner/cmd"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local development; deployments use the config file
	// or environment variables.
	godotenv.Load()

	cmd.Execute()
}
