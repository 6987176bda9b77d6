package main

import (
	"log"
	"os"

	"github.com/takutakahashi/agentapi-push/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
