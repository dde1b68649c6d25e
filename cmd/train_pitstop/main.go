package main

import (
	"context"
	"fmt"
	"os"

	"pitwall/training"
)

func main() {
	cmd := training.NewCommand("train_pitstop", "Train the pit stop classifier on synthetic race data", training.RunPitStop)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
