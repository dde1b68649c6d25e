package main

import (
	"context"
	"fmt"
	"os"

	"pitwall/training"
)

func main() {
	cmd := training.NewCommand("train_laptime", "Train the lap time regressor on synthetic race data", training.RunLapTime)
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
