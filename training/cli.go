package training

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"pitwall/db"
	"pitwall/logging"
	"pitwall/ml"
)

// Trainer runs one pipeline, writes its report to out and returns the row to
// append to training_log.
type Trainer func(ctx context.Context, opts Options, logger *zap.Logger, out io.Writer) (db.TrainingRun, error)

func RunPitStop(ctx context.Context, opts Options, logger *zap.Logger, out io.Writer) (db.TrainingRun, error) {
	res, err := TrainPitStop(ctx, opts, logger)
	if err != nil {
		return db.TrainingRun{}, err
	}
	WritePitStopReport(out, res)
	return res.TrainingRun(), nil
}

func RunLapTime(ctx context.Context, opts Options, logger *zap.Logger, out io.Writer) (db.TrainingRun, error) {
	res, err := TrainLapTime(ctx, opts, logger)
	if err != nil {
		return db.TrainingRun{}, err
	}
	WriteLapTimeReport(out, res)
	return res.TrainingRun(), nil
}

// NewCommand builds the CLI shared by both trainer binaries.
func NewCommand(name, usage string, train Trainer) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "samples",
				Usage:   "number of synthetic samples to generate",
				Value:   ml.DefaultSamples,
				Sources: cli.EnvVars("PITWALL_SAMPLES"),
			},
			&cli.IntFlag{
				Name:  "seed",
				Usage: "seed for data generation, splitting and bootstrapping",
				Value: ml.DefaultSeed,
			},
			&cli.IntFlag{
				Name:  "trees",
				Usage: "number of trees in the forest",
				Value: DefaultTrees,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "trees fitted in parallel (0 = GOMAXPROCS)",
			},
			&cli.StringFlag{
				Name:    "model-dir",
				Usage:   "directory the model artifact is written to",
				Value:   "saved_models",
				Sources: cli.EnvVars("PITWALL_MODEL_DIR"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "sqlite file or postgres DSN to append the run to training_log (optional)",
				Sources: cli.EnvVars("PITWALL_DB"),
			},
			&cli.StringFlag{
				Name:  "db-driver",
				Usage: "database driver [sqlite3, postgres]",
				Value: db.DriverSQLite,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level [debug, info, warn, error]",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := logging.New(logging.Options{Level: cmd.String("log-level")})
			defer logger.Sync()

			opts := Options{
				Samples:   int(cmd.Int("samples")),
				Seed:      int64(cmd.Int("seed")),
				Trees:     int(cmd.Int("trees")),
				Workers:   int(cmd.Int("workers")),
				ModelDir:  cmd.String("model-dir"),
				TestRatio: DefaultTestRatio,
			}

			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			run, err := train(ctx, opts, logger, out)
			if err != nil {
				return errors.Wrapf(err, "%s training", name)
			}

			dsn := cmd.String("db")
			if dsn == "" {
				return nil
			}
			store, err := db.Open(ctx, cmd.String("db-driver"), dsn)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.SaveTrainingRun(ctx, run); err != nil {
				return err
			}
			logger.Info("training run logged", zap.String("model", run.ModelName))
			return nil
		},
	}
}
