package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// TrainingRun is one row of training_log. Classification runs fill the
// accuracy/precision/recall/AUC columns, regression runs the error columns.
type TrainingRun struct {
	ID           int64     `db:"id" json:"id"`
	ModelName    string    `db:"model_name" json:"model_name"`
	Task         string    `db:"task" json:"task"`
	Samples      int       `db:"samples" json:"samples"`
	TrainSamples int       `db:"train_samples" json:"train_samples"`
	TestSamples  int       `db:"test_samples" json:"test_samples"`
	Seed         int64     `db:"seed" json:"seed"`
	Trees        int       `db:"trees" json:"trees"`
	Accuracy     *float64  `db:"accuracy" json:"accuracy,omitempty"`
	Precision    *float64  `db:"pos_precision" json:"precision,omitempty"`
	Recall       *float64  `db:"pos_recall" json:"recall,omitempty"`
	ROCAUC       *float64  `db:"roc_auc" json:"roc_auc,omitempty"`
	MAE          *float64  `db:"mae" json:"mae,omitempty"`
	MSE          *float64  `db:"mse" json:"mse,omitempty"`
	R2           *float64  `db:"r2" json:"r2,omitempty"`
	ArtifactPath string    `db:"artifact_path" json:"artifact_path"`
	TrainedAt    time.Time `db:"trained_at" json:"trained_at"`
}

func (s *Store) SaveTrainingRun(ctx context.Context, run TrainingRun) error {
	if run.ModelName == "" {
		return errors.New("model name required")
	}
	if run.TrainedAt.IsZero() {
		run.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO training_log (
            model_name, task, samples, train_samples, test_samples, seed, trees,
            accuracy, pos_precision, pos_recall, roc_auc, mae, mse, r2,
            artifact_path, trained_at
        ) VALUES (
            :model_name, :task, :samples, :train_samples, :test_samples, :seed, :trees,
            :accuracy, :pos_precision, :pos_recall, :roc_auc, :mae, :mse, :r2,
            :artifact_path, :trained_at
        )`, run)
	return errors.Wrap(err, "insert training run")
}

// ListTrainingRuns returns the newest runs first. An empty modelName lists
// every model.
func (s *Store) ListTrainingRuns(ctx context.Context, modelName string, limit int) ([]TrainingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT * FROM training_log`
	args := []interface{}{}
	if modelName != "" {
		query += ` WHERE model_name = ?`
		args = append(args, modelName)
	}
	query += ` ORDER BY trained_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	runs := make([]TrainingRun, 0)
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "select training runs")
	}
	return runs, nil
}
