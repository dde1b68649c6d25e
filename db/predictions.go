package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type PredictionRecord struct {
	ModelName    string
	DriverNumber int
	Features     []float64
	Output       float64
	CreatedAt    time.Time
}

func (s *Store) SavePrediction(ctx context.Context, rec PredictionRecord) error {
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return errors.Wrap(err, "marshal features")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
        INSERT INTO predictions (model_name, driver_number, features, output, created_at)
        VALUES (?, ?, ?, ?, ?)`),
		rec.ModelName, rec.DriverNumber, string(features), rec.Output, rec.CreatedAt)
	return errors.Wrap(err, "insert prediction")
}

func (s *Store) CountPredictions(ctx context.Context, modelName string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM predictions WHERE model_name = ?`), modelName)
	return n, errors.Wrap(err, "count predictions")
}
