package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	ArtifactKind    = "random_forest"
	ArtifactVersion = 1

	PitStopModelFile = "pitstop_model.json"
	LapTimeModelFile = "laptime_model.json"
)

// Artifact is the on-disk envelope of a fitted forest.
type Artifact struct {
	Kind         string        `json:"kind"`
	Version      int           `json:"version"`
	FeatureNames []string      `json:"feature_names"`
	TrainedAt    time.Time     `json:"trained_at"`
	Model        *RandomForest `json:"model"`
}

// SaveModel writes the forest to path through a temporary file so readers
// never observe a partial artifact.
func SaveModel(path string, model *RandomForest, featureNames []string) error {
	if model == nil || len(model.Trees) == 0 {
		return ErrNotTrained
	}
	if len(featureNames) != model.NumFeatures {
		return errors.Wrapf(ErrFeatureMismatch, "%d feature names for %d features", len(featureNames), model.NumFeatures)
	}
	payload, err := json.Marshal(Artifact{
		Kind:         ArtifactKind,
		Version:      ArtifactVersion,
		FeatureNames: featureNames,
		TrainedAt:    time.Now().UTC(),
		Model:        model,
	})
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp model file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write model: %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close model: %s", tmp.Name())
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "chmod model: %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "rename model into %s", path)
}

// LoadModel reads an artifact. A missing file is reported with an error that
// matches os.ErrNotExist.
func LoadModel(path string) (*Artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read model: %s", path)
	}
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, errors.Wrapf(err, "decode model: %s", path)
	}
	switch {
	case artifact.Kind != ArtifactKind:
		return nil, errors.Errorf("unsupported model type %q in %s", artifact.Kind, path)
	case artifact.Version != ArtifactVersion:
		return nil, errors.Errorf("unsupported model version %d in %s", artifact.Version, path)
	case artifact.Model == nil || len(artifact.Model.Trees) == 0:
		return nil, errors.Wrapf(ErrNotTrained, "empty model in %s", path)
	}
	return &artifact, nil
}

// LoadClassifier loads a classification forest and checks that it was
// trained on featureNames.
func LoadClassifier(path string, featureNames []string) (*RandomForest, error) {
	return loadTask(path, TaskClassification, featureNames)
}

// LoadRegressor loads a regression forest and checks that it was trained on
// featureNames.
func LoadRegressor(path string, featureNames []string) (*RandomForest, error) {
	return loadTask(path, TaskRegression, featureNames)
}

func loadTask(path string, task Task, featureNames []string) (*RandomForest, error) {
	artifact, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	model := artifact.Model
	if model.Task != task {
		return nil, errors.Errorf("%s holds a %s model, want %s", path, model.Task, task)
	}
	if model.NumFeatures != len(featureNames) {
		return nil, errors.Wrapf(ErrFeatureMismatch, "%s expects %d features, encoder produces %d", path, model.NumFeatures, len(featureNames))
	}
	for i, tree := range model.Trees {
		if tree == nil {
			return nil, errors.Wrapf(errInvalidTreeState, "tree %d in %s", i, path)
		}
		if err := tree.validate(task, model.NumFeatures, model.NumClasses); err != nil {
			return nil, errors.Wrapf(err, "tree %d in %s", i, path)
		}
	}
	return model, nil
}
