package config

import (
	"github.com/pkg/errors"
)

var (
	// ErrMissingParam reports a required parameter that is absent or zero.
	ErrMissingParam = errors.New("missing required parameter")
	// ErrInvalidParam reports a parameter outside of its accepted range.
	ErrInvalidParam = errors.New("invalid parameter")
)

// Validate checks the sections needed to build and run a model.
func (p *Params) Validate() error {
	if len(p.Data.Classes) == 0 {
		return errors.Wrap(ErrMissingParam, "data.classes")
	}
	if p.Data.ImageSize <= 0 {
		return errors.Wrapf(ErrInvalidParam, "data.image_size must be positive, got %d", p.Data.ImageSize)
	}
	if len(p.Model.InputShape) != 3 {
		return errors.Wrapf(ErrInvalidParam, "model.input_shape must have 3 entries, got %v", p.Model.InputShape)
	}
	if p.Model.InputShape[0] != p.Data.ImageSize || p.Model.InputShape[1] != p.Data.ImageSize {
		return errors.Wrapf(ErrInvalidParam, "model.input_shape %v does not match data.image_size %d",
			p.Model.InputShape, p.Data.ImageSize)
	}
	if p.Model.InputShape[2] != 3 {
		return errors.Wrapf(ErrInvalidParam, "model.input_shape must have 3 channels, got %d", p.Model.InputShape[2])
	}
	switch p.Inference.Backend {
	case BackendGorgonia, BackendONNX:
	default:
		return errors.Wrapf(ErrInvalidParam, "inference.backend %q", p.Inference.Backend)
	}
	if p.Inference.MaxImagePixels < 0 {
		return errors.Wrapf(ErrInvalidParam, "inference.max_image_pixels must not be negative, got %d",
			p.Inference.MaxImagePixels)
	}
	return nil
}

// requiredTrainingKeys must be spelled out in a params file used for training.
var requiredTrainingKeys = []string{
	"data.dataset_path",
	"data.classes",
	"data.image_size",
	"data.test_split",
	"data.validation_split",
	"data.random_seed",
	"model.input_shape",
	"model.conv_filters",
	"model.dense_units",
	"model.dropout_rate",
	"training.learning_rate",
	"training.loss",
	"training.metrics",
	"training.epochs",
	"training.batch_size",
	"paths.model_output",
	"paths.metrics_output",
	"paths.plots_output",
}

// ValidateTraining additionally checks everything the trainer needs. Parameters
// read from a file must name every key in requiredTrainingKeys; defaults only
// fill the serving sections.
func (p *Params) ValidateTraining() error {
	if p.present != nil {
		for _, key := range requiredTrainingKeys {
			if !p.present[key] {
				return errors.Wrap(ErrMissingParam, key)
			}
		}
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Data.DatasetPath == "" {
		return errors.Wrap(ErrMissingParam, "data.dataset_path")
	}
	if !inUnitInterval(p.Data.TestSplit) {
		return errors.Wrapf(ErrInvalidParam, "data.test_split must be in (0,1), got %v", p.Data.TestSplit)
	}
	if !inUnitInterval(p.Data.ValidationSplit) {
		return errors.Wrapf(ErrInvalidParam, "data.validation_split must be in (0,1), got %v", p.Data.ValidationSplit)
	}
	if len(p.Model.ConvFilters) != 3 {
		return errors.Wrapf(ErrInvalidParam, "model.conv_filters must have 3 entries, got %v", p.Model.ConvFilters)
	}
	if p.Model.DenseUnits <= 0 {
		return errors.Wrap(ErrMissingParam, "model.dense_units")
	}
	if p.Model.DropoutRate < 0 || p.Model.DropoutRate >= 1 {
		return errors.Wrapf(ErrInvalidParam, "model.dropout_rate must be in [0,1), got %v", p.Model.DropoutRate)
	}
	if p.Training.LearningRate <= 0 {
		return errors.Wrap(ErrMissingParam, "training.learning_rate")
	}
	if p.Training.Loss == "" {
		return errors.Wrap(ErrMissingParam, "training.loss")
	}
	if p.Training.Epochs <= 0 {
		return errors.Wrap(ErrMissingParam, "training.epochs")
	}
	if p.Training.BatchSize <= 0 {
		return errors.Wrap(ErrMissingParam, "training.batch_size")
	}
	if p.Paths.ModelOutput == "" {
		return errors.Wrap(ErrMissingParam, "paths.model_output")
	}
	if p.Paths.MetricsOutput == "" {
		return errors.Wrap(ErrMissingParam, "paths.metrics_output")
	}
	if p.Paths.PlotsOutput == "" {
		return errors.Wrap(ErrMissingParam, "paths.plots_output")
	}
	return nil
}

func inUnitInterval(v float64) bool {
	return v > 0 && v < 1
}
