// Package dataset - Loads a labeled image directory tree into in-memory samples.
package dataset

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/leaf-ml/images"
	"github.com/nvr-ai/leaf-ml/logging"
	"github.com/nvr-ai/leaf-ml/models"
)

// ErrMissingClass is returned when a configured class has no directory under the root.
var ErrMissingClass = errors.New("class directory not found")

// Options controls a dataset load.
type Options struct {
	// Root holds one subdirectory per class, named exactly as the class.
	Root string
	// Classes fixes the label of every directory.
	Classes *models.ClassSet
	// Preprocessor converts every decoded file into a sample.
	Preprocessor *images.Preprocessor
	// Workers bounds concurrent decoding. Defaults to the number of CPUs.
	Workers int
	// Logger receives skip warnings and the load summary. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Dataset holds every decoded sample in class order, then file name order.
type Dataset struct {
	// Samples is the concatenation of Len() samples of SampleLen values each.
	Samples []float32
	// Labels holds the class index of each sample.
	Labels []int
	// SampleLen is the number of values in one sample.
	SampleLen int
	// PerClass counts decoded samples per class index.
	PerClass []int
	// Skipped counts files that could not be read or decoded.
	Skipped int
	// Classes is the class order used for Labels.
	Classes *models.ClassSet
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Sample returns the values of sample i. The slice aliases Samples.
func (d *Dataset) Sample(i int) []float32 {
	return d.Samples[i*d.SampleLen : (i+1)*d.SampleLen]
}

// Load walks <Root>/<class> for every class in order, decodes every regular
// file, resizes and normalizes it, and records its class index as the label.
//
// Arguments:
//   - ctx: Cancels the load between files.
//   - opts: The dataset location, class order and preprocessing.
//
// Returns:
//   - *Dataset: The decoded samples. A class whose files all fail to decode
//     contributes zero samples.
//   - error: ErrMissingClass if a class directory is absent, or ctx.Err().
func Load(ctx context.Context, opts Options) (*Dataset, error) {
	if opts.Classes == nil || opts.Classes.Len() == 0 {
		return nil, errors.New("dataset load requires a class set")
	}
	if opts.Preprocessor == nil {
		return nil, errors.New("dataset load requires a preprocessor")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logging.WithOperation(logger, "dataset.load", "")

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var files []classFile
	for _, class := range opts.Classes.Classes {
		dir := filepath.Join(opts.Root, class.Name)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return nil, errors.Wrapf(ErrMissingClass, "%s", dir)
		}

		classFiles, err := listClassFiles(dir, class.Index)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list %s", dir)
		}
		files = append(files, classFiles...)
	}

	sampleLen := opts.Preprocessor.Len()
	decoded := make([][]float32, len(files))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, file := range files {
		if groupCtx.Err() != nil {
			break
		}
		i, file := i, file
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			img, _, err := images.DecodeFile(file.Path)
			if err != nil {
				logger.Warn("skipping undecodable file",
					zap.String("path", file.Path),
					zap.Error(err),
				)
				return nil
			}
			decoded[i] = opts.Preprocessor.Tensor(img)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, "dataset load interrupted")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "dataset load interrupted")
	}

	ds := &Dataset{
		SampleLen: sampleLen,
		PerClass:  make([]int, opts.Classes.Len()),
		Classes:   opts.Classes,
	}
	kept := 0
	for _, sample := range decoded {
		if sample != nil {
			kept++
		}
	}
	ds.Samples = make([]float32, 0, kept*sampleLen)
	ds.Labels = make([]int, 0, kept)

	for i, sample := range decoded {
		if sample == nil {
			ds.Skipped++
			continue
		}
		ds.Samples = append(ds.Samples, sample...)
		ds.Labels = append(ds.Labels, files[i].Class)
		ds.PerClass[files[i].Class]++
	}

	for idx, count := range ds.PerClass {
		logger.Info("class loaded",
			zap.String(logging.ClassKey, opts.Classes.Classes[idx].Name),
			zap.Int(logging.SamplesKey, count),
		)
	}
	logger.Info("dataset loaded",
		zap.String("root", opts.Root),
		zap.Int(logging.SamplesKey, ds.Len()),
		zap.Int(logging.SkippedKey, ds.Skipped),
	)

	return ds, nil
}
