package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/josephtey/predictive-saes/dataset"
	"github.com/josephtey/predictive-saes/sae"
	"github.com/josephtey/predictive-saes/sae/train"
	"github.com/josephtey/predictive-saes/storage"
	"github.com/josephtey/predictive-saes/tracking"
)

var (
	trainSentences     string
	trainEmbeddings    string
	trainRunName       string
	trainRunsDir       string
	trainBatchSize     int
	trainDModel        int
	trainDSparse       int
	trainSparsityAlpha float64
	trainLR            float64
	trainEpochs        int
	trainSparsityScale float64
	trainLogEvery      int
	trainCkptEvery     int
	trainSeed          int64
	trainTrack         string
	trainMetricsAddr   string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a sparse autoencoder over sentence embeddings",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		defer func() { _ = logger.Sync() }()

		cfg, err := loadRunConfig()
		if err != nil {
			return err
		}

		ds, err := dataset.Load(trainSentences, trainEmbeddings)
		if err != nil {
			return err
		}
		if ds.Dim() != trainDModel {
			return fmt.Errorf("embeddings have dimension %d but --d-model is %d", ds.Dim(), trainDModel)
		}

		runID := uuid.NewString()
		runDir := filepath.Join(trainRunsDir, fmt.Sprintf("%s_%s", trainRunName, time.Now().Format("20060102_150405")))
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return fmt.Errorf("creating run directory: %w", err)
		}

		logger.Info("starting run",
			zap.String("run_id", runID),
			zap.String("run_dir", runDir),
			zap.Int("samples", ds.Len()),
		)

		sink, err := buildSink(runDir, logger)
		if err != nil {
			return err
		}
		defer sink.Finish()

		model, err := sae.New(sae.Config{
			DModel:        trainDModel,
			DSparse:       trainDSparse,
			SparsityAlpha: trainSparsityAlpha,
		}, rand.New(rand.NewSource(trainSeed)))
		if err != nil {
			return err
		}

		trainer, err := train.New(model, ds, train.Options{
			BatchSize:       trainBatchSize,
			NumEpochs:       trainEpochs,
			LearningRate:    trainLR,
			SparsityAlpha:   trainSparsityAlpha,
			SparsityScale:   trainSparsityScale,
			RunDir:          runDir,
			LogEvery:        trainLogEvery,
			CheckpointEvery: trainCkptEvery,
		}, logger, sink)
		if err != nil {
			return err
		}

		res, err := trainer.Run(cmd.Context())
		if err != nil {
			return err
		}

		logger.Info("training complete",
			zap.Int("steps", res.Steps),
			zap.Int("skipped_batches", res.SkippedBatches),
			zap.Float64("final_loss", res.FinalLoss),
		)

		if cfg.Artifacts != nil {
			prefix := cfg.Artifacts.Prefix
			if prefix == "" {
				prefix = filepath.Base(runDir)
			}
			if err := storage.UploadRunDir(cmd.Context(), &cfg.Artifacts.Credentials, cfg.Artifacts.Bucket, prefix, runDir, logger); err != nil {
				logger.Warn("failed to upload run artifacts", zap.Error(err))
			} else {
				logger.Info("uploaded run artifacts",
					zap.String("bucket", cfg.Artifacts.Bucket),
					zap.String("prefix", prefix),
				)
			}
		}
		return nil
	},
}

// buildSink assembles the tracking sink from --track. The prometheus sink
// additionally serves /metrics on --metrics-addr for scraping during long
// runs.
func buildSink(runDir string, logger *zap.Logger) (tracking.Sink, error) {
	switch trainTrack {
	case "none":
		return tracking.Noop{}, nil
	case "file":
		return tracking.NewFileSink(filepath.Join(runDir, "metrics.jsonl"), logger)
	case "prom":
		sink := tracking.NewPromSink(prometheus.DefaultRegisterer, logger)
		if trainMetricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				if err := http.ListenAndServe(trainMetricsAddr, mux); err != nil {
					logger.Warn("metrics server stopped", zap.Error(err))
				}
			}()
		}
		return sink, nil
	case "both":
		fileSink, err := tracking.NewFileSink(filepath.Join(runDir, "metrics.jsonl"), logger)
		if err != nil {
			return nil, err
		}
		promSink := tracking.NewPromSink(prometheus.DefaultRegisterer, logger)
		return tracking.Multi{fileSink, promSink}, nil
	default:
		return nil, fmt.Errorf("invalid --track %q: must be one of: none, file, prom, both", trainTrack)
	}
}

func init() {
	trainCmd.Flags().StringVar(&trainSentences, "sentences", "", "input sentences CSV")
	trainCmd.Flags().StringVar(&trainEmbeddings, "embeddings", "", "input embeddings .npy")
	trainCmd.Flags().StringVar(&trainRunName, "run-name", "run", "name of the run")
	trainCmd.Flags().StringVar(&trainRunsDir, "runs-dir", "runs", "parent directory for run folders")
	trainCmd.Flags().IntVar(&trainBatchSize, "batch-size", 512, "batch size for training")
	trainCmd.Flags().IntVar(&trainDModel, "d-model", 768, "embedding dimensionality")
	trainCmd.Flags().IntVar(&trainDSparse, "d-sparse", 6144, "sparse code dimensionality")
	trainCmd.Flags().Float64Var(&trainSparsityAlpha, "sparsity-alpha", 1, "sparsity alpha parameter")
	trainCmd.Flags().Float64Var(&trainLR, "lr", 0.00001, "learning rate")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", 1, "number of epochs")
	trainCmd.Flags().Float64Var(&trainSparsityScale, "sparsity-scale", 1, "sparsity scale parameter")
	trainCmd.Flags().IntVar(&trainLogEvery, "log-every", 100, "batches per metric interval")
	trainCmd.Flags().IntVar(&trainCkptEvery, "checkpoint-every", 0, "batches between checkpoints (0 = per epoch)")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", 42, "random seed for weight initialization")
	trainCmd.Flags().StringVar(&trainTrack, "track", "file", "experiment tracking sink (none, file, prom, both)")
	trainCmd.Flags().StringVar(&trainMetricsAddr, "metrics-addr", "", "serve prometheus /metrics at this address during training")
	_ = trainCmd.MarkFlagRequired("sentences")
	_ = trainCmd.MarkFlagRequired("embeddings")
}
