package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	"golang.org/x/sync/errgroup"

	"github.com/getsentry/calltree/internal/calltree"
	"github.com/getsentry/calltree/internal/registry"
	"github.com/getsentry/calltree/internal/storageprovider"
	"github.com/getsentry/calltree/internal/storageutil"
	"github.com/getsentry/calltree/internal/workload"
)

var runConfig = struct {
	workers      int
	jobs         int
	output       string
	bucket       string
	compress     bool
	kafkaBrokers []string
	seed         int64
	maxSleep     time.Duration
	quiet        bool
}{}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the synthetic workload and record one call tree per worker",
	Long:  ``,
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().IntVarP(
		&runConfig.workers, "workers", "w", 3, "number of concurrent workers")
	runCmd.Flags().IntVarP(
		&runConfig.jobs, "jobs", "j", 5, "number of workload runs shared by the workers")
	runCmd.Flags().StringVarP(
		&runConfig.output, "output", "o", "", "directory the trees are written to")
	runCmd.Flags().StringVar(
		&runConfig.bucket, "bucket", "", "bucket URL the trees are written to (file://, mem://, gs://)")
	runCmd.Flags().BoolVar(
		&runConfig.compress, "compress", false, "lz4 compress the written trees")
	runCmd.Flags().StringSliceVar(
		&runConfig.kafkaBrokers, "kafka-brokers", nil, "publish the trees to these Kafka brokers")
	runCmd.Flags().Int64Var(
		&runConfig.seed, "seed", 0, "seed of the workload (0 seeds from the clock)")
	runCmd.Flags().DurationVar(
		&runConfig.maxSleep, "max-sleep", workload.DefaultMaxSleep, "longest pause taken by a workload call")
	runCmd.Flags().BoolVarP(
		&runConfig.quiet, "quiet", "q", false, "do not print the trees")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if runConfig.workers <= 0 || runConfig.jobs < 0 {
		return fmt.Errorf("%w: workers should be positive and jobs non negative", calltree.ErrInvalidArgument)
	}

	runID := uuid.New().String()
	reg := registry.New()
	err := runWorkload(ctx, reg, runConfig.workers, runConfig.jobs, workload.Options{
		Seed:            runConfig.seed,
		StopProbability: workload.DefaultStopProbability,
		MaxSleep:        runConfig.maxSleep,
	})
	if err != nil {
		return err
	}
	trees := reg.All()
	log.Info().Str("run_id", runID).Int("trees", len(trees)).Msg("workload finished")

	if !runConfig.quiet {
		if err := printTrees(cmd.OutOrStdout(), trees); err != nil {
			return err
		}
	}

	output, bucket := runConfig.output, runConfig.bucket
	if output == "" && bucket == "" {
		output, bucket = config.OutputDirectory, config.TreesBucket
	}
	handler, closeHandler, err := openObjectHandler(ctx, output, bucket)
	if err != nil {
		return err
	}
	defer closeHandler()
	if err := persistTrees(ctx, handler, trees, runConfig.compress); err != nil {
		return err
	}

	brokers := runConfig.kafkaBrokers
	if len(brokers) == 0 {
		brokers = config.KafkaBrokers
	}
	if len(brokers) > 0 {
		w := newKafkaWriter(brokers, config.CallTreesKafkaTopic)
		err := publishTrees(ctx, w, runID, trees)
		if closeErr := w.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			sentry.CaptureException(err)
			return fmt.Errorf("publishing trees: %w", err)
		}
	}
	return nil
}

// runWorkload runs jobs workload applications on workers goroutines. Each
// worker records into the tree of its own context, so a tree holds every
// application its worker ran.
func runWorkload(ctx context.Context, reg *registry.Registry, workers, jobs int, options workload.Options) error {
	jobsChannel := make(chan int, jobs)
	for i := 0; i < jobs; i++ {
		jobsChannel <- i
	}
	close(jobsChannel)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		id := registry.ContextID{
			Label: fmt.Sprintf("pool-1-thread-%d", w+1),
			ID:    int64(w + 1),
		}
		g.Go(func() error {
			tree := reg.InstanceFor(id)
			for job := range jobsChannel {
				if err := ctx.Err(); err != nil {
					return err
				}
				opts := options
				if opts.Seed != 0 {
					opts.Seed += int64(job)
				}
				app := workload.NewApplication(tree, workload.Args(job), opts)
				if err := app.Start(); err != nil {
					return fmt.Errorf("job %d: %w", job, err)
				}
				log.Debug().Str("tree", tree.Name()).Int("job", job).Msg("job done")
			}
			return nil
		})
	}
	return g.Wait()
}

func printTrees(w io.Writer, trees []*calltree.Tree) error {
	for _, t := range trees {
		if _, err := t.WriteTo(w); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

func openObjectHandler(ctx context.Context, output, bucketURL string) (storageutil.ObjectHandler, func(), error) {
	if bucketURL == "" {
		return &storageprovider.Local{Root: output}, func() {}, nil
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening bucket %s: %w", bucketURL, err)
	}
	return &storageprovider.Blob{Bucket: bucket}, func() {
		if err := bucket.Close(); err != nil {
			log.Err(err).Msg("error closing bucket")
		}
	}, nil
}

// persistTrees writes every tree under its object name. It stops at the first
// failure.
func persistTrees(ctx context.Context, h storageutil.ObjectHandler, trees []*calltree.Tree, compress bool) error {
	for _, t := range trees {
		name := storageutil.TreeObjectName(t, compress)
		var err error
		if compress {
			err = storageutil.CompressedWriteTree(ctx, h, name, t)
		} else {
			err = storageutil.WriteTree(ctx, h, name, t)
		}
		if err != nil {
			sentry.CaptureException(err)
			return fmt.Errorf("persisting %s: %w", name, err)
		}
		log.Debug().Str("object", name).Msg("tree persisted")
	}
	return nil
}
