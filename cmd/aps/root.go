package main

import (
	"fmt"
	"runtime"

	"github.com/YuminosukeSato/airpressure/config"
	"github.com/YuminosukeSato/airpressure/pipeline"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "aps",
		Short: "Air pressure system failure pipeline",
		Long: `aps moves the APS sensor data from the raw object store folders through
MongoDB, preprocesses it, trains logistic regression candidates tracked in
MLflow and predicts with the model promoted to Production.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "parameter file (default "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
	root.PersistentFlags().StringVar(&a.localDir, "local", "", "keep buckets as folders below this directory instead of S3")

	root.AddCommand(
		newLoadCmd(a),
		newTrainCmd(a),
		newPredictCmd(a),
		newInitConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func newLoadCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Quote the good raw files, insert them into MongoDB and export the collection",
		Example: `  aps load --mode train
  aps load --mode pred --local ./data`,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := pipeline.ParseMode(mode)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			inst, err := a.setup("load_" + string(m))
			if err != nil {
				return err
			}
			defer a.close(ctx, inst)

			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			docs, err := a.documentStore(ctx)
			if err != nil {
				return err
			}
			return pipeline.NewLoadWorkflow(a.params, store, docs, m, inst).Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", string(pipeline.ModeTrain), "train or pred")
	return cmd
}

func newTrainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Preprocess the training export and train the model grid",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst, err := a.setup("train")
			if err != nil {
				return err
			}
			defer a.close(ctx, inst)

			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			tracker, err := a.tracker(store)
			if err != nil {
				return err
			}
			result, err := pipeline.NewTrainingWorkflow(a.params, store, tracker, inst).Run(ctx)
			if err != nil {
				return err
			}
			for _, c := range result.Candidates {
				fmt.Fprintf(cmd.OutOrStdout(), "%-40s %-10s roc_auc=%.4f f1=%.4f accuracy=%.4f\n",
					c.Name, c.Stage, c.Metrics[pipeline.MetricROCAUC], c.Metrics[pipeline.MetricF1], c.Metrics[pipeline.MetricAccuracy])
			}
			return nil
		},
	}
}

func newPredictCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "predict",
		Short: "Score the prediction export with the production model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			inst, err := a.setup("predict")
			if err != nil {
				return err
			}
			defer a.close(ctx, inst)

			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			out, err := pipeline.NewPredictionWorkflow(a.params, store, inst).Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d predictions to %s/%s\n",
				out.Nrow(), a.params.S3Bucket.PredOutput, a.params.PredOutput)
			return nil
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a parameter file with the default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.Write(path, config.Default(), force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aps %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
