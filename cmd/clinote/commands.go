package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/clinote/internal/config"
	"github.com/crimson-sun/clinote/internal/dataset"
	"github.com/crimson-sun/clinote/internal/engine"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/preprocess"
	"github.com/crimson-sun/clinote/internal/engine/termgraph"
	"github.com/crimson-sun/clinote/internal/logging"
	"github.com/crimson-sun/clinote/internal/output"
	"github.com/crimson-sun/clinote/internal/output/file"
	"github.com/crimson-sun/clinote/internal/output/multi"
	"github.com/crimson-sun/clinote/internal/output/registry"
	"github.com/crimson-sun/clinote/internal/output/stdout"
	"github.com/crimson-sun/clinote/internal/output/workbook"
	"github.com/crimson-sun/clinote/internal/pipeline"
	"github.com/crimson-sun/clinote/pkg/clinote"
)

// initLogging sets the default logger from the root flags, falling back to
// level when --log-level is unset.
func initLogging(cmd *cobra.Command, level string, jsonLogs bool) {
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		jsonLogs = true
	}
	logging.Init(jsonLogs, logging.ParseLevel(level))
}

func newAnalyzeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the model sweep: similarity, fine-tuning and evaluation for every configured model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			initLogging(cmd, cfg.Log.Level, cfg.Log.JSON)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return analyze(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "clinote.yaml", "YAML config file")
	return cmd
}

func analyze(cmd *cobra.Command, cfg config.Config) error {
	trainDev, _ := embedder.ParseDevice(cfg.Engine.Device)
	scoreDev, _ := embedder.ParseDevice(cfg.Engine.ScoreDevice)

	out, err := buildOutput(cfg.Output)
	if err != nil {
		return err
	}

	analyzer, err := preprocess.NewProseAnalyzer()
	if err != nil {
		out.Close()
		return err
	}
	eng := engine.New(engine.ONNXLoader{}, engine.Options{
		ModelsDir:   cfg.Engine.ModelsDir,
		TrainDevice: trainDev,
		ScoreDevice: scoreDev,
	})
	p := pipeline.New(eng, preprocess.New(analyzer), out, cfg.Engine.ModelsDir)

	slog.Info("clinote: starting sweep",
		"models", len(cfg.Models),
		"notes", cfg.Data.Notes,
		"device", trainDev,
		"models_dir", cfg.Engine.ModelsDir,
	)
	_, runErr := p.Run(cmd.Context(), modelSpecs(cfg.Models), pipeline.Source{
		NotesPath: cfg.Data.Notes,
		TermsPath: cfg.Data.Terms,
		Labels:    cfg.Data.Labels,
	})
	if err := p.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func modelSpecs(models []config.ModelConfig) []engine.ModelSpec {
	specs := make([]engine.ModelSpec, len(models))
	for i, m := range models {
		specs[i] = engine.ModelSpec{
			Tag:           m.Tag,
			Family:        m.Family,
			EncoderPath:   m.Encoder,
			VocabPath:     m.Vocab,
			Hyper:         m.Hyper(),
			VocabCapacity: m.VocabSize,
		}
	}
	return specs
}

// buildOutput opens every configured sink behind one fan-out.
func buildOutput(cfg config.OutputConfig) (output.Output, error) {
	verbosity, err := output.ParseVerbosity(cfg.Verbosity)
	if err != nil {
		return nil, err
	}
	var outs []output.Output
	fail := func(err error) (output.Output, error) {
		multi.New(outs...).Close()
		return nil, err
	}
	for _, sink := range cfg.Sinks {
		switch sink {
		case "stdout":
			outs = append(outs, stdout.New(verbosity, cfg.Pretty))
		case "file":
			o, err := file.New(cfg.File.Path, verbosity, file.WithMaxSize(cfg.File.MaxBytes))
			if err != nil {
				return fail(err)
			}
			outs = append(outs, o)
		case "workbook":
			outs = append(outs, workbook.New(cfg.Workbook, verbosity))
		case "registry":
			r, err := registry.Open(cfg.Registry)
			if err != nil {
				return fail(err)
			}
			outs = append(outs, r)
		default:
			return fail(fmt.Errorf("unknown output sink %q", sink))
		}
	}
	return multi.New(outs...), nil
}

func newClassifyCmd() *cobra.Command {
	var device, encoder string
	cmd := &cobra.Command{
		Use:   "classify <artifact-dir> <text>...",
		Short: "Predict the specialty of each text with a fine-tuned model",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging(cmd, "warn", false)
			c, err := openClassifier(args[0], device, encoder)
			if err != nil {
				return err
			}
			defer c.Close()

			preds, err := c.ClassifyBatch(args[1:])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, p := range preds {
				if err := enc.Encode(p); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addModelFlags(cmd, &device, &encoder)
	return cmd
}

func newExplainCmd() *cobra.Command {
	var (
		device, encoder, savePath string
		labels                    []string
		features, samples         int
		seed                      int64
	)
	cmd := &cobra.Command{
		Use:   "explain <artifact-dir> <text>",
		Short: "Explain a prediction by perturbing the text (LIME)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging(cmd, "warn", false)
			c, err := openClassifier(args[0], device, encoder)
			if err != nil {
				return err
			}
			defer c.Close()

			x, err := c.Explain(args[1], savePath,
				clinote.WithLabels(labels...),
				clinote.WithNumFeatures(features),
				clinote.WithNumSamples(samples),
				clinote.WithSeed(seed),
			)
			if err != nil {
				return err
			}
			return x.Display(cmd.OutOrStdout())
		},
	}
	addModelFlags(cmd, &device, &encoder)
	cmd.Flags().StringVarP(&savePath, "out", "o", "", "write the explanation as HTML to this path")
	cmd.Flags().StringSliceVar(&labels, "labels", nil, "categories to explain (default: all)")
	cmd.Flags().IntVar(&features, "features", 10, "words kept per category")
	cmd.Flags().IntVar(&samples, "samples", 20, "perturbed samples")
	cmd.Flags().Int64Var(&seed, "seed", 0, "perturbation seed")
	return cmd
}

func addModelFlags(cmd *cobra.Command, device, encoder *string) {
	cmd.Flags().StringVar(device, "device", "cpu", "inference device: cpu or cuda")
	cmd.Flags().StringVar(encoder, "encoder", "", "ONNX encoder path (default: the path recorded in the artifact)")
}

func openClassifier(dir, device, encoder string) (*clinote.Classifier, error) {
	opts := []clinote.Option{clinote.WithDevice(device)}
	if encoder != "" {
		opts = append(opts, clinote.WithEncoderPath(encoder))
	}
	return clinote.Open(dir, opts...)
}

func newComponentsCmd() *cobra.Command {
	var termsPath string
	cmd := &cobra.Command{
		Use:   "components",
		Short: "Group the terms of a term-matching table into connected components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(cmd, "warn", false)
			pairs, err := dataset.LoadTerms(termsPath)
			if err != nil {
				return err
			}
			comps, err := termgraph.Components(pairs)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, c := range comps {
				fmt.Fprintln(w, strings.Join(c, " | "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&termsPath, "terms", "t", "data/terms.csv", "CSV with Term1, Term2 columns")
	return cmd
}

func newPreprocessCmd() *cobra.Command {
	var withEntities bool
	cmd := &cobra.Command{
		Use:   "preprocess <text>",
		Short: "Print the normalized form of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initLogging(cmd, "warn", false)
			a, err := preprocess.NewProseAnalyzer()
			if err != nil {
				return err
			}
			res, err := preprocess.New(a).Preprocess(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if !withEntities {
				fmt.Fprintln(w, res.Normalized)
				return nil
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().BoolVar(&withEntities, "entities", false, "print entities as JSON alongside the normalized text")
	return cmd
}
