package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"llamactx/internal/inference"
	"llamactx/internal/llm"
	"llamactx/internal/registry"
	"llamactx/internal/worker"
)

type generateFlags struct {
	model      string
	backend    string
	prompt     string
	stateIn    string
	stateOut   string
	gpuLayers  int
	maxTokens  int
	temp       float64
	topP       float64
	minP       float64
	topK       int
	repeat     float64
	freq       float64
	presence   float64
	lastN      int
	seed       int64
	stop       []string
	nCtx       int
	nBatch     int
	threads    int
	threadsBat int
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a completion from one model file and stream it to stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			log, err := root.logger(cfg)
			if err != nil {
				return err
			}
			prompt, err := f.readPrompt(cmd.InOrStdin())
			if err != nil {
				return err
			}
			backend := f.backend
			if backend == "" {
				backend = registry.NewScanner().Extensions[strings.ToLower(filepath.Ext(f.model))]
			}
			opts := llm.DefaultModelOptions()
			opts.GPULayers = f.gpuLayers
			model, err := llm.Open(backend, f.model, opts)
			if err != nil {
				return fmt.Errorf("open %s: %w", f.model, err)
			}
			defer model.Close()

			ictx := inference.New(inference.WithLogger(log))
			if err := ictx.Create(model, f.contextParams(cmd).Merge(cfg.Context)); err != nil {
				return err
			}
			defer ictx.Close()
			if f.stateIn != "" {
				if err := ictx.LoadStateFile(f.stateIn); err != nil {
					return err
				}
			}

			out := bufio.NewWriter(cmd.OutOrStdout())
			defer out.Flush()
			printer := inference.PublisherFunc(func(e inference.Event) {
				if e.Kind == inference.EventTokenGenerated {
					_, _ = out.WriteString(e.Text)
					_ = out.Flush()
				}
			})
			w := worker.New(ictx, f.generateParams(cmd).Merge(cfg.Generation), printer)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := w.Start(ctx, prompt, inference.DefaultMaxTokens); err != nil {
				return err
			}
			err = w.Wait()
			_, _ = out.WriteString("\n")

			res := ictx.LastResult()
			ev := log.Info().Str("reason", string(res.Reason)).
				Int("prompt_tokens", res.PromptTokens).
				Int("completion_tokens", res.CompletionTokens).
				Dur("dur", res.Duration)
			if st, ok := ictx.Stats(); ok {
				ev = ev.Float64("tokens_per_second", st.TokensPerSecond())
			}
			ev.Msg("generate done")
			if err != nil {
				return err
			}
			if f.stateOut != "" {
				return ictx.SaveStateFile(f.stateOut)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.model, "model", "m", "", "Model file (*.gguf or *.toy)")
	fl.StringVar(&f.backend, "backend", "", "Backend name; inferred from the file extension when empty")
	fl.StringVarP(&f.prompt, "prompt", "p", "", "Prompt text; - reads stdin")
	fl.StringVar(&f.stateIn, "state-in", "", "Restore decode state from this file before generating")
	fl.StringVar(&f.stateOut, "state-out", "", "Save decode state to this file after generating")
	fl.IntVar(&f.gpuLayers, "gpu-layers", llm.DefaultModelOptions().GPULayers, "Layers to offload to the GPU")
	fl.IntVarP(&f.maxTokens, "max-tokens", "n", inference.DefaultMaxTokens, "Maximum new tokens")
	fl.Float64Var(&f.temp, "temperature", 0, "Sampling temperature; 0 is greedy")
	fl.Float64Var(&f.topP, "top-p", 0, "Nucleus sampling probability")
	fl.Float64Var(&f.minP, "min-p", 0, "Minimum probability relative to the best token")
	fl.IntVar(&f.topK, "top-k", 0, "Top-K candidates")
	fl.Float64Var(&f.repeat, "repeat-penalty", 0, "Repetition penalty")
	fl.Float64Var(&f.freq, "frequency-penalty", 0, "Frequency penalty")
	fl.Float64Var(&f.presence, "presence-penalty", 0, "Presence penalty")
	fl.IntVar(&f.lastN, "penalty-last-n", 0, "Penalty window; -1 is the whole context")
	fl.Int64Var(&f.seed, "seed", -1, "Random seed; -1 picks one from the clock")
	fl.StringSliceVar(&f.stop, "stop", nil, "Stop sequence (repeatable)")
	fl.IntVar(&f.nCtx, "n-ctx", 0, "Context window in tokens (0 = model default)")
	fl.IntVar(&f.nBatch, "n-batch", 0, "Prompt batch size (0 = default)")
	fl.IntVar(&f.threads, "threads", 0, "Generation threads")
	fl.IntVar(&f.threadsBat, "threads-batch", 0, "Prompt processing threads")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func (f *generateFlags) readPrompt(stdin io.Reader) (string, error) {
	if f.prompt != "-" {
		return f.prompt, nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	return string(b), nil
}

// generateParams sets only the flags the user passed, so config and
// built-in defaults apply to the rest.
func (f *generateFlags) generateParams(cmd *cobra.Command) inference.GenerateParams {
	set := cmd.Flags().Changed
	var p inference.GenerateParams
	if set("max-tokens") {
		p.MaxTokens = &f.maxTokens
	}
	if set("temperature") {
		p.Temperature = &f.temp
	}
	if set("top-p") {
		p.TopP = &f.topP
	}
	if set("min-p") {
		p.MinP = &f.minP
	}
	if set("top-k") {
		p.TopK = &f.topK
	}
	if set("repeat-penalty") {
		p.RepeatPenalty = &f.repeat
	}
	if set("frequency-penalty") {
		p.FrequencyPenalty = &f.freq
	}
	if set("presence-penalty") {
		p.PresencePenalty = &f.presence
	}
	if set("penalty-last-n") {
		p.PenaltyLastN = &f.lastN
	}
	if set("seed") {
		p.Seed = &f.seed
	}
	p.Stop = f.stop
	return p
}

func (f *generateFlags) contextParams(cmd *cobra.Command) inference.ContextParams {
	set := cmd.Flags().Changed
	var p inference.ContextParams
	if set("n-ctx") {
		p.NCtx = &f.nCtx
	}
	if set("n-batch") {
		p.NBatch = &f.nBatch
	}
	if set("threads") {
		p.Threads = &f.threads
	}
	if set("threads-batch") {
		p.ThreadsBatch = &f.threadsBat
	}
	return p
}

