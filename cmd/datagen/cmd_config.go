package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"datagen-platform/internal/pipeline/extract"
	"datagen-platform/internal/pipeline/step"
	"datagen-platform/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "校验配置并列出已定义的步骤",
	RunE:  runConfig,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "datagen %s\n", version)
	},
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Model.Defaults.LLM != "" {
		if _, _, err := config.ParseDefaultKey(cfg.Model.Defaults.LLM); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(cfg.Pipeline.Steps))
	for name := range cfg.Pipeline.Steps {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model.defaults.llm=%s\n", cfg.Model.Defaults.LLM)
	fmt.Fprintf(out, "paths.input_dir=%s\n", cfg.Paths.InputDir)
	fmt.Fprintf(out, "paths.output_dir=%s\n", cfg.Paths.OutputDir)
	fmt.Fprintf(out, "checkpoint_store.type=%s\n", cfg.CheckpointStore.Type)
	for _, name := range names {
		if err := checkStep(cfg.Pipeline.Steps[name]); err != nil {
			return fmt.Errorf("step %s: %w", name, err)
		}
		mode := "chat"
		if cfg.Pipeline.Steps[name].CompletionMode {
			mode = "completion"
		}
		fmt.Fprintf(out, "step %s (%s)\n", name, mode)
	}
	return nil
}

func checkStep(sc config.StepConfig) error {
	if sc.Regex != "" {
		if _, err := extract.NewRegex(sc.Regex, sc.RegexGroup); err != nil {
			return err
		}
	}
	if _, err := step.ProcessorByName(sc.OutputProcessor); err != nil {
		return err
	}
	_, err := step.ValidatorByName(sc.Validator)
	return err
}
