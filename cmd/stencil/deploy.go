package main

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/stencil/pkg/config"
	"github.com/arthur-debert/stencil/pkg/deploy"
	"github.com/arthur-debert/stencil/pkg/discover"
	"github.com/arthur-debert/stencil/pkg/errors"
	"github.com/arthur-debert/stencil/pkg/knownfiles"
	"github.com/arthur-debert/stencil/pkg/logging"
	"github.com/arthur-debert/stencil/pkg/prompt"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Render and deploy all source files to their targets",
	Long: `deploy walks the source directory, renders every file against its
bindings and writes the result to each configured target. Targets that
changed outside stencil's control are only overwritten after
confirmation.`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().StringVar(&sourceDir, "source", "", "source directory (overrides the configured source_dir)")
	deployCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; every confirmation takes its default answer")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger("cli")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	root := cfg.SourceDir
	if sourceDir != "" {
		root = sourceDir
	}
	if root == "" {
		return errors.New(errors.ErrConfigLoad, "no source directory configured; set source_dir or pass --source")
	}

	store, err := knownfiles.Load(cfg.KnownFilesPath)
	if err != nil {
		return err
	}

	sources, err := discover.Find(root)
	if err != nil {
		return err
	}

	var prompter prompt.Prompter = prompt.NewStdConsole()
	if nonInteractive {
		prompter = prompt.Static{}
	}

	pipeline := deploy.New(cfg.Bindings, store, prompter)

	for _, src := range sources {
		err := pipeline.ProcessFile(src)
		if err == nil {
			continue
		}

		// A failing store save means completed work can no longer be
		// recorded; nothing recoverable about that.
		if errors.IsErrorCode(err, errors.ErrStoreSave) {
			return err
		}

		logger.Error().Err(err).Str("file", src.Path).Msg("could not process file")
		pterm.Warning.Printfln("Could not process %s: %v", src.Path, err)

		cont, perr := prompt.YesNo(prompter, "Continue with the remaining files?", false)
		if perr != nil || !cont {
			return errors.Wrap(err, errors.GetErrorCode(err), "run aborted")
		}
	}

	for _, path := range store.ForgottenPaths() {
		pterm.Info.Printfln("No longer managed: %s", path)
	}

	if err := store.Finalize(); err != nil {
		return err
	}

	pterm.Success.Printfln("Deployed %d file(s)", len(sources))
	return nil
}
