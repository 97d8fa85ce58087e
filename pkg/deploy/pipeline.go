// Package deploy renders sources and commits them to their targets. The
// pipeline is strictly sequential over files and targets, and it only
// overwrites a target it can justify through the known-files store or an
// operator confirmation.
package deploy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/stencil/pkg/discover"
	"github.com/arthur-debert/stencil/pkg/errors"
	"github.com/arthur-debert/stencil/pkg/knownfiles"
	"github.com/arthur-debert/stencil/pkg/logging"
	"github.com/arthur-debert/stencil/pkg/paths"
	"github.com/arthur-debert/stencil/pkg/prompt"
	"github.com/arthur-debert/stencil/pkg/script"
	"github.com/arthur-debert/stencil/pkg/template"
	"github.com/arthur-debert/stencil/pkg/types"
)

// Pipeline deploys source files to their configured targets.
type Pipeline struct {
	base     types.Bindings
	store    *knownfiles.Store
	engine   *script.Engine
	prompter prompt.Prompter
	logger   zerolog.Logger
}

// New creates a pipeline. base is the binding layer every file starts
// from; it is cloned per file and never mutated.
func New(base types.Bindings, store *knownfiles.Store, prompter prompt.Prompter) *Pipeline {
	return &Pipeline{
		base:     base,
		store:    store,
		engine:   script.NewEngine(),
		prompter: prompter,
		logger:   logging.GetLogger("deploy"),
	}
}

// ProcessFile deploys one source file to all its targets. The returned
// error is per-file recoverable (unreadable source or header, header
// script failure, invalid settings) or a store-save failure; per-target
// problems are logged as warnings and never propagate, so sibling
// targets proceed.
func (p *Pipeline) ProcessFile(src discover.Source) error {
	p.logger.Info().Str("file", src.Path).Msg("processing")

	bindings := p.base.Clone()
	bindings["filename"] = filepath.Base(src.Path)

	var body []string
	if src.Header == "" {
		text, err := os.ReadFile(src.Path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrSourceRead, "could not read file %s", src.Path)
		}

		header, rest := splitHeaderAndBody(splitLines(string(text)))
		if err := p.engine.Exec(header, bindings); err != nil {
			return errors.Wrapf(err, errors.ErrHeaderExec, "could not run header of file %s", src.Path)
		}
		body = rest
	} else {
		headerText, err := os.ReadFile(src.Header)
		if err != nil {
			return errors.Wrapf(err, errors.ErrHeaderRead, "could not read header file %s", src.Header)
		}
		if err := p.engine.Exec(splitLines(string(headerText)), bindings); err != nil {
			return errors.Wrapf(err, errors.ErrHeaderExec, "could not run header file %s", src.Header)
		}
	}

	settings, err := types.SettingsFromBindings(bindings)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSettingsInvalid, "invalid settings for file %s", src.Path)
	}

	if settings.Binary {
		return p.processBinary(src.Path, settings)
	}

	if src.Header != "" {
		text, err := os.ReadFile(src.Path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrSourceRead, "could not read file %s", src.Path)
		}
		body = splitLines(string(text))
	}

	return p.processTemplated(src.Path, body, settings, bindings)
}

// processTemplated renders the body once per target, each time against a
// fresh binding clone and a parser built from the current settings.
func (p *Pipeline) processTemplated(source string, body []string, settings types.Settings, bindings types.Bindings) error {
	if len(settings.Targets) == 0 {
		p.logger.Warn().Str("file", source).Msg("no targets configured, nothing to deploy")
		return nil
	}

	for _, target := range settings.Targets {
		target := paths.ExpandHome(target)
		p.logger.Info().Str("target", target).Msg("  ->")

		parser := template.New(template.Options{
			StatementPrefix: settings.StatementPrefix,
			ExprOpen:        settings.ExprOpen,
			ExprClose:       settings.ExprClose,
		})
		block, err := parser.Parse(body)
		if err != nil {
			p.logger.Warn().Err(err).Str("target", target).Msg("could not parse, skipping target")
			continue
		}

		targetBindings := bindings.Clone()
		targetBindings["target"] = target

		text, err := block.Evaluate(p.engine, targetBindings)
		if err != nil {
			p.logger.Warn().Err(err).Str("target", target).Msg("could not render, skipping target")
			continue
		}

		if err := p.deployTarget(source, target, []byte(text)); err != nil {
			return err
		}
	}

	return nil
}

// processBinary copies the source bytes verbatim to every target, no
// parsing involved.
func (p *Pipeline) processBinary(source string, settings types.Settings) error {
	if len(settings.Targets) == 0 {
		p.logger.Warn().Str("file", source).Msg("no targets configured, nothing to deploy")
		return nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return errors.Wrapf(err, errors.ErrSourceRead, "could not read file %s", source)
	}

	for _, target := range settings.Targets {
		target := paths.ExpandHome(target)
		p.logger.Info().Str("target", target).Msg("  -> (binary)")

		if err := p.deployTarget(source, target, data); err != nil {
			return err
		}
	}

	return nil
}

// deployTarget runs justify-then-commit for one target. Refusals and
// write failures are warnings; only hash-recording and store-save
// failures propagate.
func (p *Pipeline) deployTarget(source, target string, content []byte) error {
	if !p.justifyTarget(target) {
		p.logger.Info().Str("target", target).Msg("skipping this target")
		return nil
	}

	if err := p.commit(source, target, content); err != nil {
		if errors.IsErrorCode(err, errors.ErrHashRecord) || errors.IsErrorCode(err, errors.ErrStoreSave) {
			return err
		}
		p.logger.Warn().Err(err).Str("target", target).Msg("skipping target")
	}

	return nil
}

// justifyTarget decides whether overwriting the target is safe. The
// decision tree, in order: absent targets are always safe; non-regular
// files are refused; a target already written this run is refused (one
// run never overwrites its own output); otherwise the target's current
// hash is compared against the store, and anything but an exact match
// requires the operator's confirmation, defaulting to no.
func (p *Pipeline) justifyTarget(target string) bool {
	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil {
		return p.confirm("Overwriting a file that could not be inspected, continue?")
	}

	if !info.Mode().IsRegular() {
		p.logger.Warn().Str("target", target).Msg("target is not a regular file")
		return false
	}

	if p.store.WasWrittenThisRun(target) {
		p.logger.Warn().Str("target", target).Msg("target was already overwritten earlier this run")
		return false
	}

	currentHash, err := knownfiles.HashFile(target)
	if err != nil {
		return p.confirm("Overwriting a file that could not be hashed, continue?")
	}

	knownHash, known := p.store.Lookup(target)
	if !known {
		return p.confirm("Overwriting an unknown file, continue?")
	}

	if currentHash == knownHash {
		// Unchanged since we last wrote it.
		return true
	}

	return p.confirm("Overwriting a file that was modified since it was last written, continue?")
}

func (p *Pipeline) confirm(question string) bool {
	ok, err := prompt.YesNo(p.prompter, question, false)
	if err != nil {
		p.logger.Warn().Err(err).Msg("could not read confirmation, refusing")
		return false
	}
	return ok
}

// commit writes the content, copies the source permission bits best
// effort, re-hashes the written target and persists the record
// incrementally so earlier targets survive a crash.
func (p *Pipeline) commit(source, target string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "could not create target directory for %s", target)
	}

	if err := os.WriteFile(target, content, 0644); err != nil {
		return errors.Wrapf(err, errors.ErrTargetWrite, "could not write to %s", target)
	}

	if info, err := os.Stat(source); err == nil {
		if err := os.Chmod(target, info.Mode().Perm()); err != nil {
			p.logger.Warn().Err(err).Str("target", target).Msg("could not copy permissions")
		}
	} else {
		p.logger.Warn().Err(err).Str("source", source).Msg("could not read source permissions")
	}

	hash, err := knownfiles.HashFile(target)
	if err != nil {
		return errors.Wrapf(err, errors.ErrHashRecord, "could not hash written target %s", target)
	}

	p.store.Update(target, hash)
	return p.store.SaveIncremental()
}

// splitHeaderAndBody separates the inline header script from the body:
// the leading lines up to, and excluding, the first line consisting
// solely of 3 or more "=" characters. Without a separator the whole file
// is body.
func splitHeaderAndBody(lines []string) (header, body []string) {
	for i, line := range lines {
		if isHeaderSeparator(line) {
			return lines[:i], lines[i+1:]
		}
	}
	return nil, lines
}

func isHeaderSeparator(line string) bool {
	if len(line) < 3 {
		return false
	}
	return strings.Count(line, "=") == len(line)
}

// splitLines splits file content the way templates count lines: "\n"
// separated, with a trailing newline not producing a final empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
