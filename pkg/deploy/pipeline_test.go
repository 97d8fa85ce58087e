// pkg/deploy/pipeline_test.go
// TEST TYPE: Integration Tests
// DEPENDENCIES: Filesystem (temp dirs)
// PURPOSE: Test the render-justify-commit pipeline end to end

package deploy_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/stencil/pkg/deploy"
	"github.com/arthur-debert/stencil/pkg/discover"
	"github.com/arthur-debert/stencil/pkg/errors"
	"github.com/arthur-debert/stencil/pkg/knownfiles"
	"github.com/arthur-debert/stencil/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter answers each confirmation from a fixed list and
// records the questions it was asked. Out of answers, it declines.
type scriptedPrompter struct {
	answers   []rune
	questions []string
}

func (p *scriptedPrompter) Choice(question, options string) (rune, error) {
	p.questions = append(p.questions, question)
	if len(p.answers) == 0 {
		return 'n', nil
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

type fixture struct {
	dir       string
	storePath string
	prompter  *scriptedPrompter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:       dir,
		storePath: filepath.Join(dir, "known-files.json"),
		prompter:  &scriptedPrompter{},
	}
}

func (f *fixture) pipeline(t *testing.T, base types.Bindings) (*deploy.Pipeline, *knownfiles.Store) {
	t.Helper()
	store, err := knownfiles.Load(f.storePath)
	require.NoError(t, err)
	if base == nil {
		base = types.Bindings{}
	}
	base["dest"] = f.dir
	return deploy.New(base, store, f.prompter), store
}

func (f *fixture) writeSource(t *testing.T, name, content string) discover.Source {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return discover.Source{Path: path}
}

func (f *fixture) target(name string) string {
	return filepath.Join(f.dir, name)
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestProcessFile_RendersAndDeploys(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "greeting", `targets = [dest + "/out.conf"]
===
Hello {{ name }}{{ "!" }}
`)

	pipeline, store := f.pipeline(t, types.Bindings{"name": "World"})
	require.NoError(t, pipeline.ProcessFile(src))

	target := f.target("out.conf")
	assert.Equal(t, "Hello World!\n", readFile(t, target))
	assert.True(t, store.WasWrittenThisRun(target))
	assert.Empty(t, f.prompter.questions, "a fresh target needs no confirmation")

	// The incremental save already persisted the record.
	reloaded, err := knownfiles.Load(f.storePath)
	require.NoError(t, err)
	hash, ok := reloaded.Lookup(target)
	require.True(t, ok)
	written, err := knownfiles.HashFile(target)
	require.NoError(t, err)
	assert.Equal(t, written, hash)
}

func TestProcessFile_ConditionalBranches(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "conditional", `targets = [dest + "/out.conf"]
===
# if flag
A
# else
B
# end
`)

	pipeline, _ := f.pipeline(t, types.Bindings{"flag": false})
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Equal(t, "B\n", readFile(t, f.target("out.conf")))
}

func TestProcessFile_SecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "greeting", `targets = [dest + "/out.conf"]
===
Hello {{ name }}
`)

	pipeline, store := f.pipeline(t, types.Bindings{"name": "World"})
	require.NoError(t, pipeline.ProcessFile(src))
	require.NoError(t, store.Finalize())

	before := readFile(t, f.target("out.conf"))
	storeBefore := readFile(t, f.storePath)

	// Second run, fresh store generation, untouched source and target.
	pipeline, store = f.pipeline(t, types.Bindings{"name": "World"})
	require.NoError(t, pipeline.ProcessFile(src))
	require.NoError(t, store.Finalize())

	assert.Equal(t, before, readFile(t, f.target("out.conf")))
	assert.Equal(t, storeBefore, readFile(t, f.storePath))
	assert.Empty(t, f.prompter.questions, "an unchanged target must not prompt")
}

func TestProcessFile_ExternalModificationPrompts(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "greeting", `targets = [dest + "/out.conf"]
===
managed content
`)

	pipeline, store := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))
	require.NoError(t, store.Finalize())

	target := f.target("out.conf")
	require.NoError(t, os.WriteFile(target, []byte("hand edited\n"), 0644))
	storeBefore := readFile(t, f.storePath)

	// Declining leaves the external edit and the record untouched.
	pipeline, store = f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	require.Len(t, f.prompter.questions, 1)
	assert.Contains(t, f.prompter.questions[0], "modified since")
	assert.Equal(t, "hand edited\n", readFile(t, target))
	assert.Equal(t, storeBefore, readFile(t, f.storePath))
	assert.False(t, store.WasWrittenThisRun(target))
}

func TestProcessFile_ExternalModificationOverwriteWhenConfirmed(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "greeting", `targets = [dest + "/out.conf"]
===
managed content
`)

	pipeline, store := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))
	require.NoError(t, store.Finalize())

	target := f.target("out.conf")
	require.NoError(t, os.WriteFile(target, []byte("hand edited\n"), 0644))

	f.prompter.answers = []rune{'y'}
	pipeline, _ = f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Equal(t, "managed content\n", readFile(t, target))
}

func TestProcessFile_UnknownExistingTargetPrompts(t *testing.T) {
	f := newFixture(t)
	target := f.target("out.conf")
	require.NoError(t, os.WriteFile(target, []byte("precious\n"), 0644))

	src := f.writeSource(t, "greeting", `targets = [dest + "/out.conf"]
===
managed content
`)

	pipeline, _ := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	require.Len(t, f.prompter.questions, 1)
	assert.Contains(t, f.prompter.questions[0], "unknown file")
	assert.Equal(t, "precious\n", readFile(t, target))
}

func TestProcessFile_RefusesSecondWriteSameRun(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "doubled", fmt.Sprintf(`targets = [%q, %q]
===
content
`, f.target("out.conf"), f.target("out.conf")))

	pipeline, _ := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	// The duplicate target is refused outright, without a prompt.
	assert.Empty(t, f.prompter.questions)
	assert.Equal(t, "content\n", readFile(t, f.target("out.conf")))
}

func TestProcessFile_RefusesNonRegularTarget(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(f.target("out.conf"), 0755))

	src := f.writeSource(t, "greeting", `targets = [dest + "/out.conf"]
===
content
`)

	pipeline, store := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Empty(t, f.prompter.questions)
	assert.False(t, store.WasWrittenThisRun(f.target("out.conf")))
}

func TestProcessFile_SiblingTargetsSurviveRefusal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Mkdir(f.target("blocked"), 0755))

	src := f.writeSource(t, "multi", fmt.Sprintf(`targets = [%q, %q]
===
content
`, f.target("blocked"), f.target("ok.conf")))

	pipeline, _ := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Equal(t, "content\n", readFile(t, f.target("ok.conf")))
}

func TestProcessFile_HeaderFile(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "app.conf", "key = {{ value }}\n")
	headerPath := src.Path + discover.HeaderSuffix
	require.NoError(t, os.WriteFile(headerPath, []byte(`targets = [dest + "/deployed.conf"]
value = 42
`), 0644))
	src.Header = headerPath

	pipeline, _ := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	// With a sibling header the source body is used in full.
	assert.Equal(t, "key = 42\n", readFile(t, f.target("deployed.conf")))
}

func TestProcessFile_BinaryCopiesBytesVerbatim(t *testing.T) {
	f := newFixture(t)
	// Unbalanced delimiters would fail the parser; binary mode must not care.
	raw := "\x00\x01{{ not a template\xff\n"
	src := f.writeSource(t, "blob.bin", raw)
	headerPath := src.Path + discover.HeaderSuffix
	require.NoError(t, os.WriteFile(headerPath, []byte(`binary = true
targets = [dest + "/blob.out"]
`), 0644))
	src.Header = headerPath

	pipeline, store := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Equal(t, raw, readFile(t, f.target("blob.out")))
	assert.True(t, store.WasWrittenThisRun(f.target("blob.out")))
}

func TestProcessFile_PerTargetBindings(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "which", fmt.Sprintf(`targets = [%q, %q]
===
{{ filename }} -> {{ target }}
`, f.target("a.conf"), f.target("b.conf")))

	pipeline, _ := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Equal(t, "which -> "+f.target("a.conf")+"\n", readFile(t, f.target("a.conf")))
	assert.Equal(t, "which -> "+f.target("b.conf")+"\n", readFile(t, f.target("b.conf")))
}

func TestProcessFile_HeaderMutationsDoNotLeakAcrossFiles(t *testing.T) {
	f := newFixture(t)
	first := f.writeSource(t, "first", `name = "Override"
targets = [dest + "/first.conf"]
===
{{ name }}
`)
	second := f.writeSource(t, "second", `targets = [dest + "/second.conf"]
===
{{ name }}
`)

	pipeline, _ := f.pipeline(t, types.Bindings{"name": "Base"})
	require.NoError(t, pipeline.ProcessFile(first))
	require.NoError(t, pipeline.ProcessFile(second))

	assert.Equal(t, "Override\n", readFile(t, f.target("first.conf")))
	assert.Equal(t, "Base\n", readFile(t, f.target("second.conf")))
}

func TestProcessFile_NoTargetsIsANoOp(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "unrouted", "no separator, no header, plain body\n")

	pipeline, store := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Empty(t, f.prompter.questions)
	assert.Empty(t, store.ForgottenPaths())
}

func TestProcessFile_CopiesPermissionBits(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "script.sh", `targets = [dest + "/deployed.sh"]
===
#!/bin/sh
`)
	require.NoError(t, os.Chmod(src.Path, 0755))

	pipeline, _ := f.pipeline(t, nil)
	require.NoError(t, pipeline.ProcessFile(src))

	info, err := os.Stat(f.target("deployed.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestProcessFile_Failures(t *testing.T) {
	f := newFixture(t)

	t.Run("missing source", func(t *testing.T) {
		pipeline, _ := f.pipeline(t, nil)
		err := pipeline.ProcessFile(discover.Source{Path: filepath.Join(f.dir, "missing")})
		assert.True(t, errors.IsErrorCode(err, errors.ErrSourceRead))
	})

	t.Run("missing header file", func(t *testing.T) {
		src := f.writeSource(t, "hasheader", "body\n")
		src.Header = filepath.Join(f.dir, "missing-header")
		pipeline, _ := f.pipeline(t, nil)
		err := pipeline.ProcessFile(src)
		assert.True(t, errors.IsErrorCode(err, errors.ErrHeaderRead))
	})

	t.Run("header script failure", func(t *testing.T) {
		src := f.writeSource(t, "badheader", `targets = undefinedName
===
body
`)
		pipeline, _ := f.pipeline(t, nil)
		err := pipeline.ProcessFile(src)
		assert.True(t, errors.IsErrorCode(err, errors.ErrHeaderExec))
	})

	t.Run("malformed targets", func(t *testing.T) {
		src := f.writeSource(t, "badtargets", `targets = "not-a-list"
===
body
`)
		pipeline, _ := f.pipeline(t, nil)
		err := pipeline.ProcessFile(src)
		assert.True(t, errors.IsErrorCode(err, errors.ErrSettingsInvalid))
	})

	t.Run("parse failure skips target", func(t *testing.T) {
		src := f.writeSource(t, "badtemplate", `targets = [dest + "/never.conf"]
===
broken {{ line
`)
		pipeline, _ := f.pipeline(t, nil)
		require.NoError(t, pipeline.ProcessFile(src))

		_, err := os.Stat(f.target("never.conf"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("render failure skips target", func(t *testing.T) {
		src := f.writeSource(t, "badexpr", `targets = [dest + "/never2.conf"]
===
{{ undefinedName }}
`)
		pipeline, _ := f.pipeline(t, nil)
		require.NoError(t, pipeline.ProcessFile(src))

		_, err := os.Stat(f.target("never2.conf"))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestProcessFile_CustomDelimitersFromHeader(t *testing.T) {
	f := newFixture(t)
	src := f.writeSource(t, "custom", `statement_prefix = "//"
expression_delimiters = ["<%", "%>"]
targets = [dest + "/custom.conf"]
===
// if flag
value = <% 2 + 3 %>
// end
{{ untouched }}
`)

	pipeline, _ := f.pipeline(t, types.Bindings{"flag": true})
	require.NoError(t, pipeline.ProcessFile(src))

	assert.Equal(t, "value = 5\n{{ untouched }}\n", readFile(t, f.target("custom.conf")))
}
