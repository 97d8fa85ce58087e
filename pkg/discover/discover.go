// Package discover walks the source directory and pairs each deployable
// file with its optional sibling header file.
package discover

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/stencil/pkg/errors"
	"github.com/arthur-debert/stencil/pkg/logging"
)

// HeaderSuffix marks a file as the header script for the sibling file
// named by stripping the suffix.
const HeaderSuffix = ".stencil-header"

// Source is one deployable file. Header is empty when the file has no
// sibling header.
type Source struct {
	Path   string
	Header string
}

// Find recursively collects the deployable files under root, in
// directory order. A root that is not a directory is fatal; an
// unreadable subdirectory is logged and skipped, its siblings
// unaffected.
func Find(root string) ([]Source, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDiscovery, "could not access source directory %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrDiscovery, "%s is not a directory", root)
	}

	sources, err := findIn(root)
	if err != nil {
		return nil, err
	}
	return sources, nil
}

func findIn(dir string) ([]Source, error) {
	logger := logging.GetLogger("discover")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrDiscovery, "could not read directory %s", dir)
	}

	byPath := make(map[string]int)
	var sources []Source
	var headers []string
	var subdirs []string

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		// Stat rather than entry.Info so symlinked files and directories
		// are followed; a dangling link is skipped with a warning.
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("could not stat entry, skipping")
			continue
		}

		switch {
		case info.IsDir():
			subdirs = append(subdirs, path)
		case info.Mode().IsRegular():
			if strings.HasSuffix(entry.Name(), HeaderSuffix) {
				logger.Debug().Str("path", path).Msg("found header file")
				headers = append(headers, path)
			} else {
				logger.Debug().Str("path", path).Msg("found file")
				byPath[path] = len(sources)
				sources = append(sources, Source{Path: path})
			}
		default:
			logger.Debug().Str("path", path).Msg("neither a directory nor a regular file, skipping")
		}
	}

	for _, header := range headers {
		body := strings.TrimSuffix(header, HeaderSuffix)
		i, ok := byPath[body]
		if !ok {
			logger.Warn().Str("header", header).Msg("no corresponding file for header file")
			continue
		}
		sources[i].Header = header
	}

	for _, subdir := range subdirs {
		nested, err := findIn(subdir)
		if err != nil {
			logger.Warn().Err(err).Str("path", subdir).Msg("could not descend into directory, skipping")
			continue
		}
		sources = append(sources, nested...)
	}

	return sources, nil
}
