package workflow

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ExtractedFile is one fenced code block resolved to a project-relative path.
type ExtractedFile struct {
	RelativePath string
	Content      []byte
	Kind         FileKind
}

// FileKind classifies an extracted file for Project Store placement (§4.3).
type FileKind string

const (
	FileKindSrc  FileKind = "src"
	FileKindTest FileKind = "test"
	FileKindDoc  FileKind = "doc"
)

var fencedBlockRE = regexp.MustCompile("(?m)^([ \\t]*)```([a-zA-Z0-9_+-]*)[ \\t]*\\r?\\n([\\s\\S]*?)\\n[ \\t]*```[ \\t]*$")

// pathHintRE matches a leading comment or bare line naming a path, e.g.
// "// path/to/file.go", "# file.py", or "file.go:" immediately preceding a
// fence.
var pathHintRE = regexp.MustCompile(`(?m)^(?://|#)?\s*([A-Za-z0-9_./-]+\.[A-Za-z0-9_]+)\s*:?\s*$`)

var langExtensions = map[string]string{
	"go":         ".go",
	"golang":     ".go",
	"python":     ".py",
	"py":         ".py",
	"javascript": ".js",
	"js":         ".js",
	"typescript": ".ts",
	"ts":         ".ts",
	"tsx":        ".tsx",
	"jsx":        ".jsx",
	"java":       ".java",
	"rust":       ".rs",
	"rs":         ".rs",
	"c":          ".c",
	"cpp":        ".cpp",
	"c++":        ".cpp",
	"ruby":       ".rb",
	"rb":         ".rb",
	"bash":       ".sh",
	"sh":         ".sh",
	"shell":      ".sh",
	"yaml":       ".yaml",
	"yml":        ".yaml",
	"json":       ".json",
	"sql":        ".sql",
	"markdown":   ".md",
	"md":         ".md",
	"html":       ".html",
	"css":        ".css",
}

// extractFiles scans text for fenced code blocks and resolves each to a
// project-relative path, per §4.3. Blocks with an unresolvable, escaping,
// or absolute path are skipped rather than rejecting the whole message.
func extractFiles(text string) []ExtractedFile {
	matches := fencedBlockRE.FindAllStringSubmatchIndex(text, -1)
	var out []ExtractedFile
	counter := map[string]int{}

	for _, m := range matches {
		langStart, langEnd := m[4], m[5]
		bodyStart, bodyEnd := m[6], m[7]
		blockStart := m[0]

		lang := strings.ToLower(text[langStart:langEnd])
		body := text[bodyStart:bodyEnd]

		preceding := text[:blockStart]
		hint := lastPathHint(preceding)

		path := resolvePath(hint, lang, &counter)
		if path == "" {
			continue
		}
		if !safeRelativePath(path) {
			continue
		}

		out = append(out, ExtractedFile{
			RelativePath: path,
			Content:      []byte(body),
			Kind:         classifyKind(path, body),
		})
	}
	return out
}

// lastPathHint looks at the final non-empty line before a fence for a
// filename hint.
func lastPathHint(preceding string) string {
	lines := strings.Split(preceding, "\n")
	for i := len(lines) - 1; i >= 0 && i >= len(lines)-3; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if m := pathHintRE.FindStringSubmatch(line); m != nil {
			return m[1]
		}
		break
	}
	return ""
}

func resolvePath(hint, lang string, counter *map[string]int) string {
	if hint != "" {
		return filepath.ToSlash(hint)
	}
	ext, ok := langExtensions[lang]
	if !ok {
		return ""
	}
	(*counter)[ext]++
	n := (*counter)[ext]
	name := "snippet"
	if n > 1 {
		name = "snippet" + strconv.Itoa(n)
	}
	return name + ext
}

// safeRelativePath rejects absolute paths, drive letters, and any ".."
// segment that could escape the project root.
func safeRelativePath(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// assertionImportMarkers are language-specific assertion/test-framework
// imports that mark a fenced block as a test file even when its path gives
// no hint (§4.3's content-based detection mode).
var assertionImportMarkers = []string{
	`"testing"`,
	"import unittest",
	"from unittest",
	"import pytest",
	"from pytest",
	"require('chai')",
	`require("chai")`,
	"from 'chai'",
	`from "chai"`,
	"require('mocha')",
	`require("mocha")`,
	"require('jest')",
	`require("jest")`,
	"from '@jest/globals'",
}

// classifyKind applies §4.3's precise file-kind rule: a `.md` or `.txt`
// extension or a bare `readme` name marks a doc file; a `tests/` path
// segment, a `test_` filename prefix, or a `_test` filename suffix marks a
// test file; otherwise the block body is sniffed for an assertion-style
// import. Anything else is source. This is deliberately NOT a bare
// substring match against "test" — "src/latest.go" must classify as src.
func classifyKind(path, content string) FileKind {
	lower := strings.ToLower(filepath.ToSlash(path))
	base := filepath.Base(lower)
	switch {
	case strings.HasSuffix(base, ".md"), strings.HasSuffix(base, ".txt"), base == "readme":
		return FileKindDoc
	}

	nameWithoutExt := strings.TrimSuffix(base, filepath.Ext(base))
	switch {
	case strings.HasPrefix(lower, "tests/"), strings.Contains(lower, "/tests/"):
		return FileKindTest
	case strings.HasPrefix(base, "test_"):
		return FileKindTest
	case strings.HasSuffix(nameWithoutExt, "_test"):
		return FileKindTest
	case hasAssertionImport(content):
		return FileKindTest
	default:
		return FileKindSrc
	}
}

func hasAssertionImport(content string) bool {
	for _, marker := range assertionImportMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
