// Package main implements a TCB import restriction linter.
//
// Spec §5 names exactly five packages as the node's kernel-critical
// surface — canonicalize, cryptoprovider, logstore, memorygraph, scoring
// (the same five core/pkg/registry.Registry holds at boot) — and
// forbids them from reaching into the network/API/CLI layer. This scans
// those packages' non-test imports and flags any forbidden fragment.
//
// Usage:
//
//	go run tools/tcbcheck/main.go [-root <project-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
)

// tcbPackages are the five packages spec §5 permits as process-wide
// state; everything else is free to import whatever it needs.
var tcbPackages = []string{
	"canonicalize",
	"cryptoprovider",
	"logstore",
	"memorygraph",
	"scoring",
}

// forbiddenFragments are import path fragments a TCB package must never
// pull in — the network/API surface, replication transport, external
// artifact stores, and the CLI entrypoints, none of which spec §5's
// "no other global mutable state" rule permits the kernel to depend on.
var forbiddenFragments = []string{
	"core/pkg/api",
	"core/pkg/replication",
	"core/pkg/artifacts",
	"core/cmd",
	"net/http",
}

func main() {
	root := flag.String("root", ".", "project root directory")
	flag.Parse()

	violations := 0
	fset := token.NewFileSet()

	for _, pkg := range tcbPackages {
		pkgDir := filepath.Join(*root, "core", "pkg", pkg)
		if _, err := os.Stat(pkgDir); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "ERROR: %s does not exist\n", pkgDir)
			os.Exit(1)
		}

		err := filepath.Walk(pkgDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}

			f, parseErr := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if parseErr != nil {
				fmt.Fprintf(os.Stderr, "WARN: parse error in %s: %v\n", path, parseErr)
				return nil
			}

			for _, imp := range f.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, frag := range forbiddenFragments {
					if strings.Contains(importPath, frag) {
						pos := fset.Position(imp.Pos())
						relPath, _ := filepath.Rel(*root, pos.Filename)
						fmt.Printf("TCB VIOLATION: %s:%d imports %q (contains forbidden fragment %q)\n",
							relPath, pos.Line, importPath, frag)
						violations++
					}
				}
			}
			return nil
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: walk failed: %v\n", err)
			os.Exit(1)
		}
	}

	if violations > 0 {
		fmt.Printf("\n%d TCB violation(s) found\n", violations)
		os.Exit(1)
	}

	fmt.Println("TCB isolation check passed — no forbidden imports in kernel packages")
}
