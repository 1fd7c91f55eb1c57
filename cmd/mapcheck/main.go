// mapcheck loads an OTBM map and inspects the assembled result for
// dangling references and structural oddities: house tiles without a
// house entity, towns with bad temples, out-of-bounds tiles. Exit code 1
// means at least one error-severity issue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"mapforge.dev/internal/gamemap"
	"mapforge.dev/internal/itemdb"
	"mapforge.dev/internal/otbm"
	"mapforge.dev/internal/project"
)

func main() {
	var (
		mapPath   = flag.String("map", "", "map file to check")
		itemsPath = flag.String("items", "", "items.otb (optional, improves item checks)")
		wsPath    = flag.String("workspace", "", "workspace.yaml (optional)")
		warnAsErr = flag.Bool("strict", false, "treat warnings as errors")
	)
	flag.Parse()

	if *mapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -map")
		os.Exit(2)
	}

	ws, err := project.LoadWorkspace(*wsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "workspace:", err)
		os.Exit(1)
	}

	var db *itemdb.Database
	var mapper *itemdb.Mapper
	if *itemsPath != "" {
		if db, err = itemdb.Load(*itemsPath); err != nil {
			fmt.Fprintln(os.Stderr, "items.otb:", err)
			os.Exit(1)
		}
		mapper = db.Mapper()
	}

	fc := otbm.Context{DB: db, Mapper: mapper, Limits: ws.Limits}
	m, rep, err := otbm.LoadFile(context.Background(), *mapPath, fc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}

	fmt.Printf("%s: otbm v%d %dx%d tiles=%d items=%d\n",
		*mapPath, rep.Version, rep.Width, rep.Height, rep.Tiles, rep.Items)
	for _, w := range rep.Warnings {
		fmt.Printf("load warning %s: %s", w.Code, w.Message)
		if w.Pos != nil {
			fmt.Printf(" at %s", w.Pos)
		}
		fmt.Println()
	}

	res := gamemap.Validate(m)
	for _, issue := range res.Issues {
		fmt.Printf("%s %s: %s", issue.Severity, issue.Code, issue.Message)
		if issue.Pos != nil {
			fmt.Printf(" at %s", issue.Pos)
		}
		fmt.Println()
	}

	errors := len(res.Errors())
	warnings := len(res.Warnings()) + len(rep.Warnings)
	fmt.Printf("%d error(s), %d warning(s)\n", errors, warnings)

	if errors > 0 || (*warnAsErr && warnings > 0) {
		os.Exit(1)
	}
}
