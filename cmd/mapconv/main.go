// mapconv migrates an OTBM map between format dialects: it loads with
// one format descriptor and saves with another, translating item ids
// between ServerID and ClientID space through the item database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"mapforge.dev/internal/backup"
	"mapforge.dev/internal/format"
	"mapforge.dev/internal/itemdb"
	"mapforge.dev/internal/otbm"
	"mapforge.dev/internal/project"
)

func main() {
	var (
		inPath    = flag.String("in", "", "source map file")
		outPath   = flag.String("out", "", "destination map file")
		itemsPath = flag.String("items", "", "items.otb for the target client (optional if -project names one)")
		projPath  = flag.String("project", "", "project.json supplying version hints (optional)")
		wsPath    = flag.String("workspace", "", "workspace.yaml with limits and backup settings (optional)")
		toVersion = flag.Uint("to_version", 0, "target structural version (default: keep the source's)")
		toClient  = flag.Int("to_client", 0, "target client version, e.g. 1310 (overrides -to_version)")
		verbose   = flag.Bool("v", false, "print per-warning detail")
	)
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in or -out")
		os.Exit(2)
	}

	ws, err := project.LoadWorkspace(*wsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "workspace:", err)
		os.Exit(1)
	}

	var proj *project.Project
	if *projPath != "" {
		if proj, err = project.LoadProject(*projPath); err != nil {
			fmt.Fprintln(os.Stderr, "project:", err)
			os.Exit(1)
		}
	}

	dbPath := *itemsPath
	if dbPath == "" && proj != nil {
		dbPath = proj.ItemsPath()
	}
	var db *itemdb.Database
	var mapper *itemdb.Mapper
	if dbPath != "" {
		if db, err = itemdb.Load(dbPath); err != nil {
			fmt.Fprintln(os.Stderr, "items.otb:", err)
			os.Exit(1)
		}
		mapper = db.Mapper()
	}

	if kind, err := format.SniffFile(*inPath); err != nil {
		fmt.Fprintln(os.Stderr, "sniff:", err)
		os.Exit(1)
	} else if kind != format.KindMap {
		fmt.Fprintf(os.Stderr, "%s does not look like an OTBM map (detected: %s)\n", *inPath, kind)
		os.Exit(1)
	}

	fc := otbm.Context{DB: db, Mapper: mapper, Limits: ws.Limits}
	ctx := context.Background()

	m, loadRep, err := otbm.LoadFile(ctx, *inPath, fc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	fmt.Printf("loaded %s: otbm v%d %dx%d tiles=%d items=%d warnings=%d (%s)\n",
		*inPath, loadRep.Version, loadRep.Width, loadRep.Height,
		loadRep.Tiles, loadRep.Items, len(loadRep.Warnings), loadRep.Duration)
	printWarnings(loadRep.Warnings, *verbose)

	target := resolveTarget(proj, db, loadRep.Version, *toVersion, *toClient)
	fmt.Printf("target: otbm v%d (%s space, via %s)\n",
		target.Descriptor.Version, idSpace(target.Descriptor), target.Source)

	if ws.Backup.Enabled {
		store, err := backup.Open(ws.Backup.Dir, ws.Backup.Generations, ws.Backup.Level)
		if err != nil {
			fmt.Fprintln(os.Stderr, "backup:", err)
			os.Exit(1)
		}
		gen, err := store.Snapshot(*outPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "backup:", err)
			os.Exit(1)
		}
		if gen != nil {
			fmt.Printf("backed up %s (%d -> %d bytes)\n", *outPath, gen.RawBytes, gen.StoredByte)
		}
		_ = store.Close()
	}

	fc.Format = &target.Descriptor
	saveRep, err := otbm.SaveFile(ctx, *outPath, m, fc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "save:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s: otbm v%d tiles=%d items=%d bytes=%d (%s)\n",
		*outPath, saveRep.Version, saveRep.Tiles, saveRep.Items, saveRep.Bytes, saveRep.Duration)
}

func resolveTarget(proj *project.Project, db *itemdb.Database, sourceVersion uint32, toVersion uint, toClient int) format.Resolution {
	hints := format.Hints{}
	switch {
	case toClient > 0:
		hints.ClientVersion = toClient
	case toVersion > 0:
		hints.StructuralVersion = uint32(toVersion)
	case proj != nil:
		hints = proj.Hints()
	}
	var dbHeader *itemdb.Header
	if db != nil {
		dbHeader = &db.Header
	}
	return format.Resolve(hints, sourceVersion, dbHeader)
}

func idSpace(d otbm.Descriptor) string {
	if d.UsesClientID {
		return "client id"
	}
	return "server id"
}

func printWarnings(warns []otbm.Warning, verbose bool) {
	if !verbose {
		return
	}
	for _, w := range warns {
		fmt.Printf("  warning %s: %s", w.Code, w.Message)
		if w.Pos != nil {
			fmt.Printf(" at %s", w.Pos)
		}
		if w.RawID != 0 {
			fmt.Printf(" (raw id %d)", w.RawID)
		}
		fmt.Println()
	}
}
