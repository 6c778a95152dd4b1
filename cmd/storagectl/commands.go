package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bitmark-inc/logger"
	"github.com/invopop/jsonschema"
	"github.com/urfave/cli"

	"github.com/gravitas-games/citybuilder/internal/config"
	"github.com/gravitas-games/citybuilder/internal/depot"
	"github.com/gravitas-games/citybuilder/internal/snapshot"
	"github.com/gravitas-games/citybuilder/pkg/storage"
)

func runSchema(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(&storage.Snapshot{})
	schema.Title = "Storage Snapshot"
	schema.Description = "Persisted contents of one storage, keyed by " + depot.SnapshotKey("<id>")
	return printJson(m.w, schema)
}

func runCheck(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	path := c.Args().First()
	if path == "" {
		return errors.New("missing configuration file")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// the world logs while it is built
	if err := os.MkdirAll(cfg.Logging.Directory, 0o700); err != nil {
		return err
	}
	if err := logger.Initialise(logger.Configuration{
		Directory: cfg.Logging.Directory,
		File:      cfg.Logging.File,
		Size:      cfg.Logging.Size,
		Count:     cfg.Logging.Count,
		Console:   m.verbose,
		Levels:    map[string]string{logger.DefaultTag: "warn"},
	}); err != nil {
		return err
	}
	defer logger.Finalise()

	w, err := depot.NewWorld(cfg.Depot, nil)
	if err != nil {
		return err
	}
	if m.verbose {
		for _, id := range w.IDs() {
			text, _ := w.DebugText(id)
			fmt.Fprintf(m.e, "%s: %s", id, text)
		}
	}
	out := struct {
		Items    int      `json:"items"`
		Storages []string `json:"storages"`
		Recipes  int      `json:"recipes"`
	}{
		Items:    w.Registry().Len(),
		Storages: w.IDs(),
		Recipes:  w.Production().Registry().Count(),
	}
	return printJson(m.w, out)
}

func openBackend(c *cli.Context) (*snapshot.LevelDBBackend, error) {
	db := c.String("db")
	if db == "" {
		return nil, errors.New("missing leveldb directory")
	}
	return snapshot.OpenLevelDB(db, c.String("prefix"))
}

func runKeys(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	b, err := openBackend(c)
	if err != nil {
		return err
	}
	defer b.Close()

	keys, err := b.Keys(context.Background(), depot.KeyPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(m.w, k)
	}
	return nil
}

func runDump(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	id := c.Args().First()
	if id == "" {
		return errors.New("missing storage id")
	}
	b, err := openBackend(c)
	if err != nil {
		return err
	}
	defer b.Close()

	data, err := b.Get(context.Background(), depot.SnapshotKey(id))
	if errors.Is(err, snapshot.ErrNotFound) {
		return fmt.Errorf("no snapshot for storage %q", id)
	}
	if err != nil {
		return err
	}
	var snap storage.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("corrupt snapshot %q: %w", id, err)
	}
	if m.verbose {
		fmt.Fprintf(m.e, "%s: %d bytes\n", depot.SnapshotKey(id), len(data))
	}
	return printJson(m.w, snap)
}
