package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

type metadata struct {
	verbose bool
	e       io.Writer
	w       io.Writer
}

// set by the linker: go build -ldflags "-X main.version=M.N" ./...
var version = "zero"

func main() {
	app := cli.NewApp()
	app.Name = "storagectl"
	app.Usage = "inspect depot configuration and persisted storages"
	app.Version = version

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " verbose result",
		},
	}
	dbFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "db, d",
			Value: "./data/depot",
			Usage: " leveldb `DIRECTORY`",
		},
		cli.StringFlag{
			Name:  "prefix, p",
			Value: "depot:",
			Usage: " snapshot key `PREFIX`",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "schema",
			Usage:  "print the JSON schema of a storage snapshot",
			Action: runSchema,
		},
		{
			Name:      "check",
			Usage:     "load a server configuration and build its depot",
			ArgsUsage: "FILE",
			Action:    runCheck,
		},
		{
			Name:   "keys",
			Usage:  "list the snapshots in a leveldb backend",
			Flags:  dbFlags,
			Action: runKeys,
		},
		{
			Name:      "dump",
			Usage:     "print the snapshot of one storage",
			ArgsUsage: "STORAGE",
			Flags:     dbFlags,
			Action:    runDump,
		},
	}

	app.Before = func(c *cli.Context) error {
		c.App.Metadata = map[string]interface{}{
			"config": &metadata{
				verbose: c.GlobalBool("verbose"),
				e:       c.App.ErrWriter,
				w:       c.App.Writer,
			},
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func printJson(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", b)
	return nil
}
