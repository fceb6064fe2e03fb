package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/DataExMachina-dev/checkpoint-go/checkpointclient"
	"github.com/DataExMachina-dev/checkpoint-go/internal/framing"
	"github.com/DataExMachina-dev/checkpoint-go/internal/reader"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "checkpointctl",
		Usage:   "record, fetch and inspect constant-table checkpoints",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "checkpoint service address (host:port or http(s) URL)",
				EnvVars: []string{checkpointclient.ENV_SERVICE_ADDR},
				Value:   "127.0.0.1:7171",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			captureCommand(),
			getCommand(),
			listCommand(),
			dumpCommand(),
		},
	}
}

func newClient(c *cli.Context) (*checkpointclient.Client, error) {
	return checkpointclient.NewClient(checkpointclient.WithAddr(c.String("addr")))
}

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "capture a checkpoint from a running service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "kind",
				Aliases: []string{"k"},
				Usage:   "tables to write: statics, threads or all",
				Value:   framing.KindAll.String(),
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "write the checkpoint to this file instead of dumping it",
			},
		},
		Action: func(c *cli.Context) error {
			kind, err := framing.ParseKind(c.String("kind"))
			if err != nil {
				return err
			}
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()
			res, err := client.Capture(c.Context, kind)
			if err != nil {
				return err
			}
			w := c.App.Writer
			fmt.Fprintf(w, "captured checkpoint %d (%d bytes)", res.Sequence, len(res.Data))
			if res.ID != "" {
				fmt.Fprintf(w, " stored as %s", res.ID)
			}
			fmt.Fprintln(w)
			return output(c, res.Data)
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "fetch a stored checkpoint",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "write the checkpoint to this file instead of dumping it",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("get takes exactly one checkpoint id")
			}
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()
			data, err := client.Get(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			return output(c, data)
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list the ids of the stored checkpoints, oldest first",
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()
			ids, err := client.List(c.Context)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(c.App.Writer, id)
			}
			return nil
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "dump",
		Usage:     "decode checkpoints from a file, or stdin when no file is given",
		ArgsUsage: "[file]",
		Action: func(c *cli.Context) error {
			var data []byte
			var err error
			if c.NArg() == 0 || c.Args().First() == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(c.Args().First())
			}
			if err != nil {
				return err
			}
			return dump(c.App.Writer, data)
		},
	}
}

// output writes data to the --out file if one was given, and dumps it
// otherwise.
func output(c *cli.Context, data []byte) error {
	if path := c.String("out"); path != "" {
		return os.WriteFile(path, data, 0o644)
	}
	return dump(c.App.Writer, data)
}

// dump prints every checkpoint in data. Checkpoints decoded before an error
// are printed too.
func dump(w io.Writer, data []byte) error {
	cps, err := reader.Decode(data)
	for _, cp := range cps {
		fmt.Fprintf(w, "checkpoint %d kind=%s size=%d start=%d duration=%d types=%d\n",
			cp.Sequence, cp.Kind, cp.Size, cp.StartTicks, cp.Duration, len(cp.Types))
		for _, t := range cp.Types {
			fmt.Fprintf(w, "  %s (%d): %d entries\n", t.Type, uint64(t.Type), len(t.Entries))
			for _, e := range t.Entries {
				fields := make([]string, len(e.Fields))
				for i, f := range e.Fields {
					fields[i] = f.String()
				}
				fmt.Fprintf(w, "    %d: %s\n", e.Key, strings.Join(fields, " "))
			}
		}
	}
	return err
}
