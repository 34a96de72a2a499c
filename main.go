package main

import (
	"log/slog"
	"os"

	"github.com/icco/moviecatalog/lib/config"
	"github.com/urfave/cli"
)

const configFlag = "config"

func main() {
	app := cli.NewApp()
	app.Name = "moviecatalog"
	app.Usage = "Browse popular movies alongside your own catalog"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   configFlag,
			Usage:  "path to a YAML config file",
			EnvVar: "CONFIG_FILE",
		},
	}
	app.Commands = []cli.Command{
		makeServeCMD(),
		makeInspectCMD(),
		makePopularCMD(),
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		slog.Error("Failed to run", slog.Any("error", err))
		os.Exit(1)
	}
}

// setup loads the configuration and installs the JSON logger.
func setup(c *cli.Context) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.GlobalString(configFlag))
	if err != nil {
		return cfg, nil, err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	return cfg, slog.Default(), nil
}
