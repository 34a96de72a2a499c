package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/icco/moviecatalog/lib/tmdb"
	"github.com/icco/moviecatalog/models"
	"github.com/urfave/cli"
)

func makePopularCMD() cli.Command {
	return cli.Command{
		Name:  "popular",
		Usage: "Fetches a page of popular movies from TMDB",
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "page",
				Value: 1,
				Usage: "page of the popular feed to fetch",
			},
		},
		Action: popular,
	}
}

func popular(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.TMDBAPIKey == "" {
		return errors.New("TMDB_API_KEY is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := tmdb.NewClient(cfg.TMDBAPIKey, logger, tmdb.WithBaseURL(cfg.TMDBBaseURL))
	movies, err := client.FetchPopular(ctx, c.Int("page"))
	if err != nil {
		return err
	}

	return writePopular(c.App.Writer, movies)
}

func writePopular(out io.Writer, movies []models.Movie) error {
	for _, m := range movies {
		if _, err := fmt.Fprintf(out, "%s (%d)\t%s\n", m.Title, m.ReleaseYear, m.ImageURL()); err != nil {
			return err
		}
	}
	return nil
}
