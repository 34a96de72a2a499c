package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/icco/moviecatalog/lib/db"
	"github.com/icco/moviecatalog/lib/store"
	"github.com/icco/moviecatalog/lib/types"
	"github.com/icco/moviecatalog/models"
	"github.com/urfave/cli"
)

func makeInspectCMD() cli.Command {
	return cli.Command{
		Name:   "inspect",
		Usage:  "Prints the stored movies and database stats",
		Action: inspect,
	}
}

func inspect(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}

	gormDB, err := db.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(gormDB); err != nil {
			logger.Error("Failed to close database", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s := store.New(gormDB, logger)
	movies, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list movies: %w", err)
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	return writeInventory(c.App.Writer, movies, stats)
}

func writeInventory(out io.Writer, movies []models.Movie, stats types.StatsData) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tYEAR\tRATING\tFAVORITE\tIMAGE")
	for _, m := range movies {
		img := "-"
		if m.HasImage() {
			img = humanize.Bytes(uint64(len(m.ImageData)))
		}
		fav := ""
		if m.IsFavorite {
			fav = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", m.ID, m.Title, m.ReleaseYear, m.Rating, fav, img)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "\n%s movies, %s favorites, %s with images (%s)\n",
		humanize.Comma(stats.TotalMovies),
		humanize.Comma(stats.Favorites),
		humanize.Comma(stats.WithImages),
		humanize.Bytes(uint64(stats.ImageBytesTotal)))
	return err
}
