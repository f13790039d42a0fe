package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/bdougie/handcam/internal/config"
	"github.com/bdougie/handcam/internal/models"
	"github.com/bdougie/handcam/internal/storage"
)

func initDBAction(c *cli.Context, logger *slog.Logger) error {
	pg := config.DefaultPostgres()
	if err := storage.InitSchema(c.Context, pg); err != nil {
		return err
	}
	logger.Info("schema ready", "host", pg.Host, "db", pg.DBName)
	return nil
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "find detections of a recorded session whose box is closest to a given one",
		ArgsUsage: " ",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: flagSession, Required: true, Usage: "recorded session to search"},
			&cli.StringFlag{Name: flagBox, Required: true, Usage: "query box as `LEFT,TOP,RIGHT,BOTTOM`"},
			&cli.IntFlag{Name: flagWidth, Value: 840, Usage: "width of the frame the box belongs to"},
			&cli.IntFlag{Name: flagHeight, Value: 480, Usage: "height of the frame the box belongs to"},
			&cli.IntFlag{Name: flagLimit, Value: 5, Usage: "number of matches"},
		},
		Action: withLogger(searchAction),
	}
}

func searchAction(c *cli.Context, logger *slog.Logger) error {
	box, err := parseBox(c.String(flagBox))
	if err != nil {
		return err
	}

	pg, err := storage.OpenPostgresSession(c.Context, config.DefaultPostgres(), c.String(flagSession), logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	results, err := pg.SearchSimilarBoxes(c.Context, box, c.Int(flagWidth), c.Int(flagHeight), c.Int(flagLimit))
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(c.App.Writer, "no detections recorded for", c.String(flagSession))
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(c.App.Writer, "%.4f  session=%s frame=%d box=%d,%d,%d,%d\n",
			r.Similarity, r.SessionID, r.Seq, r.Box.Left, r.Box.Top, r.Box.Right, r.Box.Bottom)
	}
	return nil
}

// parseBox reads "left,top,right,bottom"
func parseBox(s string) (models.DetectionBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return models.DetectionBox{}, fmt.Errorf("box %q needs four comma separated values", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return models.DetectionBox{}, fmt.Errorf("box %q: %w", s, err)
		}
		v[i] = n
	}
	return models.DetectionBox{Left: v[0], Top: v[1], Right: v[2], Bottom: v[3]}, nil
}
