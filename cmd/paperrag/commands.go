package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/flarexio/paperrag"
	"github.com/flarexio/paperrag/watcher"
)

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
)

func indexFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "index",
		Usage: "Index to search, defaults to the active one or indexer.name",
	}
}

func kFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "k",
		Usage: "Number of pages to retrieve, defaults to search.k",
	}
}

func queryArg(cmd *cli.Command) (string, error) {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return "", paperrag.ErrInvalidQuery
	}

	return query, nil
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download the best-ranked arXiv paper for a query",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of search results to consider",
				Value: 1,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := queryArg(cmd)
			if err != nil {
				return err
			}

			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.svc.Fetch(ctx, query, int(cmd.Int("limit")), "")
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", boldGreen(doc.ID), doc.Title)
			fmt.Println(faint(doc.Path))
			return nil
		},
	}
}

func documentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "documents",
		Usage: "List fetched papers",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.svc.Documents(ctx)
			if err != nil {
				return err
			}

			for _, doc := range docs {
				fmt.Printf("%s %s\n", boldGreen(doc.ID), doc.Title)
			}

			return nil
		},
	}
}

func documentCommand() *cli.Command {
	return &cli.Command{
		Name:      "document",
		Usage:     "Show a fetched paper",
		ArgsUsage: "<id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := strings.TrimSpace(cmd.Args().First())
			if id == "" {
				return errors.New("document id is required")
			}

			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.svc.Document(ctx, id)
			if err != nil {
				return err
			}

			fmt.Printf("%s %s\n", boldGreen(doc.ID), doc.Title)
			if len(doc.Authors) > 0 {
				fmt.Println(strings.Join(doc.Authors, ", "))
			}

			fmt.Println(faint(doc.Path))
			return nil
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Build an index over the stored papers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Index name, defaults to indexer.name",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Replace an existing index of the same name",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			index, err := a.svc.Index(ctx, "", cmd.String("name"), cmd.Bool("overwrite"))
			if err != nil {
				return err
			}

			fmt.Printf("%s %d documents, %d pages in %s\n",
				boldGreen(index.Name), index.Documents, index.Pages, time.Duration(index.Elapsed))

			return nil
		},
	}
}

func indexesCommand() *cli.Command {
	return &cli.Command{
		Name:  "indexes",
		Usage: "List known indexes",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			indexes, err := a.svc.Indexes(ctx)
			if err != nil {
				return err
			}

			for _, index := range indexes {
				marker := " "
				if index.Active {
					marker = "*"
				}

				fmt.Printf("%s %s %d pages\n", marker, boldGreen(index.Name), index.Pages)
			}

			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Find the pages most similar to a query",
		ArgsUsage: "<query>",
		Flags:     []cli.Flag{indexFlag(), kFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := queryArg(cmd)
			if err != nil {
				return err
			}

			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			k := int(cmd.Int("k"))
			if k == 0 {
				k = a.cfg.Search.K
			}

			ctx, err = indexContext(ctx, cmd, a)
			if err != nil {
				return err
			}

			pages, err := a.svc.Search(ctx, query, k)
			if err != nil {
				return err
			}

			for _, page := range pages {
				fmt.Printf("%s page %d %s\n",
					boldGreen(page.DocumentID), page.PageNumber, faint(fmt.Sprintf("%.4f", page.Score)))
			}

			return nil
		},
	}
}

func askCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a question from the best matching pages",
		ArgsUsage: "<question>",
		Flags:     []cli.Flag{indexFlag(), kFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := queryArg(cmd)
			if err != nil {
				return err
			}

			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			k := int(cmd.Int("k"))
			if k == 0 {
				k = a.cfg.Search.K
			}

			ctx, err = indexContext(ctx, cmd, a)
			if err != nil {
				return err
			}

			answer, err := a.svc.Ask(ctx, query, k)
			if err != nil {
				return err
			}

			printAnswer(answer.Text, answer.Pages)
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Fetch, index, search and answer in one pass",
		ArgsUsage: "<question>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "topic",
				Usage:    "arXiv query of the paper to fetch",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Index name, defaults to indexer.name",
			},
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "Replace an existing index of the same name",
				Value: true,
			},
			kFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query, err := queryArg(cmd)
			if err != nil {
				return err
			}

			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			k := int(cmd.Int("k"))
			if k == 0 {
				k = a.cfg.Search.K
			}

			name := cmd.String("name")
			if name == "" {
				name = a.cfg.Indexer.Name
			}

			p := paperrag.NewPipeline(a.svc)
			result, err := p.Run(ctx, paperrag.RunRequest{
				Topic:     cmd.String("topic"),
				IndexName: name,
				Overwrite: cmd.Bool("overwrite"),
				Query:     query,
				K:         k,
			})

			if err != nil {
				return fmt.Errorf("%w (stage %s)", err, p.Stage())
			}

			fmt.Printf("%s %s\n", boldGreen(result.Document.ID), result.Document.Title)
			printAnswer(result.Response.Text, result.Pages[:1])
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Rebuild an index whenever the stored papers change",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "name",
				Usage: "Index name, defaults to indexer.name",
			},
			&cli.DurationFlag{
				Name:  "debounce",
				Usage: "Quiet period before a rebuild",
				Value: watcher.DefaultConfig().Debounce,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := watcher.NewWatcher(watcher.Config{
				Debounce: cmd.Duration("debounce"),
			})
			if err != nil {
				return err
			}
			defer w.Close()

			if err := w.Add(a.cfg.Path); err != nil {
				return err
			}

			name := cmd.String("name")

			rebuild := func(ctx context.Context) error {
				_, err := a.svc.Index(ctx, "", name, true)
				if errors.Is(err, paperrag.ErrNoDocuments) {
					a.log.Info("nothing to index", zap.String("path", a.cfg.Path))
					return nil
				}

				return err
			}

			// The first build picks up papers fetched while not watching.
			if err := rebuild(ctx); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			go w.Run(ctx, rebuild)

			waitSignal(a.log)
			return nil
		},
	}
}

func printAnswer(text string, pages []paperrag.Page) {
	fmt.Println(boldCyan("Answer:"))
	fmt.Println(text)

	if len(pages) == 0 {
		return
	}

	sources := make([]string, len(pages))
	for i, page := range pages {
		sources[i] = fmt.Sprintf("%s p.%d", page.DocumentID, page.PageNumber)
	}

	fmt.Println(faint("Sources: " + strings.Join(sources, ", ")))
}
