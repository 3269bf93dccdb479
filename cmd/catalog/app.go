package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
	"github.com/forgo/catalog/internal/repository"
)

var errUsage = errors.New("usage")

// app runs one command inside one database scope.
type app struct {
	db  *database.Manager
	in  io.Reader
	out io.Writer
	log *slog.Logger
}

func (a *app) run(ctx context.Context, args []string) (err error) {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, args := args[0], args[1:]
	if cmd == "kinds" {
		for _, k := range entity.Kinds() {
			fmt.Fprintln(a.out, k)
		}
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("%w: %s needs a kind", errUsage, cmd)
	}
	repo, err := repository.ForKind(a.db, args[0])
	if err != nil {
		return err
	}
	args = args[1:]

	ctx, scope := a.db.Scope(ctx)
	defer func() {
		if cerr := scope.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	switch cmd {
	case "count":
		return a.count(ctx, repo, args)
	case "export":
		return a.export(ctx, repo, args)
	case "import":
		return a.importFile(ctx, scope, repo, args)
	case "get":
		return a.get(ctx, repo, args)
	case "remove":
		return a.remove(ctx, repo, args)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// parseFilter reads an optional Extended JSON filter argument.
func parseFilter(args []string) (bson.D, error) {
	if len(args) == 0 || strings.TrimSpace(args[0]) == "" {
		return bson.D{}, nil
	}
	var f bson.D
	if err := bson.UnmarshalExtJSON([]byte(args[0]), false, &f); err != nil {
		return nil, fmt.Errorf("%w: filter: %v", database.ErrSerialization, err)
	}
	return f, nil
}

func (a *app) count(ctx context.Context, repo *repository.Repository[entity.Model], args []string) error {
	f, err := parseFilter(args)
	if err != nil {
		return err
	}
	n, err := repo.CountWhere(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, n)
	return nil
}

func (a *app) export(ctx context.Context, repo *repository.Repository[entity.Model], args []string) error {
	f, err := parseFilter(args)
	if err != nil {
		return err
	}
	cur := repo.FindWhere(ctx, f)
	text, err := repo.ToJSONArray(cur.All(ctx))
	if err != nil {
		return err
	}
	if err := cur.Err(); err != nil {
		return err
	}
	if n := cur.Skipped(); n > 0 {
		a.log.Warn("export skipped undecodable documents",
			slog.String("kind", repo.Kind()),
			slog.Int("skipped", n))
	}
	_, err = fmt.Fprintln(a.out, text)
	return err
}

func (a *app) importFile(ctx context.Context, scope *database.Scope, repo *repository.Repository[entity.Model], args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: import needs a file or -", errUsage)
	}
	data, err := a.readInput(args[0])
	if err != nil {
		return err
	}
	items, err := repo.FromJSONArray(data)
	if err != nil {
		return err
	}

	var saved, failed int
	err = scope.Default().Batch(ctx, func(ctx context.Context) error {
		for _, m := range items {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := repo.Save(ctx, m); err != nil {
				failed++
				a.log.Warn("failed to import entity",
					slog.String("kind", repo.Kind()),
					slog.String("id", m.Base().ID()),
					slog.Any("error", err))
				continue
			}
			saved++
		}
		return nil
	})
	a.log.Info("import finished",
		slog.String("kind", repo.Kind()),
		slog.Int("saved", saved),
		slog.Int("failed", failed))
	fmt.Fprintf(a.out, "saved %d, failed %d\n", saved, failed)
	return err
}

func (a *app) readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(a.in)
	}
	return os.ReadFile(name)
}

func (a *app) get(ctx context.Context, repo *repository.Repository[entity.Model], args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: get needs an id", errUsage)
	}
	m, err := repo.Get(ctx, args[0])
	if err != nil {
		return err
	}
	text, err := repo.ToJSON(m)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, text)
	return err
}

func (a *app) remove(ctx context.Context, repo *repository.Repository[entity.Model], args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: remove needs an id", errUsage)
	}
	m, err := repo.Get(ctx, args[0])
	if err != nil {
		return err
	}
	n, err := repo.Remove(ctx, m)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %d\n", n)
	return nil
}
