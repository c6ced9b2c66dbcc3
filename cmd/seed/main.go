// Seed program: creates table t(id, name) with a hash index on name, plus a courses table, and
// a few rows, through the HTTP front of a running node. It ends with the scan of t by name.
// Run: go run . --base-dir data & go run ./cmd/seed --server http://localhost:7000
// Running it twice is harmless, rows already present are skipped.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"PastureDB/client"
	"PastureDB/dberror"
	"PastureDB/server"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type seedTable struct {
	create *server.StatementDTO
	index  string
	rows   [][]any
}

var tables = []seedTable{
	{
		create: &server.StatementDTO{
			Kind:  server.KindCreateTable,
			Table: "t",
			Columns: []server.ColumnDTO{
				{Name: "id", Type: "int"},
				{Name: "name", Type: "string"},
			},
			PrimaryKey: []string{"id"},
		},
		index: "name",
		rows: [][]any{
			{1, "a"},
			{2, "b"},
			{3, "a"},
		},
	},
	{
		create: &server.StatementDTO{
			Kind:  server.KindCreateTable,
			Table: "courses",
			Columns: []server.ColumnDTO{
				{Name: "code", Type: "string"},
				{Name: "title", Type: "string"},
			},
			PrimaryKey: []string{"code"},
		},
		rows: [][]any{
			{"CS101", "Intro to CS"},
			{"CS201", "Data Structures"},
		},
	},
}

func main() {
	var (
		serverURL  string
		tableSpace string
		insecure   bool
		checkpoint bool
	)
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Load sample tables into a running PastureDB node",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			c := client.New(serverURL, client.Options{InsecureSkipVerify: insecure})
			return seed(ctx, c, tableSpace, checkpoint)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:7000", "node base URL")
	cmd.Flags().StringVar(&tableSpace, "tablespace", "default", "target table space, created if missing")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	cmd.Flags().BoolVar(&checkpoint, "checkpoint", false, "checkpoint the table space when done")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func seed(ctx context.Context, c *client.Client, tableSpace string, checkpoint bool) error {
	_, err := seedTables(ctx, c, tableSpace, checkpoint)
	return err
}

// seedTables returns the final scan of t by name
func seedTables(ctx context.Context, c *client.Client, tableSpace string, checkpoint bool) (*server.ResultDTO, error) {
	if err := c.CreateTableSpace(ctx, tableSpace); err != nil && !errors.Is(err, dberror.ErrTableSpaceExists) {
		return nil, fmt.Errorf("create table space: %w", err)
	}
	conn, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close(context.Background())

	for _, st := range tables {
		create := *st.create
		create.IfNotExists = true
		if _, err := conn.Execute(ctx, tableSpace, &create); err != nil {
			return nil, fmt.Errorf("create table %s: %w", create.Table, err)
		}
		if st.index != "" {
			_, err := conn.Execute(ctx, tableSpace, &server.StatementDTO{
				Kind:    server.KindCreateIndex,
				Table:   create.Table,
				Columns: []server.ColumnDTO{{Name: st.index}},
			})
			if err != nil && !errors.Is(err, dberror.ErrIndexDefinition) {
				return nil, fmt.Errorf("create index on %s.%s: %w", create.Table, st.index, err)
			}
		}

		insert := &server.StatementDTO{Kind: server.KindInsert, Table: create.Table}
		for i, col := range create.Columns {
			insert.Values = append(insert.Values, server.AssignmentDTO{Column: col.Name, Param: &i})
		}
		planID, err := conn.Prepare(ctx, tableSpace, insert)
		if err != nil {
			return nil, fmt.Errorf("prepare insert into %s: %w", create.Table, err)
		}
		inserted := 0
		for _, row := range st.rows {
			_, err := conn.ExecutePrepared(ctx, tableSpace, planID, row...)
			if errors.Is(err, dberror.ErrDuplicatePrimaryKey) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("insert into %s: %w", create.Table, err)
			}
			inserted++
		}
		fmt.Printf("%s: %d new rows\n", create.Table, inserted)

		res, err := conn.Execute(ctx, tableSpace, &server.StatementDTO{Kind: server.KindScan, Table: create.Table})
		if err != nil {
			return nil, err
		}
		render(create.Table, res)
	}

	res, err := conn.Execute(ctx, tableSpace, &server.StatementDTO{
		Kind:  server.KindScan,
		Table: "t",
		Where: []server.AssignmentDTO{{Column: "name", Value: "a"}},
	})
	if err != nil {
		return nil, err
	}
	render("t where name = a", res)
	fmt.Printf("plan: %s\n", res.Plan)

	if checkpoint {
		lsn, err := c.Checkpoint(ctx, tableSpace)
		if err != nil {
			return nil, err
		}
		fmt.Printf("checkpoint of %s at lsn %d\n", tableSpace, lsn)
	}
	return res, nil
}

func render(title string, res *server.ResultDTO) {
	columns := res.Columns
	if len(columns) == 0 && len(res.Rows) > 0 {
		for name := range res.Rows[0] {
			columns = append(columns, name)
		}
		sort.Strings(columns)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s", title)
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range res.Rows {
		r := make(table.Row, len(columns))
		for i, c := range columns {
			r[i] = row[c]
		}
		t.AppendRow(r)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", len(res.Rows))})
	t.Render()
}
