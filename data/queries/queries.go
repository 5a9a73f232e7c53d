package queries

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql insert/*.sql select/*.sql update/*.sql
var Files embed.FS

// the sql is compiled into the binary, paths below are relative to this package

type SchemaQueries struct {
	Postgres string
	SQLite   string
}

type InsertQueries struct {
	Metadata     string
	Price        string
	Run          string
	MedianReturn string
}

type SelectQueries struct {
	MetadataBySymbol   string
	PricesBySymbol     string
	RunById            string
	MedianReturnsByRun string
}

type UpdateQueries struct {
	RunSuccess string
	RunFailure string
}

type QueryHelperStruct struct {
	Schema SchemaQueries
	Insert InsertQueries
	Select SelectQueries
	Update UpdateQueries
}

var QueryHelper = QueryHelperStruct{
	Schema: SchemaQueries{
		Postgres: "schema/postgres.sql",
		SQLite:   "schema/sqlite.sql",
	},
	Insert: InsertQueries{
		Metadata:     "insert/metadata.sql",
		Price:        "insert/price.sql",
		Run:          "insert/run.sql",
		MedianReturn: "insert/median_return.sql",
	},
	Select: SelectQueries{
		MetadataBySymbol:   "select/metadata_by_symbol.sql",
		PricesBySymbol:     "select/prices_by_symbol.sql",
		RunById:            "select/run_by_id.sql",
		MedianReturnsByRun: "select/median_returns_by_run.sql",
	},
	Update: UpdateQueries{
		RunSuccess: "update/run_success.sql",
		RunFailure: "update/run_failure.sql",
	},
}

func Get(path string) string {
	content, err := Files.ReadFile(path)
	if err != nil {
		panic(fmt.Errorf("error reading query file: %w", err))
	}

	return string(content)
}

// Statements splits a multi statement file (schema files) on ';', empty statements are skipped
func Statements(path string) []string {
	var res []string
	for _, s := range strings.Split(Get(path), ";") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}
