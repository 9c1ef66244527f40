// Command restsqld runs the REST-to-SQL translation server: it opens a
// connection to the configured backend, loads (or introspects) its schema
// catalog, and serves the translated REST API over HTTP. Grounded on the
// root-level main.go's graceful-shutdown pattern, generalized from one
// hardcoded SQLite connection to any of the four supported dialects.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/atomicbase/restsql/catalog"
	"github.com/atomicbase/restsql/config"
	"github.com/atomicbase/restsql/dialect"
	"github.com/atomicbase/restsql/httpapi"
	"github.com/atomicbase/restsql/introspection"
)

// driverFor maps a configured dialect name onto the database/sql driver
// name that opens it and the dialect.Dialect that formats SQL for it.
func driverFor(name string) (driverName string, d dialect.Dialect, err error) {
	switch name {
	case "postgresql", "postgres":
		return "pgx", dialect.Postgres{}, nil
	case "sqlite":
		return "sqlite3", dialect.SQLite{}, nil
	case "libsql":
		return "libsql", dialect.SQLite{}, nil
	case "mysql":
		return "mysql", dialect.MySQL{}, nil
	case "clickhouse":
		return "clickhouse", dialect.ClickHouse{}, nil
	default:
		return "", nil, fmt.Errorf("unknown dialect %q", name)
	}
}

// loadSchema builds the initial catalog.DbSchema: from a JSON document at
// RESTSQL_SCHEMA_PATH if one is configured, otherwise by introspecting the
// live connection directly (sqlite/libsql only).
func loadSchema(ctx context.Context, db *sql.DB, dialectName string) (*catalog.DbSchema, error) {
	if config.Cfg.SchemaPath != "" {
		data, err := os.ReadFile(config.Cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("reading schema document: %w", err)
		}
		return introspection.Load(data)
	}

	switch dialectName {
	case "sqlite", "libsql":
		return introspection.LoadSQLite(ctx, db, config.Cfg.SchemaName)
	default:
		return nil, fmt.Errorf("dialect %q requires RESTSQL_SCHEMA_PATH: live introspection is only implemented for sqlite", dialectName)
	}
}

func main() {
	driverName, d, err := driverFor(config.Cfg.Dialect)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	db, err := sql.Open(driverName, config.Cfg.DSN)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	schema, err := loadSchema(ctx, db, config.Cfg.Dialect)
	cancel()
	if err != nil {
		log.Fatalf("loading schema: %v", err)
	}

	var hook *dialect.PreRequestHook
	if config.Cfg.PreRequestFunction != "" {
		hook = &dialect.PreRequestHook{
			Schema:   config.Cfg.PreRequestSchema,
			Function: config.Cfg.PreRequestFunction,
		}
	}

	executor := httpapi.NewExecutor(db, d, hook, func() *catalog.DbSchema { return schema })

	mux := http.NewServeMux()
	httpapi.RegisterRoutes(mux, &httpapi.Dependencies{
		Executor:   executor,
		SchemaName: config.Cfg.SchemaName,
		Role:       config.Cfg.DefaultRole,
		MaxRows:    config.Cfg.MaxQueryLimit,
	})

	handler := httpapi.LoggingMiddleware(
		httpapi.TimeoutMiddleware(
			httpapi.CORSMiddleware(
				httpapi.RateLimitMiddleware(
					httpapi.AuthMiddleware(mux)))))

	server := &http.Server{
		Addr:    config.Cfg.Port,
		Handler: handler,
	}

	go func() {
		fmt.Printf("Listening on %s (dialect=%s)\n", config.Cfg.Port, config.Cfg.Dialect)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nshutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	fmt.Println("server stopped")
}
