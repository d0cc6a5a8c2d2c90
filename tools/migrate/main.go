package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/md-rashed-zaman/clinicnear/libs/config"
	"github.com/md-rashed-zaman/clinicnear/libs/db"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/migrations"
)

const usage = `usage: migrate [-database-url URL] <up|down|version|force N>`

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fatal(err.Error())
	}
	dbURL := flag.String("database-url", config.String("DATABASE_URL", ""), "postgres connection url")
	flag.Parse()
	if *dbURL == "" {
		fatal("DATABASE_URL is required")
	}
	if flag.NArg() == 0 {
		fatal(usage)
	}

	m, err := db.NewMigrator(*dbURL, migrations.FS)
	if err != nil {
		fatal(err.Error())
	}
	defer m.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		if flag.NArg() != 2 {
			fatal(usage)
		}
		v, convErr := strconv.Atoi(flag.Arg(1))
		if convErr != nil {
			fatal("force: version must be an integer")
		}
		err = m.Force(v)
	case "version":
	default:
		fatal(usage)
	}
	if err != nil {
		fatal(err.Error())
	}

	v, dirty, err := m.Version()
	if err != nil {
		fatal(err.Error())
	}
	fmt.Printf("version=%d dirty=%t\n", v, dirty)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
