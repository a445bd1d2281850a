// Command bookingctl is the operator tool for the booking core.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/cinema-booking-core/internal/app"
	"github.com/iliyamo/cinema-booking-core/internal/catalog"
	"github.com/iliyamo/cinema-booking-core/internal/config"
	"github.com/iliyamo/cinema-booking-core/internal/database"
	"github.com/iliyamo/cinema-booking-core/internal/logging"
	"github.com/iliyamo/cinema-booking-core/internal/repository"
	"github.com/iliyamo/cinema-booking-core/internal/utils"
)

var dbFlags = []cli.Flag{
	&cli.StringFlag{Name: "db-user", EnvVars: []string{"DB_USER"}},
	&cli.StringFlag{Name: "db-pass", EnvVars: []string{"DB_PASS"}},
	&cli.StringFlag{Name: "db-host", EnvVars: []string{"DB_HOST"}, Value: "localhost"},
	&cli.StringFlag{Name: "db-port", EnvVars: []string{"DB_PORT"}, Value: "3306"},
	&cli.StringFlag{Name: "db-name", EnvVars: []string{"DB_NAME"}},
}

func openDB(c *cli.Context) (*sqlx.DB, error) {
	if c.String("db-user") == "" || c.String("db-name") == "" {
		return nil, cli.Exit("db-user and db-name are required", 2)
	}
	return database.Open(c.String("db-user"), c.String("db-pass"), c.String("db-host"), c.String("db-port"), c.String("db-name"))
}

func main() {
	_ = godotenv.Load()
	logging.Init(os.Getenv("LOG_LEVEL"), "text")

	ctl := &cli.App{
		Name:  "bookingctl",
		Usage: "Operate the cinema booking core",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply the database schema",
				Flags: dbFlags,
				Action: func(c *cli.Context) error {
					db, err := openDB(c)
					if err != nil {
						return err
					}
					defer db.Close()

					if err := database.Migrate(c.Context, db); err != nil {
						return err
					}
					fmt.Println("schema up to date")
					return nil
				},
			},
			{
				Name:      "seed",
				Usage:     "load a catalog file into the database",
				ArgsUsage: "<catalog.json>",
				Flags:     dbFlags,
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return cli.Exit("catalog file is required", 2)
					}
					defs, err := catalog.ReadFile(path)
					if err != nil {
						return err
					}
					db, err := openDB(c)
					if err != nil {
						return err
					}
					defer db.Close()

					repo := repository.NewCatalogRepo(db)
					for _, d := range defs {
						if err := repo.Save(c.Context, d); err != nil {
							return fmt.Errorf("save show %s: %w", d.Show.ID, err)
						}
						fmt.Printf("%v\t%v\n", d.Show.ID, d.Show.Title)
					}
					return nil
				},
			},
			{
				Name:  "sweep",
				Usage: "expire due holds and stale bookings once",
				Action: func(c *cli.Context) error {
					cfg, err := config.Load()
					if err != nil {
						return err
					}
					a, err := app.New(c.Context, cfg)
					if err != nil {
						return err
					}
					defer a.Close()

					expired := a.Sweeper.RunOnce(c.Context)
					fmt.Printf("expired %d holds\n", len(expired))
					return nil
				},
			},
			{
				Name:  "conflicts",
				Usage: "list payment reconciliation conflicts",
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100},
				}, dbFlags...),
				Action: func(c *cli.Context) error {
					db, err := openDB(c)
					if err != nil {
						return err
					}
					defer db.Close()

					conflicts, err := repository.NewConflictRepo(db).List(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}
					for _, cf := range conflicts {
						fmt.Printf("%v\t%v\t%v\t%v\t%v\t%v\n",
							cf.DetectedAt.Format(time.RFC3339), cf.BookingID, cf.PaymentRef,
							cf.Reason, cf.AmountCents, strings.Join(cf.SeatIDs, ","))
					}
					return nil
				},
			},
			{
				Name:  "token",
				Usage: "mint an access token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret", EnvVars: []string{"JWT_SECRET"}, Required: true},
					&cli.StringFlag{Name: "user", Required: true},
					&cli.StringFlag{Name: "role", Value: "CUSTOMER"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: func(c *cli.Context) error {
					tok, err := utils.NewAccessToken(c.String("secret"), c.String("user"), c.String("role"), c.Duration("ttl"))
					if err != nil {
						return err
					}
					fmt.Println(tok.Token)
					return nil
				},
			},
		},
	}

	if err := ctl.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
