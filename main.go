package main

import (
	"github.com/alecthomas/kong"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Context struct {
	Debug bool

	gorm.Config
	Dialector gorm.Dialector
}

var cli struct {
	Debug bool   `help:"Enable debug mode."`
	DSN   string `required:"" help:"data source name"`

	Serve       ServeCmd       `cmd:"" help:"Serve the federation endpoints."`
	AutoMigrate AutoMigrateCmd `cmd:"" help:"Create or update the database schema."`
	CreateActor CreateActorCmd `cmd:"" help:"Create a local actor and its login account."`
	Follow      FollowCmd      `cmd:"" help:"Follow a remote actor as a local actor."`
}

func main() {
	ctx := kong.Parse(&cli)
	err := ctx.Run(&Context{
		Debug: cli.Debug,
		Config: gorm.Config{
			Logger: logger.Default.LogMode(func() logger.LogLevel {
				if cli.Debug {
					return logger.Info
				}
				return logger.Warn
			}()),
		},
		Dialector: newDialector(cli.DSN),
	})
	ctx.FatalIfErrorf(err)
}
