package main

import (
	"fmt"

	"github.com/tinyfed/tinyfed/models"
	"gorm.io/gorm"
)

type CreateActorCmd struct {
	Username string `required:"" help:"username of the actor to create"`
	Domain   string `required:"" help:"domain name this instance serves actors for"`
	Name     string `help:"display name of the actor"`
	Email    string `required:"" help:"email address for the actor's login account"`
	Password string `required:"" help:"password for the actor's login account"`
}

func (c *CreateActorCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}

	id := fmt.Sprintf("https://%s/users/%s", c.Domain, c.Username)
	name := c.Name
	if name == "" {
		name = c.Username
	}
	account, err := models.NewAccounts(db).Create(id, c.Username, name, c.Email, c.Password)
	if err != nil {
		return err
	}
	fmt.Println("created", account.Actor.ID)
	return nil
}
