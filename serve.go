package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tinyfed/tinyfed/activitypub"
	"github.com/tinyfed/tinyfed/internal/group"
	"github.com/tinyfed/tinyfed/internal/httpx"
	"github.com/tinyfed/tinyfed/models"
	"github.com/tinyfed/tinyfed/wellknown"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
)

type ServeCmd struct {
	Addr   string `help:"address to listen" default:"localhost:9999"`
	Domain string `required:"" help:"domain name this instance serves actors for"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}

	env := &models.Env{
		DB:     db,
		Domain: s.Domain,
		Logger: slog.New(slog.NewJSONHandler(os.Stderr)),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	apEnv := func(r *http.Request) *activitypub.Env {
		return &activitypub.Env{Env: env}
	}
	wkEnv := func(r *http.Request) *wellknown.Env {
		return &wellknown.Env{Env: env}
	}

	r.Route("/users/{username}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(apEnv, activitypub.UsersShow))
		r.Post("/inbox", httpx.HandlerFunc(apEnv, activitypub.InboxCreate))
		r.Get("/outbox", httpx.HandlerFunc(apEnv, activitypub.OutboxIndex))
		r.Post("/outbox", httpx.HandlerFunc(apEnv, activitypub.OutboxCreate))
		r.Get("/followers", httpx.HandlerFunc(apEnv, activitypub.FollowersIndex))
		r.Get("/following", httpx.HandlerFunc(apEnv, activitypub.FollowingIndex))
	})

	// shared inbox; peers that batch deliveries post here
	r.Post("/inbox", httpx.HandlerFunc(apEnv, activitypub.InboxCreate))

	r.Get("/.well-known/webfinger", httpx.HandlerFunc(wkEnv, wellknown.WebfingerShow))

	svr := &http.Server{
		Addr:         s.Addr,
		Handler:      r,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := group.New(sigCtx)
	g.AddContext(func(ctx context.Context) error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return svr.Shutdown(shutdownCtx)
	})
	g.AddContext(func(context.Context) error {
		env.Log().Info("listening", "addr", s.Addr, "domain", s.Domain)
		if err := svr.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	return g.Wait()
}
