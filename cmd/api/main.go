package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"communityshare.org/internal/analytics"
	"communityshare.org/internal/auth"
	"communityshare.org/internal/httpapi"
	"communityshare.org/internal/mail"
	"communityshare.org/internal/obs"
	"communityshare.org/internal/resource"
	"communityshare.org/internal/secret"
	"communityshare.org/internal/user"
)

var (
	version = "0.1.0"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("COMMUNITYSHARE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing DSN: set COMMUNITYSHARE_PG_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	addr := os.Getenv("COMMUNITYSHARE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	users := user.NewStore(db)
	reviews := user.NewReviewStore(db)
	secrets := secret.NewStore(db)
	views := analytics.NewStore(db)
	sender := mail.LogSender{}

	userDef, err := user.NewDefinition(user.Deps{
		Users:          users,
		Mail:           sender,
		UploadLocation: os.Getenv("COMMUNITYSHARE_UPLOAD_LOCATION"),
	})
	if err != nil {
		log.Fatalf("user definition: %v", err)
	}
	reviewDef, err := user.NewReviewDefinition(user.ReviewDeps{
		Reviews: reviews,
		Users:   users,
	})
	if err != nil {
		log.Fatalf("review definition: %v", err)
	}

	resolver := auth.NewResolver(secrets, users)
	accounts := user.NewService(users, secrets, sender, userDef)

	api := httpapi.New(
		httpapi.ReadyProbe{DB: db},
		version,
		resolver,
		accounts,
		userDef,
		resource.NewHandler(userDef, users),
		resource.NewHandler(reviewDef, reviews),
		views,
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting communityshare-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
