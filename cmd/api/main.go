package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leaveflow.org/internal/httpapi"
	"leaveflow.org/internal/leave"
	"leaveflow.org/internal/notify"
	"leaveflow.org/internal/obs"
	"leaveflow.org/internal/store/memory"
	"leaveflow.org/internal/store/pg"
	"leaveflow.org/internal/stream"
	"leaveflow.org/internal/workflow"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store leave.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("LEAVEFLOW_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		// In-memory mode for local runs; provision a demo pair so the flow
		// works end to end.
		mem := memory.New()
		mem.PutUser(leave.User{
			UserID: "m-1",
			Role:   "manager",
			Email:  envOr("LEAVEFLOW_DEMO_MANAGER_EMAIL", "manager@leaveflow.example"),
			Name:   "Morgan Lee",
		})
		mem.PutUser(leave.User{
			UserID:    "u-1",
			Role:      "employee",
			ManagerID: "m-1",
			Email:     envOr("LEAVEFLOW_DEMO_EMPLOYEE_EMAIL", "employee@leaveflow.example"),
			Name:      "Edel Kim",
		})
		store = mem
	}

	var mailer notify.Mailer = notify.LogMailer{}
	if smtpAddr := os.Getenv("LEAVEFLOW_SMTP_ADDR"); smtpAddr != "" {
		mailer = &notify.SMTPMailer{
			Addr:     smtpAddr,
			Username: os.Getenv("LEAVEFLOW_SMTP_USER"),
			Password: os.Getenv("LEAVEFLOW_SMTP_PASSWORD"),
		}
	}

	httpAddr := envOr("LEAVEFLOW_HTTP_ADDR", ":8080")
	resolveURL := envOr("LEAVEFLOW_RESOLVE_URL",
		"http://localhost:8080/v1/leave-requests/resolve")
	mailFrom := envOr("LEAVEFLOW_MAIL_FROM", "noreply@leaveflow.example")

	events := stream.New()
	dispatcher := notify.NewDispatcher(store, mailer, mailFrom, resolveURL)
	engine := workflow.NewInProcess(workflow.NewStepSet(store, dispatcher, events))
	svc := leave.NewService(store, engine)

	probe := httpapi.ReadyProbe{DB: db}
	api := httpapi.New(probe, version, svc, events)

	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting leaveflow-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	grpcCtx, grpcCancel := context.WithCancel(context.Background())
	var grpcSrv *httpapi.GRPCServer
	if grpcAddr := os.Getenv("LEAVEFLOW_GRPC_ADDR"); grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = httpapi.NewGRPCServer(probe)
		go grpcSrv.WatchReadiness(grpcCtx, 5*time.Second)
		go func() {
			log.Printf("gRPC health on %s", grpcAddr)
			if err := grpcSrv.Server().Serve(lis); err != nil {
				log.Printf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcCancel()
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	// Let suspended executions that already resumed finish their status
	// writes and outcome emails.
	engine.Wait()

	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
