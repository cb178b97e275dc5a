// Copyright (C) 2025, VL Data Systems. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adima959/vl-reporting/pkg/log"
	"github.com/adima959/vl-reporting/pkg/metric"
	"github.com/adima959/vl-reporting/pkg/report"
	"github.com/adima959/vl-reporting/pkg/storage"
	"github.com/adima959/vl-reporting/pkg/store"
	"github.com/adima959/vl-reporting/pkg/views"
)

var (
	port     = flag.String("port", "8080", "API server port")
	opsPort  = flag.String("ops-port", "9090", "Ops server port (metrics, health)")
	env      = flag.String("env", "development", "Environment (development/production)")
	dsn      = flag.String("dsn", os.Getenv("REPORTING_DSN"), "MySQL DSN for the reporting store")
	dbType   = flag.String("db", "badger", "Saved-view database backend (badger/memory)")
	dbPath   = flag.String("db-path", "./data/views", "Saved-view database path")
	logLevel = flag.String("log-level", "info", "Log level")
)

func main() {
	flag.Parse()

	logger := log.NewWithLevel(*logLevel)
	defer logger.Sync()

	metrics, err := metric.NewMetrics()
	if err != nil {
		logger.Fatal("failed to create metrics", log.Err(err))
	}

	db, err := sqlx.Open("mysql", *dsn)
	if err != nil {
		logger.Fatal("failed to open reporting store", log.Err(err))
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(5 * time.Minute)

	kv, err := storage.NewStorage(*dbType, *dbPath)
	if err != nil {
		logger.Fatal("failed to open saved-view store", log.Err(err))
	}
	defer kv.Close()

	svc := report.NewService(store.New(db, logger), logger, metrics)
	viewStore := views.NewStore(kv, logger)

	h := &handlers{svc: svc, views: viewStore, log: logger, metrics: metrics}
	router := setupRouter(h)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: router,
	}
	ops := &http.Server{
		Addr:    ":" + *opsPort,
		Handler: opsRouter(metrics),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("api server failed", log.Err(err))
		}
	}()
	go func() {
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("ops server failed", log.Err(err))
		}
	}()

	logger.Info("reporting server started",
		log.String("port", *port),
		log.String("ops_port", *opsPort),
		log.String("env", *env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("api server forced to shut down", log.Err(err))
	}
	if err := ops.Shutdown(ctx); err != nil {
		logger.Error("ops server forced to shut down", log.Err(err))
	}
}

func setupRouter(h *handlers) *gin.Engine {
	if *env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"http://localhost:3000"}
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User"}
	router.Use(cors.New(config))

	api := router.Group("/api/v1")
	{
		api.POST("/report/query", h.queryReport)

		api.GET("/views", h.listViews)
		api.POST("/views", h.saveView)
		api.GET("/views/:id", h.getView)
		api.DELETE("/views/:id", h.deleteView)
		api.GET("/views/:id/resolve", h.resolveView)
	}

	return router
}

// opsRouter serves metrics and health on a separate listener so the API
// surface stays purely functional.
func opsRouter(m *metric.Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.GetGatherer(), promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	return r
}
