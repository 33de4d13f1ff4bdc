package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cratedrive/internal/auth"
	"cratedrive/internal/config"
	"cratedrive/internal/handler"
	"cratedrive/internal/preview"
	"cratedrive/internal/repository"
	"cratedrive/internal/service"
	"cratedrive/internal/service/s3"
)

func connectWithRetry(cfg *config.Config, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.Database.GetDSN()

	// Подключаемся к системной базе postgres и создаём рабочую базу,
	// если её ещё нет
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Database.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Database.Name)
		_, err = pgDB.Exec("CREATE DATABASE " + cfg.Database.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectWithRetry(appConfig, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	s3Config, err := s3.NewConfig(".s3.env")
	if err != nil {
		log.Fatalf("Failed to load S3 config: %v", err)
	}

	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}
	auth.InitClient(authConfig.AccountAddr)

	// Репозитории
	crateRepo := repository.NewCrateRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	folderRepo := repository.NewFolderRepository(db)
	fileRepo := repository.NewFileRepository(db)
	trashRepo := repository.NewTrashRepository(db)
	quotaRepo := repository.NewStorageQuotaRepository(db)

	// Сервисы
	permissionService := service.NewPermissionService(memberRepo)
	quotaService := service.NewStorageQuotaService(quotaRepo, nil)
	crateService := service.NewCrateService(crateRepo, memberRepo, permissionService, quotaService, nil)
	folderService := service.NewFolderService(folderRepo, fileRepo, permissionService, s3Client)
	fileService := service.NewFileService(fileRepo, folderRepo, crateRepo, permissionService, quotaService, s3Client)
	trashService := service.NewTrashService(trashRepo, folderRepo, fileRepo, permissionService, folderService, fileService, s3Client, nil)
	bulkService := service.NewBulkService(folderRepo, fileRepo, folderService, fileService)
	previewService := preview.NewService(s3Client)

	// Хендлеры
	crateHandler := handler.NewCrateHandler(crateService)
	folderHandler := handler.NewFolderHandler(folderService)
	fileHandler := handler.NewFileHandler(fileService)
	trashHandler := handler.NewTrashHandler(trashService)
	bulkHandler := handler.NewBulkHandler(bulkService)
	quotaHandler := handler.NewStorageQuotaHandler(quotaService)
	previewHandler := preview.NewHandler(previewService, fileService)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crates", func(r chi.Router) {
			r.Post("/", crateHandler.Create)
			r.Get("/", crateHandler.List)

			r.Route("/{crateID}", func(r chi.Router) {
				r.Get("/", crateHandler.Get)
				r.Patch("/", crateHandler.Update)
				r.Put("/allocation", crateHandler.UpdateAllocation)
				r.Get("/usage/mime", fileHandler.MimeBreakdown)

				r.Route("/members", func(r chi.Router) {
					r.Get("/", crateHandler.ListMembers)
					r.Post("/", crateHandler.AddMember)
					r.Patch("/{userID}", crateHandler.UpdateMemberRole)
					r.Delete("/{userID}", crateHandler.RemoveMember)
				})

				r.Get("/content", folderHandler.GetContents)

				r.Route("/folders", func(r chi.Router) {
					r.Post("/", folderHandler.Create)

					r.Route("/{folderID}", func(r chi.Router) {
						r.Get("/content", folderHandler.GetContents)
						r.Put("/rename", folderHandler.Rename)
						r.Put("/color", folderHandler.Recolor)
						r.Put("/move", folderHandler.Move)
						r.Delete("/", folderHandler.Delete)
						r.Post("/restore", folderHandler.Restore)
						r.Delete("/permanent", folderHandler.DeletePermanently)
					})
				})

				r.Route("/files", func(r chi.Router) {
					r.Post("/", fileHandler.Upload)

					r.Route("/{fileID}", func(r chi.Router) {
						r.Get("/", fileHandler.Get)
						r.Get("/download", fileHandler.Download)
						r.Get("/preview", previewHandler.GetPreview)
						r.Put("/rename", fileHandler.Rename)
						r.Put("/move", fileHandler.Move)
						r.Delete("/", fileHandler.Delete)
						r.Post("/restore", fileHandler.Restore)
						r.Delete("/permanent", fileHandler.DeletePermanently)
					})
				})

				r.Route("/trash", func(r chi.Router) {
					r.Get("/", trashHandler.List)
					r.Post("/restore", trashHandler.Restore)
					r.Post("/delete", trashHandler.DeletePermanently)
				})

				r.Post("/bulk", bulkHandler.Execute)
			})
		})

		r.Route("/quota", func(r chi.Router) {
			r.Get("/", quotaHandler.GetQuota)
			r.Post("/sync", quotaHandler.SyncQuota)
		})
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Printf("Starting trash sweeper: retention %s, interval %s",
			appConfig.Trash.Retention, appConfig.Trash.SweepInterval)
		err := trashService.Run(gctx, appConfig.Trash.SweepInterval, appConfig.Trash.Retention)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Printf("Server stopped")
}
