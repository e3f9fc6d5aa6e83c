package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/gotask/internal/config"
	"github.com/BuzzLyutic/gotask/internal/handler"
	"github.com/BuzzLyutic/gotask/internal/repo"
	"github.com/BuzzLyutic/gotask/internal/service"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadFile(os.Getenv("GOTASK_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	// Подключаем логгер
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// Подключаем БД
	taskRepo, closeRepo, err := openRepo(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open the Database", zap.String("driver", cfg.DBDriver), zap.Error(err)) // Fatal потому что дальнейшая работа теряет смысл
	}
	defer closeRepo() // Запланированное закрытие соединения

	taskHandler := handler.NewTaskHandler(service.NewTaskService(taskRepo), logger)

	r := chi.NewRouter() // Создаем роутер
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok"}`)
	})
	taskHandler.Routes(r)

	srv := http.Server{ // Создаем сервер
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() { // Запуск сервера и обработка ошибок
		logger.Info("Server started", zap.String("addr", srv.Addr), zap.String("driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
		return
	}
	logger.Info("Server stopped successfully!")
}

// openRepo connects the storage backend chosen by cfg.DBDriver and makes sure
// its schema exists.
func openRepo(ctx context.Context, cfg config.Config, logger *zap.Logger) (repo.TaskRepository, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL) // Создаем новое соединение к БД
		if err != nil {
			return nil, nil, err
		}
		if err := pool.Ping(ctx); err != nil { // Пытаемся пингануть БД
			pool.Close()
			return nil, nil, err
		}
		r := repo.NewTaskRepo(pool)
		if err := r.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("Successfully connected to the Database!")
		return r, pool.Close, nil

	case "sqlite":
		r, err := repo.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Opened SQLite database", zap.String("path", cfg.SQLitePath))
		return r, func() { r.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
