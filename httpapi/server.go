package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"command-changelog/model"
)

const (
	defaultChangesLimit = 20
	maxChangesLimit     = 200
)

// SnapshotSource отдаёт последний зафиксированный снапшот команд.
type SnapshotSource interface {
	Snapshot() model.Snapshot
}

// HistoryReader читает последние записи истории изменений.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]model.ChangeRecord, error)
}

// Server — служебный HTTP сервер: здоровье, метрики, текущие команды и история.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New собирает сервер. history может быть nil, тогда /changes отвечает 503.
func New(addr string, snapshots SnapshotSource, history HistoryReader, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	logger = logger.Named("http")
	router := NewRouter(snapshots, history, gatherer, logger)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Run слушает адрес до отмены ctx, затем корректно завершает соединения.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// NewRouter регистрирует маршруты на новом gin.Engine.
func NewRouter(snapshots SnapshotSource, history HistoryReader, gatherer prometheus.Gatherer, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handler{snapshots: snapshots, history: history, logger: logger}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/commands", h.commands)
	router.GET("/changes", h.changes)

	return router
}

type handler struct {
	snapshots SnapshotSource
	history   HistoryReader
	logger    *zap.Logger
}

func (h *handler) commands(c *gin.Context) {
	c.JSON(http.StatusOK, h.snapshots.Snapshot().Commands())
}

func (h *handler) changes(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history storage disabled"})
		return
	}

	limit := defaultChangesLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(v, maxChangesLimit)
	}

	records, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read change history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	if records == nil {
		records = []model.ChangeRecord{}
	}
	c.JSON(http.StatusOK, records)
}
