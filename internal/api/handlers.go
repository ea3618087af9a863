package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

// Pipeline - полный конвейер генерации манги.
type Pipeline interface {
	Generate(ctx context.Context, req models.GenerationRequest) (models.MangaResult, models.Story, error)
	GenerateStoryOnly(ctx context.Context, req models.GenerationRequest) (models.Story, models.AnalysisResult)
}

// PanelGenerator рендерит панели для сцен истории.
type PanelGenerator interface {
	GeneratePanels(ctx context.Context, story models.Story, styleTag string, genre models.Genre) ([]models.Panel, error)
	RenderScene(ctx context.Context, scene models.Scene, characters []string, styleTag string, genre models.Genre) (models.Panel, error)
}

// Exporter собирает панели в файлы для скачивания.
type Exporter interface {
	ExportPDF(story models.Story, panels []models.Panel) (string, error)
	ExportCBZ(story models.Story, panels []models.Panel) (string, error)
	ResolveDownload(fileName string) (string, error)
}

// Handler обслуживает HTTP-запросы генерации и экспорта. Последний результат
// генерации хранится в памяти процесса и служит источником для экспорта.
type Handler struct {
	pipeline Pipeline
	panels   PanelGenerator
	exporter Exporter
	logger   *zap.Logger

	mu         sync.RWMutex
	lastStory  *models.Story
	lastPanels []models.Panel
}

// NewHandler создает обработчик API.
func NewHandler(pipeline Pipeline, panels PanelGenerator, exporter Exporter, logger *zap.Logger) *Handler {
	return &Handler{pipeline: pipeline, panels: panels, exporter: exporter, logger: logger}
}

// Health обрабатывает GET / - проверка живости сервиса.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "manga-server"})
}

// GenerateStory обрабатывает POST /api/story/generate.
// Возвращает историю без рендера панелей.
func (h *Handler) GenerateStory(c *gin.Context) {
	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	story, analysis := h.pipeline.GenerateStoryOnly(c.Request.Context(), req)

	h.mu.Lock()
	h.lastStory = &story
	h.lastPanels = nil
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"story": story, "analysis": analysis})
}

// GenerateManga обрабатывает POST /api/manga/generate - полный конвейер
// от промпта до готовых панелей.
func (h *Handler) GenerateManga(c *gin.Context) {
	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Prompt == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	result, story, err := h.pipeline.Generate(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("Manga generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
		return
	}

	h.mu.Lock()
	h.lastStory = &story
	h.lastPanels = result.Panels
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"result": result, "story": story})
}

// panelRequest - тело запроса на рендер одной панели.
type panelRequest struct {
	Scene      string                `json:"scene"`
	Characters []string              `json:"characters"`
	Dialogue   []models.DialogueLine `json:"dialogue"`
	Style      string                `json:"style"`
}

// GeneratePanels обрабатывает POST /api/generate/panel. С телом
// {scene, characters, style} рендерится одна панель; без сцены в теле
// перерендериваются панели последней сгенерированной истории.
func (h *Handler) GeneratePanels(c *gin.Context) {
	var req panelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.Scene) != "" {
		style := req.Style
		if style == "" {
			style = "manga"
		}
		scene := models.Scene{
			Description:   strings.TrimSpace(req.Scene),
			Dialogue:      req.Dialogue,
			EmotionalBeat: models.BeatRising,
		}
		p, err := h.panels.RenderScene(c.Request.Context(), scene, req.Characters, style, models.GenreGeneral)
		if err != nil {
			h.logger.Error("Panel generation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "panel generation failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"panel_path": p.ImagePath, "panel": p})
		return
	}

	h.mu.RLock()
	story := h.lastStory
	h.mu.RUnlock()
	if story == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no story generated yet, call /api/story/generate first"})
		return
	}

	panels, err := h.panels.GeneratePanels(c.Request.Context(), *story, "manga", models.GenreGeneral)
	if err != nil {
		h.logger.Error("Panel generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "panel generation failed"})
		return
	}

	h.mu.Lock()
	h.lastPanels = panels
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"panels": panels})
}

// ExportPDF обрабатывает POST /api/export/pdf.
func (h *Handler) ExportPDF(c *gin.Context) {
	story, panels, ok := h.snapshot(c)
	if !ok {
		return
	}
	fileName, err := h.exporter.ExportPDF(story, panels)
	if err != nil {
		h.logger.Error("PDF export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file":         fileName,
		"download_url": "/api/export/download/pdf/" + fileName,
	})
}

// ExportCBZ обрабатывает POST /api/export/cbz.
func (h *Handler) ExportCBZ(c *gin.Context) {
	story, panels, ok := h.snapshot(c)
	if !ok {
		return
	}
	fileName, err := h.exporter.ExportCBZ(story, panels)
	if err != nil {
		h.logger.Error("CBZ export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"file":         fileName,
		"download_url": "/api/export/download/cbz/" + fileName,
	})
}

// Download обрабатывает GET /api/export/download/:format/:filename.
func (h *Handler) Download(c *gin.Context) {
	format := c.Param("format")
	if format != "pdf" && format != "cbz" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown export format"})
		return
	}
	if filepath.Ext(c.Param("filename")) != "."+format {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file extension does not match format"})
		return
	}

	path, err := h.exporter.ResolveDownload(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	contentType := "application/pdf"
	if format == "cbz" {
		contentType = "application/vnd.comicbook+zip"
	}
	c.Header("Content-Type", contentType)
	c.FileAttachment(path, c.Param("filename"))
}

// snapshot возвращает последние историю и панели или отвечает 409,
// если экспортировать пока нечего.
func (h *Handler) snapshot(c *gin.Context) (models.Story, []models.Panel, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastStory == nil || len(h.lastPanels) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "no manga generated yet, call /api/manga/generate first"})
		return models.Story{}, nil, false
	}
	return *h.lastStory, h.lastPanels, true
}
