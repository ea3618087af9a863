package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"manga-server/internal/models"
)

var exportsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "manga_exports_total",
		Help: "Total number of manga exports, by format and status.",
	},
	[]string{"format", "status"},
)

// Exporter собирает сгенерированные панели в файлы для скачивания.
type Exporter struct {
	outputsDir string
	logger     *zap.Logger
}

// NewExporter создает экспортер, пишущий в директорию результатов.
func NewExporter(outputsDir string, logger *zap.Logger) *Exporter {
	return &Exporter{outputsDir: outputsDir, logger: logger}
}

// ExportPDF собирает PDF: титульная страница, затем по странице на панель
// с репликами под изображением. Возвращает имя созданного файла.
func (e *Exporter) ExportPDF(story models.Story, panels []models.Panel) (string, error) {
	fileName := exportFileName(story.Title, "pdf")
	path := filepath.Join(e.outputsDir, fileName)

	pdf := fpdf.New("P", "mm", "A4", "")
	pageW, pageH := pdf.GetPageSize()

	// Титульная страница
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetY(pageH / 3)
	pdf.MultiCell(0, 12, story.Title, "", "C", false)
	if story.Summary != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "I", 12)
		pdf.MultiCell(0, 6, story.Summary, "", "C", false)
	}
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, fmt.Sprintf("%d panels", len(panels)), "", "C", false)

	margin := 15.0
	imgW := pageW - 2*margin

	for _, panel := range panels {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("Panel %d", panel.SceneIndex+1), "", 1, "L", false, 0, "")

		if panel.ImagePath != "" {
			opts := fpdf.ImageOptions{ImageType: "", ReadDpi: true}
			pdf.ImageOptions(panel.ImagePath, margin, pdf.GetY()+2, imgW, 0, true, opts, 0, "")
		}

		if len(panel.Dialogue) > 0 {
			pdf.Ln(4)
			pdf.SetFont("Helvetica", "", 10)
			for _, line := range panel.Dialogue {
				pdf.MultiCell(0, 5, fmt.Sprintf("%s: %s", line.Character, line.Text), "", "L", false)
			}
		}
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		exportsTotal.With(prometheus.Labels{"format": "pdf", "status": "error"}).Inc()
		return "", fmt.Errorf("%w: failed to write PDF: %v", models.ErrResource, err)
	}

	exportsTotal.With(prometheus.Labels{"format": "pdf", "status": "success"}).Inc()
	e.logger.Info("PDF exported",
		zap.String("file", fileName),
		zap.Int("panels", len(panels)),
	)
	return fileName, nil
}

// ExportCBZ собирает CBZ-архив: панели в порядке сцен под именами 000.png,
// 001.png и так далее, как их читают comic-ридеры.
func (e *Exporter) ExportCBZ(story models.Story, panels []models.Panel) (string, error) {
	fileName := exportFileName(story.Title, "cbz")
	path := filepath.Join(e.outputsDir, fileName)

	f, err := os.Create(path)
	if err != nil {
		exportsTotal.With(prometheus.Labels{"format": "cbz", "status": "error"}).Inc()
		return "", fmt.Errorf("%w: failed to create CBZ file: %v", models.ErrResource, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for i, panel := range panels {
		if err := addPanelToZip(zw, panel.ImagePath, fmt.Sprintf("%03d.png", i)); err != nil {
			zw.Close()
			exportsTotal.With(prometheus.Labels{"format": "cbz", "status": "error"}).Inc()
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		exportsTotal.With(prometheus.Labels{"format": "cbz", "status": "error"}).Inc()
		return "", fmt.Errorf("%w: failed to finalize CBZ archive: %v", models.ErrResource, err)
	}

	exportsTotal.With(prometheus.Labels{"format": "cbz", "status": "success"}).Inc()
	e.logger.Info("CBZ exported",
		zap.String("file", fileName),
		zap.Int("panels", len(panels)),
	)
	return fileName, nil
}

// ResolveDownload проверяет имя файла для скачивания и возвращает полный путь.
// Принимаются только простые имена внутри директории результатов.
func (e *Exporter) ResolveDownload(fileName string) (string, error) {
	if fileName == "" || fileName != filepath.Base(fileName) || strings.Contains(fileName, "..") {
		return "", fmt.Errorf("invalid file name: %q", fileName)
	}
	path := filepath.Join(e.outputsDir, fileName)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: export file not found: %v", models.ErrResource, err)
	}
	return path, nil
}

func addPanelToZip(zw *zip.Writer, imagePath, entryName string) error {
	src, err := os.Open(imagePath)
	if err != nil {
		return fmt.Errorf("%w: failed to open panel image: %v", models.ErrResource, err)
	}
	defer src.Close()

	dst, err := zw.Create(entryName)
	if err != nil {
		return fmt.Errorf("%w: failed to create archive entry: %v", models.ErrResource, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: failed to write archive entry: %v", models.ErrResource, err)
	}
	return nil
}

// exportFileName строит имя вида <title>_<timestamp>.<ext> из безопасного
// подмножества символов заголовка.
func exportFileName(title, ext string) string {
	return fmt.Sprintf("%s_%s.%s", sanitizeFilename(title), time.Now().Format("20060102_150405"), ext)
}

// sanitizeFilename оставляет буквы, цифры, дефисы и подчеркивания, пробелы
// заменяет подчеркиваниями.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	s := b.String()
	if s == "" {
		s = "manga"
	}
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}
