package panel

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"manga-server/internal/models"
)

// Renderer - детерминированный локальный компоновщик панелей-заглушек.
// Единственная внешняя причина отказа - запись на диск.
type Renderer struct {
	outputsDir string
	width      int
	height     int
	logger     *zap.Logger
}

// NewRenderer создает локальный рендерер панелей.
func NewRenderer(outputsDir string, width, height int, logger *zap.Logger) *Renderer {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 600
	}
	return &Renderer{outputsDir: outputsDir, width: width, height: height, logger: logger}
}

// Render компонует панель и сохраняет ее в PNG. Возвращает путь к файлу.
func (r *Renderer) Render(scene models.Scene, style string) (string, error) {
	img := r.Compose(scene, style)

	if err := os.MkdirAll(r.outputsDir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create outputs dir: %v", models.ErrResource, err)
	}

	fileName := fmt.Sprintf("panel_%03d_%s.png", scene.Index, uuid.NewString()[:8])
	path := filepath.Join(r.outputsDir, fileName)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create panel file: %v", models.ErrResource, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", fmt.Errorf("%w: failed to encode panel: %v", models.ErrResource, err)
	}

	r.logger.Debug("Local panel rendered",
		zap.Int("scene_index", scene.Index),
		zap.String("path", path),
	)
	return path, nil
}

// Compose строит изображение панели в памяти. Результат детерминирован:
// RNG засеивается хэшем сцены и стиля, системное время не используется.
func (r *Renderer) Compose(scene models.Scene, style string) *image.RGBA {
	rng := rand.New(rand.NewSource(renderSeed(scene, style)))

	img := image.NewRGBA(image.Rect(0, 0, r.width, r.height))
	r.drawBackground(img, scene.EmotionalBeat, rng)
	r.drawSilhouettes(img, scene)
	r.drawSpeechBubbles(img, scene.Dialogue)
	r.drawCaption(img, scene.Description)
	r.drawBorder(img)
	return img
}

// drawBackground подбирает фон по эмоциональному такту сцены.
func (r *Renderer) drawBackground(img *image.RGBA, beat models.EmotionalBeat, rng *rand.Rand) {
	base := color.RGBA{255, 255, 255, 255}
	switch beat {
	case models.BeatRising:
		base = color.RGBA{240, 240, 240, 255}
	case models.BeatResolution:
		base = color.RGBA{250, 246, 238, 255}
	}
	draw.Draw(img, img.Bounds(), image.NewUniform(base), image.Point{}, draw.Src)

	switch beat {
	case models.BeatClimax:
		// Скоростные линии для кульминации
		for i := 0; i < 50; i++ {
			x1, y1 := rng.Intn(r.width), rng.Intn(r.height)
			x2, y2 := rng.Intn(r.width), rng.Intn(r.height)
			drawLine(img, x1, y1, x2, y2, color.RGBA{0, 0, 0, 255})
		}
	case models.BeatSetup:
		// Мягкие пастельные прямоугольники в духе фоновых экранов
		for i := 0; i < 10; i++ {
			x1, y1 := rng.Intn(r.width), rng.Intn(r.height)
			w, h := 50+rng.Intn(150), 50+rng.Intn(150)
			shade := uint8(220 + rng.Intn(30))
			fillRect(img, x1, y1, x1+w, y1+h, color.RGBA{shade, shade, uint8(220 + rng.Intn(30)), 255})
		}
	}
}

// drawSilhouettes рисует силуэты персонажей: эллипс головы и прямоугольник тела.
func (r *Renderer) drawSilhouettes(img *image.RGBA, scene models.Scene) {
	num := len(scene.Dialogue)
	if num == 0 {
		num = 2
	}
	if num > 3 {
		num = 3
	}

	black := color.RGBA{0, 0, 0, 255}
	for i := 0; i < num; i++ {
		var x int
		if num == 1 {
			x = r.width / 2
		} else {
			x = r.width / (num + 1) * (i + 1)
		}
		y := r.height - 150
		fillEllipse(img, x, y-70, 30, 30, black)      // Голова
		fillRect(img, x-40, y-40, x+40, y+100, black) // Тело
	}
}

// drawSpeechBubbles рисует до трех реплик в пузырях.
func (r *Renderer) drawSpeechBubbles(img *image.RGBA, dialogue []models.DialogueLine) {
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}

	for i, line := range dialogue {
		if i >= 3 {
			break
		}
		text := fmt.Sprintf("%s: %s", line.Character, line.Text)
		bubbleW := len(text) * 8
		if bubbleW > 300 {
			bubbleW = 300
		}
		bubbleX := r.width/4 + i*r.width/4
		bubbleY := 100 + i*50

		fillEllipse(img, bubbleX, bubbleY, bubbleW/2, 40, white)
		strokeEllipse(img, bubbleX, bubbleY, bubbleW/2, 40, black)
		drawText(img, bubbleX-bubbleW/2+10, bubbleY, truncate(text, bubbleW/8), black)
	}
}

// drawCaption выводит описание сцены в подписи внизу панели.
func (r *Renderer) drawCaption(img *image.RGBA, description string) {
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{0, 0, 0, 255}

	fillRect(img, 10, r.height-30, r.width-10, r.height-5, white)
	strokeRect(img, 10, r.height-30, r.width-10, r.height-5, black)
	drawText(img, 15, r.height-15, truncate(description, (r.width-30)/7), black)
}

func (r *Renderer) drawBorder(img *image.RGBA) {
	black := color.RGBA{0, 0, 0, 255}
	for i := 0; i < 3; i++ {
		strokeRect(img, i, i, r.width-1-i, r.height-1-i, black)
	}
}

// renderSeed хэширует сцену и стиль в seed рендера.
func renderSeed(scene models.Scene, style string) int64 {
	h := fnv.New64a()
	h.Write([]byte(scene.Description))
	h.Write([]byte{0})
	h.Write([]byte(style))
	h.Write([]byte{0})
	h.Write([]byte(scene.EmotionalBeat))
	for _, line := range scene.Dialogue {
		h.Write([]byte{0})
		h.Write([]byte(line.Character))
		h.Write([]byte{0})
		h.Write([]byte(line.Text))
	}
	return int64(h.Sum64())
}

// --- Примитивы растеризации ---

func fillRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	b := img.Bounds()
	for y := max(y1, b.Min.Y); y <= min(y2, b.Max.Y-1); y++ {
		for x := max(x1, b.Min.X); x <= min(x2, b.Max.X-1); x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func strokeRect(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	drawLine(img, x1, y1, x2, y1, c)
	drawLine(img, x1, y2, x2, y2, c)
	drawLine(img, x1, y1, x1, y2, c)
	drawLine(img, x2, y1, x2, y2, c)
}

func fillEllipse(img *image.RGBA, cx, cy, rx, ry int, c color.RGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	for y := -ry; y <= ry; y++ {
		for x := -rx; x <= rx; x++ {
			fx := float64(x) / float64(rx)
			fy := float64(y) / float64(ry)
			if fx*fx+fy*fy <= 1.0 {
				setPixel(img, cx+x, cy+y, c)
			}
		}
	}
}

func strokeEllipse(img *image.RGBA, cx, cy, rx, ry int, c color.RGBA) {
	if rx <= 0 || ry <= 0 {
		return
	}
	for y := -ry; y <= ry; y++ {
		for x := -rx; x <= rx; x++ {
			fx := float64(x) / float64(rx)
			fy := float64(y) / float64(ry)
			d := fx*fx + fy*fy
			if d <= 1.0 && d >= 0.85 {
				setPixel(img, cx+x, cy+y, c)
			}
		}
	}
}

// drawLine - алгоритм Брезенхэма.
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx + dy
	x, y := x1, y1
	for {
		setPixel(img, x, y, c)
		if x == x2 && y == y2 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 {
		maxLen = 4
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
