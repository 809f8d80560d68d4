// Package fileserver принимает вложения сообщений и раздаёт их обратно.
// Роутер сообщений хранит только тройку (url, mimeType, originalName).
package fileserver

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/chatlink/internal/apperr"
	"github.com/chatlink/internal/logger"
)

// DefaultMaxUploadSize: 10 МБ.
const DefaultMaxUploadSize = 10 << 20

// FilesPath: префикс URL, под которым раздаются файлы.
const FilesPath = "/api/files/"

// Блокируем только опасные расширения (исполняемые/скрипты). Остальные разрешены.
var BlockedExt = map[string]bool{
	".exe": true, ".sh": true, ".js": true, ".bat": true, ".cmd": true,
	".php": true, ".py": true, ".rb": true, ".msi": true, ".com": true,
}

var ErrNotFound = errors.New("file not found")

// Upload: ответ после успешной загрузки.
type Upload struct {
	URL          string `json:"url"`
	MimeType     string `json:"mimeType"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
}

// Service обрабатывает загрузку и раздачу файлов.
type Service struct {
	UploadDir     string
	MaxUploadSize int64
}

// New создаёт сервис с заданным каталогом и лимитом размера (в байтах).
func New(uploadDir string, maxUploadSize int64) *Service {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Service{UploadDir: uploadDir, MaxUploadSize: maxUploadSize}
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("fileserver writeJSON: %v", err)
	}
}

func (s *Service) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Upload обрабатывает POST multipart/form-data с полем "file".
func (s *Service) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(s.MaxUploadSize); err != nil {
		s.writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	if header.Size > s.MaxUploadSize {
		s.writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	up, err := s.Save(r.Context(), header.Filename, file)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if apperr.Is(err, apperr.KindValidation) {
			s.writeError(w, http.StatusBadRequest, apperr.Message(err))
			return
		}
		logger.Errorf("fileserver upload %q: %v", header.Filename, err)
		s.writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	s.writeJSON(w, http.StatusOK, up)
}

// Save проверяет и сохраняет содержимое src в сжатом виде под сгенерированным именем.
func (s *Service) Save(ctx context.Context, filename string, src io.Reader) (*Upload, error) {
	// В ряде клиентов/прокси пробел в имени кодируется как "+"; нормализуем для отображения и расширения.
	rawFilename := strings.ReplaceAll(filename, "+", " ")
	ext := strings.ToLower(filepath.Ext(rawFilename))
	if BlockedExt[ext] {
		return nil, apperr.Validationf("file type not allowed")
	}

	head := make([]byte, 512)
	n, err := io.ReadAtLeast(src, head, len(head))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read head: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, apperr.Validationf("file is empty")
	}
	if !matchMagic(ext, head) {
		return nil, apperr.Validationf("file content does not match type")
	}

	newName := uuid.New().String() + ext
	if err := os.MkdirAll(s.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	// Сохраняем в сжатом виде (.gz) для экономии места
	dstPath := filepath.Join(s.UploadDir, newName+".gz")
	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", newName, err)
	}
	size, err := s.writeCompressed(ctx, dst, head, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dstPath)
		return nil, err
	}

	// Имя для отображения: только базовая часть без пути, безопасные символы, иначе сгенерированное
	displayName := safeFilename(filepath.Base(rawFilename))
	if displayName == "" || displayName == "." {
		displayName = newName
	}

	return &Upload{
		URL:          FilesPath + newName,
		MimeType:     mimeType(ext, head),
		OriginalName: displayName,
		Size:         size,
	}, nil
}

func (s *Service) writeCompressed(ctx context.Context, dst io.Writer, head []byte, src io.Reader) (int64, error) {
	gz := gzip.NewWriter(dst)
	if _, err := gz.Write(head); err != nil {
		gz.Close()
		return 0, fmt.Errorf("write: %w", err)
	}
	// +1: чтобы отличить файл ровно на лимите от превышения.
	limited := io.LimitReader(src, s.MaxUploadSize-int64(len(head))+1)
	n, err := copyWithContext(ctx, gz, limited)
	if err != nil {
		gz.Close()
		return 0, err
	}
	size := int64(len(head)) + n
	if size > s.MaxUploadSize {
		gz.Close()
		return 0, apperr.Validationf("file too large")
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("gzip close: %w", err)
	}
	return size, nil
}

// Open открывает сохранённый файл на чтение (распаковывая .gz) и возвращает его MIME-тип.
func (s *Service) Open(filename string) (io.ReadCloser, string, error) {
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) {
		return nil, "", ErrNotFound
	}
	ct := contentTypeByExt(filepath.Ext(filename))

	// Сначала сжатый .gz, иначе обычный файл (обратная совместимость)
	if f, err := os.Open(filepath.Join(s.UploadDir, filename+".gz")); err == nil {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, "", fmt.Errorf("gzip reader: %w", err)
		}
		return &gzipFile{Reader: gz, f: f}, ct, nil
	}
	if f, err := os.Open(filepath.Join(s.UploadDir, filename)); err == nil {
		return f, ct, nil
	}
	return nil, "", ErrNotFound
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

// Serve отдаёт файл по имени; query name= задаёт оригинальное имя для Content-Disposition.
func (s *Service) Serve(w http.ResponseWriter, r *http.Request, filename string) {
	rc, ct, err := s.Open(filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		logger.Errorf("fileserver serve %q: %v", filename, err)
		s.writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}
	defer rc.Close()

	if ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if origName := r.URL.Query().Get("name"); origName != "" {
		// В URL пробел может приходить как "+"; нормализуем для сохранения имени при скачивании (UTF-8).
		origName = strings.TrimSpace(strings.ReplaceAll(origName, "+", " "))
		if safe := safeFilename(origName); safe != "" {
			disp := "attachment; filename*=UTF-8''" + url.PathEscape(safe)
			if ascii := asciiFallbackFilename(safe); ascii == safe {
				disp = "attachment; filename=\"" + ascii + "\"; " + disp
			}
			w.Header().Set("Content-Disposition", disp)
		}
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil && r.Context().Err() == nil {
		logger.Errorf("fileserver serve %q: copy: %v", filename, err)
	}
}

func matchMagic(ext string, head []byte) bool {
	switch ext {
	case ".jpg", ".jpeg":
		return len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF
	case ".png":
		return len(head) >= 8 && bytes.Equal(head[:8], []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	case ".gif":
		return len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a")))
	case ".webp":
		return len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP"))
	case ".heic":
		return len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) && (bytes.Equal(head[8:12], []byte("heic")) || bytes.Equal(head[8:12], []byte("heix")) || bytes.Equal(head[8:12], []byte("mif1")))
	case ".pdf":
		return len(head) >= 5 && bytes.Equal(head[:5], []byte("%PDF-"))
	case ".doc":
		return len(head) >= 8 && head[0] == 0xD0 && head[1] == 0xCF && head[2] == 0x11 && head[3] == 0xE0
	case ".docx", ".xlsx", ".zip":
		return len(head) >= 4 && head[0] == 0x50 && head[1] == 0x4B && (head[2] == 0x03 || head[2] == 0x05) && head[3] == 0x04
	}
	// Расширения без сигнатуры (txt, csv и т.п.) не проверяем.
	return true
}

func mimeType(ext string, head []byte) string {
	if ct := contentTypeByExt(ext); ct != "" {
		return ct
	}
	return http.DetectContentType(head)
}

func contentTypeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".zip":
		return "application/zip"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return ""
}

// safeFilename оставляет имя файла безопасным для Content-Disposition (без управляющих символов и кавычек).
// Поддерживается UTF-8, чтобы сохранять кириллицу и другие языки.
func safeFilename(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\r', '\n', '"', '\\', '/', '\x00':
			continue
		}
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// asciiFallbackFilename возвращает имя только из ASCII для legacy filename= в Content-Disposition.
func asciiFallbackFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, fmt.Errorf("upload cancelled: %w", err)
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return total, fmt.Errorf("write: %w", err)
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, fmt.Errorf("read: %w", readErr)
		}
	}
}
