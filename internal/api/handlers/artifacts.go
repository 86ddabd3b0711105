// artifacts.go — HTTP handlers операций с артефактами.
// Upload, Download, Get metadata, Delete, Presign, Verify, поиск.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Hug0lvt/DriveOps-sub003/internal/api/errors"
	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
	"github.com/Hug0lvt/DriveOps-sub003/internal/service"
)

// maxMultipartMemory — буфер парсинга multipart form в памяти.
const maxMultipartMemory = 32 << 20 // 32 MB

// ArtifactsHandler — обработчик endpoints артефактов.
type ArtifactsHandler struct {
	svc    *service.FileArtifactService
	logger *slog.Logger
}

// NewArtifactsHandler создаёт обработчик endpoints артефактов.
func NewArtifactsHandler(svc *service.FileArtifactService, logger *slog.Logger) *ArtifactsHandler {
	return &ArtifactsHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "artifacts_handler")),
	}
}

// artifactResponse — представление артефакта в API.
type artifactResponse struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Bucket      string            `json:"bucket"`
	StorageKey  string            `json:"storage_key"`
	Checksum    string            `json:"checksum"`
	UploadedBy  string            `json:"uploaded_by"`
	UploadedAt  string            `json:"uploaded_at"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func toArtifactResponse(a *model.FileArtifact) artifactResponse {
	return artifactResponse{
		ID:          a.ID,
		Filename:    a.Filename,
		ContentType: a.ContentType,
		Size:        a.Size,
		Bucket:      a.Bucket,
		StorageKey:  a.StorageKey,
		Checksum:    a.Checksum,
		UploadedBy:  a.UploadedBy,
		UploadedAt:  a.UploadedAt.UTC().Format(time.RFC3339),
		Tags:        a.Tags,
		Attributes:  a.Attributes,
	}
}

// Upload обрабатывает POST /api/v1/artifacts.
// Multipart form: file (обязательно), uploaded_by (обязательно),
// bucket, subject_id, tags (через запятую) — опционально.
// Оставшиеся поля формы становятся произвольными атрибутами.
func (h *ArtifactsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	// Неслужебные поля формы — произвольные атрибуты
	metadata := make(map[string]string)
	for key, vals := range r.MultipartForm.Value {
		switch key {
		case "uploaded_by", "bucket", "subject_id", "tags":
			continue
		}
		if len(vals) > 0 {
			metadata[key] = vals[0]
		}
	}

	artifact, err := h.svc.Upload(r.Context(), service.UploadParams{
		Reader:      file,
		Filename:    header.Filename,
		ContentType: contentType,
		UploadedBy:  r.FormValue("uploaded_by"),
		Bucket:      r.FormValue("bucket"),
		SubjectID:   r.FormValue("subject_id"),
		Metadata:    metadata,
		Tags:        tags,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toArtifactResponse(artifact))
}

// GetMetadata обрабатывает GET /api/v1/artifacts/{id}.
func (h *ArtifactsHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.svc.GetMetadata(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArtifactResponse(artifact))
}

// Download обрабатывает GET /api/v1/artifacts/{id}/download.
func (h *ArtifactsHandler) Download(w http.ResponseWriter, r *http.Request) {
	artifact, rc, err := h.svc.Download(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.OriginalFilename+`"`)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("Ошибка передачи содержимого артефакта",
			slog.String("artifact_id", artifact.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Delete обрабатывает DELETE /api/v1/artifacts/{id}.
// Идемпотентен: несуществующий или уже удалённый артефакт — 204.
func (h *ArtifactsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Presign обрабатывает POST /api/v1/artifacts/{id}/presign.
// Параметр ttl — срок действия в секундах (опционально).
func (h *ArtifactsHandler) Presign(w http.ResponseWriter, r *http.Request) {
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			apierrors.ValidationError(w, "Параметр ttl должен быть положительным числом секунд")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}

	link, err := h.svc.PresignedURL(r.Context(), chi.URLParam(r, "id"), ttl)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": link})
}

// Verify обрабатывает POST /api/v1/artifacts/{id}/verify.
// Перечитывает объект и сверяет контрольную сумму.
func (h *ArtifactsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Verify(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrChecksumMismatch) {
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "valid": false})
			return
		}
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "valid": true})
}

// List обрабатывает GET /api/v1/artifacts.
// Ровно один фильтр: uploaded_by, tags (через запятую) или subject_id.
func (h *ArtifactsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uploadedBy := q.Get("uploaded_by")
	rawTags := q.Get("tags")
	subjectID := q.Get("subject_id")

	var (
		artifacts []*model.FileArtifact
		err       error
	)
	switch {
	case uploadedBy != "":
		artifacts, err = h.svc.ListByUploader(r.Context(), uploadedBy)
	case rawTags != "":
		artifacts, err = h.svc.SearchByTags(r.Context(), strings.Split(rawTags, ","))
	case subjectID != "":
		artifacts, err = h.svc.ListBySubject(r.Context(), subjectID)
	default:
		apierrors.ValidationError(w, "Требуется фильтр: uploaded_by, tags или subject_id")
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]artifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		resp = append(resp, toArtifactResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp, "total": len(resp)})
}

// writeServiceError переводит сервисные ошибки в HTTP-ответы.
func (h *ArtifactsHandler) writeServiceError(w http.ResponseWriter, err error) {
	var partial *service.PartialUploadError
	switch {
	case errors.As(err, &partial):
		// Загрузка завершилась orphan-объектом: клиент должен знать
		// координаты для retry или ручной очистки
		apierrors.WriteError(w, http.StatusBadGateway, "PARTIAL_UPLOAD",
			fmt.Sprintf("Объект %s/%s записан, но метаданные не сохранены", partial.Bucket, partial.Key))
	case errors.Is(err, service.ErrInvalidArgument):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Артефакт не найден")
	case errors.Is(err, service.ErrInconsistent):
		apierrors.Inconsistent(w, "Метаданные ссылаются на отсутствующий объект")
	case errors.Is(err, service.ErrBackendUnavailable):
		apierrors.Unavailable(w, "Backend временно недоступен")
	default:
		h.logger.Error("Необработанная ошибка сервиса", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
