// documents.go — HTTP handlers версионируемых документов.
// Update (новая активная версия), Append (первая активная версия),
// Latest, History, поиск по тегам, деактивация версии.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Hug0lvt/DriveOps-sub003/internal/api/errors"
	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
	"github.com/Hug0lvt/DriveOps-sub003/internal/service"
)

// maxDocumentSize — предел размера тела документа.
const maxDocumentSize = 4 << 20 // 4 MB

// DocumentsHandler — обработчик endpoints версионируемых документов.
type DocumentsHandler struct {
	svc    *service.VersionedDocumentStore
	logger *slog.Logger
}

// NewDocumentsHandler создаёт обработчик endpoints документов.
func NewDocumentsHandler(svc *service.VersionedDocumentStore, logger *slog.Logger) *DocumentsHandler {
	return &DocumentsHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "documents_handler")),
	}
}

// documentResponse — представление версии документа в API.
type documentResponse struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subject_id"`
	Version   int             `json:"version"`
	Payload   json.RawMessage `json:"payload"`
	CreatedBy string          `json:"created_by,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Active    bool            `json:"active"`
	CreatedAt string          `json:"created_at"`
}

func toDocumentResponse(v *model.DocumentVersion) documentResponse {
	return documentResponse{
		ID:        v.ID,
		SubjectID: v.SubjectID,
		Version:   v.Version,
		Payload:   v.Payload,
		CreatedBy: v.CreatedBy,
		Tags:      v.Tags,
		Active:    v.Active,
		CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// readPayload читает тело запроса как JSON-документ с ограничением размера.
// created_by и tags передаются заголовком и query-параметром, тело — сам документ.
func readPayload(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxDocumentSize+1))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения тела запроса")
		return nil, false
	}
	if len(payload) > maxDocumentSize {
		apierrors.ValidationError(w, "Документ превышает предельный размер")
		return nil, false
	}
	return payload, true
}

func requestTags(r *http.Request) []string {
	var tags []string
	for _, t := range strings.Split(r.URL.Query().Get("tags"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Update обрабатывает PUT /api/v1/documents/{subject_id}.
// Тело — JSON-документ; записывается новая активная версия.
func (h *DocumentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Update(r.Context(), chi.URLParam(r, "subjectID"), payload,
		r.Header.Get("X-Created-By"), requestTags(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// Append обрабатывает POST /api/v1/documents/{subject_id}/versions.
// Записывает первую активную версию subject'а; при уже существующей
// активной версии возвращает 409.
func (h *DocumentsHandler) Append(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}

	doc, err := h.svc.Append(r.Context(), chi.URLParam(r, "subjectID"), payload,
		r.Header.Get("X-Created-By"), requestTags(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// Latest обрабатывает GET /api/v1/documents/{subject_id}.
// Отсутствие активной версии — 404 (в отличие от пустой истории, это
// ожидаемое состояние subject'а без документа).
func (h *DocumentsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Latest(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if doc == nil {
		apierrors.NotFound(w, "Активная версия документа отсутствует")
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// History обрабатывает GET /api/v1/documents/{subject_id}/history.
func (h *DocumentsHandler) History(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.History(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp, "total": len(resp)})
}

// Search обрабатывает GET /api/v1/documents?tags=...
func (h *DocumentsHandler) Search(w http.ResponseWriter, r *http.Request) {
	tags := requestTags(r)
	if len(tags) == 0 {
		apierrors.ValidationError(w, "Требуется параметр tags")
		return
	}

	docs, err := h.svc.SearchByTags(r.Context(), tags)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": resp, "total": len(resp)})
}

// Deactivate обрабатывает DELETE /api/v1/documents/versions/{id}.
// Версия остаётся в истории, снимается только флаг активности.
func (h *DocumentsHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Deactivate(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError переводит сервисные ошибки в HTTP-ответы.
func (h *DocumentsHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Версия документа не найдена")
	case errors.Is(err, service.ErrVersionConflict):
		apierrors.WriteError(w, http.StatusConflict, "VERSION_CONFLICT",
			"Конкурентная модификация цепочки версий, повторите запрос")
	case errors.Is(err, service.ErrBackendUnavailable):
		apierrors.Unavailable(w, "Backend временно недоступен")
	default:
		h.logger.Error("Необработанная ошибка сервиса", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
