// objects.go — выдача объектов по presigned-ссылкам.
// GET /objects/{bucket}/{key}?token=... — единственный путь чтения
// содержимого без обращения к сервисному API: авторизацию несёт сам токен.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/Hug0lvt/DriveOps-sub003/internal/api/errors"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/blobstore"
)

// ObjectsHandler — обработчик скачивания по presigned-ссылкам.
type ObjectsHandler struct {
	store     blobstore.ObjectStore
	presigner *blobstore.Presigner
	logger    *slog.Logger
}

// NewObjectsHandler создаёт обработчик presigned-скачивания.
func NewObjectsHandler(store blobstore.ObjectStore, presigner *blobstore.Presigner, logger *slog.Logger) *ObjectsHandler {
	return &ObjectsHandler{
		store:     store,
		presigner: presigner,
		logger:    logger.With(slog.String("component", "objects_handler")),
	}
}

// Download отдаёт содержимое объекта по валидному токену.
// Токен обязан ссылаться ровно на запрошенную пару (bucket, key):
// подписанный токен от другого объекта не даёт доступа.
func (h *ObjectsHandler) Download(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	key := chi.URLParam(r, "*")
	token := r.URL.Query().Get("token")

	if token == "" {
		apierrors.ValidationError(w, "Отсутствует параметр token")
		return
	}

	signedBucket, signedKey, err := h.presigner.Verify(token)
	if err != nil {
		apierrors.LinkExpired(w, "Ссылка недействительна или истекла")
		return
	}
	if signedBucket != bucket || signedKey != key {
		// Токен валиден, но выписан на другой объект
		apierrors.LinkExpired(w, "Ссылка не соответствует запрошенному объекту")
		return
	}

	info, err := h.store.Stat(r.Context(), bucket, key)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			apierrors.NotFound(w, "Объект не найден")
			return
		}
		apierrors.Unavailable(w, "Объектное хранилище недоступно")
		return
	}

	rc, err := h.store.Get(r.Context(), bucket, key)
	if err != nil {
		apierrors.Unavailable(w, "Объектное хранилище недоступно")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if filename := info.Headers[blobstore.HeaderOriginalFilename]; filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Error("Ошибка передачи содержимого объекта",
			slog.String("bucket", bucket),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
