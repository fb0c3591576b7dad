package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
)

type ReferenceHandler struct {
	store  storage.ReferenceStore
	logger *slog.Logger
}

func NewReferenceHandler(store storage.ReferenceStore, logger *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{store: store, logger: logger}
}

// List serves one lookup table ordered by id.
func (h *ReferenceHandler) List(kind model.ReferenceKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := h.store.ListReference(r.Context(), kind)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, mapSlice(items, func(it model.ReferenceItem) referenceDTO {
			return referenceDTO{ID: it.ID, Name: it.Name, Description: it.Description}
		}))
	}
}
