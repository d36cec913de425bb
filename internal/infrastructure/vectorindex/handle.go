package vectorindex

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/pdf-rag-assistant/internal/core/domain"
	"github.com/kirillkom/pdf-rag-assistant/internal/core/ports"
)

// Handle is the process-wide read handle on the persisted index. It is opened
// once and shared; Reload swaps in the current generation atomically and
// queries holding a Snapshot keep the Index they started with.
type Handle struct {
	store      *Store
	embedModel string

	current  atomic.Pointer[Index]
	reloadMu sync.Mutex
}

func OpenHandle(ctx context.Context, store *Store, embedModel string) (*Handle, error) {
	h := &Handle{store: store, embedModel: embedModel}
	if err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Reload loads the current generation if it differs from the loaded one.
func (h *Handle) Reload(ctx context.Context) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	generation, err := h.store.Current()
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "resolve index generation", err)
	}
	if loaded := h.current.Load(); loaded != nil && generation != "" && loaded.Meta().Generation == generation {
		return nil
	}

	ix, err := h.store.Load(ctx)
	if err != nil {
		return domain.WrapError(domain.ErrIndexUnavailable, "load index", err)
	}
	meta := ix.Meta()
	if meta.EmbedModel != "" && h.embedModel != "" && meta.EmbedModel != h.embedModel {
		slog.Warn("index_embed_model_mismatch",
			"generation", meta.Generation,
			"index_model", meta.EmbedModel,
			"configured_model", h.embedModel,
		)
	}
	h.current.Store(ix)
	slog.Info("index_loaded", "generation", meta.Generation, "chunks", ix.Len(), "dimensions", meta.Dimensions)
	return nil
}

func (h *Handle) Index() *Index {
	if ix := h.current.Load(); ix != nil {
		return ix
	}
	return Empty()
}

func (h *Handle) Sources() []string {
	return h.Index().Sources()
}

// Snapshot pins the generation loaded right now. A later Reload does not
// affect it.
func (h *Handle) Snapshot() ports.IndexSnapshot {
	return h.Index()
}
