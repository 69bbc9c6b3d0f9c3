package api

import (
	"net/http"
	"sort"

	"github.com/shaiso/Extract/internal/domain"
	"github.com/shaiso/Extract/internal/plugin"
)

// ListConnectors возвращает connectors.
// GET /api/v1/connectors?active=true
func (h *Handler) ListConnectors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	connectors, err := h.store.ListConnectors(r.Context(), activeOnly)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ConnectorResponse, len(connectors))
	for i, c := range connectors {
		result[i] = ConnectorFromDomain(c)
	}

	List(w, result, len(result))
}

// ListProcesses возвращает процессы с задачами.
// GET /api/v1/processes
func (h *Handler) ListProcesses(w http.ResponseWriter, r *http.Request) {
	processes, err := h.store.ListProcesses(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}
	if processes == nil {
		processes = []domain.Process{}
	}

	List(w, processes, len(processes))
}

// ListPlugins возвращает каталог плагинов со схемами параметров.
// GET /api/v1/plugins?refresh=true
func (h *Handler) ListPlugins(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		Unavailable(w, "plugin catalog is not configured")
		return
	}
	refresh := r.URL.Query().Get("refresh") == "true"

	resp := PluginsResponse{
		Connectors: describeAll(h.catalog.DiscoverConnectors(refresh)),
		Tasks:      describeAll(h.catalog.DiscoverTasks(false)),
	}

	Success(w, resp)
}

func describeAll[T plugin.Descriptor](m map[string]T) []plugin.Info {
	out := make([]plugin.Info, 0, len(m))
	for _, d := range m {
		out = append(out, plugin.Describe(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
