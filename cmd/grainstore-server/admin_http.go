package main

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/grainstore/pkg/adminapi"
	"github.com/cuemby/grainstore/pkg/types"
)

// newAdminServer wraps pkg/adminapi in a small stdlib JSON/HTTP surface.
// The core itself exposes no admin RPC over the wire (spec §1's
// out-of-scope list has no admin protocol); this is grainstore's
// replacement for the teacher's gRPC+mTLS cluster API, intentionally
// stdlib-only since the wire format for administrative calls is outside
// anything spec.md or the example pack describes — grounded on the
// teacher's own metrics/health handlers, which are also plain
// net/http.HandlerFunc rather than gRPC.
func newAdminServer(api *adminapi.API) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/tenants", handleCreateTenant(api))
	mux.HandleFunc("/tables", handleCreateTable(api))
	mux.HandleFunc("/extensions/load", handleLoadExtension(api))
	mux.HandleFunc("/extensions/share", handleShareExtension(api))
	mux.HandleFunc("/extensions/authorize", handleAuthorize(api))
	mux.HandleFunc("/extensions/revoke", handleRevoke(api))
	return mux
}

func writeErr(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func handleCreateTenant(api *adminapi.API) http.HandlerFunc {
	type request struct {
		TenantID uint64 `json:"tenantId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := api.CreateTenant(types.TenantId(req.TenantID)); err != nil {
			writeErr(w, http.StatusConflict, err)
			return
		}
		writeOK(w)
	}
}

func handleCreateTable(api *adminapi.API) http.HandlerFunc {
	type request struct {
		TenantID uint64 `json:"tenantId"`
		TableID  uint64 `json:"tableId"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := api.CreateTable(types.TenantId(req.TenantID), types.TableId(req.TableID)); err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		writeOK(w)
	}
}

func handleLoadExtension(api *adminapi.API) http.HandlerFunc {
	type request struct {
		TenantID uint64 `json:"tenantId"`
		Path     string `json:"path"`
		Name     string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := api.LoadExtension(types.TenantId(req.TenantID), req.Path, req.Name); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeOK(w)
	}
}

func handleShareExtension(api *adminapi.API) http.HandlerFunc {
	type request struct {
		From uint64 `json:"from"`
		To   uint64 `json:"to"`
		Name string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := api.ShareExtension(types.TenantId(req.From), types.TenantId(req.To), req.Name); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeOK(w)
	}
}

func handleAuthorize(api *adminapi.API) http.HandlerFunc {
	type request struct {
		TenantID uint64 `json:"tenantId"`
		Name     string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := api.Authorize(types.TenantId(req.TenantID), req.Name); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeOK(w)
	}
}

func handleRevoke(api *adminapi.API) http.HandlerFunc {
	type request struct {
		TenantID uint64 `json:"tenantId"`
		Name     string `json:"name"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req request
		if err := decodeBody(r, &req); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		if err := api.Revoke(types.TenantId(req.TenantID), req.Name); err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		writeOK(w)
	}
}
