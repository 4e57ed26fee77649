package gossip

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// IdentityResponse is the payload for GET /identity (spec §6).
type IdentityResponse struct {
	PeerID         string `json:"peer_id"`
	PublicKeyPEM   string `json:"public_key_pem"`
	CoordinatorURL string `json:"coordinator_url"`
	NetworkMode    string `json:"network_mode"`
	Role           string `json:"role"`
}

// Router builds the chi router exposing the gossip HTTP surface.
func (m *Manager) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/identity", m.handleIdentity)
	r.Get("/mesh/peers", m.handlePeers)
	r.With(m.requireMeshToken).Post("/mesh/register-peer", m.handleRegisterPeer)
	r.With(m.requireMeshToken).Post("/mesh/ingest", m.handleIngest)
	return r
}

func (m *Manager) requireMeshToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !m.TokenMatches(req.Header.Get("x-mesh-token")) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid mesh token"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (m *Manager) handleIdentity(w http.ResponseWriter, r *http.Request) {
	rec := m.Identity()
	writeJSON(w, http.StatusOK, IdentityResponse{
		PeerID:         rec.PeerID,
		PublicKeyPEM:   rec.PublicKeyPEM,
		CoordinatorURL: rec.CoordinatorURL,
		NetworkMode:    rec.NetworkMode,
		Role:           rec.Role,
	})
}

func (m *Manager) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"peers": m.Peers()})
}

func (m *Manager) handleRegisterPeer(w http.ResponseWriter, r *http.Request) {
	var p PeerRecord
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	m.RegisterPeer(p)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "peer_count": len(m.Peers())})
}

func (m *Manager) handleIngest(w http.ResponseWriter, r *http.Request) {
	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := m.Ingest(r.Context(), env); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
