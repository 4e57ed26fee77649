package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/edgecoder/mesh/internal/anomaly"
	blemanager "github.com/edgecoder/mesh/internal/ble/manager"
	bletransport "github.com/edgecoder/mesh/internal/ble/transport"
	bleledger "github.com/edgecoder/mesh/internal/ble/ledger"
	"github.com/edgecoder/mesh/internal/blacklist"
	"github.com/edgecoder/mesh/internal/credit"
	"github.com/edgecoder/mesh/internal/eventstream"
	"github.com/edgecoder/mesh/internal/gossip"
	"github.com/edgecoder/mesh/internal/identity"
	"github.com/edgecoder/mesh/internal/issuance"
	"github.com/edgecoder/mesh/internal/obsmetrics"
	"github.com/edgecoder/mesh/internal/quality"
	"github.com/edgecoder/mesh/internal/routing"
	"github.com/edgecoder/mesh/internal/swarm"
)

// node bundles every wired component for one edgecoder process.
type node struct {
	cfg Config
	log *slog.Logger

	self *identity.Identity

	gossip   *gossip.Manager
	quality  *quality.Monitor
	bleTx    *bletransport.Transport
	bleLed   *bleledger.Ledger
	bleMgr   *blemanager.Manager
	routing  *routing.Engine
	swarm    *swarm.Queue
	credit   *credit.Engine
	smoother *issuance.Smoother
	blackls  *blacklist.Ledger
	anomalyB *anomaly.Blacklister
	events   *eventstream.Hub
	metrics  *obsmetrics.Registry
}

// buildNode constructs every component named in SPEC_FULL.md's
// component map from cfg, the way cmd/inos-node/main.go builds its
// (much smaller) set of collaborators directly in main rather than via
// a DI container.
func buildNode(cfg Config) (*node, error) {
	if err := cfg.validate(); err != nil {
		return nil, configErr(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("peer_id", cfg.PeerID)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, configErr(fmt.Errorf("create data dir: %w", err))
	}

	self, err := identity.New(cfg.PeerID)
	if err != nil {
		return nil, configErr(fmt.Errorf("generate identity: %w", err))
	}

	gossipCfg := gossip.DefaultConfig()
	gossipCfg.MeshToken = cfg.MeshToken
	gm, err := gossip.New(self, gossip.PeerRecord{
		CoordinatorURL: cfg.CoordinatorURL,
		NetworkMode:    "mesh",
		Role:           "node",
	}, gossipCfg, logger)
	if err != nil {
		return nil, configErr(fmt.Errorf("init gossip manager: %w", err))
	}

	qm := quality.New(quality.DefaultConfig())

	bleTx := bletransport.New(bletransport.NoopAdapter{}, logger)

	bleLed, err := bleledger.Open(filepath.Join(cfg.DataDir, "ble_credit.db"))
	if err != nil {
		return nil, configErr(fmt.Errorf("open ble ledger: %w", err))
	}

	coordIdentity, err := identity.New(cfg.PeerID + "-coordinator")
	if err != nil {
		return nil, configErr(fmt.Errorf("generate coordinator identity: %w", err))
	}
	blackls, err := blacklist.Open(filepath.Join(cfg.DataDir, "blacklist.db"), coordIdentity)
	if err != nil {
		return nil, configErr(fmt.Errorf("open blacklist ledger: %w", err))
	}

	reporterIdentity, err := identity.New(cfg.PeerID + "-anomaly-detector")
	if err != nil {
		return nil, configErr(fmt.Errorf("generate anomaly-detector identity: %w", err))
	}

	bleMgr := blemanager.New(bleTx, qm, bleLed, self, meshTokenHash(cfg.MeshToken), logger)

	swarmQueue := swarm.New()

	swarmCoordinatorURL := cfg.SwarmCoordinatorURL
	if swarmCoordinatorURL == "" {
		swarmCoordinatorURL = selfHTTPURL(cfg.ListenAddr) + "/swarm"
	}

	engine := routing.New(routing.Config{
		Class:        routing.DeviceClass(cfg.DeviceClass),
		BLEProxy:     &bleRouteProxy{mgr: bleMgr, requesterID: cfg.PeerID},
		LocalRuntime: routing.NewInferenceClient(cfg.InferenceURL, http.DefaultClient),
		SwarmClient:  routing.NewSwarmCoordinatorClient(swarmCoordinatorURL, cfg.PeerID, http.DefaultClient),
		HasMeshToken: cfg.MeshToken != "",
		Logger:       logger,
	})

	return &node{
		cfg:      cfg,
		log:      logger,
		self:     self,
		gossip:   gm,
		quality:  qm,
		bleTx:    bleTx,
		bleLed:   bleLed,
		bleMgr:   bleMgr,
		routing:  engine,
		swarm:    swarmQueue,
		credit:   credit.NewEngine(),
		smoother: issuance.NewSmoother(),
		blackls:  blackls,
		anomalyB: anomaly.NewBlacklister(blackls, reporterIdentity),
		events:   eventstream.NewHub(logger),
		metrics:  obsmetrics.New(),
	}, nil
}

func (n *node) Close() {
	n.bleLed.Close()
	n.blackls.Close()
	n.gossip.Close()
}

// selfHTTPURL turns a listen address like ":8787" or "0.0.0.0:8787" into a
// loopback base URL. With "/swarm" appended it is the swarm coordinator's
// default target when none is configured: every node runs its own
// coordinator surface, mounted at /swarm by httpRouter.
func selfHTTPURL(listenAddr string) string {
	addr := listenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	} else if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return "http://" + addr
}

// meshTokenHash mirrors how the mesh_token_hash fields in PeerCapability
// and Candidate are populated: a plain hex digest of the shared token,
// never the raw token itself, so BLE advertisements never leak it.
func meshTokenHash(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// httpRouter assembles the node's HTTP surface: the gossip overlay
// (identity, peer exchange, ingest), the websocket event feed, the
// Prometheus scrape endpoint, and a plain JSON status summary.
func (n *node) httpRouter() http.Handler {
	r := chi.NewRouter()
	r.Mount("/", n.gossip.Router())
	r.Mount("/swarm", n.swarm.Router())
	r.Get("/events", n.events.ServeHTTP)
	r.Handle("/metrics", n.metrics.Handler())
	r.Get("/status", n.handleStatus)
	r.Post("/route", n.handleRoute)
	return r
}

// routeRequest is the /route endpoint body: a single inference request
// entering the routing waterfall (spec §4.9).
type routeRequest struct {
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

// handleRoute drives the routing waterfall for one request, the only
// runtime entry point into the routing engine (C9).
func (n *node) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid body"})
		return
	}

	result, err := n.routing.Route(r.Context(), routing.Request{
		Prompt:   req.Prompt,
		Language: req.Language,
		Model:    req.Model,
	})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (n *node) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := n.Status()
	w.Header().Set("content-type", "application/json")
	writeJSONStatus(w, status)
}

// Status summarizes node health for the `status` subcommand and the
// /status HTTP endpoint.
type Status struct {
	PeerID     string       `json:"peer_id"`
	KnownPeers int          `json:"known_peers"`
	SwarmQueue swarm.Status `json:"swarm_queue"`
	LoadIndex  float64      `json:"load_index"`
}

func (n *node) Status() Status {
	return Status{
		PeerID:     n.self.PeerID,
		KnownPeers: len(n.gossip.Peers()),
		SwarmQueue: n.swarm.Status(),
		LoadIndex:  n.smoother.Value(),
	}
}
