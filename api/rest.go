package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/Artfain/chainledger/core"
	"github.com/Artfain/chainledger/p2p"
	"golang.org/x/time/rate"
)

// Server exposes a node over HTTP.
type Server struct {
	node    *core.Node
	peers   *p2p.Peers
	syncer  *p2p.Syncer
	limiter *rate.Limiter
	hub     *Hub
}

// NewServer wires the REST routes to node. A nil limiter disables throttling
// of submissions.
func NewServer(node *core.Node, peers *p2p.Peers, syncer *p2p.Syncer, limiter *rate.Limiter) *Server {
	return &Server{
		node:    node,
		peers:   peers,
		syncer:  syncer,
		limiter: limiter,
		hub:     NewHub(node),
	}
}

// Hub returns the websocket hub served at /ws.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /transactions/new", s.throttle(s.newTransaction))
	mux.HandleFunc("GET /transactions", s.transactions)
	mux.HandleFunc("GET /pending", s.pending)
	mux.HandleFunc("POST /notarize", s.throttle(s.notarize))
	mux.HandleFunc("POST /verify_document", s.verifyDocument)
	mux.HandleFunc("GET /balance", s.balance)
	mux.HandleFunc("GET /chain", s.chain)
	mux.HandleFunc("POST /mine", s.mine)
	mux.HandleFunc("POST /nodes/register", s.registerNodes)
	mux.HandleFunc("POST /nodes/resolve", s.resolve)
	mux.HandleFunc("GET /validators", s.validators)
	mux.HandleFunc("POST /validators/register", s.registerValidator)
	mux.Handle("GET /ws", s.hub)
	return mux
}

func (s *Server) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps core sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, core.ErrDuplicateTransaction):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrMissingField):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStaleTip):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoValidators):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) newTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender    string   `json:"sender"`
		Recipient string   `json:"recipient"`
		Amount    *float64 `json:"amount"`
		Signature string   `json:"signature"`
		Message   string   `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Sender == "" || req.Recipient == "" || req.Amount == nil || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "missing values")
		return
	}
	index, err := s.node.SubmitTransaction(req.Sender, req.Recipient, *req.Amount, req.Signature, req.Message)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Transaction will be added to Block " + strconv.Itoa(index),
		"index":   index,
	})
}

func (s *Server) notarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentHash string `json:"document_hash"`
		Owner        string `json:"owner"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	index, err := s.node.SubmitNotarization(req.DocumentHash, req.Owner)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Document will be notarized in block " + strconv.Itoa(index),
		"index":   index,
	})
}

func (s *Server) verifyDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentHash string `json:"document_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DocumentHash == "" {
		writeError(w, http.StatusBadRequest, "missing document_hash")
		return
	}
	record, found := s.node.VerifyDocument(req.DocumentHash)
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"found": false, "message": "Document not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"found":       true,
		"message":     "Document is notarized",
		"owner":       record.Owner,
		"timestamp":   record.Timestamp,
		"block_index": record.BlockIndex,
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("wallet_address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing wallet_address")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet_address": addr, "balance": s.node.Balance(addr)})
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("wallet_address")
	if addr == "" {
		writeError(w, http.StatusBadRequest, "missing wallet_address")
		return
	}
	txs, err := s.node.TransactionsFor(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet_address": addr, "transactions": txs})
}

func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"transactions": s.node.Pending()})
}

func (s *Server) chain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.Snapshot())
}

func (s *Server) mine(w http.ResponseWriter, r *http.Request) {
	block, err := s.node.Mine(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "New Block Forged", "block": block})
}

func (s *Server) registerNodes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nodes []string `json:"nodes"`
		Node  string   `json:"node"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Node != "" {
		req.Nodes = append(req.Nodes, req.Node)
	}
	if len(req.Nodes) == 0 {
		writeError(w, http.StatusBadRequest, "please supply a valid list of nodes")
		return
	}
	for _, addr := range req.Nodes {
		if _, err := s.peers.Register(addr); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "New nodes have been added", "nodes": s.peers.List()})
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	replaced := s.syncer.Sync(r.Context())
	msg := "Our chain is authoritative"
	if replaced {
		msg = "Our chain was replaced"
	}
	writeJSON(w, http.StatusOK, map[string]any{"replaced": replaced, "message": msg, "chain": s.node.Chain()})
}

func (s *Server) validators(w http.ResponseWriter, r *http.Request) {
	validators := s.node.Validators()
	resp := map[string]any{"validators": validators}
	draws, _ := strconv.Atoi(r.URL.Query().Get("draws"))
	if draws > 0 {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		report, err := core.SelectionShares(validators, min(draws, 100000), rng)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		resp["report"] = report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) registerValidator(w http.ResponseWriter, r *http.Request) {
	var req core.Validator
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" || req.Stake < 0 {
		writeError(w, http.StatusBadRequest, "invalid validator")
		return
	}
	s.node.RegisterValidator(req.ID, req.Stake)
	writeJSON(w, http.StatusCreated, map[string]any{"validators": s.node.Validators()})
}
