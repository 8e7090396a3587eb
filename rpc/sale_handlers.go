package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tokensale/gateway/middleware"
)

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	stage, err := s.engine.CurrentStage()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stageResponse{Stage: stage.String()})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.SummaryView()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	remaining, err := s.engine.RemainingGlobalCap()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaryResponse{
		Stage:           summary.Stage.String(),
		ActiveTierIndex: summary.ActiveTierIndex,
		TotalCollected:  summary.TotalCollected.String(),
		GlobalCap:       summary.GlobalCap.String(),
		RemainingCap:    remaining.String(),
		Paused:          summary.Paused,
		MerkleRoot:      "0x" + hexRoot(summary.MerkleRoot),
	})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseWireAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	remaining, err := s.engine.RemainingAllowance(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	dep, err := s.engine.UserDepositOf(addr)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, allowanceResponse{
		Address:            encodeWireAddress(addr),
		RemainingAllowance: remaining.String(),
		AmountDeposited:    dep.AmountDeposited.String(),
		PurchasedTokens:    dep.PurchasedTokens.String(),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	addr, err := parseWireAddress(req.Address)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	proof, err := parseWireProof(req.Proof)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	whitelisted, err := s.engine.VerifyWhitelisted(addr, proof)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, verifyResponse{Whitelisted: whitelisted})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		s.writeError(w, r, http.StatusUnauthorized, "caller identity required")
		return
	}
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	amount, err := parseWireAmount(req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	proof, err := parseWireProof(req.Proof)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	receipt, err := s.engine.Deposit(caller, amount, proof)
	if err != nil {
		s.metrics.RecordDepositError(depositErrorClass(err))
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, depositResponse{
		DepositedAmount: receipt.DepositedAmount.String(),
		TokensPurchased: receipt.TokensPurchased.String(),
		Leftover:        receipt.Leftover.String(),
		TierIndex:       receipt.TierIndex,
		TotalCollected:  receipt.TotalCollected.String(),
	})
}
