package rpc

import (
	"net/http"

	"tokensale/gateway/middleware"
	"tokensale/native/access"
	"tokensale/native/sale"
)

func (s *Server) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		s.writeError(w, r, http.StatusUnauthorized, "caller identity required")
	}
	return caller, ok
}

func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.engine.SetSchedule(caller, &sale.Schedule{
		ComingSoonEnd: req.ComingSoonEnd,
		OnlyKycEnd:    req.OnlyKycEnd,
		PurchaseEnd:   req.PurchaseEnd,
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleSetParameters(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req parametersRequest
	if !s.decode(w, r, &req) {
		return
	}
	minDeposit, err := parseWireAmount(req.MinDeposit)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	maxDeposit, err := parseWireAmount(req.MaxDepositPerWallet)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.SetParameters(caller, &sale.Parameters{
		MinDeposit:          minDeposit,
		MaxDepositPerWallet: maxDeposit,
	}); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleSetTiers(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req tiersRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Tiers) != sale.TierCount {
		s.writeError(w, r, http.StatusBadRequest, "exactly four tiers required")
		return
	}
	ladder := &sale.TierLadder{}
	for i, tier := range req.Tiers {
		price, err := parseWireAmount(tier.Price)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		cumulativeCap, err := parseWireAmount(tier.CumulativeCap)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ladder.Tiers[i] = sale.Tier{Price: price, CumulativeCap: cumulativeCap}
	}
	if err := s.engine.SetTiers(caller, ladder); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleSetMerkleRoot(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req merkleRootRequest
	if !s.decode(w, r, &req) {
		return
	}
	root, err := parseWireRoot(req.Root)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.SetMerkleRoot(caller, root); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.engine.Pause(caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	if err := s.engine.Unpause(caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	recipient, err := parseWireAddress(req.Recipient)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.WithdrawAssets(caller, req.Asset, recipient); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) mutateRoles(w http.ResponseWriter, r *http.Request, fn func(auth *access.Authority, role string, addr, caller [20]byte) error) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if !s.decode(w, r, &req) {
		return
	}
	addr, err := parseWireAddress(req.Address)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	txn, err := s.mgr.Begin()
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	defer txn.Rollback()
	if err := fn(access.NewAuthority(txn), req.Role, addr, caller); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if err := txn.Commit(); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusOK)
}

func (s *Server) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	s.mutateRoles(w, r, func(auth *access.Authority, role string, addr, caller [20]byte) error {
		return auth.Grant(role, addr, caller)
	})
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	s.mutateRoles(w, r, func(auth *access.Authority, role string, addr, caller [20]byte) error {
		return auth.Revoke(role, addr, caller)
	})
}
