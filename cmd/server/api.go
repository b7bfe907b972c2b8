package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"fluxgrid.ai/internal/protocol"
	"fluxgrid.ai/internal/sim/grid"
	"fluxgrid.ai/internal/sim/multigrid"
)

// apiServer exposes grid operations over loopback HTTP. Ownership tokens
// never leave the process: the vault keeps the token minted at anchor
// time and releases it only to the current holder named in the request.
type apiServer struct {
	mgr *multigrid.Manager
	log *log.Logger

	mu     sync.Mutex
	tokens map[tokenKey]*grid.OwnershipToken
}

// tokenKey scopes vault entries per grid; handles are deterministic and
// can repeat across grids.
type tokenKey struct {
	gridID string
	handle grid.Handle
}

func newAPIServer(mgr *multigrid.Manager, logger *log.Logger) *apiServer {
	return &apiServer{
		mgr:    mgr,
		log:    logger,
		tokens: map[tokenKey]*grid.OwnershipToken{},
	}
}

// opRequest is the single command envelope; which fields matter depends
// on Op. Actor is the calling principal. An empty Grid targets the
// default grid.
type opRequest struct {
	Op    string `json:"op"`
	Actor string `json:"actor"`
	Grid  string `json:"grid,omitempty"`

	Namespace    string   `json:"namespace,omitempty"`
	Key          string   `json:"key,omitempty"`
	Class        string   `json:"class,omitempty"`
	Kind         string   `json:"kind,omitempty"`
	ConsumerType string   `json:"consumer_type,omitempty"`
	Source       string   `json:"source,omitempty"`
	Consumer     string   `json:"consumer,omitempty"`
	Consumers    []string `json:"consumers,omitempty"`
	FuelType     string   `json:"fuel_type,omitempty"`
	Amount       int64    `json:"amount,omitempty"`
	Units        int64    `json:"units,omitempty"`
	NowMs        int64    `json:"now_ms,omitempty"`
	Principal    string   `json:"principal,omitempty"`
	Signer       string   `json:"signer,omitempty"`
	NewHolder    string   `json:"new_holder,omitempty"`
}

type opResponse struct {
	OK        bool   `json:"ok"`
	Handle    string `json:"handle,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
	Result    any    `json:"result,omitempty"`
}

func (s *apiServer) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var req opRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeOp(rw, http.StatusBadRequest, opResponse{Error: "bad json: " + err.Error()})
			return
		}
		in := s.mgr.Instance(req.Grid)
		if in == nil {
			writeOp(rw, http.StatusNotFound, opResponse{ErrorCode: protocol.ErrNotFound, Error: "unknown grid " + req.Grid})
			return
		}
		resp := s.dispatch(in.Grid, req)
		status := http.StatusOK
		if !resp.OK {
			status = statusForCode(resp.ErrorCode)
		}
		writeOp(rw, status, resp)
	}
}

func (s *apiServer) dispatch(g *grid.Grid, req opRequest) opResponse {
	actor := grid.Principal(req.Actor)
	source := grid.Handle(req.Source)
	consumer := grid.Handle(req.Consumer)

	switch req.Op {
	case "anchor_source":
		h, tok, err := g.AnchorSource(actor, req.Namespace, req.Key, req.Class)
		if err != nil {
			return errResp(err)
		}
		s.putToken(g.ID(), h, tok)
		return opResponse{OK: true, Handle: string(h)}

	case "anchor_assembly":
		h, tok, err := g.AnchorAssembly(actor, req.Namespace, req.Key, grid.Kind(req.Kind), req.ConsumerType)
		if err != nil {
			return errResp(err)
		}
		s.putToken(g.ID(), h, tok)
		return opResponse{OK: true, Handle: string(h)}

	case "start_production":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.StartProduction(tok, source))

	case "source_online":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.SourceOnline(tok, source))

	case "source_offline":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.SourceOffline(tok, source))

	case "unanchor_source":
		if err := g.UnanchorSource(actor, source); err != nil {
			return errResp(err)
		}
		s.dropToken(g.ID(), source)
		return opResponse{OK: true}

	case "connect":
		consumers := make([]grid.Handle, 0, len(req.Consumers))
		for _, c := range req.Consumers {
			consumers = append(consumers, grid.Handle(c))
		}
		return result(g.Connect(actor, source, consumers...))

	case "assembly_online":
		tok, resp := s.holderToken(g.ID(), actor, consumer)
		if tok == nil {
			return resp
		}
		return result(g.AssemblyOnline(tok, consumer))

	case "assembly_offline":
		tok, resp := s.holderToken(g.ID(), actor, consumer)
		if tok == nil {
			return resp
		}
		return result(g.AssemblyOffline(tok, consumer))

	case "unanchor_assembly":
		if err := g.UnanchorAssembly(actor, consumer); err != nil {
			return errResp(err)
		}
		s.dropToken(g.ID(), consumer)
		return opResponse{OK: true}

	case "fuel_deposit":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.FuelDeposit(tok, source, req.FuelType, req.Amount))

	case "fuel_withdraw":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.FuelWithdraw(tok, source, req.Amount))

	case "start_burning":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.StartBurning(tok, source, req.NowMs))

	case "stop_burning":
		tok, resp := s.holderToken(g.ID(), actor, source)
		if tok == nil {
			return resp
		}
		return result(g.StopBurning(tok, source))

	case "fuel_update":
		return result(g.FuelUpdate(source, req.NowMs))

	case "transfer_ownership":
		target := source
		if target == "" {
			target = consumer
		}
		s.mu.Lock()
		tok := s.tokens[tokenKey{g.ID(), target}]
		s.mu.Unlock()
		if tok == nil {
			return opResponse{ErrorCode: protocol.ErrNotFound, Error: "no token for " + string(target)}
		}
		return result(g.Authority().Transfer(tok, actor, grid.Principal(req.NewHolder)))

	case "set_requirement":
		return result(g.SetRequirement(actor, req.ConsumerType, req.Units))

	case "remove_requirement":
		return result(g.RemoveRequirement(actor, req.ConsumerType))

	case "add_sponsor":
		return result(g.AddSponsor(actor, grid.Principal(req.Principal)))

	case "remove_sponsor":
		return result(g.RemoveSponsor(actor, grid.Principal(req.Principal)))

	case "add_trusted_signer":
		return result(g.AddTrustedSigner(actor, req.Signer))

	case "remove_trusted_signer":
		return result(g.RemoveTrustedSigner(actor, req.Signer))

	case "source_snapshot":
		st, err := g.SourceSnapshot(source)
		if err != nil {
			return errResp(err)
		}
		return opResponse{OK: true, Result: st}

	case "assembly_snapshot":
		st, err := g.AssemblySnapshot(consumer)
		if err != nil {
			return errResp(err)
		}
		return opResponse{OK: true, Result: st}

	case "fuel_snapshot":
		st, err := g.FuelSnapshot(source)
		if err != nil {
			return errResp(err)
		}
		return opResponse{OK: true, Result: st}

	case "exists":
		return opResponse{OK: true, Result: g.Exists(req.Namespace, req.Key)}

	default:
		return opResponse{ErrorCode: protocol.ErrNotFound, Error: "unknown op " + req.Op}
	}
}

func (s *apiServer) putToken(gridID string, h grid.Handle, tok *grid.OwnershipToken) {
	s.mu.Lock()
	s.tokens[tokenKey{gridID, h}] = tok
	s.mu.Unlock()
}

func (s *apiServer) dropToken(gridID string, h grid.Handle) {
	s.mu.Lock()
	delete(s.tokens, tokenKey{gridID, h})
	s.mu.Unlock()
}

// holderToken releases the vaulted token only to its current holder.
func (s *apiServer) holderToken(gridID string, actor grid.Principal, h grid.Handle) (*grid.OwnershipToken, opResponse) {
	s.mu.Lock()
	tok := s.tokens[tokenKey{gridID, h}]
	s.mu.Unlock()
	if tok == nil {
		return nil, opResponse{ErrorCode: protocol.ErrNotFound, Error: "no token for " + string(h)}
	}
	if tok.Holder() != actor {
		return nil, opResponse{ErrorCode: protocol.ErrUnauthorized, Error: string(actor) + " does not hold the token for " + string(h)}
	}
	return tok, opResponse{}
}

func result(err error) opResponse {
	if err != nil {
		return errResp(err)
	}
	return opResponse{OK: true}
}

func errResp(err error) opResponse {
	return opResponse{ErrorCode: grid.CodeOf(err), Error: err.Error()}
}

func statusForCode(code string) int {
	switch code {
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrAlreadyExists, protocol.ErrInvalidState, protocol.ErrNoCapacity, protocol.ErrObligationUnresolved:
		return http.StatusConflict
	case protocol.ErrUnauthorized, protocol.ErrTypeMismatch:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeOp(rw http.ResponseWriter, status int, resp opResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(resp)
}
