package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	apperrors "github.com/ProvChain-Network/provenance_layer/internal/errors"
)

// fakeLedger is a minimal JSON-RPC ledger: proofs appear one poll after
// submission, mimicking block confirmation delay.
type fakeLedger struct {
	mu        sync.Mutex
	submitted map[string]int // bundleID -> polls since submission
	anchored  map[string]int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{submitted: make(map[string]int), anchored: make(map[string]int64)}
}

func (l *fakeLedger) handler(w http.ResponseWriter, r *http.Request) {
	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var result interface{}
	switch req.Method {
	case "getblockcount":
		result = 12345
	case "getproof":
		id := req.Params[0].(string)
		if block, ok := l.anchored[id]; ok {
			result = Proof{BundleID: id, TxHash: "0xtx", BlockNumber: block}
			break
		}
		if polls, ok := l.submitted[id]; ok {
			if polls >= 1 {
				l.anchored[id] = 77
				result = Proof{BundleID: id, TxHash: "0xtx", BlockNumber: 77}
				break
			}
			l.submitted[id] = polls + 1
		}
		result = nil
	case "submitproof":
		id := req.Params[0].(string)
		l.submitted[id] = 0
		result = "0xtx"
	default:
		_ = json.NewEncoder(w).Encode(RPCResponse{
			JSONRPC: "2.0", ID: req.ID,
			Error: &RPCError{Code: -32601, Message: "method not found"},
		})
		return
	}

	raw, _ := json.Marshal(result)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: raw})
}

func newTestRegistry(t *testing.T) (*ProofRegistry, *fakeLedger) {
	t.Helper()
	ledger := newFakeLedger()
	server := httptest.NewServer(http.HandlerFunc(ledger.handler))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{RPCURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	registry := NewProofRegistry(client, nil)
	registry.pollInterval = 10 * time.Millisecond
	return registry, ledger
}

func TestGetBlockCount(t *testing.T) {
	registry, _ := newTestRegistry(t)

	count, err := registry.client.GetBlockCount(context.Background())
	if err != nil {
		t.Fatalf("get block count: %v", err)
	}
	if count != 12345 {
		t.Fatalf("expected 12345, got %d", count)
	}
}

func TestCallSurfacesRPCErrors(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.client.Call(context.Background(), "bogus", nil)
	if err == nil {
		t.Fatalf("expected RPC error")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32601 {
		t.Fatalf("expected method-not-found, got %v", err)
	}
}

func TestUploadProofSubmitsAndPolls(t *testing.T) {
	registry, ledger := newTestRegistry(t)

	block, err := registry.UploadProof(context.Background(), "0xbundle")
	if err != nil {
		t.Fatalf("upload proof: %v", err)
	}
	if block != 77 {
		t.Fatalf("expected block 77, got %d", block)
	}

	ledger.mu.Lock()
	if _, ok := ledger.anchored["0xbundle"]; !ok {
		ledger.mu.Unlock()
		t.Fatalf("expected bundle anchored on the ledger")
	}
	ledger.mu.Unlock()
}

func TestUploadProofIsIdempotent(t *testing.T) {
	registry, ledger := newTestRegistry(t)

	ledger.mu.Lock()
	ledger.anchored["0xbundle"] = 33
	ledger.mu.Unlock()

	block, err := registry.UploadProof(context.Background(), "0xbundle")
	if err != nil {
		t.Fatalf("upload proof: %v", err)
	}
	if block != 33 {
		t.Fatalf("expected existing block 33, got %d", block)
	}

	ledger.mu.Lock()
	submitted := len(ledger.submitted)
	ledger.mu.Unlock()
	if submitted != 0 {
		t.Fatalf("already-anchored bundle must not be resubmitted")
	}
}

func TestUploadProofUnavailableLedger(t *testing.T) {
	client, err := NewClient(Config{RPCURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	registry := NewProofRegistry(client, nil)

	_, err = registry.UploadProof(context.Background(), "0xbundle")
	if !apperrors.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
