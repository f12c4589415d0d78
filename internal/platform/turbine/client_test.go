package turbine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
)

const testKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func newTestSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testKey, 10143)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGetQuickMarketMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/quick-markets/BTC" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(APIQuickMarket{
			MarketID:        "mkt-btc-1756641600",
			Asset:           "BTC",
			IntervalMinutes: 15,
			StartPrice:      97_250_000_000,
			StartTime:       1_756_641_600,
			EndTime:         1_756_642_500,
			ContractAddress: "0xContract",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "")
	qm, err := c.GetQuickMarket(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("get quick market: %v", err)
	}
	if qm.MarketID != "mkt-btc-1756641600" || qm.StrikeTicks != 97_250_000_000 {
		t.Errorf("quick market = %+v", qm)
	}
	if !qm.StartTime.Equal(time.Unix(1_756_641_600, 0)) {
		t.Errorf("start time = %s", qm.StartTime)
	}
	if qm.EndTime.Sub(qm.StartTime) != 15*time.Minute {
		t.Errorf("interval = %s", qm.EndTime.Sub(qm.StartTime))
	}
}

func TestGetMarketNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such market"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "")
	_, err := c.GetMarket(context.Background(), "mkt-gone")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStatusMapping(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "{}", status)
	}))
	defer srv.Close()
	c := NewClient(srv.URL, nil, "")

	cases := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusUnprocessableEntity, domain.ErrInvalidOrder},
		{http.StatusForbidden, domain.ErrUnauthorized},
	}
	for _, tc := range cases {
		status = tc.code
		_, err := c.GetTrades(context.Background(), "mkt-1", 10)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: err = %v, want %v", tc.code, err, tc.want)
		}
	}
}

func TestPostOrderAuthenticatesLazily(t *testing.T) {
	var logins int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins++
			var req struct {
				Address   string `json:"address"`
				Signature string `json:"signature"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Signature == "" {
				t.Errorf("bad login request: %v", err)
			}
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
		case "/api/v1/orders":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
				t.Errorf("authorization = %q", got)
			}
			json.NewEncoder(w).Encode(APIOrderResult{Success: true, OrderHash: "0xhash", Status: "open"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSigner(t), "")
	order := SignedOrder{
		Payload:   crypto.OrderPayload{MarketID: "mkt-1", Price: 550_000, Size: 5_000_000},
		Signature: "0xsig",
	}

	result, err := c.PostOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("post order: %v", err)
	}
	if !result.Accepted || result.Hash != "0xhash" {
		t.Errorf("result = %+v", result)
	}

	// The bearer token is reused for the second submission.
	if _, err := c.PostOrder(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
}

func TestPostOrderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
		default:
			json.NewEncoder(w).Encode(APIOrderResult{Success: false, Message: "price outside band"})
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newTestSigner(t), "")
	_, err := c.PostOrder(context.Background(), SignedOrder{Signature: "0xsig"})
	if !errors.Is(err, domain.ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestGetClaimDataParsesStringAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("markets"); got != "0xA,0xB" {
			t.Errorf("markets = %q", got)
		}
		w.Write([]byte(`{"markets":[{
			"market_address":"0xA",
			"resolved":true,
			"winning_outcome":0,
			"winning_balance":"5000000",
			"ctf_nonce":"7",
			"condition_id":"0xcond"
		}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "")
	data, err := c.GetClaimData(context.Background(), "0xOwner", 10143, []string{"0xA", "0xB"})
	if err != nil {
		t.Fatalf("get claim data: %v", err)
	}
	if len(data) != 1 {
		t.Fatalf("entries = %d", len(data))
	}
	if data[0].WinningBalance != 5_000_000 || data[0].CTFNonce != 7 {
		t.Errorf("data = %+v", data[0])
	}
}

func TestGetContractNonce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/contracts/nonce/0xToken/0xOwner" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"nonce":11}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "")
	nonce, err := c.GetContractNonce(context.Background(), "0xToken", "0xOwner", 10143)
	if err != nil {
		t.Fatalf("get nonce: %v", err)
	}
	if nonce != 11 {
		t.Errorf("nonce = %d", nonce)
	}
}

func TestAPIKeyHeaderSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "key-abc" {
			t.Errorf("api key header = %q", got)
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, "key-abc")
	if _, err := c.GetTrades(context.Background(), "mkt-1", 0); err != nil {
		t.Fatal(err)
	}
}
