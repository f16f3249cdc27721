package rpc_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/AntoineMrtl/oracle-swap-back/internal/journal"
	"github.com/AntoineMrtl/oracle-swap-back/internal/log"
	"github.com/AntoineMrtl/oracle-swap-back/internal/rpc"
	jtx "github.com/AntoineMrtl/oracle-swap-back/internal/testing"
)

func newServer(t *testing.T, env *jtx.TestEnv, opts ...rpc.Option) *httptest.Server {
	t.Helper()
	s := rpc.NewServer(env.Pool(), 5*time.Second, log.NewDiscardLogger(), opts...)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func fundedEnv(t *testing.T) *jtx.TestEnv {
	env := jtx.NewTestEnv(t)
	env.Fund(jtx.NewAccount("alice"), "100", "100")
	env.SetPrices("20000", "1800")
	return env
}

// call posts one request and returns the result object.
func call(t *testing.T, srv *httptest.Server, method string, params interface{}) map[string]interface{} {
	t.Helper()
	req := rpc.Request{Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = []json.RawMessage{raw}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Result)
	return out.Result
}

func requireSuccess(t *testing.T, result map[string]interface{}) {
	t.Helper()
	require.Equal(t, "success", result["status"], "result: %v", result)
}

func requireError(t *testing.T, result map[string]interface{}, token string) {
	t.Helper()
	require.Equal(t, "error", result["status"])
	require.Equal(t, token, result["error"], "result: %v", result)
}

func encode(batch [][]byte) []string {
	out := make([]string, len(batch))
	for i, p := range batch {
		out[i] = base64.StdEncoding.EncodeToString(p)
	}
	return out
}

func TestPoolInfoOverGet(t *testing.T) {
	env := fundedEnv(t)
	srv := newServer(t, env)

	resp, err := http.Get(srv.URL + "?command=pool_info")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Result struct {
			Status   string `json:"status"`
			Reserves struct {
				A string `json:"a"`
				B string `json:"b"`
			} `json:"reserves"`
			TotalShares string `json:"total_shares"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "success", out.Result.Status)
	require.Equal(t, jtx.Units("100").String(), out.Result.Reserves.A)
	require.Equal(t, jtx.Units("100").String(), out.Result.Reserves.B)
	require.NotEmpty(t, out.Result.TotalShares)
}

func TestGetPriceOverGet(t *testing.T) {
	env := fundedEnv(t)
	srv := newServer(t, env)

	resp, err := http.Get(srv.URL + "?command=get_price&asset=eth")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Result struct {
			Status string `json:"status"`
			ID     string `json:"id"`
			Price  struct {
				Price int64 `json:"price"`
				Expo  int32 `json:"expo"`
			} `json:"price"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "success", out.Result.Status)
	require.Equal(t, env.Config().Assets[1].Feed.String(), out.Result.ID)
	require.Equal(t, jtx.PriceMantissa("1800"), out.Result.Price.Price)
	require.Equal(t, jtx.PriceExpo, out.Result.Price.Expo)
}

func TestGetPrice(t *testing.T) {
	env := jtx.NewTestEnv(t)
	srv := newServer(t, env)

	result := call(t, srv, "get_price", map[string]string{"asset": "BTC"})
	requireError(t, result, "tecUNKNOWN_FEED")
	require.EqualValues(t, 171, result["error_code"])

	env.SetPrices("20000", "1800")
	result = call(t, srv, "get_price", map[string]string{"feed": env.Config().Assets[0].Feed.String()})
	requireSuccess(t, result)

	env.AdvanceTime(2 * time.Minute)
	result = call(t, srv, "get_price", map[string]string{"asset": "BTC"})
	requireError(t, result, "tecSTALE_PRICE")

	result = call(t, srv, "get_price_unsafe", map[string]string{"asset": "BTC"})
	requireSuccess(t, result)

	result = call(t, srv, "get_price", map[string]string{"asset": "DOGE"})
	requireError(t, result, "invalidParams")

	result = call(t, srv, "get_price", nil)
	requireError(t, result, "invalidParams")
}

func TestUpdatePriceFeeds(t *testing.T) {
	env := jtx.NewTestEnv(t)
	srv := newServer(t, env)
	updates := encode(env.Updates("20000", "1800"))

	result := call(t, srv, "update_fee", map[string]interface{}{"updates": updates})
	requireSuccess(t, result)
	require.Equal(t, "2", result["fee"])

	result = call(t, srv, "update_price_feeds", map[string]interface{}{"updates": updates, "fee": "1"})
	requireError(t, result, "tecINSUFFICIENT_FEE")

	result = call(t, srv, "update_price_feeds", map[string]interface{}{"updates": updates, "fee": "10"})
	requireSuccess(t, result)
	require.Equal(t, "2", result["fee"])
	require.Equal(t, "8", result["refund"])

	result = call(t, srv, "update_price_feeds", map[string]interface{}{"updates": []string{"not base64!"}, "fee": "10"})
	requireError(t, result, "oracleMalformed")
}

func TestQuote(t *testing.T) {
	env := fundedEnv(t)
	srv := newServer(t, env)

	result := call(t, srv, "quote", map[string]string{
		"direction": "b_to_a",
		"amount_in": jtx.Units("10").String(),
	})
	requireSuccess(t, result)
	require.Equal(t, jtx.Units("0.9").String(), result["amount_out"])
	require.Equal(t, "b_to_a", result["direction"])

	result = call(t, srv, "quote", map[string]string{"direction": "b_to_a"})
	requireError(t, result, "invalidParams")

	result = call(t, srv, "quote", map[string]string{"direction": "sideways", "amount_in": "1"})
	requireError(t, result, "invalidParams")
}

func TestSwap(t *testing.T) {
	env := fundedEnv(t)
	srv := newServer(t, env)

	result := call(t, srv, "swap", map[string]interface{}{
		"direction":      "b_to_a",
		"amount_in":      jtx.Units("10").String(),
		"min_amount_out": jtx.Units("0.9").String(),
		"updates":        encode(env.Updates("20000", "1800")),
		"fee":            "5",
	})
	requireSuccess(t, result)
	require.Equal(t, "swap", result["kind"])
	require.Equal(t, jtx.Units("0.9").String(), result["amount_out"])
	require.Equal(t, "2", result["fee"])
	require.Equal(t, "3", result["refund"])
	jtx.RequireReserves(t, env, "99.1", "110")

	result = call(t, srv, "swap", map[string]interface{}{
		"direction":      "b_to_a",
		"amount_in":      jtx.Units("10").String(),
		"min_amount_out": jtx.Units("1").String(),
	})
	requireError(t, result, "tecSLIPPAGE")
	require.EqualValues(t, 164, result["error_code"])
	require.NotNil(t, result["request"], "error responses echo the request")
	jtx.RequireReserves(t, env, "99.1", "110")
}

func TestArbitrate(t *testing.T) {
	env := fundedEnv(t)
	srv := newServer(t, env)

	result := call(t, srv, "arbitrate", map[string]interface{}{"amount_in": jtx.Units("1").String()})
	requireSuccess(t, result)
	require.Equal(t, "arbitrate", result["kind"])
}

func TestLiquidity(t *testing.T) {
	env := fundedEnv(t)
	srv := newServer(t, env)

	result := call(t, srv, "add_liquidity", map[string]string{
		"provider": "bob",
		"amount_a": jtx.Units("10").String(),
		"amount_b": jtx.Units("10").String(),
	})
	requireSuccess(t, result)
	shares := result["shares"].(string)
	require.NotEqual(t, "0", shares)

	result = call(t, srv, "remove_liquidity", map[string]string{"provider": "bob", "shares": shares})
	requireSuccess(t, result)
	require.Equal(t, jtx.Units("10").String(), result["amount_a"])
	require.Equal(t, jtx.Units("10").String(), result["amount_b"])

	result = call(t, srv, "remove_liquidity", map[string]string{"provider": "bob", "shares": shares})
	requireError(t, result, "tecINSUFFICIENT_SHARES")

	result = call(t, srv, "add_liquidity", map[string]string{"provider": "bob", "amount_a": "0", "amount_b": "1"})
	requireError(t, result, "temZERO_AMOUNT")

	result = call(t, srv, "add_liquidity", map[string]string{"amount_a": "1", "amount_b": "1"})
	requireError(t, result, "invalidParams")
}

func TestRequestErrors(t *testing.T) {
	env := jtx.NewTestEnv(t)
	srv := newServer(t, env)

	result := call(t, srv, "does_not_exist", nil)
	requireError(t, result, "unknownCmd")

	post := func(body string) map[string]interface{} {
		resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		var out struct {
			Result map[string]interface{} `json:"result"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out.Result
	}
	requireError(t, post("{"), "jsonInvalid")
	requireError(t, post(`{"params":[{}]}`), "missingCommand")

	req, err := http.NewRequest(http.MethodPut, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMaxBodySize(t *testing.T) {
	env := jtx.NewTestEnv(t)
	srv := newServer(t, env, rpc.WithMaxBodySize(64))

	body := `{"method":"ping","params":[{"pad":"` + strings.Repeat("x", 128) + `"}]}`
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	requireError(t, out.Result, "invalidParams")
}

type fakeJournal struct {
	op    string
	limit int
}

func (f *fakeJournal) Recent(_ context.Context, op string, limit int) ([]journal.Entry, error) {
	f.op, f.limit = op, limit
	return []journal.Entry{{ID: 7, Op: op, Result: "tesSUCCESS"}}, nil
}

func TestOperations(t *testing.T) {
	env := jtx.NewTestEnv(t)

	srv := newServer(t, env)
	requireError(t, call(t, srv, "operations", nil), "unknownCmd")

	j := &fakeJournal{}
	srv = newServer(t, env, rpc.WithJournal(j))

	result := call(t, srv, "operations", map[string]interface{}{"op": "swap"})
	requireSuccess(t, result)
	require.Equal(t, "swap", j.op)
	require.Equal(t, rpc.DefaultOperationsLimit, j.limit)
	ops := result["operations"].([]interface{})
	require.Len(t, ops, 1)
	require.EqualValues(t, 7, ops[0].(map[string]interface{})["id"])

	result = call(t, srv, "operations", map[string]interface{}{"limit": journal.MaxLimit + 1})
	requireError(t, result, "invalidParams")
}

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingObserver) ObserveRPC(method, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, method+"/"+status)
}

func TestRequestObserver(t *testing.T) {
	env := jtx.NewTestEnv(t)
	obs := &recordingObserver{}
	srv := newServer(t, env, rpc.WithRequestObserver(obs))

	call(t, srv, "ping", nil)
	call(t, srv, "quote", map[string]string{"direction": "a_to_b", "amount_in": "1"})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []string{"ping/success", "quote/tecUNKNOWN_FEED"}, obs.calls)
}

func TestMethods(t *testing.T) {
	env := jtx.NewTestEnv(t)
	s := rpc.NewServer(env.Pool(), time.Second, log.NewDiscardLogger())
	require.Equal(t, []string{
		"add_liquidity", "arbitrate", "get_price", "get_price_unsafe", "ping", "pool_info",
		"quote", "remove_liquidity", "swap", "update_fee", "update_price_feeds",
	}, s.Methods())
}

func TestWebSocketStream(t *testing.T) {
	env := fundedEnv(t)
	s := rpc.NewServer(env.Pool(), 5*time.Second, log.NewDiscardLogger())
	ws := rpc.NewWebSocketServer(s)
	env.Pool().Subscribe(ws.Observer())
	srv := httptest.NewServer(ws)
	t.Cleanup(func() {
		ws.CloseAll()
		srv.Close()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Commands are served over the socket.
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"command":   "quote",
		"id":        1,
		"direction": "b_to_a",
		"amount_in": jtx.Units("10").String(),
	}))
	var resp struct {
		Type   string                 `json:"type"`
		ID     int                    `json:"id"`
		Status string                 `json:"status"`
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "response", resp.Type)
	require.Equal(t, 1, resp.ID)
	require.Equal(t, "success", resp.Status)
	require.Equal(t, jtx.Units("0.9").String(), resp.Result["amount_out"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"command": "subscribe", "id": 2}))
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "success", resp.Status)
	require.Equal(t, 2, resp.ID)

	env.Fund(jtx.NewAccount("bob"), "1", "1")

	var ev rpc.PoolEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "poolEvent", ev.Type)
	require.Equal(t, "add_liquidity", ev.Op)
	require.Equal(t, "tesSUCCESS", ev.EngineResult)
	require.NotNil(t, ev.Liquidity)
	require.Equal(t, "bob", ev.Liquidity.Provider)
	require.NotNil(t, ev.Reserves)
	jtx.RequireAmount(t, jtx.Units("101"), ev.Reserves.A)

	_, _, err = env.Pool().RemoveLiquidity("carol", jtx.Units("1"))
	require.Error(t, err)
	var rejected rpc.PoolEvent
	require.NoError(t, conn.ReadJSON(&rejected))
	require.Equal(t, "remove_liquidity", rejected.Op)
	require.Equal(t, "tecINSUFFICIENT_SHARES", rejected.EngineResult)
	require.Nil(t, rejected.Reserves)
}
