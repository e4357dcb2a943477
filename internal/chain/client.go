// Package chain is the contract surface adapter: batched and single reads,
// signed sends, inclusion waits and log watching over one JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/metrics"
)

// Config holds adapter parameters.
type Config struct {
	RPCURL              string
	WSURL               string
	ChainID             int64
	RateLimitPerSec     float64
	MaxBatchSize        int
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
	LogPollInterval     time.Duration
	GasBufferPercent    int
	NonceLockTTL        time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 100
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = time.Second
	}
	if c.ReceiptTimeout <= 0 {
		c.ReceiptTimeout = 2 * time.Minute
	}
	if c.LogPollInterval <= 0 {
		c.LogPollInterval = 3 * time.Second
	}
	if c.GasBufferPercent < 0 {
		c.GasBufferPercent = 0
	}
	if c.NonceLockTTL <= 0 {
		c.NonceLockTTL = 30 * time.Second
	}
}

// TxSigner signs transactions for the connected account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// backend is the subset of ethclient.Client the adapter uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

type subscriber interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

type rpcCaller interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	BatchCallContext(ctx context.Context, b []rpc.BatchElem) error
}

// Client talks to one EVM endpoint on behalf of one optional wallet.
type Client struct {
	cfg     Config
	eth     backend
	rpc     rpcCaller
	subs    subscriber
	signer  TxSigner
	locks   domain.LockManager
	limiter *rate.Limiter
	logger  *slog.Logger

	sendMu  sync.Mutex
	closers []func()
}

// Dial connects to cfg.RPCURL (and cfg.WSURL for subscriptions when set) and
// checks the endpoint serves cfg.ChainID. signer and locks may be nil; without
// a signer the client is read-only.
func Dial(ctx context.Context, cfg Config, signer TxSigner, locks domain.LockManager, logger *slog.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}
	ec := ethclient.NewClient(rc)

	c := newClient(cfg, ec, rc, signer, locks, logger)
	c.closers = append(c.closers, rc.Close)

	if cfg.WSURL != "" {
		ws, err := ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			c.logger.WarnContext(ctx, "chain: websocket dial failed, log watching will poll",
				slog.String("ws_url", cfg.WSURL),
				slog.String("error", err.Error()),
			)
		} else {
			c.subs = ws
			c.closers = append(c.closers, ws.Close)
		}
	} else if strings.HasPrefix(cfg.RPCURL, "ws") {
		c.subs = ec
	}

	id, err := ec.ChainID(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if cfg.ChainID > 0 && id.Int64() != cfg.ChainID {
		c.Close()
		return nil, fmt.Errorf("chain: endpoint serves chain %s, configured %d", id, cfg.ChainID)
	}
	c.cfg.ChainID = id.Int64()

	c.logger.InfoContext(ctx, "chain: connected",
		slog.String("rpc_url", cfg.RPCURL),
		slog.String("chain_id", id.String()),
		slog.Bool("subscriptions", c.subs != nil),
		slog.Bool("wallet", signer != nil),
	)
	return c, nil
}

func newClient(cfg Config, eth backend, rc rpcCaller, signer TxSigner, locks domain.LockManager, logger *slog.Logger) *Client {
	cfg.applyDefaults()
	var limiter *rate.Limiter
	if cfg.RateLimitPerSec > 0 {
		burst := int(cfg.RateLimitPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), burst)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:     cfg,
		eth:     eth,
		rpc:     rc,
		signer:  signer,
		locks:   locks,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "chain")),
	}
}

// Close releases the underlying connections.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Account returns the connected wallet address, if any.
func (c *Client) Account() (common.Address, bool) {
	if c.signer == nil {
		return common.Address{}, false
	}
	return c.signer.Address(), true
}

// Ping checks the endpoint answers eth_blockNumber.
func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	_, err := c.eth.BlockNumber(ctx)
	observe("eth_blockNumber", start, err)
	if err != nil {
		return fmt.Errorf("chain: ping: %w", err)
	}
	return nil
}

func (c *Client) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) callArgs(to common.Address, data []byte) map[string]any {
	args := map[string]any{
		"to":   to,
		"data": hexutil.Bytes(data),
	}
	if c.signer != nil {
		args["from"] = c.signer.Address()
	}
	return args
}

// ReadOne performs a single eth_call and decodes its outputs.
func (c *Client) ReadOne(ctx context.Context, call Call) ([]any, error) {
	data, err := call.Pack()
	if err != nil {
		return nil, err
	}
	if err := c.throttle(ctx); err != nil {
		return nil, fmt.Errorf("chain: read %s: %w", call.Method, err)
	}

	var out hexutil.Bytes
	start := time.Now()
	err = c.rpc.CallContext(ctx, &out, "eth_call", c.callArgs(call.To, data), "latest")
	observe("eth_call", start, err)
	if err != nil {
		return nil, fmt.Errorf("chain: read %s: %w", call.Method, classify("eth_call", err))
	}
	return call.Unpack(out)
}

// ReadMany sends all calls as JSON-RPC batches of at most MaxBatchSize and
// returns one Result per call in request order. Element failures are reported
// in Result.Err; the error return is reserved for transport failure.
func (c *Client) ReadMany(ctx context.Context, calls []Call) ([]Result, error) {
	results := make([]Result, len(calls))
	size := c.cfg.MaxBatchSize
	for start := 0; start < len(calls); start += size {
		end := min(start+size, len(calls))
		if err := c.readChunk(ctx, calls[start:end], results[start:end]); err != nil {
			return nil, fmt.Errorf("chain: read batch: %w", err)
		}
	}
	return results, nil
}

func (c *Client) readChunk(ctx context.Context, calls []Call, out []Result) error {
	bufs := make([]hexutil.Bytes, len(calls))
	elems := make([]rpc.BatchElem, 0, len(calls))
	index := make([]int, 0, len(calls))

	for i, call := range calls {
		data, err := call.Pack()
		if err != nil {
			out[i] = Result{Err: err}
			continue
		}
		elems = append(elems, rpc.BatchElem{
			Method: "eth_call",
			Args:   []any{c.callArgs(call.To, data), "latest"},
			Result: &bufs[i],
		})
		index = append(index, i)
	}
	if len(elems) == 0 {
		return nil
	}
	if err := c.throttle(ctx); err != nil {
		return err
	}

	start := time.Now()
	err := c.rpc.BatchCallContext(ctx, elems)
	observe("eth_call_batch", start, err)
	metrics.BatchSize.Observe(float64(len(elems)))
	if err != nil {
		return err
	}

	for j, el := range elems {
		i := index[j]
		if el.Error != nil {
			out[i] = Result{Err: classify("eth_call", el.Error)}
			continue
		}
		vals, err := calls[i].Unpack(bufs[i])
		out[i] = Result{Values: vals, Err: err}
	}
	return nil
}

// Send signs and broadcasts a transaction invoking call from the connected
// account. Gas is estimated first, so most reverts surface here with their
// reason before anything is broadcast.
func (c *Client) Send(ctx context.Context, call Call) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", call.Method, domain.ErrWalletNotConnected)
	}
	data, err := call.Pack()
	if err != nil {
		return common.Hash{}, err
	}
	from := c.signer.Address()

	unlock, err := c.lockNonce(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: nonce lock: %w", call.Method, err)
	}
	defer unlock()

	if err := c.throttle(ctx); err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", call.Method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: nonce: %w", call.Method, classify("eth_getTransactionCount", err))
	}

	to := call.To
	start := time.Now()
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	observe("eth_estimateGas", start, err)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: estimate gas: %w", call.Method, classify("eth_estimateGas", err))
	}
	gas = gas * uint64(100+c.cfg.GasBufferPercent) / 100

	tx, err := c.buildTx(ctx, nonce, to, gas, data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", call.Method, err)
	}

	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w: %v", call.Method, domain.ErrSigningFailed, err)
	}

	start = time.Now()
	err = c.eth.SendTransaction(ctx, signed)
	observe("eth_sendRawTransaction", start, err)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: send %s: %w", call.Method, classify("eth_sendRawTransaction", err))
	}
	metrics.TxSentTotal.WithLabelValues(call.Method).Inc()

	c.logger.InfoContext(ctx, "chain: transaction sent",
		slog.String("method", call.Method),
		slog.String("to", to.Hex()),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas),
	)
	return signed.Hash(), nil
}

// lockNonce serialises nonce allocation per account. With a shared
// LockManager this also holds across processes.
func (c *Client) lockNonce(ctx context.Context, from common.Address) (func(), error) {
	if c.locks != nil {
		return c.locks.Acquire(ctx, "nonce:"+from.Hex(), c.cfg.NonceLockTTL)
	}
	c.sendMu.Lock()
	return c.sendMu.Unlock, nil
}

func (c *Client) buildTx(ctx context.Context, nonce uint64, to common.Address, gas uint64, data []byte) (*types.Transaction, error) {
	head, err := c.eth.HeaderByNumber(ctx, nil)
	if err == nil && head.BaseFee != nil {
		tip, err := c.eth.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas tip: %w", classify("eth_maxPriorityFeePerGas", err))
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(c.cfg.ChainID),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Data:      data,
		}), nil
	}

	price, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", classify("eth_gasPrice", err))
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: price,
		Gas:      gas,
		To:       &to,
		Data:     data,
	}), nil
}

// AwaitInclusion polls for the receipt of hash until it is mined or
// ReceiptTimeout elapses. A mined but failed transaction returns the receipt
// together with a *domain.RevertError.
func (c *Client) AwaitInclusion(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("chain: tx %s: %w", hash.Hex(),
					&domain.RevertError{Reason: "transaction failed on chain"})
			}
			c.logger.DebugContext(ctx, "chain: transaction included",
				slog.String("tx", hash.Hex()),
				slog.Any("block", receipt.BlockNumber),
				slog.Uint64("gas_used", receipt.GasUsed),
			)
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.logger.DebugContext(ctx, "chain: receipt lookup failed",
				slog.String("tx", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, fmt.Errorf("chain: await %s: %w", hash.Hex(), ctx.Err())
			}
			return nil, fmt.Errorf("chain: await %s: %w", hash.Hex(), domain.ErrInclusionTimeout)
		case <-ticker.C:
		}
	}
}

// WatchLogs streams logs emitted by address whose first topic is one of
// topics. It subscribes when a websocket endpoint is available and otherwise
// polls eth_getLogs from the current head. The channel closes when ctx ends.
func (c *Client) WatchLogs(ctx context.Context, address common.Address, topics []common.Hash) (<-chan types.Log, error) {
	q := ethereum.FilterQuery{Addresses: []common.Address{address}}
	if len(topics) > 0 {
		q.Topics = [][]common.Hash{topics}
	}
	out := make(chan types.Log, 16)

	if c.subs != nil {
		raw := make(chan types.Log, 16)
		sub, err := c.subs.SubscribeFilterLogs(ctx, q, raw)
		if err == nil {
			go c.forwardSubscription(ctx, q, sub, raw, out)
			return out, nil
		}
		c.logger.WarnContext(ctx, "chain: log subscription failed, polling instead",
			slog.String("address", address.Hex()),
			slog.String("error", err.Error()),
		)
	}

	head, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: watch logs: %w", classify("eth_blockNumber", err))
	}
	go c.pollLogs(ctx, q, head+1, out)
	return out, nil
}

func (c *Client) forwardSubscription(ctx context.Context, q ethereum.FilterQuery, sub ethereum.Subscription, raw <-chan types.Log, out chan<- types.Log) {
	defer sub.Unsubscribe()
	var last uint64
	for {
		select {
		case <-ctx.Done():
			close(out)
			return
		case err := <-sub.Err():
			c.logger.WarnContext(ctx, "chain: log subscription dropped, polling instead",
				slog.Any("error", err),
			)
			next := last + 1
			if last == 0 {
				head, herr := c.eth.BlockNumber(ctx)
				if herr != nil {
					close(out)
					return
				}
				next = head + 1
			}
			c.pollLogs(ctx, q, next, out)
			return
		case l := <-raw:
			last = l.BlockNumber
			select {
			case out <- l:
			case <-ctx.Done():
				close(out)
				return
			}
		}
	}
}

func (c *Client) pollLogs(ctx context.Context, q ethereum.FilterQuery, next uint64, out chan<- types.Log) {
	defer close(out)
	ticker := time.NewTicker(c.cfg.LogPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := c.eth.BlockNumber(ctx)
		if err != nil || head < next {
			continue
		}
		q.FromBlock = new(big.Int).SetUint64(next)
		q.ToBlock = new(big.Int).SetUint64(head)

		start := time.Now()
		logs, err := c.eth.FilterLogs(ctx, q)
		observe("eth_getLogs", start, err)
		if err != nil {
			c.logger.DebugContext(ctx, "chain: get logs failed", slog.String("error", err.Error()))
			continue
		}
		for _, l := range logs {
			select {
			case out <- l:
			case <-ctx.Done():
				return
			}
		}
		next = head + 1
	}
}

// classify turns node errors into domain errors, decoding revert payloads.
func classify(method string, err error) error {
	if err == nil {
		return nil
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw := revertData(dataErr.ErrorData()); len(raw) > 0 {
			reason, uerr := abi.UnpackRevert(raw)
			if uerr != nil {
				reason = ""
			}
			metrics.RPCErrorsTotal.WithLabelValues(method, "revert").Inc()
			return &domain.RevertError{Reason: reason, Data: raw}
		}
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		msg := rpcErr.Error()
		if rest, ok := strings.CutPrefix(msg, "execution reverted"); ok {
			metrics.RPCErrorsTotal.WithLabelValues(method, "revert").Inc()
			return &domain.RevertError{Reason: strings.TrimPrefix(rest, ": ")}
		}
		metrics.RPCErrorsTotal.WithLabelValues(method, "rpc").Inc()
		return &domain.RPCError{Method: method, Code: rpcErr.ErrorCode(), Message: msg}
	}
	return err
}

func revertData(v any) []byte {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil {
			return nil
		}
		return b
	case []byte:
		return d
	case hexutil.Bytes:
		return d
	}
	return nil
}

func observe(method string, start time.Time, err error) {
	metrics.RPCCallsTotal.WithLabelValues(method).Inc()
	metrics.RPCLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		var rpcErr rpc.Error
		if !errors.As(err, &rpcErr) {
			metrics.RPCErrorsTotal.WithLabelValues(method, "transport").Inc()
		}
	}
}
