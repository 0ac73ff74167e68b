package exec

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"xrpl-lp-bot/internal/ledger"
	"xrpl-lp-bot/internal/state"
	"xrpl-lp-bot/internal/xrpl"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Intent identifies one order of one cycle. Two submissions with the same
// intent are the same order.
type Intent struct {
	CycleID string    `msgpack:"c" json:"cycle_id"`
	Index   int       `msgpack:"i" json:"index"`
	Side    xrpl.Side `msgpack:"s" json:"side"`
	Price   float64   `msgpack:"p" json:"price"`
	Amount  float64   `msgpack:"a" json:"amount"`
}

// IntentDigest is the keccak256 of the msgpack-encoded intent, hex encoded.
func IntentDigest(intent Intent) (string, error) {
	payload, err := msgpack.Marshal(intent)
	if err != nil {
		return "", fmt.Errorf("encode intent: %w", err)
	}
	return hexutil.Encode(crypto.Keccak256(payload)), nil
}

// Submitter places offers and finds them again in the account history.
type Submitter interface {
	SubmitOffer(ctx context.Context, req xrpl.OfferRequest) (xrpl.SubmitResult, error)
	FindOffer(ctx context.Context, account, memo string) (xrpl.AppliedTx, bool, error)
}

const (
	StatusPending   = "pending"
	StatusSubmitted = "submitted"
)

// Record is what the store keeps per intent. A pending record means a
// submission was sent and its outcome is not yet known.
type Record struct {
	Status string    `json:"status"`
	TxHash string    `json:"tx_hash,omitempty"`
	Intent Intent    `json:"intent"`
	At     time.Time `json:"at"`
}

type Executor struct {
	submitter Submitter
	store     state.Store
	log       *zap.Logger
	now       func() time.Time

	attempts int
	backoff  time.Duration

	mu    sync.Mutex
	cache map[string]string
}

func New(submitter Submitter, store state.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		submitter: submitter,
		store:     store,
		log:       log,
		now:       time.Now,
		attempts:  5,
		backoff:   200 * time.Millisecond,
		cache:     make(map[string]string),
	}
}

// Submit places req once per intent and returns the transaction hash. The
// intent digest travels with the offer as a memo. When a submission's outcome
// is unknown the account history is searched for that memo before anything
// is sent again, and a pending record left by an earlier process is resolved
// the same way.
func (e *Executor) Submit(ctx context.Context, intent Intent, req xrpl.OfferRequest) (string, error) {
	digest, err := IntentDigest(intent)
	if err != nil {
		return "", err
	}
	key := state.OfferKeyPrefix + digest
	e.mu.Lock()
	if hash, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return hash, nil
	}
	e.mu.Unlock()

	req.Memo = digest
	record, ok, err := state.Load[Record](ctx, e.store, key)
	if err != nil {
		return "", fmt.Errorf("load offer record: %w", err)
	}
	if ok {
		switch record.Status {
		case StatusSubmitted:
			e.remember(key, record.TxHash)
			return record.TxHash, nil
		case StatusPending:
			applied, found, err := e.submitter.FindOffer(ctx, req.Account, digest)
			if err != nil {
				return "", fmt.Errorf("resolve pending offer: %w", err)
			}
			if found {
				return e.settle(ctx, key, intent, applied)
			}
		}
	}

	if err := state.Save(ctx, e.store, key, Record{Status: StatusPending, Intent: intent, At: e.now()}); err != nil {
		return "", fmt.Errorf("persist pending offer: %w", err)
	}
	result, err := e.submitWithRetry(ctx, req)
	if err != nil {
		if !errors.Is(err, ErrOutcomeUnknown) {
			e.forget(ctx, key)
		}
		return "", err
	}
	return e.finish(ctx, key, intent, result.TxHash)
}

// ResolvePending settles the pending records left behind by an earlier run
// against the account history. Records whose transaction never reached the
// ledger are dropped. It returns how many records were settled as submitted.
func (e *Executor) ResolvePending(ctx context.Context, account string) (int, error) {
	lister, ok := e.store.(state.Lister)
	if !ok {
		return 0, nil
	}
	entries, err := lister.List(ctx, state.OfferKeyPrefix)
	if err != nil {
		return 0, err
	}
	settled := 0
	for _, entry := range entries {
		record, ok, err := state.Load[Record](ctx, e.store, entry.Key)
		if err != nil || !ok || record.Status != StatusPending {
			continue
		}
		digest := strings.TrimPrefix(entry.Key, state.OfferKeyPrefix)
		applied, found, err := e.submitter.FindOffer(ctx, account, digest)
		if err != nil {
			return settled, fmt.Errorf("resolve %s: %w", entry.Key, err)
		}
		if !found {
			e.log.Warn("pending offer not on ledger, dropping", zap.String("key", entry.Key), zap.Time("sent", record.At))
			e.forget(ctx, entry.Key)
			continue
		}
		if _, err := e.settle(ctx, entry.Key, record.Intent, applied); err != nil {
			e.log.Warn("pending offer failed on ledger", zap.String("key", entry.Key), zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}

// settle finishes an intent from a transaction found on the ledger.
func (e *Executor) settle(ctx context.Context, key string, intent Intent, applied xrpl.AppliedTx) (string, error) {
	if !applied.Succeeded() {
		e.forget(ctx, key)
		return "", fmt.Errorf("%s %s: %w", applied.Result, applied.Hash, xrpl.ErrSubmitRejected)
	}
	return e.finish(ctx, key, intent, applied.Hash)
}

func (e *Executor) finish(ctx context.Context, key string, intent Intent, hash string) (string, error) {
	if hash == "" {
		return "", errors.New("empty transaction hash")
	}
	record := Record{Status: StatusSubmitted, TxHash: hash, Intent: intent, At: e.now()}
	if err := state.Save(ctx, e.store, key, record); err != nil {
		e.log.Warn("failed to persist offer hash", zap.String("key", key), zap.Error(err))
	}
	e.remember(key, hash)
	return hash, nil
}

func (e *Executor) forget(ctx context.Context, key string) {
	if e.store == nil {
		return
	}
	if err := e.store.Delete(ctx, key); err != nil {
		e.log.Warn("failed to clear offer record", zap.String("key", key), zap.Error(err))
	}
}

func (e *Executor) remember(key, hash string) {
	e.mu.Lock()
	e.cache[key] = hash
	e.mu.Unlock()
}

// submitWithRetry sends req until it is accepted or fails for good. After a
// failure whose outcome is unknown the ledger is checked for the memo first;
// only a confirmed absence leads to another send.
func (e *Executor) submitWithRetry(ctx context.Context, req xrpl.OfferRequest) (xrpl.SubmitResult, error) {
	var result xrpl.SubmitResult
	err := e.retry(ctx, func() error {
		var err error
		result, err = e.submitter.SubmitOffer(ctx, req)
		if err == nil || !outcomeUnknown(err) {
			return err
		}
		applied, found, lookupErr := e.submitter.FindOffer(ctx, req.Account, req.Memo)
		if lookupErr != nil {
			return fmt.Errorf("%w: %w (lookup: %v)", ErrOutcomeUnknown, err, lookupErr)
		}
		if !found {
			e.log.Info("offer not on ledger after unknown outcome, resending", zap.String("memo", req.Memo), zap.Error(err))
			return fmt.Errorf("%w: %w", errNotApplied, err)
		}
		if !applied.Succeeded() {
			return fmt.Errorf("%s %s: %w", applied.Result, applied.Hash, xrpl.ErrSubmitRejected)
		}
		result = xrpl.SubmitResult{EngineResult: applied.Result, TxHash: applied.Hash, Sequence: applied.Sequence}
		return nil
	})
	if err != nil {
		return xrpl.SubmitResult{}, err
	}
	if result.TxHash == "" {
		return xrpl.SubmitResult{}, errors.New("empty transaction hash")
	}
	return result, nil
}

// retry repeats fn while it fails with an error that guarantees the node did
// not apply the transaction.
func (e *Executor) retry(ctx context.Context, fn func() error) error {
	backoff := e.backoff
	for attempt := 0; attempt < e.attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt == e.attempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		e.log.Debug("submit retry", zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

var (
	// ErrOutcomeUnknown means a submission may have been applied and the
	// ledger could not be checked. The pending record is kept.
	ErrOutcomeUnknown = errors.New("offer outcome unknown")

	errNotApplied = errors.New("offer not applied")
)

func outcomeUnknown(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ledger.ErrConnectionClosed) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryable(err error) bool {
	if errors.Is(err, ledger.ErrNotConnected) || errors.Is(err, errNotApplied) {
		return true
	}
	for _, code := range []string{"tooBusy", "slowDown", "noNetwork", "noCurrent", "noClosed"} {
		if ledger.IsRPCCode(err, code) {
			return true
		}
	}
	return false
}
