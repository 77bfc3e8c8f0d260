package credits

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"contentdesk/internal/queue"
)

const pendingDebitsFile = "pending_debits.json"

type UsageRequest struct {
	Amount        int    `json:"amount"`
	Description   string `json:"description"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
}

// Biller is the remote credit account.
type Biller interface {
	Balance(ctx context.Context) (int, error)
	Use(ctx context.Context, usage UsageRequest) error
}

type PendingDebit struct {
	Usage     UsageRequest `json:"usage"`
	QueuedAt  time.Time    `json:"queued_at"`
	LastError string       `json:"last_error,omitempty"`
}

type LedgerOptions struct {
	Biller  Biller
	Pricing Pricing
	DataDir string
}

// Ledger holds the process-wide balance. Only Debit lowers it; Reserve reads it.
type Ledger struct {
	mu       sync.Mutex
	balance  int
	hydrated bool
	debited  map[string]bool

	biller  Biller
	pricing Pricing
	pending *queue.Persistent[PendingDebit]
}

func NewLedger(opts LedgerOptions) (*Ledger, error) {
	pending, err := queue.NewPersistent[PendingDebit](opts.DataDir, pendingDebitsFile, 0)
	if err != nil {
		return nil, fmt.Errorf("open pending debits: %w", err)
	}

	return &Ledger{
		debited: make(map[string]bool),
		biller:  opts.Biller,
		pricing: opts.Pricing.WithDefaults(),
		pending: pending,
	}, nil
}

func (l *Ledger) Pricing() Pricing {
	return l.pricing
}

// Hydrate reads the remote balance into the ledger.
func (l *Ledger) Hydrate(ctx context.Context) (int, error) {
	balance, err := l.biller.Balance(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch credit balance: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = balance
	l.hydrated = true
	return balance, nil
}

func (l *Ledger) Balance() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

func (l *Ledger) Hydrated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hydrated
}

func (l *Ledger) Reserve(cost int) error {
	return Reserve(l.Balance(), cost)
}

// Debit records usage for an artifact that already exists. The local balance
// is lowered even when the remote call fails; the failed call is queued for
// Reconcile. A reference id is debited at most once per process.
func (l *Ledger) Debit(ctx context.Context, usage UsageRequest) error {
	if usage.Amount <= 0 {
		return nil
	}

	l.mu.Lock()
	if usage.ReferenceID != "" && l.debited[usage.ReferenceID] {
		l.mu.Unlock()
		slog.Debug("debit already recorded", "reference", usage.ReferenceID)
		return nil
	}
	if usage.ReferenceID != "" {
		l.debited[usage.ReferenceID] = true
	}
	l.balance = max(l.balance-usage.Amount, 0)
	l.mu.Unlock()

	if err := l.biller.Use(ctx, usage); err != nil {
		slog.Warn("debit failed, queued for reconciliation",
			"amount", usage.Amount,
			"reference", usage.ReferenceID,
			"error", err,
		)
		if qerr := l.pending.Add(PendingDebit{Usage: usage, QueuedAt: time.Now(), LastError: err.Error()}); qerr != nil {
			slog.Error("failed to queue debit", "reference", usage.ReferenceID, "error", qerr)
		}
		return fmt.Errorf("record usage: %w", err)
	}

	slog.Info("credits debited", "amount", usage.Amount, "reference", usage.ReferenceID)
	return nil
}

func (l *Ledger) PendingDebits() []PendingDebit {
	return l.pending.List()
}

// Reconcile retries queued debits. It returns how many were recorded.
func (l *Ledger) Reconcile(ctx context.Context) (int, error) {
	if l.pending.Len() == 0 {
		return 0, nil
	}

	done, err := l.pending.Drain(func(p PendingDebit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return l.biller.Use(ctx, p.Usage)
	})
	if done > 0 {
		slog.Info("reconciled pending debits", "count", done, "remaining", l.pending.Len())
	}
	if err != nil {
		return done, fmt.Errorf("reconcile debits: %w", err)
	}
	return done, nil
}
