package custody

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

type account struct {
	mint    solana.PublicKey
	owner   solana.PublicKey
	balance uint64
}

// Ledger is an in-memory custodian. Crediting an account that does not exist
// opens it for the mint being moved, the way an idempotent associated token
// account create would.
type Ledger struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*account
	logger   *zap.Logger
}

func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		accounts: make(map[solana.PublicKey]*account),
		logger:   logger,
	}
}

// OpenAccount creates an empty account. Reopening with the same mint and
// owner is a no-op.
func (l *Ledger) OpenAccount(ctx context.Context, acct, mint, owner solana.PublicKey) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.accounts[acct]; ok {
		if existing.mint == mint && existing.owner == owner {
			return nil
		}
		return fmt.Errorf("open %s: %w", acct, ErrAccountExists)
	}
	l.accounts[acct] = &account{mint: mint, owner: owner}
	l.logger.Debug("account opened", zap.Stringer("account", acct), zap.Stringer("mint", mint), zap.Stringer("owner", owner))
	return nil
}

// Mint credits newly issued tokens to acct, opening it if needed.
func (l *Ledger) Mint(ctx context.Context, acct, mint, owner solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.accounts[acct]
	if !ok {
		existing = &account{mint: mint, owner: owner}
		l.accounts[acct] = existing
	}
	if existing.mint != mint {
		return fmt.Errorf("mint to %s: %w", acct, ErrMintMismatch)
	}
	if existing.balance+amount < existing.balance {
		return fmt.Errorf("mint to %s: %w", acct, ErrBalanceOverflow)
	}
	existing.balance += amount
	return nil
}

func (l *Ledger) BalanceOf(ctx context.Context, acct solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.accounts[acct]
	if !ok {
		return 0, fmt.Errorf("balance of %s: %w", acct, ErrAccountNotFound)
	}
	return existing.balance, nil
}

// MintOf returns the mint an account holds.
func (l *Ledger) MintOf(acct solana.PublicKey) (solana.PublicKey, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing, ok := l.accounts[acct]
	if !ok {
		return solana.PublicKey{}, false
	}
	return existing.mint, true
}

func (l *Ledger) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64) error {
	return l.TransferBatch(ctx, []Move{{From: from, To: to, Amount: amount}})
}

// TransferBatch validates every move against a scratch copy of the touched
// balances and only then applies them.
func (l *Ledger) TransferBatch(ctx context.Context, moves []Move) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	scratch := make(map[solana.PublicKey]account)
	load := func(key solana.PublicKey) (account, bool) {
		if acct, ok := scratch[key]; ok {
			return acct, true
		}
		existing, ok := l.accounts[key]
		if !ok {
			return account{}, false
		}
		return *existing, true
	}

	for i, m := range moves {
		src, ok := load(m.From)
		if !ok {
			return fmt.Errorf("move %d from %s: %w", i, m.From, ErrAccountNotFound)
		}
		dst, ok := load(m.To)
		if !ok {
			dst = account{mint: src.mint}
		}
		if dst.mint != src.mint {
			return fmt.Errorf("move %d %s -> %s: %w", i, m.From, m.To, ErrMintMismatch)
		}
		if src.balance < m.Amount {
			return fmt.Errorf("move %d from %s: have %d want %d: %w", i, m.From, src.balance, m.Amount, ErrInsufficientFunds)
		}
		if m.From == m.To {
			continue
		}
		if dst.balance+m.Amount < dst.balance {
			return fmt.Errorf("move %d to %s: %w", i, m.To, ErrBalanceOverflow)
		}
		src.balance -= m.Amount
		dst.balance += m.Amount
		scratch[m.From] = src
		scratch[m.To] = dst
	}

	for key, acct := range scratch {
		stored, ok := l.accounts[key]
		if !ok {
			stored = &account{mint: acct.mint, owner: acct.owner}
			l.accounts[key] = stored
		}
		stored.balance = acct.balance
	}
	return nil
}

// Snapshot returns all balances keyed by account, sorted for stable output.
func (l *Ledger) Snapshot() []Balance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Balance, 0, len(l.accounts))
	for key, acct := range l.accounts {
		out = append(out, Balance{Account: key, Mint: acct.mint, Owner: acct.owner, Amount: acct.balance})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.String() < out[j].Account.String()
	})
	return out
}

// Balance is one row of a ledger snapshot.
type Balance struct {
	Account solana.PublicKey `json:"account"`
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Amount  uint64           `json:"amount"`
}

// Restore replaces the ledger contents with a snapshot.
func (l *Ledger) Restore(rows []Balance) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.accounts = make(map[solana.PublicKey]*account, len(rows))
	for _, row := range rows {
		l.accounts[row.Account] = &account{mint: row.Mint, owner: row.Owner, balance: row.Amount}
	}
}
