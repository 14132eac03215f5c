package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/mobile-money/internal/domain"
	"github.com/shopspring/decimal"
)

// In-memory stores with the same contracts as the Postgres repositories, for
// service tests that do not need a container.

type Accounts struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Account
}

func NewAccounts(seed ...domain.Account) *Accounts {
	s := &Accounts{byID: make(map[uuid.UUID]domain.Account)}
	for _, a := range seed {
		a.Phone = domain.NormalizePhone(a.Phone)
		s.byID[a.ID] = a
	}
	return s
}

func (s *Accounts) Put(a domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Phone = domain.NormalizePhone(a.Phone)
	s.byID[a.ID] = a
}

func (s *Accounts) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (s *Accounts) GetByPhone(_ context.Context, phone string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.Phone == phone {
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Accounts) ListByPhoneSuffix(_ context.Context, suffix string, limit int) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Account
	for _, a := range s.byID {
		if domain.PhoneSuffix(a.Phone) == suffix {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Accounts) CreateIfAbsent(_ context.Context, a *domain.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[a.ID]; ok {
		return false, nil
	}
	for _, existing := range s.byID {
		if existing.Phone == a.Phone {
			return false, nil
		}
	}
	s.byID[a.ID] = *a
	return true, nil
}

func (s *Accounts) UpdateCachedBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Balance = balance
	s.byID[id] = a
	return nil
}

func (s *Accounts) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type Transfers struct {
	mu      sync.Mutex
	records []domain.TransferRecord
	// CreateErr, when set, fails every Create.
	CreateErr error
}

func NewTransfers() *Transfers {
	return &Transfers{}
}

func (s *Transfers) Create(_ context.Context, t *domain.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	for _, r := range s.records {
		if r.OperationID == t.OperationID {
			return domain.ErrDuplicateOperation
		}
		if t.ClaimCode != nil && r.ClaimCode != nil && *r.ClaimCode == *t.ClaimCode {
			return domain.ErrDuplicateCode
		}
	}
	s.records = append(s.records, *t)
	return nil
}

func (s *Transfers) find(match func(domain.TransferRecord) bool) (*domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if match(r) {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Transfers) GetByID(_ context.Context, id uuid.UUID) (*domain.TransferRecord, error) {
	return s.find(func(r domain.TransferRecord) bool { return r.ID == id })
}

func (s *Transfers) GetByOperationID(_ context.Context, id uuid.UUID) (*domain.TransferRecord, error) {
	return s.find(func(r domain.TransferRecord) bool { return r.OperationID == id })
}

func (s *Transfers) GetByClaimCode(_ context.Context, code string) (*domain.TransferRecord, error) {
	return s.find(func(r domain.TransferRecord) bool { return r.ClaimCode != nil && *r.ClaimCode == code })
}

func (s *Transfers) ListForAccount(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransferRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Deleted {
			continue
		}
		if r.SenderID == accountID || (r.RecipientID != nil && *r.RecipientID == accountID) {
			out = append(out, r)
		}
	}
	return page(out, limit, offset), nil
}

func (s *Transfers) ListSettledSince(_ context.Context, since time.Time) ([]domain.TransferRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransferRecord
	for _, r := range s.records {
		if r.Status != domain.TransferStatusPendingClaim && !r.CreatedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Transfers) SoftDelete(_ context.Context, id, senderID uuid.UUID) error {
	return s.update(id, func(r *domain.TransferRecord) bool {
		if r.SenderID != senderID || r.Deleted {
			return false
		}
		r.Deleted = true
		return true
	}, domain.ErrNotFound)
}

func (s *Transfers) MarkClaimed(_ context.Context, id, recipientID uuid.UUID, recipientName string) error {
	return s.update(id, func(r *domain.TransferRecord) bool {
		if r.Status != domain.TransferStatusPendingClaim {
			return false
		}
		r.Status = domain.TransferStatusClaimed
		r.RecipientID = &recipientID
		r.RecipientName = recipientName
		return true
	}, domain.ErrAlreadyRedeemed)
}

func (s *Transfers) ReleaseClaim(_ context.Context, id, recipientID uuid.UUID) error {
	_ = s.update(id, func(r *domain.TransferRecord) bool {
		if r.Status != domain.TransferStatusClaimed || r.RecipientID == nil || *r.RecipientID != recipientID {
			return false
		}
		r.Status = domain.TransferStatusPendingClaim
		r.RecipientID = nil
		return true
	}, nil)
	return nil
}

func (s *Transfers) update(id uuid.UUID, fn func(*domain.TransferRecord) bool, miss error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if fn(&s.records[i]) {
				s.records[i].UpdatedAt = time.Now().UTC()
				return nil
			}
			return miss
		}
	}
	return miss
}

func (s *Transfers) All() []domain.TransferRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TransferRecord, len(s.records))
	copy(out, s.records)
	return out
}

type Withdrawals struct {
	mu       sync.Mutex
	requests []domain.WithdrawalRequest
}

func NewWithdrawals() *Withdrawals {
	return &Withdrawals{}
}

func (s *Withdrawals) Create(_ context.Context, w *domain.WithdrawalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.VerificationCode == w.VerificationCode && r.Status.IsRedeemable() {
			return domain.ErrDuplicateCode
		}
	}
	s.requests = append(s.requests, *w)
	return nil
}

func (s *Withdrawals) GetByID(_ context.Context, id uuid.UUID) (*domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Withdrawals) GetByCode(_ context.Context, code string) (*domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.WithdrawalRequest
	for i := len(s.requests) - 1; i >= 0; i-- {
		r := s.requests[i]
		if r.VerificationCode != code {
			continue
		}
		if r.Status.IsRedeemable() {
			return &r, nil
		}
		if latest == nil {
			latest = &r
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return latest, nil
}

func (s *Withdrawals) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WithdrawalRequest
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].OwnerID == ownerID {
			out = append(out, s.requests[i])
		}
	}
	return page(out, limit, offset), nil
}

func (s *Withdrawals) ListCompletedSince(_ context.Context, since time.Time) ([]domain.WithdrawalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.WithdrawalRequest
	for _, r := range s.requests {
		if r.Status == domain.WithdrawalStatusCompleted && r.CompletedAt != nil && !r.CompletedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Withdrawals) Claim(_ context.Context, id, redeemerID uuid.UUID, role domain.Role, fee decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		r := &s.requests[i]
		if r.ID != id {
			continue
		}
		if !r.Status.IsRedeemable() {
			return domain.ErrAlreadyRedeemed
		}
		r.Status = domain.WithdrawalStatusProcessing
		r.RedeemedBy = &redeemerID
		r.RedeemerRole = &role
		r.Fee = fee
		r.UpdatedAt = time.Now().UTC()
		return nil
	}
	return domain.ErrAlreadyRedeemed
}

func (s *Withdrawals) Finish(_ context.Context, id uuid.UUID, status domain.WithdrawalStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.requests {
		r := &s.requests[i]
		if r.ID != id {
			continue
		}
		if r.Status != domain.WithdrawalStatusProcessing {
			return domain.ErrAlreadyRedeemed
		}
		r.Status = status
		r.UpdatedAt = at
		if status == domain.WithdrawalStatusCompleted {
			r.CompletedAt = &at
		}
		return nil
	}
	return domain.ErrAlreadyRedeemed
}

type History struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
	// CreateErr, when set, fails every Create.
	CreateErr error
}

func NewHistory() *History {
	return &History{}
}

func (s *History) Create(_ context.Context, e *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	for _, existing := range s.entries {
		if existing.OperationID == e.OperationID && existing.Kind == e.Kind {
			return nil
		}
	}
	s.entries = append(s.entries, *e)
	return nil
}

func (s *History) ListByActor(_ context.Context, actorID uuid.UUID, limit, offset int) ([]domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.HistoryEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].ActorID == actorID {
			out = append(out, s.entries[i])
		}
	}
	return page(out, limit, offset), nil
}

func (s *History) All() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HistoryEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return nil
	}
	in = in[offset:]
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	return in
}
