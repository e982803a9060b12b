package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/events"
	"github.com/nkiryanov/walletledger/internal/logger"
	"github.com/nkiryanov/walletledger/internal/models"
	"github.com/nkiryanov/walletledger/internal/repository"
	"github.com/nkiryanov/walletledger/internal/service/balance"
)

const defaultPaymentMethod = "MANUAL"

// Metadata shared by every money movement
type Metadata struct {
	PaymentMethod      string
	ReferenceNumber    string
	ProofAttachmentRef *string
	Description        string
	Reference          string
	Remarks            string
	ActualTransferDate *time.Time

	// Empty means the request is not deduplicated
	IdempotencyKey string
}

type CreditParams struct {
	OwnerID uuid.UUID
	Amount  decimal.Decimal
	ActorID uuid.UUID
	Metadata
}

type DebitParams struct {
	OwnerID uuid.UUID
	Amount  decimal.Decimal
	ActorID uuid.UUID
	Metadata
}

type TransferParams struct {
	FromOwnerID uuid.UUID
	ToOwnerID   uuid.UUID
	Amount      decimal.Decimal
	ActorID     uuid.UUID

	// TRANSFER when empty. DISBURSEMENT and REPAYMENT are transfers made by financing flows
	Type string
	Metadata
}

type Service struct {
	storage   repository.Storage
	publisher events.Publisher
	logger    logger.Logger
	now       func() time.Time
}

func NewService(storage repository.Storage, publisher events.Publisher, l logger.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		storage:   storage,
		publisher: publisher,
		logger:    l,
		now:       time.Now,
	}
}

func (s *Service) Credit(ctx context.Context, p CreditParams) (models.TransactionView, error) {
	amount, err := validateAmount(p.Amount)
	if err != nil {
		return models.TransactionView{}, err
	}

	txType := models.TransactionTypeManualCredit

	req := request{
		txType:  txType,
		amount:  amount,
		actorID: p.ActorID,
		owners:  map[string]uuid.UUID{models.EntryTypeCredit: p.OwnerID},
	}

	return s.execute(ctx, p.IdempotencyKey, req, func(tx repository.Storage) (models.TransactionView, error) {
		wallet, err := tx.Wallet().GetWalletByOwner(ctx, p.OwnerID)
		if err != nil {
			return models.TransactionView{}, err
		}
		if wallet, err = lockActive(ctx, tx, wallet.ID); err != nil {
			return models.TransactionView{}, err
		}

		prev, err := balance.NewResolver(tx.Ledger()).Resolve(ctx, wallet.ID)
		if err != nil {
			return models.TransactionView{}, err
		}

		now := s.clock()
		t := newTransaction(txType, amount, p.ActorID, p.Metadata, "Manual credit", now)
		credit := posting{
			previous: prev,
			entry:    newEntry(t, wallet.ID, models.EntryTypeCredit, prev.Add(amount), 1),
		}

		return s.write(ctx, tx, t, []posting{credit}, manualRequest(t, p.ActorID, p.Metadata))
	})
}

// Debit never fails because of insufficient funds: negative balance is borrowing
func (s *Service) Debit(ctx context.Context, p DebitParams) (models.TransactionView, error) {
	amount, err := validateAmount(p.Amount)
	if err != nil {
		return models.TransactionView{}, err
	}

	txType := models.TransactionTypeManualDebit
	req := request{
		txType:  txType,
		amount:  amount,
		actorID: p.ActorID,
		owners:  map[string]uuid.UUID{models.EntryTypeDebit: p.OwnerID},
	}

	return s.execute(ctx, p.IdempotencyKey, req, func(tx repository.Storage) (models.TransactionView, error) {
		wallet, err := tx.Wallet().GetWalletByOwner(ctx, p.OwnerID)
		if err != nil {
			return models.TransactionView{}, err
		}
		if wallet, err = lockActive(ctx, tx, wallet.ID); err != nil {
			return models.TransactionView{}, err
		}

		prev, err := balance.NewResolver(tx.Ledger()).Resolve(ctx, wallet.ID)
		if err != nil {
			return models.TransactionView{}, err
		}

		now := s.clock()
		after := prev.Sub(amount)
		t := newTransaction(txType, amount, p.ActorID, p.Metadata, "Manual debit", now)
		t.Description = withBorrowingNote(t.Description, after)
		debit := posting{
			previous: prev,
			entry:    newEntry(t, wallet.ID, models.EntryTypeDebit, after, 1),
		}

		return s.write(ctx, tx, t, []posting{debit}, manualRequest(t, p.ActorID, p.Metadata))
	})
}

func (s *Service) Transfer(ctx context.Context, p TransferParams) (models.TransactionView, error) {
	amount, err := validateAmount(p.Amount)
	if err != nil {
		return models.TransactionView{}, err
	}

	txType, err := transferType(p.Type)
	if err != nil {
		return models.TransactionView{}, err
	}

	if p.FromOwnerID == p.ToOwnerID {
		return models.TransactionView{}, apperrors.ErrSelfTransfer
	}

	req := request{
		txType:  txType,
		amount:  amount,
		actorID: p.ActorID,
		owners: map[string]uuid.UUID{
			models.EntryTypeDebit:  p.FromOwnerID,
			models.EntryTypeCredit: p.ToOwnerID,
		},
	}

	return s.execute(ctx, p.IdempotencyKey, req, func(tx repository.Storage) (models.TransactionView, error) {
		from, err := tx.Wallet().GetWalletByOwner(ctx, p.FromOwnerID)
		if err != nil {
			return models.TransactionView{}, fmt.Errorf("source: %w", err)
		}
		to, err := tx.Wallet().GetWalletByOwner(ctx, p.ToOwnerID)
		if err != nil {
			return models.TransactionView{}, fmt.Errorf("destination: %w", err)
		}
		if from.ID == to.ID {
			return models.TransactionView{}, apperrors.ErrSelfTransfer
		}

		locked, err := lockInOrder(ctx, tx, from.ID, to.ID)
		if err != nil {
			return models.TransactionView{}, err
		}
		from, to = locked[from.ID], locked[to.ID]

		if !from.IsActive() || !to.IsActive() {
			return models.TransactionView{}, apperrors.ErrWalletSuspended
		}
		if from.Currency != to.Currency {
			return models.TransactionView{}, apperrors.ErrCurrencyMismatch
		}

		resolver := balance.NewResolver(tx.Ledger())
		fromPrev, err := resolver.Resolve(ctx, from.ID)
		if err != nil {
			return models.TransactionView{}, err
		}
		toPrev, err := resolver.Resolve(ctx, to.ID)
		if err != nil {
			return models.TransactionView{}, err
		}

		now := s.clock()
		fromAfter := fromPrev.Sub(amount)
		t := newTransaction(txType, amount, p.ActorID, p.Metadata, defaultTransferDescription(txType), now)
		t.Description = withBorrowingNote(t.Description, fromAfter)

		postings := []posting{
			{previous: fromPrev, entry: newEntry(t, from.ID, models.EntryTypeDebit, fromAfter, 1)},
			{previous: toPrev, entry: newEntry(t, to.ID, models.EntryTypeCredit, toPrev.Add(amount), 2)},
		}

		var manual *models.ManualTransferRequest
		if p.PaymentMethod != "" {
			manual = manualRequest(t, p.ActorID, p.Metadata)
		}

		return s.write(ctx, tx, t, postings, manual)
	})
}

func (s *Service) GetTransaction(ctx context.Context, txID uuid.UUID) (models.TransactionView, error) {
	return loadView(ctx, s.storage.Ledger(), txID)
}

// What a transaction found by idempotency key has to match to be replayed
type request struct {
	txType  string
	amount  decimal.Decimal
	actorID uuid.UUID

	// Owner expected behind each entry type
	owners map[string]uuid.UUID
}

// Run fn as one atomic unit, replaying the stored result for a repeated idempotency key
func (s *Service) execute(
	ctx context.Context,
	key string,
	req request,
	fn func(tx repository.Storage) (models.TransactionView, error),
) (models.TransactionView, error) {
	if key != "" {
		view, found, err := s.replay(ctx, key, req)
		if err != nil || found {
			return view, err
		}
	}

	var view models.TransactionView
	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		view, err = fn(tx)
		return err
	})

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrDuplicateTransaction) && key != "":
		// Lost the race to a concurrent request with the same key, which is committed by now
		replayed, found, replayErr := s.replay(ctx, key, req)
		if replayErr != nil {
			return models.TransactionView{}, replayErr
		}
		if !found {
			return models.TransactionView{}, err
		}
		return replayed, nil
	case errors.Is(err, apperrors.ErrInvariantViolation):
		var violation any = err
		var invErr *apperrors.InvariantError
		if errors.As(err, &invErr) {
			violation = invErr
		}
		s.logger.Error("Ledger invariant violated, transaction aborted", "type", req.txType, "amount", req.amount.StringFixed(2), "violation", violation)
		return models.TransactionView{}, err
	default:
		return models.TransactionView{}, err
	}

	s.logger.Info("Transaction committed",
		"transaction_id", view.ID.String(),
		"type", view.Type,
		"amount", view.Amount.StringFixed(2),
	)

	if err := s.publisher.Publish(ctx, view); err != nil {
		s.logger.Error("Transaction committed but not published", "transaction_id", view.ID.String(), "error", err)
	}

	return view, nil
}

// Same key with any other type, amount, actor or wallets is ErrIdempotencyKeyReused
func (s *Service) replay(ctx context.Context, key string, req request) (models.TransactionView, bool, error) {
	existing, err := s.storage.Ledger().GetTransactionByIdempotencyKey(ctx, req.actorID, key)
	switch {
	case errors.Is(err, apperrors.ErrTransactionNotFound):
		return models.TransactionView{}, false, nil
	case err != nil:
		return models.TransactionView{}, false, err
	}

	if existing.Type != req.txType || !existing.Amount.Equal(req.amount) || existing.CreatedBy != req.actorID {
		return models.TransactionView{}, false, apperrors.ErrIdempotencyKeyReused
	}

	view, err := loadView(ctx, s.storage.Ledger(), existing.ID)
	if err != nil {
		return models.TransactionView{}, false, err
	}
	if len(view.Entries) != len(req.owners) {
		return models.TransactionView{}, false, apperrors.ErrIdempotencyKeyReused
	}
	for _, e := range view.Entries {
		wallet, err := s.storage.Wallet().GetWallet(ctx, e.WalletID)
		if err != nil {
			return models.TransactionView{}, false, err
		}
		if owner, ok := req.owners[e.Type]; !ok || owner != wallet.OwnerID {
			return models.TransactionView{}, false, apperrors.ErrIdempotencyKeyReused
		}
	}
	view.Replayed = true

	return view, true, nil
}

// Postgres keeps microseconds only, so round here to return what will be read back later
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// An entry together with the wallet balance it was computed from
type posting struct {
	previous decimal.Decimal
	entry    models.Entry
}

func (s *Service) write(
	ctx context.Context,
	tx repository.Storage,
	t models.Transaction,
	postings []posting,
	manual *models.ManualTransferRequest,
) (models.TransactionView, error) {
	entries := make([]models.Entry, 0, len(postings))
	for _, p := range postings {
		if err := checkChain(p.previous, p.entry); err != nil {
			return models.TransactionView{}, err
		}
		entries = append(entries, p.entry)
	}
	if err := checkConservation(t, entries); err != nil {
		return models.TransactionView{}, err
	}

	if err := tx.Ledger().CreateTransaction(ctx, t); err != nil {
		return models.TransactionView{}, err
	}

	view := models.TransactionView{Transaction: t}
	for _, e := range entries {
		created, err := tx.Ledger().CreateEntry(ctx, e)
		if err != nil {
			return models.TransactionView{}, err
		}
		view.Entries = append(view.Entries, created)
	}

	if manual != nil {
		if err := tx.Ledger().CreateManualTransfer(ctx, *manual); err != nil {
			return models.TransactionView{}, err
		}
	}

	// The new entry has to become the latest snapshot of its wallet
	resolver := balance.NewResolver(tx.Ledger())
	for _, e := range view.Entries {
		current, err := resolver.Resolve(ctx, e.WalletID)
		if err != nil {
			return models.TransactionView{}, err
		}
		if !current.Equal(e.BalanceAfter) {
			return models.TransactionView{}, apperrors.NewInvariantError("balance",
				"wallet %s resolves to %s after writing entry with balance %s",
				e.WalletID, current.StringFixed(2), e.BalanceAfter.StringFixed(2))
		}
	}

	return view, nil
}

func loadView(ctx context.Context, repo repository.LedgerRepo, txID uuid.UUID) (models.TransactionView, error) {
	t, err := repo.GetTransaction(ctx, txID)
	if err != nil {
		return models.TransactionView{}, err
	}

	entries, err := repo.ListTransactionEntries(ctx, txID)
	if err != nil {
		return models.TransactionView{}, err
	}

	return models.TransactionView{Transaction: t, Entries: entries}, nil
}

func lockActive(ctx context.Context, tx repository.Storage, walletID uuid.UUID) (models.Wallet, error) {
	wallet, err := tx.Wallet().LockWallet(ctx, walletID)
	if err != nil {
		return wallet, err
	}
	if !wallet.IsActive() {
		return wallet, apperrors.ErrWalletSuspended
	}
	return wallet, nil
}

// Wallets are always locked in ascending id order, so two transfers over the same pair can't deadlock
func lockInOrder(ctx context.Context, tx repository.Storage, ids ...uuid.UUID) (map[uuid.UUID]models.Wallet, error) {
	ordered := append([]uuid.UUID(nil), ids...)
	sortWalletIDs(ordered)

	locked := make(map[uuid.UUID]models.Wallet, len(ordered))
	for _, id := range ordered {
		wallet, err := tx.Wallet().LockWallet(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = wallet
	}

	return locked, nil
}

func sortWalletIDs(ids []uuid.UUID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && bytes.Compare(ids[j][:], ids[j-1][:]) < 0; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func newTransaction(txType string, amount decimal.Decimal, actorID uuid.UUID, m Metadata, description string, now time.Time) models.Transaction {
	if m.Description != "" {
		description = m.Description
	}

	t := models.Transaction{
		ID:                 uuid.New(),
		Type:               txType,
		Status:             models.TransactionStatusCompleted,
		Description:        description,
		Amount:             amount,
		CreatedBy:          actorID,
		CreatedAt:          now,
		CompletedAt:        &now,
		ActualTransferDate: m.ActualTransferDate,
		Reference:          m.Reference,
		Remarks:            m.Remarks,
	}
	if m.IdempotencyKey != "" {
		key := m.IdempotencyKey
		t.IdempotencyKey = &key
	}

	return t
}

func newEntry(t models.Transaction, walletID uuid.UUID, entryType string, balanceAfter decimal.Decimal, sequence int) models.Entry {
	return models.Entry{
		TransactionID: t.ID,
		WalletID:      walletID,
		Type:          entryType,
		Amount:        t.Amount,
		BalanceAfter:  balanceAfter,
		Sequence:      sequence,
		CreatedAt:     t.CreatedAt,
	}
}

func manualRequest(t models.Transaction, actorID uuid.UUID, m Metadata) *models.ManualTransferRequest {
	method := m.PaymentMethod
	if method == "" {
		method = defaultPaymentMethod
	}

	return &models.ManualTransferRequest{
		ID:                 uuid.New(),
		TransactionID:      t.ID,
		PaymentMethod:      method,
		ReferenceNumber:    m.ReferenceNumber,
		EnteredBy:          actorID,
		ProofAttachmentRef: m.ProofAttachmentRef,
		CreatedAt:          t.CreatedAt,
	}
}

func withBorrowingNote(description string, after decimal.Decimal) string {
	if !after.IsNegative() {
		return description
	}
	return fmt.Sprintf("%s; borrowing %s", description, after.StringFixed(2))
}

func defaultTransferDescription(txType string) string {
	switch txType {
	case models.TransactionTypeDisbursement:
		return "Disbursement"
	case models.TransactionTypeRepayment:
		return "Repayment"
	default:
		return "Transfer"
	}
}
