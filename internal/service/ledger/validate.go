package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/walletledger/internal/apperrors"
	"github.com/nkiryanov/walletledger/internal/models"
)

// Money has two fractional digits. Anything finer is rejected, never rounded
func validateAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return amount, apperrors.ErrAmountNotPositive
	}
	if !amount.Equal(amount.Truncate(2)) {
		return amount, apperrors.ErrAmountInvalid
	}
	return amount.Truncate(2), nil
}

func transferType(txType string) (string, error) {
	switch txType {
	case "":
		return models.TransactionTypeTransfer, nil
	case models.TransactionTypeTransfer, models.TransactionTypeDisbursement, models.TransactionTypeRepayment:
		return txType, nil
	default:
		return "", apperrors.ErrTransactionTypeInvalid
	}
}

// Each entry moves the wallet balance by exactly its signed amount
func checkChain(previous decimal.Decimal, e models.Entry) error {
	if !e.BalanceAfter.Equal(previous.Add(e.SignedAmount())) {
		return apperrors.NewInvariantError("chain",
			"wallet %s: %s %s over %s gives %s",
			e.WalletID, e.Type, e.Amount.StringFixed(2), previous.StringFixed(2), e.BalanceAfter.StringFixed(2))
	}
	return nil
}

// Money is never created or destroyed by a two entry transaction
func checkConservation(t models.Transaction, entries []models.Entry) error {
	for _, e := range entries {
		if !e.Amount.Equal(t.Amount) {
			return apperrors.NewInvariantError("conservation",
				"entry amount %s differs from transaction amount %s", e.Amount.StringFixed(2), t.Amount.StringFixed(2))
		}
	}

	switch len(entries) {
	case 1:
		return nil
	case 2:
	default:
		return apperrors.NewInvariantError("conservation", "transaction has %d entries", len(entries))
	}

	debit, credit := entries[0], entries[1]
	if debit.Type != models.EntryTypeDebit || credit.Type != models.EntryTypeCredit {
		return apperrors.NewInvariantError("conservation", "expected debit then credit, got %s then %s", debit.Type, credit.Type)
	}
	if debit.WalletID == credit.WalletID {
		return apperrors.NewInvariantError("conservation", "debit and credit hit the same wallet %s", debit.WalletID)
	}
	if sum := debit.SignedAmount().Add(credit.SignedAmount()); !sum.IsZero() {
		return apperrors.NewInvariantError("conservation", "entries net to %s", sum.StringFixed(2))
	}

	return nil
}
