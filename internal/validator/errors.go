// Package validator implements the header/block/transaction/coinbase
// validation pipeline (spec §2 item 8, §4.4). It consumes a block-flow
// decision about dependency/flow validity and a world-state overlay, and
// commits nothing itself: it reports failure as an error, and on success
// the overlay's diff holds the block's state changes for the caller to
// fold into storage.
package validator

import "fmt"

// ErrorCode enumerates the validation-failure tier from spec §7 item 2:
// "the block/tx is rejected; the peer is penalized; no state change is
// committed". VM-internal failures are wrapped as ErrTxScriptExeFailed
// rather than getting their own top-level code, matching spec §7's closing
// paragraph.
type ErrorCode string

const (
	ErrInvalidGroup              ErrorCode = "INVALID_GROUP"
	ErrEmptyTransactionList       ErrorCode = "EMPTY_TRANSACTION_LIST"
	ErrTooManyTransactions        ErrorCode = "TOO_MANY_TRANSACTIONS"
	ErrTxGasPriceNonDecreasing    ErrorCode = "TX_GAS_PRICE_NON_DECREASING"
	ErrTooManyGasUsed             ErrorCode = "TOO_MANY_GAS_USED"
	ErrInvalidTxsMerkleRoot       ErrorCode = "INVALID_TXS_MERKLE_ROOT"
	ErrInvalidFlowTxs             ErrorCode = "INVALID_FLOW_TXS"
	ErrInvalidCoinbaseFormat      ErrorCode = "INVALID_COINBASE_FORMAT"
	ErrInvalidCoinbaseData        ErrorCode = "INVALID_COINBASE_DATA"
	ErrInvalidCoinbaseReward      ErrorCode = "INVALID_COINBASE_REWARD"
	ErrInvalidCoinbaseLockedAmount ErrorCode = "INVALID_COINBASE_LOCKED_AMOUNT"
	ErrInvalidCoinbaseLockupPeriod ErrorCode = "INVALID_COINBASE_LOCKUP_PERIOD"
	ErrBlockDoubleSpending        ErrorCode = "BLOCK_DOUBLE_SPENDING"
	ErrExistInvalidTx             ErrorCode = "EXIST_INVALID_TX"
	ErrTxScriptExeFailed          ErrorCode = "TX_SCRIPT_EXE_FAILED"
	ErrTxInputNotFound            ErrorCode = "TX_INPUT_NOT_FOUND"
	ErrInvalidUnlockScript         ErrorCode = "INVALID_UNLOCK_SCRIPT"
	ErrTimeLockNotSatisfied        ErrorCode = "TIME_LOCK_NOT_SATISFIED"
	ErrInsufficientFunds           ErrorCode = "INSUFFICIENT_FUNDS"
)

// Error is the typed validation-tier error every pipeline step returns.
type Error struct {
	Code ErrorCode
	Msg  string
	Tx   int // index into the block's transaction list, -1 when not tx-specific
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Tx < 0 {
		return fmt.Sprintf("validator: %s: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("validator: %s: tx[%d]: %s", e.Code, e.Tx, e.Msg)
}

func newErr(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Tx: -1}
}

func newTxErr(code ErrorCode, tx int, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Tx: tx}
}
