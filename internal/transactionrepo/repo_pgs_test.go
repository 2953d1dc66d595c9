//go:build integration

package transactionrepo_test

import (
	"context"
	"database/sql"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/flexipay/flexipay/internal/accountrepo"
	"github.com/flexipay/flexipay/internal/domain"
	"github.com/flexipay/flexipay/internal/transactionrepo"
	"github.com/flexipay/flexipay/pkg/configpkg"
	"github.com/flexipay/flexipay/pkg/dbpkg"
	"github.com/flexipay/flexipay/pkg/randompkg"
)

var (
	dbDriver string
	dbSource string
	ctx      context.Context
)

func TestMain(m *testing.M) {
	config, err := configpkg.Load("../../configs")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	dbDriver = config.DBDriver
	dbSource = config.DBSource
	ctx = context.Background()

	os.Exit(m.Run())
}

// setupDB opens a real connection for atomic group tests and removes the
// rows a test creates for the given accounts.
func setupDB(t *testing.T, accountIDs ...string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(dbDriver, dbSource)
	if err != nil {
		t.Fatalf("dbpkg.Setup(%v, dbSource) returned error: %v", dbDriver, err)
	}

	t.Cleanup(func() {
		for _, id := range accountIDs {
			if _, err := db.Exec("DELETE FROM transactions WHERE account_id = $1", id); err != nil {
				t.Errorf("cleaning up transactions for %v: %v", id, err)
			}
			if _, err := db.Exec("DELETE FROM accounts WHERE id = $1", id); err != nil {
				t.Errorf("cleaning up account %v: %v", id, err)
			}
		}
		if err := db.Close(); err != nil {
			t.Errorf("db.Close() failed: %v", err)
		}
	})

	return db
}

func seedAccount(t *testing.T, db *sql.DB, id, balance string) {
	t.Helper()

	accounts := accountrepo.NewRepoPGS(db)

	if _, err := accounts.GetOrCreate(ctx, id, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account %v: %v", id, err)
	}

	if balance != "" && balance != "0.00" {
		if _, err := accounts.SetBalance(ctx, balance, id); err != nil {
			t.Fatalf("seeding balance %v for %v: %v", balance, id, err)
		}
	}
}

func TestCreateAndGet(t *testing.T) {
	tx := dbpkg.SetupTX(t, dbDriver, dbSource)
	repo := transactionrepo.NewTxRepoPGS(tx)
	accounts := accountrepo.NewRepoPGS(tx)

	accountID := randompkg.AccountID()
	if _, err := accounts.GetOrCreate(ctx, accountID, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account returned error: %v", err)
	}

	arg := domain.NewDepositRecord(accountID, "100.00", "gw-charge-42")

	created, err := repo.Create(ctx, arg)
	if err != nil {
		t.Fatalf("repo.Create(ctx, %+v) returned error: %v", arg, err)
	}

	if created.ID == 0 {
		t.Error("created.ID = 0, want assigned")
	}

	if created.Kind != domain.KindDeposit || created.Status != domain.StatusPendingPayment {
		t.Errorf("created = %+v, want kind %v status %v", created, domain.KindDeposit, domain.StatusPendingPayment)
	}

	if created.ExternalRef != "gw-charge-42" {
		t.Errorf("created.ExternalRef = %v, want gw-charge-42", created.ExternalRef)
	}

	// Optional fields left empty stay empty on read.
	if created.PixKey != "" || created.Note != "" {
		t.Errorf("created = %+v, want empty pix key and note", created)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("repo.Get(ctx, %v) returned error: %v", created.ID, err)
	}

	if got.ID != created.ID || got.Amount != "100.00" {
		t.Errorf("got = %+v, want id %v amount 100.00", got, created.ID)
	}

	if _, err := repo.Get(ctx, created.ID+1000000); err != domain.ErrTransactionNotFound {
		t.Errorf("repo.Get for missing id returned error %v, want %v", err, domain.ErrTransactionNotFound)
	}
}

func TestUpdateStatusFrom(t *testing.T) {
	tx := dbpkg.SetupTX(t, dbDriver, dbSource)
	repo := transactionrepo.NewTxRepoPGS(tx)
	accounts := accountrepo.NewRepoPGS(tx)

	accountID := randompkg.AccountID()
	if _, err := accounts.GetOrCreate(ctx, accountID, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account returned error: %v", err)
	}

	withdrawal, err := repo.Create(ctx, domain.NewWithdrawalRecord(accountID, "94.15", randompkg.PixKey()))
	if err != nil {
		t.Fatalf("repo.Create returned error: %v", err)
	}

	claimed, err := repo.UpdateStatusFrom(ctx, withdrawal.ID,
		domain.StatusUnderReview, domain.StatusInProgress,
		domain.StatusUpdate{Note: "approved by admin 777"})
	if err != nil {
		t.Fatalf("repo.UpdateStatusFrom returned error: %v", err)
	}

	if claimed.Status != domain.StatusInProgress || claimed.Note != "approved by admin 777" {
		t.Errorf("claimed = %+v, want status %v with note", claimed, domain.StatusInProgress)
	}

	// A second claim from the old status loses.
	if _, err := repo.UpdateStatusFrom(ctx, withdrawal.ID,
		domain.StatusUnderReview, domain.StatusInProgress, domain.StatusUpdate{}); err != domain.ErrAlreadyProcessed {
		t.Errorf("second claim returned error %v, want %v", err, domain.ErrAlreadyProcessed)
	}

	// Attaching the payout reference preserves the earlier note.
	completed, err := repo.UpdateStatusFrom(ctx, withdrawal.ID,
		domain.StatusInProgress, domain.StatusCompleted,
		domain.StatusUpdate{ExternalRef: "gw-payout-9"})
	if err != nil {
		t.Fatalf("repo.UpdateStatusFrom returned error: %v", err)
	}

	if completed.ExternalRef != "gw-payout-9" || completed.Note != "approved by admin 777" {
		t.Errorf("completed = %+v, want external ref set and note preserved", completed)
	}

	if _, err := repo.UpdateStatusFrom(ctx, withdrawal.ID+1000000,
		domain.StatusUnderReview, domain.StatusInProgress, domain.StatusUpdate{}); err != domain.ErrTransactionNotFound {
		t.Errorf("claim for missing id returned error %v, want %v", err, domain.ErrTransactionNotFound)
	}
}

func TestWithdraw(t *testing.T) {
	accountID := randompkg.AccountID()
	db := setupDB(t, accountID)
	seedAccount(t, db, accountID, "500.00")

	repo := transactionrepo.NewRepoPGS(db)
	accounts := accountrepo.NewRepoPGS(db)

	arg := domain.WithdrawTxParams{
		AccountID:      accountID,
		TotalDebit:     "100.00",
		AmountReceived: "94.15",
		Fee:            "5.85",
		PixKey:         randompkg.PixKey(),
	}

	result, err := repo.Withdraw(ctx, arg)
	if err != nil {
		t.Fatalf("repo.Withdraw(ctx, %+v) returned error: %v", arg, err)
	}

	if result.Account.Balance != "400.00" {
		t.Errorf("result.Account.Balance = %v, want 400.00", result.Account.Balance)
	}

	if result.Withdrawal.Status != domain.StatusUnderReview || result.Withdrawal.Amount != "94.15" {
		t.Errorf("result.Withdrawal = %+v, want UNDER_REVIEW for 94.15", result.Withdrawal)
	}

	if result.FeeRecord.Kind != domain.KindFee || result.FeeRecord.Amount != "5.85" {
		t.Errorf("result.FeeRecord = %+v, want fee of 5.85", result.FeeRecord)
	}

	if result.FeeRecord.Note != domain.WithdrawalFeeNote(result.Withdrawal.ID) {
		t.Errorf("result.FeeRecord.Note = %v, want %v",
			result.FeeRecord.Note, domain.WithdrawalFeeNote(result.Withdrawal.ID))
	}

	// The fee lookup used by refunds finds the record through the note.
	fee, err := repo.FeeForWithdrawal(ctx, result.Withdrawal.ID)
	if err != nil {
		t.Fatalf("repo.FeeForWithdrawal returned error: %v", err)
	}

	if fee != "5.85" {
		t.Errorf("fee = %v, want 5.85", fee)
	}

	// A debit past the balance rejects the whole group with no mutation.
	over := domain.WithdrawTxParams{
		AccountID:      accountID,
		TotalDebit:     "1000.00",
		AmountReceived: "972.20",
		Fee:            "27.80",
		PixKey:         randompkg.PixKey(),
	}

	if _, err := repo.Withdraw(ctx, over); err != domain.ErrInsufficientBalance {
		t.Fatalf("repo.Withdraw over balance returned error %v, want %v", err, domain.ErrInsufficientBalance)
	}

	balance, err := accounts.Balance(ctx, accountID)
	if err != nil {
		t.Fatalf("accounts.Balance returned error: %v", err)
	}

	if balance != "400.00" {
		t.Errorf("balance after rejected group = %v, want 400.00", balance)
	}
}

func TestCreditDeposit(t *testing.T) {
	accountID := randompkg.AccountID()
	db := setupDB(t, accountID)
	seedAccount(t, db, accountID, "0.00")

	repo := transactionrepo.NewRepoPGS(db)
	accounts := accountrepo.NewRepoPGS(db)

	deposit, err := repo.Create(ctx, domain.NewDepositRecord(accountID, "100.00", "gw-charge-42"))
	if err != nil {
		t.Fatalf("repo.Create returned error: %v", err)
	}

	credited, err := repo.CreditDeposit(ctx, deposit.ID, accountID, "89.00", "11.00")
	if err != nil {
		t.Fatalf("repo.CreditDeposit returned error: %v", err)
	}

	if credited.Status != domain.StatusPaid {
		t.Errorf("credited.Status = %v, want %v", credited.Status, domain.StatusPaid)
	}

	balance, err := accounts.Balance(ctx, accountID)
	if err != nil {
		t.Fatalf("accounts.Balance returned error: %v", err)
	}

	if balance != "89.00" {
		t.Errorf("balance = %v, want 89.00", balance)
	}

	// A duplicate delivery finds no pending deposit to claim.
	if _, err := repo.CreditDeposit(ctx, deposit.ID, accountID, "89.00", "11.00"); err != domain.ErrAlreadyProcessed {
		t.Fatalf("second credit returned error %v, want %v", err, domain.ErrAlreadyProcessed)
	}

	balance, err = accounts.Balance(ctx, accountID)
	if err != nil {
		t.Fatalf("accounts.Balance returned error: %v", err)
	}

	if balance != "89.00" {
		t.Errorf("balance after duplicate = %v, want 89.00", balance)
	}
}

func TestRefund(t *testing.T) {
	accountID := randompkg.AccountID()
	db := setupDB(t, accountID)
	seedAccount(t, db, accountID, "500.00")

	repo := transactionrepo.NewRepoPGS(db)
	accounts := accountrepo.NewRepoPGS(db)

	result, err := repo.Withdraw(ctx, domain.WithdrawTxParams{
		AccountID:      accountID,
		TotalDebit:     "100.00",
		AmountReceived: "94.15",
		Fee:            "5.85",
		PixKey:         randompkg.PixKey(),
	})
	if err != nil {
		t.Fatalf("repo.Withdraw returned error: %v", err)
	}

	refunded, err := repo.Refund(ctx, domain.RefundTxParams{
		WithdrawalID: result.Withdrawal.ID,
		AccountID:    accountID,
		Amount:       "100.00",
		From:         domain.StatusUnderReview,
		To:           domain.StatusRejected,
		Note:         "rejected by admin 777",
	})
	if err != nil {
		t.Fatalf("repo.Refund returned error: %v", err)
	}

	if refunded.Status != domain.StatusRejected {
		t.Errorf("refunded.Status = %v, want %v", refunded.Status, domain.StatusRejected)
	}

	// Principal plus fee is back on the balance.
	balance, err := accounts.Balance(ctx, accountID)
	if err != nil {
		t.Fatalf("accounts.Balance returned error: %v", err)
	}

	if balance != "500.00" {
		t.Errorf("balance = %v, want 500.00", balance)
	}

	// A second compensation cannot claim the withdrawal again.
	if _, err := repo.Refund(ctx, domain.RefundTxParams{
		WithdrawalID: result.Withdrawal.ID,
		AccountID:    accountID,
		Amount:       "100.00",
		From:         domain.StatusUnderReview,
		To:           domain.StatusRejected,
	}); err != domain.ErrAlreadyProcessed {
		t.Errorf("second refund returned error %v, want %v", err, domain.ErrAlreadyProcessed)
	}
}

func TestConcurrentClaims(t *testing.T) {
	accountID := randompkg.AccountID()
	db := setupDB(t, accountID)
	seedAccount(t, db, accountID, "500.00")

	repo := transactionrepo.NewRepoPGS(db)

	result, err := repo.Withdraw(ctx, domain.WithdrawTxParams{
		AccountID:      accountID,
		TotalDebit:     "100.00",
		AmountReceived: "94.15",
		Fee:            "5.85",
		PixKey:         randompkg.PixKey(),
	})
	if err != nil {
		t.Fatalf("repo.Withdraw returned error: %v", err)
	}

	// Two admins race for the same withdrawal; exactly one wins the claim.
	const racers = 2

	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			_, errs[i] = repo.UpdateStatusFrom(ctx, result.Withdrawal.ID,
				domain.StatusUnderReview, domain.StatusInProgress, domain.StatusUpdate{})
		}(i)
	}
	wg.Wait()

	var wins, losses int

	for _, err := range errs {
		switch err {
		case nil:
			wins++
		case domain.ErrAlreadyProcessed:
			losses++
		default:
			t.Errorf("unexpected claim error: %v", err)
		}
	}

	if wins != 1 || losses != racers-1 {
		t.Errorf("wins = %v, losses = %v, want exactly one winner", wins, losses)
	}
}

func TestFindPendingDepositByRef(t *testing.T) {
	tx := dbpkg.SetupTX(t, dbDriver, dbSource)
	repo := transactionrepo.NewTxRepoPGS(tx)
	accounts := accountrepo.NewRepoPGS(tx)

	accountID := randompkg.AccountID()
	if _, err := accounts.GetOrCreate(ctx, accountID, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account returned error: %v", err)
	}

	deposit, err := repo.Create(ctx, domain.NewDepositRecord(accountID, "100.00", "gw-charge-42"))
	if err != nil {
		t.Fatalf("repo.Create returned error: %v", err)
	}

	found, err := repo.FindPendingDepositByRef(ctx, "gw-charge-42")
	if err != nil {
		t.Fatalf("repo.FindPendingDepositByRef returned error: %v", err)
	}

	if found.ID != deposit.ID {
		t.Errorf("found.ID = %v, want %v", found.ID, deposit.ID)
	}

	if _, err := repo.FindPendingDepositByRef(ctx, "gw-charge-unknown"); err != domain.ErrTransactionNotFound {
		t.Errorf("lookup for unknown ref returned error %v, want %v", err, domain.ErrTransactionNotFound)
	}

	// Once credited the deposit is no longer pending and stops matching.
	if _, err := repo.UpdateStatusFrom(ctx, deposit.ID,
		domain.StatusPendingPayment, domain.StatusPaid, domain.StatusUpdate{}); err != nil {
		t.Fatalf("repo.UpdateStatusFrom returned error: %v", err)
	}

	if _, err := repo.FindPendingDepositByRef(ctx, "gw-charge-42"); err != domain.ErrTransactionNotFound {
		t.Errorf("lookup after crediting returned error %v, want %v", err, domain.ErrTransactionNotFound)
	}
}

func TestListPendingWithdrawals(t *testing.T) {
	tx := dbpkg.SetupTX(t, dbDriver, dbSource)
	repo := transactionrepo.NewTxRepoPGS(tx)
	accounts := accountrepo.NewRepoPGS(tx)

	accountID := randompkg.AccountID()
	if _, err := accounts.GetOrCreate(ctx, accountID, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account returned error: %v", err)
	}

	before, err := repo.ListPendingWithdrawals(ctx)
	if err != nil {
		t.Fatalf("repo.ListPendingWithdrawals returned error: %v", err)
	}

	if _, err := repo.Create(ctx, domain.NewWithdrawalRecord(accountID, "94.15", randompkg.PixKey())); err != nil {
		t.Fatalf("repo.Create returned error: %v", err)
	}

	after, err := repo.ListPendingWithdrawals(ctx)
	if err != nil {
		t.Fatalf("repo.ListPendingWithdrawals returned error: %v", err)
	}

	if len(after) != len(before)+1 {
		t.Errorf("len(after) = %v, want %v", len(after), len(before)+1)
	}
}

func TestSumFeesByStatus(t *testing.T) {
	accountID := randompkg.AccountID()
	db := setupDB(t, accountID)
	seedAccount(t, db, accountID, "500.00")

	repo := transactionrepo.NewRepoPGS(db)

	start, err := repo.SumFeesByStatus(ctx, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("repo.SumFeesByStatus returned error: %v", err)
	}

	if _, err := repo.Withdraw(ctx, domain.WithdrawTxParams{
		AccountID:      accountID,
		TotalDebit:     "100.00",
		AmountReceived: "94.15",
		Fee:            "5.85",
		PixKey:         randompkg.PixKey(),
	}); err != nil {
		t.Fatalf("repo.Withdraw returned error: %v", err)
	}

	sum, err := repo.SumFeesByStatus(ctx, domain.StatusCompleted)
	if err != nil {
		t.Fatalf("repo.SumFeesByStatus returned error: %v", err)
	}

	if sum == start {
		t.Errorf("sum = %v, want it to grow past %v by the new fee", sum, start)
	}
}

func TestListStaleByStatus(t *testing.T) {
	tx := dbpkg.SetupTX(t, dbDriver, dbSource)
	repo := transactionrepo.NewTxRepoPGS(tx)
	accounts := accountrepo.NewRepoPGS(tx)

	accountID := randompkg.AccountID()
	if _, err := accounts.GetOrCreate(ctx, accountID, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account returned error: %v", err)
	}

	deposit, err := repo.Create(ctx, domain.NewDepositRecord(accountID, "100.00", "gw-charge-stale"))
	if err != nil {
		t.Fatalf("repo.Create returned error: %v", err)
	}

	// A cutoff in the future catches the fresh row; one in the past does not.
	stale, err := repo.ListStaleByStatus(ctx, domain.StatusPendingPayment, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("repo.ListStaleByStatus returned error: %v", err)
	}

	var seen bool
	for _, tr := range stale {
		if tr.ID == deposit.ID {
			seen = true
		}
	}

	if !seen {
		t.Errorf("deposit %v missing from stale list", deposit.ID)
	}

	fresh, err := repo.ListStaleByStatus(ctx, domain.StatusPendingPayment, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("repo.ListStaleByStatus returned error: %v", err)
	}

	for _, tr := range fresh {
		if tr.ID == deposit.ID {
			t.Errorf("deposit %v unexpectedly listed as stale", deposit.ID)
		}
	}
}

func TestLastMovement(t *testing.T) {
	tx := dbpkg.SetupTX(t, dbDriver, dbSource)
	repo := transactionrepo.NewTxRepoPGS(tx)
	accounts := accountrepo.NewRepoPGS(tx)

	accountID := randompkg.AccountID()
	if _, err := accounts.GetOrCreate(ctx, accountID, randompkg.Owner()); err != nil {
		t.Fatalf("seeding account returned error: %v", err)
	}

	if _, err := repo.LastMovement(ctx, accountID); err != domain.ErrTransactionNotFound {
		t.Errorf("repo.LastMovement with no rows returned error %v, want %v", err, domain.ErrTransactionNotFound)
	}

	if _, err := repo.Create(ctx, domain.NewDepositRecord(accountID, "100.00", "gw-charge-42")); err != nil {
		t.Fatalf("repo.Create returned error: %v", err)
	}

	last, err := repo.LastMovement(ctx, accountID)
	if err != nil {
		t.Fatalf("repo.LastMovement returned error: %v", err)
	}

	if time.Since(last) > time.Minute {
		t.Errorf("last = %v, want a recent timestamp", last)
	}
}
