package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tournament-registration/models"
)

// DocumentStore is what the registration flow and coordinator read and write.
// Conditional writes report their precondition failures as model sentinels.
type DocumentStore interface {
	GetTournament(ctx context.Context, id string) (*models.Tournament, error)
	GetWalletBalance(ctx context.Context, userID, currency string) (decimal.Decimal, error)
	GetKycStatus(ctx context.Context, userID string) (string, error)
	GetRegistrationStatus(ctx context.Context, tournamentID, userID string) (bool, error)

	DebitWallet(ctx context.Context, userID string, amount decimal.Decimal, currency string) error
	CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, currency string) error
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	DeleteRegistration(ctx context.Context, id string) error
	IncrementRegisteredTeams(ctx context.Context, tournamentID string) error
}

// Transactor runs fn against a store bound to a single database transaction.
// Only the store passed to fn may be used inside it.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(DocumentStore) error) error
}

type DepositStore interface {
	CreatePendingDeposit(ctx context.Context, d *models.PendingDeposit) error
	GetPendingDeposit(ctx context.Context, id string) (*models.PendingDeposit, error)
	GetPendingDepositByRequestID(ctx context.Context, requestID string) (*models.PendingDeposit, error)
}

// Store is the GORM implementation of every store interface.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tournament{},
		&models.Registration{},
		&models.Wallet{},
		&models.UserProfile{},
		&models.PendingDeposit{},
	)
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(DocumentStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	var t models.Tournament
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err, "tournament "+id)
	}
	return &t, nil
}

// GetWalletBalance returns the balance held in currency; zero if the user never funded it.
func (s *Store) GetWalletBalance(ctx context.Context, userID, currency string) (decimal.Decimal, error) {
	var w models.Wallet
	err := s.db.WithContext(ctx).First(&w, "user_id = ? AND currency = ?", userID, walletCurrency(currency)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, translate(err, "wallet")
	}
	return w.Balance, nil
}

// GetKycStatus reads the mirrored profile; unknown users are NOT_SUBMITTED.
func (s *Store) GetKycStatus(ctx context.Context, userID string) (string, error) {
	var p models.UserProfile
	err := s.db.WithContext(ctx).Select("kyc_status").First(&p, "external_user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.KycStatusNotSubmitted, nil
	}
	if err != nil {
		return "", translate(err, "user profile")
	}
	return models.NormalizeKycStatus(p.KycStatus), nil
}

func (s *Store) GetRegistrationStatus(ctx context.Context, tournamentID, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Registration{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Count(&count).Error
	if err != nil {
		return false, translate(err, "registration")
	}
	return count > 0, nil
}

func (s *Store) GetRegistration(ctx context.Context, tournamentID, userID string) (*models.Registration, error) {
	var r models.Registration
	err := s.db.WithContext(ctx).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		First(&r).Error
	if err != nil {
		return nil, translate(err, "registration")
	}
	return &r, nil
}

// DebitWallet subtracts amount from the currency's wallet only if its balance covers it.
func (s *Store) DebitWallet(ctx context.Context, userID string, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND currency = ? AND balance >= ?", userID, walletCurrency(currency), amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return translate(res.Error, "wallet debit")
	}
	if res.RowsAffected == 0 {
		return models.ErrInsufficientBalance
	}
	return nil
}

// CreditWallet adds amount to the currency's wallet, creating it on first credit.
func (s *Store) CreditWallet(ctx context.Context, userID string, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return nil
	}
	w := models.Wallet{UserID: userID, Currency: walletCurrency(currency), Balance: amount}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("wallets.balance + excluded.balance"),
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&w).Error
	if err != nil {
		return translate(err, "wallet credit")
	}
	return nil
}

func (s *Store) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	if err := s.db.WithContext(ctx).Create(reg).Error; err != nil {
		if isDuplicate(err) {
			return models.ErrAlreadyRegistered
		}
		return translate(err, "registration")
	}
	return nil
}

func (s *Store) DeleteRegistration(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.Registration{}, "id = ?", id).Error; err != nil {
		return translate(err, "registration")
	}
	return nil
}

// IncrementRegisteredTeams is the compare-and-increment guarding max_teams.
func (s *Store) IncrementRegisteredTeams(ctx context.Context, tournamentID string) error {
	res := s.db.WithContext(ctx).Model(&models.Tournament{}).
		Where("id = ? AND max_teams > 0 AND registered_teams < max_teams", tournamentID).
		Update("registered_teams", gorm.Expr("registered_teams + 1"))
	if res.Error != nil {
		return translate(res.Error, "tournament slots")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Tournament{}).Where("id = ?", tournamentID).Count(&count).Error; err != nil {
		return translate(err, "tournament")
	}
	if count == 0 {
		return fmt.Errorf("tournament %s: %w", tournamentID, models.ErrNotFound)
	}
	return models.ErrSlotsFull
}

// walletCurrency is the wallet key for a currency code; blank means the platform default.
func walletCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "NGN"
	}
	return code
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

// translate maps driver errors onto the model taxonomy.
func translate(err error, what string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%s: %w: %v", what, models.ErrRemoteUnavailable, err)
	}
}
