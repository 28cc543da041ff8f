package service

import (
	"context"
	"strings"
	"time"
	"unicode"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/vault"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreditCard is the card section of a checkout request.
type CreditCard struct {
	CardName     string `json:"card_name"`
	CardNumber   string `json:"card_number"`
	ExpiryDate   string `json:"expiry_date"`
	CVV          string `json:"cvv"`
	UseSavedCard bool   `json:"use_saved_card"`
	CardID       int64  `json:"card_id"`
	SaveNewCard  bool   `json:"save_new_card"`
}

// CardDetails is a resolved card ready for authorization.
type CardDetails struct {
	Name   string
	Number string
	Expiry string
	CVV    string
}

// PaymentAuthorizer decides whether a payment is accepted. Gateway
// integration is outside this service; a rejection surfaces as
// apperr.ErrPaymentFailed and aborts checkout before any mutation.
type PaymentAuthorizer interface {
	Authorize(ctx context.Context, card CardDetails, amount decimal.Decimal) error
}

// CardCheckAuthorizer accepts any well-formed, unexpired card.
type CardCheckAuthorizer struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewCardCheckAuthorizer creates the default authorizer
func NewCardCheckAuthorizer() *CardCheckAuthorizer {
	return &CardCheckAuthorizer{now: time.Now, logger: util.GetLogger()}
}

func (a *CardCheckAuthorizer) Authorize(ctx context.Context, card CardDetails, amount decimal.Decimal) error {
	_, span := util.StartSpan(ctx, "CardCheckAuthorizer.Authorize")
	defer span.End()

	if !allDigits(card.Number) || len(card.Number) < 12 || len(card.Number) > 19 {
		return paymentFailed("card number is invalid")
	}
	if !allDigits(card.CVV) || len(card.CVV) < 3 || len(card.CVV) > 4 {
		return paymentFailed("cvv is invalid")
	}

	expiry, err := time.Parse("01/06", card.Expiry)
	if err != nil {
		return paymentFailed("expiry date must be MM/YY")
	}
	// valid through the last day of the expiry month
	if !a.now().Before(expiry.AddDate(0, 1, 0)) {
		return paymentFailed("card has expired")
	}

	a.logger.Debug("Payment authorized",
		zap.String("last4", last4(card.Number)),
		zap.String("amount", amount.StringFixed(2)))
	return nil
}

func paymentFailed(msg string) error {
	return apperr.New("payment.Authorize", apperr.ErrPaymentFailed, "%s", msg)
}

// resolveCard turns the request's card section into card details, decrypting
// a saved card when one is selected.
func resolveCard(ctx context.Context, tx store.Tx, v *vault.Vault, userID int64, req CreditCard) (CardDetails, error) {
	if req.UseSavedCard {
		saved, err := tx.GetCard(ctx, userID, req.CardID)
		if err != nil {
			return CardDetails{}, err
		}
		if v == nil {
			return CardDetails{}, apperr.New("checkout.resolveCard", apperr.ErrPaymentFailed, "saved cards are unavailable")
		}
		details := CardDetails{Name: saved.CardName}
		if details.Number, err = v.Open(saved.EncryptedNumber); err != nil {
			return CardDetails{}, err
		}
		if details.Expiry, err = v.Open(saved.EncryptedExpiry); err != nil {
			return CardDetails{}, err
		}
		if details.CVV, err = v.Open(saved.EncryptedCVV); err != nil {
			return CardDetails{}, err
		}
		return details, nil
	}

	details := CardDetails{
		Name:   strings.TrimSpace(req.CardName),
		Number: strings.ReplaceAll(strings.TrimSpace(req.CardNumber), " ", ""),
		Expiry: strings.TrimSpace(req.ExpiryDate),
		CVV:    strings.TrimSpace(req.CVV),
	}
	if details.Number == "" || details.Expiry == "" || details.CVV == "" {
		return CardDetails{}, apperr.New("checkout.resolveCard", apperr.ErrPaymentFailed, "card details are incomplete")
	}
	return details, nil
}

// saveCard stores a new card encrypted; only the last four digits stay readable.
func saveCard(ctx context.Context, tx store.Tx, v *vault.Vault, userID int64, card CardDetails) (*models.SavedCard, error) {
	if v == nil {
		return nil, apperr.New("checkout.saveCard", apperr.ErrInvalidInput, "saving cards is unavailable")
	}
	if card.Name == "" {
		return nil, apperr.New("checkout.saveCard", apperr.ErrInvalidInput, "card_name is required to save a card")
	}

	saved := &models.SavedCard{UserID: userID, CardName: card.Name, Last4: last4(card.Number)}
	var err error
	if saved.EncryptedNumber, err = v.Seal(card.Number); err != nil {
		return nil, err
	}
	if saved.EncryptedExpiry, err = v.Seal(card.Expiry); err != nil {
		return nil, err
	}
	if saved.EncryptedCVV, err = v.Seal(card.CVV); err != nil {
		return nil, err
	}
	if err := tx.CreateCard(ctx, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
