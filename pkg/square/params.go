package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
)

const shippingLineName = "Shipping"

// paymentLinkRequest builds an ad-hoc Square order for the payment link.
// Shipping is billed as its own line so the order total matches the storefront total.
func paymentLinkRequest(locationID, idempotencyKey string, req checkout.SessionRequest) *sqcheckout.CreatePaymentLinkRequest {
	order := &sq.Order{
		LocationID:  locationID,
		ReferenceID: ptrString(req.Reference),
	}
	for _, line := range req.Lines {
		item := &sq.OrderLineItem{
			Name:           ptrString(line.Name),
			Quantity:       strconv.Itoa(line.Quantity),
			BasePriceMoney: moneyPtr(line.UnitPrice, req.Currency),
		}
		if variant := variantName(line); variant != "" {
			item.VariationName = ptrString(variant)
		}
		order.LineItems = append(order.LineItems, item)
	}
	if req.ShippingFee > 0 {
		order.LineItems = append(order.LineItems, &sq.OrderLineItem{
			Name:           ptrString(shippingLineName),
			Quantity:       "1",
			BasePriceMoney: moneyPtr(req.ShippingFee, req.Currency),
		})
	}

	body := &sqcheckout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order:          order,
		CheckoutOptions: &sq.CheckoutOptions{
			RedirectURL: ptrString(req.ReturnURLs.Success),
		},
	}

	prefill := &sq.PrePopulatedData{
		BuyerEmail:       ptrString(req.Contact.Email),
		BuyerPhoneNumber: ptrString(req.Contact.Phone),
	}
	if addr := buyerAddress(req.Shipping); addr != nil {
		prefill.BuyerAddress = addr
	}
	if prefill.BuyerEmail != nil || prefill.BuyerPhoneNumber != nil || prefill.BuyerAddress != nil {
		body.PrePopulatedData = prefill
	}
	return body
}

func variantName(line checkout.LineDescription) string {
	if line.Color == "" {
		return line.Size
	}
	return line.Color + " / " + line.Size
}

func buyerAddress(addr checkout.Address) *sq.Address {
	if strings.TrimSpace(addr.PostalCode) == "" && strings.TrimSpace(addr.Line1) == "" {
		return nil
	}
	return &sq.Address{
		PostalCode:                   ptrString(addr.PostalCode),
		AdministrativeDistrictLevel1: ptrString(addr.Prefecture),
		Locality:                     ptrString(addr.City),
		AddressLine1:                 ptrString(addr.Line1),
		AddressLine2:                 ptrString(addr.Line2),
	}
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "JPY"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
