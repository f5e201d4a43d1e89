package negotiation

import (
	"github.com/shopspring/decimal"

	"github.com/sourcelane/negotiator-backend/pkg/db/models"
)

// SupplierProfileFromModel maps a supplier row to its domain profile.
func SupplierProfileFromModel(row models.Supplier) SupplierProfile {
	return SupplierProfile{
		ID:            row.ID,
		Name:          row.Name,
		Code:          row.Code,
		QualityRating: row.QualityRating,
		PriceLevel:    row.PriceLevel,
		LeadTimeDays:  row.LeadTimeDays,
		PaymentTerms:  row.PaymentTerms,
		PrimarySource: row.PrimarySource,
	}
}

// QuotationItemFromModel maps a baseline row to its domain value.
func QuotationItemFromModel(row models.QuotationItem) QuotationItem {
	return QuotationItem{
		SKU:         row.SKU,
		Description: row.Description,
		Quantity:    row.Quantity,
		UnitPrice:   row.UnitPrice.InexactFloat64(),
		TotalPrice:  row.TotalPrice.InexactFloat64(),
	}
}

// OfferFromModel maps an offer row and its items to the domain value.
func OfferFromModel(row models.Offer) Offer {
	items := make([]OfferItem, 0, len(row.Items))
	for _, item := range row.Items {
		items = append(items, OfferItem{
			SKU:         item.SKU,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
			Quantity:    item.Quantity,
			VolumeTiers: item.VolumeTiers,
		})
	}
	return Offer{
		TotalCost:    row.TotalCost.InexactFloat64(),
		Items:        items,
		LeadTimeDays: row.LeadTimeDays,
		PaymentTerms: row.PaymentTerms,
		Concessions:  append([]string(nil), row.Concessions...),
		Conditions:   append([]string(nil), row.Conditions...),
	}
}

// OfferToModel maps a domain offer to its persistence rows.
func OfferToModel(offer Offer) models.Offer {
	items := make([]models.OfferItem, 0, len(offer.Items))
	for _, item := range offer.Items {
		items = append(items, models.OfferItem{
			SKU:         item.SKU,
			UnitPrice:   decimal.NewFromFloat(item.UnitPrice),
			Quantity:    item.Quantity,
			VolumeTiers: item.VolumeTiers,
		})
	}
	return models.Offer{
		TotalCost:    decimal.NewFromFloat(offer.TotalCost),
		LeadTimeDays: offer.LeadTimeDays,
		PaymentTerms: offer.PaymentTerms,
		Concessions:  offer.Concessions,
		Conditions:   offer.Conditions,
		Items:        items,
	}
}
