// Package pricing реализует детерминированный расчёт стоимости съёмки.
//
// Все суммы — целые числа в минимальных единицах валюты. Расчёт не имеет
// побочных эффектов: одинаковый вход всегда даёт одинаковый результат, это
// требование аудита выставленных счетов.
package pricing

import (
	"github.com/sivanpabraj/studio-m/internal/model"
)

// Rates задаёт тарифы студии.
type Rates struct {
	// Base — базовая ставка по типу съёмки. Для model.ServiceOther базовая
	// ставка берётся из ServiceSpec.CustomBaseCost.
	Base map[model.ServiceType]int64

	ExtraCamera              int64 // за камеру сверх двух
	AerialShot               int64 // надбавка за аэросъёмку
	ExtraPhotographer        int64 // за оператора сверх базы
	WeddingExtraPhotographer int64 // то же для свадеб

	TaxPercent      int64 // НДС, процентов
	DiscountPercent int64 // скидка, процентов; применяется до налога
	DepositPercent  int64 // доля предоплаты от итога, процентов
}

// DefaultRates возвращает тарифы студии по умолчанию.
func DefaultRates() Rates {
	return Rates{
		Base: map[model.ServiceType]int64{
			model.ServiceBirthday:   500000,
			model.ServiceWedding:    2000000,
			model.ServiceEngagement: 1000000,
			model.ServiceGeneral:    300000,
			model.ServiceOther:      0,
		},
		ExtraCamera:              100000,
		AerialShot:               200000,
		ExtraPhotographer:        150000,
		WeddingExtraPhotographer: 300000,
		TaxPercent:               9,
		DiscountPercent:          0,
		DepositPercent:           50,
	}
}

// LineItem — одна строка надбавки в смете.
type LineItem struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
}

// Breakdown — полная смета по брони.
type Breakdown struct {
	BaseAmount int64      `json:"base_amount"`
	Extras     []LineItem `json:"extras,omitempty"`
	Subtotal   int64      `json:"subtotal"`
	Discount   int64      `json:"discount"`
	Tax        int64      `json:"tax"`
	Total      int64      `json:"total"`
	Deposit    int64      `json:"deposit"`
}

// Calculator считает смету по заданным тарифам.
type Calculator struct {
	rates Rates
}

// NewCalculator создаёт калькулятор с указанными тарифами.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

const (
	baselineCameras             = 2
	baselinePhotographers       = 1
	weddingBaselinePhotographers = 2
)

// percentOf возвращает percent% от amount с округлением к ближайшему
// целому, половина — вверх.
func percentOf(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}

// Compute строит смету для указанного типа съёмки и собранных параметров.
func (c *Calculator) Compute(serviceType model.ServiceType, spec model.ServiceSpec) Breakdown {
	base := c.rates.Base[serviceType]
	if serviceType == model.ServiceOther {
		base = spec.CustomBaseCost
	}
	if base < 0 {
		base = 0
	}

	b := Breakdown{
		BaseAmount: base,
		Subtotal:   base,
	}

	if spec.CameraCount > baselineCameras {
		extra := int64(spec.CameraCount-baselineCameras) * c.rates.ExtraCamera
		b.Extras = append(b.Extras, LineItem{Description: "extra cameras", Amount: extra})
		b.Subtotal += extra
	}

	if spec.NeedsAerialShot {
		b.Extras = append(b.Extras, LineItem{Description: "aerial shot", Amount: c.rates.AerialShot})
		b.Subtotal += c.rates.AerialShot
	}

	basePhotographers := baselinePhotographers
	perPhotographer := c.rates.ExtraPhotographer
	if serviceType == model.ServiceWedding {
		basePhotographers = weddingBaselinePhotographers
		perPhotographer = c.rates.WeddingExtraPhotographer
	}
	if spec.PhotographerCount > basePhotographers {
		extra := int64(spec.PhotographerCount-basePhotographers) * perPhotographer
		b.Extras = append(b.Extras, LineItem{Description: "extra photographers", Amount: extra})
		b.Subtotal += extra
	}

	if c.rates.DiscountPercent > 0 {
		b.Discount = percentOf(b.Subtotal, c.rates.DiscountPercent)
	}

	taxable := b.Subtotal - b.Discount
	b.Tax = percentOf(taxable, c.rates.TaxPercent)
	b.Total = taxable + b.Tax
	b.Deposit = percentOf(b.Total, c.rates.DepositPercent)

	return b
}
