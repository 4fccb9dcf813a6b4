package mailbox

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"time"

	"monarchmail-be/internal/utils"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed pricing.yaml
var pricingYAML []byte

type pricingFile struct {
	Key       int64  `yaml:"key"`
	TaxRate   string `yaml:"tax_rate"`
	Promotion struct {
		Discount  string `yaml:"discount"`
		MinMonths int    `yaml:"min_months"`
	} `yaml:"promotion"`
	Coupons   map[string]int64                    `yaml:"coupons"`
	Mailboxes map[string]map[string]map[int]int64 `yaml:"mailboxes"`
}

// Catalog prices mailbox terms. The long-term promotion applies while now is
// before PromoEndsAt.
type Catalog struct {
	Key            decimal.Decimal
	TaxRate        decimal.Decimal
	PromoDiscount  decimal.Decimal
	PromoMinMonths int
	PromoEndsAt    time.Time

	coupons map[string]decimal.Decimal
	prices  map[string]map[string]map[int]decimal.Decimal
}

func LoadCatalog(promoEndsAt time.Time) (*Catalog, error) {
	return parseCatalog(pricingYAML, promoEndsAt)
}

func parseCatalog(raw []byte, promoEndsAt time.Time) (*Catalog, error) {
	var f pricingFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse pricing: %w", err)
	}

	tax, err := decimal.NewFromString(f.TaxRate)
	if err != nil {
		return nil, fmt.Errorf("parse tax_rate: %w", err)
	}
	promo, err := decimal.NewFromString(f.Promotion.Discount)
	if err != nil {
		return nil, fmt.Errorf("parse promotion discount: %w", err)
	}

	c := &Catalog{
		Key:            decimal.NewFromInt(f.Key),
		TaxRate:        tax,
		PromoDiscount:  promo,
		PromoMinMonths: f.Promotion.MinMonths,
		PromoEndsAt:    promoEndsAt,
		coupons:        make(map[string]decimal.Decimal, len(f.Coupons)),
		prices:         make(map[string]map[string]map[int]decimal.Decimal, len(f.Mailboxes)),
	}
	for code, amount := range f.Coupons {
		c.coupons[strings.ToLower(code)] = decimal.NewFromInt(amount)
	}
	for category, sizes := range f.Mailboxes {
		c.prices[category] = make(map[string]map[int]decimal.Decimal, len(sizes))
		for size, terms := range sizes {
			c.prices[category][size] = make(map[int]decimal.Decimal, len(terms))
			for months, price := range terms {
				c.prices[category][size][months] = decimal.NewFromInt(price)
			}
		}
	}
	return c, nil
}

func (c *Catalog) PromotionActive(now time.Time) bool {
	return now.Before(c.PromoEndsAt)
}

// Price is the term price after any promotion.
func (c *Catalog) Price(category, size string, months int, now time.Time) (decimal.Decimal, bool) {
	base, ok := c.prices[category][size][months]
	if !ok {
		return decimal.Zero, false
	}
	if c.PromotionActive(now) && months >= c.PromoMinMonths {
		return base.Mul(decimal.NewFromInt(1).Sub(c.PromoDiscount)).Round(2), true
	}
	return base, true
}

func (c *Catalog) Sizes(category string) []string {
	var out []string
	for size := range c.prices[category] {
		out = append(out, size)
	}
	slices.Sort(out)
	return out
}

func (c *Catalog) Coupon(code string) (decimal.Decimal, bool) {
	amount, ok := c.coupons[strings.ToLower(strings.TrimSpace(code))]
	return amount, ok
}

// Selection is what the customer picked on the mailbox step.
type Selection struct {
	UseType string
	Size    string
	Months  int
	AddKey  bool
	Coupon  string
}

func (s Selection) Category() string {
	if s.UseType == UseBusiness || s.UseType == UseBoth {
		return CategoryBusiness
	}
	return CategoryPersonal
}

type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Duration string          `json:"duration,omitempty"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Quote lists the selected products and their totals. Tax applies after the
// coupon; the coupon never takes the subtotal below zero.
func (c *Catalog) Quote(sel Selection, now time.Time) ([]Product, Totals) {
	var products []Product
	if sel.AddKey {
		products = append(products, Product{ID: "key", Name: "Mailbox Key", Price: c.Key})
	}

	category := sel.Category()
	if price, ok := c.Price(category, sel.Size, sel.Months, now); ok {
		suffix := "p"
		if category == CategoryBusiness {
			suffix = "b"
		}
		products = append(products, Product{
			ID:       fmt.Sprintf("%s_%dmo_%s", sel.Size, sel.Months, suffix),
			Name:     fmt.Sprintf("%s Mailbox (%s)", utils.Capitalize(sel.Size), utils.Capitalize(category)),
			Price:    price,
			Duration: fmt.Sprintf("%d months", sel.Months),
		})
	}

	subtotal := decimal.Zero
	for _, p := range products {
		subtotal = subtotal.Add(p.Price)
	}

	discount := decimal.Zero
	if amount, ok := c.Coupon(sel.Coupon); ok && sel.Coupon != "" {
		discount = decimal.Min(amount, subtotal)
	}

	taxable := subtotal.Sub(discount)
	tax := taxable.Mul(c.TaxRate).Round(2)
	return products, Totals{
		Subtotal: subtotal.Round(2),
		Discount: discount.Round(2),
		Tax:      tax,
		Total:    taxable.Add(tax).Round(2),
	}
}
