package domain

import "time"

// CatalogProduct is a priced base component.
type CatalogProduct struct {
	SKU      string  `json:"sku" yaml:"sku" firestore:"sku"`
	Title    string  `json:"title" yaml:"title" firestore:"title"`
	Price    float64 `json:"price" yaml:"price" firestore:"price"`
	Currency string  `json:"currency" yaml:"currency" firestore:"currency"`
}

// CustomizationFee is the personalisation surcharge addressed by feeKey.
type CustomizationFee struct {
	Key         string  `json:"key" yaml:"key" firestore:"key"`
	Amount      float64 `json:"amount" yaml:"amount" firestore:"amount"`
	Currency    string  `json:"currency" yaml:"currency" firestore:"currency"`
	Description string  `json:"description" yaml:"description" firestore:"description"`
}

// AddonDelta is the price delta of a premium addon.
type AddonDelta struct {
	Key         string  `json:"key" yaml:"key" firestore:"key"`
	Amount      float64 `json:"amount" yaml:"amount" firestore:"amount"`
	Currency    string  `json:"currency" yaml:"currency" firestore:"currency"`
	Unit        string  `json:"unit" yaml:"unit" firestore:"unit"`
	Description string  `json:"description" yaml:"description" firestore:"description"`
}

// PricebookSnapshot is one immutable version of the price tables.
type PricebookSnapshot struct {
	Version     string                      `json:"version" yaml:"version" firestore:"version"`
	Currency    string                      `json:"currency" yaml:"currency" firestore:"currency"`
	Products    map[string]CatalogProduct   `json:"products" yaml:"products" firestore:"products"`
	Fees        map[string]CustomizationFee `json:"fees" yaml:"fees" firestore:"fees"`
	Addons      map[string]AddonDelta       `json:"addons" yaml:"addons" firestore:"addons"`
	PublishedAt time.Time                   `json:"publishedAt" yaml:"publishedAt" firestore:"publishedAt"`
}

// Pricebook is the read-only lookup the pricing engine prices against. The
// version travels with the tables so stale data can never be priced silently.
type Pricebook interface {
	Version() string
	Currency() string
	Product(sku string) (CatalogProduct, bool)
	CustomizationFee(feeKey string) (CustomizationFee, bool)
	AddonDelta(pricingKey string) (AddonDelta, bool)
}

// Lookup exposes the snapshot through the Pricebook interface.
func (s PricebookSnapshot) Lookup() Pricebook {
	return snapshotLookup{snap: s}
}

type snapshotLookup struct {
	snap PricebookSnapshot
}

func (l snapshotLookup) Version() string  { return l.snap.Version }
func (l snapshotLookup) Currency() string { return l.snap.Currency }

func (l snapshotLookup) Product(sku string) (CatalogProduct, bool) {
	p, ok := l.snap.Products[sku]
	return p, ok
}

func (l snapshotLookup) CustomizationFee(feeKey string) (CustomizationFee, bool) {
	f, ok := l.snap.Fees[feeKey]
	return f, ok
}

func (l snapshotLookup) AddonDelta(pricingKey string) (AddonDelta, bool) {
	a, ok := l.snap.Addons[pricingKey]
	return a, ok
}

// Clone returns a snapshot whose maps can be modified without touching s.
func (s PricebookSnapshot) Clone() PricebookSnapshot {
	out := s
	if s.Products != nil {
		out.Products = make(map[string]CatalogProduct, len(s.Products))
		for k, v := range s.Products {
			out.Products[k] = v
		}
	}
	if s.Fees != nil {
		out.Fees = make(map[string]CustomizationFee, len(s.Fees))
		for k, v := range s.Fees {
			out.Fees[k] = v
		}
	}
	if s.Addons != nil {
		out.Addons = make(map[string]AddonDelta, len(s.Addons))
		for k, v := range s.Addons {
			out.Addons[k] = v
		}
	}
	return out
}
