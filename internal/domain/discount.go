package domain

import "time"

// ReconciledProduct: товар с рассчитанной реальной скидкой.
type ReconciledProduct struct {
	ProductID              int64   `json:"product_id"`
	SellerDiscount         float64 `json:"seller_discount"`
	SiteDiscount           float64 `json:"site_discount"`
	RealDiscount           float64 `json:"real_discount"`
	BasicPrice             float64 `json:"basic_price"`
	SitePrice              float64 `json:"site_price"`
	Category               string  `json:"category,omitempty"`
	Subject                string  `json:"subject,omitempty"`
	CommissionWarehouse    string  `json:"commission_wb,omitempty"`
	CommissionFBS          string  `json:"commission_fbs,omitempty"`
	CommissionSelfDelivery string  `json:"commission_self,omitempty"`
	SubjectName            string  `json:"subject_name,omitempty"`
	Brand                  string  `json:"brand,omitempty"`
	DisplayName            string  `json:"display_name,omitempty"`
}

// HasTaxonomy сообщает, найден ли товар в справочнике комиссий.
func (p ReconciledProduct) HasTaxonomy() bool {
	return p.Category != "" && p.Subject != ""
}

// DiscountSample: пара «реальная скидка, артикул» для статистики.
type DiscountSample struct {
	RealDiscount float64 `json:"real_discount"`
	ProductID    int64   `json:"product_id"`
}

// CredentialResult: итог обработки одного ключа, одна страница выдачи.
type CredentialResult struct {
	Label           string              `json:"label"`
	Kind            CredentialKind      `json:"kind"`
	TotalProducts   int                 `json:"total_products"`
	FilteredCount   int                 `json:"filtered_count"`
	Products        []ReconciledProduct `json:"products"`
	Threshold       float64             `json:"threshold"`
	Histogram       map[string]int      `json:"histogram,omitempty"`
	Top             []DiscountSample    `json:"top,omitempty"`
	PricedProducts  int                 `json:"priced_products"`
	SkippedNoDetail int                 `json:"skipped_no_detail"`
	SkippedNoPrice  int                 `json:"skipped_no_price"`
	HadError        bool                `json:"had_error"`
	Error           string              `json:"error,omitempty"`
}

// Failed сообщает, что ключ не удалось загрузить. Пустой список товаров сбоем не считается.
func (r CredentialResult) Failed() bool {
	return r.HadError && r.Error != ""
}

// IsShared сообщает, что результат получен по общему ключу.
func (r CredentialResult) IsShared() bool {
	return r.Kind == CredentialSharedDefault
}

// PagerSession хранит результаты последнего запроса списка товаров.
type PagerSession struct {
	UserID      int64              `json:"user_id"`
	Results     []CredentialResult `json:"results"`
	CurrentPage int                `json:"current_page"`
	CreatedAt   time.Time          `json:"created_at"`
}
