package discount

import (
	"sort"
	"strconv"

	"wb-products-bot/internal/domain"
)

// Reconcile сверяет фид продавца с карточками и считает реальную скидку.
// Функция чистая: одинаковые входные данные дают одинаковый результат.
// lookup может быть nil, тогда товары не обогащаются справочником.
func Reconcile(listings []domain.SellerListing, details []domain.CatalogueDetail, lookup domain.CommissionLookup, threshold float64) domain.CredentialResult {
	res := domain.CredentialResult{
		TotalProducts: len(listings),
		Threshold:     threshold,
		Products:      []domain.ReconciledProduct{},
	}

	byID := make(map[int64]domain.CatalogueDetail, len(details))
	for _, d := range details {
		byID[d.ProductID] = d
	}

	samples := make([]domain.DiscountSample, 0, len(listings))
	retained := make([]domain.ReconciledProduct, 0)
	for _, l := range listings {
		d, ok := byID[l.ProductID]
		if !ok {
			res.SkippedNoDetail++
			continue
		}
		if d.BasicPriceMinor <= 0 {
			res.SkippedNoPrice++
			continue
		}
		basic := float64(d.BasicPriceMinor) / domain.PriceScale
		site := float64(d.SitePriceMinor) / domain.PriceScale
		siteDiscount := (basic - site) / basic * 100
		realDiscount := siteDiscount - l.SellerDiscount

		samples = append(samples, domain.DiscountSample{RealDiscount: realDiscount, ProductID: l.ProductID})
		if realDiscount < threshold {
			continue
		}
		retained = append(retained, domain.ReconciledProduct{
			ProductID:      l.ProductID,
			SellerDiscount: l.SellerDiscount,
			SiteDiscount:   siteDiscount,
			RealDiscount:   realDiscount,
			BasicPrice:     basic,
			SitePrice:      site,
			SubjectName:    d.SubjectName,
			Brand:          d.Brand,
			DisplayName:    d.DisplayName,
		})
	}

	res.PricedProducts = len(samples)
	res.FilteredCount = len(retained)
	res.Histogram = Histogram(samples)
	res.Top = topSamples(samples, TopLimit)

	seen := make(map[string]struct{}, len(retained))
	for _, p := range retained {
		if lookup != nil && p.SubjectName != "" {
			if e, ok := lookup.Find(p.SubjectName); ok {
				p.Category = e.Category
				p.Subject = e.Subject
				p.CommissionWarehouse = e.CommissionWarehouse
				p.CommissionFBS = e.CommissionFBS
				p.CommissionSelfDelivery = e.CommissionSelfDelivery
			}
		}
		key := dedupKey(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		res.Products = append(res.Products, p)
	}
	return res
}

func dedupKey(p domain.ReconciledProduct) string {
	switch {
	case p.HasTaxonomy():
		return p.Category + "|" + p.Subject
	case p.SubjectName != "":
		return "no_category|" + p.SubjectName
	default:
		return "unknown|" + strconv.FormatInt(p.ProductID, 10)
	}
}

// topSamples возвращает limit значений с наибольшей скидкой; при равенстве выше больший артикул.
func topSamples(samples []domain.DiscountSample, limit int) []domain.DiscountSample {
	sorted := make([]domain.DiscountSample, len(samples))
	copy(sorted, samples)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RealDiscount != sorted[j].RealDiscount {
			return sorted[i].RealDiscount > sorted[j].RealDiscount
		}
		return sorted[i].ProductID > sorted[j].ProductID
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
