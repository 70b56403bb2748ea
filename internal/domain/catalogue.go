package domain

import (
	"context"
	"fmt"
)

// PriceScale переводит цены карточек WB из минимальных единиц в рубли.
const PriceScale = 100.0

// SellerListing: строка из приватного фида цен и скидок продавца.
type SellerListing struct {
	ProductID      int64
	SellerDiscount float64
}

// CatalogueDetail: публичная карточка товара.
type CatalogueDetail struct {
	ProductID       int64
	SubjectID       int64
	SubjectParentID int64
	SubjectName     string
	Brand           string
	DisplayName     string
	BasicPriceMinor int64
	SitePriceMinor  int64
}

// CatalogueClient выгружает каталог продавца и карточки товаров.
type CatalogueClient interface {
	FetchSellerListing(ctx context.Context, cred Credential) ([]SellerListing, error)
	FetchDetails(ctx context.Context, productIDs []int64) ([]CatalogueDetail, error)
}

// FetchError описывает сбой обращения к фидам WB.
type FetchError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: ошибка API %d: %s", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: ошибка соединения: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
