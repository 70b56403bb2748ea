package domain

import "time"

// DefaultDiscountThreshold используется, пока пользователь не задал свой порог.
const DefaultDiscountThreshold = 28

// User описывает продавца, работающего с ботом.
type User struct {
	ID                int64
	TGUserID          int64
	Username          string
	Email             string
	ExcelFilePath     string
	ExcelFileName     string
	DiscountThreshold int
	UseDefaultKeys    bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasSpreadsheet сообщает, загружен ли у пользователя справочник комиссий.
func (u User) HasSpreadsheet() bool {
	return u.ExcelFilePath != ""
}

// Threshold возвращает порог реальной скидки с учётом значения по умолчанию.
func (u User) Threshold() int {
	if u.DiscountThreshold < 0 || u.DiscountThreshold > 100 {
		return DefaultDiscountThreshold
	}
	return u.DiscountThreshold
}

// APIKey хранит ключ продавца к API цен и скидок WB.
type APIKey struct {
	ID        int64
	UserID    int64
	Name      string
	Value     string
	Active    bool
	CreatedAt time.Time
}
