package domain

import "fmt"

// CommissionEntry: строка справочника категорий и комиссий.
type CommissionEntry struct {
	Category               string `json:"category"`
	Subject                string `json:"subject"`
	CommissionWarehouse    string `json:"commission_wb"`
	CommissionFBS          string `json:"commission_fbs"`
	CommissionSelfDelivery string `json:"commission_self"`
}

// CommissionLookup ищет запись справочника по названию предмета.
type CommissionLookup interface {
	Find(subject string) (CommissionEntry, bool)
}

// MalformedSpreadsheetError возвращается, если справочник не удалось прочитать.
type MalformedSpreadsheetError struct {
	Source string
	Err    error
}

func (e *MalformedSpreadsheetError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("не удалось прочитать справочник: %v", e.Err)
	}
	return fmt.Sprintf("не удалось прочитать справочник %s: %v", e.Source, e.Err)
}

func (e *MalformedSpreadsheetError) Unwrap() error {
	return e.Err
}
