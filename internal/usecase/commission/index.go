package commission

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"wb-products-bot/internal/domain"
)

// Позиции столбцов справочника.
const (
	colCategory = iota
	colSubject
	colWarehouse
	colFBS
	colSelfDelivery
)

// maxLengthDelta: допустимая разница длин при поиске по вхождению.
const maxLengthDelta = 3

// Index хранит справочник комиссий по нормализованному названию предмета.
// После загрузки не изменяется и безопасен для конкурентного чтения.
type Index struct {
	keys    []string
	entries map[string]domain.CommissionEntry
}

// Stats: сводка по справочнику.
type Stats struct {
	Subjects   int
	Categories int
}

// Load читает xlsx из потока.
func Load(r io.Reader) (*Index, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.MalformedSpreadsheetError{Err: err}
	}
	defer f.Close()
	return fromWorkbook(f, "")
}

// LoadFile читает xlsx с диска.
func LoadFile(path string) (*Index, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &domain.MalformedSpreadsheetError{Source: path, Err: err}
	}
	defer f.Close()
	return fromWorkbook(f, path)
}

func fromWorkbook(f *excelize.File, source string) (*Index, error) {
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, &domain.MalformedSpreadsheetError{Source: source, Err: fmt.Errorf("в файле нет листов")}
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &domain.MalformedSpreadsheetError{Source: source, Err: err}
	}

	idx := &Index{entries: make(map[string]domain.CommissionEntry)}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		subject := cell(row, colSubject)
		if subject == "" {
			continue
		}
		idx.put(Normalize(subject), domain.CommissionEntry{
			Category:               cell(row, colCategory),
			Subject:                subject,
			CommissionWarehouse:    cell(row, colWarehouse),
			CommissionFBS:          cell(row, colFBS),
			CommissionSelfDelivery: cell(row, colSelfDelivery),
		})
	}
	return idx, nil
}

// NewIndex собирает справочник из готовых записей в заданном порядке.
func NewIndex(entries []domain.CommissionEntry) *Index {
	idx := &Index{entries: make(map[string]domain.CommissionEntry, len(entries))}
	for _, e := range entries {
		if strings.TrimSpace(e.Subject) == "" {
			continue
		}
		idx.put(Normalize(e.Subject), e)
	}
	return idx
}

// put сохраняет запись; повторный ключ перезаписывает значение, но сохраняет позицию.
func (idx *Index) put(key string, entry domain.CommissionEntry) {
	if _, ok := idx.entries[key]; !ok {
		idx.keys = append(idx.keys, key)
	}
	idx.entries[key] = entry
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// Normalize приводит текст к ключу поиска: нижний регистр, одиночные пробелы,
// грубое приведение слов длиннее 4 букв к единственному числу.
func Normalize(text string) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		if utf8.RuneCountInString(w) <= 4 {
			continue
		}
		switch {
		case strings.HasSuffix(w, "ики"):
			words[i] = strings.TrimSuffix(w, "и")
		case strings.HasSuffix(w, "и") && !strings.HasSuffix(w, "ии"):
			words[i] = strings.TrimSuffix(w, "и")
		case strings.HasSuffix(w, "ы"):
			words[i] = strings.TrimSuffix(w, "ы")
		}
	}
	return strings.Join(words, " ")
}

// Find ищет запись по названию предмета: точный ключ, затем равенство
// нормализованных ключей, затем вхождение с разницей длин не больше трёх символов.
// При нескольких совпадениях побеждает запись, добавленная раньше.
func (idx *Index) Find(subject string) (domain.CommissionEntry, bool) {
	if idx == nil {
		return domain.CommissionEntry{}, false
	}
	q := Normalize(subject)
	if q == "" {
		return domain.CommissionEntry{}, false
	}
	if e, ok := idx.entries[q]; ok {
		return e, true
	}
	for _, key := range idx.keys {
		if Normalize(key) == q {
			return idx.entries[key], true
		}
	}
	qLen := utf8.RuneCountInString(q)
	for _, key := range idx.keys {
		if !strings.Contains(key, q) && !strings.Contains(q, key) {
			continue
		}
		if abs(utf8.RuneCountInString(key)-qLen) <= maxLengthDelta {
			return idx.entries[key], true
		}
	}
	return domain.CommissionEntry{}, false
}

// Stats считает предметы и непустые категории.
func (idx *Index) Stats() Stats {
	if idx == nil {
		return Stats{}
	}
	categories := make(map[string]struct{})
	for _, e := range idx.entries {
		if e.Category != "" {
			categories[e.Category] = struct{}{}
		}
	}
	return Stats{Subjects: len(idx.entries), Categories: len(categories)}
}

// Len возвращает количество предметов.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.keys)
}

// abs возвращает модуль целого числа.
func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
