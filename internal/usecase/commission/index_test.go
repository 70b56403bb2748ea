package commission

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"wb-products-bot/internal/domain"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			t.Fatalf("не ожидали ошибку записи строки: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("не ожидали ошибку сохранения: %v", err)
	}
	return buf.Bytes()
}

var header = []any{"Категория", "Предмет", "Комиссия WB", "Комиссия FBS", "Самовывоз"}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Коврики для ванной", "коврик для ванной"},
		{"коврик для ванны", "коврик для ванн"},
		{"  Домкраты  ", "домкрат"},
		{"Линии", "линии"},
		{"Лонгсливы   мужские", "лонгслив мужские"},
		{"Носки", "носк"},
		{"сок", "сок"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, ожидали %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadSkipsHeaderAndEmptySubjects(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		header,
		{"Дом", "Коврики для ванной", "15", "17", "12"},
		{"Дом", "", "1", "1", "1"},
		{"Авто", "Домкраты", "18"},
		{"", "Зонты", "10", "11", "9"},
	})
	idx, err := Load(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("ожидали 3 предмета, получили %d", idx.Len())
	}
	e, ok := idx.Find("Домкраты")
	if !ok {
		t.Fatalf("ожидали найти домкраты")
	}
	if e.Category != "Авто" || e.CommissionWarehouse != "18" || e.CommissionFBS != "" {
		t.Fatalf("неожиданная запись: %+v", e)
	}
	stats := idx.Stats()
	if stats.Subjects != 3 || stats.Categories != 2 {
		t.Fatalf("неожиданная статистика: %+v", stats)
	}
}

func TestLoadHeaderOnlyIsEmpty(t *testing.T) {
	idx, err := Load(bytes.NewReader(buildWorkbook(t, [][]any{header})))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("ожидали пустой справочник")
	}
}

func TestLoadMalformed(t *testing.T) {
	_, err := Load(strings.NewReader("это не xlsx"))
	var malformed *domain.MalformedSpreadsheetError
	if !errors.As(err, &malformed) {
		t.Fatalf("ожидали MalformedSpreadsheetError, получили %v", err)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.xlsx"))
	var malformed *domain.MalformedSpreadsheetError
	if !errors.As(err, &malformed) {
		t.Fatalf("ожидали MalformedSpreadsheetError, получили %v", err)
	}
	if malformed.Source == "" {
		t.Fatalf("ожидали путь в ошибке")
	}
}

func TestLoadLastWriteWins(t *testing.T) {
	idx, err := Load(bytes.NewReader(buildWorkbook(t, [][]any{
		header,
		{"Дом", "Коврики", "10"},
		{"Дом", "Шторы", "11"},
		{"Ванная", "коврики", "12"},
	})))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	e, ok := idx.Find("коврик")
	if !ok || e.Category != "Ванная" || e.CommissionWarehouse != "12" {
		t.Fatalf("ожидали последнюю запись, получили %+v, %v", e, ok)
	}
	if idx.keys[0] != "коврик" {
		t.Fatalf("ключ должен остаться на первой позиции, получили %v", idx.keys)
	}
}

func TestFindTiers(t *testing.T) {
	idx := NewIndex([]domain.CommissionEntry{
		{Category: "Дом", Subject: "Коврики для ванной", CommissionWarehouse: "15"},
		{Category: "Одежда", Subject: "Футболки"},
		{Category: "Дом", Subject: "Коврик"},
	})

	cases := []struct {
		name     string
		query    string
		wantOK   bool
		wantSubj string
	}{
		{"точный ключ", "коврики для ванной", true, "Коврики для ванной"},
		{"вхождение единственного числа", "Футболка", true, "Футболки"},
		{"нормализация запроса", "футболки", true, "Футболки"},
		{"вхождение с разницей два", "коврик для ванны", true, "Коврики для ванной"},
		{"вхождение с большой разницей", "коврик для ванной комнаты", false, ""},
		{"пустой запрос", "   ", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, ok := idx.Find(tc.query)
			if ok != tc.wantOK {
				t.Fatalf("ожидали найдено=%v, получили %v (%+v)", tc.wantOK, ok, e)
			}
			if ok && e.Subject != tc.wantSubj {
				t.Fatalf("ожидали %q, получили %q", tc.wantSubj, e.Subject)
			}
		})
	}
}

func TestFindFirstInsertedWins(t *testing.T) {
	idx := NewIndex([]domain.CommissionEntry{
		{Category: "А", Subject: "Шапка"},
		{Category: "Б", Subject: "Шапки"},
	})
	e, ok := idx.Find("шап")
	if !ok || e.Category != "А" {
		t.Fatalf("ожидали первую запись, получили %+v, %v", e, ok)
	}
}

func TestFindNilIndex(t *testing.T) {
	var idx *Index
	if _, ok := idx.Find("что угодно"); ok {
		t.Fatalf("nil-справочник ничего не находит")
	}
}

func TestIndexCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1_table.xlsx")
	if err := os.WriteFile(path, buildWorkbook(t, [][]any{header, {"Дом", "Шторы", "10"}}), 0o600); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	loads := 0
	cache := NewIndexCache()
	cache.load = func(p string) (*Index, error) {
		loads++
		return LoadFile(p)
	}

	for i := 0; i < 3; i++ {
		idx, err := cache.Get(path)
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		if idx.Len() != 1 {
			t.Fatalf("ожидали один предмет")
		}
	}
	if loads != 1 {
		t.Fatalf("ожидали одну загрузку, получили %d", loads)
	}

	cache.Invalidate(path)
	if _, err := cache.Get(path); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if loads != 2 {
		t.Fatalf("ожидали повторную загрузку после сброса, получили %d", loads)
	}
}
