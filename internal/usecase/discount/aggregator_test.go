package discount

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"wb-products-bot/internal/domain"
)

type stubCatalogue struct {
	listings   map[string][]domain.SellerListing
	listingErr map[string]error
	details    []domain.CatalogueDetail
	detailsErr error
	calls      []string
}

func (s *stubCatalogue) FetchSellerListing(_ context.Context, cred domain.Credential) ([]domain.SellerListing, error) {
	s.calls = append(s.calls, cred.Label)
	if err := s.listingErr[cred.Secret]; err != nil {
		return nil, err
	}
	return s.listings[cred.Secret], nil
}

func (s *stubCatalogue) FetchDetails(_ context.Context, ids []int64) ([]domain.CatalogueDetail, error) {
	if s.detailsErr != nil {
		return nil, s.detailsErr
	}
	var out []domain.CatalogueDetail
	for _, d := range s.details {
		for _, id := range ids {
			if d.ProductID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func TestAggregateAllIsolatesFailures(t *testing.T) {
	client := &stubCatalogue{
		listings: map[string][]domain.SellerListing{
			"ok":    {{ProductID: 1, SellerDiscount: 0}},
			"empty": {},
		},
		listingErr: map[string]error{
			"bad": &domain.FetchError{Op: "listing", Status: 401, Message: "unauthorized"},
		},
		details: []domain.CatalogueDetail{{ProductID: 1, SubjectName: "Шторы", BasicPriceMinor: 10_000, SitePriceMinor: 5_000}},
	}
	creds := []domain.Credential{
		domain.NewUserCredential(1, "основной", "bad"),
		domain.NewUserCredential(2, "второй", "ok"),
		domain.NewSharedCredential("общий", "empty"),
	}

	results := NewAggregator(client, zerolog.Nop()).AggregateAll(context.Background(), creds, 28, nil)
	if len(results) != len(creds) {
		t.Fatalf("ожидали %d результатов, получили %d", len(creds), len(results))
	}
	if !results[0].HadError || len(results[0].Products) != 0 || !strings.Contains(results[0].Error, "401") {
		t.Fatalf("ожидали заглушку с ошибкой: %+v", results[0])
	}
	if results[0].Threshold != 28 {
		t.Fatalf("заглушка должна хранить порог, получили %v", results[0].Threshold)
	}
	if results[1].HadError || len(results[1].Products) != 1 || results[1].Label != "второй" {
		t.Fatalf("ожидали успешный результат: %+v", results[1])
	}
	if !results[2].HadError || len(results[2].Products) != 0 || !results[2].IsShared() {
		t.Fatalf("пустой список даёт заглушку с флагом ошибки: %+v", results[2])
	}
	if results[2].Error != "" || results[2].Failed() {
		t.Fatalf("пустой список не считается сбоем загрузки: %+v", results[2])
	}
	if !results[0].Failed() {
		t.Fatalf("ошибка ключа должна считаться сбоем загрузки")
	}
}

func TestAggregateAllAllFailing(t *testing.T) {
	client := &stubCatalogue{detailsErr: errors.New("timeout")}
	client.listings = map[string][]domain.SellerListing{"a": {{ProductID: 1}}, "b": {{ProductID: 2}}}
	creds := []domain.Credential{
		domain.NewUserCredential(1, "a", "a"),
		domain.NewUserCredential(2, "b", "b"),
	}
	results := NewAggregator(client, zerolog.Nop()).AggregateAll(context.Background(), creds, 10, nil)
	if len(results) != 2 {
		t.Fatalf("ожидали 2 результата, получили %d", len(results))
	}
	for i, r := range results {
		if !r.HadError {
			t.Fatalf("результат %d должен быть ошибкой", i)
		}
		if r.Label != creds[i].Label {
			t.Fatalf("нарушен порядок: %q вместо %q", r.Label, creds[i].Label)
		}
	}
}

func TestAggregateAllEmptyInput(t *testing.T) {
	results := NewAggregator(&stubCatalogue{}, zerolog.Nop()).AggregateAll(context.Background(), nil, 28, nil)
	if len(results) != 0 {
		t.Fatalf("ожидали пустой результат")
	}
}

func TestAggregateAllProgressOnlyForUserKeys(t *testing.T) {
	client := &stubCatalogue{}
	creds := []domain.Credential{
		domain.NewSharedCredential("общий", "s1"),
		domain.NewUserCredential(1, "мой", "u1"),
		domain.NewSharedCredential("общий 2", "s2"),
		domain.NewUserCredential(2, "второй", "u2"),
	}
	var progress []string
	agg := NewAggregator(client, zerolog.Nop()).WithProgress(func(_ context.Context, i, total int, cred domain.Credential) {
		progress = append(progress, cred.Label+":"+string(rune('0'+i))+"/"+string(rune('0'+total)))
	})
	agg.AggregateAll(context.Background(), creds, 28, nil)

	want := []string{"мой:1/2", "второй:2/2"}
	if len(progress) != len(want) {
		t.Fatalf("ожидали %v, получили %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("ожидали %v, получили %v", want, progress)
		}
	}
	if len(client.calls) != 4 {
		t.Fatalf("должны быть обработаны все ключи, получили %v", client.calls)
	}
}
