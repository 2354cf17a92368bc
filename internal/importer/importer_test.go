package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storecart/internal/domain"
)

type stubOfferingRepo struct {
	items []domain.Offering
	err   error
}

func (s *stubOfferingRepo) Upsert(_ context.Context, o domain.Offering) (*domain.Offering, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.items = append(s.items, o)
	return &o, nil
}

var berlin = domain.Store{ID: "store-1", Key: "berlin", Currency: "EUR"}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `id,key,name,description,sku,price,currency,sellable,image
00000000-0000-0000-0000-000000000001,mug,Mug,Ceramic,SKU-1,19.99,EUR,,https://example.com/img1.jpg
,,,,,,,,https://example.com/img2.jpg
,shirt,Shirt,,SKU-2,25,,false,`

	repo := &stubOfferingRepo{}
	imp := NewCSVImporter(strings.NewReader(csvData), repo, berlin, nil)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 2 || len(repo.items) != 2 {
		t.Fatalf("expected 2 offerings imported, got %d (%d saved)", count, len(repo.items))
	}

	mug := repo.items[0]
	if len(mug.Attributes["images"].([]string)) != 2 {
		t.Fatalf("expected 2 images on first offering")
	}
	if mug.Key != "mug" || mug.SKU != "SKU-1" || mug.Price.StringFixed(2) != "19.99" || mug.StoreID != "store-1" || !mug.Sellable {
		t.Fatalf("unexpected offering data: %+v", mug)
	}
	if mug.ID != "00000000-0000-0000-0000-000000000001" {
		t.Fatalf("expected id to be preserved, got %s", mug.ID)
	}

	shirt := repo.items[1]
	if shirt.Currency != "EUR" || shirt.Sellable || shirt.Price.StringFixed(2) != "25.00" {
		t.Fatalf("unexpected second offering: %+v", shirt)
	}
}

func TestCSVImporter_RejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing price":  "key,name,sku,price\nmug,Mug,SKU-1,\n",
		"bad price":      "key,name,sku,price\nmug,Mug,SKU-1,cheap\n",
		"negative price": "key,name,sku,price\nmug,Mug,SKU-1,-1\n",
		"bad id":         "id,key,name,sku,price\n42,mug,Mug,SKU-1,1\n",
		"wrong currency": "key,name,sku,price,currency\nmug,Mug,SKU-1,1,USD\n",
		"bad sellable":   "key,name,sku,price,sellable\nmug,Mug,SKU-1,1,maybe\n",
		"no key column":  "name,sku,price\nMug,SKU-1,1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubOfferingRepo{}
			_, err := NewCSVImporter(strings.NewReader(data), repo, berlin, nil).Run(context.Background())
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if len(repo.items) != 0 {
				t.Fatalf("expected nothing saved, got %+v", repo.items)
			}
		})
	}
}

func TestCSVImporter_RepoError(t *testing.T) {
	repo := &stubOfferingRepo{err: domain.ErrConflict}
	count, err := NewCSVImporter(strings.NewReader("key,name,sku,price\nmug,Mug,SKU-1,1\n"), repo, berlin, nil).Run(context.Background())
	if !errors.Is(err, domain.ErrConflict) || count != 0 {
		t.Fatalf("expected conflict error, got %d %v", count, err)
	}
}
