// Package importer loads store offerings from CSV files.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storecart/internal/domain"
	"storecart/internal/logger"
)

type OfferingWriter interface {
	Upsert(ctx context.Context, offering domain.Offering) (*domain.Offering, error)
}

// CSVImporter upserts offering rows into one store. A row with an empty key
// continues the previous offering and may only contribute an image.
//
// Recognised columns: id, key, sku, name, description, price, currency,
// sellable, image.
type CSVImporter struct {
	src    *csv.Reader
	repo   OfferingWriter
	store  domain.Store
	logger *zap.Logger
}

func NewCSVImporter(r io.Reader, repo OfferingWriter, store domain.Store, log *zap.Logger) *CSVImporter {
	src := csv.NewReader(r)
	src.FieldsPerRecord = -1
	src.TrimLeadingSpace = true
	return &CSVImporter{
		src:    src,
		repo:   repo,
		store:  store,
		logger: logger.OrNop(log).Named("importer"),
	}
}

// columns maps lower-cased header names to their position.
type columns map[string]int

func (c columns) get(record []string, name string) string {
	pos, ok := c[name]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}

// pending is an offering being assembled from a key row and its
// continuation rows.
type pending struct {
	line   int
	fields map[string]string
	images []string
}

var offeringFields = []string{"id", "key", "sku", "name", "description", "price", "currency", "sellable"}

// Run returns the number of offerings written. It stops at the first bad
// row; offerings before it stay written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	header, err := i.src.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	cols := make(columns, len(header))
	for pos, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = pos
	}
	if _, ok := cols["key"]; !ok {
		return 0, fmt.Errorf("%w: csv has no key column", domain.ErrInvalidArgument)
	}

	var (
		cur     *pending
		written int
	)
	flush := func() error {
		if cur == nil {
			return nil
		}
		if err := i.write(ctx, cur); err != nil {
			return err
		}
		written++
		return nil
	}

	for line := 2; ; line++ {
		record, err := i.src.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return written, fmt.Errorf("read line %d: %w", line, err)
		}

		image := cols.get(record, "image")
		if key := cols.get(record, "key"); key != "" {
			if err := flush(); err != nil {
				return written, err
			}
			cur = &pending{line: line, fields: make(map[string]string, len(offeringFields))}
			for _, f := range offeringFields {
				cur.fields[f] = cols.get(record, f)
			}
		}
		if cur != nil && image != "" {
			cur.images = append(cur.images, image)
		}
	}
	if err := flush(); err != nil {
		return written, err
	}

	i.logger.Info("import finished", zap.String("store", i.store.Key), zap.Int("offerings", written))
	return written, nil
}

func (i *CSVImporter) write(ctx context.Context, p *pending) error {
	o, err := i.build(p)
	if err != nil {
		return fmt.Errorf("line %d: %w", p.line, err)
	}
	if _, err := i.repo.Upsert(ctx, o); err != nil {
		return fmt.Errorf("upsert offering %q: %w", o.Key, err)
	}
	return nil
}

func (i *CSVImporter) build(p *pending) (domain.Offering, error) {
	f := p.fields
	key := f["key"]
	if f["name"] == "" || f["sku"] == "" || f["price"] == "" {
		return domain.Offering{}, domain.InvalidArgument("offering %q needs name, sku and price", key)
	}
	if f["id"] != "" {
		if _, err := uuid.Parse(f["id"]); err != nil {
			return domain.Offering{}, domain.InvalidArgument("offering %q has malformed id %q", key, f["id"])
		}
	}
	price, err := decimal.NewFromString(f["price"])
	if err != nil || price.IsNegative() {
		return domain.Offering{}, domain.InvalidArgument("offering %q has bad price %q", key, f["price"])
	}

	currency := i.store.Currency
	if c := strings.ToUpper(f["currency"]); c != "" && c != currency {
		return domain.Offering{}, domain.InvalidArgument("offering %q priced in %s, store %s sells in %s", key, c, i.store.Key, currency)
	}

	sellable := true
	if raw := f["sellable"]; raw != "" {
		if sellable, err = strconv.ParseBool(raw); err != nil {
			return domain.Offering{}, domain.InvalidArgument("offering %q has bad sellable flag %q", key, raw)
		}
	}

	attrs := map[string]interface{}{}
	if len(p.images) > 0 {
		attrs["images"] = p.images
	}
	return domain.Offering{
		ID:          f["id"],
		StoreID:     i.store.ID,
		Key:         key,
		SKU:         f["sku"],
		Name:        f["name"],
		Description: f["description"],
		Price:       price.Round(2),
		Currency:    currency,
		Sellable:    sellable,
		Attributes:  attrs,
	}, nil
}
