package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/service"
)

const dateLayout = "2006-01-02"

var requiredColumns = []string{"name", "category", "unit_price", "stock"}

// Catalogue is the part of the service the loader needs.
type Catalogue interface {
	ListMedicines(ctx context.Context, filter service.MedicineFilter) ([]domain.Medicine, error)
	AddMedicine(ctx context.Context, draft domain.MedicineDraft) (*domain.Medicine, error)
}

// LoadMedicinesFile seeds the catalogue from a CSV file when the inventory is empty.
// A missing file is logged and skipped.
func LoadMedicinesFile(ctx context.Context, cat Catalogue, csvPath string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	file, err := os.Open(csvPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("medicine catalogue not found, skipping seed", zap.String("path", csvPath))
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open medicine catalogue %s: %w", csvPath, err)
	}
	defer file.Close()

	return LoadMedicines(ctx, cat, file, logger)
}

// LoadMedicines reads the CSV (header row first) and adds every valid row.
// Nothing happens when medicines already exist. Bad rows are logged and skipped.
func LoadMedicines(ctx context.Context, cat Catalogue, r io.Reader, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	existing, err := cat.ListMedicines(ctx, service.MedicineFilter{})
	if err != nil {
		return 0, fmt.Errorf("check inventory: %w", err)
	}
	if len(existing) > 0 {
		logger.Info("inventory already populated, skipping seed", zap.Int("medicines", len(existing)))
		return 0, nil
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read medicine header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return 0, fmt.Errorf("medicine catalogue is missing column %q", name)
		}
	}

	rows := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			logger.Warn("unable to read medicine row", zap.Int("line", line), zap.Error(err))
			continue
		}

		draft, err := parseRow(record, columns)
		if err != nil {
			logger.Warn("skipping medicine row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if _, err := cat.AddMedicine(ctx, draft); err != nil {
			if errors.Is(err, domain.ErrValidation) {
				logger.Warn("skipping invalid medicine", zap.Int("line", line), zap.String("name", draft.Name), zap.Error(err))
				continue
			}
			return rows, fmt.Errorf("add medicine %s: %w", draft.Name, err)
		}
		rows++
	}

	logger.Info("seeded medicine catalogue", zap.Int("rows", rows))
	return rows, nil
}

func parseRow(record []string, columns map[string]int) (domain.MedicineDraft, error) {
	field := func(name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	price, err := decimal.NewFromString(field("unit_price"))
	if err != nil {
		return domain.MedicineDraft{}, fmt.Errorf("unit_price: %w", err)
	}
	stock, err := strconv.Atoi(field("stock"))
	if err != nil {
		return domain.MedicineDraft{}, fmt.Errorf("stock: %w", err)
	}

	draft := domain.MedicineDraft{
		Name:      field("name"),
		Category:  field("category"),
		UnitPrice: price,
		Stock:     stock,
	}
	if raw := field("expiry_date"); raw != "" {
		expiry, err := time.Parse(dateLayout, raw)
		if err != nil {
			return domain.MedicineDraft{}, fmt.Errorf("expiry_date: %w", err)
		}
		draft.ExpiryDate = &expiry
	}
	if raw := field("reorder_threshold"); raw != "" {
		threshold, err := strconv.Atoi(raw)
		if err != nil {
			return domain.MedicineDraft{}, fmt.Errorf("reorder_threshold: %w", err)
		}
		draft.ReorderThreshold = &threshold
	}
	return draft, nil
}
