package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sustainplate/m/domain"
	"sustainplate/m/internal/grocery"
	"sustainplate/m/internal/logger"
)

// Creator inserts one grocery item.
type Creator interface {
	Create(ctx context.Context, in grocery.NewItem) (domain.GroceryItem, error)
}

// LoadGroceries ingests a name,quantity,shelf_life_days CSV through the store, skipping bad rows.
// It returns the number of rows inserted.
func LoadGroceries(ctx context.Context, store Creator, csvPath string) int {
	log := logger.WithModule("seed")

	file, err := os.Open(csvPath)
	if err != nil {
		log.Warn("unable to open grocery seed", zap.String("path", csvPath), zap.Error(err))
		return 0
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Warn("unable to read grocery seed header", zap.Error(err))
		return 0
	}

	rows := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn("unable to read grocery seed row", zap.Int("line", line), zap.Error(err))
			continue
		}
		if len(record) < 3 {
			continue
		}

		quantity, qErr := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		days, dErr := strconv.Atoi(strings.TrimSpace(record[2]))
		if qErr != nil || dErr != nil {
			log.Warn("skipping malformed grocery seed row", zap.Int("line", line), zap.Strings("record", record))
			continue
		}

		in := grocery.NewItem{Name: record[0], Quantity: quantity, ShelfLifeDays: &days}
		if _, err := store.Create(ctx, in); err != nil {
			log.Warn("unable to insert seeded grocery", zap.Int("line", line), zap.Error(err))
			continue
		}
		rows++
	}

	log.Info("seeded groceries", zap.Int("rows", rows), zap.String("path", csvPath))
	return rows
}
