// Package export writes the points-transaction ledger out as partitioned
// parquet files, locally or to cloud storage, for offline analytics.
package export

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/plateful/plateful/internal/cloudwriter"
	"github.com/plateful/plateful/internal/models"
	"github.com/plateful/plateful/internal/repositories"
)

// transactionRecord is the parquet row schema for a points transaction.
type transactionRecord struct {
	ID           string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RestaurantID string `parquet:"name=restaurant_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	VisitorID    string `parquet:"name=visitor_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	OrderID      string `parquet:"name=order_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	GiftID       string `parquet:"name=gift_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type         string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount       int64  `parquet:"name=amount, type=INT64"`
	CreatedAt    int64  `parquet:"name=created_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

type ParquetExporter struct {
	basePath           string
	folder             string
	cloudWriterFactory cloudwriter.CloudWriterFactory
	cloudBucketName    string
}

func NewParquetExporter(cfg *models.Config) (*ParquetExporter, error) {
	e := &ParquetExporter{
		basePath: cfg.ExportFolder,
		folder:   "points_transactions",
	}
	if e.basePath == "" {
		e.basePath = "export"
	}

	if cfg.CloudBucket != "" {
		factory, err := cloudwriter.NewS3WriterFactory(cfg.CloudRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud writer factory: %w", err)
		}
		e.cloudWriterFactory = factory
		e.cloudBucketName = cfg.CloudBucket
	}
	return e, nil
}

// Export writes every transaction created in [from, to) into day-partitioned
// parquet files.
func (e *ParquetExporter) Export(ctx context.Context, stats repositories.StatsRepository, from, to time.Time) error {
	txns, err := stats.TransactionsCreatedBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to read transactions: %w", err)
	}

	partitions := make(map[string][]*models.PointsTransaction)
	for _, txn := range txns {
		year, month, day := txn.CreatedAt.UTC().Date()
		key := fmt.Sprintf("year=%d/month=%02d/day=%02d", year, month, day)
		partitions[key] = append(partitions[key], txn)
	}

	for partition, rows := range partitions {
		if err := e.writePartition(partition, rows); err != nil {
			return err
		}
		log.Printf("Exported %d transactions to partition %s", len(rows), partition)
	}
	return nil
}

func (e *ParquetExporter) writePartition(partition string, txns []*models.PointsTransaction) error {
	fw, err := e.newParquetFile(partition)
	if err != nil {
		return err
	}

	pw, err := writer.NewParquetWriter(fw, new(transactionRecord), 4)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create ParquetWriter: %w", err)
	}

	for _, txn := range txns {
		record := transactionRecord{
			ID:           txn.ID,
			RestaurantID: txn.RestaurantID,
			VisitorID:    txn.VisitorID,
			OrderID:      txn.OrderID,
			GiftID:       txn.GiftID,
			Type:         txn.Type,
			Amount:       int64(txn.Amount),
			CreatedAt:    txn.CreatedAt.UnixMilli(),
		}
		if err := pw.Write(record); err != nil {
			fw.Close()
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return fw.Close()
}

func (e *ParquetExporter) newParquetFile(partition string) (source.ParquetFile, error) {
	if e.cloudWriterFactory != nil {
		objectPath := filepath.Join(e.folder, partition, "data.parquet")
		cw, err := e.cloudWriterFactory.NewWriter(e.cloudBucketName, objectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create cloud file writer: %w", err)
		}
		return newCloudParquetFile(cw), nil
	}

	fullPath := filepath.Join(e.basePath, e.folder, partition)
	if err := os.MkdirAll(fullPath, os.ModePerm); err != nil {
		return nil, err
	}
	return local.NewLocalFileWriter(filepath.Join(fullPath, "data.parquet"))
}

// cloudParquetFile adapts a CloudWriter to the parquet source interface.
// Reads and seek-from-end are not supported; the writer only appends.
type cloudParquetFile struct {
	cloudWriter cloudwriter.CloudWriter
	offset      int64
}

func newCloudParquetFile(cw cloudwriter.CloudWriter) *cloudParquetFile {
	return &cloudParquetFile{cloudWriter: cw}
}

func (c *cloudParquetFile) Open(name string) (source.ParquetFile, error)   { return c, nil }
func (c *cloudParquetFile) Create(name string) (source.ParquetFile, error) { return c, nil }

func (c *cloudParquetFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		c.offset = offset
	case io.SeekCurrent:
		c.offset += offset
	case io.SeekEnd:
		return 0, fmt.Errorf("seek from end not supported for cloud storage")
	}
	return c.offset, nil
}

func (c *cloudParquetFile) Read(p []byte) (n int, err error) {
	return 0, fmt.Errorf("read not supported for cloud storage")
}

func (c *cloudParquetFile) Write(p []byte) (n int, err error) {
	return c.cloudWriter.Write(p)
}

func (c *cloudParquetFile) Close() error {
	return c.cloudWriter.Close()
}
