package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/config"
	"github.com/couchcryptid/station-data-ingest/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// ReportPublisher produces report trigger messages to a Kafka topic.
// It implements pipeline.ReportPublisher.
type ReportPublisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewReportPublisher creates a Kafka producer for the configured report topic.
func NewReportPublisher(cfg *config.Config, logger *slog.Logger) *ReportPublisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.ReportBrokers...),
		Topic:                  cfg.ReportTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
	return &ReportPublisher{writer: w, logger: logger}
}

// Publish sends one report. Messages are keyed by station so a station's
// reports stay ordered within a partition.
func (p *ReportPublisher) Publish(ctx context.Context, report domain.Report) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report for %s: %w", report.Station, err)
	}
	p.logger.Debug("report published", "station", report.Station, "cycle_id", report.CycleID, "rows", report.Rows)
	return nil
}

func (p *ReportPublisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a Report into a Kafka message.
func serializeToMessage(report domain.Report) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize station report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(report.Station),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "cycle_id", Value: []byte(report.CycleID)},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
