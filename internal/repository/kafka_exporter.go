package repository

import (
	"context"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	drepo "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	pkgkafka "github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/kafka"
)

// KafkaExporter publishes closed trades and health alerts, keyed by bot ID
// so per-bot ordering survives partitioning.
type KafkaExporter struct {
	producer   *pkgkafka.Producer
	tradeTopic string
	alertTopic string
}

func NewKafkaExporter(producer *pkgkafka.Producer, tradeTopic, alertTopic string) drepo.EventExporter {
	return &KafkaExporter{producer: producer, tradeTopic: tradeTopic, alertTopic: alertTopic}
}

func (e *KafkaExporter) ExportTrade(ctx context.Context, rec *models.TradeRecord) error {
	return e.producer.Publish(ctx, e.tradeTopic, []byte(rec.BotID), rec)
}

func (e *KafkaExporter) ExportAlert(ctx context.Context, alert *models.Alert) error {
	return e.producer.Publish(ctx, e.alertTopic, []byte(alert.BotID), alert)
}

func (e *KafkaExporter) Close() error {
	if e.producer != nil {
		return e.producer.Close()
	}
	return nil
}

// NoopExporter is used when Kafka export is disabled.
type NoopExporter struct{}

func (NoopExporter) ExportTrade(context.Context, *models.TradeRecord) error { return nil }
func (NoopExporter) ExportAlert(context.Context, *models.Alert) error       { return nil }
func (NoopExporter) Close() error                                           { return nil }
