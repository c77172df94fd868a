// Package kafka provides the watermill Kafka publisher used to mirror
// workflow events to external consumers.
package kafka

import (
	"errors"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
)

// CreatePublisher creates a Kafka publisher from the KAFKA_BROKERS
// environment variable.
func CreatePublisher(logger watermill.LoggerAdapter) (*kafka.Publisher, error) {
	brokers := strings.Split(os.Getenv("KAFKA_BROKERS"), ",")
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, errors.New("KAFKA_BROKERS environment variable is not set or empty")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig,
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return nil, err
	}

	return publisher, nil
}
