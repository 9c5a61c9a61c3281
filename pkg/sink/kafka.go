/**
 * Copyright (c) 2020-present Snowplow Analytics Ltd.
 * All rights reserved.
 *
 * This software is made available by Snowplow Analytics, Ltd.,
 * under the terms of the Snowplow Limited Use License Agreement, Version 1.1
 * located at https://docs.snowplow.io/limited-use-license-1.1
 * BY INSTALLING, DOWNLOADING, ACCESSING, USING OR DISTRIBUTING ANY PORTION
 * OF THE SOFTWARE, YOU AGREE TO THE TERMS OF SUCH LICENSE AGREEMENT.
 */

package sink

import (
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/snowplow-devops/collector-relay/pkg/common"
	"github.com/snowplow-devops/collector-relay/pkg/models"
)

// KafkaSinkConfig configures the topic destination for buffered batches
type KafkaSinkConfig struct {
	Brokers        string `hcl:"brokers" env:"SINK_KAFKA_BROKERS"`
	TopicName      string `hcl:"topic_name" env:"SINK_KAFKA_TOPIC_NAME"`
	TargetVersion  string `hcl:"target_version,optional" env:"SINK_KAFKA_TARGET_VERSION"`
	MaxRetries     int    `hcl:"max_retries,optional" env:"SINK_KAFKA_MAX_RETRIES"`
	ByteLimit      int    `hcl:"byte_limit,optional" env:"SINK_KAFKA_BYTE_LIMIT"`
	Compress       bool   `hcl:"compress,optional" env:"SINK_KAFKA_COMPRESS"`
	WaitForAll     bool   `hcl:"wait_for_all,optional" env:"SINK_KAFKA_WAIT_FOR_ALL"`
	Idempotent     bool   `hcl:"idempotent,optional" env:"SINK_KAFKA_IDEMPOTENT"`
	EnableSASL     bool   `hcl:"enable_sasl,optional" env:"SINK_KAFKA_ENABLE_SASL"`
	SASLUsername   string `hcl:"sasl_username,optional" env:"SINK_KAFKA_SASL_USERNAME"`
	SASLPassword   string `hcl:"sasl_password,optional" env:"SINK_KAFKA_SASL_PASSWORD"`
	CertFile       string `hcl:"cert_file,optional" env:"SINK_KAFKA_TLS_CERT_FILE"`
	KeyFile        string `hcl:"key_file,optional" env:"SINK_KAFKA_TLS_KEY_FILE"`
	CaFile         string `hcl:"ca_file,optional" env:"SINK_KAFKA_TLS_CA_FILE"`
	SkipVerifyTLS  bool   `hcl:"skip_verify_tls,optional" env:"SINK_KAFKA_TLS_SKIP_VERIFY_TLS"`
	ForceSyncFlush bool   `hcl:"force_sync_flush,optional" env:"SINK_KAFKA_FORCE_SYNC_FLUSH"`
}

// KafkaSink holds a new client for writing batches to Apache Kafka
type KafkaSink struct {
	client    sarama.Client
	producer  sarama.SyncProducer
	topicName string
	brokers   string

	messageByteLimit int

	log *log.Entry
}

// newKafkaSink creates a new client for writing batches to Apache Kafka
func newKafkaSink(cfg *KafkaSinkConfig) (*KafkaSink, error) {
	preferredVersion := sarama.DefaultVersion

	if cfg.TargetVersion != "" {
		parsedVersion, err := sarama.ParseKafkaVersion(cfg.TargetVersion)
		if err != nil {
			return nil, err
		}

		supportedVersion := false
		for _, version := range sarama.SupportedVersions {
			if version == parsedVersion {
				supportedVersion = true
				preferredVersion = parsedVersion
				break
			}
		}
		if !supportedVersion {
			return nil, fmt.Errorf("unsupported version `%s`. select older, compatible version instead", parsedVersion)
		}
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = "collector_relay"
	saramaConfig.Version = preferredVersion
	saramaConfig.Producer.Retry.Max = cfg.MaxRetries
	saramaConfig.Producer.MaxMessageBytes = cfg.ByteLimit

	// Must be enabled for the SyncProducer
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	if cfg.WaitForAll {
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll // Wait for all in-sync replicas to ack the message
	}

	if cfg.Idempotent {
		saramaConfig.Producer.RequiredAcks = sarama.WaitForAll // Wait for all in-sync replicas to ack the message
		saramaConfig.Producer.Idempotent = true
		saramaConfig.Net.MaxOpenRequests = 1
	}

	if cfg.Compress {
		saramaConfig.Producer.Compression = sarama.CompressionSnappy // Compress messages
	}

	if cfg.EnableSASL {
		saramaConfig.Net.SASL.Enable = true
		saramaConfig.Net.SASL.User = cfg.SASLUsername
		saramaConfig.Net.SASL.Password = cfg.SASLPassword
		saramaConfig.Net.SASL.Handshake = true
		saramaConfig.Net.SASL.Mechanism = sarama.SASLTypePlaintext
	}

	tlsConfig, err := common.CreateTLSConfiguration(cfg.CertFile, cfg.KeyFile, cfg.CaFile, cfg.SkipVerifyTLS)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		saramaConfig.Net.TLS.Config = tlsConfig
		saramaConfig.Net.TLS.Enable = true
	}

	client, err := sarama.NewClient(strings.Split(cfg.Brokers, ","), saramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create Kafka client")
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create Kafka producer")
	}

	return newKafkaSinkWithInterfaces(client, producer, cfg.Brokers, cfg.TopicName, cfg.ByteLimit, preferredVersion)
}

// newKafkaSinkWithInterfaces allows you to provide the sarama client and
// producer directly to allow for mocking
func newKafkaSinkWithInterfaces(client sarama.Client, producer sarama.SyncProducer, brokers string, topicName string, byteLimit int, version sarama.KafkaVersion) (*KafkaSink, error) {
	return &KafkaSink{
		client:           client,
		producer:         producer,
		brokers:          brokers,
		topicName:        topicName,
		messageByteLimit: byteLimit,
		log:              log.WithFields(log.Fields{"sink": "kafka", "brokers": brokers, "topic": topicName, "version": version}),
	}, nil
}

// KafkaSinkConfigFunction creates a KafkaSink from a KafkaSinkConfig
func KafkaSinkConfigFunction(c *KafkaSinkConfig) (*KafkaSink, error) {
	return newKafkaSink(c)
}

// The KafkaSinkAdapter type is an adapter for functions to be used as
// pluggable components for the Kafka sink. Implements the Pluggable interface.
type KafkaSinkAdapter func(i interface{}) (interface{}, error)

// Create implements the ComponentCreator interface.
func (f KafkaSinkAdapter) Create(i interface{}) (interface{}, error) {
	return f(i)
}

// ProvideDefault implements the ComponentConfigurable interface.
func (f KafkaSinkAdapter) ProvideDefault() (interface{}, error) {
	cfg := &KafkaSinkConfig{
		MaxRetries: 10,
		ByteLimit:  1048576,
	}

	return cfg, nil
}

// AdaptKafkaSinkFunc returns a KafkaSinkAdapter.
func AdaptKafkaSinkFunc(f func(c *KafkaSinkConfig) (*KafkaSink, error)) KafkaSinkAdapter {
	return func(i interface{}) (interface{}, error) {
		cfg, ok := i.(*KafkaSinkConfig)
		if !ok {
			return nil, errors.New("invalid input, expected KafkaSinkConfig")
		}

		return f(cfg)
	}
}

// Write pushes the batch to the topic
func (kt *KafkaSink) Write(batch *models.Batch) (*models.SinkWriteResult, error) {
	kt.log.Debugf("Writing %d payloads to topic ...", batch.Count())

	safePayloads, oversized := models.FilterOversizedPayloads(
		batch.Payloads,
		kt.MaxRecordBytes(),
	)

	var sent []*models.Payload
	var failed []*models.Payload
	var errResult error

	for _, p := range safePayloads {
		requestStarted := time.Now()
		_, _, err := kt.producer.SendMessage(&sarama.ProducerMessage{
			Topic: kt.topicName,
			Key:   sarama.StringEncoder(p.PartitionKey),
			Value: sarama.ByteEncoder(p.Data),
		})
		requestFinished := time.Now()

		p.TimeRequestStarted = requestStarted
		p.TimeRequestFinished = requestFinished

		if err != nil {
			errResult = multierror.Append(errResult, err)
			failed = append(failed, p)
		} else {
			sent = append(sent, p)
		}
	}

	if errResult != nil {
		errResult = models.RetryableError{
			Err: errors.Wrap(errResult, fmt.Sprintf("Error writing payloads to Kafka topic: %v", kt.topicName)),
		}
	}

	kt.log.Debugf("Successfully wrote %d/%d payloads", len(sent), len(safePayloads))
	return models.NewSinkWriteResult(
		sent,
		failed,
		oversized,
		nil,
	), errResult
}

// Open does not do anything for this sink
func (kt *KafkaSink) Open() {}

// Close stops the producer
func (kt *KafkaSink) Close() {
	kt.log.Warnf("Closing sink for topic '%s'", kt.topicName)
	if err := kt.producer.Close(); err != nil {
		kt.log.Fatal("Failed to close producer:", err)
	}
}

// Ping refreshes cluster metadata for the topic to check the brokers
// are reachable
func (kt *KafkaSink) Ping() error {
	if err := kt.client.RefreshMetadata(kt.topicName); err != nil {
		return models.RetryableError{
			Err: errors.Wrap(err, fmt.Sprintf("Failed to refresh metadata for Kafka topic '%s'", kt.topicName)),
		}
	}
	return nil
}

// MaxRecordBytes returns the max number of bytes that can be sent per
// message for this sink
func (kt *KafkaSink) MaxRecordBytes() int {
	return kt.messageByteLimit
}

// MaxBatchBytes returns the max number of bytes that can be sent in one write
func (kt *KafkaSink) MaxBatchBytes() int {
	return kt.messageByteLimit
}

// MaxBatchRecords returns the most messages that can be sent in one write
func (kt *KafkaSink) MaxBatchRecords() int {
	return 500
}

// GetID returns the identifier for this sink
func (kt *KafkaSink) GetID() string {
	return fmt.Sprintf("brokers:%s:topic:%s", kt.brokers, kt.topicName)
}
