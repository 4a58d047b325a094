package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/batcom/engine/internal/model"
)

// Engine metric buckets.
const (
	BucketLLMUsage      = "llm_usage"
	BucketDecisionCycle = "decision_cycles"
	BucketEngineHealth  = "engine_health"
)

var bucketNames = []string{BucketLLMUsage, BucketDecisionCycle, BucketEngineHealth}

// Exporter ships engine metrics to InfluxDB. When the server is down at
// connect time, points are spooled to a gzip backup file in line protocol
// so a later import loses nothing.
type Exporter struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger
	BackupPath   string
}

// NewExporter creates an unconnected exporter.
func NewExporter(log zerolog.Logger, backupPath string) *Exporter {
	return &Exporter{
		Writers:    make(map[string]influxdb2_api.WriteAPI),
		Logger:     log,
		BackupPath: backupPath,
	}
}

// Connect establishes the InfluxDB connection, creating the org and engine
// buckets when missing. A dead server degrades to the backup writer.
func (e *Exporter) Connect() error {
	if !viper.GetBool("influx.enabled") {
		return errors.New("influx.enabled is false")
	}

	e.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf(
			"%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		viper.GetString("influx.token"),
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := e.Client.Ping(context.Background())
	if err != nil || !running {
		e.IsValid = false
		if e.BackupWriter == nil {
			e.Logger.Info().Str("backupPath", e.BackupPath).
				Msg("Failed to reach InfluxDB, writing to backup file")

			file, err := os.OpenFile(e.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("error creating backup file: %v", err)
			}
			e.BackupWriter = gzip.NewWriter(file)
		}
	} else {
		e.IsValid = true
	}

	if e.IsValid {
		if err := e.setupOrganizationAndBuckets(); err != nil {
			return err
		}
		e.createWriters()
		e.Logger.Info().Msg("InfluxDB exporter initialized")
	} else {
		e.Logger.Warn().Msg("InfluxDB exporter using backup writer")
	}

	return nil
}

func (e *Exporter) setupOrganizationAndBuckets() error {
	ctx := context.Background()
	orgName := viper.GetString("influx.org")

	_, err := e.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		e.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = e.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			e.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	influxOrg, err := e.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		e.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	for _, bucket := range bucketNames {
		_, err = e.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			e.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = e.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				e.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

func (e *Exporter) createWriters() {
	orgName := viper.GetString("influx.org")
	for _, bucket := range bucketNames {
		e.Writers[bucket] = e.Client.WriteAPI(orgName, bucket)

		errorsCh := e.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				e.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}
}

// WritePoint routes a point to InfluxDB or the backup file.
func (e *Exporter) WritePoint(bucket string, point *influxdb2_write.Point) error {
	if e.IsValid {
		if _, ok := e.Writers[bucket]; !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		e.Writers[bucket].WritePoint(point)
		return nil
	}

	if e.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := e.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// RecordUsage ships one LLM call's token economics.
func (e *Exporter) RecordUsage(aoID string, usage model.TokenUsage) {
	point := influxdb2_write.NewPointWithMeasurement("llm_call").
		AddTag("ao", aoID).
		AddTag("provider", usage.Provider).
		AddTag("model", usage.Model).
		AddField("input_tokens", usage.InputTokens).
		AddField("output_tokens", usage.OutputTokens).
		AddField("cached_tokens", usage.CachedTokens).
		AddField("total_tokens", usage.TotalTokens).
		AddField("latency_ms", usage.LatencyMs).
		SetTime(time.Now())
	if err := e.WritePoint(BucketLLMUsage, point); err != nil {
		e.Logger.Warn().Err(err).Msg("Error recording LLM usage point")
	}
}

// RecordCycle ships one decision cycle's outcome counts.
func (e *Exporter) RecordCycle(aoID string, cycle, accepted, rejected int, missionTime float64) {
	point := influxdb2_write.NewPointWithMeasurement("decision_cycle").
		AddTag("ao", aoID).
		AddField("cycle", cycle).
		AddField("accepted_orders", accepted).
		AddField("rejected_orders", rejected).
		AddField("mission_time", missionTime).
		SetTime(time.Now())
	if err := e.WritePoint(BucketDecisionCycle, point); err != nil {
		e.Logger.Warn().Err(err).Msg("Error recording decision cycle point")
	}
}

// RecordHealth ships the breaker position and queue depth.
func (e *Exporter) RecordHealth(breakerState string, consecutiveFailures, queueLen int) {
	point := influxdb2_write.NewPointWithMeasurement("engine_health").
		AddTag("breaker", breakerState).
		AddField("consecutive_failures", consecutiveFailures).
		AddField("queue_len", queueLen).
		SetTime(time.Now())
	if err := e.WritePoint(BucketEngineHealth, point); err != nil {
		e.Logger.Warn().Err(err).Msg("Error recording engine health point")
	}
}

// Close flushes writers and the backup spool.
func (e *Exporter) Close() {
	for _, w := range e.Writers {
		w.Flush()
	}
	if e.Client != nil {
		e.Client.Close()
	}
	if e.BackupWriter != nil {
		if err := e.BackupWriter.Close(); err != nil {
			e.Logger.Warn().Err(err).Msg("Error closing InfluxDB backup writer")
		}
	}
}
