package reorgfeed

import (
	"time"

	client "github.com/influxdata/influxdb/client/v2"
)

// InfluxDBSink writes each event as a point in a single measurement,
// the way go-ethereum's metrics/influxdb reporter periodically flushes
// a batch of points to an InfluxDB HTTP endpoint — except here one
// point is written per reorg/new-block notification rather than on a
// fixed interval.
type InfluxDBSink struct {
	c           client.Client
	database    string
	measurement string
}

// NewInfluxDBSink dials addr (e.g. "http://localhost:8086") and returns
// a sink writing into database.
func NewInfluxDBSink(addr, database string) (*InfluxDBSink, error) {
	c, err := client.NewHTTPClient(client.HTTPConfig{Addr: addr, Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &InfluxDBSink{c: c, database: database, measurement: "reorg_events"}, nil
}

// Publish writes ev as a single point tagged by tip hash.
func (s *InfluxDBSink) Publish(ev ReorgEvent) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: s.database, Precision: "s"})
	if err != nil {
		return err
	}

	tags := map[string]string{"tip_hash": ev.TipHash}
	fields := map[string]interface{}{
		"detached_count": ev.DetachedCount,
		"attached_count": ev.AttachedCount,
		"tip_number":     ev.TipNumber,
	}
	pt, err := client.NewPoint(s.measurement, tags, fields, time.Unix(ev.At, 0))
	if err != nil {
		return err
	}
	bp.AddPoint(pt)

	return s.c.Write(bp)
}

// Close releases the underlying HTTP client.
func (s *InfluxDBSink) Close() error {
	return s.c.Close()
}
